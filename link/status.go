package link

// Status describes where a connection is in its lifecycle. Client and
// Server are synchronous, so StatusConnecting and StatusHandshakeFailed
// describe the pre-session phase and surface through their error return;
// an established Session moves Connected, then Closing, then Closed.
type Status int

const (
	StatusClosed Status = iota
	StatusConnecting
	StatusConnected
	StatusClosing
	StatusHandshakeFailed
)

func (s Status) String() string {
	switch s {
	case StatusClosed:
		return "closed"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusClosing:
		return "closing"
	case StatusHandshakeFailed:
		return "handshake_failed"
	default:
		return "unknown"
	}
}
