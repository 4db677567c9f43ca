// Package link runs Noise sessions over stream connections.
//
// A link frames every handshake and transport message as a 2-byte
// big-endian length followed by the body, one Noise message per frame.
// Handshake frames additionally carry a leading protocol-index byte so the
// two ends can agree on which of the configured protocols is in use; this
// is how the IK to XXfallback switch (Noise Pipes) is negotiated: a server
// that cannot read the client's IK message answers with its fallback
// protocol's index and the fallback handshake continues from the client's
// ephemeral key.
//
// Client and Server perform the handshake synchronously on the given
// net.Conn and return a Session whose Write and Read exchange one encrypted
// message per call.
package link
