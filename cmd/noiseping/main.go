// Command noiseping is a minimal encrypted echo tool for exercising links:
// a server echoes every message back, a client sends numbered pings and
// reports round-trip times. It doubles as a smoke test for protocol
// negotiation, key rings, and the IK to XXfallback switch against a server
// whose key has rotated.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/ogier/pflag"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/noiselink/crypto"
	"github.com/opd-ai/noiselink/keyring"
	"github.com/opd-ai/noiselink/link"
	"github.com/opd-ai/noiselink/noise"
)

const staticKeyID = 1

type config struct {
	listen     bool
	protocol   string
	fallback   bool
	keyringDir string
	passphrase string
	remoteKey  []byte
	psk        []byte
	count      int
	padding    string
	addr       string
}

func main() {
	cfg := parseFlags()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	opts, ring, err := buildOptions(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to configure link")
	}
	if ring != nil {
		defer ring.Close()
	}

	if cfg.listen {
		err = runServer(cfg.addr, opts)
	} else {
		err = runClient(cfg.addr, opts, cfg.count)
	}
	if err != nil {
		logrus.WithError(err).Fatal("noiseping failed")
	}
}

func parseFlags() config {
	cfg := config{}

	pflag.Usage = printUsage
	listen := pflag.BoolP("listen", "l", false, "run as an echo server")
	protocol := pflag.StringP("protocol", "p", "Noise_NN_25519_ChaChaPoly_SHA256", "Noise protocol name")
	fallback := pflag.Bool("fallback", false, "offer XXfallback if the primary handshake fails")
	keyringDir := pflag.StringP("keyring", "k", "", "directory of the encrypted key ring")
	passphrase := pflag.String("passphrase", "", "key ring passphrase")
	remoteKey := pflag.StringP("remote-key", "r", "", "peer static public key, base64")
	psk := pflag.String("psk", "", "pre-shared key, base64")
	count := pflag.IntP("count", "c", 4, "number of pings to send")
	padding := pflag.String("padding", "none", "message padding: none, zero, or random")
	verbose := pflag.BoolP("verbose", "v", false, "enable debug logging")
	pflag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	args := pflag.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Expected exactly one address argument")
		printUsage()
		os.Exit(1)
	}

	cfg.listen = *listen
	cfg.protocol = *protocol
	cfg.fallback = *fallback
	cfg.keyringDir = *keyringDir
	cfg.passphrase = *passphrase
	cfg.count = *count
	cfg.padding = *padding
	cfg.addr = args[0]

	var err error
	if *remoteKey != "" {
		cfg.remoteKey, err = base64.StdEncoding.DecodeString(*remoteKey)
		if err != nil || len(cfg.remoteKey) != crypto.DHKeySize {
			fmt.Fprintln(os.Stderr, "Remote key must be 32 bytes of base64")
			os.Exit(1)
		}
	}
	if *psk != "" {
		cfg.psk, err = base64.StdEncoding.DecodeString(*psk)
		if err != nil || len(cfg.psk) != noise.PSKSize {
			fmt.Fprintln(os.Stderr, "PSK must be 32 bytes of base64")
			os.Exit(1)
		}
	}
	return cfg
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: "+os.Args[0]+" [OPTION]... ADDRESS")
	fmt.Fprintln(os.Stderr, "Flags:")
	pflag.PrintDefaults()
	fmt.Fprintln(os.Stderr, "Examples:")
	fmt.Fprintln(os.Stderr, "    "+os.Args[0]+" --listen :9450")
	fmt.Fprintln(os.Stderr, "    "+os.Args[0]+" -p Noise_XX_25519_ChaChaPoly_BLAKE2s -k ~/.noiseping --passphrase secret host:9450")
}

// buildOptions assembles link options from flags, sourcing or creating the
// static key through the key ring when one is configured.
func buildOptions(cfg config) (*link.Options, *keyring.Ring, error) {
	opts := &link.Options{
		Protocols:       []string{cfg.protocol},
		RemoteStaticKey: cfg.remoteKey,
		PreSharedKey:    cfg.psk,
	}
	if cfg.fallback {
		proto, err := noise.LookupProtocol(cfg.protocol)
		if err != nil {
			return nil, nil, err
		}
		opts.Protocols = append(opts.Protocols,
			fmt.Sprintf("Noise_XXfallback_%s_%s_%s",
				proto.Suite.DH.Name(), proto.Suite.Cipher.Name(), proto.Suite.Hash.Name()))
	}

	switch cfg.padding {
	case "none":
		opts.Padding = link.PaddingNone
	case "zero":
		opts.Padding = link.PaddingZero
	case "random":
		opts.Padding = link.PaddingRandom
	default:
		return nil, nil, fmt.Errorf("unknown padding mode %q", cfg.padding)
	}

	var ring *keyring.Ring
	if cfg.keyringDir != "" {
		if cfg.passphrase == "" {
			return nil, nil, fmt.Errorf("--keyring requires --passphrase")
		}
		var err error
		ring, err = keyring.Open(cfg.keyringDir, []byte(cfg.passphrase))
		if err != nil {
			return nil, nil, err
		}
		if ring.Has(staticKeyID) {
			if err := opts.LoadStaticKey(ring, staticKeyID); err != nil {
				ring.Close()
				return nil, nil, err
			}
		} else {
			kp, err := crypto.GenerateKeyPair(rand.Reader)
			if err != nil {
				ring.Close()
				return nil, nil, err
			}
			opts.StaticKeyPair = kp
			if err := opts.SaveStaticKey(ring, staticKeyID); err != nil {
				ring.Close()
				return nil, nil, err
			}
			logrus.WithField("public_key",
				base64.StdEncoding.EncodeToString(kp.Public[:])).Info("Generated static key")
		}
	} else if needsStatic(cfg.protocol) {
		kp, err := crypto.GenerateKeyPair(rand.Reader)
		if err != nil {
			return nil, nil, err
		}
		opts.StaticKeyPair = kp
		logrus.WithField("public_key",
			base64.StdEncoding.EncodeToString(kp.Public[:])).Info("Using throwaway static key")
	}
	return opts, ring, nil
}

func needsStatic(protocol string) bool {
	proto, err := noise.LookupProtocol(protocol)
	if err != nil {
		return false
	}
	return !proto.Pattern.EphemeralOnly
}

func runServer(addr string, opts *link.Options) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer listener.Close()
	logrus.WithField("addr", listener.Addr()).Info("Listening")

	for {
		conn, err := listener.Accept()
		if err != nil {
			return err
		}
		go serve(conn, opts)
	}
}

// serve echoes messages on one connection until it closes.
func serve(conn net.Conn, opts *link.Options) {
	session, err := link.Server(conn, opts)
	if err != nil {
		logrus.WithError(err).WithField("remote", conn.RemoteAddr()).Warn("Handshake failed")
		conn.Close()
		return
	}
	defer session.Close()

	buf := make([]byte, session.MaxPayload())
	for {
		n, err := session.Read(buf)
		if err != nil {
			if err != io.EOF {
				logrus.WithError(err).Debug("Session ended")
			}
			return
		}
		if _, err := session.Write(buf[:n]); err != nil {
			logrus.WithError(err).Warn("Echo failed")
			return
		}
	}
}

func runClient(addr string, opts *link.Options, count int) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	session, err := link.Client(conn, opts)
	if err != nil {
		conn.Close()
		return err
	}
	defer session.Close()

	logrus.WithFields(logrus.Fields{
		"protocol": session.Protocol(),
		"addr":     addr,
	}).Info("Connected")
	if rs := session.RemoteStatic(); rs != nil {
		logrus.WithField("remote_key",
			base64.StdEncoding.EncodeToString(rs)).Info("Peer identity")
	}

	buf := make([]byte, session.MaxPayload())
	for i := 1; i <= count; i++ {
		msg := fmt.Sprintf("ping %d", i)
		start := time.Now()
		if _, err := session.Write([]byte(msg)); err != nil {
			return err
		}
		n, err := session.Read(buf)
		if err != nil {
			return err
		}
		if string(buf[:n]) != msg {
			return fmt.Errorf("echo mismatch: sent %q, got %q", msg, buf[:n])
		}
		fmt.Printf("%d bytes from %s: seq=%d time=%v\n", n, addr, i, time.Since(start).Round(time.Microsecond))
	}
	return nil
}
