package aapns

import (
	"crypto/tls"
	"time"

	"github.com/sirupsen/logrus"
)

// Defaults for Config, grounded on spec.md section 6: the body size bound
// and free-window threshold an APNs-style endpoint expects, and the
// teacher's handshake timeout (conn.go's Dialer dials with a bare net.Conn
// and leaves timeouts to the caller; spec.md section 6 pins this one down
// to 5 seconds).
const (
	DefaultMaxPayloadSize    = 5120
	DefaultRequiredFreeSpace = 6000
	DefaultHandshakeTimeout  = 5 * time.Second
)

// Config configures a Connection. TLS configuration (client certificate,
// key, and trust anchors) is the embedding layer's responsibility per
// spec.md section 1 — Config only carries the finished *tls.Config
// through to the dialer.
type Config struct {
	// BaseURL is the scheme+host+port the connection dials, e.g.
	// "https://api.push.apple.com:443". Only the host and port are used
	// for dialing; the host (with any port as written) is reused as every
	// request's :authority. The scheme is not used: :scheme is always
	// "https".
	BaseURL string

	// TLSConfig carries the client certificate and trust anchors. Its
	// NextProtos is overwritten to exactly []string{"h2"} by Open.
	TLSConfig *tls.Config

	// MaxPayloadSize bounds request bodies (spec.md section 6). Zero means
	// DefaultMaxPayloadSize.
	MaxPayloadSize int

	// RequiredFreeSpace is the outbound connection flow-control threshold
	// at or below which Blocked reports true. Zero means DefaultRequiredFreeSpace.
	RequiredFreeSpace int

	// HandshakeTimeout bounds the TCP dial + TLS handshake. Zero means
	// DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// PingInterval, if non-zero, makes the writer send an HTTP/2 PING
	// every interval to detect a dead peer sooner than TCP would. This is
	// not called for by spec.md, but both the teacher's conn.go and
	// client.go implement one on exactly this kind of long-lived
	// multiplexed connection; zero (the default) disables it, matching
	// spec.md's silence on keepalives.
	PingInterval time.Duration

	// Logger receives structured connection-lifecycle logging (dropped
	// frames, GOAWAY, reader/writer termination). A nil Logger uses
	// logrus's standard logger.
	Logger *logrus.Entry
}

func (c Config) withDefaults() Config {
	if c.MaxPayloadSize <= 0 {
		c.MaxPayloadSize = DefaultMaxPayloadSize
	}
	if c.RequiredFreeSpace <= 0 {
		c.RequiredFreeSpace = DefaultRequiredFreeSpace
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Logger == nil {
		c.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return c
}
