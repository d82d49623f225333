package aapns

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hde/aapns-go/internal/frame"
)

// Connection is one TLS+HTTP/2 socket to an APNs-style endpoint, driven by
// a background reader goroutine and a background writer goroutine. Its
// zero value is not usable; build one with Open.
//
// The overall shape — one net.Conn, one bufio.Reader/Writer pair, a
// please-write signal channel, and a finalize goroutine that tears down
// outstanding work once both loops exit — is grounded on the teacher's
// Client/clientConn pairing in client.go and conn.go, generalized from
// fasthttp's connection-pool model to the single long-lived connection
// spec.md section 1 calls for.
type Connection struct {
	cfg       Config
	conn      net.Conn
	br        *bufio.Reader
	bw        *bufio.Writer
	codec     *frame.HeaderCodec
	codecMu   sync.Mutex
	authority string
	log       *logrus.Entry

	streams *streamTable

	nextIDMu sync.Mutex
	nextID   uint32

	maxConcurrentStreams int32
	outboundWindow       int32
	openStreams          int32

	closing atomic.Bool
	closed  atomic.Bool

	outMu  sync.Mutex
	outbox []*frame.Header
	wake   chan struct{}

	shutdownOnce sync.Once
	stopCh       chan struct{}
	readerDone   chan struct{}
	writerDone   chan struct{}
	doneCh       chan struct{}
	shutdownErr  error
}

// Open dials cfg.BaseURL, performs the TLS handshake with ALPN "h2", sends
// the client connection preface and initial SETTINGS, synchronously waits
// for and acknowledges the peer's first SETTINGS frame, and starts the
// background reader, writer and finalize goroutines. Grounded on the
// teacher's Dialer/ClientOpts handshake in client.go, generalized to the
// client-only ALPN-checked handshake of spec.md section 4.1.
func Open(ctx context.Context, cfg Config) (*Connection, error) {
	cfg = cfg.withDefaults()

	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("aapns: invalid BaseURL %q: %w", cfg.BaseURL, err)
	}
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "443")
	}

	dialer := &net.Dialer{Timeout: cfg.HandshakeTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("aapns: dial %s: %w", addr, err)
	}

	tlsConf := cfg.TLSConfig.Clone()
	if tlsConf == nil {
		tlsConf = &tls.Config{}
	}
	tlsConf.NextProtos = []string{"h2"}
	if tlsConf.ServerName == "" {
		tlsConf.ServerName = u.Hostname()
	}

	tlsConn := tls.Client(rawConn, tlsConf)
	if err := tlsConn.SetDeadline(time.Now().Add(cfg.HandshakeTimeout)); err != nil {
		rawConn.Close()
		return nil, err
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, fmt.Errorf("aapns: TLS handshake: %w", err)
	}
	if tlsConn.ConnectionState().NegotiatedProtocol != "h2" {
		tlsConn.Close()
		return nil, fmt.Errorf("aapns: peer did not negotiate h2 via ALPN")
	}
	if err := tlsConn.SetDeadline(time.Time{}); err != nil {
		tlsConn.Close()
		return nil, err
	}

	c := &Connection{
		cfg:                  cfg,
		conn:                 tlsConn,
		br:                   bufio.NewReaderSize(tlsConn, 64*1024),
		bw:                   bufio.NewWriterSize(tlsConn, 64*1024),
		codec:                frame.NewHeaderCodec(),
		authority:            u.Host,
		log:                  cfg.Logger,
		streams:              newStreamTable(),
		maxConcurrentStreams: 1 << 20,
		outboundWindow:       65535,
		wake:                 make(chan struct{}, 1),
		stopCh:               make(chan struct{}),
		readerDone:           make(chan struct{}),
		writerDone:           make(chan struct{}),
		doneCh:               make(chan struct{}),
	}

	if err := c.handshake(); err != nil {
		tlsConn.Close()
		return nil, err
	}

	go c.readLoop()
	go c.writeLoop()
	go c.finalize()

	return c, nil
}

// handshake performs the synchronous part of connection setup: preface,
// local SETTINGS, a connection-window top-up, then blocks for the peer's
// first SETTINGS frame and acks it. Everything after this point flows
// through the asynchronous reader/writer loops.
func (c *Connection) handshake() error {
	if _, err := c.bw.Write(frame.Preface); err != nil {
		return fmt.Errorf("aapns: write preface: %w", err)
	}

	settingsHeader := frame.Acquire()
	frame.NewSettings().Encode(settingsHeader)
	if err := settingsHeader.WriteTo(c.bw); err != nil {
		frame.Release(settingsHeader)
		return fmt.Errorf("aapns: write initial SETTINGS: %w", err)
	}
	frame.Release(settingsHeader)

	windowHeader := frame.WindowUpdateFrame(0, 1<<24)
	if err := windowHeader.WriteTo(c.bw); err != nil {
		frame.Release(windowHeader)
		return fmt.Errorf("aapns: write initial WINDOW_UPDATE: %w", err)
	}
	frame.Release(windowHeader)

	if err := c.bw.Flush(); err != nil {
		return fmt.Errorf("aapns: flush handshake: %w", err)
	}

	for {
		h, err := frame.ReadFrom(c.br, frame.DefaultMaxFrameSize)
		if err != nil {
			return fmt.Errorf("aapns: read peer SETTINGS: %w", err)
		}
		if h.Type != frame.TypeSettings {
			frame.Release(h)
			continue
		}
		st := frame.DecodeSettings(h)
		frame.Release(h)
		if st.Ack {
			continue
		}
		c.applySettings(st)

		ack := frame.AckSettings()
		if err := ack.WriteTo(c.bw); err != nil {
			frame.Release(ack)
			return fmt.Errorf("aapns: ack peer SETTINGS: %w", err)
		}
		frame.Release(ack)
		return c.bw.Flush()
	}
}

func (c *Connection) applySettings(st *frame.Settings) {
	if v, ok := st.Values[frame.SettingMaxConcurrentStreams]; ok {
		atomic.StoreInt32(&c.maxConcurrentStreams, int32(v))
	}
	if v, ok := st.Values[frame.SettingHeaderTableSize]; ok {
		c.codecMu.Lock()
		c.codec.SetPeerMaxTableSize(v)
		c.codecMu.Unlock()
	}
}

// Blocked reports whether this connection should be avoided for new work:
// it is closing or closed, its outbound flow-control window has fallen
// to or below cfg.RequiredFreeSpace, or it is already at its peer's advertised
// stream-concurrency limit. Grounded on spec.md section 5's back-pressure
// predicate.
func (c *Connection) Blocked() bool {
	if c.closing.Load() || c.closed.Load() {
		return true
	}
	if int(atomic.LoadInt32(&c.outboundWindow)) <= c.cfg.RequiredFreeSpace {
		return true
	}
	if atomic.LoadInt32(&c.openStreams) >= atomic.LoadInt32(&c.maxConcurrentStreams) {
		return true
	}
	return false
}

// Close begins a graceful shutdown (if not already underway) and blocks
// until the connection has fully torn down: both loops exited and every
// outstanding Post has been failed.
func (c *Connection) Close() error {
	c.shutdown(ErrClosed)
	<-c.doneCh
	return nil
}

// shutdown marks the connection closing (finalize later marks it closed)
// and closes the underlying socket, which unblocks a reader goroutine parked in a blocking Read.
// Idempotent: the first call's error sticks. Grounded on the teacher's
// Close/closeConns pattern in conn.go, unifying graceful close and
// abrupt I/O-error close into the same path.
func (c *Connection) shutdown(err error) {
	c.shutdownOnce.Do(func() {
		c.closing.Store(true)
		c.shutdownErr = err
		c.conn.Close()
		close(c.stopCh)
	})
}

// finalize waits for both loops to exit, then fails every stream still
// waiting on a response and marks the connection fully closed.
func (c *Connection) finalize() {
	<-c.readerDone
	<-c.writerDone

	c.log.WithError(c.shutdownErr).Debug("reader and writer exited, connection closed")
	c.closing.Store(true)
	c.closed.Store(true)
	c.failAll(c.shutdownErr)
	close(c.doneCh)
}

// failAll wakes every outstanding stream waiter with a CANCEL reset event,
// so Post's await loop returns promptly (with a *ProtocolFailure, which
// matches ErrClosed) instead of blocking until its deadline. err is not
// passed on to the waiters.
func (c *Connection) failAll(err error) {
	for _, r := range c.streams.drainAll() {
		r.push(streamEvent{kind: evReset, resetCode: frame.ErrCodeCancel})
	}
	_ = err
}

// maxStreamID is the largest value a 31-bit stream identifier can hold
// (RFC 7540 section 5.1.1). allocateStream only hands out odd IDs no
// larger than maxStreamID-1, so the last ID it returns is 2^31-3;
// maxStreamID itself is never used.
const maxStreamID = 1<<31 - 1

// allocateStream reserves the next client-initiated stream id (odd,
// monotonically increasing per RFC 7540 section 5.1.1) and registers its
// record in the stream table. ok is false once the 31-bit ID space is
// exhausted, per spec.md section 4.6's Open -> Closing transition on
// exhausted stream IDs; the connection starts closing and Post reports
// ErrClosed rather than wrapping around into a reused ID.
func (c *Connection) allocateStream() (id uint32, rec *streamRecord, ok bool) {
	c.nextIDMu.Lock()
	next := c.nextID + 2
	if c.nextID == 0 {
		next = 1
	}
	if next > maxStreamID-1 {
		c.nextIDMu.Unlock()
		c.closing.Store(true)
		return 0, nil, false
	}
	c.nextID = next
	id = c.nextID
	c.nextIDMu.Unlock()

	atomic.AddInt32(&c.openStreams, 1)
	return id, c.streams.insert(id), true
}

// releaseStream removes id's record and decrements the open-stream count.
func (c *Connection) releaseStream(id uint32) {
	c.streams.remove(id)
	atomic.AddInt32(&c.openStreams, -1)
}

// enqueue appends h to the outbound frame queue and signals the writer.
func (c *Connection) enqueue(h *frame.Header) {
	c.outMu.Lock()
	c.outbox = append(c.outbox, h)
	c.outMu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// takeOutbox atomically removes and returns every currently queued frame.
func (c *Connection) takeOutbox() []*frame.Header {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if len(c.outbox) == 0 {
		return nil
	}
	out := c.outbox
	c.outbox = nil
	return out
}
