// Package apnstest provides an in-process fake APNs-style HTTP/2 endpoint
// for tests, grounded on original_source/tests/fake_apns_server.py: a
// device registry, a CreateDevice/Notifications pair, and the same
// BadDeviceToken-shaped 400 response for unknown tokens. Where the Python
// original hand-rolls an h2.H2Connection protocol, this version uses
// net/http/httptest with golang.org/x/net/http2 enabled, since Go's
// standard HTTP/2 server is itself part of the ecosystem this module's
// examples draw from.
package apnstest

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/net/http2"
)

// BadDeviceToken is the reason code the fake server returns for a token it
// does not recognize, matching aapns.errors.BadDeviceToken.codename in the
// original implementation.
const BadDeviceToken = "BadDeviceToken"

// Server is a fake APNs-style push endpoint listening on loopback TLS with
// h2 negotiated via ALPN.
type Server struct {
	*httptest.Server

	mu      sync.Mutex
	devices map[string][]json.RawMessage
	seq     int

	// Delay, if set, is applied to every /3/device/ request (not to
	// /malformed): a hook for
	// exercising deadline handling without needing real network latency.
	Delay func()

	active int32
	peak   int32
}

// New starts a fake server with no stream-concurrency cap. Callers should
// defer Close.
func New() *Server {
	return NewWithMaxConcurrentStreams(0)
}

// NewWithMaxConcurrentStreams starts a fake server that advertises
// SETTINGS_MAX_CONCURRENT_STREAMS=max to its clients (0 means the
// http2.Server default), for exercising spec.md section 8 property 7 and
// scenario S4. Callers should defer Close.
func NewWithMaxConcurrentStreams(max uint32) *Server {
	s := &Server{devices: make(map[string][]json.RawMessage)}

	mux := http.NewServeMux()
	mux.HandleFunc("/3/device/", s.handle)
	mux.HandleFunc("/malformed", s.handleMalformed)

	ts := httptest.NewUnstartedServer(mux)
	ts.EnableHTTP2 = true
	ts.TLS = &tls.Config{NextProtos: []string{"h2"}}
	if err := http2.ConfigureServer(ts.Config, &http2.Server{MaxConcurrentStreams: max}); err != nil {
		panic(err)
	}
	ts.StartTLS()

	s.Server = ts
	return s
}

// PeakConcurrency returns the highest number of requests this server has
// ever had in flight simultaneously.
func (s *Server) PeakConcurrency() int {
	return int(atomic.LoadInt32(&s.peak))
}

// CreateDevice registers a new device token and returns it.
func (s *Server) CreateDevice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	token := fmt.Sprintf("%064x", s.seq)
	s.devices[token] = nil
	return token
}

// Notifications returns every payload delivered to device so far.
func (s *Server) Notifications(device string) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]json.RawMessage(nil), s.devices[device]...)
}

// ClientTLSConfig returns a tls.Config trusting this server's certificate,
// for use as aapns.Config.TLSConfig in tests.
func (s *Server) ClientTLSConfig() *tls.Config {
	pool := x509.NewCertPool()
	pool.AddCert(s.Certificate())
	return &tls.Config{RootCAs: pool, NextProtos: []string{"h2"}}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	n := atomic.AddInt32(&s.active, 1)
	defer atomic.AddInt32(&s.active, -1)
	for {
		peak := atomic.LoadInt32(&s.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&s.peak, peak, n) {
			break
		}
	}

	if s.Delay != nil {
		s.Delay()
	}

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	token := strings.TrimPrefix(r.URL.Path, "/3/device/")
	var payload json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	apnsID := r.Header.Get("apns-id")
	if apnsID == "" {
		apnsID = "00000000-0000-0000-0000-000000000000"
	}

	s.mu.Lock()
	_, known := s.devices[token]
	if known {
		s.devices[token] = append(s.devices[token], payload)
	}
	s.mu.Unlock()

	w.Header().Set("apns-id", apnsID)
	if !known {
		body, _ := json.Marshal(map[string]string{
			"apns-id": apnsID,
			"reason":  BadDeviceToken,
		})
		w.WriteHeader(http.StatusBadRequest)
		w.Write(body)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// handleMalformed always answers 200 with a body that is not valid JSON,
// for exercising spec.md scenario S6 (*FormatError on a non-JSON body).
func (s *Server) handleMalformed(w http.ResponseWriter, r *http.Request) {
	io.Copy(io.Discard, r.Body)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("not-json"))
}
