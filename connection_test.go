package aapns_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hde/aapns-go"
	"github.com/hde/aapns-go/internal/apnstest"
)

func dial(t *testing.T, srv *apnstest.Server) *aapns.Connection {
	t.Helper()
	conn, err := aapns.Open(context.Background(), aapns.Config{
		BaseURL:   srv.URL,
		TLSConfig: srv.ClientTLSConfig(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPostDeliversToKnownDevice(t *testing.T) {
	srv := apnstest.New()
	defer srv.Close()

	conn := dial(t, srv)
	device := srv.CreateDevice()

	body, err := json.Marshal(map[string]any{"aps": map[string]any{"alert": "hi"}})
	require.NoError(t, err)

	req, err := conn.NewRequest("/3/device/"+device, nil, body, time.Time{})
	require.NoError(t, err)

	resp, err := conn.Post(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	notifications := srv.Notifications(device)
	require.Len(t, notifications, 1)
}

func TestPostEmptyBodyDecodesAsNull(t *testing.T) {
	srv := apnstest.New()
	defer srv.Close()

	conn := dial(t, srv)
	device := srv.CreateDevice()

	req, err := conn.NewRequest("/3/device/"+device, nil, []byte(`{}`), time.Time{})
	require.NoError(t, err)

	resp, err := conn.Post(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Nil(t, resp.Data)
}

func TestPostMalformedBodyReturnsFormatError(t *testing.T) {
	srv := apnstest.New()
	defer srv.Close()

	conn := dial(t, srv)

	req, err := conn.NewRequest("/malformed", nil, []byte(`{}`), time.Time{})
	require.NoError(t, err)

	_, err = conn.Post(context.Background(), req)
	var fe *aapns.FormatError
	require.ErrorAs(t, err, &fe)

	// The connection must remain usable for subsequent posts (S6).
	device := srv.CreateDevice()
	req2, err := conn.NewRequest("/3/device/"+device, nil, []byte(`{}`), time.Time{})
	require.NoError(t, err)
	resp, err := conn.Post(context.Background(), req2)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
}

func TestPostRespectsServerConcurrencyCap(t *testing.T) {
	const maxStreams = 10
	const total = 50

	srv := apnstest.NewWithMaxConcurrentStreams(maxStreams)
	defer srv.Close()
	srv.Delay = func() { time.Sleep(10 * time.Millisecond) }

	conn := dial(t, srv)

	var wg sync.WaitGroup
	errs := make([]error, total)
	for i := 0; i < total; i++ {
		device := srv.CreateDevice()
		wg.Add(1)
		go func(i int, device string) {
			defer wg.Done()
			req, err := conn.NewRequest("/3/device/"+device, nil, []byte(`{}`), time.Now().Add(5*time.Second))
			if err != nil {
				errs[i] = err
				return
			}
			// Retrying on ErrBlocked is the caller's job per spec.md section
			// 1 (retry orchestration is an external collaborator); the core
			// connection only ever reports Blocked advisory-style.
			for {
				_, err = conn.Post(context.Background(), req)
				if err != aapns.ErrBlocked {
					break
				}
				time.Sleep(time.Millisecond)
			}
			errs[i] = err
		}(i, device)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.LessOrEqual(t, srv.PeakConcurrency(), maxStreams)
}

func TestPostUnknownDeviceReturnsBadDeviceToken(t *testing.T) {
	srv := apnstest.New()
	defer srv.Close()

	conn := dial(t, srv)

	req, err := conn.NewRequest("/3/device/deadbeef", nil, []byte(`{}`), time.Time{})
	require.NoError(t, err)

	resp, err := conn.Post(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 400, resp.StatusCode)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	require.Equal(t, apnstest.BadDeviceToken, data["reason"])
}

func TestPostRespectsDeadline(t *testing.T) {
	srv := apnstest.New()
	defer srv.Close()
	srv.Delay = func() { time.Sleep(200 * time.Millisecond) }

	conn := dial(t, srv)
	device := srv.CreateDevice()

	req, err := conn.NewRequest("/3/device/"+device, nil, []byte(`{}`), time.Now().Add(20*time.Millisecond))
	require.NoError(t, err)

	_, err = conn.Post(context.Background(), req)
	require.ErrorIs(t, err, aapns.ErrTimeout)
}

func TestNewRequestRejectsOversizedBody(t *testing.T) {
	srv := apnstest.New()
	defer srv.Close()
	conn := dial(t, srv)

	big := make([]byte, aapns.DefaultMaxPayloadSize+1)
	_, err := conn.NewRequest("/3/device/abc", nil, big, time.Time{})
	require.Error(t, err)
}

func TestBlockedTripsOnOutboundWindowSpend(t *testing.T) {
	srv := apnstest.New()
	defer srv.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	srv.Delay = func() {
		close(started)
		<-release
	}
	defer close(release)

	conn, err := aapns.Open(context.Background(), aapns.Config{
		BaseURL:           srv.URL,
		TLSConfig:         srv.ClientTLSConfig(),
		MaxPayloadSize:    4096,
		RequiredFreeSpace: 65500,
	})
	require.NoError(t, err)
	defer conn.Close()

	device := srv.CreateDevice()
	req, err := conn.NewRequest("/3/device/"+device, nil, make([]byte, 4096), time.Time{})
	require.NoError(t, err)

	require.False(t, conn.Blocked())

	go conn.Post(context.Background(), req)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("request never reached the server")
	}

	require.True(t, conn.Blocked())
}

func TestBlockedAfterClose(t *testing.T) {
	srv := apnstest.New()
	defer srv.Close()

	conn, err := aapns.Open(context.Background(), aapns.Config{
		BaseURL:   srv.URL,
		TLSConfig: srv.ClientTLSConfig(),
	})
	require.NoError(t, err)

	require.False(t, conn.Blocked())
	require.NoError(t, conn.Close())
	require.True(t, conn.Blocked())
}

func TestCancelledPostFailsAndFreesStream(t *testing.T) {
	srv := apnstest.New()
	defer srv.Close()
	srv.Delay = func() { time.Sleep(200 * time.Millisecond) }

	conn := dial(t, srv)
	device := srv.CreateDevice()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := conn.NewRequest("/3/device/"+device, nil, []byte(`{}`), time.Time{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := conn.Post(ctx, req)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Post did not return after context cancellation")
	}

	// The connection is still usable: cancelling one Post must not corrupt
	// shared state or wedge a later one (spec.md section 8 property 6).
	req2, err := conn.NewRequest("/3/device/"+device, nil, []byte(`{}`), time.Time{})
	require.NoError(t, err)
	resp, err := conn.Post(context.Background(), req2)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
}

func TestOutstandingPostsFailClosedOnServerShutdown(t *testing.T) {
	srv := apnstest.New()
	defer srv.Close()
	srv.Delay = func() { time.Sleep(2 * time.Second) }

	conn := dial(t, srv)
	device := srv.CreateDevice()

	req, err := conn.NewRequest("/3/device/"+device, nil, []byte(`{}`), time.Time{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := conn.Post(context.Background(), req)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	// Force-closing the transport, rather than a graceful Close, is what
	// simulates the peer vanishing mid-flight (spec.md scenario S5).
	srv.CloseClientConnections()

	select {
	case err := <-done:
		require.ErrorIs(t, err, aapns.ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("Post hung after the peer closed the connection")
	}
}

func TestPostAfterCloseFails(t *testing.T) {
	srv := apnstest.New()
	defer srv.Close()

	conn, err := aapns.Open(context.Background(), aapns.Config{
		BaseURL:   srv.URL,
		TLSConfig: srv.ClientTLSConfig(),
	})
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	req, err := conn.NewRequest("/3/device/abc", nil, []byte(`{}`), time.Time{})
	require.NoError(t, err)

	_, err = conn.Post(context.Background(), req)
	require.ErrorIs(t, err, aapns.ErrBlocked)
}
