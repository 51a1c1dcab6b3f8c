package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"arcweb/cmd/internal/store"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer accepts sockets, answers hello with hello_ack and echoes other frames.
type fakeServer struct {
	mu       sync.Mutex
	auth     []string
	open     int
	accepted int
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{Subprotocols: []string{Subprotocol}})
	if err != nil {
		return
	}
	f.mu.Lock()
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	f.open++
	f.accepted++
	n := f.accepted
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.open--
		f.mu.Unlock()
	}()

	ctx := context.Background()
	for {
		env, err := readEnvelope(ctx, conn)
		if err != nil {
			return
		}
		reply := env
		if env.Type == TypeHello {
			reply, _ = NewEnvelope(TypeHelloAck, HelloAckPayload{SessionID: fmt.Sprintf("sess-%d", n)}, time.Now())
		}
		b, _ := json.Marshal(reply)
		if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
			return
		}
	}
}

func (f *fakeServer) snapshot() (auth []string, open int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.auth...), f.open
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func testConfig(url string) Config {
	return Config{
		URL:              url,
		HandshakeTimeout: 2 * time.Second,
		WriteTimeout:     time.Second,
		ReconnectMin:     10 * time.Millisecond,
		ReconnectMax:     50 * time.Millisecond,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startProvider(t *testing.T, cfg Config, st *store.Store, reg prometheus.Registerer, opts ...ProviderOption) *Provider {
	t.Helper()
	p, err := NewProvider(cfg, st, quietLogger(), reg, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return p
}

func TestProvider_FollowsAccessToken(t *testing.T) {
	fs := &fakeServer{}
	srv := httptest.NewServer(fs)
	defer srv.Close()

	st := store.New(quietLogger())
	p := startProvider(t, testConfig(wsURL(srv)), st, nil)

	_, err := p.Conn()
	require.ErrorIs(t, err, ErrNoSocket)

	st.Dispatch(store.SetAccessToken{Token: "tok-a"})
	require.Eventually(t, func() bool { _, err := p.Conn(); return err == nil }, 2*time.Second, 10*time.Millisecond)
	first, _ := p.Conn()
	assert.Equal(t, "sess-1", first.ID())

	st.Dispatch(store.SetAccessToken{Token: "tok-b"})
	require.Eventually(t, func() bool {
		s, err := p.Conn()
		return err == nil && s.ID() == "sess-2"
	}, 2*time.Second, 10*time.Millisecond)
	<-first.Done()

	auth, _ := fs.snapshot()
	assert.Equal(t, []string{"Bearer tok-a", "Bearer tok-b"}, auth)

	st.Dispatch(store.ClearToken{})
	require.Eventually(t, func() bool { _, err := p.Conn(); return err == ErrNoSocket }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { _, open := fs.snapshot(); return open == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestProvider_IgnoresUnrelatedDispatches(t *testing.T) {
	fs := &fakeServer{}
	srv := httptest.NewServer(fs)
	defer srv.Close()

	st := store.New(quietLogger())
	st.Dispatch(store.SetAccessToken{Token: "tok"})
	p := startProvider(t, testConfig(wsURL(srv)), st, nil)

	require.Eventually(t, func() bool { _, err := p.Conn(); return err == nil }, 2*time.Second, 10*time.Millisecond)
	st.Dispatch(store.ClearUser{})
	st.Dispatch(store.FetchCurrentUserPending{})

	time.Sleep(50 * time.Millisecond)
	auth, _ := fs.snapshot()
	assert.Len(t, auth, 1)
}

func TestSession_SendRoundTrip(t *testing.T) {
	srv := httptest.NewServer(&fakeServer{})
	defer srv.Close()

	st := store.New(quietLogger())
	st.Dispatch(store.SetAccessToken{Token: "tok"})
	p := startProvider(t, testConfig(wsURL(srv)), st, nil)

	require.Eventually(t, func() bool { _, err := p.Conn(); return err == nil }, 2*time.Second, 10*time.Millisecond)
	s, _ := p.Conn()

	sent, err := s.Send(context.Background(), TypeConversationJoin, map[string]string{"conversation_id": "c-1"})
	require.NoError(t, err)
	assert.Len(t, sent.ID, 26)

	select {
	case got := <-s.Messages():
		assert.Equal(t, sent.ID, got.ID)
		assert.Equal(t, TypeConversationJoin, got.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no echo")
	}
}

func TestProvider_ReconnectsAfterDrop(t *testing.T) {
	srv := httptest.NewServer(&fakeServer{})
	defer srv.Close()

	reg := prometheus.NewRegistry()
	st := store.New(quietLogger())
	st.Dispatch(store.SetAccessToken{Token: "tok"})

	p := startProvider(t, testConfig(wsURL(srv)), st, reg)
	require.Eventually(t, func() bool { _, err := p.Conn(); return err == nil }, 2*time.Second, 10*time.Millisecond)
	first, _ := p.Conn()

	// Closing from the client side looks like a drop to the provider.
	first.shutdown(websocket.StatusGoingAway, "test drop")
	<-first.Done()

	require.Eventually(t, func() bool {
		s, err := p.Conn()
		return err == nil && s != first
	}, 2*time.Second, 10*time.Millisecond)
	assert.InDelta(t, 2, testutil.ToFloat64(p.dials.WithLabelValues("success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.connected), 0)
}

// burstServer completes the handshake and then writes its message_new frames back to back.
type burstServer struct {
	frames int

	mu       sync.Mutex
	accepted int
}

func (b *burstServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{Subprotocols: []string{Subprotocol}})
	if err != nil {
		return
	}
	b.mu.Lock()
	b.accepted++
	b.mu.Unlock()

	ctx := context.Background()
	if _, err := readEnvelope(ctx, conn); err != nil {
		return
	}
	ack, _ := NewEnvelope(TypeHelloAck, HelloAckPayload{SessionID: "sess-burst"}, time.Now())
	frames := []Envelope{ack}
	for i := range b.frames {
		env, _ := NewEnvelope(TypeMessageNew, map[string]int{"seq": i}, time.Now())
		frames = append(frames, env)
	}
	for _, env := range frames {
		raw, _ := json.Marshal(env)
		if err := conn.Write(ctx, websocket.MessageText, raw); err != nil {
			return
		}
	}
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func (b *burstServer) connections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accepted
}

func TestProvider_FullInboxDropsWithoutReconnecting(t *testing.T) {
	bs := &burstServer{frames: inboxSize + 44}
	srv := httptest.NewServer(bs)
	defer srv.Close()

	reg := prometheus.NewRegistry()
	st := store.New(quietLogger())
	st.Dispatch(store.SetAccessToken{Token: "tok"})
	p := startProvider(t, testConfig(wsURL(srv)), st, reg)

	require.Eventually(t, func() bool { _, err := p.Conn(); return err == nil }, 2*time.Second, 10*time.Millisecond)
	s, _ := p.Conn()
	require.Eventually(t, func() bool { return s.Dropped() == 44 }, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, bs.connections())
	assert.Nil(t, s.Err())
	assert.InDelta(t, 44, testutil.ToFloat64(p.dropped), 0)
	assert.Len(t, s.Messages(), inboxSize)
}

func TestProvider_MessageHandlerDrainsSession(t *testing.T) {
	bs := &burstServer{frames: 2 * inboxSize}
	srv := httptest.NewServer(bs)
	defer srv.Close()

	var (
		mu   sync.Mutex
		seen int
	)
	handler := func(env Envelope) {
		mu.Lock()
		defer mu.Unlock()
		if env.Type == TypeMessageNew {
			seen++
		}
	}

	st := store.New(quietLogger())
	st.Dispatch(store.SetAccessToken{Token: "tok"})
	p := startProvider(t, testConfig(wsURL(srv)), st, nil, WithMessageHandler(handler))

	require.Eventually(t, func() bool { _, err := p.Conn(); return err == nil }, 2*time.Second, 10*time.Millisecond)
	s, _ := p.Conn()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return uint64(seen)+s.Dropped() == uint64(bs.frames)
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Positive(t, seen)
	mu.Unlock()
	assert.Equal(t, 1, bs.connections())
}

func TestEnvelope_TimestampAlwaysEncoded(t *testing.T) {
	raw, err := json.Marshal(Envelope{V: Version, Type: TypeHello})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"ts":"0001-01-01T00:00:00Z"`)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env, err := NewEnvelope(TypeHello, nil, now)
	require.NoError(t, err)
	raw, err = json.Marshal(env)
	require.NoError(t, err)

	var back Envelope
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, now.Equal(back.TS))
}

func TestProvider_RetriesFailedDial(t *testing.T) {
	var (
		mu    sync.Mutex
		tries int
	)
	fs := &fakeServer{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		tries++
		n := tries
		mu.Unlock()
		if n < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		fs.ServeHTTP(w, r)
	}))
	defer srv.Close()

	st := store.New(quietLogger())
	st.Dispatch(store.SetAccessToken{Token: "tok"})
	p := startProvider(t, testConfig(wsURL(srv)), st, nil)

	require.Eventually(t, func() bool { _, err := p.Conn(); return err == nil }, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, 3, tries)
	mu.Unlock()
}

func TestDial_RequiresSubprotocol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		_, _, _ = conn.Read(context.Background())
	}))
	defer srv.Close()

	_, err := dial(context.Background(), testConfig(wsURL(srv)), "tok", quietLogger(), nil)
	require.ErrorIs(t, err, ErrSubprotocol)
}

func TestDial_HandshakeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{Subprotocols: []string{Subprotocol}})
		if err != nil {
			return
		}
		ctx := context.Background()
		_, _ = readEnvelope(ctx, conn)
		env, _ := NewEnvelope(TypeError, ErrorPayload{Code: "unauthorized", Message: "bad token"}, time.Now())
		b, _ := json.Marshal(env)
		_ = conn.Write(ctx, websocket.MessageText, b)
		_, _, _ = conn.Read(ctx)
	}))
	defer srv.Close()

	_, err := dial(context.Background(), testConfig(wsURL(srv)), "tok", quietLogger(), nil)
	var serr *ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "unauthorized", serr.Code)
}

func TestNewProvider_ValidatesURL(t *testing.T) {
	_, err := NewProvider(Config{URL: "http://example.com/ws"}, store.New(nil), nil, nil)
	require.Error(t, err)
}

func TestEnvelopeValidate(t *testing.T) {
	env, err := NewEnvelope(TypeHello, struct{}{}, time.Now())
	require.NoError(t, err)
	require.NoError(t, env.Validate())

	env.V = "v2"
	require.Error(t, env.Validate())

	env.V, env.Type = Version, "bogus"
	require.Error(t, env.Validate())
}
