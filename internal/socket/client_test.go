package socket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer speaks just enough Engine.IO/Socket.IO to drive the client
type fakeServer struct {
	t *testing.T

	mu     sync.Mutex
	frames []string
	auth   []string
	conns  int
	onJoin func(ctx context.Context, conn *websocket.Conn, n int)
	joined chan string
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	fs := &fakeServer{t: t, joined: make(chan string, 16)}
	srv := httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(srv.Close)
	return fs, srv
}

func (fs *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/socket.io/" || r.URL.Query().Get("EIO") != "4" {
		http.NotFound(w, r)
		return
	}
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	fs.mu.Lock()
	fs.conns++
	n := fs.conns
	fs.auth = append(fs.auth, r.Header.Get("Authorization"))
	fs.mu.Unlock()

	ctx := r.Context()
	_ = conn.Write(ctx, websocket.MessageText, []byte(`0{"sid":"s1","pingInterval":25000,"pingTimeout":20000}`))

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		frame := string(data)
		fs.mu.Lock()
		fs.frames = append(fs.frames, frame)
		fs.mu.Unlock()

		switch {
		case strings.HasPrefix(frame, "40"):
			_ = conn.Write(ctx, websocket.MessageText, []byte(`40{"sid":"ns1"}`))
		case strings.HasPrefix(frame, `42["join_tenant"`):
			fs.joined <- frame
			if fs.onJoin != nil {
				fs.onJoin(ctx, conn, n)
			}
		}
	}
}

func (fs *fakeServer) recorded() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]string(nil), fs.frames...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for socket activity")
	}
	var zero T
	return zero
}

func TestClientJoinsTenantAndDispatches(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.onJoin = func(ctx context.Context, conn *websocket.Conn, _ int) {
		_ = conn.Write(ctx, websocket.MessageText, []byte("2"))
		_ = conn.Write(ctx, websocket.MessageText, []byte(`42["campaign_progress",{"campaignId":42,"status":"sent"}]`))
	}

	client := NewClient(Config{
		URL:      srv.URL,
		TenantID: "tenant-9",
		Token:    func() string { return "tok" },
	}, testLogger())

	events := make(chan json.RawMessage, 1)
	client.On("campaign_progress", func(p json.RawMessage) { events <- p })

	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	assert.Equal(t, `42["join_tenant","tenant-9"]`, waitFor(t, fs.joined))
	assert.JSONEq(t, `{"campaignId":42,"status":"sent"}`, string(waitFor(t, events)))
	assert.Equal(t, StateConnected, client.State())

	require.Eventually(t, func() bool {
		for _, f := range fs.recorded() {
			if f == "3" {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond, "expected pong")

	frames := fs.recorded()
	require.GreaterOrEqual(t, len(frames), 2)
	assert.Equal(t, `40{"token":"tok"}`, frames[0])
	fs.mu.Lock()
	assert.Equal(t, "Bearer tok", fs.auth[0])
	fs.mu.Unlock()
}

func TestClientRejoinsAfterReconnect(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.onJoin = func(ctx context.Context, conn *websocket.Conn, n int) {
		if n == 1 {
			// Drop the first connection right after the join
			_ = conn.Close(websocket.StatusGoingAway, "restart")
		}
	}

	client := NewClient(Config{
		URL:        srv.URL,
		TenantID:   "tenant-1",
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 20 * time.Millisecond,
	}, testLogger())

	connects := make(chan struct{}, 4)
	client.On(EventConnect, func(json.RawMessage) { connects <- struct{}{} })

	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	waitFor(t, fs.joined)
	waitFor(t, fs.joined)
	waitFor(t, connects)
	waitFor(t, connects)
}

func TestClientOffRemovesListener(t *testing.T) {
	client := NewClient(Config{URL: "http://localhost"}, testLogger())

	var calls int
	id := client.On("new_message", func(json.RawMessage) { calls++ })
	client.On("new_message", func(json.RawMessage) { calls += 10 })

	client.dispatch("new_message", nil)
	client.Off("new_message", id)
	client.Off("new_message", id)
	client.Off("unknown", 99)
	client.dispatch("new_message", nil)

	assert.Equal(t, 21, calls)
}

func TestClientListenerPanicRecovered(t *testing.T) {
	client := NewClient(Config{URL: "http://localhost"}, testLogger())

	var after bool
	client.On("x", func(json.RawMessage) { panic("boom") })
	client.On("x", func(json.RawMessage) { after = true })

	assert.NotPanics(t, func() { client.dispatch("x", nil) })
	assert.True(t, after)
}

func TestEmitNotConnected(t *testing.T) {
	client := NewClient(Config{URL: "http://localhost"}, testLogger())
	err := client.Emit(context.Background(), "join_tenant", "t")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConnectTwice(t *testing.T) {
	_, srv := newFakeServer(t)
	client := NewClient(Config{URL: srv.URL}, testLogger())

	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()
	assert.ErrorIs(t, client.Connect(context.Background()), ErrAlreadyStarted)
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{url: "http://api.example.com", want: "ws://api.example.com/socket.io/?EIO=4&transport=websocket"},
		{url: "https://api.example.com/", want: "wss://api.example.com/socket.io/?EIO=4&transport=websocket"},
		{url: "wss://api.example.com/rt", want: "wss://api.example.com/rt/?EIO=4&transport=websocket"},
		{url: "ftp://api.example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			c := NewClient(Config{URL: tt.url}, testLogger())
			got, err := c.endpoint()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
