package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/foxzi/zapdesk/internal/metrics"
)

// Local lifecycle events, dispatched to listeners like server events
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

// EventJoinTenant subscribes the connection to the tenant's room
const EventJoinTenant = "join_tenant"

const (
	defaultHandshakeTimeout = 10 * time.Second
	readLimit               = 1 << 20
)

var (
	ErrNotConnected   = errors.New("socket is not connected")
	ErrAlreadyStarted = errors.New("socket client already started")
)

// State is the connection state of the client
type State int32

// Connection states
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Handler receives the event payload. Handlers run on the read goroutine.
type Handler func(payload json.RawMessage)

// ListenerID identifies a registered handler
type ListenerID uint64

// Service is the socket surface used by the rest of the application
type Service interface {
	On(event string, fn Handler) ListenerID
	Off(event string, id ListenerID)
	Emit(ctx context.Context, event string, payload any) error
	State() State
}

// Config configures a Client
type Config struct {
	URL        string
	TenantID   string
	Token      func() string
	MinBackoff time.Duration
	MaxBackoff time.Duration

	// HandshakeTimeout bounds the dial and the Engine.IO/Socket.IO open
	HandshakeTimeout time.Duration
	HTTPClient       *http.Client
}

type listener struct {
	id ListenerID
	fn Handler
}

// Client is a Socket.IO v4 client over the WebSocket transport.
// It reconnects until closed and re-joins the tenant room on every connect.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.RWMutex
	listeners map[string][]listener
	nextID    ListenerID

	connMu sync.Mutex
	conn   *websocket.Conn

	state atomic.Int32

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewClient creates a new socket client
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:       cfg,
		logger:    logger.With("component", "socket"),
		listeners: make(map[string][]listener),
	}
}

// On registers fn for event. The same function may be registered more
// than once; each registration gets its own ID.
func (c *Client) On(event string, fn Handler) ListenerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.listeners[event] = append(c.listeners[event], listener{id: c.nextID, fn: fn})
	return c.nextID
}

// Off removes a listener. Unknown IDs are ignored.
func (c *Client) Off(event string, id ListenerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ls := c.listeners[event]
	for i, l := range ls {
		if l.id == id {
			c.listeners[event] = append(ls[:i:i], ls[i+1:]...)
			break
		}
	}
	if len(c.listeners[event]) == 0 {
		delete(c.listeners, event)
	}
}

// State returns the current connection state
func (c *Client) State() State {
	return State(c.state.Load())
}

// Connect starts the connection loop in the background
func (c *Client) Connect(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.done != nil {
		return ErrAlreadyStarted
	}
	if _, err := c.endpoint(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx)
	return nil
}

// Close stops the connection loop and waits for it to exit
func (c *Client) Close() error {
	c.runMu.Lock()
	cancel, done := c.cancel, c.done
	c.runMu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Emit sends an event to the server
func (c *Client) Emit(ctx context.Context, event string, payload any) error {
	conn := c.currentConn()
	if conn == nil {
		return ErrNotConnected
	}
	frame, err := encodeEvent(event, payload)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	bo := &Backoff{Min: c.cfg.MinBackoff, Max: c.cfg.MaxBackoff, Factor: 2, Jitter: 0.25}
	for {
		err := c.session(ctx, bo)
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return
		}

		delay := bo.Next()
		c.logger.Warn("socket disconnected, reconnecting", "error", err, "delay", delay)
		metrics.IncSocketReconnect()

		select {
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return
		case <-time.After(delay):
		}
	}
}

// session runs one connection until it fails
func (c *Client) session(ctx context.Context, bo *Backoff) error {
	c.setState(StateConnecting)
	defer c.setState(StateDisconnected)

	endpoint, err := c.endpoint()
	if err != nil {
		return err
	}

	header := http.Header{}
	token := c.token()
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.handshakeTimeout())
	conn, _, err := websocket.Dial(dialCtx, endpoint, &websocket.DialOptions{
		HTTPHeader: header,
		HTTPClient: c.cfg.HTTPClient,
	})
	cancel()
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	hs, err := c.handshake(ctx, conn, token)
	if err != nil {
		return err
	}

	c.setConn(conn)
	defer c.setConn(nil)

	if c.cfg.TenantID != "" {
		if err := c.Emit(ctx, EventJoinTenant, c.cfg.TenantID); err != nil {
			return err
		}
	}

	bo.Reset()
	c.setState(StateConnected)
	c.logger.Info("socket connected", "sid", hs.SID, "tenant_id", c.cfg.TenantID)

	return c.readLoop(ctx, conn, hs)
}

func (c *Client) handshake(ctx context.Context, conn *websocket.Conn, token string) (handshake, error) {
	var hs handshake

	ctx, cancel := context.WithTimeout(ctx, c.handshakeTimeout())
	defer cancel()

	_, frame, err := conn.Read(ctx)
	if err != nil {
		return hs, fmt.Errorf("read open packet: %w", err)
	}
	p, err := decodePacket(frame)
	if err != nil || p.engine != eioOpen {
		return hs, fmt.Errorf("unexpected open packet %q", frame)
	}
	if err := json.Unmarshal(p.data, &hs); err != nil {
		return hs, fmt.Errorf("decode open packet: %w", err)
	}

	var auth any
	if token != "" {
		auth = map[string]string{"token": token}
	}
	connect, err := encodeConnect(auth)
	if err != nil {
		return hs, err
	}
	if err := conn.Write(ctx, websocket.MessageText, connect); err != nil {
		return hs, fmt.Errorf("send connect: %w", err)
	}

	for {
		_, frame, err := conn.Read(ctx)
		if err != nil {
			return hs, fmt.Errorf("await connect: %w", err)
		}
		p, err := decodePacket(frame)
		if err != nil {
			continue
		}
		switch {
		case p.engine == eioPing:
			if err := conn.Write(ctx, websocket.MessageText, []byte{eioPong}); err != nil {
				return hs, err
			}
		case p.engine == eioMessage && p.kind == sioConnect:
			return hs, nil
		case p.engine == eioMessage && p.kind == sioConnectError:
			return hs, fmt.Errorf("connect rejected: %s", p.data)
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, hs handshake) error {
	timeout := hs.readTimeout()
	for {
		readCtx, cancel := context.WithTimeout(ctx, timeout)
		_, frame, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		p, err := decodePacket(frame)
		if err != nil {
			c.logger.Debug("dropping malformed packet", "error", err)
			continue
		}

		switch p.engine {
		case eioPing:
			if err := conn.Write(ctx, websocket.MessageText, []byte{eioPong}); err != nil {
				return fmt.Errorf("pong: %w", err)
			}
		case eioClose:
			return errors.New("server closed the connection")
		case eioMessage:
			switch p.kind {
			case sioEvent:
				metrics.IncSocketEvent(p.event)
				c.dispatch(p.event, p.data)
			case sioDisconnect:
				return errors.New("server disconnected the namespace")
			}
		}
	}
}

func (c *Client) dispatch(event string, payload json.RawMessage) {
	c.mu.RLock()
	ls := append([]listener(nil), c.listeners[event]...)
	c.mu.RUnlock()

	for _, l := range ls {
		c.call(event, l.fn, payload)
	}
}

func (c *Client) call(event string, fn Handler, payload json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("socket listener panicked", "event", event, "panic", r)
		}
	}()
	fn(payload)
}

func (c *Client) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old == s {
		return
	}
	metrics.SetSocketConnected(s == StateConnected)
	switch {
	case s == StateConnected:
		c.dispatch(EventConnect, nil)
	case old == StateConnected:
		c.dispatch(EventDisconnect, nil)
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

func (c *Client) currentConn() *websocket.Conn {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn
}

func (c *Client) handshakeTimeout() time.Duration {
	if c.cfg.HandshakeTimeout > 0 {
		return c.cfg.HandshakeTimeout
	}
	return defaultHandshakeTimeout
}

func (c *Client) token() string {
	if c.cfg.Token == nil {
		return ""
	}
	return c.cfg.Token()
}

// endpoint builds the Engine.IO WebSocket URL from the configured base URL
func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid socket url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid socket url scheme: %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/socket.io/"
	} else if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
