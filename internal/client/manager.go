// Package client maintains a dashboard's live replica of the server
// state: a WebSocket subscription with reconnect, plus a REST resync on
// every (re)connect to cover messages missed while offline.
package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/pulseboard/pulseboard/internal/logging"
	"github.com/pulseboard/pulseboard/pkg/protocol"
)

// Connection lifecycle states as reported by Status.
const (
	StatusDisconnected = "disconnected"
	StatusConnecting   = "connecting"
	StatusConnected    = "connected"
	StatusAuthFailed   = "auth_failed"
	StatusFailed       = "failed" // retries exhausted; reconnect is manual
)

const (
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 15 * time.Second
	defaultMaxRetries     = 10
	heartbeatInterval     = 30 * time.Second
	handshakeTimeout      = 10 * time.Second
)

// Manager owns one logical subscription to a server. It dials, runs the
// auth handshake, resyncs over REST, applies pushed messages to the
// State and reconnects with exponential backoff when the transport
// drops, up to maxRetries consecutive failures. A rejected credential
// is terminal: the manager stops and never redials with the same
// password. Exhausted retries stop too; both need an explicit Connect
// to try again.
type Manager struct {
	serverURL string
	password  string
	authToken string
	state     *State
	httpc     *http.Client
	onChange  func()

	// Retry policy, fixed before Connect.
	initialBackoff time.Duration
	maxBackoff     time.Duration
	maxRetries     int

	mu       sync.Mutex
	status   string
	conn     *websocket.Conn
	cancel   context.CancelFunc
	backoff  time.Duration
	attempts int
	running  bool
}

// Options configures a Manager.
type Options struct {
	ServerURL string // http(s) base URL, e.g. http://127.0.0.1:9475
	Password  string
	AuthToken string
	OnChange  func() // invoked after every state or status change; may be nil
}

func NewManager(state *State, opts Options) *Manager {
	onChange := opts.OnChange
	if onChange == nil {
		onChange = func() {}
	}
	return &Manager{
		serverURL:      strings.TrimRight(opts.ServerURL, "/"),
		password:       opts.Password,
		authToken:      opts.AuthToken,
		state:          state,
		httpc:          &http.Client{Timeout: 30 * time.Second},
		onChange:       onChange,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		maxRetries:     defaultMaxRetries,
		status:         StatusDisconnected,
		backoff:        defaultInitialBackoff,
	}
}

// Status returns the current connection state.
func (m *Manager) Status() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// State returns the replicated state the manager writes into.
func (m *Manager) State() *State {
	return m.state
}

// Connect starts the connection loop. Calling it while a loop is
// already running is a no-op; after an auth failure it clears the
// failure and tries again (for use when the user re-enters a password
// or explicitly retries).
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.backoff = m.initialBackoff
	m.attempts = 0
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.mu.Unlock()

	go m.run(ctx)
}

// Disconnect stops the loop and closes the transport. Pending reconnect
// timers are cancelled.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	conn := m.conn
	m.conn = nil
	m.running = false
	m.status = StatusDisconnected
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	m.onChange()
}

func (m *Manager) setStatus(status string) {
	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
	m.onChange()
}

func (m *Manager) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		m.setStatus(StatusConnecting)
		err := m.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == errAuthRejected {
			logging.Logger.Warn("server rejected credentials, giving up")
			m.mu.Lock()
			m.running = false
			m.cancel = nil
			m.mu.Unlock()
			m.setStatus(StatusAuthFailed)
			return
		}
		if err != nil {
			logging.Logger.Debug("connection lost", "error", err)
		}

		m.mu.Lock()
		m.attempts++
		exhausted := m.attempts >= m.maxRetries
		m.mu.Unlock()
		if exhausted {
			logging.Logger.Warn("giving up after repeated connection failures", "attempts", m.maxRetries)
			m.mu.Lock()
			m.running = false
			m.cancel = nil
			m.mu.Unlock()
			m.setStatus(StatusFailed)
			return
		}

		if !m.waitBackoff(ctx) {
			return
		}
	}
}

// waitBackoff sleeps for the current backoff and doubles it up to the
// cap. Returns false when the context is cancelled mid-wait.
func (m *Manager) waitBackoff(ctx context.Context) bool {
	m.mu.Lock()
	wait := m.backoff
	m.backoff *= 2
	if m.backoff > m.maxBackoff {
		m.backoff = m.maxBackoff
	}
	m.mu.Unlock()

	m.setStatus(StatusDisconnected)
	select {
	case <-ctx.Done():
		return false
	case <-time.After(wait):
		return true
	}
}

var errAuthRejected = fmt.Errorf("authentication rejected")

// session runs one connection from dial to transport failure.
func (m *Manager) session(ctx context.Context) error {
	wsURL := m.wsURL()
	dialCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	conn, _, err := websocket.Dial(dialCtx, wsURL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dialing %s: %w", wsURL, err)
	}
	defer conn.CloseNow()

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	buffered, err := m.handshake(ctx, conn)
	if err != nil {
		return err
	}

	// Resync before going live: broadcasts missed while offline are
	// only recoverable from the REST view.
	if err := m.resync(ctx); err != nil {
		return fmt.Errorf("resync: %w", err)
	}

	m.mu.Lock()
	m.backoff = m.initialBackoff
	m.attempts = 0
	m.mu.Unlock()
	m.setStatus(StatusConnected)

	// Messages that raced the handshake are applied first, in arrival
	// order, before anything read afterwards.
	for _, env := range buffered {
		m.dispatch(env)
	}

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go m.heartbeat(heartbeatCtx, conn)

	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		env, err := protocol.DecodeEnvelope(raw)
		if err != nil {
			logging.Logger.Debug("discarding malformed frame", "error", err)
			continue
		}
		m.dispatch(env)
	}
}

// handshake sends the credential (when configured) and waits for the
// server's auth ack. Non-auth frames that arrive before the ack are
// returned for in-order application after the handshake completes.
// Without a password the connection is authenticated as soon as it is
// open; any unsolicited ack is absorbed by the read loop.
func (m *Manager) handshake(ctx context.Context, conn *websocket.Conn) ([]*protocol.Envelope, error) {
	if m.password == "" {
		return nil, nil
	}

	hsCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	frame, err := protocol.Encode(protocol.MsgAuth, protocol.AuthRequest{Password: m.password})
	if err != nil {
		return nil, err
	}
	if err := conn.Write(hsCtx, websocket.MessageText, frame); err != nil {
		return nil, fmt.Errorf("sending auth: %w", err)
	}

	var buffered []*protocol.Envelope
	for {
		_, raw, err := conn.Read(hsCtx)
		if err != nil {
			return nil, fmt.Errorf("waiting for auth ack: %w", err)
		}
		env, err := protocol.DecodeEnvelope(raw)
		if err != nil {
			continue
		}
		if env.Type != protocol.MsgAuth {
			buffered = append(buffered, env)
			continue
		}
		ack, err := protocol.DecodeData[protocol.AuthAck](env)
		if err != nil {
			return nil, fmt.Errorf("decoding auth ack: %w", err)
		}
		if !ack.Success {
			return nil, errAuthRejected
		}
		return buffered, nil
	}
}

func (m *Manager) heartbeat(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	frame, err := protocol.Encode(protocol.MsgPing, nil)
	if err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writeCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// dispatch applies one pushed message. Unknown types are logged and
// dropped so protocol additions never kill the connection.
func (m *Manager) dispatch(env *protocol.Envelope) {
	switch env.Type {
	case protocol.MsgSessionCreated, protocol.MsgSessionUpdated:
		sess, err := protocol.DecodeData[protocol.Session](env)
		if err != nil {
			logging.Logger.Debug("bad session payload", "error", err)
			return
		}
		m.state.UpsertSession(*sess)

	case protocol.MsgTimeline:
		ev, err := protocol.DecodeData[protocol.TimelineEvent](env)
		if err != nil {
			logging.Logger.Debug("bad timeline payload", "error", err)
			return
		}
		m.state.AppendTimeline(*ev)

	case protocol.MsgAttention:
		att, err := protocol.DecodeData[protocol.Attention](env)
		if err != nil {
			logging.Logger.Debug("bad attention payload", "error", err)
			return
		}
		m.state.SetAttention(att.SessionID, att.NeedsAttention)

	case protocol.MsgIdle:
		idle, err := protocol.DecodeData[protocol.Idle](env)
		if err != nil {
			logging.Logger.Debug("bad idle payload", "error", err)
			return
		}
		m.state.SetStatus(idle.SessionID, "idle")

	case protocol.MsgError:
		notice, err := protocol.DecodeData[protocol.ErrorNotice](env)
		if err != nil {
			return
		}
		logging.Logger.Warn("session error", "session_id", notice.SessionID, "message", notice.Message)

	case protocol.MsgAuth, protocol.MsgPing:
		// Handshake already done; stray acks and pings are noise.

	default:
		logging.Logger.Debug("ignoring unknown message type", "type", env.Type)
	}
	m.onChange()
}

func (m *Manager) wsURL() string {
	url := m.serverURL
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	url += "/ws"
	if m.authToken != "" {
		url += "?token=" + m.authToken
	}
	return url
}
