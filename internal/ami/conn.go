package ami

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pbxbridge/internal/domain"
)

// Transport dials the raw manager-protocol stream. Tests substitute an
// in-memory implementation.
type Transport interface {
	Dial(ctx context.Context) (io.ReadWriteCloser, error)
}

// TCPTransport dials the manager port of a real device.
type TCPTransport struct {
	Addr    string
	Timeout time.Duration
}

func (t *TCPTransport) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	d := net.Dialer{Timeout: t.Timeout}
	return d.DialContext(ctx, "tcp", t.Addr)
}

// EventFunc receives unsolicited events from the stream.
type EventFunc func(Event)

// Action is a manager-protocol command. Fields may repeat keys
// (Variable headers do).
type Action struct {
	Name   string
	Fields [][2]string
}

// Manager owns the single long-lived manager-protocol session. It logs
// in on connect, delivers unsolicited events to the registered handler,
// correlates action responses by ActionID, and reconnects with capped
// backoff when the stream drops.
type Manager struct {
	transport   Transport
	username    string
	secret      string
	onEvent     EventFunc
	onReconnect func()
	logger      zerolog.Logger

	mu        sync.RWMutex
	conn      io.ReadWriteCloser
	connected bool
	pending   map[string]chan Event

	writeMu       sync.Mutex
	reconnectChan chan struct{}
	reconnectOnce sync.Once
	closeChan     chan struct{}
	closeOnce     sync.Once
	ctx           context.Context
	cancel        context.CancelFunc
}

type ManagerConfig struct {
	Transport Transport
	Username  string
	Secret    string
	OnEvent   EventFunc
	// OnReconnect is invoked once per reconnection attempt, for
	// observability only.
	OnReconnect func()
	Logger      zerolog.Logger
}

func NewManager(cfg ManagerConfig) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		transport:     cfg.Transport,
		username:      cfg.Username,
		secret:        cfg.Secret,
		onEvent:       cfg.OnEvent,
		onReconnect:   cfg.OnReconnect,
		logger:        cfg.Logger.With().Str("component", "ami").Logger(),
		pending:       make(map[string]chan Event),
		reconnectChan: make(chan struct{}, 1),
		closeChan:     make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Connect dials the stream, performs the login exchange and starts the
// read and reconnect loops. Calling it while connected is a no-op.
func (m *Manager) Connect() error {
	m.mu.Lock()
	if m.connected {
		m.mu.Unlock()
		return nil
	}

	conn, err := m.transport.Dial(m.ctx)
	if err != nil {
		m.mu.Unlock()
		return &domain.ConnectivityError{Op: "connect", Err: err}
	}

	m.conn = conn
	m.connected = true
	m.mu.Unlock()

	go m.readEvents(conn)

	resp, err := m.SendAction(m.ctx, Action{
		Name: "Login",
		Fields: [][2]string{
			{"Username", m.username},
			{"Secret", m.secret},
		},
	}, 10*time.Second)
	if err != nil {
		m.dropConnection()
		return err
	}
	if resp.Get("Response") != "Success" {
		m.dropConnection()
		return &domain.AuthenticationError{
			Op:  "login",
			Err: fmt.Errorf("manager login rejected: %s", resp.Get("Message")),
		}
	}

	m.logger.Info().Msg("Connected to manager event stream")

	m.reconnectOnce.Do(func() { go m.handleReconnect() })

	return nil
}

// Disconnect tears the session down permanently.
func (m *Manager) Disconnect() error {
	m.cancel()
	m.closeOnce.Do(func() { close(m.closeChan) })

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		err := m.conn.Close()
		m.conn = nil
		m.connected = false
		m.logger.Info().Msg("Disconnected from manager event stream")
		return err
	}
	return nil
}

func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// SendAction writes an action and waits for the response frame carrying
// the same ActionID.
func (m *Manager) SendAction(ctx context.Context, action Action, timeout time.Duration) (Event, error) {
	actionID := uuid.New().String()

	respCh := make(chan Event, 1)
	m.mu.Lock()
	if !m.connected || m.conn == nil {
		m.mu.Unlock()
		return Event{}, &domain.ConnectivityError{Op: action.Name, Err: fmt.Errorf("not connected")}
	}
	conn := m.conn
	m.pending[actionID] = respCh
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.pending, actionID)
		m.mu.Unlock()
	}()

	frame := fmt.Sprintf("Action: %s\r\nActionID: %s\r\n", action.Name, actionID)
	for _, f := range action.Fields {
		frame += fmt.Sprintf("%s: %s\r\n", f[0], f[1])
	}
	frame += "\r\n"

	m.writeMu.Lock()
	_, err := io.WriteString(conn, frame)
	m.writeMu.Unlock()
	if err != nil {
		m.triggerReconnect()
		return Event{}, &domain.ConnectivityError{Op: action.Name, Err: err}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-respCh:
		return resp, nil
	case <-timer.C:
		return Event{}, &domain.ConnectivityError{Op: action.Name, Err: fmt.Errorf("timed out waiting for response")}
	case <-ctx.Done():
		return Event{}, &domain.ConnectivityError{Op: action.Name, Err: ctx.Err()}
	case <-m.ctx.Done():
		return Event{}, &domain.ConnectivityError{Op: action.Name, Err: fmt.Errorf("connection closed")}
	}
}

func (m *Manager) readEvents(conn io.ReadWriteCloser) {
	parser := NewParser(conn)

	for {
		evt, ok := parser.Next()
		if !ok {
			select {
			case <-m.ctx.Done():
			default:
				m.logger.Warn().Msg("Manager event stream ended")
				m.triggerReconnect()
			}
			return
		}

		if evt.IsResponse() {
			if id := evt.ActionID(); id != "" {
				m.mu.RLock()
				ch, waiting := m.pending[id]
				m.mu.RUnlock()
				if waiting {
					ch <- evt
					continue
				}
			}
			continue
		}

		if m.onEvent != nil {
			m.onEvent(evt)
		}
	}
}

func (m *Manager) handleReconnect() {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.closeChan:
			return
		case <-m.reconnectChan:
			m.logger.Info().Msg("Reconnecting to manager event stream")

			for {
				select {
				case <-m.ctx.Done():
					return
				case <-m.closeChan:
					return
				default:
				}

				if m.onReconnect != nil {
					m.onReconnect()
				}
				if err := m.Connect(); err != nil {
					m.logger.Error().Err(err).
						Dur("backoff", backoff).
						Msg("Reconnection failed, retrying")

					time.Sleep(backoff)
					if backoff < maxBackoff {
						backoff *= 2
					}
					continue
				}

				m.logger.Info().Msg("Reconnected to manager event stream")
				backoff = time.Second
				break
			}
		}
	}
}

func (m *Manager) triggerReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		m.connected = false
		if m.conn != nil {
			m.conn.Close()
			m.conn = nil
		}

		select {
		case m.reconnectChan <- struct{}{}:
		default:
		}
	}
}

func (m *Manager) dropConnection() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connected = false
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
}
