// Package realtime manages the single persistent connection: it guards
// connection attempts, publishes intents and routes inbound events to the
// conversation store.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/bookchat/internal/core"
	"github.com/vovakirdan/bookchat/internal/identity"
	"github.com/vovakirdan/bookchat/internal/notify"
	"github.com/vovakirdan/bookchat/internal/proto"
)

// DefaultConnectTimeout bounds a single connection attempt.
const DefaultConnectTimeout = 5 * time.Second

var (
	// ErrNotConnected is returned by intents issued while disconnected.
	ErrNotConnected = errors.New("not connected")
	// ErrAttemptExpired is returned when an attempt was timed out or superseded.
	ErrAttemptExpired = errors.New("connection attempt expired")
)

// IdentityResolver yields the actor to authenticate as.
type IdentityResolver interface {
	Resolve(ctx context.Context) (identity.Identity, error)
}

// StateStore is the part of the conversation store the manager uses.
type StateStore interface {
	Dispatch(a core.Action)
	Snapshot() core.State
}

// Options configure a Manager.
type Options struct {
	ConnectTimeout time.Duration
	Clock          clock.Clock
	Logger         *zerolog.Logger
	Notifier       notify.Notifier
	Foreground     *notify.Foreground
}

// Manager owns the one connection of the process.
type Manager struct {
	dialer     Dialer
	resolver   IdentityResolver
	store      StateStore
	notifier   notify.Notifier
	foreground *notify.Foreground
	clock      clock.Clock
	timeout    time.Duration
	log        *zerolog.Logger

	mu            sync.Mutex
	conn          Conn
	connected     bool
	connecting    bool
	generation    uint64
	attemptCancel context.CancelFunc
	me            string
	hooks         []func()
}

// NewManager creates a disconnected manager.
func NewManager(dialer Dialer, resolver IdentityResolver, store StateStore, opts Options) *Manager {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	if opts.Foreground == nil {
		opts.Foreground = &notify.Foreground{}
	}
	return &Manager{
		dialer:     dialer,
		resolver:   resolver,
		store:      store,
		notifier:   opts.Notifier,
		foreground: opts.Foreground,
		clock:      opts.Clock,
		timeout:    opts.ConnectTimeout,
		log:        opts.Logger,
	}
}

// OnReconnect registers fn to run after the transport re-establishes a lost
// connection. Hooks run on their own goroutine.
func (m *Manager) OnReconnect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Connected reports whether the connection is up.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Connecting reports whether an attempt is in flight.
func (m *Manager) Connecting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connecting
}

// Me returns the user id the connection authenticated as.
func (m *Manager) Me() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.me
}

// Connect opens the connection. It is a no-op while connected or while
// another attempt is in flight. A connection whose transport is still
// redialing after a loss is closed first so only one socket stays open.
// The attempt is cancelled if it has not finished within the connect timeout.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.connected || m.connecting {
		m.mu.Unlock()
		m.log.Debug().Msg("connect ignored, already connected or connecting")
		return nil
	}
	stale := m.conn
	m.conn = nil
	m.connecting = true
	m.generation++
	gen := m.generation
	attemptCtx, cancel := context.WithCancel(ctx)
	m.attemptCancel = cancel
	timer := m.clock.AfterFunc(m.timeout, func() { m.expireAttempt(gen) })
	m.mu.Unlock()

	if stale != nil {
		if err := stale.Close(); err != nil {
			m.log.Debug().Err(err).Msg("close redialing connection")
		}
	}

	defer func() {
		timer.Stop()
		cancel()
	}()

	id, err := m.resolver.Resolve(attemptCtx)
	if err != nil {
		m.endAttempt(gen)
		m.log.Error().Err(err).Msg("cannot connect")
		m.store.Dispatch(core.Failure(core.ErrCodeNoIdentity, err))
		return fmt.Errorf("resolve identity: %w", err)
	}
	m.store.Dispatch(core.SetIdentity(id.UserID))

	conn, err := m.dialer.Dial(attemptCtx, id, &handler{m: m, gen: gen})

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		m.log.Warn().Msg("connection attempt expired")
		return ErrAttemptExpired
	}
	m.connecting = false
	m.attemptCancel = nil
	if err != nil {
		m.mu.Unlock()
		m.log.Error().Err(err).Msg("connect failed")
		m.store.Dispatch(core.Failure(core.ErrCodeTransport, err))
		return fmt.Errorf("connect: %w", err)
	}
	m.conn = conn
	m.connected = true
	m.me = id.UserID
	m.mu.Unlock()

	m.log.Info().Str("user_id", id.UserID).Str("source", id.Source).Msg("connected")
	m.store.Dispatch(core.SetConnected(true))
	return nil
}

// Disconnect tears the connection down and publishes the disconnected status.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	conn := m.teardownLocked()
	m.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			m.log.Debug().Err(err).Msg("close connection")
		}
	}
	m.store.Dispatch(core.SetConnected(false))
	m.log.Info().Msg("disconnected")
}

// Reset disconnects and forgets the authenticated identity so the next
// Connect starts from scratch.
func (m *Manager) Reset() {
	m.Disconnect()
	m.mu.Lock()
	m.me = ""
	m.mu.Unlock()
}

// teardownLocked clears every flag and invalidates callbacks of the current
// generation. m.mu must be held.
func (m *Manager) teardownLocked() Conn {
	m.generation++
	if m.attemptCancel != nil {
		m.attemptCancel()
		m.attemptCancel = nil
	}
	conn := m.conn
	m.conn = nil
	m.connected = false
	m.connecting = false
	return conn
}

func (m *Manager) endAttempt(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen == m.generation {
		m.connecting = false
		m.attemptCancel = nil
	}
}

func (m *Manager) expireAttempt(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || !m.connecting {
		m.mu.Unlock()
		return
	}
	m.generation++
	m.connecting = false
	cancel := m.attemptCancel
	m.attemptCancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.log.Warn().Dur("timeout", m.timeout).Msg("connection attempt timed out")
}

// JoinRoom subscribes to a room's events.
func (m *Manager) JoinRoom(roomID string) error {
	return m.emit(proto.IntentJoinChat, proto.RoomData{ChatRoomID: roomID})
}

// LeaveRoom unsubscribes from a room's events.
func (m *Manager) LeaveRoom(roomID string) error {
	return m.emit(proto.IntentLeaveChat, proto.RoomData{ChatRoomID: roomID})
}

// SendMessage publishes a chat message.
func (m *Manager) SendMessage(roomID, content string, typ core.MessageType, attachments []string) error {
	return m.emit(proto.IntentSendMessage, proto.SendMessageData{
		ChatRoomID:  roomID,
		Content:     content,
		Type:        string(typ),
		Attachments: attachments,
	})
}

// SendTyping publishes the user's typing state.
func (m *Manager) SendTyping(roomID string, isTyping bool) error {
	return m.emit(proto.IntentTyping, proto.TypingData{ChatRoomID: roomID, IsTyping: isTyping})
}

// MarkRead tells the server the user has read ref.
func (m *Manager) MarkRead(ref core.RoomRef) error {
	return m.emit(proto.IntentReadMessages, proto.RoomData{ChatRoomID: core.RoomIDOf(ref)})
}

func (m *Manager) emit(event string, data any) error {
	m.mu.Lock()
	conn, connected := m.conn, m.connected
	m.mu.Unlock()

	if !connected || conn == nil {
		m.log.Warn().Str("event", event).Msg("not connected, intent dropped")
		return ErrNotConnected
	}
	if err := conn.Emit(event, data); err != nil {
		m.log.Warn().Err(err).Str("event", event).Msg("intent not sent")
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

// handler binds transport callbacks to the generation that dialed them.
type handler struct {
	m   *Manager
	gen uint64
}

func (h *handler) current() bool {
	h.m.mu.Lock()
	defer h.m.mu.Unlock()
	return h.gen == h.m.generation
}

func (h *handler) OnConnect() {
	m := h.m
	m.mu.Lock()
	if h.gen != m.generation {
		m.mu.Unlock()
		return
	}
	m.connected = true
	hooks := append([]func(){}, m.hooks...)
	m.mu.Unlock()

	m.store.Dispatch(core.SetConnected(true))
	go func() {
		for _, fn := range hooks {
			fn()
		}
	}()
}

func (h *handler) OnDisconnect(err error) {
	m := h.m
	m.mu.Lock()
	if h.gen != m.generation {
		m.mu.Unlock()
		return
	}
	m.connected = false
	m.mu.Unlock()

	m.log.Warn().Err(err).Msg("connection lost, waiting for transport to reconnect")
	m.store.Dispatch(core.SetConnected(false))
}

func (h *handler) OnReconnectFailed(err error) {
	m := h.m
	m.mu.Lock()
	if h.gen != m.generation {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.connected = false
	m.mu.Unlock()

	m.store.Dispatch(core.Failure(core.ErrCodeTransport, err))
}

func (h *handler) OnEvent(env proto.Envelope) {
	if !h.current() {
		return
	}
	h.m.route(env)
}
