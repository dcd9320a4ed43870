// Package ws is the persistent connection to the chat backend. It owns one
// websocket, reads envelopes from it and re-dials after an unexpected loss.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/bookchat/internal/proto"
)

const (
	outboxSize   = 64
	writeTimeout = 5 * time.Second
	readLimit    = 1 << 20
)

var (
	// ErrClosed is returned by Emit after Close.
	ErrClosed = errors.New("socket closed")
	// ErrOutboxFull is returned when intents are produced faster than they can be written.
	ErrOutboxFull = errors.New("outbox full")
)

// Handler receives connection lifecycle callbacks and inbound envelopes.
// Callbacks run on the socket's own goroutine, one at a time.
type Handler interface {
	// OnConnect is called after a successful re-dial.
	OnConnect()
	// OnDisconnect is called when an established connection is lost.
	OnDisconnect(err error)
	// OnEvent is called for every decoded envelope in arrival order.
	OnEvent(env proto.Envelope)
	// OnReconnectFailed is called once all re-dial attempts are exhausted.
	OnReconnectFailed(err error)
}

// Credentials authenticate the handshake.
type Credentials struct {
	UserID string
	Token  string
}

// Options configure a socket.
type Options struct {
	URL               string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	Clock             clock.Clock
	Logger            *zerolog.Logger
}

// Socket is a single websocket connection with bounded fixed-delay reconnect.
type Socket struct {
	opts    Options
	creds   Credentials
	handler Handler
	log     *zerolog.Logger

	outbox chan proto.Envelope

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// Dial performs the handshake using ctx and starts serving the connection.
// ctx bounds only the handshake; the socket lives until Close.
func Dial(ctx context.Context, opts Options, creds Credentials, h Handler) (*Socket, error) {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}

	s := &Socket{
		opts:    opts,
		creds:   creds,
		handler: h,
		log:     opts.Logger,
		outbox:  make(chan proto.Envelope, outboxSize),
		done:    make(chan struct{}),
	}

	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.setConn(conn)
	go s.run(conn)
	return s, nil
}

// Emit queues an envelope for writing and returns without waiting for it.
func (s *Socket) Emit(event string, data any) error {
	env, err := proto.NewEnvelope(event, data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.outbox <- env:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Close tears the connection down. No callbacks fire after Close returns.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client closing")
	}
	return nil
}

// Done is closed when the socket has fully stopped.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

func (s *Socket) dial(ctx context.Context) (*websocket.Conn, error) {
	target, err := url.Parse(s.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := target.Query()
	q.Set("userId", s.creds.UserID)
	target.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("X-User-ID", s.creds.UserID)
	if s.creds.Token != "" {
		header.Set("Authorization", "Bearer "+s.creds.Token)
	}

	conn, _, err := websocket.Dial(ctx, target.String(), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

func (s *Socket) run(conn *websocket.Conn) {
	defer close(s.done)

	for {
		err := s.serve(conn)
		if s.isClosed() {
			return
		}
		s.log.Warn().Err(err).Msg("connection lost")
		s.handler.OnDisconnect(err)

		conn, err = s.redial()
		if err != nil {
			if !s.isClosed() {
				s.log.Error().Err(err).Int("attempts", s.opts.ReconnectAttempts).Msg("reconnect failed")
				s.handler.OnReconnectFailed(err)
			}
			return
		}
		if !s.setConn(conn) {
			_ = conn.Close(websocket.StatusNormalClosure, "client closing")
			return
		}
		s.log.Info().Msg("reconnected")
		s.handler.OnConnect()
	}
}

// serve pumps one connection until it fails.
func (s *Socket) serve(conn *websocket.Conn) error {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx, conn)
	}()

	err := s.readLoop(ctx, conn)
	cancel()
	<-writerDone
	_ = conn.CloseNow()
	s.drainOutbox()
	return err
}

func (s *Socket) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var env proto.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			s.log.Warn().Err(err).Int("bytes", len(data)).Msg("dropping malformed frame")
			continue
		}
		if s.isClosed() {
			return ErrClosed
		}
		s.handler.OnEvent(env)
	}
}

func (s *Socket) writeLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-s.outbox:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, env)
			cancel()
			if err != nil {
				s.log.Warn().Err(err).Str("event", env.Event).Msg("write failed")
				_ = conn.CloseNow()
				return
			}
		}
	}
}

// drainOutbox drops intents queued for a connection that no longer exists.
func (s *Socket) drainOutbox() {
	for {
		select {
		case env := <-s.outbox:
			s.log.Debug().Str("event", env.Event).Msg("dropping unsent intent")
		default:
			return
		}
	}
}

func (s *Socket) redial() (*websocket.Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= s.opts.ReconnectAttempts; attempt++ {
		timer := s.opts.Clock.Timer(s.opts.ReconnectDelay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return nil, ErrClosed
		case <-timer.C:
		}

		conn, err := s.dial(s.ctx)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		s.log.Debug().Err(err).Int("attempt", attempt).Msg("reconnect attempt failed")
	}
	if lastErr == nil {
		lastErr = errors.New("reconnect disabled")
	}
	return nil, lastErr
}

func (s *Socket) setConn(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conn = conn
	return true
}

func (s *Socket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
