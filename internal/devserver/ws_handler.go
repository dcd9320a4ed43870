package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/bookchat/internal/core"
	"github.com/vovakirdan/bookchat/internal/proto"
)

// Error codes sent in error events.
const (
	CodeBadRequest  = "bad_request"
	CodeRateLimited = "rate_limited"
	CodeForbidden   = "forbidden"
	CodeUnknown     = "unknown_event"
)

// WSHandler upgrades connections and bridges them to the backend.
type WSHandler struct {
	backend   *Backend
	clock     clock.Clock
	rateLimit int
	log       *zerolog.Logger
}

// NewWSHandler builds a new websocket handler. rateLimit caps intents per
// minute per connection; zero disables it.
func NewWSHandler(backend *Backend, clk clock.Clock, rateLimit int, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{backend: backend, clock: clk, rateLimit: rateLimit, log: logger}
}

// Serve handles GET /ws.
func (h *WSHandler) Serve(c *gin.Context) {
	userID := c.GetString(ContextKeyUserID)

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()

	sess := h.backend.register(userID)
	defer h.backend.unregister(sess)
	h.log.Info().Str("user_id", userID).Str("session_id", sess.id).Msg("ws session opened")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	limiter := newRateLimiter(h.clock, h.rateLimit, time.Minute)
	stop := make(chan struct{})
	defer close(stop)
	limiter.startReset(stop)

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, sess, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, sess)
	}()

	err = <-errCh
	cancel()
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		if s := websocket.CloseStatus(err); s == websocket.StatusNormalClosure || s == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			status = websocket.StatusInternalError
			reason = "internal error"
			h.log.Warn().Err(err).Str("session_id", sess.id).Msg("ws connection closed with error")
		}
	}
	h.log.Info().Str("user_id", userID).Str("session_id", sess.id).Msg("ws session closed")
	_ = conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, sess *session, limiter *rateLimiter) error {
	for {
		var env proto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return err
		}
		if !limiter.allow() {
			h.sendError(sess, CodeRateLimited, "too many requests")
			continue
		}
		h.handleIntent(sess, env)
	}
}

func (h *WSHandler) handleIntent(sess *session, env proto.Envelope) {
	var err error
	switch env.Event {
	case proto.IntentJoinChat:
		var data proto.RoomData
		if err = decode(env, &data); err == nil {
			err = h.backend.join(sess, data.ChatRoomID)
		}
	case proto.IntentLeaveChat:
		var data proto.RoomData
		if err = decode(env, &data); err == nil {
			h.backend.leave(sess, data.ChatRoomID)
		}
	case proto.IntentSendMessage:
		var data proto.SendMessageData
		if err = decode(env, &data); err == nil {
			_, err = h.backend.Post(sess.userID, data.ChatRoomID, data.Content, core.ParseMessageType(data.Type), data.Attachments)
		}
	case proto.IntentTyping:
		var data proto.TypingData
		if err = decode(env, &data); err == nil {
			err = h.backend.Typing(sess.userID, data.ChatRoomID, data.IsTyping)
		}
	case proto.IntentReadMessages:
		var data proto.RoomData
		if err = decode(env, &data); err == nil {
			err = h.backend.MarkRead(sess.userID, data.ChatRoomID)
		}
	default:
		h.sendError(sess, CodeUnknown, "unknown event "+env.Event)
		return
	}

	if err != nil {
		code := CodeBadRequest
		if errors.Is(err, ErrNotMember) || errors.Is(err, ErrRoomNotFound) {
			code = CodeForbidden
		}
		h.log.Debug().Err(err).Str("event", env.Event).Str("session_id", sess.id).Msg("intent rejected")
		h.sendError(sess, code, err.Error())
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sess *session) error {
	for {
		select {
		case env := <-sess.send:
			if err := wsjson.Write(ctx, conn, env); err != nil {
				h.log.Error().Err(err).Str("session_id", sess.id).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) sendError(sess *session, code, msg string) {
	env, _ := proto.NewEnvelope(proto.EventError, proto.ErrorData{Code: code, Msg: msg})
	h.backend.reply(sess, env)
}

func decode(env proto.Envelope, v any) error {
	if len(env.Data) == 0 {
		return errors.New("missing data")
	}
	return json.Unmarshal(env.Data, v)
}
