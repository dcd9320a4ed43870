package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/vovakirdan/bookchat/internal/proto"
)

type recordingHandler struct {
	connects     chan struct{}
	disconnects  chan error
	events       chan proto.Envelope
	reconnectErr chan error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		connects:     make(chan struct{}, 8),
		disconnects:  make(chan error, 8),
		events:       make(chan proto.Envelope, 32),
		reconnectErr: make(chan error, 8),
	}
}

func (h *recordingHandler) OnConnect()                  { h.connects <- struct{}{} }
func (h *recordingHandler) OnDisconnect(err error)      { h.disconnects <- err }
func (h *recordingHandler) OnEvent(env proto.Envelope)  { h.events <- env }
func (h *recordingHandler) OnReconnectFailed(err error) { h.reconnectErr <- err }

// echoServer accepts websocket connections, records the handshake and
// echoes every envelope back with the event name prefixed by "echo:".
type echoServer struct {
	srv      *httptest.Server
	userIDs  chan string
	auths    chan string
	conns    chan *websocket.Conn
	accepted atomic.Int32
}

func newEchoServer(t *testing.T) *echoServer {
	t.Helper()
	es := &echoServer{
		userIDs: make(chan string, 8),
		auths:   make(chan string, 8),
		conns:   make(chan *websocket.Conn, 8),
	}
	es.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		es.accepted.Add(1)
		es.userIDs <- r.URL.Query().Get("userId") + "|" + r.Header.Get("X-User-ID")
		es.auths <- r.Header.Get("Authorization")
		es.conns <- conn

		ctx := r.Context()
		for {
			var env proto.Envelope
			if err := wsjson.Read(ctx, conn, &env); err != nil {
				return
			}
			env.Event = "echo:" + env.Event
			if err := wsjson.Write(ctx, conn, env); err != nil {
				return
			}
		}
	}))
	t.Cleanup(es.srv.Close)
	return es
}

func (es *echoServer) url() string {
	return "ws" + strings.TrimPrefix(es.srv.URL, "http")
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %s", what)
	}
	var zero T
	return zero
}

func TestDialSendsCredentialsAndEchoes(t *testing.T) {
	es := newEchoServer(t)
	h := newRecordingHandler()

	s, err := Dial(context.Background(), Options{URL: es.url()}, Credentials{UserID: "u1", Token: "tok"}, h)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer s.Close()

	if got := waitFor(t, es.userIDs, "handshake"); got != "u1|u1" {
		t.Fatalf("handshake user = %q", got)
	}
	if got := waitFor(t, es.auths, "auth header"); got != "Bearer tok" {
		t.Fatalf("authorization = %q", got)
	}

	if err := s.Emit(proto.IntentJoinChat, proto.RoomData{ChatRoomID: "r1"}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	env := waitFor(t, h.events, "echo")
	if env.Event != "echo:"+proto.IntentJoinChat {
		t.Fatalf("event = %q", env.Event)
	}
}

func TestMalformedFrameIsSkipped(t *testing.T) {
	es := newEchoServer(t)
	h := newRecordingHandler()

	s, err := Dial(context.Background(), Options{URL: es.url()}, Credentials{UserID: "u1"}, h)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer s.Close()

	server := waitFor(t, es.conns, "server conn")
	ctx := context.Background()
	if err := server.Write(ctx, websocket.MessageText, []byte("{broken")); err != nil {
		t.Fatalf("write broken: %v", err)
	}
	if err := wsjson.Write(ctx, server, proto.Envelope{Event: proto.EventUserTyping}); err != nil {
		t.Fatalf("write valid: %v", err)
	}

	env := waitFor(t, h.events, "valid event")
	if env.Event != proto.EventUserTyping {
		t.Fatalf("event = %q", env.Event)
	}
	select {
	case err := <-h.disconnects:
		t.Fatalf("malformed frame must not drop the connection: %v", err)
	default:
	}
}

func TestReconnectAfterServerDrop(t *testing.T) {
	es := newEchoServer(t)
	h := newRecordingHandler()
	mock := clock.NewMock()

	opts := Options{URL: es.url(), ReconnectAttempts: 3, ReconnectDelay: time.Second, Clock: mock}
	s, err := Dial(context.Background(), opts, Credentials{UserID: "u1"}, h)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer s.Close()

	first := waitFor(t, es.conns, "first conn")
	_ = first.Close(websocket.StatusGoingAway, "restart")
	waitFor(t, h.disconnects, "disconnect")

	deadline := time.Now().Add(2 * time.Second)
	for {
		mock.Add(time.Second)
		select {
		case <-h.connects:
			if es.accepted.Load() != 2 {
				t.Fatalf("accepted = %d, want 2", es.accepted.Load())
			}
			return
		case <-time.After(10 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatalf("no reconnect")
		}
	}
}

func TestReconnectGivesUpAfterAttempts(t *testing.T) {
	es := newEchoServer(t)
	h := newRecordingHandler()
	mock := clock.NewMock()

	opts := Options{URL: es.url(), ReconnectAttempts: 2, ReconnectDelay: time.Second, Clock: mock}
	s, err := Dial(context.Background(), opts, Credentials{UserID: "u1"}, h)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer s.Close()

	conn := waitFor(t, es.conns, "conn")
	es.srv.Close()
	_ = conn.CloseNow()
	waitFor(t, h.disconnects, "disconnect")

	deadline := time.Now().Add(2 * time.Second)
	for {
		mock.Add(time.Second)
		select {
		case <-h.reconnectErr:
			<-s.Done()
			return
		case <-time.After(10 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatalf("reconnect never gave up")
		}
	}
}

func TestCloseSuppressesCallbacks(t *testing.T) {
	es := newEchoServer(t)
	h := newRecordingHandler()

	s, err := Dial(context.Background(), Options{URL: es.url(), ReconnectAttempts: 3}, Credentials{UserID: "u1"}, h)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = s.Close()
	<-s.Done()

	if err := s.Emit(proto.IntentTyping, nil); err != ErrClosed {
		t.Fatalf("emit after close = %v, want ErrClosed", err)
	}
	select {
	case err := <-h.disconnects:
		t.Fatalf("unexpected disconnect callback: %v", err)
	default:
	}
}

func TestDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := Dial(ctx, Options{URL: "ws://127.0.0.1:1/ws"}, Credentials{UserID: "u1"}, newRecordingHandler()); err == nil {
		t.Fatalf("expected dial error")
	}
}
