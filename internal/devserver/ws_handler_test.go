package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/bookchat/internal/config"
	"github.com/vovakirdan/bookchat/internal/core"
	"github.com/vovakirdan/bookchat/internal/proto"
	"github.com/vovakirdan/bookchat/internal/realtime"
	"github.com/vovakirdan/bookchat/internal/service/conversations"
	"github.com/vovakirdan/bookchat/internal/transport/ws"
)

func wsURL(ts *httptest.Server) string {
	return strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
}

// testClient is the full client stack for one user.
type testClient struct {
	store *core.Store
	rt    *realtime.Manager
	svc   *conversations.Service
}

func newTestClient(t *testing.T, ts *httptest.Server, userID string, role config.Role) *testClient {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	st := core.NewStore(nil)
	go st.Run(ctx)

	id := staticIdentity{UserID: userID, Source: "test"}
	rt := realtime.NewManager(realtime.WSDialer{Options: ws.Options{URL: wsURL(ts)}}, id, st, realtime.Options{})
	svc := conversations.New(newDirectory(ts, userID, role), rt, st, nil, nil)

	t.Cleanup(func() {
		rt.Disconnect()
		cancel()
	})

	if err := rt.Connect(ctx); err != nil {
		t.Fatalf("%s connect: %v", userID, err)
	}
	if err := svc.LoadRooms(ctx); err != nil {
		t.Fatalf("%s load rooms: %v", userID, err)
	}
	return &testClient{store: st, rt: rt, svc: svc}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func joined(b *Backend, userID, roomID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.sessions[userID] {
		if s.inRoom(roomID) {
			return true
		}
	}
	return false
}

func TestConversationBetweenTwoClients(t *testing.T) {
	ts, b := startTestServer(t, 0)
	ctx := context.Background()

	owner := newTestClient(t, ts, DemoOwner, config.RoleOwner)
	if err := owner.svc.OpenRoom(ctx, "room-court"); err != nil {
		t.Fatalf("owner open room: %v", err)
	}
	eventually(t, "owner to join", func() bool { return joined(b, DemoOwner, "room-court") })

	customer := newTestClient(t, ts, DemoCustomer, config.RoleCustomer)
	if got := customer.store.Snapshot().Unread; got != 1 {
		t.Fatalf("customer unread = %d, want 1", got)
	}

	// Opening the unread room marks it read and sends a receipt to the owner.
	if err := customer.svc.OpenRoom(ctx, "room-court"); err != nil {
		t.Fatalf("customer open room: %v", err)
	}
	if got := customer.store.Snapshot().Unread; got != 0 {
		t.Fatalf("customer unread after open = %d", got)
	}
	eventually(t, "read receipt", func() bool {
		cur := owner.store.Snapshot().Current
		return cur != nil && len(cur.Messages) == 2 && cur.Messages[1].IsRead
	})
	eventually(t, "customer to join", func() bool { return joined(b, DemoCustomer, "room-court") })

	if err := customer.svc.Typing(ctx, true); err != nil {
		t.Fatalf("typing: %v", err)
	}
	eventually(t, "typing indicator", func() bool {
		users := owner.store.Snapshot().TypingUsers()
		return len(users) == 1 && users[0] == DemoCustomer
	})

	sent, err := customer.svc.Send(ctx, "see you at ten", core.MessageTypeText, nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !sent.Pending() {
		t.Fatalf("sent message should start pending: %+v", sent)
	}

	eventually(t, "message at owner", func() bool {
		cur := owner.store.Snapshot().Current
		return cur != nil && len(cur.Messages) == 3 && cur.Messages[2].Content == "see you at ten"
	})
	eventually(t, "confirmation at sender", func() bool {
		cur := customer.store.Snapshot().Current
		if cur == nil || len(cur.Messages) != 3 {
			return false
		}
		last := cur.Messages[2]
		return !last.Pending() && last.ID != "" && last.SenderID == DemoCustomer
	})

	st := owner.store.Snapshot()
	if st.Rooms[0].ID != "room-court" || st.Rooms[0].HasUnread {
		t.Fatalf("focused room should lead the list without unread: %+v", st.Rooms[0])
	}
}

func TestUnfocusedMessageMarksRoomUnread(t *testing.T) {
	ts, _ := startTestServer(t, 0)
	ctx := context.Background()

	owner := newTestClient(t, ts, DemoOwner, config.RoleOwner)
	customer := newTestClient(t, ts, DemoCustomer, config.RoleCustomer)

	if err := customer.svc.OpenRoom(ctx, "room-lesson"); err != nil {
		t.Fatalf("open room: %v", err)
	}
	if _, err := customer.svc.Send(ctx, "can we move it to 11?", core.MessageTypeText, nil); err != nil {
		t.Fatalf("send: %v", err)
	}

	eventually(t, "directory update", func() bool {
		st := owner.store.Snapshot()
		return len(st.Rooms) > 0 && st.Rooms[0].ID == "room-lesson" && st.Rooms[0].HasUnread
	})
	if st := owner.store.Snapshot(); st.Unread != st.UnreadRooms() {
		t.Fatalf("unread counter %d does not match flags %d", st.Unread, st.UnreadRooms())
	}
}

func TestWebSocketRejectsAnonymous(t *testing.T) {
	ts, _ := startTestServer(t, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, wsURL(ts), nil)
	if err == nil {
		t.Fatal("expected dial without credentials to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func dialRaw(t *testing.T, ctx context.Context, ts *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, wsURL(ts)+"?userId="+userID, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, event string, data any) {
	t.Helper()
	env, err := proto.NewEnvelope(event, data)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if err := wsjson.Write(ctx, conn, env); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readError(t *testing.T, ctx context.Context, conn *websocket.Conn) proto.ErrorData {
	t.Helper()
	for {
		var env proto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			t.Fatalf("read: %v", err)
		}
		if env.Event != proto.EventError {
			continue
		}
		var data proto.ErrorData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			t.Fatalf("decode error: %v", err)
		}
		return data
	}
}

func TestWebSocketIntentErrors(t *testing.T) {
	ts, _ := startTestServer(t, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialRaw(t, ctx, ts, DemoCoach)

	send(t, ctx, conn, proto.IntentJoinChat, proto.RoomData{ChatRoomID: "room-court"})
	if got := readError(t, ctx, conn); got.Code != CodeForbidden {
		t.Fatalf("code = %q, want %q", got.Code, CodeForbidden)
	}

	send(t, ctx, conn, "dance", nil)
	if got := readError(t, ctx, conn); got.Code != CodeUnknown {
		t.Fatalf("code = %q, want %q", got.Code, CodeUnknown)
	}

	send(t, ctx, conn, proto.IntentTyping, nil)
	if got := readError(t, ctx, conn); got.Code != CodeBadRequest {
		t.Fatalf("code = %q, want %q", got.Code, CodeBadRequest)
	}
}

func TestWebSocketRateLimit(t *testing.T) {
	ts, _ := startTestServer(t, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialRaw(t, ctx, ts, DemoCustomer)

	for i := 0; i < 3; i++ {
		send(t, ctx, conn, proto.IntentJoinChat, proto.RoomData{ChatRoomID: "room-court"})
	}
	if got := readError(t, ctx, conn); got.Code != CodeRateLimited {
		t.Fatalf("code = %q, want %q", got.Code, CodeRateLimited)
	}
}
