package devserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/vovakirdan/bookchat/internal/auth"
	"github.com/vovakirdan/bookchat/internal/config"
	"github.com/vovakirdan/bookchat/internal/core"
	"github.com/vovakirdan/bookchat/internal/directory"
	"github.com/vovakirdan/bookchat/internal/identity"
)

var testJWT = &auth.JWTConfig{Secret: []byte("test-secret"), Issuer: "bookchat-dev", TTL: time.Hour}

func startTestServer(t *testing.T, rateLimit int) (*httptest.Server, *Backend) {
	t.Helper()

	b := NewBackend(clock.New(), nil)
	Seed(b, time.Now().UTC())

	ts := httptest.NewServer(NewRouter(b, Options{JWT: testJWT, RateLimit: rateLimit}))
	t.Cleanup(ts.Close)
	return ts, b
}

type staticIdentity identity.Identity

func (s staticIdentity) Resolve(context.Context) (identity.Identity, error) {
	return identity.Identity(s), nil
}

func newDirectory(ts *httptest.Server, userID string, role config.Role) *directory.Client {
	return directory.NewClient(directory.Config{
		BaseURL:    ts.URL,
		Role:       role,
		HTTPClient: ts.Client(),
		Identity:   staticIdentity{UserID: userID, Source: "test"},
	})
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := startTestServer(t, 0)

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestAPIRequiresCredentials(t *testing.T) {
	ts, _ := startTestServer(t, 0)

	resp, err := ts.Client().Get(ts.URL + "/api/chat/rooms")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/chat/rooms", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err = ts.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status with bad token = %d, want 401", resp.StatusCode)
	}
}

func TestDirectoryRoundTrip(t *testing.T) {
	ts, _ := startTestServer(t, 0)
	ctx := context.Background()
	dir := newDirectory(ts, DemoCustomer, config.RoleCustomer)

	rooms, err := dir.ListRooms(ctx)
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	if len(rooms) != 3 || rooms[0].ID != "room-court" || !rooms[0].HasUnread {
		t.Fatalf("unexpected rooms: %+v", rooms)
	}
	if rooms[0].Provider.ID != DemoOwner || rooms[0].BookingID != "booking-100" {
		t.Fatalf("room fields not mapped: %+v", rooms[0])
	}

	room, err := dir.GetRoom(ctx, "room-court")
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if len(room.Messages) != 2 || room.Messages[1].SenderID != DemoOwner {
		t.Fatalf("unexpected history: %+v", room.Messages)
	}

	n, err := dir.UnreadCount(ctx)
	if err != nil || n != 1 {
		t.Fatalf("unread = %d, %v", n, err)
	}
	id, err := dir.MarkRead(ctx, core.ID("room-court"))
	if err != nil || id != "room-court" {
		t.Fatalf("mark read = %q, %v", id, err)
	}
	if n, _ := dir.UnreadCount(ctx); n != 0 {
		t.Fatalf("unread after mark read = %d", n)
	}
}

func TestDirectoryErrors(t *testing.T) {
	ts, _ := startTestServer(t, 0)
	ctx := context.Background()

	coach := newDirectory(ts, DemoCoach, config.RoleCoach)
	var apiErr *directory.APIError
	if _, err := coach.GetRoom(ctx, "room-court"); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
		t.Fatalf("err = %v, want 403", err)
	}
	if _, err := coach.GetRoom(ctx, "missing"); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("err = %v, want 404", err)
	}

	// An empty list comes back as data:null.
	stranger := newDirectory(ts, "nobody", config.RoleOwner)
	rooms, err := stranger.ListRooms(ctx)
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	if rooms == nil || len(rooms) != 0 {
		t.Fatalf("rooms = %#v, want empty non-nil", rooms)
	}
}

func TestBearerTokenIdentifiesCaller(t *testing.T) {
	ts, _ := startTestServer(t, 0)

	token, err := auth.GenerateToken(testJWT, DemoOwner, string(config.RoleOwner))
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	dir := directory.NewClient(directory.Config{
		BaseURL:    ts.URL,
		Role:       config.RoleOwner,
		HTTPClient: ts.Client(),
		Identity:   staticIdentity{Token: token, UserID: "header-is-ignored", Source: "test"},
	})

	rooms, err := dir.ListRooms(context.Background())
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	if len(rooms) != 3 {
		t.Fatalf("owner rooms = %d, want 3", len(rooms))
	}
}
