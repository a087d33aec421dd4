package answer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/astro5star/callshell/internal/bridge"
	"github.com/astro5star/callshell/internal/call"
	"github.com/astro5star/callshell/internal/database"
	"github.com/astro5star/callshell/internal/database/models"
	"github.com/astro5star/callshell/internal/session"
)

type recordingLauncher struct {
	mu   sync.Mutex
	urls []string
}

func (l *recordingLauncher) Launch(ctx context.Context, u string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.urls = append(l.urls, u)
	return nil
}

func (l *recordingLauncher) last(t *testing.T) url.Values {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.urls) == 0 {
		t.Fatal("no launch happened")
	}
	u, err := url.Parse(l.urls[len(l.urls)-1])
	if err != nil {
		t.Fatalf("parsing launch url: %v", err)
	}
	return u.Query()
}

func newTestDispatcher(t *testing.T, backendURL string) (*Dispatcher, *recordingLauncher) {
	t.Helper()
	db, err := database.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := session.NewStore(database.NewSessionKVRepository(db), nil)
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	if err := store.Save(context.Background(), models.UserSession{UserID: "u1", Token: "t1"}); err != nil {
		t.Fatalf("save session: %v", err)
	}

	launcher := &recordingLauncher{}
	b := bridge.New(store, launcher, backendURL)
	return NewDispatcher(backendURL, store, b), launcher
}

func testInvite() call.Invite {
	return call.Invite{CallID: "c1", SessionID: "c1", CallerName: "Asha", CallType: "audio", ReceivedAt: time.Now()}
}

func TestAcceptViaAPI(t *testing.T) {
	var gotBody acceptRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/native/accept-call" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(acceptResponse{OK: true, FromUserID: "astro-9", CallType: "audio"})
	}))
	defer srv.Close()

	d, launcher := newTestDispatcher(t, srv.URL)
	route, err := d.Answer(context.Background(), testInvite(), true)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if route != "api" {
		t.Errorf("route = %s, want api", route)
	}
	if gotBody.SessionID != "c1" || gotBody.UserID != "u1" || !gotBody.Accept {
		t.Errorf("request body = %+v", gotBody)
	}

	q := launcher.last(t)
	if q.Get("apiAcceptedCall") != "c1" || q.Get("fromUserId") != "astro-9" {
		t.Errorf("bootstrap query = %v", q)
	}
}

func TestAcceptFallsBackToSocket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	d, launcher := newTestDispatcher(t, srv.URL)
	route, err := d.Answer(context.Background(), testInvite(), true)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if route != "socket" {
		t.Errorf("route = %s, want socket", route)
	}

	q := launcher.last(t)
	if q.Get("acceptedCall") != "c1" || q.Get("autoAccept") != "true" {
		t.Errorf("bootstrap query = %v", q)
	}
}

func TestAcceptRefusedFallsBackToSocket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(acceptResponse{OK: false})
	}))
	defer srv.Close()

	d, _ := newTestDispatcher(t, srv.URL)
	route, err := d.Answer(context.Background(), testInvite(), true)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if route != "socket" {
		t.Errorf("route = %s, want socket", route)
	}
}

func TestRejectIsFireAndForget(t *testing.T) {
	type obs struct {
		accept bool
	}
	got := make(chan obs, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req acceptRequest
		json.NewDecoder(r.Body).Decode(&req)
		got <- obs{accept: req.Accept}
		json.NewEncoder(w).Encode(acceptResponse{OK: true})
	}))
	defer srv.Close()

	d, launcher := newTestDispatcher(t, srv.URL)
	route, err := d.Answer(context.Background(), testInvite(), false)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	if route != "reject" {
		t.Errorf("route = %s, want reject", route)
	}

	select {
	case o := <-got:
		if o.accept {
			t.Error("backend notified with accept=true on reject")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("backend never notified of reject")
	}

	q := launcher.last(t)
	if q.Get("rejectedCall") != "c1" {
		t.Errorf("bootstrap query = %v", q)
	}
}

func TestRejectSucceedsWithBackendDown(t *testing.T) {
	d, _ := newTestDispatcher(t, "http://127.0.0.1:1") // nothing listening
	route, err := d.Answer(context.Background(), testInvite(), false)
	if err != nil {
		t.Fatalf("reject must not fail on backend errors: %v", err)
	}
	if route != "reject" {
		t.Errorf("route = %s", route)
	}
}

func TestAcceptWithoutSessionFallsBackToSocket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	db, err := database.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store, err := session.NewStore(database.NewSessionKVRepository(db), nil)
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	launcher := &recordingLauncher{}
	b := bridge.New(store, launcher, srv.URL)
	d := NewDispatcher(srv.URL, store, b)

	inv := testInvite()
	inv.CallType = "video"
	route, err := d.Answer(context.Background(), inv, true)
	if err != nil {
		t.Fatalf("accept with no persisted session must still fall back to socket, got err: %v", err)
	}
	if route != "socket" {
		t.Errorf("route = %s, want socket", route)
	}

	q := launcher.last(t)
	if q.Get("acceptedCall") != "c1" || q.Get("autoAccept") != "true" || q.Get("callType") != "video" {
		t.Errorf("bootstrap query = %v", q)
	}
	// Nothing is signed in, so no saved* params ride along.
	if q.Get("savedUserId") != "" || q.Get("savedToken") != "" {
		t.Errorf("saved session leaked into bootstrap: %v", q)
	}
}
