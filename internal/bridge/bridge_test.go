package bridge

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/astro5star/callshell/internal/database"
	"github.com/astro5star/callshell/internal/database/models"
	"github.com/astro5star/callshell/internal/session"
)

type fakePage struct {
	mu         sync.Mutex
	ready      bool
	evals      []string
	loads      []string
	evalErr    error
	readyAfter int // probes answered "false" before ready counts
}

func (f *fakePage) Eval(ctx context.Context, script string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.evalErr != nil {
		return "", f.evalErr
	}
	f.evals = append(f.evals, script)
	if strings.Contains(script, "return") { // probe
		if f.readyAfter > 0 {
			f.readyAfter--
			return "false", nil
		}
		if f.ready {
			return "true", nil
		}
		return "false", nil
	}
	return "", nil
}

func (f *fakePage) Load(ctx context.Context, u string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads = append(f.loads, u)
	return nil
}

func (f *fakePage) injected() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.evals {
		if !strings.Contains(s, "return") {
			out = append(out, s)
		}
	}
	return out
}

type fakeLauncher struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (f *fakeLauncher) Launch(ctx context.Context, u string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.urls = append(f.urls, u)
	return nil
}

func newTestBridge(t *testing.T, launcher Launcher) *Bridge {
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
	if err := store.Save(context.Background(), models.UserSession{
		UserID: "u1", Token: "tok 1", UserType: "user", Name: "Asha K", Phone: "+91 98",
	}); err != nil {
		t.Fatalf("save session: %v", err)
	}
	return New(store, launcher, "https://astro5star.com")
}

func TestHotDelivery(t *testing.T) {
	b := newTestBridge(t, nil)
	page := &fakePage{ready: true}
	b.AttachPage(context.Background(), page)

	a := NewAction(AcceptViaAPI, "s1", "c1", "Asha", "audio", "from-7", "u1")
	if err := b.Dispatch(context.Background(), a); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	inj := page.injected()
	if len(inj) != 1 {
		t.Fatalf("injected %d scripts, want 1", len(inj))
	}
	for _, want := range []string{"window.initSession('s1'", "'from-7'", "'audio'"} {
		if !strings.Contains(inj[0], want) {
			t.Errorf("script missing %q: %s", want, inj[0])
		}
	}
}

func TestHotDeliveryWaitsForReadiness(t *testing.T) {
	b := newTestBridge(t, nil)
	page := &fakePage{ready: true, readyAfter: 3}
	b.AttachPage(context.Background(), page)

	a := NewAction(AcceptViaAPI, "s1", "c1", "Asha", "audio", "from-7", "u1")
	start := time.Now()
	if err := b.Dispatch(context.Background(), a); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("expected at least 3 retry intervals, took %v", elapsed)
	}
	if len(page.injected()) != 1 {
		t.Fatalf("injected = %v", page.injected())
	}
}

func TestProbeExhaustionFails(t *testing.T) {
	b := newTestBridge(t, nil)
	page := &fakePage{ready: false}
	b.AttachPage(context.Background(), page)

	// Shrink the budget by cancelling early: 20 x 500ms is too slow for a
	// unit test, so drive the socket path with a deadline instead.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	a := NewAction(Reject, "s1", "c1", "", "audio", "", "u1")
	err := b.Dispatch(ctx, a)
	if err == nil {
		t.Fatal("expected failure")
	}
	if len(page.injected()) != 0 {
		t.Errorf("scripts injected despite never ready: %v", page.injected())
	}
}

func TestColdLaunch(t *testing.T) {
	launcher := &fakeLauncher{}
	b := newTestBridge(t, launcher)

	a := NewAction(AcceptViaSocket, "s1", "c1", "Asha", "video", "", "u1")
	if err := b.Dispatch(context.Background(), a); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	launcher.mu.Lock()
	defer launcher.mu.Unlock()
	if len(launcher.urls) != 1 {
		t.Fatalf("launched %d times, want 1", len(launcher.urls))
	}
	u, err := url.Parse(launcher.urls[0])
	if err != nil {
		t.Fatalf("parsing launch url: %v", err)
	}
	q := u.Query()
	if q.Get("acceptedCall") != "s1" || q.Get("autoAccept") != "true" || q.Get("callType") != "video" {
		t.Errorf("bootstrap query = %v", q)
	}
	if q.Get("savedUserId") != "u1" || q.Get("savedToken") != "tok 1" || q.Get("savedName") != "Asha K" {
		t.Errorf("saved session missing from bootstrap: %v", q)
	}
	// The raw query must carry the phone's plus sign percent-encoded, not
	// as a space-meaning plus.
	if !strings.Contains(u.RawQuery, "savedPhone=%2B91+98") {
		t.Errorf("phone not encoded in query: %s", u.RawQuery)
	}
}

func TestColdLaunchAPIAccept(t *testing.T) {
	launcher := &fakeLauncher{}
	b := newTestBridge(t, launcher)

	a := NewAction(AcceptViaAPI, "s1", "c1", "Asha", "audio", "from-7", "u1")
	if err := b.Dispatch(context.Background(), a); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	launcher.mu.Lock()
	defer launcher.mu.Unlock()
	u, _ := url.Parse(launcher.urls[0])
	q := u.Query()
	if q.Get("apiAcceptedCall") != "s1" || q.Get("fromUserId") != "from-7" {
		t.Errorf("bootstrap query = %v", q)
	}
	if q.Get("autoAccept") != "" {
		t.Error("api accept must not carry autoAccept")
	}
}

func TestPendingActionConsumedOnAttach(t *testing.T) {
	b := newTestBridge(t, &fakeLauncher{err: errors.New("no display")})

	a := NewAction(ShowPopup, "s1", "c1", "Asha", "audio", "", "u1")
	if err := b.Dispatch(context.Background(), a); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !b.Stats().Pending {
		t.Fatal("action should be parked")
	}

	page := &fakePage{ready: true}
	b.AttachPage(context.Background(), page)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(page.injected()) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	inj := page.injected()
	if len(inj) != 1 || !strings.Contains(inj[0], "showIncomingCallPopup('s1'") {
		t.Fatalf("injected = %v", inj)
	}
	if b.Stats().Pending {
		t.Error("pending slot should be consumed exactly once")
	}
}

func TestSocketAnswerScript(t *testing.T) {
	s := actionScript(NewAction(AcceptViaSocket, "c1", "c1", "Asha", "video", "", "u1"))
	for _, want := range []string{
		"window.state.socket.emit('answer-session-native'",
		"accept: true",
		"callType: 'video'",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("script missing %q: %s", want, s)
		}
	}
	if strings.Contains(s, "userId:") {
		t.Errorf("emit payload must not carry a userId: %s", s)
	}
	// The join waits for the ack and takes fromUserId from the reply.
	if !strings.Contains(s, "if (res && res.ok && res.fromUserId) { window.initSession('c1', res.fromUserId, 'video', false, null); }") {
		t.Errorf("join not gated on the ack reply: %s", s)
	}

	reject := actionScript(NewAction(Reject, "c1", "c1", "", "audio", "", "u1"))
	if !strings.Contains(reject, "accept: false") || strings.Contains(reject, "callType") {
		t.Errorf("reject payload = %s", reject)
	}
}

func TestReadinessProbes(t *testing.T) {
	if p := probeScript(AcceptViaSocket); !strings.Contains(p, "window.state.me") {
		t.Errorf("socket accept probe must require the local user: %s", p)
	}
	if p := probeScript(Reject); !strings.Contains(p, "window.state.socket.connected") {
		t.Errorf("reject probe = %s", p)
	}
	if p := probeScript(Reject); strings.Contains(p, "window.state.me") {
		t.Errorf("reject must not wait for the local user: %s", p)
	}
}

func TestJSStringEscaping(t *testing.T) {
	got := jsString(`a'b\c` + "\nd")
	want := `'a\'b\\c\nd'`
	if got != want {
		t.Errorf("jsString = %s, want %s", got, want)
	}
	if s := jsString("</script>"); strings.Contains(s, "<") {
		t.Errorf("unescaped angle bracket: %s", s)
	}
	if s := jsString("a b c"); s != `'a b c'` {
		t.Errorf("line separators not escaped: %s", s)
	}
}

func TestRetryPolicies(t *testing.T) {
	tests := []struct {
		kind     ActionKind
		interval time.Duration
		attempts int
	}{
		{AcceptViaAPI, 500 * time.Millisecond, 20},
		{ShowPopup, 500 * time.Millisecond, 20},
		{AcceptViaSocket, time.Second, 10},
		{Reject, time.Second, 10},
	}
	for _, tt := range tests {
		interval, attempts := tt.kind.retryPolicy()
		if interval != tt.interval || attempts != tt.attempts {
			t.Errorf("%s policy = %v x %d, want %v x %d", tt.kind, interval, attempts, tt.interval, tt.attempts)
		}
	}
}
