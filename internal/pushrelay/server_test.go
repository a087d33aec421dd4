package pushrelay

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeSender records sends and can fail selected tokens.
type fakeSender struct {
	mu    sync.Mutex
	sends []struct {
		token   string
		payload PushPayload
	}
	failTokens map[string]error
}

func (f *fakeSender) Send(platform, token string, payload PushPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failTokens[token]; ok {
		return err
	}
	f.sends = append(f.sends, struct {
		token   string
		payload PushPayload
	}{token, payload})
	return nil
}

func newTestRelay(t *testing.T, sender PushSender) (*httptest.Server, *MemStore) {
	t.Helper()
	store := NewMemStore()
	srv := httptest.NewServer(NewServer(store, sender, store, nil))
	t.Cleanup(srv.Close)
	return srv, store
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func TestRegisterAndFanOut(t *testing.T) {
	sender := &fakeSender{}
	srv, _ := newTestRelay(t, sender)

	for i := 0; i < 2; i++ {
		resp := postJSON(t, srv.URL+"/v1/devices",
			fmt.Sprintf(`{"user_id":"u1","token":"tok-%d","platform":"fcm"}`, i))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("register status = %d", resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp := postJSON(t, srv.URL+"/v1/call",
		`{"user_id":"u1","call_id":"c1","caller_name":"Asha","call_type":"video"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("call status = %d", resp.StatusCode)
	}

	var env struct {
		Data CallPushResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data.Devices != 2 || env.Data.Delivered != 2 {
		t.Errorf("response = %+v", env.Data)
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sends) != 2 {
		t.Fatalf("sends = %d, want 2", len(sender.sends))
	}
	p := sender.sends[0].payload
	if p.Type != "incoming_call" || p.CallID != "c1" || p.CallerName != "Asha" || p.CallType != "video" {
		t.Errorf("payload = %+v", p)
	}
}

func TestCallValidation(t *testing.T) {
	srv, _ := newTestRelay(t, &fakeSender{})

	tests := []struct {
		body string
		want int
	}{
		{`{"call_id":"c1"}`, http.StatusBadRequest},
		{`{"user_id":"u1"}`, http.StatusBadRequest},
		{`{"user_id":"u1","call_id":"c1","call_type":"chat"}`, http.StatusBadRequest},
		{`{"user_id":"nobody","call_id":"c1"}`, http.StatusNotFound},
		{`not json`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		resp := postJSON(t, srv.URL+"/v1/call", tt.body)
		if resp.StatusCode != tt.want {
			t.Errorf("body %s: status = %d, want %d", tt.body, resp.StatusCode, tt.want)
		}
		resp.Body.Close()
	}
}

func TestDeadTokenPruned(t *testing.T) {
	sender := &fakeSender{failTokens: map[string]error{
		"dead": fmt.Errorf("%w: gone", ErrUnregisteredToken),
	}}
	srv, store := newTestRelay(t, sender)

	postJSON(t, srv.URL+"/v1/devices", `{"user_id":"u1","token":"dead"}`).Body.Close()
	postJSON(t, srv.URL+"/v1/devices", `{"user_id":"u1","token":"live"}`).Body.Close()

	resp := postJSON(t, srv.URL+"/v1/call", `{"user_id":"u1","call_id":"c1"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("call status = %d", resp.StatusCode)
	}

	devices, err := store.DevicesForUser("u1")
	if err != nil {
		t.Fatalf("devices: %v", err)
	}
	if len(devices) != 1 || devices[0].Token != "live" {
		t.Errorf("devices after prune = %+v", devices)
	}
}

func TestDeliveryLogWritten(t *testing.T) {
	sender := &fakeSender{failTokens: map[string]error{
		"bad": fmt.Errorf("fcm: send failed"),
	}}
	srv, store := newTestRelay(t, sender)

	postJSON(t, srv.URL+"/v1/devices", `{"user_id":"u1","token":"ok"}`).Body.Close()
	postJSON(t, srv.URL+"/v1/devices", `{"user_id":"u1","token":"bad"}`).Body.Close()
	postJSON(t, srv.URL+"/v1/call", `{"user_id":"u1","call_id":"c1"}`).Body.Close()

	entries := store.Entries()
	if len(entries) != 2 {
		t.Fatalf("log entries = %d, want 2", len(entries))
	}
	var ok, failed int
	for _, e := range entries {
		if e.CallID != "c1" || e.UserID != "u1" {
			t.Errorf("entry = %+v", e)
		}
		if e.Success {
			ok++
		} else {
			failed++
		}
	}
	if ok != 1 || failed != 1 {
		t.Errorf("ok=%d failed=%d", ok, failed)
	}
}

func TestTokenReassignment(t *testing.T) {
	srv, store := newTestRelay(t, &fakeSender{})

	postJSON(t, srv.URL+"/v1/devices", `{"user_id":"u1","token":"tok"}`).Body.Close()
	postJSON(t, srv.URL+"/v1/devices", `{"user_id":"u2","token":"tok"}`).Body.Close()

	u1, _ := store.DevicesForUser("u1")
	u2, _ := store.DevicesForUser("u2")
	if len(u1) != 0 || len(u2) != 1 {
		t.Errorf("token not reassigned: u1=%d u2=%d", len(u1), len(u2))
	}
}

func TestRemoveDevice(t *testing.T) {
	srv, store := newTestRelay(t, &fakeSender{})

	postJSON(t, srv.URL+"/v1/devices", `{"user_id":"u1","token":"tok"}`).Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/devices?token=tok", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	devices, _ := store.DevicesForUser("u1")
	if len(devices) != 0 {
		t.Errorf("device survives removal: %+v", devices)
	}
}
