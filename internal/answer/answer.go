// Package answer carries the user's accept or reject to the backend and
// hands the page what it needs to join or tear down the session.
package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/astro5star/callshell/internal/bridge"
	"github.com/astro5star/callshell/internal/call"
	"github.com/astro5star/callshell/internal/session"
)

const (
	acceptTimeout = 10 * time.Second
	rejectTimeout = 5 * time.Second
)

// Dispatcher resolves each decision to a delivery route. Accepts try the
// backend answer endpoint first and fall back to the page's socket; rejects
// notify the backend best-effort and always go through the socket.
type Dispatcher struct {
	baseURL  string
	client   *http.Client
	sessions *session.Store
	bridge   *bridge.Bridge
}

func NewDispatcher(baseURL string, sessions *session.Store, b *bridge.Bridge) *Dispatcher {
	return &Dispatcher{
		baseURL:  baseURL,
		client:   &http.Client{Timeout: acceptTimeout},
		sessions: sessions,
		bridge:   b,
	}
}

// acceptRequest is the answer endpoint's wire format.
type acceptRequest struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Accept    bool   `json:"accept"`
	CallType  string `json:"callType,omitempty"`
}

type acceptResponse struct {
	OK         bool   `json:"ok"`
	FromUserID string `json:"fromUserId"`
	CallType   string `json:"callType"`
}

// Answer implements call.Answerer. A missing persisted session does not
// stop the answer: the backend refuses the empty userId and the decision
// rides the socket path, where a cold bootstrap can still sign the user in.
func (d *Dispatcher) Answer(ctx context.Context, inv call.Invite, accept bool) (string, error) {
	userID := ""
	sess, err := d.sessions.Get(ctx)
	if err != nil {
		slog.Warn("reading session for answer", "call_id", inv.CallID, "error", err)
	} else if sess != nil {
		userID = sess.UserID
	}

	if !accept {
		return d.reject(ctx, inv, userID)
	}
	return d.accept(ctx, inv, userID)
}

func (d *Dispatcher) accept(ctx context.Context, inv call.Invite, userID string) (string, error) {
	resp, err := d.postAccept(ctx, inv, userID, true, acceptTimeout)
	if err == nil && resp.OK {
		callType := resp.CallType
		if callType == "" {
			callType = inv.CallType
		}
		action := bridge.NewAction(bridge.AcceptViaAPI, inv.SessionID, inv.CallID, inv.CallerName, callType, resp.FromUserID, userID)
		if err := d.bridge.Dispatch(ctx, action); err != nil {
			return "api", fmt.Errorf("delivering accepted call to page: %w", err)
		}
		return "api", nil
	}
	if err != nil {
		slog.Warn("answer endpoint unreachable, falling back to page socket", "call_id", inv.CallID, "error", err)
	} else {
		slog.Warn("answer endpoint refused accept, falling back to page socket", "call_id", inv.CallID)
	}

	action := bridge.NewAction(bridge.AcceptViaSocket, inv.SessionID, inv.CallID, inv.CallerName, inv.CallType, "", userID)
	if err := d.bridge.Dispatch(ctx, action); err != nil {
		return "socket", fmt.Errorf("delivering accept over page socket: %w", err)
	}
	return "socket", nil
}

// reject notifies the backend without blocking on its answer and always
// pushes the socket reject through the page. A reject must never fail the
// call flow: the user already decided.
func (d *Dispatcher) reject(ctx context.Context, inv call.Invite, userID string) (string, error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rejectTimeout)
		defer cancel()
		if _, err := d.postAccept(ctx, inv, userID, false, rejectTimeout); err != nil {
			slog.Debug("reject notification to backend failed", "call_id", inv.CallID, "error", err)
		}
	}()

	action := bridge.NewAction(bridge.Reject, inv.SessionID, inv.CallID, inv.CallerName, inv.CallType, "", userID)
	if err := d.bridge.Dispatch(ctx, action); err != nil {
		slog.Warn("reject not delivered to page", "call_id", inv.CallID, "error", err)
	}
	return "reject", nil
}

func (d *Dispatcher) postAccept(ctx context.Context, inv call.Invite, userID string, accept bool, timeout time.Duration) (*acceptResponse, error) {
	body, err := json.Marshal(acceptRequest{
		SessionID: inv.SessionID,
		UserID:    userID,
		Accept:    accept,
		CallType:  inv.CallType,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding answer request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/api/native/accept-call", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building answer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting answer: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(httpResp.Body, 4096))
		return nil, fmt.Errorf("answer endpoint returned %d", httpResp.StatusCode)
	}

	var resp acceptResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding answer response: %w", err)
	}
	return &resp, nil
}
