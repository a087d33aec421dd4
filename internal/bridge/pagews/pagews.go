// Package pagews is the live transport between the agent and the embedded
// page host. The page host holds one WebSocket open; the agent evaluates
// scripts and pushes navigations through it, and the page calls back in
// to read and write the stored user session.
package pagews

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/astro5star/callshell/internal/bridge"
	"github.com/astro5star/callshell/internal/database/models"
	"github.com/astro5star/callshell/internal/permission"
	"github.com/astro5star/callshell/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	// evalWait bounds one script round trip when the caller's ctx has no
	// earlier deadline.
	evalWait = 15 * time.Second

	maxFrameSize = 256 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The page host connects from its own local origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// frame is the single wire shape in both directions.
type frame struct {
	ID     string            `json:"id,omitempty"`
	Op     string            `json:"op"`
	Script string            `json:"script,omitempty"`
	URL    string            `json:"url,omitempty"`
	Value  string            `json:"value,omitempty"`
	Error  string            `json:"error,omitempty"`
	Method string            `json:"method,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

// Conn is one attached page. It implements bridge.Page.
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan frame
	closed  bool
}

func newConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws, pending: make(map[string]chan frame)}
}

// Eval runs script in the page and waits for its result frame.
func (c *Conn) Eval(ctx context.Context, script string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, evalWait)
		defer cancel()
	}

	id := uuid.NewString()
	ch := make(chan frame, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", fmt.Errorf("page connection closed")
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(frame{ID: id, Op: "eval", Script: script}); err != nil {
		return "", err
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case f := <-ch:
		if f.Error != "" {
			return "", fmt.Errorf("page script error: %s", f.Error)
		}
		return f.Value, nil
	}
}

// Load navigates the page. Fire-and-forget: a navigation tears down the
// page's script world, so there is nothing to wait for.
func (c *Conn) Load(ctx context.Context, url string) error {
	return c.write(frame{Op: "load", URL: url})
}

func (c *Conn) write(f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(f); err != nil {
		return fmt.Errorf("writing to page: %w", err)
	}
	return nil
}

func (c *Conn) resolve(f frame) {
	c.mu.Lock()
	ch, ok := c.pending[f.ID]
	c.mu.Unlock()
	if ok {
		ch <- f
	}
}

func (c *Conn) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.ws.Close()
}

// Handler upgrades page-host connections, authenticates them and pumps
// frames until the page goes away.
type Handler struct {
	auth     *Authenticator
	bridge   *bridge.Bridge
	sessions *session.Store
	gate     *permission.Gate
}

// NewHandler builds the page endpoint. gate may be nil; the permission
// methods then report not-granted.
func NewHandler(auth *Authenticator, b *bridge.Bridge, sessions *session.Store, gate *permission.Gate) *Handler {
	return &Handler{auth: auth, bridge: b, sessions: sessions, gate: gate}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Verify(r.URL.Query().Get("token")); err != nil {
		slog.Warn("page connection rejected", "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("upgrading page connection", "error", err)
		return
	}

	conn := newConn(ws)
	defer conn.close()

	ws.SetReadLimit(maxFrameSize)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	h.bridge.AttachPage(r.Context(), conn)
	defer h.bridge.DetachPage(conn)

	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-ticker.C:
				conn.writeMu.Lock()
				ws.SetWriteDeadline(time.Now().Add(writeWait))
				err := ws.WriteMessage(websocket.PingMessage, nil)
				conn.writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		var f frame
		if err := ws.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("page connection dropped", "error", err)
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(pongWait))

		switch f.Op {
		case "result":
			conn.resolve(f)
		case "call":
			h.handleCall(r.Context(), conn, f)
		default:
			slog.Warn("unknown page frame ignored", "op", f.Op)
		}
	}
}

// handleCall serves the page's inbound API: the bridge surface the page's
// script expects from its host.
func (h *Handler) handleCall(ctx context.Context, conn *Conn, f frame) {
	reply := func(value, errMsg string) {
		if f.ID == "" {
			return
		}
		if err := conn.write(frame{ID: f.ID, Op: "result", Value: value, Error: errMsg}); err != nil {
			slog.Error("replying to page call", "method", f.Method, "error", err)
		}
	}

	switch f.Method {
	case "saveUserSession":
		sess := models.UserSession{
			UserID:   f.Params["userId"],
			Token:    f.Params["token"],
			UserType: f.Params["userType"],
			Name:     f.Params["name"],
			Phone:    f.Params["phone"],
		}
		if !sess.Valid() {
			reply("", "userId and token are required")
			return
		}
		if err := h.sessions.Save(ctx, sess); err != nil {
			slog.Error("saving session from page", "error", err)
			reply("", "save failed")
			return
		}
		reply("ok", "")
	case "getUserSession":
		js, err := h.sessions.JSON(ctx)
		if err != nil {
			slog.Error("reading session for page", "error", err)
			reply("", "read failed")
			return
		}
		reply(js, "")
	case "clearUserSession":
		if err := h.sessions.Clear(ctx); err != nil {
			slog.Error("clearing session from page", "error", err)
			reply("", "clear failed")
			return
		}
		reply("ok", "")
	case "hasNotificationPermission":
		reply(boolValue(h.gate != nil && h.gate.Has(ctx, permission.Notifications)), "")
	case "requestNotificationPermission":
		reply(boolValue(h.gate != nil && h.gate.Request(ctx, permission.Notifications)), "")
	case "requestAudioPermission":
		reply(boolValue(h.gate != nil && h.gate.Request(ctx, permission.RecordAudio)), "")
	case "log":
		slog.Info("page log", "message", f.Params["message"])
		reply("ok", "")
	default:
		slog.Warn("unknown page method", "method", f.Method)
		reply("", "unknown method")
	}
}

func boolValue(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
