// Package pushrelay is the backend side of call delivery: it keeps the
// registry of user devices and fans incoming-call pushes out to them.
package pushrelay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// ErrUnregisteredToken marks a push token the provider no longer knows.
// The device row is pruned when a send fails with it.
var ErrUnregisteredToken = errors.New("push token no longer valid")

// DeviceStore abstracts the device registry.
type DeviceStore interface {
	// RegisterDevice upserts a device row by token and returns it.
	RegisterDevice(userID, token, platform string) (*Device, error)

	// DevicesForUser returns every device registered for a user.
	DevicesForUser(userID string) ([]Device, error)

	// RemoveDevice drops a device by token.
	RemoveDevice(token string) error
}

// PushSender delivers push payloads to a device token.
type PushSender interface {
	Send(platform, token string, payload PushPayload) error
}

// DeliveryLogger records push delivery attempts for audit and debugging.
type DeliveryLogger interface {
	Log(entry DeliveryLogEntry) error
}

// Server holds the push relay HTTP handler dependencies.
type Server struct {
	router      *chi.Mux
	store       DeviceStore
	sender      PushSender
	deliveryLog DeliveryLogger
	rateLimiter *RateLimiter
}

// NewServer creates a push relay HTTP server with all routes mounted.
// If rateLimiter is non-nil, rate limiting is applied to the call endpoint.
func NewServer(store DeviceStore, sender PushSender, deliveryLog DeliveryLogger, rateLimiter *RateLimiter) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		store:       store,
		sender:      sender,
		deliveryLog: deliveryLog,
		rateLimiter: rateLimiter,
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router returns the underlying chi.Mux so the caller can add middleware.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// routes mounts all push relay API routes under /v1.
func (s *Server) routes() {
	r := s.router

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		if s.rateLimiter != nil {
			r.With(s.rateLimiter.Middleware).Post("/call", s.handleCall)
		} else {
			r.Post("/call", s.handleCall)
		}
		r.Post("/devices", s.handleRegisterDevice)
		r.Delete("/devices", s.handleRemoveDevice)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCall handles POST /v1/call — fan an incoming-call push out to
// every device of the callee.
func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	if s.store == nil || s.sender == nil {
		writeError(w, http.StatusServiceUnavailable, "push relay not configured")
		return
	}

	var req CallPushRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.CallID == "" {
		writeError(w, http.StatusBadRequest, "call_id is required")
		return
	}
	if req.CallType != "" && req.CallType != "audio" && req.CallType != "video" {
		writeError(w, http.StatusBadRequest, "call_type must be audio or video")
		return
	}

	devices, err := s.store.DevicesForUser(req.UserID)
	if err != nil {
		slog.Error("call push: device lookup failed", "error", err, "user_id", req.UserID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if len(devices) == 0 {
		writeError(w, http.StatusNotFound, "no devices registered for user")
		return
	}

	payload := PushPayload{
		Type:       "incoming_call",
		CallID:     req.CallID,
		CallerName: req.CallerName,
		CallType:   req.CallType,
	}

	delivered := 0
	for _, dev := range devices {
		sendErr := s.sender.Send(dev.Platform, dev.Token, payload)
		if sendErr == nil {
			delivered++
		} else if errors.Is(sendErr, ErrUnregisteredToken) {
			if err := s.store.RemoveDevice(dev.Token); err != nil {
				slog.Error("call push: pruning dead device failed", "error", err)
			} else {
				slog.Info("call push: pruned dead device", "user_id", dev.UserID, "platform", dev.Platform)
			}
		} else {
			slog.Error("call push: delivery failed", "error", sendErr, "platform", dev.Platform, "call_id", req.CallID)
		}

		if s.deliveryLog != nil {
			entry := DeliveryLogEntry{
				UserID:    req.UserID,
				Platform:  dev.Platform,
				CallID:    req.CallID,
				Success:   sendErr == nil,
				Timestamp: time.Now(),
			}
			if sendErr != nil {
				entry.Error = sendErr.Error()
			}
			if logErr := s.deliveryLog.Log(entry); logErr != nil {
				slog.Error("call push: failed to write delivery log", "error", logErr)
			}
		}
	}

	if delivered == 0 {
		writeError(w, http.StatusBadGateway, "push delivery failed")
		return
	}

	slog.Info("call push sent", "call_id", req.CallID, "user_id", req.UserID, "devices", len(devices), "delivered", delivered)

	writeJSON(w, http.StatusOK, CallPushResponse{
		CallID:    req.CallID,
		Devices:   len(devices),
		Delivered: delivered,
	})
}

// handleRegisterDevice handles POST /v1/devices.
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "push relay not configured")
		return
	}

	var req RegisterDeviceRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	if req.Platform == "" {
		req.Platform = "fcm"
	}
	if req.Platform != "fcm" {
		writeError(w, http.StatusBadRequest, "platform must be fcm")
		return
	}

	dev, err := s.store.RegisterDevice(req.UserID, req.Token, req.Platform)
	if err != nil {
		slog.Error("device register: store error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("device registered", "user_id", req.UserID, "platform", req.Platform)

	writeJSON(w, http.StatusOK, RegisterDeviceResponse{
		DeviceID:     dev.ID,
		RegisteredAt: dev.RegisteredAt,
	})
}

// handleRemoveDevice handles DELETE /v1/devices.
func (s *Server) handleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "push relay not configured")
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "token query param is required")
		return
	}

	if err := s.store.RemoveDevice(token); err != nil {
		slog.Error("device remove: store error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// envelope is the standard response wrapper for the push relay API.
type envelope struct {
	Data  any    `json:"data"`
	Error string `json:"error,omitempty"`
}

// writeJSON writes a JSON response with the given status code and data payload.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Data: data}); err != nil {
		slog.Error("failed to encode json response", "error", err)
	}
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Error: msg}); err != nil {
		slog.Error("failed to encode json error response", "error", err)
	}
}

// maxRequestBodySize is the upper limit for JSON request bodies (1 MB).
const maxRequestBodySize = 1 << 20

// readJSON decodes a JSON request body into dst with size limiting.
// Returns a user-friendly error string on failure, or "" on success.
func readJSON(r *http.Request, dst any) string {
	r.Body = http.MaxBytesReader(nil, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return "invalid request body"
	}

	if dec.More() {
		return "request body must contain a single json object"
	}

	return ""
}
