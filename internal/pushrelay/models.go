package pushrelay

import "time"

// Device is one registered push target for a user. A user can hold several
// devices; a call push fans out to all of them.
type Device struct {
	ID           int64
	UserID       string
	Token        string
	Platform     string // "fcm"
	RegisteredAt time.Time
	LastSeenAt   time.Time
}

// DeliveryLogEntry records a single push delivery attempt.
type DeliveryLogEntry struct {
	UserID    string
	Platform  string
	CallID    string
	Success   bool
	Error     string
	Timestamp time.Time
}

// PushPayload is the data sent inside a push notification. The keys of the
// data map on the wire match what the device agent parses.
type PushPayload struct {
	Type       string `json:"type"` // "incoming_call"
	CallID     string `json:"callId"`
	CallerName string `json:"callerName"`
	CallType   string `json:"callType"` // "audio" or "video"
}

// RegisterDeviceRequest is the JSON body for POST /v1/devices.
type RegisterDeviceRequest struct {
	UserID   string `json:"user_id"`
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// RegisterDeviceResponse is the JSON response for POST /v1/devices.
type RegisterDeviceResponse struct {
	DeviceID     int64     `json:"device_id"`
	RegisteredAt time.Time `json:"registered_at"`
}

// CallPushRequest is the JSON body for POST /v1/call.
type CallPushRequest struct {
	UserID     string `json:"user_id"`
	CallID     string `json:"call_id"`
	CallerName string `json:"caller_name"`
	CallType   string `json:"call_type"`
}

// CallPushResponse is the JSON response for POST /v1/call.
type CallPushResponse struct {
	CallID    string `json:"call_id"`
	Devices   int    `json:"devices"`
	Delivered int    `json:"delivered"`
}
