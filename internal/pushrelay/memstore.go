package pushrelay

import (
	"sync"
	"time"
)

// MemStore is an in-memory DeviceStore and DeliveryLogger, used when no
// PostgreSQL DSN is configured and in tests. Registrations do not survive
// a restart; devices re-register their token on startup anyway.
type MemStore struct {
	mu      sync.Mutex
	nextID  int64
	devices map[string]*Device // keyed by token
	log     []DeliveryLogEntry
}

func NewMemStore() *MemStore {
	return &MemStore{devices: make(map[string]*Device)}
}

// RegisterDevice upserts a device row by token.
func (m *MemStore) RegisterDevice(userID, token, platform string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if dev, ok := m.devices[token]; ok {
		dev.UserID = userID
		dev.Platform = platform
		dev.LastSeenAt = now
		out := *dev
		return &out, nil
	}

	m.nextID++
	dev := &Device{
		ID:           m.nextID,
		UserID:       userID,
		Token:        token,
		Platform:     platform,
		RegisteredAt: now,
		LastSeenAt:   now,
	}
	m.devices[token] = dev
	out := *dev
	return &out, nil
}

// DevicesForUser returns every device registered for a user.
func (m *MemStore) DevicesForUser(userID string) ([]Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Device
	for _, dev := range m.devices {
		if dev.UserID == userID {
			out = append(out, *dev)
		}
	}
	return out, nil
}

// RemoveDevice drops a device by token.
func (m *MemStore) RemoveDevice(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.devices, token)
	return nil
}

// Log records a delivery attempt.
func (m *MemStore) Log(entry DeliveryLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = append(m.log, entry)
	return nil
}

// Entries returns a copy of the delivery log.
func (m *MemStore) Entries() []DeliveryLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DeliveryLogEntry, len(m.log))
	copy(out, m.log)
	return out
}
