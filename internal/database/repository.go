package database

import (
	"context"

	"github.com/astro5star/callshell/internal/database/models"
)

// SessionKVRepository manages the private key/value area holding the
// embedded page's user session. SetAll and Clear replace the whole area
// atomically so a partially written session is never observable.
type SessionKVRepository interface {
	GetAll(ctx context.Context) (map[string]string, error)
	SetAll(ctx context.Context, values map[string]string) error
	Clear(ctx context.Context) error
}

// CallLogRepository manages the device-local record of incoming calls.
type CallLogRepository interface {
	Create(ctx context.Context, rec *models.CallRecord) error
	Finish(ctx context.Context, callID, state, delivery string) error
	ListRecent(ctx context.Context, limit int) ([]models.CallRecord, error)
}
