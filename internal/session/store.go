// Package session persists the embedded page's user identity so a cold
// start can bootstrap the page with enough context to resume a call.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/astro5star/callshell/internal/database"
	"github.com/astro5star/callshell/internal/database/models"
)

// Store reads and writes the persisted UserSession. The session is updated
// only by the embedded page via the bridge; the native layer reads it to
// bootstrap cold starts and clears it atomically on logout.
type Store struct {
	repo   database.SessionKVRepository
	sealer *sealer // nil when no session key is configured
}

// NewStore creates a session store. key, when non-nil, must be 32 bytes and
// is used to seal the stored token at rest.
func NewStore(repo database.SessionKVRepository, key []byte) (*Store, error) {
	s := &Store{repo: repo}
	if key != nil {
		sl, err := newSealer(key)
		if err != nil {
			return nil, fmt.Errorf("creating session sealer: %w", err)
		}
		s.sealer = sl
	} else {
		slog.Warn("no session-key configured, stored session token will not be sealed")
	}
	return s, nil
}

// Save persists the session reported by the page, stamping savedAt.
// The token is never logged.
func (s *Store) Save(ctx context.Context, sess models.UserSession) error {
	token := sess.Token
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(token)
		if err != nil {
			return fmt.Errorf("sealing session token: %w", err)
		}
		token = sealed
	}

	values := map[string]string{
		"userId":   sess.UserID,
		"token":    token,
		"userType": sess.UserType,
		"name":     sess.Name,
		"phone":    sess.Phone,
		"savedAt":  strconv.FormatInt(time.Now().UnixMilli(), 10),
	}
	if err := s.repo.SetAll(ctx, values); err != nil {
		return fmt.Errorf("saving user session: %w", err)
	}

	slog.Info("user session saved", "user_id", sess.UserID, "user_type", sess.UserType, "name", sess.Name)
	return nil
}

// Get returns the persisted session, or nil when none is stored or the
// stored identity is incomplete.
func (s *Store) Get(ctx context.Context) (*models.UserSession, error) {
	values, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading user session: %w", err)
	}

	sess := &models.UserSession{
		UserID:   values["userId"],
		Token:    values["token"],
		UserType: values["userType"],
		Name:     values["name"],
		Phone:    values["phone"],
	}
	if ms, err := strconv.ParseInt(values["savedAt"], 10, 64); err == nil {
		sess.SavedAt = time.UnixMilli(ms)
	}

	if !sess.Valid() {
		return nil, nil
	}

	if s.sealer != nil {
		token, err := s.sealer.Open(sess.Token)
		if err != nil {
			// A key change or corrupted row: treat the session as absent
			// rather than handing the page a broken token.
			slog.Warn("stored session token could not be unsealed, discarding session", "error", err)
			return nil, nil
		}
		sess.Token = token
	}

	return sess, nil
}

// JSON returns the session the way the page's getUserSession bridge call
// expects it: a JSON object, or the empty string when no session is stored.
func (s *Store) JSON(ctx context.Context) (string, error) {
	sess, err := s.Get(ctx)
	if err != nil {
		return "", err
	}
	if sess == nil {
		return "", nil
	}
	b, err := json.Marshal(sess)
	if err != nil {
		return "", fmt.Errorf("encoding user session: %w", err)
	}
	return string(b), nil
}

// Clear removes the persisted session atomically (logout).
func (s *Store) Clear(ctx context.Context) error {
	if err := s.repo.Clear(ctx); err != nil {
		return fmt.Errorf("clearing user session: %w", err)
	}
	slog.Info("user session cleared")
	return nil
}
