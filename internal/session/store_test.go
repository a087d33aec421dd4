package session

import (
	"bytes"
	"context"
	"testing"

	"github.com/astro5star/callshell/internal/database"
	"github.com/astro5star/callshell/internal/database/models"
)

func openTestStore(t *testing.T, key []byte) (*Store, database.SessionKVRepository) {
	t.Helper()
	db, err := database.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := database.NewSessionKVRepository(db)
	store, err := NewStore(repo, key)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	return store, repo
}

func TestRoundTrip(t *testing.T) {
	store, _ := openTestStore(t, nil)
	ctx := context.Background()

	in := models.UserSession{
		UserID:   "u-42",
		Token:    "tok-abc.def-ghi",
		UserType: "astrologer",
		Name:     "Asha",
		Phone:    "+911234567890",
	}
	if err := store.Save(ctx, in); err != nil {
		t.Fatalf("save: %v", err)
	}

	out, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out == nil {
		t.Fatal("expected a session")
	}
	if out.UserID != in.UserID || out.Token != in.Token || out.UserType != in.UserType ||
		out.Name != in.Name || out.Phone != in.Phone {
		t.Fatalf("round trip mismatch: got %+v", out)
	}
	if out.SavedAt.IsZero() {
		t.Error("expected savedAt to be stamped")
	}
}

func TestJSONShape(t *testing.T) {
	store, _ := openTestStore(t, nil)
	ctx := context.Background()

	// No session stored: the page expects the empty string, not "{}".
	s, err := store.JSON(ctx)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if s != "" {
		t.Fatalf("expected empty string for missing session, got %q", s)
	}

	if err := store.Save(ctx, models.UserSession{UserID: "u1", Token: "t1", UserType: "user", Name: "N", Phone: "P"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	s, err = store.JSON(ctx)
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	want := `{"userId":"u1","token":"t1","userType":"user","name":"N","phone":"P"}`
	if s != want {
		t.Fatalf("json shape mismatch:\n got %s\nwant %s", s, want)
	}
}

func TestIncompleteSessionReadsAsAbsent(t *testing.T) {
	store, repo := openTestStore(t, nil)
	ctx := context.Background()

	// Missing token: identity is incomplete and must not be handed to the page.
	if err := repo.SetAll(ctx, map[string]string{"userId": "u1", "name": "N"}); err != nil {
		t.Fatalf("setall: %v", err)
	}
	sess, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess != nil {
		t.Fatalf("expected nil session, got %+v", sess)
	}
}

func TestClear(t *testing.T) {
	store, _ := openTestStore(t, nil)
	ctx := context.Background()

	if err := store.Save(ctx, models.UserSession{UserID: "u1", Token: "t1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	sess, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess != nil {
		t.Fatalf("expected no session after clear, got %+v", sess)
	}
}

func TestTokenSealedAtRest(t *testing.T) {
	key := bytes.Repeat([]byte{7}, 32)
	store, repo := openTestStore(t, key)
	ctx := context.Background()

	token := "super-secret-token"
	if err := store.Save(ctx, models.UserSession{UserID: "u1", Token: token}); err != nil {
		t.Fatalf("save: %v", err)
	}

	raw, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("getall: %v", err)
	}
	if raw["token"] == token {
		t.Fatal("token stored in plaintext despite session key")
	}

	out, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out == nil || out.Token != token {
		t.Fatalf("sealed token did not round trip: %+v", out)
	}
}

func TestWrongKeyDiscardsSession(t *testing.T) {
	db, err := database.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	repo := database.NewSessionKVRepository(db)

	store1, err := NewStore(repo, bytes.Repeat([]byte{1}, 32))
	if err != nil {
		t.Fatalf("store1: %v", err)
	}
	if err := store1.Save(context.Background(), models.UserSession{UserID: "u1", Token: "t1"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	store2, err := NewStore(repo, bytes.Repeat([]byte{2}, 32))
	if err != nil {
		t.Fatalf("store2: %v", err)
	}
	sess, err := store2.Get(context.Background())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess != nil {
		t.Fatalf("expected discarded session under wrong key, got %+v", sess)
	}
}
