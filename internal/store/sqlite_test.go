package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/facturai/facturai/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testUser(phone string) *domain.User {
	now := time.Now()
	return &domain.User{
		ID:          "user-" + phone,
		Name:        "Test User",
		Email:       "test@example.com",
		PhoneNumber: phone,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestExecWithRetryRecoversFromBusy(t *testing.T) {
	t.Parallel()

	calls := 0
	err := execWithRetry(context.Background(), "test write", func() error {
		calls++
		if calls < 3 {
			return errors.New("SQLITE_BUSY: database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected recovery after retries, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestExecWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	busy := errors.New("SQLITE_BUSY: database is locked")
	err := execWithRetry(context.Background(), "test write", func() error {
		calls++
		return busy
	})
	if !errors.Is(err, busy) {
		t.Fatalf("expected the busy error to surface, got %v", err)
	}
	if calls != writeMaxRetries {
		t.Fatalf("expected %d attempts, got %d", writeMaxRetries, calls)
	}
}

func TestExecWithRetryDoesNotRetryOtherErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	fatal := errors.New("no such table: sessions")
	err := execWithRetry(context.Background(), "test write", func() error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("expected the error to surface, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("non-conflict errors must not be retried, got %d attempts", calls)
	}
}

func TestCreateAndGetUserByPhone(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	user := testUser("+5491122223333")
	user.UserToken = "tok-123"
	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	got, err := s.GetUserByPhone(ctx, "+5491122223333")
	if err != nil {
		t.Fatalf("GetUserByPhone failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected user, got nil")
	}
	if got.ID != user.ID {
		t.Fatalf("unexpected user ID: got %q, want %q", got.ID, user.ID)
	}
	if got.UserToken != "tok-123" {
		t.Fatalf("unexpected user token: %q", got.UserToken)
	}
}

func TestGetUserByPhoneIsExactMatch(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, testUser("+5491122223333")); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	// No normalization: a different spelling of the same number does
	// not resolve.
	got, err := s.GetUserByPhone(ctx, "5491122223333")
	if err != nil {
		t.Fatalf("GetUserByPhone failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for non-exact phone match, got %+v", got)
	}
}

func TestCreateUserDuplicatePhone(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, testUser("+111")); err != nil {
		t.Fatalf("first CreateUser failed: %v", err)
	}

	dup := testUser("+111")
	dup.ID = "another-id"
	err := s.CreateUser(ctx, dup)
	if !errors.Is(err, ErrDuplicatePhone) {
		t.Fatalf("expected ErrDuplicatePhone, got %v", err)
	}
}

func TestLatestSessionOrdering(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	old := &domain.Session{
		ID:             "s-old",
		UserID:         "u1",
		SessionKey:     "u1-old",
		CreatedAt:      base,
		LastActivityAt: base,
	}
	fresh := &domain.Session{
		ID:             "s-fresh",
		UserID:         "u1",
		SessionKey:     "u1-fresh",
		CreatedAt:      base.Add(30 * time.Minute),
		LastActivityAt: base.Add(30 * time.Minute),
	}
	for _, sess := range []*domain.Session{old, fresh} {
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
	}

	got, err := s.LatestSession(ctx, "u1")
	if err != nil {
		t.Fatalf("LatestSession failed: %v", err)
	}
	if got == nil || got.ID != "s-fresh" {
		t.Fatalf("expected s-fresh, got %+v", got)
	}
}

func TestLatestSessionTieBrokenByCreation(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	at := time.Now().Truncate(time.Second)
	first := &domain.Session{
		ID:             "s-first",
		UserID:         "u1",
		SessionKey:     "u1-first",
		CreatedAt:      at.Add(-time.Minute),
		LastActivityAt: at,
	}
	second := &domain.Session{
		ID:             "s-second",
		UserID:         "u1",
		SessionKey:     "u1-second",
		CreatedAt:      at,
		LastActivityAt: at,
	}
	for _, sess := range []*domain.Session{first, second} {
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
	}

	got, err := s.LatestSession(ctx, "u1")
	if err != nil {
		t.Fatalf("LatestSession failed: %v", err)
	}
	if got == nil || got.ID != "s-second" {
		t.Fatalf("expected most recently created session to win, got %+v", got)
	}
}

func TestLatestSessionNoSessions(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	got, err := s.LatestSession(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("LatestSession failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestTouchSession(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	created := time.Now().Add(-time.Hour).Truncate(time.Second)
	sess := &domain.Session{
		ID:             "s1",
		UserID:         "u1",
		SessionKey:     "u1-key",
		CreatedAt:      created,
		LastActivityAt: created,
	}
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	touched := time.Now().Truncate(time.Second)
	if err := s.TouchSession(ctx, "s1", touched); err != nil {
		t.Fatalf("TouchSession failed: %v", err)
	}

	got, err := s.LatestSession(ctx, "u1")
	if err != nil {
		t.Fatalf("LatestSession failed: %v", err)
	}
	if !got.LastActivityAt.Equal(touched) {
		t.Fatalf("last activity not updated: got %v, want %v", got.LastActivityAt, touched)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("created_at changed on touch: got %v, want %v", got.CreatedAt, created)
	}
}

func TestListUsers(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	for _, phone := range []string{"+1", "+2", "+3"} {
		if err := s.CreateUser(ctx, testUser(phone)); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("expected 3 users, got %d", len(users))
	}
}
