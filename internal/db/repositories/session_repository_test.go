package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

var sessionCols = []string{"id", "user_id", "token_hash", "expires_at", "created_at"}

func newSessionRepo(t *testing.T) (*SessionRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSessionRepository(db), mock
}

func TestGetByTokenHash_Found(t *testing.T) {
	repo, mock := newSessionRepo(t)

	mock.ExpectQuery("SELECT.*FROM sessions.*WHERE token_hash").
		WithArgs("hash-1").
		WillReturnRows(sqlmock.NewRows(sessionCols).
			AddRow("sess-1", "user-1", "hash-1", time.Now().Add(time.Hour), time.Now()))

	s, err := repo.GetByTokenHash(context.Background(), "hash-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s == nil {
		t.Fatal("expected session, got nil")
	}
	if s.UserID != "user-1" {
		t.Errorf("UserID = %s, want user-1", s.UserID)
	}
}

func TestGetByTokenHash_RevokedSessionAbsent(t *testing.T) {
	repo, mock := newSessionRepo(t)

	// After sign-out the row is gone; absence means the token is revoked even
	// if the JWT itself has not yet expired.
	mock.ExpectQuery("SELECT.*FROM sessions.*WHERE token_hash").
		WillReturnRows(sqlmock.NewRows(sessionCols))

	s, err := repo.GetByTokenHash(context.Background(), "revoked")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != nil {
		t.Error("expected nil for revoked session")
	}
}

func TestDeleteByUserID_DeletesAllSessions(t *testing.T) {
	repo, mock := newSessionRepo(t)

	mock.ExpectExec("DELETE FROM sessions WHERE user_id").
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 4))

	count, err := repo.DeleteByUserID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 4 {
		t.Errorf("count = %d, want 4 (all of the user's sessions)", count)
	}
}

func TestDeleteByEmail_FallbackPath(t *testing.T) {
	repo, mock := newSessionRepo(t)

	mock.ExpectExec("DELETE FROM sessions.*WHERE user_id IN \\(SELECT id FROM users WHERE email").
		WithArgs("alice@example.com").
		WillReturnResult(sqlmock.NewResult(0, 2))

	count, err := repo.DeleteByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestDeleteExpired(t *testing.T) {
	repo, mock := newSessionRepo(t)
	now := time.Now()

	mock.ExpectExec("DELETE FROM sessions WHERE expires_at").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 7))

	count, err := repo.DeleteExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 7 {
		t.Errorf("count = %d, want 7", count)
	}
}
