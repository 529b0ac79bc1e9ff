package invitations

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/kpiflow/kpiflow/internal/apierr"
	"github.com/kpiflow/kpiflow/internal/db/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeInvitationStore struct {
	created        []*models.WorkspaceInvitation
	pending        []*models.WorkspaceInvitation
	pendingErr     error
	byPrefix       []*models.WorkspaceInvitation
	byID           map[string]*models.WorkspaceInvitation
	marked         []string
	acceptedWith   []string
	acceptErr      map[string]error
	deleted        []string
	deletedExpired int64
}

func newFakeInvitationStore() *fakeInvitationStore {
	return &fakeInvitationStore{
		byID:      make(map[string]*models.WorkspaceInvitation),
		acceptErr: make(map[string]error),
	}
}

func (f *fakeInvitationStore) CreateInvitation(ctx context.Context, inv *models.WorkspaceInvitation) error {
	inv.ID = "inv-created"
	f.created = append(f.created, inv)
	return nil
}

func (f *fakeInvitationStore) GetByID(ctx context.Context, id string) (*models.WorkspaceInvitation, error) {
	return f.byID[id], nil
}

func (f *fakeInvitationStore) GetPendingByEmail(ctx context.Context, email string, now time.Time) ([]*models.WorkspaceInvitation, error) {
	return f.pending, f.pendingErr
}

func (f *fakeInvitationStore) GetByTokenPrefix(ctx context.Context, prefix string) ([]*models.WorkspaceInvitation, error) {
	return f.byPrefix, nil
}

func (f *fakeInvitationStore) MarkAccepted(ctx context.Context, id string, now time.Time) error {
	f.marked = append(f.marked, id)
	return nil
}

func (f *fakeInvitationStore) AcceptWithMembership(ctx context.Context, inv *models.WorkspaceInvitation, userID string, now time.Time) error {
	if err := f.acceptErr[inv.ID]; err != nil {
		return err
	}
	f.acceptedWith = append(f.acceptedWith, inv.ID)
	return nil
}

func (f *fakeInvitationStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return f.deletedExpired, nil
}

func (f *fakeInvitationStore) Delete(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeMembershipChecker struct {
	existing map[string]bool // workspaceID -> user already member
}

func (f *fakeMembershipChecker) GetMembership(ctx context.Context, workspaceID, userID string) (*models.WorkspaceMembership, error) {
	if f.existing[workspaceID] {
		return &models.WorkspaceMembership{WorkspaceID: workspaceID, UserID: userID}, nil
	}
	return nil, nil
}

func pendingInvitation(id, workspaceID string) *models.WorkspaceInvitation {
	return &models.WorkspaceInvitation{
		ID:          id,
		WorkspaceID: workspaceID,
		Email:       "invitee@example.com",
		Role:        "MEMBER",
		InvitedBy:   "owner-1",
		InvitedAt:   time.Now().Add(-time.Hour),
		ExpiresAt:   time.Now().Add(24 * time.Hour),
	}
}

func expectKind(t *testing.T, err error, kind apierr.Kind) {
	t.Helper()
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *apierr.Error, got %T: %v", err, err)
	}
	if apiErr.Kind != kind {
		t.Errorf("expected kind %s, got %s", kind, apiErr.Kind)
	}
}

func TestCreate_RejectsInvalidInput(t *testing.T) {
	m := NewManager(newFakeInvitationStore(), &fakeMembershipChecker{}, testLogger())

	_, err := m.Create(context.Background(), "ws-1", "not-an-email", "MEMBER", "owner-1")
	expectKind(t, err, apierr.KindValidationError)

	_, err = m.Create(context.Background(), "ws-1", "a@example.com", "SUPERUSER", "owner-1")
	expectKind(t, err, apierr.KindValidationError)

	_, err = m.Create(context.Background(), "ws-1", "a@example.com", "OWNER", "owner-1")
	expectKind(t, err, apierr.KindValidationError)
}

func TestCreate_NormalizesEmailAndReturnsTokenOnce(t *testing.T) {
	store := newFakeInvitationStore()
	m := NewManager(store, &fakeMembershipChecker{}, testLogger())

	created, err := m.Create(context.Background(), "ws-1", " Invitee@Example.COM ", "ADMIN", "owner-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.Token == "" {
		t.Fatal("expected raw token in create result")
	}
	if len(store.created) != 1 {
		t.Fatalf("expected one stored invitation, got %d", len(store.created))
	}
	inv := store.created[0]
	if inv.Email != "invitee@example.com" {
		t.Errorf("expected normalized email, got %s", inv.Email)
	}
	if inv.TokenHash == "" || inv.TokenHash == created.Token {
		t.Error("stored hash must be set and must not be the raw token")
	}
	if want := time.Now().Add(DefaultTTL); inv.ExpiresAt.Before(want.Add(-time.Minute)) || inv.ExpiresAt.After(want.Add(time.Minute)) {
		t.Errorf("unexpected expiry %v", inv.ExpiresAt)
	}
}

func TestProcessPending_AcceptsEachAndFoldsExistingMemberships(t *testing.T) {
	store := newFakeInvitationStore()
	store.pending = []*models.WorkspaceInvitation{
		pendingInvitation("inv-1", "ws-new"),
		pendingInvitation("inv-2", "ws-already-member"),
	}
	m := NewManager(store, &fakeMembershipChecker{existing: map[string]bool{"ws-already-member": true}}, testLogger())

	processed, created, err := m.ProcessPending(context.Background(), "invitee@example.com", "user-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 2 {
		t.Errorf("expected 2 processed, got %d", processed)
	}
	if len(store.acceptedWith) != 1 || store.acceptedWith[0] != "inv-1" {
		t.Errorf("expected transactional accept only for inv-1, got %v", store.acceptedWith)
	}
	if len(store.marked) != 1 || store.marked[0] != "inv-2" {
		t.Errorf("expected idempotent fold for inv-2, got %v", store.marked)
	}
	// The fold for the existing member creates no membership; only the real
	// accept appears in the created list.
	if len(created) != 1 {
		t.Fatalf("expected 1 created membership, got %d", len(created))
	}
	if created[0].WorkspaceID != "ws-new" || created[0].UserID != "user-9" || created[0].Role != "MEMBER" {
		t.Errorf("unexpected created membership %+v", created[0])
	}
}

func TestProcessPending_OneFailureDoesNotStopTheRest(t *testing.T) {
	store := newFakeInvitationStore()
	store.pending = []*models.WorkspaceInvitation{
		pendingInvitation("inv-bad", "ws-1"),
		pendingInvitation("inv-good", "ws-2"),
	}
	store.acceptErr["inv-bad"] = errors.New("deadlock detected")
	m := NewManager(store, &fakeMembershipChecker{}, testLogger())

	processed, created, err := m.ProcessPending(context.Background(), "invitee@example.com", "user-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed != 1 {
		t.Errorf("expected 1 processed, got %d", processed)
	}
	if len(store.acceptedWith) != 1 || store.acceptedWith[0] != "inv-good" {
		t.Errorf("expected inv-good to land, got %v", store.acceptedWith)
	}
	if len(created) != 1 || created[0].WorkspaceID != "ws-2" {
		t.Errorf("expected the surviving membership for ws-2, got %v", created)
	}
}

func TestAcceptByToken_RoundTrip(t *testing.T) {
	store := newFakeInvitationStore()
	m := NewManager(store, &fakeMembershipChecker{}, testLogger())

	created, err := m.Create(context.Background(), "ws-1", "invitee@example.com", "MEMBER", "owner-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store.byPrefix = store.created

	inv, err := m.AcceptByToken(context.Background(), created.Token, "user-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inv.WorkspaceID != "ws-1" {
		t.Errorf("expected workspace resolved from record, got %s", inv.WorkspaceID)
	}
	if len(store.acceptedWith) != 1 {
		t.Error("expected transactional accept")
	}
}

func TestAcceptByToken_UnknownTokenRejected(t *testing.T) {
	store := newFakeInvitationStore()
	m := NewManager(store, &fakeMembershipChecker{}, testLogger())

	_, err := m.AcceptByToken(context.Background(), "kpi_definitely-not-issued", "user-9")
	expectKind(t, err, apierr.KindValidationError)
}

func TestAcceptByToken_ExpiredRejected(t *testing.T) {
	store := newFakeInvitationStore()
	m := NewManager(store, &fakeMembershipChecker{}, testLogger())

	created, err := m.Create(context.Background(), "ws-1", "invitee@example.com", "MEMBER", "owner-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store.created[0].ExpiresAt = time.Now().Add(-time.Hour)
	store.byPrefix = store.created

	_, err = m.AcceptByToken(context.Background(), created.Token, "user-9")
	expectKind(t, err, apierr.KindValidationError)
	if len(store.acceptedWith) != 0 {
		t.Error("expired invitation must not create a membership")
	}
}

func TestRevoke_AcceptedInvitationIsImmutable(t *testing.T) {
	store := newFakeInvitationStore()
	accepted := pendingInvitation("inv-1", "ws-1")
	accepted.Accepted = true
	store.byID["inv-1"] = accepted
	m := NewManager(store, &fakeMembershipChecker{}, testLogger())

	err := m.Revoke(context.Background(), "inv-1")
	expectKind(t, err, apierr.KindValidationError)
	if len(store.deleted) != 0 {
		t.Error("accepted invitation must not be deleted")
	}
}

func TestRevoke_PendingInvitationDeleted(t *testing.T) {
	store := newFakeInvitationStore()
	store.byID["inv-1"] = pendingInvitation("inv-1", "ws-1")
	m := NewManager(store, &fakeMembershipChecker{}, testLogger())

	if err := m.Revoke(context.Background(), "inv-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "inv-1" {
		t.Errorf("expected deletion of inv-1, got %v", store.deleted)
	}
}
