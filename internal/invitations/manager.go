// Package invitations implements the workspace invitation lifecycle: create,
// list pending, accept (by token or by matching email at sign-in), revoke,
// and expiry cleanup. Acceptance is idempotent over retries: an invitation
// whose membership already exists is folded to accepted without a second
// membership insert.
package invitations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kpiflow/kpiflow/internal/apierr"
	"github.com/kpiflow/kpiflow/internal/auth"
	"github.com/kpiflow/kpiflow/internal/db/models"
	"github.com/kpiflow/kpiflow/internal/validation"
)

// DefaultTTL is how long a new invitation stays acceptable.
const DefaultTTL = 7 * 24 * time.Hour

// InvitationStore is the persistence surface the manager drives.
// *repositories.InvitationRepository satisfies it.
type InvitationStore interface {
	CreateInvitation(ctx context.Context, inv *models.WorkspaceInvitation) error
	GetByID(ctx context.Context, id string) (*models.WorkspaceInvitation, error)
	GetPendingByEmail(ctx context.Context, email string, now time.Time) ([]*models.WorkspaceInvitation, error)
	GetByTokenPrefix(ctx context.Context, prefix string) ([]*models.WorkspaceInvitation, error)
	MarkAccepted(ctx context.Context, id string, now time.Time) error
	AcceptWithMembership(ctx context.Context, inv *models.WorkspaceInvitation, userID string, now time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	Delete(ctx context.Context, id string) error
}

// MembershipChecker answers whether the user already belongs to a workspace.
// *repositories.MembershipRepository satisfies it.
type MembershipChecker interface {
	GetMembership(ctx context.Context, workspaceID, userID string) (*models.WorkspaceMembership, error)
}

// Manager drives the invitation lifecycle.
type Manager struct {
	invitations InvitationStore
	memberships MembershipChecker
	ttl         time.Duration
	logger      *slog.Logger
}

func NewManager(invitations InvitationStore, memberships MembershipChecker, logger *slog.Logger) *Manager {
	return &Manager{
		invitations: invitations,
		memberships: memberships,
		ttl:         DefaultTTL,
		logger:      logger,
	}
}

// SetTTL overrides the default validity window for newly created invitations.
func (m *Manager) SetTTL(ttl time.Duration) {
	if ttl > 0 {
		m.ttl = ttl
	}
}

// Created is the result of Create. Token is the raw invitation token; it is
// returned exactly once and never stored.
type Created struct {
	Invitation *models.WorkspaceInvitation
	Token      string
}

// Create validates the input and records a new invitation. The invited email
// is normalized so acceptance matching is case-insensitive.
func (m *Manager) Create(ctx context.Context, workspaceID, email, role, invitedBy string) (*Created, error) {
	if err := validation.ValidateEmail(email); err != nil {
		return nil, apierr.Wrap(apierr.KindValidationError, "invalid invitation email", err)
	}
	parsedRole, err := auth.ParseRole(role)
	if err != nil {
		return nil, apierr.Newf(apierr.KindValidationError, "invalid invitation role: %s", role)
	}
	if parsedRole == auth.RoleOwner {
		return nil, apierr.New(apierr.KindValidationError, "cannot invite a user as OWNER")
	}

	token, hash, prefix, err := auth.GenerateInviteToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate invitation token: %w", err)
	}

	now := time.Now()
	inv := &models.WorkspaceInvitation{
		WorkspaceID: workspaceID,
		Email:       validation.NormalizeEmail(email),
		Role:        string(parsedRole),
		InvitedBy:   invitedBy,
		InvitedAt:   now,
		ExpiresAt:   now.Add(m.ttl),
		TokenHash:   hash,
		TokenPrefix: prefix,
	}
	if err := m.invitations.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}

	m.logger.Info("invitation created",
		"workspace_id", workspaceID, "email", inv.Email, "role", inv.Role, "invited_by", invitedBy)

	return &Created{Invitation: inv, Token: token}, nil
}

// GetPending returns the user's open invitations, most recent first.
func (m *Manager) GetPending(ctx context.Context, email string) ([]*models.WorkspaceInvitation, error) {
	return m.invitations.GetPendingByEmail(ctx, validation.NormalizeEmail(email), time.Now())
}

// ProcessPending folds every pending invitation for the email into
// memberships. Called at sign-in so invitations sent before the account
// existed take effect on first session. Each invitation is processed
// independently; one failure is logged and skipped so the rest still land.
// Returns the number of invitations accepted and the memberships created.
// An invitation folded for an already-member user counts as processed but
// creates nothing.
func (m *Manager) ProcessPending(ctx context.Context, email, userID string) (int, []*models.WorkspaceMembership, error) {
	pending, err := m.invitations.GetPendingByEmail(ctx, validation.NormalizeEmail(email), time.Now())
	if err != nil {
		return 0, nil, err
	}

	processed := 0
	var created []*models.WorkspaceMembership
	for _, inv := range pending {
		membership, err := m.accept(ctx, inv, userID)
		if err != nil {
			m.logger.Error("failed to process pending invitation",
				"invitation_id", inv.ID, "workspace_id", inv.WorkspaceID, "error", err)
			continue
		}
		processed++
		if membership != nil {
			created = append(created, membership)
		}
	}
	return processed, created, nil
}

// AcceptByToken resolves the invitation behind a raw token and accepts it for
// the user. Workspace and role come from the stored invitation record; the
// token itself carries nothing.
func (m *Manager) AcceptByToken(ctx context.Context, token, userID string) (*models.WorkspaceInvitation, error) {
	candidates, err := m.invitations.GetByTokenPrefix(ctx, auth.InviteTokenPrefix(token))
	if err != nil {
		return nil, err
	}

	var match *models.WorkspaceInvitation
	for _, c := range candidates {
		if auth.ValidateInviteToken(token, c.TokenHash) {
			match = c
			break
		}
	}
	if match == nil {
		return nil, apierr.New(apierr.KindValidationError, "invalid invitation token")
	}
	if match.Accepted {
		return nil, apierr.New(apierr.KindValidationError, "invitation already accepted")
	}
	if match.Expired(time.Now()) {
		return nil, apierr.New(apierr.KindValidationError, "invitation has expired")
	}

	if _, err := m.accept(ctx, match, userID); err != nil {
		return nil, err
	}
	return match, nil
}

// accept creates the membership and marks the invitation accepted in one
// transaction. If the membership already exists the invitation is only
// marked accepted, keeping retries idempotent.
// accept lands one invitation. The returned membership is nil when the user
// already belonged to the workspace and the invitation was only folded.
func (m *Manager) accept(ctx context.Context, inv *models.WorkspaceInvitation, userID string) (*models.WorkspaceMembership, error) {
	existing, err := m.memberships.GetMembership(ctx, inv.WorkspaceID, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if existing != nil {
		return nil, m.invitations.MarkAccepted(ctx, inv.ID, now)
	}
	if err := m.invitations.AcceptWithMembership(ctx, inv, userID, now); err != nil {
		return nil, err
	}
	return &models.WorkspaceMembership{
		WorkspaceID: inv.WorkspaceID,
		UserID:      userID,
		Role:        inv.Role,
		JoinedAt:    now,
		InvitedBy:   &inv.InvitedBy,
		InvitedAt:   &inv.InvitedAt,
	}, nil
}

// Revoke deletes a not-yet-accepted invitation. Accepted invitations are
// immutable history; removing the member is a separate operation.
func (m *Manager) Revoke(ctx context.Context, invitationID string) error {
	inv, err := m.invitations.GetByID(ctx, invitationID)
	if err != nil {
		return err
	}
	if inv == nil {
		return apierr.New(apierr.KindValidationError, "invitation not found")
	}
	if inv.Accepted {
		return apierr.New(apierr.KindValidationError, "cannot revoke an accepted invitation")
	}
	return m.invitations.Delete(ctx, invitationID)
}

// CleanupExpired deletes invitations past expiry that were never accepted.
func (m *Manager) CleanupExpired(ctx context.Context) (int64, error) {
	count, err := m.invitations.DeleteExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		m.logger.Info("expired invitations removed", "count", count)
	}
	return count, nil
}
