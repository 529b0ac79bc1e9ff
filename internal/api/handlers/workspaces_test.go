package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpiflow/kpiflow/internal/apierr"
	"github.com/kpiflow/kpiflow/internal/db/repositories"
	"github.com/kpiflow/kpiflow/internal/middleware"
	"github.com/kpiflow/kpiflow/internal/quota"
)

var workspaceCols = []string{"id", "name", "slug", "owner_id", "plan_type", "created_at", "updated_at"}

func newWorkspaceHarness(t *testing.T) (*WorkspaceHandlers, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := testLogger()
	billing := repositories.NewBillingRepository(sqlx.NewDb(db, "sqlmock"))
	return NewWorkspaceHandlers(
		repositories.NewWorkspaceRepository(db),
		repositories.NewMembershipRepository(db),
		billing,
		quota.NewEnforcer(billing, logger),
		logger,
	), mock
}

func postCreateWorkspace(h *WorkspaceHandlers, name, slug string) *httptest.ResponseRecorder {
	router := gin.New()
	router.POST("/workspaces", func(c *gin.Context) {
		c.Set(middleware.ContextUserID, "user-1")
		c.Set(middleware.ContextBody, map[string]interface{}{"name": name, "slug": slug})
	}, h.Create())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/workspaces", strings.NewReader("{}"))
	router.ServeHTTP(w, req)
	return w
}

func TestCreateWorkspace(t *testing.T) {
	h, mock := newWorkspaceHarness(t)

	// PRO plan, no workspaces yet.
	mock.ExpectQuery("SELECT \\* FROM subscriptions WHERE user_id").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(subscriptionCols()).
			AddRow("sub-1", "user-1", "PRO", "active", time.Now(), time.Now()))
	mock.ExpectQuery("SELECT workspace_count FROM usage_tracking WHERE user_id").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"workspace_count"}))
	mock.ExpectQuery("SELECT id, name, slug, owner_id, plan_type, created_at, updated_at\\s+FROM workspaces\\s+WHERE slug").
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows(workspaceCols))
	mock.ExpectQuery("INSERT INTO workspaces").
		WithArgs("Acme", "acme", "user-1", "PRO").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("ws-1", time.Now(), time.Now()))
	mock.ExpectExec("INSERT INTO workspace_memberships").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO usage_tracking").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := postCreateWorkspace(h, "Acme", "acme")

	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Workspace map[string]interface{} `json:"workspace"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ws-1", resp.Workspace["id"])
	assert.Equal(t, "acme", resp.Workspace["slug"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWorkspaceOverQuota(t *testing.T) {
	h, mock := newWorkspaceHarness(t)

	// No subscription row means FREE, which allows a single workspace.
	mock.ExpectQuery("SELECT \\* FROM subscriptions WHERE user_id").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows(subscriptionCols()))
	mock.ExpectQuery("SELECT workspace_count FROM usage_tracking WHERE user_id").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"workspace_count"}).AddRow(1))

	w := postCreateWorkspace(h, "Second", "second")

	require.Equal(t, http.StatusForbidden, w.Code)

	var resp apierr.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(apierr.KindPlanLimitExceeded), resp.Error)
	assert.Equal(t, "FREE", resp.Details["plan"])
	assert.Equal(t, "STARTER", resp.Details["suggestedPlan"])
	assert.Equal(t, float64(1), resp.Details["limit"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWorkspaceRejectsBadSlug(t *testing.T) {
	h, _ := newWorkspaceHarness(t)

	w := postCreateWorkspace(h, "Acme", "Not A Slug!")

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp apierr.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(apierr.KindValidationError), resp.Error)
}

func TestCreateWorkspaceDuplicateSlug(t *testing.T) {
	h, mock := newWorkspaceHarness(t)

	mock.ExpectQuery("SELECT \\* FROM subscriptions WHERE user_id").
		WillReturnRows(sqlmock.NewRows(subscriptionCols()).
			AddRow("sub-1", "user-1", "PRO", "active", time.Now(), time.Now()))
	mock.ExpectQuery("SELECT workspace_count FROM usage_tracking WHERE user_id").
		WillReturnRows(sqlmock.NewRows([]string{"workspace_count"}).AddRow(2))
	mock.ExpectQuery("SELECT id, name, slug, owner_id, plan_type, created_at, updated_at\\s+FROM workspaces\\s+WHERE slug").
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows(workspaceCols).
			AddRow("ws-9", "Other Acme", "acme", "user-2", "FREE", time.Now(), time.Now()))

	w := postCreateWorkspace(h, "Acme", "acme")

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp apierr.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Message, "slug")
	require.NoError(t, mock.ExpectationsWereMet())
}

func subscriptionCols() []string {
	return []string{"id", "user_id", "plan_type", "status", "created_at", "updated_at"}
}
