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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpiflow/kpiflow/internal/apierr"
	"github.com/kpiflow/kpiflow/internal/db/repositories"
	"github.com/kpiflow/kpiflow/internal/middleware"
)

var membershipCols = []string{"workspace_id", "user_id", "role", "joined_at", "invited_by", "invited_at"}

const (
	testWorkspaceID = "11111111-1111-1111-1111-111111111111"
	testMemberID    = "22222222-2222-2222-2222-222222222222"
)

func newMemberHarness(t *testing.T) (*MemberHandlers, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewMemberHandlers(repositories.NewMembershipRepository(db), testLogger()), mock
}

func putMemberRole(h *MemberHandlers, targetID, role string) *httptest.ResponseRecorder {
	router := gin.New()
	router.PUT("/members/:userID", func(c *gin.Context) {
		c.Set(middleware.ContextUserID, "admin-1")
		c.Set(middleware.ContextWorkspaceID, testWorkspaceID)
		c.Set(middleware.ContextBody, map[string]interface{}{"role": role})
	}, h.UpdateRole())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/members/"+targetID, strings.NewReader("{}"))
	router.ServeHTTP(w, req)
	return w
}

func TestUpdateMemberRole(t *testing.T) {
	h, mock := newMemberHarness(t)

	mock.ExpectQuery("SELECT workspace_id, user_id, role, joined_at, invited_by, invited_at\\s+FROM workspace_memberships").
		WithArgs(testWorkspaceID, testMemberID).
		WillReturnRows(sqlmock.NewRows(membershipCols).
			AddRow(testWorkspaceID, testMemberID, "MEMBER", time.Now(), nil, nil))
	mock.ExpectExec("UPDATE workspace_memberships").
		WithArgs(testWorkspaceID, testMemberID, "ADMIN").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := putMemberRole(h, testMemberID, "ADMIN")

	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMemberRoleOwnerImmutable(t *testing.T) {
	h, mock := newMemberHarness(t)

	mock.ExpectQuery("SELECT workspace_id, user_id, role, joined_at, invited_by, invited_at\\s+FROM workspace_memberships").
		WithArgs(testWorkspaceID, testMemberID).
		WillReturnRows(sqlmock.NewRows(membershipCols).
			AddRow(testWorkspaceID, testMemberID, "OWNER", time.Now(), nil, nil))

	w := putMemberRole(h, testMemberID, "MEMBER")

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp apierr.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Message, "owner")
}

func TestUpdateMemberRoleRejectsOwnerAssignment(t *testing.T) {
	h, _ := newMemberHarness(t)

	w := putMemberRole(h, testMemberID, "OWNER")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateMemberRoleUnknownMember(t *testing.T) {
	h, mock := newMemberHarness(t)

	mock.ExpectQuery("SELECT workspace_id, user_id, role, joined_at, invited_by, invited_at\\s+FROM workspace_memberships").
		WithArgs(testWorkspaceID, testMemberID).
		WillReturnRows(sqlmock.NewRows(membershipCols))

	w := putMemberRole(h, testMemberID, "ADMIN")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRemoveMemberRejectsOwner(t *testing.T) {
	h, mock := newMemberHarness(t)

	mock.ExpectQuery("SELECT workspace_id, user_id, role, joined_at, invited_by, invited_at\\s+FROM workspace_memberships").
		WithArgs(testWorkspaceID, testMemberID).
		WillReturnRows(sqlmock.NewRows(membershipCols).
			AddRow(testWorkspaceID, testMemberID, "OWNER", time.Now(), nil, nil))

	router := gin.New()
	router.DELETE("/members/:userID", func(c *gin.Context) {
		c.Set(middleware.ContextWorkspaceID, testWorkspaceID)
	}, h.Remove())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/members/"+testMemberID, nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRemoveMember(t *testing.T) {
	h, mock := newMemberHarness(t)

	mock.ExpectQuery("SELECT workspace_id, user_id, role, joined_at, invited_by, invited_at\\s+FROM workspace_memberships").
		WithArgs(testWorkspaceID, testMemberID).
		WillReturnRows(sqlmock.NewRows(membershipCols).
			AddRow(testWorkspaceID, testMemberID, "MEMBER", time.Now(), nil, nil))
	mock.ExpectExec("DELETE FROM workspace_memberships").
		WithArgs(testWorkspaceID, testMemberID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	router := gin.New()
	router.DELETE("/members/:userID", func(c *gin.Context) {
		c.Set(middleware.ContextUserID, "admin-1")
		c.Set(middleware.ContextWorkspaceID, testWorkspaceID)
	}, h.Remove())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/members/"+testMemberID, nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}
