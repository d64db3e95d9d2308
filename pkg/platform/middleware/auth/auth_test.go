package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "kycflow/pkg/domain"
	"kycflow/pkg/requestcontext"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(string) (*JWTClaims, error) {
	return s.claims, s.err
}

func serve(t *testing.T, v JWTValidator, header string) (*httptest.ResponseRecorder, *id.Actor) {
	t.Helper()
	var seen *id.Actor
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a, ok := requestcontext.Actor(r.Context()); ok {
			seen = &a
		}
		w.WriteHeader(http.StatusNoContent)
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	req := httptest.NewRequest(http.MethodGet, "/workflows", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	RequireAuth(v, logger)(next).ServeHTTP(w, req)
	return w, seen
}

func TestRequireAuth(t *testing.T) {
	userID := uuid.New()
	branchID := uuid.New()

	t.Run("valid token sets the actor", func(t *testing.T) {
		v := stubValidator{claims: &JWTClaims{
			UserID:      userID.String(),
			Roles:       []string{" Compliance ", "compliance", ""},
			BranchID:    branchID.String(),
			Permissions: []string{"Workflow:Cross_Branch"},
		}}
		w, actor := serve(t, v, "Bearer good")
		assert.Equal(t, http.StatusNoContent, w.Code)
		require.NotNil(t, actor)
		assert.Equal(t, id.UserID(userID), actor.UserID)
		assert.Equal(t, []string{"Compliance"}, actor.Roles)
		assert.True(t, actor.HasPermission(id.PermissionCrossBranch))
		assert.Equal(t, id.BranchID(branchID), actor.BranchID)
	})

	t.Run("missing header", func(t *testing.T) {
		w, actor := serve(t, stubValidator{}, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Nil(t, actor)
	})

	t.Run("invalid token", func(t *testing.T) {
		w, _ := serve(t, stubValidator{err: errors.New("bad signature")}, "Bearer forged")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid or expired token")
	})

	t.Run("malformed subject", func(t *testing.T) {
		w, _ := serve(t, stubValidator{claims: &JWTClaims{UserID: "not-a-uuid"}}, "Bearer odd")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
