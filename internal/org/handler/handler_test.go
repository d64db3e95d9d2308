package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"kycflow/internal/org/handler/mocks"
	"kycflow/internal/org/models"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/platform/middleware/admin"
	"kycflow/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service
type OrgHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
}

func TestOrgHandlerSuite(t *testing.T) {
	suite.Run(t, new(OrgHandlerSuite))
}

func (s *OrgHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.router = chi.NewRouter()
	s.router.Group(func(r chi.Router) {
		r.Use(admin.RequireAdmin(logger))
		New(s.service, logger).Register(r)
	})
}

func (s *OrgHandlerSuite) do(method, path string, body any, roles ...string) *httptest.ResponseRecorder {
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	ctx := requestcontext.WithActor(req.Context(), id.Actor{UserID: id.UserID(uuid.New()), Roles: roles})
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req.WithContext(ctx))
	return rr
}

func (s *OrgHandlerSuite) TestAdminGate() {
	rr := s.do(http.MethodGet, "/admin/roles", nil, "Branch Officer")
	s.Equal(http.StatusForbidden, rr.Code)
}

func (s *OrgHandlerSuite) TestRoles() {
	s.Run("create", func() {
		s.service.EXPECT().CreateRole(gomock.Any(), "Compliance", 2, false).
			Return(&models.Role{Name: "Compliance", Order: 2}, nil)

		rr := s.do(http.MethodPost, "/admin/roles", map[string]any{"name": " Compliance ", "order": 2}, id.RoleAdmin)
		s.Equal(http.StatusCreated, rr.Code)
	})

	s.Run("create requires positive order", func() {
		rr := s.do(http.MethodPost, "/admin/roles", map[string]any{"name": "Compliance"}, id.RoleAdmin)
		s.Equal(http.StatusBadRequest, rr.Code)
	})

	s.Run("duplicate order conflicts", func() {
		s.service.EXPECT().CreateRole(gomock.Any(), "Audit", 2, false).
			Return(nil, dErrors.New(dErrors.CodeConflict, "role order already in use"))

		rr := s.do(http.MethodPost, "/admin/roles", map[string]any{"name": "Audit", "order": 2}, id.RoleSuperAdmin)
		s.Equal(http.StatusConflict, rr.Code)
	})

	s.Run("reorder", func() {
		s.service.EXPECT().ReorderRole(gomock.Any(), "Compliance", 5).
			Return(&models.Role{Name: "Compliance", Order: 5}, nil)

		rr := s.do(http.MethodPut, "/admin/roles/Compliance/order", map[string]any{"order": 5}, id.RoleAdmin)
		s.Equal(http.StatusOK, rr.Code)
	})

	s.Run("super admin cannot be deleted", func() {
		s.service.EXPECT().DeleteRole(gomock.Any(), id.RoleSuperAdmin).
			Return(dErrors.New(dErrors.CodeForbidden, "the SuperAdmin role cannot be deleted"))

		rr := s.do(http.MethodDelete, "/admin/roles/SuperAdmin", nil, id.RoleAdmin)
		s.Equal(http.StatusForbidden, rr.Code)
	})

	s.Run("list encodes empty array", func() {
		s.service.EXPECT().ListRoles(gomock.Any()).Return(nil, nil)

		rr := s.do(http.MethodGet, "/admin/roles", nil, id.RoleAdmin)
		s.Equal(http.StatusOK, rr.Code)
		s.JSONEq(`{"roles":[]}`, rr.Body.String())
	})
}

func (s *OrgHandlerSuite) TestBranches() {
	s.Run("create with parent", func() {
		parent := id.NewBranchID()
		s.service.EXPECT().CreateBranch(gomock.Any(), "City", "CTY", &parent).
			Return(&models.Branch{ID: id.NewBranchID(), Name: "City", Code: "CTY", ParentID: &parent}, nil)

		rr := s.do(http.MethodPost, "/admin/branches", map[string]any{
			"name": "City", "code": "CTY", "parent_id": parent.String(),
		}, id.RoleAdmin)
		s.Equal(http.StatusCreated, rr.Code)
	})

	s.Run("update of referenced branch conflicts", func() {
		branchID := id.NewBranchID()
		s.service.EXPECT().UpdateBranch(gomock.Any(), branchID, "City", "CTY", gomock.Nil()).
			Return(nil, dErrors.New(dErrors.CodeConflict, "branch is referenced by workflows and cannot be edited"))

		rr := s.do(http.MethodPut, "/admin/branches/"+branchID.String(), map[string]any{"name": "City", "code": "CTY"}, id.RoleAdmin)
		s.Equal(http.StatusConflict, rr.Code)
	})

	s.Run("staff and unstaff", func() {
		branchID := id.NewBranchID()
		s.service.EXPECT().StaffRole(gomock.Any(), branchID, "Compliance").Return(nil)
		s.service.EXPECT().UnstaffRole(gomock.Any(), branchID, "Compliance").Return(nil)

		s.Equal(http.StatusNoContent, s.do(http.MethodPut, "/admin/branches/"+branchID.String()+"/roles/Compliance", nil, id.RoleAdmin).Code)
		s.Equal(http.StatusNoContent, s.do(http.MethodDelete, "/admin/branches/"+branchID.String()+"/roles/Compliance", nil, id.RoleAdmin).Code)
	})

	s.Run("malformed branch id", func() {
		rr := s.do(http.MethodGet, "/admin/branches/abc", nil, id.RoleAdmin)
		s.Equal(http.StatusBadRequest, rr.Code)
	})
}
