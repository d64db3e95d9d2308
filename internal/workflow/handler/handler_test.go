package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	orgmodels "kycflow/internal/org/models"
	"kycflow/internal/workflow/handler/mocks"
	"kycflow/internal/workflow/models"
	"kycflow/internal/workflow/service"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
	"kycflow/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service
type WorkflowHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
	actor   id.Actor
}

func TestWorkflowHandlerSuite(t *testing.T) {
	suite.Run(t, new(WorkflowHandlerSuite))
}

func (s *WorkflowHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.router = chi.NewRouter()
	New(s.service, logger).Register(s.router)
	s.actor = id.Actor{
		UserID:   id.UserID(uuid.New()),
		Roles:    []string{"Branch Officer"},
		BranchID: id.NewBranchID(),
	}
}

func (s *WorkflowHandlerSuite) do(method, path string, body any, authenticated bool) *httptest.ResponseRecorder {
	return s.doWithHeader(method, path, body, authenticated, nil)
}

func (s *WorkflowHandlerSuite) doWithHeader(method, path string, body any, authenticated bool, header http.Header) *httptest.ResponseRecorder {
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	ctx := requestcontext.WithRequestID(req.Context(), "req-test")
	if authenticated {
		ctx = requestcontext.WithActor(ctx, s.actor)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req.WithContext(ctx))
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func sampleInstance() *models.Instance {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &models.Instance{
		ID:              id.NewWorkflowID(),
		KycRecordID:     id.KycRecordID(uuid.New()),
		ApplicantUserID: id.UserID(uuid.New()),
		BranchID:        id.NewBranchID(),
		Chain:           []orgmodels.RoleLevel{{RoleName: "Branch Officer", Order: 1}, {RoleName: "Compliance", Order: 2}},
		Status:          models.StatusInReview,
		Version:         1,
		CreatedAt:       now,
		LastUpdatedAt:   now,
	}
}

func (s *WorkflowHandlerSuite) TestStart() {
	s.Run("creates workflow", func() {
		inst := sampleInstance()
		s.service.EXPECT().Start(gomock.Any(), s.actor, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.Actor, req service.StartRequest) (*models.Instance, error) {
				s.Equal(inst.KycRecordID, req.KycRecordID)
				s.True(req.BranchID.IsNil())
				s.Equal("walk-in", req.Remarks)
				return inst, nil
			})

		rr := s.do(http.MethodPost, "/workflows", map[string]any{
			"kyc_record_id": inst.KycRecordID.String(),
			"remarks":       "walk-in",
		}, true)

		s.Equal(http.StatusCreated, rr.Code)
		body := decodeBody(s.T(), rr)
		s.Equal(inst.ID.String(), body["id"])
		s.Equal("Branch Officer", body["pending_role"])
		s.Equal("in_review", body["status"])
	})

	s.Run("requires authentication", func() {
		rr := s.do(http.MethodPost, "/workflows", map[string]any{"kyc_record_id": uuid.NewString()}, false)
		s.Equal(http.StatusUnauthorized, rr.Code)
	})

	s.Run("rejects malformed record id", func() {
		rr := s.do(http.MethodPost, "/workflows", map[string]any{"kyc_record_id": "nope"}, true)
		s.Equal(http.StatusBadRequest, rr.Code)
	})

	s.Run("rejects unknown fields", func() {
		rr := s.do(http.MethodPost, "/workflows", map[string]any{"kyc_record_id": uuid.NewString(), "priority": 1}, true)
		s.Equal(http.StatusBadRequest, rr.Code)
	})
}

func (s *WorkflowHandlerSuite) TestApprove() {
	s.Run("passes expected version and remarks", func() {
		inst := sampleInstance()
		inst.PendingLevelIndex = 1
		s.service.EXPECT().Approve(gomock.Any(), s.actor, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.Actor, req service.ActionRequest) (*models.Instance, error) {
				s.Equal(inst.ID, req.WorkflowID)
				s.Require().NotNil(req.ExpectedVersion)
				s.Equal(int64(3), *req.ExpectedVersion)
				s.Equal("documents verified", req.Remarks)
				return inst, nil
			})

		rr := s.do(http.MethodPost, "/workflows/"+inst.ID.String()+"/approve", map[string]any{
			"expected_version": 3,
			"remarks":          "documents verified",
		}, true)
		s.Equal(http.StatusOK, rr.Code)
		s.Equal("Compliance", decodeBody(s.T(), rr)["pending_role"])
	})

	s.Run("If-Match carries the expected version", func() {
		inst := sampleInstance()
		inst.Version = 6
		s.service.EXPECT().Approve(gomock.Any(), s.actor, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.Actor, req service.ActionRequest) (*models.Instance, error) {
				s.Require().NotNil(req.ExpectedVersion)
				s.Equal(int64(5), *req.ExpectedVersion)
				return inst, nil
			})

		rr := s.doWithHeader(http.MethodPost, "/workflows/"+inst.ID.String()+"/approve", nil, true,
			http.Header{"If-Match": {`"5"`}})
		s.Equal(http.StatusOK, rr.Code)
		s.Equal(`"6"`, rr.Header().Get("ETag"))
	})

	s.Run("If-Match disagreeing with the body", func() {
		rr := s.doWithHeader(http.MethodPost, "/workflows/"+uuid.NewString()+"/approve",
			map[string]any{"expected_version": 2}, true, http.Header{"If-Match": {`"3"`}})
		s.Equal(http.StatusBadRequest, rr.Code)
	})

	s.Run("malformed If-Match", func() {
		rr := s.doWithHeader(http.MethodPost, "/workflows/"+uuid.NewString()+"/approve", nil, true,
			http.Header{"If-Match": {"abc"}})
		s.Equal(http.StatusBadRequest, rr.Code)
	})

	s.Run("empty body is accepted", func() {
		inst := sampleInstance()
		s.service.EXPECT().Approve(gomock.Any(), s.actor, gomock.Any()).Return(inst, nil)

		rr := s.do(http.MethodPost, "/workflows/"+inst.ID.String()+"/approve", nil, true)
		s.Equal(http.StatusOK, rr.Code)
	})

	s.Run("conflict is retryable with details", func() {
		wid := id.NewWorkflowID()
		s.service.EXPECT().Approve(gomock.Any(), s.actor, gomock.Any()).Return(nil,
			dErrors.New(dErrors.CodeConflict, "workflow was modified concurrently").
				With("actual_version", int64(4), "pending_level_index", 2))

		rr := s.do(http.MethodPost, "/workflows/"+wid.String()+"/approve", nil, true)
		s.Equal(http.StatusConflict, rr.Code)
		body := decodeBody(s.T(), rr)
		s.Equal("conflict", body["error"])
		s.Equal(true, body["retryable"])
		details := body["details"].(map[string]any)
		s.Equal(float64(4), details["actual_version"])
	})

	s.Run("forbidden maps to 403", func() {
		wid := id.NewWorkflowID()
		s.service.EXPECT().Approve(gomock.Any(), s.actor, gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeForbidden, "actor does not hold the pending role"))

		rr := s.do(http.MethodPost, "/workflows/"+wid.String()+"/approve", nil, true)
		s.Equal(http.StatusForbidden, rr.Code)
	})

	s.Run("malformed workflow id", func() {
		rr := s.do(http.MethodPost, "/workflows/not-a-uuid/approve", nil, true)
		s.Equal(http.StatusBadRequest, rr.Code)
	})

	s.Run("non-positive expected version", func() {
		rr := s.do(http.MethodPost, "/workflows/"+uuid.NewString()+"/approve", map[string]any{"expected_version": 0}, true)
		s.Equal(http.StatusBadRequest, rr.Code)
	})
}

func (s *WorkflowHandlerSuite) TestReject() {
	s.Run("return to previous", func() {
		inst := sampleInstance()
		s.service.EXPECT().Reject(gomock.Any(), s.actor, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.Actor, req service.RejectRequest) (*models.Instance, error) {
				s.True(req.ReturnToPrevious)
				s.False(req.Final)
				s.Equal("address mismatch", req.Remarks)
				return inst, nil
			})

		rr := s.do(http.MethodPost, "/workflows/"+inst.ID.String()+"/reject", map[string]any{
			"return_to_previous": true,
			"remarks":            "address mismatch",
		}, true)
		s.Equal(http.StatusOK, rr.Code)
	})

	s.Run("conflicting flags", func() {
		rr := s.do(http.MethodPost, "/workflows/"+uuid.NewString()+"/reject", map[string]any{
			"return_to_previous": true,
			"final":              true,
			"remarks":            "x",
		}, true)
		s.Equal(http.StatusBadRequest, rr.Code)
	})

	s.Run("invalid state maps to 409", func() {
		s.service.EXPECT().Reject(gomock.Any(), s.actor, gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeInvalidState, "workflow is approved"))

		rr := s.do(http.MethodPost, "/workflows/"+uuid.NewString()+"/reject", map[string]any{"remarks": "late"}, true)
		s.Equal(http.StatusConflict, rr.Code)
		s.Equal("invalid_state", decodeBody(s.T(), rr)["error"])
	})
}

func (s *WorkflowHandlerSuite) TestPullBackAndTransfer() {
	s.Run("pull back forwards expected index", func() {
		inst := sampleInstance()
		s.service.EXPECT().PullBack(gomock.Any(), s.actor, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.Actor, req service.PullBackRequest) (*models.Instance, error) {
				s.Require().NotNil(req.ExpectedIndex)
				s.Equal(1, *req.ExpectedIndex)
				return inst, nil
			})

		rr := s.do(http.MethodPost, "/workflows/"+inst.ID.String()+"/pull-back", map[string]any{"expected_level_index": 1}, true)
		s.Equal(http.StatusOK, rr.Code)
	})

	s.Run("transfer parses branch", func() {
		inst := sampleInstance()
		target := id.NewBranchID()
		s.service.EXPECT().Transfer(gomock.Any(), s.actor, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.Actor, req service.TransferRequest) (*models.Instance, error) {
				s.Equal(target, req.NewBranchID)
				return inst, nil
			})

		rr := s.do(http.MethodPost, "/workflows/"+inst.ID.String()+"/transfer", map[string]any{"branch_id": target.String()}, true)
		s.Equal(http.StatusOK, rr.Code)
	})

	s.Run("transfer requires branch", func() {
		rr := s.do(http.MethodPost, "/workflows/"+uuid.NewString()+"/transfer", map[string]any{}, true)
		s.Equal(http.StatusBadRequest, rr.Code)
	})

	s.Run("chain configuration maps to 422", func() {
		s.service.EXPECT().PullToMyBranch(gomock.Any(), s.actor, gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeChainConfiguration, "no staffed role"))

		rr := s.do(http.MethodPost, "/workflows/"+uuid.NewString()+"/pull", nil, true)
		s.Equal(http.StatusUnprocessableEntity, rr.Code)
	})
}

func (s *WorkflowHandlerSuite) TestUpdateDetails() {
	s.Run("forwards patch", func() {
		inst := sampleInstance()
		s.service.EXPECT().UpdateDetails(gomock.Any(), s.actor, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.Actor, req service.UpdateDetailsRequest) (*models.Instance, error) {
				s.Equal("new@example.com", req.Patch["email"])
				return inst, nil
			})

		rr := s.do(http.MethodPatch, "/workflows/"+inst.ID.String()+"/details", map[string]any{
			"changes": map[string]any{"email": "new@example.com"},
		}, true)
		s.Equal(http.StatusOK, rr.Code)
	})

	s.Run("empty patch", func() {
		rr := s.do(http.MethodPatch, "/workflows/"+uuid.NewString()+"/details", map[string]any{"changes": map[string]any{}}, true)
		s.Equal(http.StatusBadRequest, rr.Code)
	})
}

func (s *WorkflowHandlerSuite) TestQueries() {
	s.Run("pending accepts branch list", func() {
		a, b := id.NewBranchID(), id.NewBranchID()
		summary := sampleInstance().Summary()
		s.service.EXPECT().ListPending(gomock.Any(), s.actor, []id.BranchID{a, b}).
			Return([]models.Summary{summary}, nil)

		rr := s.do(http.MethodGet, "/workflows/pending?branch_id="+a.String()+","+b.String(), nil, true)
		s.Equal(http.StatusOK, rr.Code)
		body := decodeBody(s.T(), rr)
		s.Equal(float64(1), body["count"])
	})

	s.Run("empty pending list encodes as array", func() {
		s.service.EXPECT().ListPending(gomock.Any(), s.actor, gomock.Nil()).Return(nil, nil)

		rr := s.do(http.MethodGet, "/workflows/pending", nil, true)
		s.Equal(http.StatusOK, rr.Code)
		s.JSONEq(`{"items":[],"count":0}`, rr.Body.String())
	})

	s.Run("search filters", func() {
		s.service.EXPECT().Search(gomock.Any(), s.actor, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ id.Actor, q service.SearchQuery) ([]service.SearchResult, error) {
				s.Equal("doe", q.Text)
				s.Equal([]models.Status{models.StatusInReview, models.StatusApproved}, q.Statuses)
				return []service.SearchResult{{Summary: sampleInstance().Summary(), ApplicantName: "Jane Doe"}}, nil
			})

		rr := s.do(http.MethodGet, "/workflows/search?q=doe&status=in_review&status=approved", nil, true)
		s.Equal(http.StatusOK, rr.Code)
		items := decodeBody(s.T(), rr)["items"].([]any)
		s.Equal("Jane Doe", items[0].(map[string]any)["applicant_name"])
	})

	s.Run("search rejects unknown status", func() {
		rr := s.do(http.MethodGet, "/workflows/search?q=doe&status=archived", nil, true)
		s.Equal(http.StatusBadRequest, rr.Code)
	})

	s.Run("detail", func() {
		inst := sampleInstance()
		s.service.EXPECT().GetDetail(gomock.Any(), s.actor, inst.ID).Return(&models.Detail{
			Instance: inst,
			Chain:    inst.ChainView(),
			Log:      []models.LogEntry{{Sequence: 1, Action: models.ActionCreated}},
		}, nil)

		rr := s.do(http.MethodGet, "/workflows/"+inst.ID.String(), nil, true)
		s.Equal(http.StatusOK, rr.Code)
		body := decodeBody(s.T(), rr)
		chain := body["chain"].([]any)
		s.Len(chain, 2)
		s.Equal(true, chain[0].(map[string]any)["is_current"])
	})

	s.Run("detail not found", func() {
		wid := id.NewWorkflowID()
		s.service.EXPECT().GetDetail(gomock.Any(), s.actor, wid).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "workflow not found"))

		rr := s.do(http.MethodGet, "/workflows/"+wid.String(), nil, true)
		s.Equal(http.StatusNotFound, rr.Code)
	})
}

func TestInternalErrorsAreOpaque(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	r := chi.NewRouter()
	New(svc, slog.New(slog.DiscardHandler)).Register(r)

	svc.EXPECT().Submit(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeInternal, "pq: relation workflow_instances does not exist"))

	req := httptest.NewRequest(http.MethodPost, "/workflows/"+uuid.NewString()+"/submit", http.NoBody)
	req = req.WithContext(requestcontext.WithActor(req.Context(), id.Actor{UserID: id.UserID(uuid.New())}))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "workflow_instances")
}
