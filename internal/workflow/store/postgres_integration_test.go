//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	orgmodels "kycflow/internal/org/models"
	"kycflow/internal/workflow/models"
	"kycflow/internal/workflow/store"
	id "kycflow/pkg/domain"
	"kycflow/pkg/platform/sentinel"
	"kycflow/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "approval_log", "workflow_instances")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) newWorkflow(branchID id.BranchID) *models.Instance {
	inst, err := models.NewInstance(id.NewWorkflowID(), id.KycRecordID(id.NewWorkflowID()), id.UserID(id.NewWorkflowID()), branchID,
		[]orgmodels.RoleLevel{{RoleName: "Officer", Order: 1}, {RoleName: "Compliance", Order: 2}},
		false, time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(err)
	return inst
}

func logEntry(action models.Action, status models.Status) models.LogEntry {
	return models.LogEntry{
		ID:            id.NewLogEntryID(),
		ActorUserID:   id.UserID(id.NewWorkflowID()),
		ActorRoleName: "Officer",
		Action:        action,
		StatusAfter:   status,
		Timestamp:     time.Now().UTC(),
	}
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	inst := s.newWorkflow(id.NewBranchID())
	s.Require().NoError(s.store.Create(ctx, inst, logEntry(models.ActionCreated, models.StatusInReview)))

	got, err := s.store.FindByID(ctx, inst.ID)
	s.Require().NoError(err)
	s.Equal(inst.Chain, got.Chain)
	s.Equal(models.StatusInReview, got.Status)
	s.Equal(int64(1), got.Version)

	_, err = s.store.FindByID(ctx, id.NewWorkflowID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestCommitCompareAndSwap() {
	ctx := context.Background()
	inst := s.newWorkflow(id.NewBranchID())
	s.Require().NoError(s.store.Create(ctx, inst, logEntry(models.ActionCreated, models.StatusInReview)))

	s.Require().NoError(inst.Approve(time.Now()))
	s.Require().NoError(s.store.Commit(ctx, inst, 1, logEntry(models.ActionApproved, inst.Status)))
	s.Equal(int64(2), inst.Version)

	err := s.store.Commit(ctx, inst.Clone(), 1, logEntry(models.ActionApproved, inst.Status))
	s.ErrorIs(err, sentinel.ErrConflict)

	from := id.NewBranchID()
	to := id.NewBranchID()
	transfer := logEntry(models.ActionTransferred, inst.Status)
	transfer.FromBranchID = &from
	transfer.ToBranchID = &to
	s.Require().NoError(s.store.Commit(ctx, inst, 2, transfer))

	log, err := s.store.ListLog(ctx, inst.ID)
	s.Require().NoError(err)
	s.Require().Len(log, 3)
	for i, e := range log {
		s.Equal(int64(i+1), e.Sequence)
	}
	s.Require().NotNil(log[2].ToBranchID)
	s.Equal(to, *log[2].ToBranchID)
	s.Nil(log[0].FromBranchID)
}

func (s *PostgresStoreSuite) TestConcurrentCommitsSingleWinner() {
	ctx := context.Background()
	inst := s.newWorkflow(id.NewBranchID())
	s.Require().NoError(s.store.Create(ctx, inst, logEntry(models.ActionCreated, models.StatusInReview)))

	const writers = 10
	var wg sync.WaitGroup
	var wins, conflicts atomic.Int32
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := inst.Clone()
			_ = local.Approve(time.Now())
			err := s.store.Commit(ctx, local, 1, logEntry(models.ActionApproved, local.Status))
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(writers-1), conflicts.Load())
	log, err := s.store.ListLog(ctx, inst.ID)
	s.Require().NoError(err)
	s.Len(log, 2)
}

func (s *PostgresStoreSuite) TestListPendingAndSearch() {
	ctx := context.Background()
	branchA := id.NewBranchID()
	a := s.newWorkflow(branchA)
	b := s.newWorkflow(id.NewBranchID())
	s.Require().NoError(s.store.Create(ctx, a, logEntry(models.ActionCreated, models.StatusInReview)))
	s.Require().NoError(s.store.Create(ctx, b, logEntry(models.ActionCreated, models.StatusInReview)))

	got, err := s.store.ListPending(ctx, models.PendingFilter{Roles: []string{"Officer"}, Branches: []id.BranchID{branchA}})
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(a.ID, got[0].ID)

	got, err = s.store.ListPending(ctx, models.PendingFilter{})
	s.Require().NoError(err)
	s.Len(got, 2)

	got, err = s.store.ListByRecords(ctx, []id.KycRecordID{b.KycRecordID})
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(b.ID, got[0].ID)

	n, err := s.store.CountByBranch(ctx, branchA)
	s.Require().NoError(err)
	s.Equal(1, n)
}
