//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"kycflow/internal/org/models"
	"kycflow/internal/org/store"
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
	err := s.postgres.TruncateTables(context.Background(), "org_staffing", "org_branches", "org_roles")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestRoleConstraints() {
	ctx := context.Background()
	now := time.Now().UTC()
	officer, _ := models.NewRole("Officer", 1, false, now)
	s.Require().NoError(s.store.CreateRole(ctx, officer))

	dupOrder, _ := models.NewRole("Manager", 1, false, now)
	s.ErrorIs(s.store.CreateRole(ctx, dupOrder), sentinel.ErrConflict)

	dupName, _ := models.NewRole("OFFICER", 3, false, now)
	s.ErrorIs(s.store.CreateRole(ctx, dupName), sentinel.ErrAlreadyUsed)

	s.Require().NoError(officer.ApplyReorder(7, now))
	s.Require().NoError(s.store.UpdateRole(ctx, officer))
	got, err := s.store.FindRole(ctx, "Officer")
	s.Require().NoError(err)
	s.Equal(7, got.Order)
}

func (s *PostgresStoreSuite) TestBranchesAndStaffing() {
	ctx := context.Background()
	now := time.Now().UTC()
	region, _ := models.NewBranch(id.NewBranchID(), "Region", "REG", nil, now)
	s.Require().NoError(s.store.CreateBranch(ctx, region))
	local, _ := models.NewBranch(id.NewBranchID(), "Local", "LOC", &region.ID, now)
	s.Require().NoError(s.store.CreateBranch(ctx, local))

	dup, _ := models.NewBranch(id.NewBranchID(), "Dup", "REG", nil, now)
	s.ErrorIs(s.store.CreateBranch(ctx, dup), sentinel.ErrAlreadyUsed)

	got, err := s.store.FindBranch(ctx, local.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got.ParentID)
	s.Equal(region.ID, *got.ParentID)

	role, _ := models.NewRole("Officer", 1, false, now)
	s.Require().NoError(s.store.CreateRole(ctx, role))
	st := models.Staffing{BranchID: local.ID, RoleName: "Officer"}
	s.Require().NoError(s.store.AddStaffing(ctx, st))
	s.Require().NoError(s.store.AddStaffing(ctx, st))

	s.ErrorIs(s.store.AddStaffing(ctx, models.Staffing{BranchID: local.ID, RoleName: "Ghost"}), sentinel.ErrNotFound)

	s.Require().NoError(s.store.DeleteRole(ctx, "Officer"))
	list, err := s.store.ListStaffing(ctx)
	s.Require().NoError(err)
	s.Empty(list)
}
