package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
)

func TestNewRole(t *testing.T) {
	now := time.Now()

	t.Run("rejects empty name", func(t *testing.T) {
		_, err := NewRole("  ", 1, false, now)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("rejects non-positive order", func(t *testing.T) {
		_, err := NewRole("Compliance", 0, false, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("collapses whitespace in the name", func(t *testing.T) {
		r, err := NewRole(" Branch \t Officer ", 1, false, now)
		require.NoError(t, err)
		assert.Equal(t, "Branch Officer", r.Name)
	})

	t.Run("sentinel cannot be deleted", func(t *testing.T) {
		r, err := NewRole(id.RoleSuperAdmin, 99, true, now)
		require.NoError(t, err)
		assert.True(t, dErrors.HasCode(r.CanDelete(), dErrors.CodeForbidden))
	})
}

func TestNewBranch(t *testing.T) {
	now := time.Now()
	branchID := id.NewBranchID()

	t.Run("normalizes code", func(t *testing.T) {
		b, err := NewBranch(branchID, "Kathmandu Main", " ktm-01 ", nil, now)
		require.NoError(t, err)
		assert.Equal(t, "KTM-01", b.Code)
	})

	t.Run("rejects self parent", func(t *testing.T) {
		_, err := NewBranch(branchID, "Loop", "LOOP", &branchID, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("rejects bad code", func(t *testing.T) {
		_, err := NewBranch(branchID, "Bad", "has space", nil, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func TestSnapshotApplicable(t *testing.T) {
	region := id.NewBranchID()
	local := id.NewBranchID()
	orphan := id.NewBranchID()

	officer := Role{Name: "Branch Officer", Order: 1}
	compliance := Role{Name: "Compliance", Order: 2}
	head := Role{Name: "Head Office", Order: 3, Global: true}

	snap := NewSnapshot(
		[]Role{head, compliance, officer},
		[]Branch{
			{ID: region, Name: "Region", Code: "REG"},
			{ID: local, Name: "Local", Code: "LOC", ParentID: &region},
			{ID: orphan, Name: "Orphan", Code: "ORP"},
		},
		[]Staffing{
			{BranchID: local, RoleName: officer.Name},
			{BranchID: region, RoleName: compliance.Name},
		},
		time.Now(),
	)

	assert.Equal(t, "Branch Officer", snap.Roles[0].Name, "roles sorted by order")
	assert.True(t, snap.Applicable(officer, local))
	assert.True(t, snap.Applicable(compliance, local), "falls back to regional staffing")
	assert.False(t, snap.Applicable(officer, region))
	assert.True(t, snap.Applicable(head, orphan), "global roles apply everywhere")
	assert.False(t, snap.Applicable(compliance, orphan))
}

func TestSnapshotApplicable_ParentCycle(t *testing.T) {
	a := id.NewBranchID()
	b := id.NewBranchID()
	snap := NewSnapshot(nil,
		[]Branch{{ID: a, ParentID: &b}, {ID: b, ParentID: &a}},
		nil, time.Now())

	assert.False(t, snap.Applicable(Role{Name: "Compliance", Order: 1}, a))
}
