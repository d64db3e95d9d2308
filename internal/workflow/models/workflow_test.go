package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orgmodels "kycflow/internal/org/models"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
)

var threeLevels = []orgmodels.RoleLevel{
	{RoleName: "Branch Officer", Order: 1},
	{RoleName: "Compliance", Order: 2},
	{RoleName: "SuperAdmin", Order: 3},
}

func newInstance(t *testing.T) *Instance {
	t.Helper()
	w, err := NewInstance(id.NewWorkflowID(), id.KycRecordID(id.NewWorkflowID()), id.UserID(id.NewWorkflowID()), id.NewBranchID(), threeLevels, false, time.Now())
	require.NoError(t, err)
	return w
}

func TestNewInstance(t *testing.T) {
	t.Run("empty chain is a configuration error", func(t *testing.T) {
		_, err := NewInstance(id.NewWorkflowID(), id.KycRecordID{}, id.UserID{}, id.NewBranchID(), nil, false, time.Now())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeChainConfiguration))
	})

	t.Run("draft waits for submit", func(t *testing.T) {
		w, err := NewInstance(id.NewWorkflowID(), id.KycRecordID{}, id.UserID{}, id.NewBranchID(), threeLevels, true, time.Now())
		require.NoError(t, err)
		assert.Equal(t, StatusDraft, w.Status)
		require.NoError(t, w.Submit(time.Now()))
		assert.Equal(t, StatusInReview, w.Status)
	})

	t.Run("chain is copied", func(t *testing.T) {
		chain := append([]orgmodels.RoleLevel(nil), threeLevels...)
		w, err := NewInstance(id.NewWorkflowID(), id.KycRecordID{}, id.UserID{}, id.NewBranchID(), chain, false, time.Now())
		require.NoError(t, err)
		chain[0].RoleName = "mutated"
		assert.Equal(t, "Branch Officer", w.Chain[0].RoleName)
	})
}

func TestApproveAdvancesOneLevelAtATime(t *testing.T) {
	w := newInstance(t)
	for i := 1; i <= len(threeLevels); i++ {
		require.NoError(t, w.Approve(time.Now()))
		assert.Equal(t, i, w.PendingLevelIndex)
		require.NoError(t, w.CheckInvariants())
	}
	assert.Equal(t, StatusApproved, w.Status)
	_, ok := w.PendingRole()
	assert.False(t, ok)

	err := w.Approve(time.Now())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	assert.Equal(t, len(threeLevels), w.PendingLevelIndex)
}

func TestReturnToPrevious(t *testing.T) {
	w := newInstance(t)

	err := w.ReturnToPrevious(time.Now())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
	assert.Equal(t, 0, w.PendingLevelIndex)

	require.NoError(t, w.Approve(time.Now()))
	require.NoError(t, w.ReturnToPrevious(time.Now()))
	assert.Equal(t, 0, w.PendingLevelIndex)
	assert.Equal(t, StatusInReview, w.Status)
}

func TestSendBackAndResubmitKeepPosition(t *testing.T) {
	w := newInstance(t)
	require.NoError(t, w.Approve(time.Now()))

	require.NoError(t, w.SendBackToApplicant(time.Now()))
	assert.Equal(t, StatusResubmissionRequired, w.Status)
	assert.Equal(t, 1, w.PendingLevelIndex)

	assert.True(t, dErrors.HasCode(w.Approve(time.Now()), dErrors.CodeInvalidState))

	require.NoError(t, w.Resubmit(time.Now()))
	assert.Equal(t, StatusInReview, w.Status)
	assert.Equal(t, 1, w.PendingLevelIndex)
}

func TestRejectFinal(t *testing.T) {
	t.Run("only at first level", func(t *testing.T) {
		w := newInstance(t)
		require.NoError(t, w.Approve(time.Now()))
		err := w.RejectFinal(time.Now())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
		assert.Equal(t, StatusInReview, w.Status)
	})

	t.Run("terminal", func(t *testing.T) {
		w := newInstance(t)
		require.NoError(t, w.RejectFinal(time.Now()))
		assert.Equal(t, StatusRejected, w.Status)
		require.NoError(t, w.CheckInvariants())
		assert.True(t, dErrors.HasCode(w.Resubmit(time.Now()), dErrors.CodeInvalidState))
	})
}

func TestPullBack(t *testing.T) {
	w := newInstance(t)
	assert.True(t, dErrors.HasCode(w.PullBack(time.Now()), dErrors.CodeInvalidState))

	require.NoError(t, w.Approve(time.Now()))
	require.NoError(t, w.Approve(time.Now()))
	require.NoError(t, w.PullBack(time.Now()))
	assert.Equal(t, 1, w.PendingLevelIndex)
}

func TestReassign(t *testing.T) {
	t.Run("keeps chain when none given", func(t *testing.T) {
		w := newInstance(t)
		target := id.NewBranchID()
		require.NoError(t, w.Reassign(target, nil, time.Now()))
		assert.Equal(t, target, w.BranchID)
		assert.Equal(t, threeLevels, w.Chain)
	})

	t.Run("same branch is a validation error", func(t *testing.T) {
		w := newInstance(t)
		err := w.Reassign(w.BranchID, nil, time.Now())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("terminal status is refused", func(t *testing.T) {
		w := newInstance(t)
		require.NoError(t, w.RejectFinal(time.Now()))
		before := w.BranchID
		err := w.Reassign(id.NewBranchID(), nil, time.Now())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidState))
		assert.Equal(t, before, w.BranchID)
	})

	t.Run("rebuilt chain must cover pending level", func(t *testing.T) {
		w := newInstance(t)
		require.NoError(t, w.Approve(time.Now()))
		err := w.Reassign(id.NewBranchID(), threeLevels[:1], time.Now())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeChainConfiguration))
		assert.Len(t, w.Chain, 3)
	})
}

func TestMarkEditedRefusesApproved(t *testing.T) {
	w := newInstance(t)
	require.NoError(t, w.MarkEdited(time.Now()))
	for range threeLevels {
		require.NoError(t, w.Approve(time.Now()))
	}
	assert.True(t, dErrors.HasCode(w.MarkEdited(time.Now()), dErrors.CodeInvalidState))
}

func TestChainView(t *testing.T) {
	w := newInstance(t)
	require.NoError(t, w.Approve(time.Now()))

	view := w.ChainView()
	require.Len(t, view, 3)
	assert.True(t, view[0].IsCompleted)
	assert.False(t, view[0].IsCurrent)
	assert.True(t, view[1].IsCurrent)
	assert.False(t, view[1].IsCompleted)
	assert.False(t, view[2].IsCurrent)
}

func TestCheckInvariants(t *testing.T) {
	w := newInstance(t)
	w.PendingLevelIndex = 3
	assert.True(t, dErrors.HasCode(w.CheckInvariants(), dErrors.CodeInvariantViolation))

	w = newInstance(t)
	w.Status = "archived"
	assert.True(t, dErrors.HasCode(w.CheckInvariants(), dErrors.CodeInvariantViolation))
}

func TestClone(t *testing.T) {
	w := newInstance(t)
	c := w.Clone()
	c.Chain[0].RoleName = "changed"
	assert.Equal(t, "Branch Officer", w.Chain[0].RoleName)
}

func TestNormalizeRemarks(t *testing.T) {
	_, err := NormalizeRemarks("   ", true)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	r, err := NormalizeRemarks("  missing address proof ", true)
	require.NoError(t, err)
	assert.Equal(t, "missing address proof", r)

	r, err = NormalizeRemarks("", false)
	require.NoError(t, err)
	assert.Empty(t, r)
}

func TestLatestBy(t *testing.T) {
	user := id.UserID(id.NewWorkflowID())
	other := id.UserID(id.NewWorkflowID())
	entries := []LogEntry{
		{Sequence: 1, ActorUserID: user, Action: ActionApproved, LevelIndexAtAction: 0},
		{Sequence: 2, ActorUserID: other, Action: ActionApproved, LevelIndexAtAction: 1},
		{Sequence: 3, ActorUserID: user, Action: ActionApproved, LevelIndexAtAction: 0},
	}
	got, ok := LatestBy(entries, user, ActionApproved)
	require.True(t, ok)
	assert.Equal(t, int64(3), got.Sequence)

	_, ok = LatestBy(entries, user, ActionPulledBack)
	assert.False(t, ok)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("in_review")
	require.NoError(t, err)
	assert.Equal(t, StatusInReview, s)

	_, err = ParseStatus("InReview")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
