// Package store persists workflow instances and their approval log.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"kycflow/internal/workflow/models"
	id "kycflow/pkg/domain"
	"kycflow/pkg/platform/sentinel"
)

// InMemoryStore keeps instances and log entries in process memory. A single
// mutex makes each Commit a compare-and-swap plus append, matching the
// transactional guarantees of the Postgres store.
type InMemoryStore struct {
	mu        sync.RWMutex
	instances map[id.WorkflowID]*models.Instance
	logs      map[id.WorkflowID][]models.LogEntry
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		instances: make(map[id.WorkflowID]*models.Instance),
		logs:      make(map[id.WorkflowID][]models.LogEntry),
	}
}

// Create stores a new instance at version 1 together with its first log
// entry.
func (s *InMemoryStore) Create(_ context.Context, inst *models.Instance, entry models.LogEntry) error {
	if inst == nil {
		return fmt.Errorf("workflow instance is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.instances[inst.ID]; exists {
		return fmt.Errorf("workflow %s already exists: %w", inst.ID, sentinel.ErrConflict)
	}
	inst.Version = 1
	entry.WorkflowID = inst.ID
	entry.Sequence = inst.Version
	s.instances[inst.ID] = inst.Clone()
	s.logs[inst.ID] = []models.LogEntry{entry}
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, workflowID id.WorkflowID) (*models.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[workflowID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return inst.Clone(), nil
}

// Commit replaces the stored instance if its version still equals
// expectedVersion, then appends entry. On success inst.Version is advanced.
func (s *InMemoryStore) Commit(_ context.Context, inst *models.Instance, expectedVersion int64, entry models.LogEntry) error {
	if inst == nil {
		return fmt.Errorf("workflow instance is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.instances[inst.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != expectedVersion {
		return sentinel.ErrConflict
	}
	next := inst.Clone()
	next.Version = expectedVersion + 1
	entry.WorkflowID = inst.ID
	entry.Sequence = next.Version
	s.instances[inst.ID] = next
	s.logs[inst.ID] = append(s.logs[inst.ID], entry)
	inst.Version = next.Version
	return nil
}

// ListLog returns entries in commit order.
func (s *InMemoryStore) ListLog(_ context.Context, workflowID id.WorkflowID) ([]models.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.instances[workflowID]; !ok {
		return nil, sentinel.ErrNotFound
	}
	return append([]models.LogEntry(nil), s.logs[workflowID]...), nil
}

func (s *InMemoryStore) ListPending(_ context.Context, filter models.PendingFilter) ([]*models.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Instance
	for _, inst := range s.instances {
		if filter.Matches(inst) {
			out = append(out, inst.Clone())
		}
	}
	sortOldestFirst(out)
	return out, nil
}

// ListByRecords returns every instance attached to one of the given KYC
// records.
func (s *InMemoryStore) ListByRecords(_ context.Context, recordIDs []id.KycRecordID) ([]*models.Instance, error) {
	wanted := make(map[id.KycRecordID]struct{}, len(recordIDs))
	for _, r := range recordIDs {
		wanted[r] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Instance
	for _, inst := range s.instances {
		if _, ok := wanted[inst.KycRecordID]; ok {
			out = append(out, inst.Clone())
		}
	}
	sortOldestFirst(out)
	return out, nil
}

func (s *InMemoryStore) CountByBranch(_ context.Context, branchID id.BranchID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, inst := range s.instances {
		if inst.BranchID == branchID {
			n++
		}
	}
	return n, nil
}

func sortOldestFirst(items []*models.Instance) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].LastUpdatedAt.Equal(items[j].LastUpdatedAt) {
			return items[i].ID.String() < items[j].ID.String()
		}
		return items[i].LastUpdatedAt.Before(items[j].LastUpdatedAt)
	})
}
