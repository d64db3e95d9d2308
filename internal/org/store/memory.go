// Package store persists the role hierarchy, branch directory and staffing.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"kycflow/internal/org/models"
	id "kycflow/pkg/domain"
	"kycflow/pkg/platform/sentinel"
)

// InMemory keeps organization configuration in process memory.
type InMemory struct {
	mu       sync.RWMutex
	roles    map[string]*models.Role
	branches map[id.BranchID]*models.Branch
	staffing map[models.Staffing]struct{}
}

func NewInMemory() *InMemory {
	return &InMemory{
		roles:    make(map[string]*models.Role),
		branches: make(map[id.BranchID]*models.Branch),
		staffing: make(map[models.Staffing]struct{}),
	}
}

// CreateRole stores a role. Names (case-insensitive) and orders are unique.
func (s *InMemory) CreateRole(_ context.Context, role *models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if strings.EqualFold(r.Name, role.Name) {
			return fmt.Errorf("role name %q: %w", role.Name, sentinel.ErrAlreadyUsed)
		}
		if r.Order == role.Order {
			return fmt.Errorf("role order %d: %w", role.Order, sentinel.ErrConflict)
		}
	}
	cp := *role
	s.roles[role.Name] = &cp
	return nil
}

func (s *InMemory) FindRole(_ context.Context, name string) (*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[name]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// UpdateRole replaces a role's order. The new order must be free.
func (s *InMemory) UpdateRole(_ context.Context, role *models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role.Name]; !ok {
		return sentinel.ErrNotFound
	}
	for name, r := range s.roles {
		if name != role.Name && r.Order == role.Order {
			return fmt.Errorf("role order %d: %w", role.Order, sentinel.ErrConflict)
		}
	}
	cp := *role
	s.roles[role.Name] = &cp
	return nil
}

// DeleteRole removes a role and every staffing entry naming it.
func (s *InMemory) DeleteRole(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[name]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.roles, name)
	for st := range s.staffing {
		if st.RoleName == name {
			delete(s.staffing, st)
		}
	}
	return nil
}

func (s *InMemory) ListRoles(_ context.Context) ([]models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// CreateBranch stores a branch. Codes are unique.
func (s *InMemory) CreateBranch(_ context.Context, branch *models.Branch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.branches[branch.ID]; ok {
		return fmt.Errorf("branch %s: %w", branch.ID, sentinel.ErrConflict)
	}
	if s.codeTakenLocked(branch.Code, branch.ID) {
		return fmt.Errorf("branch code %q: %w", branch.Code, sentinel.ErrAlreadyUsed)
	}
	if branch.ParentID != nil {
		if _, ok := s.branches[*branch.ParentID]; !ok {
			return fmt.Errorf("parent branch %s: %w", branch.ParentID, sentinel.ErrNotFound)
		}
	}
	cp := *branch
	s.branches[branch.ID] = &cp
	return nil
}

func (s *InMemory) UpdateBranch(_ context.Context, branch *models.Branch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.branches[branch.ID]; !ok {
		return sentinel.ErrNotFound
	}
	if s.codeTakenLocked(branch.Code, branch.ID) {
		return fmt.Errorf("branch code %q: %w", branch.Code, sentinel.ErrAlreadyUsed)
	}
	if branch.ParentID != nil {
		if _, ok := s.branches[*branch.ParentID]; !ok {
			return fmt.Errorf("parent branch %s: %w", branch.ParentID, sentinel.ErrNotFound)
		}
	}
	cp := *branch
	s.branches[branch.ID] = &cp
	return nil
}

func (s *InMemory) codeTakenLocked(code string, except id.BranchID) bool {
	for bid, b := range s.branches {
		if bid != except && b.Code == code {
			return true
		}
	}
	return false
}

func (s *InMemory) FindBranch(_ context.Context, branchID id.BranchID) (*models.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.branches[branchID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *InMemory) ListBranches(_ context.Context) ([]models.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Branch, 0, len(s.branches))
	for _, b := range s.branches {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// AddStaffing is idempotent.
func (s *InMemory) AddStaffing(_ context.Context, st models.Staffing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.branches[st.BranchID]; !ok {
		return fmt.Errorf("branch %s: %w", st.BranchID, sentinel.ErrNotFound)
	}
	if _, ok := s.roles[st.RoleName]; !ok {
		return fmt.Errorf("role %q: %w", st.RoleName, sentinel.ErrNotFound)
	}
	s.staffing[st] = struct{}{}
	return nil
}

func (s *InMemory) RemoveStaffing(_ context.Context, st models.Staffing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.staffing[st]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.staffing, st)
	return nil
}

func (s *InMemory) ListStaffing(_ context.Context) ([]models.Staffing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Staffing, 0, len(s.staffing))
	for st := range s.staffing {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BranchID != out[j].BranchID {
			return out[i].BranchID.String() < out[j].BranchID.String()
		}
		return out[i].RoleName < out[j].RoleName
	})
	return out, nil
}
