package models

import (
	"sort"
	"time"

	id "kycflow/pkg/domain"
)

// Snapshot is an immutable view of the role hierarchy, branch directory and
// staffing at one point in time. It is passed explicitly to the chain builder;
// callers must not mutate the slices it exposes.
type Snapshot struct {
	Roles    []Role     `json:"roles"`
	Branches []Branch   `json:"branches"`
	Staffing []Staffing `json:"staffing"`
	LoadedAt time.Time  `json:"loaded_at"`

	branchIndex map[id.BranchID]int
	staffed     map[id.BranchID]map[string]struct{}
}

// NewSnapshot builds a snapshot and its lookup indexes. Roles are sorted by
// order ascending.
func NewSnapshot(roles []Role, branches []Branch, staffing []Staffing, loadedAt time.Time) *Snapshot {
	s := &Snapshot{
		Roles:    append([]Role(nil), roles...),
		Branches: append([]Branch(nil), branches...),
		Staffing: append([]Staffing(nil), staffing...),
		LoadedAt: loadedAt,
	}
	s.index()
	return s
}

func (s *Snapshot) index() {
	sort.SliceStable(s.Roles, func(i, j int) bool { return s.Roles[i].Order < s.Roles[j].Order })
	s.branchIndex = make(map[id.BranchID]int, len(s.Branches))
	for i, b := range s.Branches {
		s.branchIndex[b.ID] = i
	}
	s.staffed = make(map[id.BranchID]map[string]struct{})
	for _, st := range s.Staffing {
		roles, ok := s.staffed[st.BranchID]
		if !ok {
			roles = make(map[string]struct{})
			s.staffed[st.BranchID] = roles
		}
		roles[st.RoleName] = struct{}{}
	}
}

// Reindex rebuilds lookup indexes after the snapshot was decoded from JSON.
func (s *Snapshot) Reindex() {
	s.index()
}

// Branch looks up a branch by ID.
func (s *Snapshot) Branch(branchID id.BranchID) (Branch, bool) {
	i, ok := s.branchIndex[branchID]
	if !ok {
		return Branch{}, false
	}
	return s.Branches[i], true
}

// Role looks up a role by name.
func (s *Snapshot) Role(name string) (Role, bool) {
	for _, r := range s.Roles {
		if r.Name == name {
			return r, true
		}
	}
	return Role{}, false
}

// Applicable reports whether role applies at branch: it is global, or staffed
// at the branch or one of its ancestors. Parent cycles are cut off.
func (s *Snapshot) Applicable(role Role, branchID id.BranchID) bool {
	if role.Global {
		return true
	}
	seen := make(map[id.BranchID]struct{})
	current := branchID
	for {
		if _, loop := seen[current]; loop {
			return false
		}
		seen[current] = struct{}{}
		if _, ok := s.staffed[current][role.Name]; ok {
			return true
		}
		b, ok := s.Branch(current)
		if !ok || b.ParentID == nil {
			return false
		}
		current = *b.ParentID
	}
}
