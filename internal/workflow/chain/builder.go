// Package chain derives approval chains from an organization snapshot.
package chain

import (
	orgmodels "kycflow/internal/org/models"
	id "kycflow/pkg/domain"
	dErrors "kycflow/pkg/domain-errors"
)

// Builder is stateless. The snapshot is always passed in, so the same inputs
// yield the same chain.
type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

// BuildChain returns the roles applicable at branch, ascending by order.
func (b *Builder) BuildChain(snap *orgmodels.Snapshot, branchID id.BranchID) ([]orgmodels.RoleLevel, error) {
	if _, ok := snap.Branch(branchID); !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "branch not found").With("branch_id", branchID)
	}
	chain := applicable(snap, branchID, 0)
	if len(chain) == 0 {
		return nil, dErrors.New(dErrors.CodeChainConfiguration, "no approval roles apply at branch").
			With("branch_id", branchID)
	}
	return chain, nil
}

// Satisfies reports whether every level from pendingIndex on applies at
// branch.
func (b *Builder) Satisfies(snap *orgmodels.Snapshot, branchID id.BranchID, chain []orgmodels.RoleLevel, pendingIndex int) bool {
	for _, lvl := range chain[clamp(pendingIndex, len(chain)):] {
		role, ok := snap.Role(lvl.RoleName)
		if !ok || !snap.Applicable(role, branchID) {
			return false
		}
	}
	return true
}

// RebuildSuffix keeps the completed prefix and replaces the rest with roles
// applicable at branch whose order is at least the pending level's order.
// It never shortens the chain to the point of completing it.
func (b *Builder) RebuildSuffix(snap *orgmodels.Snapshot, branchID id.BranchID, chain []orgmodels.RoleLevel, pendingIndex int) ([]orgmodels.RoleLevel, error) {
	if pendingIndex < 0 || pendingIndex >= len(chain) {
		return nil, dErrors.New(dErrors.CodeInvalidState, "no pending level to rebuild from").
			With("pending_level_index", pendingIndex, "chain_length", len(chain))
	}
	if _, ok := snap.Branch(branchID); !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "branch not found").With("branch_id", branchID)
	}
	suffix := applicable(snap, branchID, chain[pendingIndex].Order)
	if len(suffix) == 0 {
		return nil, dErrors.New(dErrors.CodeChainConfiguration, "target branch cannot satisfy the remaining approval levels").
			With("branch_id", branchID, "from_order", chain[pendingIndex].Order)
	}
	out := make([]orgmodels.RoleLevel, 0, pendingIndex+len(suffix))
	out = append(out, chain[:pendingIndex]...)
	return append(out, suffix...), nil
}

func applicable(snap *orgmodels.Snapshot, branchID id.BranchID, minOrder int) []orgmodels.RoleLevel {
	var out []orgmodels.RoleLevel
	for _, r := range snap.Roles {
		if r.Order < minOrder {
			continue
		}
		if snap.Applicable(r, branchID) {
			out = append(out, r.Level())
		}
	}
	return out
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}
