package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into coded domain errors.
//
// They describe the state of persisted records, not input validation:
// - ErrNotFound: record does not exist
// - ErrConflict: an optimistic version check or uniqueness constraint failed
// - ErrAlreadyUsed: a unique natural key (role name, branch code) is taken
// - ErrInvalidState: record is in the wrong state for the requested write
// - ErrUnavailable: backing service temporarily unavailable
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
