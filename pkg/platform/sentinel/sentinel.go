package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Record stores, the attribute store
// client and the outbox return these (optionally wrapped) so services can
// translate them into domain errors:
//   - ErrNotFound: entity does not exist in the store
//   - ErrConflict: a uniqueness constraint rejected the write
//   - ErrStaleState: a conditional update found a different status than expected
//   - ErrUnavailable: the backing service cannot be reached right now
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrStaleState  = errors.New("stale state")
	ErrUnavailable = errors.New("unavailable")
)
