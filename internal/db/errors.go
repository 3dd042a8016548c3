package db

import "errors"

// Sentinel errors for audit log operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNoAuditTrail indicates a job has zero audit records. Callers must
	// treat this as "no evidence found", distinct from an empty success.
	ErrNoAuditTrail = errors.New("no audit trail for job")
)
