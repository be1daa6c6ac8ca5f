package pool

import "time"

// Lease represents an in-flight tool invocation holding tokens. A Lease is
// exclusively owned by the Pool from creation until release or expiry; no
// other component holds a reference, and the Pool is the only mutator.
type Lease struct {
	ID                   string
	Tool                 string
	Tokens               int
	AcquiredAt           time.Time
	ExpiresAt            time.Time
	CommitRatioAtAcquire float64
	WarningLogged        bool
}

// LeaseTTL is the absolute lifetime of a lease; heartbeat never extends it.
const LeaseTTL = 30 * time.Minute

// longRunningWarningAfter is when the maintenance sweep logs a one-shot
// warning about a lease that has not yet been released.
const longRunningWarningAfter = 10 * time.Minute
