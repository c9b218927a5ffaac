package job

import "errors"

var (
	// ErrJobNotFound is returned when a job does not exist or belongs to a
	// different tenant.
	ErrJobNotFound = errors.New("job not found")

	// ErrUnknownServiceType is returned when a job carries a service type no
	// executor exists for. This is a programming error, not a runtime
	// condition to recover from.
	ErrUnknownServiceType = errors.New("unknown service type")
)

// ValidationError describes a creation request that violates the job
// invariants. The job is never created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}
