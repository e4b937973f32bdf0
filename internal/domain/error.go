package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid database execution context")

	// External call failures
	ErrNetwork   = errors.New("network error")
	ErrHTTP      = errors.New("http error")
	ErrAuth      = errors.New("credential refresh failed")
	ErrParse     = errors.New("malformed payload")
	ErrSubmit    = errors.New("ai job submit failed")
	ErrTimeout   = errors.New("ai job did not complete in time")
	ErrJobFailed = errors.New("ai job ended without completing")

	// Batch guards. These are skips, not failures.
	ErrEmptyBatch = errors.New("batch is empty")
	ErrNoImage    = errors.New("batch has no image snippet")
	ErrNoRecords  = errors.New("no records left to push")
)

// HTTPError describes a non-2xx response, or a 2xx response whose body
// carries a non-zero provider code.
type HTTPError struct {
	Op         string
	StatusCode int
	Code       int
	Msg        string
}

func (e *HTTPError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: http %d code %d: %s", e.Op, e.StatusCode, e.Code, e.Msg)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, e.Msg)
}

func (e *HTTPError) Unwrap() error { return ErrHTTP }

// IsSkip reports whether err is one of the batch guards.
func IsSkip(err error) bool {
	return errors.Is(err, ErrEmptyBatch) || errors.Is(err, ErrNoImage) || errors.Is(err, ErrNoRecords)
}

var classes = []struct {
	err  error
	name string
}{
	{ErrTimeout, "timeout"},
	{ErrJobFailed, "job_failed"},
	{ErrSubmit, "submit"},
	{ErrAuth, "auth"},
	{ErrParse, "parse"},
	{ErrNetwork, "network"},
	{ErrHTTP, "http"},
}

// Class names the sentinel behind err so repeats of one failure group together.
func Class(err error) string {
	for _, c := range classes {
		if errors.Is(err, c.err) {
			return c.name
		}
	}
	return "other"
}
