package correlate

import (
	"fmt"
	"strings"
)

// MissingResultError is returned in strict mode when an eligible unit's
// identifier has no matching inbound record.
type MissingResultError struct {
	// ID is the identifier that produced no result.
	ID string

	// Available is the number of results that were supplied.
	Available int
}

// Error implements the error interface.
func (e *MissingResultError) Error() string {
	return fmt.Sprintf("missing translation for %q (available results: %d)", e.ID, e.Available)
}

// UnusedResultError is returned in strict mode when inbound records
// reference identifiers no eligible unit produced, which usually means
// the batch was generated from a different document revision.
type UnusedResultError struct {
	// IDs lists the orphaned identifiers, sorted.
	IDs []string
}

// Error implements the error interface.
func (e *UnusedResultError) Error() string {
	return "unused translations detected: " + strings.Join(e.IDs, ", ")
}
