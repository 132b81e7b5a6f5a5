// Package ids generates the correlation identifiers (scan_id,
// signal_id) threaded through every queue message and table row.
package ids

import "github.com/google/uuid"

// New returns a fresh random identifier.
func New() string {
	return uuid.NewString()
}
