package reminder

import (
	"context"

	"github.com/clinic/clinic/internal/platform/calendar"
)

// Repository is the slice of the appointment store the scheduler needs.
type Repository interface {
	// DueCandidates returns active appointments without a reminder whose
	// time falls in either window, earliest first.
	DueCandidates(ctx context.Context, advance, catchUp calendar.Window) ([]*Candidate, error)
	// MarkSent flips the reminder flag. It reports false when the flag was
	// already set, for instance by an overlapping tick on another replica.
	MarkSent(ctx context.Context, appointmentID int64) (bool, error)
}
