package calendar

import "time"

const (
	ReminderLeadTime  = 24 * time.Hour
	ReminderTolerance = 5 * time.Minute
	CatchUpFloor      = time.Hour
)

// Window is a closed interval of appointment instants.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t lies within [From, To].
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}

// ReminderWindows returns the two ranges scanned on each reminder tick: the
// advance-notice band around now+24h and the catch-up range [now+1h, now+24h]
// for appointments a stopped scheduler skipped over.
func ReminderWindows(now time.Time) (advance, catchUp Window) {
	advance = Window{
		From: now.Add(ReminderLeadTime - ReminderTolerance),
		To:   now.Add(ReminderLeadTime + ReminderTolerance),
	}
	catchUp = Window{
		From: now.Add(CatchUpFloor),
		To:   now.Add(ReminderLeadTime),
	}
	return advance, catchUp
}
