package scheduling

import (
	"time"

	"github.com/clinic/clinic/internal/platform/calendar"
)

// HorizonDays is how many calendar days, today included, availability covers.
const HorizonDays = 14

// GenerateSlots lists the doctor's hourly slots over the horizon starting at
// now's date. A slot is taken when an active appointment falls in the same
// clinic-zone date and hour, so 09:30 blocks the 09:00 slot. Slots starting at
// or before now are never returned. With includeTaken the future taken slots
// are kept and marked unavailable. The result is ordered by date then hour and
// depends only on its arguments.
func GenerateSlots(clock *calendar.Clock, now time.Time, appointments []*Appointment, includeTaken bool) []Slot {
	taken := make(map[int64]struct{}, len(appointments))
	for _, a := range appointments {
		if !a.Status.Active() {
			continue
		}
		taken[clock.TruncateHour(a.ScheduledAt).Unix()] = struct{}{}
	}

	hours := calendar.ShiftHours()
	var slots []Slot
	for _, day := range clock.BusinessDays(now, HorizonDays) {
		for _, h := range hours {
			start := clock.SlotStart(day, h)
			if !start.After(now) {
				continue
			}
			_, busy := taken[start.Unix()]
			if busy && !includeTaken {
				continue
			}
			slots = append(slots, Slot{
				Date:      clock.FormatDate(start),
				Hour:      clock.FormatClock(start),
				Start:     start,
				Available: !busy,
			})
		}
	}
	return slots
}
