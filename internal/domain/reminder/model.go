package reminder

import "time"

// Candidate is an appointment due for a reminder, joined with what the
// message needs.
type Candidate struct {
	AppointmentID int64
	ScheduledAt   time.Time
	PatientName   string
	PatientEmail  string
	PatientPhone  string
	DoctorName    string
	ServiceName   string
}

// TickResult summarizes one scan.
type TickResult struct {
	Candidates int `json:"candidates"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
}
