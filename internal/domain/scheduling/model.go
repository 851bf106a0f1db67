package scheduling

import (
	"time"
)

// Status is the appointment_statuses code of an appointment.
type Status int16

const (
	StatusScheduled Status = 1
	StatusConfirmed Status = 2
	// StatusCompleted is reserved; nothing in this service produces it.
	StatusCompleted Status = 3
	StatusCancelled Status = 4
)

// Active reports whether the appointment still occupies its slot.
func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

func (s Status) String() string {
	switch s {
	case StatusScheduled:
		return "scheduled"
	case StatusConfirmed:
		return "confirmed"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Attendance is the attendance_types code of an appointment.
type Attendance int16

const (
	AttendanceAttends Attendance = 1
	AttendanceNoShow  Attendance = 2
)

// Consultation history diagnosis written by each lifecycle step.
const (
	DiagnosisScheduled   = "Appointment scheduled - pending"
	DiagnosisRescheduled = "Rescheduled - pending"
	DiagnosisCancelled   = "Cancelled"
)

type Appointment struct {
	ID           int64      `json:"id"`
	DoctorID     int64      `json:"doctor_id"`
	PatientID    int64      `json:"patient_id"`
	ServiceID    int64      `json:"service_id"`
	Status       Status     `json:"status_id"`
	Attendance   Attendance `json:"attendance_id"`
	ScheduledAt  time.Time  `json:"scheduled_at"`
	ReminderSent bool       `json:"reminder_sent"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// AppointmentSummary is an appointment joined with the names a patient sees.
type AppointmentSummary struct {
	Appointment
	StatusName  string `json:"status"`
	DoctorName  string `json:"doctor_name"`
	ServiceName string `json:"service_name"`
}

type Doctor struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	ServiceID int64  `json:"service_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (d *Doctor) Name() string { return fullName(d.FirstName, d.LastName) }

type Patient struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
}

func (p *Patient) Name() string { return fullName(p.FirstName, p.LastName) }

// MedicalService is an entry of the services catalog. Price keeps the NUMERIC
// text so no precision is lost on the way to the client.
type MedicalService struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price string `json:"price"`
}

// Slot is a bookable hour derived from the calendar; it is never stored.
type Slot struct {
	Date      string    `json:"date"`
	Hour      string    `json:"hour"`
	Start     time.Time `json:"start"`
	Available bool      `json:"available"`
}

// BookingRequest is the caller's booking input. Date and Time are the raw
// strings sent by the client; the service normalizes them.
type BookingRequest struct {
	UserID    int64  `json:"-"`
	DoctorID  int64  `json:"doctor_id" validate:"required,gt=0"`
	ServiceID int64  `json:"service_id" validate:"required,gt=0"`
	Date      string `json:"date" validate:"required"`
	Time      string `json:"time" validate:"required"`
}

// RescheduleRequest carries the new date and hour of an appointment.
type RescheduleRequest struct {
	Date string `json:"date" validate:"required"`
	Time string `json:"time" validate:"required"`
}

// Confirmation is returned by a successful booking.
type Confirmation struct {
	AppointmentID int64     `json:"appointment_id"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	PatientName   string    `json:"patient_name"`
	PatientEmail  string    `json:"-"`
	DoctorName    string    `json:"doctor_name"`
	ServiceName   string    `json:"service_name"`
	ServicePrice  string    `json:"service_price"`
	Status        string    `json:"status"`
}

func fullName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + " " + last
}
