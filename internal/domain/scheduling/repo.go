package scheduling

import (
	"context"
	"time"
)

// Repositories return ErrNotFound when a row does not exist. Writes made with a
// ctx obtained from db.Transactor.WithTx join that transaction.

type DoctorRepository interface {
	GetByID(ctx context.Context, id int64) (*Doctor, error)
	ListByService(ctx context.Context, serviceID int64) ([]*Doctor, error)
}

type MedicalServiceRepository interface {
	GetByID(ctx context.Context, id int64) (*MedicalService, error)
	List(ctx context.Context) ([]*MedicalService, error)
}

type PatientRepository interface {
	GetByUserID(ctx context.Context, userID int64) (*Patient, error)
	// Create inserts the patient row for userID and returns it with the
	// user's contact details.
	Create(ctx context.Context, userID int64) (*Patient, error)
}

type AppointmentRepository interface {
	// LockSlot takes a transaction-scoped lock on (doctorID, at). It must be
	// called inside a transaction.
	LockSlot(ctx context.Context, doctorID int64, at time.Time) error
	// SlotTaken reports whether another active appointment of doctorID starts
	// within the hour beginning at at. excludeID is ignored when zero.
	SlotTaken(ctx context.Context, doctorID int64, at time.Time, excludeID int64) (bool, error)
	Create(ctx context.Context, a *Appointment) error
	// GetForUpdate reads the appointment and locks its row until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*Appointment, error)
	// Reschedule moves the appointment and clears its reminder flag.
	Reschedule(ctx context.Context, id int64, at time.Time) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
	// ActiveByDoctorFrom lists the doctor's scheduled or confirmed
	// appointments at or after from.
	ActiveByDoctorFrom(ctx context.Context, doctorID int64, from time.Time) ([]*Appointment, error)
	ListByPatient(ctx context.Context, patientID int64, limit, offset int) ([]*AppointmentSummary, int, error)
}

type HistoryRepository interface {
	Create(ctx context.Context, appointmentID int64, diagnosis string) error
	SetDiagnosis(ctx context.Context, appointmentID int64, diagnosis string) error
}

// Repositories groups the stores the scheduling service depends on.
type Repositories struct {
	Doctors      DoctorRepository
	Services     MedicalServiceRepository
	Patients     PatientRepository
	Appointments AppointmentRepository
	History      HistoryRepository
}
