package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/calendar"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/events"
)

// publishTimeout bounds post-commit side effects so a slow broker never holds
// a request open.
const publishTimeout = 5 * time.Second

// ConfirmationNotifier is told about every committed booking. Implementations
// must not block for long; delivery failures are theirs to log.
type ConfirmationNotifier interface {
	AppointmentBooked(ctx context.Context, c *Confirmation)
}

type Service struct {
	tx       db.Transactor
	repos    Repositories
	clock    *calendar.Clock
	events   events.Publisher
	notifier ConfirmationNotifier
	logger   zerolog.Logger
}

func NewService(tx db.Transactor, repos Repositories, clock *calendar.Clock, logger zerolog.Logger) *Service {
	return &Service{
		tx:     tx,
		repos:  repos,
		clock:  clock,
		events: events.NopPublisher{},
		logger: logger.With().Str("component", "scheduling").Logger(),
	}
}

func (s *Service) SetPublisher(p events.Publisher) { s.events = p }

func (s *Service) SetNotifier(n ConfirmationNotifier) { s.notifier = n }

// Clock exposes the clinic calendar used for every slot computation.
func (s *Service) Clock() *calendar.Clock { return s.clock }

// -- Catalog --

func (s *Service) ListServices(ctx context.Context) ([]*MedicalService, error) {
	return s.repos.Services.List(ctx)
}

func (s *Service) ListDoctors(ctx context.Context, serviceID int64) ([]*Doctor, error) {
	if serviceID <= 0 {
		return nil, validationError("service id must be positive")
	}
	if _, err := s.repos.Services.GetByID(ctx, serviceID); err != nil {
		return nil, err
	}
	return s.repos.Doctors.ListByService(ctx, serviceID)
}

// -- Availability --

type Availability struct {
	DoctorID int64  `json:"doctor_id"`
	Timezone string `json:"timezone"`
	Slots    []Slot `json:"slots"`
}

// Availability lists the doctor's free slots from now over the booking
// horizon. With includeTaken the occupied future slots are returned too.
func (s *Service) Availability(ctx context.Context, doctorID int64, includeTaken bool) (*Availability, error) {
	if doctorID <= 0 {
		return nil, validationError("doctor id must be positive")
	}
	if _, err := s.repos.Doctors.GetByID(ctx, doctorID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	appts, err := s.repos.Appointments.ActiveByDoctorFrom(ctx, doctorID, s.clock.StartOfDay(now))
	if err != nil {
		return nil, fmt.Errorf("load appointments of doctor %d: %w", doctorID, err)
	}

	slots := GenerateSlots(s.clock, now, appts, includeTaken)
	if slots == nil {
		slots = []Slot{}
	}
	return &Availability{
		DoctorID: doctorID,
		Timezone: s.clock.Location().String(),
		Slots:    slots,
	}, nil
}

// -- Booking --

// Instant combines a client date and hour-minute string into a clinic-zone
// instant that must be a future slot of the grid.
func (s *Service) Instant(date, hhmm string) (time.Time, error) {
	at, err := s.clock.Combine(date, hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := s.requireSlot(at); err != nil {
		return time.Time{}, err
	}
	return at, nil
}

// requireSlot accepts only instants GenerateSlots could offer.
func (s *Service) requireSlot(at time.Time) error {
	if !at.After(s.clock.Now()) {
		return validationError("appointment time %s is not in the future", at.Format(time.RFC3339))
	}
	if !s.clock.IsSlotStart(at) {
		return validationError("appointment time %s is not a bookable slot", at.In(s.clock.Location()).Format(time.RFC3339))
	}
	return nil
}

// Book reserves the slot for the caller. The patient record is created on the
// caller's first booking. Two concurrent bookings of the same doctor and
// instant serialize on the slot lock; the loser gets ErrSlotTaken.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Confirmation, error) {
	if req.UserID <= 0 {
		return nil, validationError("caller user id is required")
	}
	if req.DoctorID <= 0 {
		return nil, validationError("doctor_id must be positive")
	}
	if req.ServiceID <= 0 {
		return nil, validationError("service_id must be positive")
	}
	at, err := s.Instant(req.Date, req.Time)
	if err != nil {
		return nil, err
	}

	doctor, err := s.repos.Doctors.GetByID(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	service, err := s.repos.Services.GetByID(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}

	var (
		appt    *Appointment
		patient *Patient
	)
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repos.Appointments.LockSlot(ctx, doctor.ID, at); err != nil {
			return err
		}

		patient, err = s.resolvePatient(ctx, req.UserID)
		if err != nil {
			return err
		}

		taken, err := s.repos.Appointments.SlotTaken(ctx, doctor.ID, at, 0)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotTaken
		}

		appt = &Appointment{
			DoctorID:    doctor.ID,
			PatientID:   patient.ID,
			ServiceID:   service.ID,
			Status:      StatusConfirmed,
			Attendance:  AttendanceAttends,
			ScheduledAt: at,
		}
		if err := s.repos.Appointments.Create(ctx, appt); err != nil {
			return err
		}
		return s.repos.History.Create(ctx, appt.ID, DiagnosisScheduled)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("appointment_id", appt.ID).
		Int64("doctor_id", doctor.ID).
		Int64("patient_id", patient.ID).
		Time("scheduled_at", at).
		Msg("appointment booked")

	conf := &Confirmation{
		AppointmentID: appt.ID,
		Date:          s.clock.FormatDate(at),
		Time:          s.clock.FormatClock(at),
		ScheduledAt:   at,
		PatientName:   patient.Name(),
		PatientEmail:  patient.Email,
		DoctorName:    doctor.Name(),
		ServiceName:   service.Name,
		ServicePrice:  service.Price,
		Status:        appt.Status.String(),
	}

	s.publish(ctx, events.TypeAppointmentBooked, appt, nil)
	if s.notifier != nil {
		s.notifier.AppointmentBooked(context.WithoutCancel(ctx), conf)
	}
	return conf, nil
}

func (s *Service) resolvePatient(ctx context.Context, userID int64) (*Patient, error) {
	p, err := s.repos.Patients.GetByUserID(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.repos.Patients.Create(ctx, userID)
}

// -- Lifecycle --

// Reschedule moves an active appointment to at and clears its reminder flag so
// the new time is reminded again.
func (s *Service) Reschedule(ctx context.Context, id int64, at time.Time) (*Appointment, error) {
	if id <= 0 {
		return nil, validationError("appointment id must be positive")
	}
	if err := s.requireSlot(at); err != nil {
		return nil, err
	}

	var (
		appt     *Appointment
		previous time.Time
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		appt, err = s.repos.Appointments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !appt.Status.Active() {
			return fmt.Errorf("reschedule %s appointment %d: %w", appt.Status, id, ErrIllegalState)
		}

		if err := s.repos.Appointments.LockSlot(ctx, appt.DoctorID, at); err != nil {
			return err
		}
		taken, err := s.repos.Appointments.SlotTaken(ctx, appt.DoctorID, at, appt.ID)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotTaken
		}

		if err := s.repos.Appointments.Reschedule(ctx, appt.ID, at); err != nil {
			return err
		}
		if err := s.repos.History.SetDiagnosis(ctx, appt.ID, DiagnosisRescheduled); err != nil {
			return err
		}

		previous = appt.ScheduledAt
		appt.ScheduledAt = at
		appt.ReminderSent = false
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("appointment_id", appt.ID).
		Time("from", previous).
		Time("to", at).
		Msg("appointment rescheduled")

	s.publish(ctx, events.TypeAppointmentRescheduled, appt, &previous)
	return appt, nil
}

// Cancel releases the slot of an active appointment. Cancelling twice is an
// ErrIllegalState.
func (s *Service) Cancel(ctx context.Context, id int64) (*Appointment, error) {
	if id <= 0 {
		return nil, validationError("appointment id must be positive")
	}

	var appt *Appointment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		appt, err = s.repos.Appointments.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !appt.Status.Active() {
			return fmt.Errorf("cancel %s appointment %d: %w", appt.Status, id, ErrIllegalState)
		}
		if err := s.repos.Appointments.UpdateStatus(ctx, appt.ID, StatusCancelled); err != nil {
			return err
		}
		if err := s.repos.History.SetDiagnosis(ctx, appt.ID, DiagnosisCancelled); err != nil {
			return err
		}
		appt.Status = StatusCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("appointment_id", appt.ID).Msg("appointment cancelled")
	s.publish(ctx, events.TypeAppointmentCancelled, appt, nil)
	return appt, nil
}

// ListMyAppointments pages through the caller's appointments, newest first. A
// user who never booked has none.
func (s *Service) ListMyAppointments(ctx context.Context, userID int64, limit, offset int) ([]*AppointmentSummary, int, error) {
	if userID <= 0 {
		return nil, 0, validationError("caller user id is required")
	}
	patient, err := s.repos.Patients.GetByUserID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return []*AppointmentSummary{}, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return s.repos.Appointments.ListByPatient(ctx, patient.ID, limit, offset)
}

func (s *Service) publish(ctx context.Context, eventType string, a *Appointment, previous *time.Time) {
	e := events.NewEvent(eventType, s.clock.Now())
	e.AppointmentID = a.ID
	e.DoctorID = a.DoctorID
	e.PatientID = a.PatientID
	e.ServiceID = a.ServiceID
	e.ScheduledAt = a.ScheduledAt
	e.Previous = previous

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn().Err(err).
			Str("event", eventType).
			Int64("appointment_id", a.ID).
			Msg("failed to publish appointment event")
	}
}
