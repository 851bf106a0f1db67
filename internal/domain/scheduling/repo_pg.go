package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository { return &doctorRepoPG{pool: pool} }

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const doctorCols = `d.id, d.user_id, d.service_id, u.first_name, u.last_name`

func (r *doctorRepoPG) scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.UserID, &d.ServiceID, &d.FirstName, &d.LastName)
	return &d, err
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id int64) (*Doctor, error) {
	d, err := r.scanDoctor(r.conn(ctx).QueryRow(ctx, `
		SELECT `+doctorCols+` FROM doctors d JOIN users u ON u.id = d.user_id
		WHERE d.id = $1`, id))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("doctor %d", id))
	}
	return d, nil
}

func (r *doctorRepoPG) ListByService(ctx context.Context, serviceID int64) ([]*Doctor, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+doctorCols+` FROM doctors d JOIN users u ON u.id = d.user_id
		WHERE d.service_id = $1
		ORDER BY u.last_name, u.first_name`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := r.scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

// =========== Medical Service Repository ===========

type medicalServiceRepoPG struct{ pool *pgxpool.Pool }

func NewMedicalServiceRepoPG(pool *pgxpool.Pool) MedicalServiceRepository {
	return &medicalServiceRepoPG{pool: pool}
}

func (r *medicalServiceRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *medicalServiceRepoPG) GetByID(ctx context.Context, id int64) (*MedicalService, error) {
	var s MedicalService
	err := r.conn(ctx).QueryRow(ctx, `SELECT id, name, price::text FROM services WHERE id = $1`, id).
		Scan(&s.ID, &s.Name, &s.Price)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("service %d", id))
	}
	return &s, nil
}

func (r *medicalServiceRepoPG) List(ctx context.Context) ([]*MedicalService, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT id, name, price::text FROM services ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*MedicalService
	for rows.Next() {
		var s MedicalService
		if err := rows.Scan(&s.ID, &s.Name, &s.Price); err != nil {
			return nil, err
		}
		items = append(items, &s)
	}
	return items, rows.Err()
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *patientRepoPG) GetByUserID(ctx context.Context, userID int64) (*Patient, error) {
	var p Patient
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT p.id, p.user_id, u.first_name, u.last_name, u.email, COALESCE(u.phone, '')
		FROM patients p JOIN users u ON u.id = p.user_id
		WHERE p.user_id = $1`, userID).
		Scan(&p.ID, &p.UserID, &p.FirstName, &p.LastName, &p.Email, &p.Phone)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("patient for user %d", userID))
	}
	return &p, nil
}

// Create tolerates a concurrent first booking by the same user: the unique
// user_id makes the second insert a no-op and both callers read the same row.
func (r *patientRepoPG) Create(ctx context.Context, userID int64) (*Patient, error) {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		if db.HasCode(err, db.ForeignKeyViolation) {
			return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("insert patient: %w", err)
	}
	return r.GetByUserID(ctx, userID)
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const apptCols = `a.id, a.doctor_id, a.patient_id, a.service_id, a.status_id, a.attendance_id,
	a.scheduled_at, a.reminder_sent, a.created_at, a.updated_at`

func scanAppointment(row pgx.Row, extra ...interface{}) (*Appointment, error) {
	var a Appointment
	dest := []interface{}{&a.ID, &a.DoctorID, &a.PatientID, &a.ServiceID, &a.Status, &a.Attendance,
		&a.ScheduledAt, &a.ReminderSent, &a.CreatedAt, &a.UpdatedAt}
	err := row.Scan(append(dest, extra...)...)
	return &a, err
}

// slotLockKey splits (doctor, instant) into the two int4 keys of
// pg_advisory_xact_lock. Instants are minute granular.
func slotLockKey(doctorID int64, at time.Time) (int32, int32) {
	return int32(doctorID), int32(at.Unix() / 60)
}

func (r *appointmentRepoPG) LockSlot(ctx context.Context, doctorID int64, at time.Time) error {
	if db.TxFromContext(ctx) == nil {
		return errors.New("lock slot: no transaction in context")
	}
	k1, k2 := slotLockKey(doctorID, at)
	if _, err := r.conn(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, k1, k2); err != nil {
		return fmt.Errorf("lock slot: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) SlotTaken(ctx context.Context, doctorID int64, at time.Time, excludeID int64) (bool, error) {
	var taken bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1 AND scheduled_at >= $2 AND scheduled_at < $2 + INTERVAL '1 hour'
			  AND status_id IN (1, 2) AND id <> $3
		)`, doctorID, at, excludeID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check slot: %w", err)
	}
	return taken, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (doctor_id, patient_id, service_id, status_id, attendance_id,
			scheduled_at, reminder_sent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		a.DoctorID, a.PatientID, a.ServiceID, a.Status, a.Attendance, a.ScheduledAt, a.ReminderSent).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if db.HasCode(err, db.UniqueViolation) {
			return ErrSlotTaken
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepoPG) GetForUpdate(ctx context.Context, id int64) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, `
		SELECT `+apptCols+` FROM appointments a WHERE a.id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("appointment %d", id))
	}
	return a, nil
}

func (r *appointmentRepoPG) Reschedule(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET scheduled_at = $2, reminder_sent = FALSE, updated_at = NOW()
		WHERE id = $1`, id, at)
	if err != nil {
		if db.HasCode(err, db.UniqueViolation) {
			return ErrSlotTaken
		}
		return fmt.Errorf("update appointment time: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("appointment %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET status_id = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update appointment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("appointment %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r *appointmentRepoPG) ActiveByDoctorFrom(ctx context.Context, doctorID int64, from time.Time) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM appointments a
		WHERE a.doctor_id = $1 AND a.scheduled_at >= $2 AND a.status_id IN (1, 2)
		ORDER BY a.scheduled_at`, doctorID, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID int64, limit, offset int) ([]*AppointmentSummary, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointments WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+`, st.name, du.first_name || ' ' || du.last_name, s.name
		FROM appointments a
		JOIN appointment_statuses st ON st.id = a.status_id
		JOIN doctors d ON d.id = a.doctor_id
		JOIN users du ON du.id = d.user_id
		JOIN services s ON s.id = a.service_id
		WHERE a.patient_id = $1
		ORDER BY a.scheduled_at DESC
		LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*AppointmentSummary
	for rows.Next() {
		var sum AppointmentSummary
		a, err := scanAppointment(rows, &sum.StatusName, &sum.DoctorName, &sum.ServiceName)
		if err != nil {
			return nil, 0, err
		}
		sum.Appointment = *a
		items = append(items, &sum)
	}
	return items, total, rows.Err()
}

// =========== History Repository ===========

type historyRepoPG struct{ pool *pgxpool.Pool }

func NewHistoryRepoPG(pool *pgxpool.Pool) HistoryRepository { return &historyRepoPG{pool: pool} }

func (r *historyRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *historyRepoPG) Create(ctx context.Context, appointmentID int64, diagnosis string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO consultation_history (appointment_id, diagnosis) VALUES ($1, $2)`,
		appointmentID, diagnosis)
	if err != nil {
		return fmt.Errorf("insert consultation history: %w", err)
	}
	return nil
}

// SetDiagnosis upserts so appointments loaded from older data without a
// history row still get one.
func (r *historyRepoPG) SetDiagnosis(ctx context.Context, appointmentID int64, diagnosis string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO consultation_history (appointment_id, diagnosis) VALUES ($1, $2)
		ON CONFLICT (appointment_id) DO UPDATE SET diagnosis = EXCLUDED.diagnosis, updated_at = NOW()`,
		appointmentID, diagnosis)
	if err != nil {
		return fmt.Errorf("update consultation history: %w", err)
	}
	return nil
}
