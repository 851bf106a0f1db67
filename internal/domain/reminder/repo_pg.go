package reminder

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/calendar"
	"github.com/clinic/clinic/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *repoPG) DueCandidates(ctx context.Context, advance, catchUp calendar.Window) ([]*Candidate, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT a.id, a.scheduled_at,
			pu.first_name, pu.last_name, pu.email, COALESCE(pu.phone, ''),
			du.first_name, du.last_name, s.name
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		JOIN users pu ON pu.id = p.user_id
		JOIN doctors d ON d.id = a.doctor_id
		JOIN users du ON du.id = d.user_id
		JOIN services s ON s.id = a.service_id
		WHERE a.reminder_sent = FALSE
		  AND a.status_id IN (1, 2)
		  AND (a.scheduled_at BETWEEN $1 AND $2 OR a.scheduled_at BETWEEN $3 AND $4)
		ORDER BY a.scheduled_at, a.id`,
		advance.From, advance.To, catchUp.From, catchUp.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Candidate
	for rows.Next() {
		var (
			c                 Candidate
			pFirst, pLast     string
			docFirst, docLast string
		)
		if err := rows.Scan(&c.AppointmentID, &c.ScheduledAt,
			&pFirst, &pLast, &c.PatientEmail, &c.PatientPhone,
			&docFirst, &docLast, &c.ServiceName); err != nil {
			return nil, err
		}
		c.PatientName = joinName(pFirst, pLast)
		c.DoctorName = joinName(docFirst, docLast)
		items = append(items, &c)
	}
	return items, rows.Err()
}

func (r *repoPG) MarkSent(ctx context.Context, appointmentID int64) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET reminder_sent = TRUE, updated_at = NOW()
		WHERE id = $1 AND reminder_sent = FALSE`, appointmentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func joinName(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}
