// Package reminder scans for appointments coming up in the next day and
// emails each patient once.
package reminder

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/clinic/clinic/internal/platform/calendar"
	"github.com/clinic/clinic/internal/platform/lease"
	"github.com/clinic/clinic/internal/platform/notification"
)

const (
	leaseKey    = "reminder-tick"
	sendTimeout = 30 * time.Second
	markTimeout = 5 * time.Second
)

// Sender delivers templated notifications. *notification.Dispatcher
// satisfies it.
type Sender interface {
	SendTemplate(ctx context.Context, templateID string, data map[string]string, r notification.Recipient, attachments ...notification.Attachment) error
	SMSEnabled() bool
}

// Scheduler runs the reminder scan on a fixed cadence.
type Scheduler struct {
	repo   Repository
	sender Sender
	clock  *calendar.Clock
	locker lease.Locker
	logger zerolog.Logger

	// Interval is the time between ticks.
	Interval time.Duration
	// Concurrency bounds the sends in flight during one tick.
	Concurrency int
	// SendTimeout bounds each email or SMS delivery.
	SendTimeout time.Duration
}

// NewScheduler builds a Scheduler. A nil locker means a process-local lease.
func NewScheduler(repo Repository, sender Sender, clock *calendar.Clock, locker lease.Locker, logger zerolog.Logger) *Scheduler {
	if locker == nil {
		locker = lease.NewLocal()
	}
	return &Scheduler{
		repo:        repo,
		sender:      sender,
		clock:       clock,
		locker:      locker,
		logger:      logger.With().Str("component", "reminder").Logger(),
		Interval:    time.Minute,
		Concurrency: 8,
		SendTimeout: sendTimeout,
	}
}

// Run ticks once immediately and then every Interval until ctx is cancelled.
// Ticks run one after another, never overlapping within the process.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info().Dur("interval", s.Interval).Int("concurrency", s.Concurrency).Msg("reminder scheduler started")
	s.runOnce(ctx)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("reminder scheduler stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce ticks if this replica wins the lease for the current interval.
func (s *Scheduler) runOnce(ctx context.Context) {
	unlock, ok, err := s.locker.TryLock(ctx, leaseKey, s.Interval)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to acquire reminder lease")
		return
	}
	if !ok {
		s.logger.Debug().Msg("reminder tick held by another instance")
		return
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn().Err(err).Msg("failed to release reminder lease")
		}
	}()

	if _, err := s.Tick(ctx, s.clock.Now()); err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Msg("reminder tick failed")
	}
}

// Tick selects the due candidates for now and reminds each of them
// independently. A failed send leaves that appointment for the next tick and
// never affects the others.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (TickResult, error) {
	advance, catchUp := calendar.ReminderWindows(now)
	candidates, err := s.repo.DueCandidates(ctx, advance, catchUp)
	if err != nil {
		return TickResult{}, err
	}
	result := TickResult{Candidates: len(candidates)}
	if len(candidates) == 0 {
		return result, nil
	}

	var sent, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(max(s.Concurrency, 1))
	for _, c := range candidates {
		g.Go(func() error {
			if s.remind(ctx, c) {
				sent.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Sent = int(sent.Load())
	result.Failed = int(failed.Load())
	s.logger.Info().
		Int("candidates", result.Candidates).
		Int("sent", result.Sent).
		Int("failed", result.Failed).
		Msg("reminder tick complete")
	return result, nil
}

func (s *Scheduler) remind(ctx context.Context, c *Candidate) bool {
	log := s.logger.With().Int64("appointment_id", c.AppointmentID).Logger()

	data := map[string]string{
		"patient_name": c.PatientName,
		"doctor_name":  c.DoctorName,
		"service_name": c.ServiceName,
		"date":         s.clock.FormatDate(c.ScheduledAt),
		"time":         s.clock.FormatClock(c.ScheduledAt),
		"timezone":     s.clock.Location().String(),
	}
	r := notification.Recipient{Name: c.PatientName, Email: c.PatientEmail, Phone: c.PatientPhone}

	if err := s.send(ctx, notification.TemplateAppointmentReminder, data, r); err != nil {
		log.Error().Err(err).Msg("failed to send reminder, will retry next tick")
		return false
	}

	// The email is out: the flag update must not inherit the send deadline or
	// the tick's cancellation.
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
	marked, err := s.repo.MarkSent(markCtx, c.AppointmentID)
	cancel()
	if err != nil {
		log.Error().Err(err).Msg("reminder sent but flag not persisted")
		return false
	}
	if !marked {
		log.Debug().Msg("reminder flag already set by another tick")
	}

	if s.sender.SMSEnabled() && c.PatientPhone != "" {
		if err := s.send(ctx, notification.TemplateAppointmentReminderSMS, data, r); err != nil {
			log.Warn().Err(err).Msg("failed to send reminder sms")
		}
	}
	return true
}

func (s *Scheduler) send(ctx context.Context, templateID string, data map[string]string, r notification.Recipient) error {
	timeout := s.SendTimeout
	if timeout <= 0 {
		timeout = sendTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.sender.SendTemplate(ctx, templateID, data, r)
}
