package scheduling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/calendar"
	"github.com/clinic/clinic/internal/platform/events"
)

type mockUser struct {
	first, last, email string
}

// memStore is an in-memory stand-in for the clinic tables. mu guards the
// maps; txMu serializes transactions the way the slot lock does in Postgres.
type memStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	users        map[int64]mockUser
	doctors      map[int64]*Doctor
	services     map[int64]*MedicalService
	patients     map[int64]*Patient // by user id
	appointments map[int64]*Appointment
	history      map[int64]string // by appointment id

	nextPatientID int64
	nextApptID    int64

	historyErr  error
	lockedSlots []time.Time
}

func newMemStore() *memStore {
	return &memStore{
		users:        make(map[int64]mockUser),
		doctors:      make(map[int64]*Doctor),
		services:     make(map[int64]*MedicalService),
		patients:     make(map[int64]*Patient),
		appointments: make(map[int64]*Appointment),
		history:      make(map[int64]string),
	}
}

// seed adds user 1 (patient-to-be), doctor 10 (user 2) and service 20.
func (s *memStore) seed() {
	s.users[1] = mockUser{"Ana", "Ruiz", "ana@example.com"}
	s.users[2] = mockUser{"Luis", "Mora", "luis@example.com"}
	s.users[3] = mockUser{"Eva", "Diaz", "eva@example.com"}
	s.services[20] = &MedicalService{ID: 20, Name: "General medicine", Price: "50000.00"}
	s.doctors[10] = &Doctor{ID: 10, UserID: 2, ServiceID: 20, FirstName: "Luis", LastName: "Mora"}
}

type storeSnapshot struct {
	patients      map[int64]Patient
	appointments  map[int64]Appointment
	history       map[int64]string
	nextPatientID int64
	nextApptID    int64
}

func (s *memStore) snapshot() storeSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := storeSnapshot{
		patients:      make(map[int64]Patient, len(s.patients)),
		appointments:  make(map[int64]Appointment, len(s.appointments)),
		history:       make(map[int64]string, len(s.history)),
		nextPatientID: s.nextPatientID,
		nextApptID:    s.nextApptID,
	}
	for k, v := range s.patients {
		snap.patients[k] = *v
	}
	for k, v := range s.appointments {
		snap.appointments[k] = *v
	}
	for k, v := range s.history {
		snap.history[k] = v
	}
	return snap
}

func (s *memStore) restore(snap storeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients = make(map[int64]*Patient, len(snap.patients))
	for k, v := range snap.patients {
		p := v
		s.patients[k] = &p
	}
	s.appointments = make(map[int64]*Appointment, len(snap.appointments))
	for k, v := range snap.appointments {
		a := v
		s.appointments[k] = &a
	}
	s.history = snap.history
	s.nextPatientID = snap.nextPatientID
	s.nextApptID = snap.nextApptID
}

// activeAt counts active appointments of doctorID starting at at.
func (s *memStore) activeAt(doctorID int64, at time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.appointments {
		if a.DoctorID == doctorID && a.ScheduledAt.Equal(at) && a.Status.Active() {
			n++
		}
	}
	return n
}

func (s *memStore) appointment(id int64) Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.appointments[id]
}

func (s *memStore) diagnosis(id int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history[id]
}

// -- Transactor --

type mockTransactor struct {
	store *memStore
	calls int
}

func (t *mockTransactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.store.txMu.Lock()
	defer t.store.txMu.Unlock()
	t.calls++

	snap := t.store.snapshot()
	if err := fn(ctx); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

// -- Repositories --

type mockDoctorRepo struct {
	store *memStore
	gets  int
}

func (r *mockDoctorRepo) GetByID(_ context.Context, id int64) (*Doctor, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.gets++
	d, ok := r.store.doctors[id]
	if !ok {
		return nil, fmt.Errorf("doctor %d: %w", id, ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

func (r *mockDoctorRepo) ListByService(_ context.Context, serviceID int64) ([]*Doctor, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*Doctor
	for _, d := range r.store.doctors {
		if d.ServiceID == serviceID {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type mockServiceRepo struct {
	store *memStore
	gets  int
}

func (r *mockServiceRepo) GetByID(_ context.Context, id int64) (*MedicalService, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.gets++
	s, ok := r.store.services[id]
	if !ok {
		return nil, fmt.Errorf("service %d: %w", id, ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (r *mockServiceRepo) List(_ context.Context) ([]*MedicalService, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*MedicalService
	for _, s := range r.store.services {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type mockPatientRepo struct{ store *memStore }

func (r *mockPatientRepo) GetByUserID(_ context.Context, userID int64) (*Patient, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.patients[userID]
	if !ok {
		return nil, fmt.Errorf("patient for user %d: %w", userID, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (r *mockPatientRepo) Create(_ context.Context, userID int64) (*Patient, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	u, ok := r.store.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	if p, ok := r.store.patients[userID]; ok {
		cp := *p
		return &cp, nil
	}
	r.store.nextPatientID++
	p := &Patient{ID: r.store.nextPatientID, UserID: userID, FirstName: u.first, LastName: u.last, Email: u.email}
	r.store.patients[userID] = p
	cp := *p
	return &cp, nil
}

type mockAppointmentRepo struct{ store *memStore }

func (r *mockAppointmentRepo) LockSlot(_ context.Context, _ int64, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.lockedSlots = append(r.store.lockedSlots, at)
	return nil
}

func (r *mockAppointmentRepo) SlotTaken(_ context.Context, doctorID int64, at time.Time, excludeID int64) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, a := range r.store.appointments {
		inHour := !a.ScheduledAt.Before(at) && a.ScheduledAt.Before(at.Add(time.Hour))
		if a.ID != excludeID && a.DoctorID == doctorID && inHour && a.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (r *mockAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, other := range r.store.appointments {
		if other.DoctorID == a.DoctorID && other.ScheduledAt.Equal(a.ScheduledAt) && other.Status.Active() {
			return ErrSlotTaken
		}
	}
	r.store.nextApptID++
	a.ID = r.store.nextApptID
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	r.store.appointments[a.ID] = &cp
	return nil
}

func (r *mockAppointmentRepo) GetForUpdate(_ context.Context, id int64) (*Appointment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	a, ok := r.store.appointments[id]
	if !ok {
		return nil, fmt.Errorf("appointment %d: %w", id, ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (r *mockAppointmentRepo) Reschedule(_ context.Context, id int64, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	a, ok := r.store.appointments[id]
	if !ok {
		return ErrNotFound
	}
	a.ScheduledAt = at
	a.ReminderSent = false
	return nil
}

func (r *mockAppointmentRepo) UpdateStatus(_ context.Context, id int64, status Status) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	a, ok := r.store.appointments[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	return nil
}

func (r *mockAppointmentRepo) ActiveByDoctorFrom(_ context.Context, doctorID int64, from time.Time) ([]*Appointment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*Appointment
	for _, a := range r.store.appointments {
		if a.DoctorID == doctorID && a.Status.Active() && !a.ScheduledAt.Before(from) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *mockAppointmentRepo) ListByPatient(_ context.Context, patientID int64, limit, offset int) ([]*AppointmentSummary, int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var all []*AppointmentSummary
	for _, a := range r.store.appointments {
		if a.PatientID != patientID {
			continue
		}
		sum := &AppointmentSummary{Appointment: *a, StatusName: a.Status.String()}
		if d, ok := r.store.doctors[a.DoctorID]; ok {
			sum.DoctorName = d.Name()
		}
		if s, ok := r.store.services[a.ServiceID]; ok {
			sum.ServiceName = s.Name
		}
		all = append(all, sum)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ScheduledAt.After(all[j].ScheduledAt) })
	total := len(all)
	if offset >= total {
		return []*AppointmentSummary{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

type mockHistoryRepo struct{ store *memStore }

func (r *mockHistoryRepo) Create(_ context.Context, appointmentID int64, diagnosis string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.historyErr != nil {
		return r.store.historyErr
	}
	r.store.history[appointmentID] = diagnosis
	return nil
}

func (r *mockHistoryRepo) SetDiagnosis(_ context.Context, appointmentID int64, diagnosis string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.historyErr != nil {
		return r.store.historyErr
	}
	r.store.history[appointmentID] = diagnosis
	return nil
}

// -- Side effects --

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingNotifier struct {
	mu            sync.Mutex
	confirmations []*Confirmation
}

func (n *recordingNotifier) AppointmentBooked(_ context.Context, c *Confirmation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmations = append(n.confirmations, c)
}

// -- Fixture --

type fixture struct {
	svc       *Service
	store     *memStore
	tx        *mockTransactor
	doctors   *mockDoctorRepo
	services  *mockServiceRepo
	publisher *recordingPublisher
	notifier  *recordingNotifier
	now       time.Time
}

// testNow is Friday 2024-06-07 10:30 UTC.
var testNow = time.Date(2024, 6, 7, 10, 30, 0, 0, time.UTC)

func newFixture() *fixture {
	return newFixtureAt(testNow)
}

func newFixtureAt(now time.Time) *fixture {
	store := newMemStore()
	store.seed()
	f := &fixture{
		store:     store,
		tx:        &mockTransactor{store: store},
		doctors:   &mockDoctorRepo{store: store},
		services:  &mockServiceRepo{store: store},
		publisher: &recordingPublisher{},
		notifier:  &recordingNotifier{},
		now:       now,
	}
	clock := calendar.NewClock(now.Location()).WithNow(func() time.Time { return now })
	f.svc = NewService(f.tx, Repositories{
		Doctors:      f.doctors,
		Services:     f.services,
		Patients:     &mockPatientRepo{store: store},
		Appointments: &mockAppointmentRepo{store: store},
		History:      &mockHistoryRepo{store: store},
	}, clock, zerolog.New(io.Discard))
	f.svc.SetPublisher(f.publisher)
	f.svc.SetNotifier(f.notifier)
	return f
}

// book creates an appointment for user 1 with doctor 10 at at.
func (f *fixture) book(at time.Time) (*Confirmation, error) {
	return f.svc.Book(context.Background(), BookingRequest{
		UserID:    1,
		DoctorID:  10,
		ServiceID: 20,
		Date:      at.Format(calendar.DateLayout),
		Time:      at.Format(calendar.ClockLayout),
	})
}

var errBoom = errors.New("boom")
