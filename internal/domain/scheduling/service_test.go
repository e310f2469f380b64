package scheduling

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// -- Mock booking state store --

type mockStateStore struct {
	mu   sync.Mutex
	last map[uuid.UUID]time.Time
	sets int
}

func newMockStateStore() *mockStateStore {
	return &mockStateStore{last: make(map[uuid.UUID]time.Time)}
}

func (m *mockStateStore) LastCancellation(_ context.Context, patientID uuid.UUID) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.last[patientID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *mockStateStore) SetLastCancellation(_ context.Context, patientID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last[patientID] = at
	m.sets++
	return nil
}

// failingRepo fails the n-th Create call.
type failingRepo struct {
	AppointmentRepository
	failOn int
	calls  int
}

func (r *failingRepo) Create(ctx context.Context, a *Appointment) error {
	r.calls++
	if r.calls == r.failOn {
		return errors.New("disk full")
	}
	return r.AppointmentRepository.Create(ctx, a)
}

type fixture struct {
	store   *MemoryStore
	states  *mockStateStore
	svc     *Service
	doctor  *Doctor
	patient uuid.UUID
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   NewMemoryStore(),
		states:  newMockStateStore(),
		patient: uuid.New(),
		now:     testNow,
	}
	f.svc = NewService(f.store, f.store.Doctors(), f.states, f.store, DefaultPolicy(time.UTC), NewGate(DefaultCooldown))
	f.svc.SetClock(func() time.Time { return f.now })
	f.doctor = f.addDoctor(t, true)
	return f
}

func (f *fixture) addDoctor(t *testing.T, accepting bool) *Doctor {
	t.Helper()
	d := &Doctor{FirstName: "Anna", LastName: "Nowak", Specialization: "cardiology", AcceptingPatients: accepting}
	if err := f.svc.CreateDoctor(context.Background(), d); err != nil {
		t.Fatalf("create doctor: %v", err)
	}
	return d
}

func (f *fixture) request(start time.Time) BookingRequest {
	return BookingRequest{PatientID: f.patient, DoctorID: f.doctor.ID, StartTime: start, Reason: "annual checkup"}
}

func (f *fixture) book(t *testing.T, req BookingRequest) *BookingResult {
	t.Helper()
	res, err := f.svc.Book(context.Background(), req)
	if err != nil {
		t.Fatalf("book %s: %v", req.StartTime.Format(time.RFC3339), err)
	}
	return res
}

func TestService_BookSingle(t *testing.T) {
	f := newFixture(t)
	res := f.book(t, f.request(monday10))

	a := res.Appointment
	if a.ID == uuid.Nil || a.Status != StatusScheduled {
		t.Fatalf("unexpected appointment %+v", a)
	}
	if a.DurationMinutes != DefaultDurationMinutes {
		t.Errorf("expected default duration, got %d", a.DurationMinutes)
	}
	if a.IsRecurring || a.SeriesID != nil || res.Series != nil {
		t.Errorf("single booking must not form a series")
	}
	stored, err := f.svc.GetAppointment(context.Background(), a.ID)
	if err != nil || !stored.StartTime.Equal(monday10) {
		t.Errorf("expected stored appointment, got %v", err)
	}
}

func TestService_BookConflict(t *testing.T) {
	f := newFixture(t)
	f.book(t, f.request(monday10))

	other := f.request(monday10.Add(20 * time.Minute))
	other.PatientID = uuid.New()
	_, err := f.svc.Book(context.Background(), other)
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected slot conflict, got %v", err)
	}
	r, ok := AsRejection(err)
	if !ok || r.Kind != KindSlotConflict {
		t.Errorf("expected a slot_conflict rejection, got %v", err)
	}

	later := f.request(monday10.Add(time.Hour))
	later.PatientID = uuid.New()
	f.book(t, later)
}

func TestService_BookValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		mutate func(*BookingRequest)
		want   error
	}{
		{"missing reason", func(r *BookingRequest) { r.Reason = "   " }, ErrInvalidRequest},
		{"reason too long", func(r *BookingRequest) { r.Reason = strings.Repeat("a", MaxReasonLength+1) }, ErrInvalidRequest},
		{"missing patient", func(r *BookingRequest) { r.PatientID = uuid.Nil }, ErrInvalidRequest},
		{"missing start", func(r *BookingRequest) { r.StartTime = time.Time{} }, ErrInvalidRequest},
		{"unknown pattern", func(r *BookingRequest) { r.Pattern = "daily" }, ErrInvalidPattern},
		{"past", func(r *BookingRequest) { r.StartTime = testNow.Add(-time.Hour) }, ErrPastDate},
		{"too far", func(r *BookingRequest) { r.StartTime = testNow.AddDate(0, 7, 0) }, ErrTooFarFuture},
		{"evening", func(r *BookingRequest) { r.StartTime = monday10.Add(8 * time.Hour) }, ErrOutsideWorkingHours},
		{"saturday", func(r *BookingRequest) { r.StartTime = monday10.AddDate(0, 0, -2) }, ErrWeekend},
		{"recurring without end", func(r *BookingRequest) { r.Pattern = PatternWeekly }, ErrRecurrenceEndRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.request(monday10)
			tt.mutate(&req)
			if _, err := f.svc.Book(context.Background(), req); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, total, _ := f.svc.ListForDoctor(context.Background(), f.doctor.ID, false, 10, 0); total != 0 {
		t.Errorf("rejected bookings must not be stored, found %d", total)
	}
}

func TestService_BookReasonAtLimit(t *testing.T) {
	f := newFixture(t)
	req := f.request(monday10)
	req.Reason = strings.Repeat("ż", MaxReasonLength)
	f.book(t, req)
}

func TestService_BookDoctorChecks(t *testing.T) {
	f := newFixture(t)
	closed := f.addDoctor(t, false)

	req := f.request(monday10)
	req.DoctorID = closed.ID
	if _, err := f.svc.Book(context.Background(), req); !errors.Is(err, ErrDoctorUnavailable) {
		t.Errorf("expected doctor unavailable, got %v", err)
	}
	req.DoctorID = uuid.New()
	if _, err := f.svc.Book(context.Background(), req); !errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("expected doctor not found, got %v", err)
	}
}

func TestService_CooldownAfterCancel(t *testing.T) {
	f := newFixture(t)
	res := f.book(t, f.request(monday10))
	if _, err := f.svc.Cancel(context.Background(), res.Appointment.ID, false); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	f.now = testNow.Add(30 * time.Second)
	_, err := f.svc.Book(context.Background(), f.request(monday10))
	if !errors.Is(err, ErrCooldownActive) {
		t.Fatalf("expected cooldown, got %v", err)
	}
	r, _ := AsRejection(err)
	if r.RetryAfter != 90*time.Second {
		t.Errorf("expected 90s wait, got %s", r.RetryAfter)
	}
	if !strings.Contains(r.Message, "90 seconds") {
		t.Errorf("unexpected message %q", r.Message)
	}

	st, err := f.svc.BookingStatus(context.Background(), f.patient)
	if err != nil || st.CanBook {
		t.Errorf("expected booking status to be blocked, got %+v, %v", st, err)
	}

	// Other patients are unaffected.
	other := f.request(monday10.Add(2 * time.Hour))
	other.PatientID = uuid.New()
	f.book(t, other)

	f.now = testNow.Add(2 * time.Minute)
	f.book(t, f.request(monday10))
	if st, _ := f.svc.BookingStatus(context.Background(), f.patient); !st.CanBook || st.RetryAfter != 0 {
		t.Errorf("expected booking allowed, got %+v", st)
	}
}

func TestService_BookRecurringWeekly(t *testing.T) {
	f := newFixture(t)
	req := f.request(monday10)
	req.Pattern = PatternWeekly
	req.EndDate = date(2030, 1, 28)
	res := f.book(t, req)

	parent := res.Appointment
	if !parent.IsSeriesParent() || parent.SeriesID == nil || *parent.SeriesID != parent.ID {
		t.Fatalf("expected a series parent, got %+v", parent)
	}
	if res.Series == nil || len(res.Series.Created) != 3 || res.Series.Requested() != 3 {
		t.Fatalf("expected 3 members, got %+v", res.Series)
	}

	series, err := f.svc.Series(context.Background(), res.Series.Created[1].ID)
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	if len(series) != 4 || series[0].ID != parent.ID {
		t.Errorf("expected parent plus 3 members in order, got %d", len(series))
	}
}

func TestService_BookRecurringInvalidEnd(t *testing.T) {
	f := newFixture(t)
	req := f.request(monday10)
	req.Pattern = PatternMonthly
	req.EndDate = date(2030, 1, 6)
	if _, err := f.svc.Book(context.Background(), req); !errors.Is(err, ErrRecurrenceEndBeforeStart) {
		t.Fatalf("expected end before start, got %v", err)
	}
	req.EndDate = date(2030, 12, 31)
	if _, err := f.svc.Book(context.Background(), req); !errors.Is(err, ErrRecurrenceEndTooFar) {
		t.Fatalf("expected end too far, got %v", err)
	}
	if _, total, _ := f.svc.ListForDoctor(context.Background(), f.doctor.ID, false, 10, 0); total != 0 {
		t.Errorf("expected nothing stored, got %d", total)
	}
}

func TestService_BookSeriesIsAtomic(t *testing.T) {
	f := newFixture(t)
	repo := &failingRepo{AppointmentRepository: f.store, failOn: 3}
	svc := NewService(repo, f.store.Doctors(), f.states, f.store, DefaultPolicy(time.UTC), NewGate(DefaultCooldown))
	svc.SetClock(func() time.Time { return testNow })

	req := f.request(monday10)
	req.Pattern = PatternWeekly
	req.EndDate = date(2030, 1, 28)
	_, err := svc.Book(context.Background(), req)
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := AsRejection(err); ok {
		t.Errorf("storage failure must not be a rejection: %v", err)
	}
	if _, total, _ := f.store.ListByDoctor(context.Background(), f.doctor.ID, DoctorFilter{}, 10, 0); total != 0 {
		t.Errorf("expected the whole series to roll back, found %d", total)
	}
}

func TestService_ConcurrentBookingsSameSlot(t *testing.T) {
	f := newFixture(t)
	const n = 10

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := f.request(monday10)
			req.PatientID = uuid.New()
			_, err := f.svc.Book(context.Background(), req)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrSlotConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != n-1 {
		t.Errorf("expected 1 success and %d conflicts, got %d/%d", n-1, ok, conflicts)
	}
}

func TestService_CancelSingle(t *testing.T) {
	f := newFixture(t)
	res := f.book(t, f.request(monday10))

	f.now = testNow.Add(time.Hour)
	cancelled, err := f.svc.Cancel(context.Background(), res.Appointment.ID, false)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(cancelled) != 1 || cancelled[0].Status != StatusCancelled || cancelled[0].CancelledAt == nil {
		t.Fatalf("unexpected result %+v", cancelled)
	}
	if got := f.states.last[f.patient]; !got.Equal(f.now) {
		t.Errorf("expected last cancellation %s, got %s", f.now, got)
	}

	// The freed slot can be booked by someone else straight away.
	other := f.request(monday10)
	other.PatientID = uuid.New()
	f.book(t, other)
}

func TestService_CancelRejections(t *testing.T) {
	f := newFixture(t)
	res := f.book(t, f.request(monday10))

	if _, err := f.svc.Cancel(context.Background(), uuid.New(), false); !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := f.svc.Cancel(context.Background(), res.Appointment.ID, false); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.svc.Cancel(context.Background(), res.Appointment.ID, false); !errors.Is(err, ErrNotCancellable) {
		t.Errorf("expected a cancelled appointment to be not cancellable, got %v", err)
	}

	past := seedAppointment(t, f.store, f.doctor.ID, testNow.Add(-24*time.Hour), StatusScheduled)
	if _, err := f.svc.Cancel(context.Background(), past.ID, false); !errors.Is(err, ErrNotCancellable) {
		t.Errorf("expected a past appointment to be not cancellable, got %v", err)
	}
	if f.states.sets != 1 {
		t.Errorf("expected one cancellation recorded, got %d", f.states.sets)
	}
}

func TestService_CancelSeriesCascade(t *testing.T) {
	f := newFixture(t)
	req := f.request(monday10)
	req.Pattern = PatternWeekly
	req.EndDate = date(2030, 2, 4)
	res := f.book(t, req)
	members := res.Series.Created // Jan 14, 21, 28, Feb 4

	if _, err := f.svc.RecordOutcome(context.Background(), members[2].ID, StatusCompleted, nil); err != nil {
		t.Fatalf("record outcome: %v", err)
	}

	// Parent and first member are in the past by now.
	f.now = time.Date(2030, 1, 15, 9, 0, 0, 0, time.UTC)
	cancelled, err := f.svc.Cancel(context.Background(), members[1].ID, true)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(cancelled) != 2 {
		t.Fatalf("expected 2 cancelled, got %d", len(cancelled))
	}
	if cancelled[0].ID != members[1].ID || cancelled[1].ID != members[3].ID {
		t.Errorf("unexpected cancelled members")
	}

	series, _ := f.svc.Series(context.Background(), res.Appointment.ID)
	want := []Status{StatusScheduled, StatusScheduled, StatusCancelled, StatusCompleted, StatusCancelled}
	for i, a := range series {
		if a.Status != want[i] {
			t.Errorf("series[%d]: expected %s, got %s", i, want[i], a.Status)
		}
	}
	if f.states.sets != 1 {
		t.Errorf("expected one cancellation recorded, got %d", f.states.sets)
	}
}

func TestService_CancelMemberOnly(t *testing.T) {
	f := newFixture(t)
	req := f.request(monday10)
	req.Pattern = PatternBiweekly
	req.EndDate = date(2030, 2, 4)
	res := f.book(t, req)

	cancelled, err := f.svc.Cancel(context.Background(), res.Series.Created[0].ID, false)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(cancelled) != 1 {
		t.Errorf("expected only the member to be cancelled, got %d", len(cancelled))
	}
}

func TestService_Reschedule(t *testing.T) {
	f := newFixture(t)
	mine := f.book(t, f.request(monday10)).Appointment
	other := f.request(monday10.Add(2 * time.Hour))
	other.PatientID = uuid.New()
	f.book(t, other)

	moved, err := f.svc.Reschedule(context.Background(), mine.ID, RescheduleRequest{StartTime: monday10.Add(15 * time.Minute)})
	if err != nil {
		t.Fatalf("moving within its own block must succeed: %v", err)
	}
	if !moved.StartTime.Equal(monday10.Add(15 * time.Minute)) {
		t.Errorf("unexpected start %s", moved.StartTime)
	}

	if _, err := f.svc.Reschedule(context.Background(), mine.ID, RescheduleRequest{StartTime: monday10.Add(90 * time.Minute)}); !errors.Is(err, ErrSlotConflict) {
		t.Errorf("expected slot conflict, got %v", err)
	}
	if _, err := f.svc.Reschedule(context.Background(), mine.ID, RescheduleRequest{StartTime: monday10.AddDate(0, 0, -2)}); !errors.Is(err, ErrWeekend) {
		t.Errorf("expected weekend, got %v", err)
	}

	reason := "follow-up"
	updated, err := f.svc.Reschedule(context.Background(), mine.ID, RescheduleRequest{Reason: &reason})
	if err != nil || updated.Reason != reason {
		t.Errorf("expected reason update, got %v", err)
	}

	if _, err := f.svc.Cancel(context.Background(), mine.ID, false); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.svc.Reschedule(context.Background(), mine.ID, RescheduleRequest{StartTime: monday10.AddDate(0, 0, 1)}); !errors.Is(err, ErrNotEditable) {
		t.Errorf("expected not editable, got %v", err)
	}
}

func TestService_RescheduleToAnotherDoctor(t *testing.T) {
	f := newFixture(t)
	mine := f.book(t, f.request(monday10)).Appointment
	second := f.addDoctor(t, true)

	moved, err := f.svc.Reschedule(context.Background(), mine.ID, RescheduleRequest{DoctorID: &second.ID})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if moved.DoctorID != second.ID {
		t.Errorf("expected doctor %s, got %s", second.ID, moved.DoctorID)
	}
	slots, _ := f.svc.AvailableSlots(context.Background(), f.doctor.ID, monday10)
	for _, s := range slots {
		if !s.Available {
			t.Errorf("expected the first doctor to be free at %s", s.Time)
		}
	}
}

func TestService_RecordOutcome(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, f.request(monday10)).Appointment

	if _, err := f.svc.RecordOutcome(context.Background(), a.ID, StatusCancelled, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected invalid transition, got %v", err)
	}
	notes := "patient did not arrive"
	got, err := f.svc.RecordOutcome(context.Background(), a.ID, StatusNoShow, &notes)
	if err != nil {
		t.Fatalf("record outcome: %v", err)
	}
	if got.Status != StatusNoShow || got.Notes == nil || *got.Notes != notes {
		t.Errorf("unexpected appointment %+v", got)
	}
	if _, err := f.svc.RecordOutcome(context.Background(), a.ID, StatusCompleted, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected terminal state to stay, got %v", err)
	}

	// A no-show frees the doctor's slot.
	if err := f.svc.CheckSlot(context.Background(), f.doctor.ID, monday10, nil); err != nil {
		t.Errorf("expected slot to be free, got %v", err)
	}
}

func TestService_ListForPatient(t *testing.T) {
	f := newFixture(t)
	f.book(t, f.request(monday10))
	f.book(t, f.request(monday10.AddDate(0, 0, 1)))
	seedPast := &Appointment{DoctorID: f.doctor.ID, PatientID: f.patient, StartTime: testNow.AddDate(0, 0, -7), Status: StatusCompleted}
	if err := f.store.Create(context.Background(), seedPast); err != nil {
		t.Fatalf("seed: %v", err)
	}

	items, total, err := f.svc.ListForPatient(context.Background(), f.patient, true, 10, 0)
	if err != nil || total != 2 || !items[0].StartTime.Equal(monday10) {
		t.Errorf("expected 2 upcoming starting Monday, got %d (%v)", total, err)
	}
	_, total, _ = f.svc.ListForPatient(context.Background(), f.patient, false, 10, 0)
	if total != 3 {
		t.Errorf("expected 3 in history, got %d", total)
	}
}

func TestService_CheckSlotAndAvailability(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.CheckSlot(context.Background(), uuid.New(), monday10, nil); !errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("expected doctor not found, got %v", err)
	}
	if _, err := f.svc.AvailableSlots(context.Background(), uuid.New(), monday10); !errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("expected doctor not found, got %v", err)
	}

	a := f.book(t, f.request(monday10)).Appointment
	if err := f.svc.CheckSlot(context.Background(), f.doctor.ID, monday10.Add(30*time.Minute), nil); !errors.Is(err, ErrSlotConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
	if err := f.svc.CheckSlot(context.Background(), f.doctor.ID, monday10.Add(30*time.Minute), &a.ID); err != nil {
		t.Errorf("expected no conflict when excluding the booking, got %v", err)
	}
}

func TestService_CreateDoctorValidation(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.CreateDoctor(context.Background(), &Doctor{FirstName: " "}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("expected invalid request, got %v", err)
	}
	docs, total, _ := f.svc.ListDoctors(context.Background(), true, 10, 0)
	if total != 1 || docs[0].ID != f.doctor.ID {
		t.Errorf("expected the fixture doctor, got %d", total)
	}
}

func TestService_RescheduleRerunsCalendarChecks(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, f.request(monday10)).Appointment

	far := monday10.AddDate(0, 0, 182)
	if _, err := f.svc.Reschedule(context.Background(), a.ID, RescheduleRequest{StartTime: far}); !errors.Is(err, ErrTooFarFuture) {
		t.Errorf("expected too far future, got %v", err)
	}

	// Once the visit has started, even a reason-only edit is refused.
	f.now = monday10.Add(2 * time.Hour)
	reason := "changed my mind"
	if _, err := f.svc.Reschedule(context.Background(), a.ID, RescheduleRequest{Reason: &reason}); !errors.Is(err, ErrPastDate) {
		t.Fatalf("expected past date, got %v", err)
	}
	got, _ := f.svc.GetAppointment(context.Background(), a.ID)
	if got.Reason != "annual checkup" {
		t.Errorf("expected the reason to stay, got %q", got.Reason)
	}
}

// lockingRepo records whether appointments were read with a row lock
// inside a transaction.
type lockingRepo struct {
	AppointmentRepository
	mu       sync.Mutex
	locked   []uuid.UUID
	unlocked int
}

func (r *lockingRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	if inTx(ctx) {
		r.locked = append(r.locked, id)
	} else {
		r.unlocked++
	}
	r.mu.Unlock()
	return r.AppointmentRepository.GetForUpdate(ctx, id)
}

func TestService_MutationsLockTheRow(t *testing.T) {
	f := newFixture(t)
	repo := &lockingRepo{AppointmentRepository: f.store}
	svc := NewService(repo, f.store.Doctors(), f.states, f.store, DefaultPolicy(time.UTC), NewGate(DefaultCooldown))
	svc.SetClock(func() time.Time { return testNow })

	first := f.book(t, f.request(monday10)).Appointment
	second := f.request(monday10.Add(3 * time.Hour))
	second.PatientID = uuid.New()
	other := f.book(t, second).Appointment

	reason := "follow-up"
	if _, err := svc.Reschedule(context.Background(), first.ID, RescheduleRequest{Reason: &reason}); err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if _, err := svc.RecordOutcome(context.Background(), other.ID, StatusCompleted, nil); err != nil {
		t.Fatalf("record outcome: %v", err)
	}
	if _, err := svc.Cancel(context.Background(), first.ID, false); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	want := []uuid.UUID{first.ID, other.ID, first.ID}
	if repo.unlocked != 0 || len(repo.locked) != len(want) {
		t.Fatalf("expected %d locked reads and none outside a transaction, got %v (%d unlocked)", len(want), repo.locked, repo.unlocked)
	}
	for i, id := range want {
		if repo.locked[i] != id {
			t.Errorf("read %d: expected %s, got %s", i, id, repo.locked[i])
		}
	}
}

func TestService_OutcomeRacingCancel(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		a := f.book(t, f.request(monday10)).Appointment

		var wg sync.WaitGroup
		var outcomeErr, cancelErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, outcomeErr = f.svc.RecordOutcome(context.Background(), a.ID, StatusCompleted, nil)
		}()
		go func() {
			defer wg.Done()
			_, cancelErr = f.svc.Cancel(context.Background(), a.ID, false)
		}()
		wg.Wait()

		got, _ := f.svc.GetAppointment(context.Background(), a.ID)
		switch {
		case outcomeErr == nil && cancelErr == nil:
			t.Fatalf("both writers succeeded, final status %s", got.Status)
		case outcomeErr == nil && got.Status != StatusCompleted:
			t.Fatalf("outcome won but status is %s", got.Status)
		case cancelErr == nil && got.Status != StatusCancelled:
			t.Fatalf("cancel won but status is %s", got.Status)
		case outcomeErr != nil && cancelErr != nil:
			t.Fatalf("expected one writer to win: %v, %v", outcomeErr, cancelErr)
		}
	}
}

func TestService_ListForDoctorUpcoming(t *testing.T) {
	f := newFixture(t)
	f.book(t, f.request(monday10))
	f.book(t, f.request(monday10.AddDate(0, 0, 14)))
	past := &Appointment{DoctorID: f.doctor.ID, PatientID: uuid.New(), StartTime: testNow.AddDate(0, 0, -7), Status: StatusScheduled}
	if err := f.store.Create(context.Background(), past); err != nil {
		t.Fatalf("seed: %v", err)
	}

	all, total, _ := f.svc.ListForDoctor(context.Background(), f.doctor.ID, false, 10, 0)
	if total != 3 || !all[0].StartTime.Equal(past.StartTime) {
		t.Errorf("expected the full list soonest first, got %d", total)
	}

	upcoming, total, _ := f.svc.ListForDoctor(context.Background(), f.doctor.ID, true, 10, 0)
	if total != 1 || !upcoming[0].StartTime.Equal(monday10) {
		t.Errorf("expected only this week's visit, got %d", total)
	}
}
