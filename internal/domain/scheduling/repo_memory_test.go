package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryStore_OverlapBackstop(t *testing.T) {
	store := NewMemoryStore()
	doctorID := uuid.New()
	seedAppointment(t, store, doctorID, monday10, StatusScheduled)

	clash := &Appointment{DoctorID: doctorID, PatientID: uuid.New(), StartTime: monday10.Add(30 * time.Minute), Status: StatusScheduled}
	if err := store.Create(context.Background(), clash); !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected slot conflict, got %v", err)
	}

	clash.Status = StatusCancelled
	if err := store.Create(context.Background(), clash); err != nil {
		t.Fatalf("cancelled rows must not conflict: %v", err)
	}
	clash.Status = StatusScheduled
	if err := store.Update(context.Background(), clash); !errors.Is(err, ErrSlotConflict) {
		t.Errorf("expected reactivation to conflict, got %v", err)
	}
}

func TestMemoryStore_UpdateUnknown(t *testing.T) {
	store := NewMemoryStore()
	err := store.Update(context.Background(), &Appointment{ID: uuid.New(), StartTime: monday10})
	if !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := store.GetByID(context.Background(), uuid.New()); !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	a := seedAppointment(t, store, uuid.New(), monday10, StatusScheduled)

	got, _ := store.GetByID(context.Background(), a.ID)
	got.Status = StatusCancelled
	again, _ := store.GetByID(context.Background(), a.ID)
	if again.Status != StatusScheduled {
		t.Errorf("mutating a returned value changed the store")
	}
}

func TestMemoryStore_WithinTxRollback(t *testing.T) {
	store := NewMemoryStore()
	doctorID := uuid.New()
	kept := seedAppointment(t, store, doctorID, monday10, StatusScheduled)

	boom := errors.New("boom")
	err := store.WithinTx(context.Background(), func(ctx context.Context) error {
		a := &Appointment{DoctorID: doctorID, PatientID: uuid.New(), StartTime: monday10.Add(2 * time.Hour), Status: StatusScheduled}
		if err := store.Create(ctx, a); err != nil {
			return err
		}
		k, _ := store.GetByID(ctx, kept.ID)
		k.Status = StatusCancelled
		if err := store.Update(ctx, k); err != nil {
			return err
		}
		return store.WithinTx(ctx, func(context.Context) error { return boom })
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	items, total, _ := store.ListByDoctor(context.Background(), doctorID, DoctorFilter{}, 10, 0)
	if total != 1 || items[0].ID != kept.ID || items[0].Status != StatusScheduled {
		t.Errorf("expected the store to be restored, got %d rows", total)
	}
}

func TestMemoryStore_ListByPatient(t *testing.T) {
	store := NewMemoryStore()
	patientID := uuid.New()
	starts := []time.Time{
		time.Date(2029, 12, 20, 10, 0, 0, 0, time.UTC),
		time.Date(2030, 1, 14, 10, 0, 0, 0, time.UTC),
		monday10,
	}
	for _, s := range starts {
		a := &Appointment{DoctorID: uuid.New(), PatientID: patientID, StartTime: s, Status: StatusScheduled}
		if err := store.Create(context.Background(), a); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	cancelled := &Appointment{DoctorID: uuid.New(), PatientID: patientID, StartTime: monday10.Add(time.Hour), Status: StatusCancelled}
	_ = store.Create(context.Background(), cancelled)

	all, total, _ := store.ListByPatient(context.Background(), patientID, PatientFilter{}, 10, 0)
	if total != 4 {
		t.Fatalf("expected 4 appointments, got %d", total)
	}
	if !all[0].StartTime.After(all[1].StartTime) {
		t.Errorf("expected history newest first")
	}

	from := testNow
	upcoming, total, _ := store.ListByPatient(context.Background(), patientID, PatientFilter{UpcomingFrom: &from}, 10, 0)
	if total != 2 {
		t.Fatalf("expected 2 upcoming, got %d", total)
	}
	if !upcoming[0].StartTime.Equal(monday10) {
		t.Errorf("expected upcoming soonest first, got %s", upcoming[0].StartTime)
	}

	paged, total, _ := store.ListByPatient(context.Background(), patientID, PatientFilter{}, 1, 3)
	if total != 4 || len(paged) != 1 {
		t.Errorf("expected one row on the last page, got %d of %d", len(paged), total)
	}
}

func TestMemoryStore_Doctors(t *testing.T) {
	docs := NewMemoryStore().Doctors()
	ctx := context.Background()
	for _, d := range []*Doctor{
		{FirstName: "Piotr", LastName: "Zieliński", AcceptingPatients: true},
		{FirstName: "Anna", LastName: "Nowak", AcceptingPatients: true},
		{FirstName: "Jan", LastName: "Kowalski", AcceptingPatients: false},
	} {
		if err := docs.Create(ctx, d); err != nil {
			t.Fatalf("create doctor: %v", err)
		}
	}

	all, total, _ := docs.List(ctx, false, 10, 0)
	if total != 3 || all[0].LastName != "Kowalski" || all[2].LastName != "Zieliński" {
		t.Errorf("unexpected order: %+v", all)
	}
	accepting, total, _ := docs.List(ctx, true, 10, 0)
	if total != 2 || len(accepting) != 2 {
		t.Errorf("expected 2 accepting doctors, got %d", total)
	}
	if _, err := docs.GetByID(ctx, uuid.New()); !errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("expected doctor not found, got %v", err)
	}
}

func TestMemoryStore_RollbackKeepsWritesFromOutside(t *testing.T) {
	store := NewMemoryStore()
	doctorID := uuid.New()
	other := seedAppointment(t, store, doctorID, monday10, StatusScheduled)

	done := make(chan error, 1)
	boom := errors.New("boom")
	err := store.WithinTx(context.Background(), func(ctx context.Context) error {
		a := &Appointment{DoctorID: doctorID, PatientID: uuid.New(), StartTime: monday10.Add(2 * time.Hour), Status: StatusScheduled}
		if err := store.Create(ctx, a); err != nil {
			return err
		}
		go func() {
			o, err := store.GetByID(context.Background(), other.ID)
			if err != nil {
				done <- err
				return
			}
			o.Status = StatusCompleted
			done <- store.Update(context.Background(), o)
		}()
		time.Sleep(20 * time.Millisecond)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("outside update: %v", err)
	}

	got, _ := store.GetByID(context.Background(), other.ID)
	if got.Status != StatusCompleted {
		t.Errorf("expected the outside write to survive the rollback, got %s", got.Status)
	}
	if _, total, _ := store.ListByDoctor(context.Background(), doctorID, DoctorFilter{}, 10, 0); total != 1 {
		t.Errorf("expected the transaction's own insert to be rolled back, got %d rows", total)
	}
}

func TestMemoryStore_ListByDoctorWindow(t *testing.T) {
	store := NewMemoryStore()
	doctorID := uuid.New()
	in := seedAppointment(t, store, doctorID, monday10, StatusScheduled)
	seedAppointment(t, store, doctorID, monday10.Add(2*time.Hour), StatusCancelled)
	seedAppointment(t, store, doctorID, monday10.AddDate(0, 0, 7), StatusScheduled)
	seedAppointment(t, store, doctorID, monday10.AddDate(0, 0, -7), StatusScheduled)

	from, until := monday10.Add(-time.Hour), monday10.AddDate(0, 0, 7)
	items, total, _ := store.ListByDoctor(context.Background(), doctorID, DoctorFilter{From: &from, Until: &until}, 10, 0)
	if total != 1 || items[0].ID != in.ID {
		t.Errorf("expected one scheduled appointment inside the window, got %d", total)
	}

	open, total, _ := store.ListByDoctor(context.Background(), doctorID, DoctorFilter{From: &from}, 10, 0)
	if total != 2 || !open[1].StartTime.Equal(monday10.AddDate(0, 0, 7)) {
		t.Errorf("expected an open-ended window to include next week, got %d", total)
	}
}
