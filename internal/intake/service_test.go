package intake

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/careflow/internal/allocator"
	"github.com/terminal-bench/careflow/internal/appointments"
	"github.com/terminal-bench/careflow/internal/capacity"
)

type fakeRepo struct {
	mu        sync.Mutex
	appts     map[string]*appointments.Appointment
	order     []string
	createErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{appts: make(map[string]*appointments.Appointment)}
}

func (r *fakeRepo) Create(ctx context.Context, a *appointments.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	copied := *a
	r.appts[a.ID] = &copied
	r.order = append(r.order, a.ID)
	return nil
}

func (r *fakeRepo) ScheduledForDoctor(ctx context.Context, doctorID string) ([]*appointments.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*appointments.Appointment
	for _, id := range r.order {
		a := r.appts[id]
		if a.AssignedDoctorID == doctorID && a.Status == appointments.StatusScheduled && a.Emergency == 0 {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeRepo) Reschedule(ctx context.Context, id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return appointments.ErrAppointmentNotFound
	}
	a.Status = appointments.StatusRescheduled
	a.RescheduleReason = reason
	return nil
}

func (r *fakeRepo) get(id string) *appointments.Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.appts[id]
}

func newTestService(t *testing.T, repo *fakeRepo, icu, ward int, doctors ...capacity.Doctor) (*Service, *capacity.MemoryStore) {
	t.Helper()
	pool, err := capacity.NewResourcePool(icu, ward)
	require.NoError(t, err)
	store := capacity.NewMemoryStore(pool)
	for _, d := range doctors {
		require.NoError(t, store.AddDoctor(context.Background(), d))
	}
	service := NewService(Config{
		Doctors: allocator.NewDoctorAllocator(store, nil),
		Beds:    allocator.NewBedAllocator(store),
		Store:   store,
		Repo:    repo,
	})
	return service, store
}

func cardiologist(t *testing.T, id string, dailyCapacity int) capacity.Doctor {
	t.Helper()
	d, err := capacity.NewDoctor(id, "Dr. "+id, "cardiology", dailyCapacity, 15)
	require.NoError(t, err)
	return d
}

func TestSubmitScheduled(t *testing.T) {
	ctx := context.Background()

	t.Run("should schedule regular patient in ward", func(t *testing.T) {
		repo := newFakeRepo()
		service, store := newTestService(t, repo, 2, 2, cardiologist(t, "d1", 10))

		result, err := service.Submit(ctx, Request{
			PatientName: "Asha Rao",
			Age:         30,
			Symptoms:    "Headache",
			Department:  "cardiology",
		})
		require.NoError(t, err)
		require.Equal(t, StatusScheduled, result.Status)

		appt := result.Appointment
		require.NotNil(t, appt)
		assert.Equal(t, 1, appt.SeverityScore)
		assert.Equal(t, 0, appt.Emergency)
		assert.Equal(t, "d1", appt.AssignedDoctorID)
		assert.Equal(t, string(capacity.BedWard), appt.BedType)
		assert.Equal(t, 15, appt.PredictedWaitMinutes)
		assert.Equal(t, appointments.StatusScheduled, appt.Status)
		assert.NotNil(t, repo.get(appt.ID))

		d, err := store.GetDoctor(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, 1, d.CurrentAppointments)

		pool, err := store.Pool(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, pool.WardOccupied)
		assert.Equal(t, 0, pool.ICUOccupied)
	})

	t.Run("should schedule emergency patient in ICU", func(t *testing.T) {
		repo := newFakeRepo()
		service, store := newTestService(t, repo, 2, 2, cardiologist(t, "d1", 10))

		result, err := service.Submit(ctx, Request{
			PatientName: "Mohan Iyer",
			Age:         67,
			Symptoms:    "Chest pain and breathing difficulty",
			Department:  "cardiology",
		})
		require.NoError(t, err)
		require.Equal(t, StatusScheduled, result.Status)

		appt := result.Appointment
		assert.Equal(t, 10, appt.SeverityScore)
		assert.Equal(t, 1, appt.Emergency)
		assert.Equal(t, string(capacity.BedICU), appt.BedType)

		pool, err := store.Pool(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, pool.ICUOccupied)
	})

	t.Run("should reject invalid requests", func(t *testing.T) {
		repo := newFakeRepo()
		service, _ := newTestService(t, repo, 1, 1, cardiologist(t, "d1", 10))

		_, err := service.Submit(ctx, Request{PatientName: "", Age: 30, Department: "cardiology"})
		assert.ErrorIs(t, err, ErrInvalidRequest)

		_, err = service.Submit(ctx, Request{PatientName: "X", Age: 0, Department: "cardiology"})
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})
}

func TestSubmitRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("should reject when department has no doctor", func(t *testing.T) {
		repo := newFakeRepo()
		service, store := newTestService(t, repo, 2, 2, cardiologist(t, "d1", 10))

		result, err := service.Submit(ctx, Request{
			PatientName: "Asha Rao",
			Age:         30,
			Symptoms:    "Headache",
			Department:  "neurology",
		})
		require.NoError(t, err)
		assert.Equal(t, StatusRejected, result.Status)
		assert.Equal(t, "No doctor available in this department", result.Reason)
		assert.Nil(t, result.Appointment)

		// No bed consumed by the rejection.
		pool, err := store.Pool(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, pool.WardOccupied)
	})

	t.Run("should release doctor when beds are full", func(t *testing.T) {
		repo := newFakeRepo()
		service, store := newTestService(t, repo, 0, 2, cardiologist(t, "d1", 10))

		result, err := service.Submit(ctx, Request{
			PatientName: "Mohan Iyer",
			Age:         67,
			Symptoms:    "Chest pain and breathing difficulty",
			Department:  "cardiology",
		})
		require.NoError(t, err)
		assert.Equal(t, StatusRejected, result.Status)
		assert.Equal(t, "No ICU beds available", result.Reason)

		// The reserved doctor slot was rolled back.
		d, err := store.GetDoctor(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, 0, d.CurrentAppointments)
	})

	t.Run("should roll back both reservations on persistence failure", func(t *testing.T) {
		repo := newFakeRepo()
		repo.createErr = errors.New("db down")
		service, store := newTestService(t, repo, 2, 2, cardiologist(t, "d1", 10))

		_, err := service.Submit(ctx, Request{
			PatientName: "Asha Rao",
			Age:         30,
			Symptoms:    "Headache",
			Department:  "cardiology",
		})
		require.Error(t, err)

		d, err := store.GetDoctor(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, 0, d.CurrentAppointments)

		pool, err := store.Pool(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, pool.WardOccupied)
	})
}

func TestSubmitEmergencyRescheduling(t *testing.T) {
	ctx := context.Background()

	t.Run("should bump scheduled regular appointments for the same doctor", func(t *testing.T) {
		repo := newFakeRepo()
		service, _ := newTestService(t, repo, 2, 4, cardiologist(t, "d1", 10))

		regular, err := service.Submit(ctx, Request{
			PatientName: "Asha Rao",
			Age:         30,
			Symptoms:    "Headache",
			Department:  "cardiology",
		})
		require.NoError(t, err)
		require.Equal(t, StatusScheduled, regular.Status)

		emergency, err := service.Submit(ctx, Request{
			PatientName: "Mohan Iyer",
			Age:         67,
			Symptoms:    "Chest pain and breathing difficulty",
			Department:  "cardiology",
		})
		require.NoError(t, err)
		require.Equal(t, StatusScheduled, emergency.Status)

		require.Equal(t, []string{regular.Appointment.ID}, emergency.RescheduledIDs)

		bumped := repo.get(regular.Appointment.ID)
		assert.Equal(t, appointments.StatusRescheduled, bumped.Status)
		assert.Equal(t, "Emergency patient priority", bumped.RescheduleReason)

		// The emergency record itself stays scheduled.
		assert.Equal(t, appointments.StatusScheduled, repo.get(emergency.Appointment.ID).Status)
	})

	t.Run("should not bump emergency or already rescheduled appointments", func(t *testing.T) {
		repo := newFakeRepo()
		service, _ := newTestService(t, repo, 4, 4, cardiologist(t, "d1", 10))

		first, err := service.Submit(ctx, Request{
			PatientName: "P1",
			Age:         67,
			Symptoms:    "Chest pain and breathing difficulty",
			Department:  "cardiology",
		})
		require.NoError(t, err)
		require.Equal(t, 1, first.Appointment.Emergency)

		second, err := service.Submit(ctx, Request{
			PatientName: "P2",
			Age:         67,
			Symptoms:    "Chest pain and breathing difficulty",
			Department:  "cardiology",
		})
		require.NoError(t, err)
		assert.Empty(t, second.RescheduledIDs)
	})
}
