package allocator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/careflow/internal/capacity"
)

func newStore(t *testing.T, icu, ward int, doctors ...capacity.Doctor) *capacity.MemoryStore {
	t.Helper()
	pool, err := capacity.NewResourcePool(icu, ward)
	require.NoError(t, err)
	store := capacity.NewMemoryStore(pool)
	for _, d := range doctors {
		require.NoError(t, store.AddDoctor(context.Background(), d))
	}
	return store
}

func doctor(t *testing.T, id, department string, cap, current int) capacity.Doctor {
	t.Helper()
	d, err := capacity.NewDoctor(id, "Dr. "+id, department, cap, 15)
	require.NoError(t, err)
	d.CurrentAppointments = current
	return d
}

func TestDoctorAllocator(t *testing.T) {
	ctx := context.Background()

	t.Run("should pick least loaded doctor", func(t *testing.T) {
		store := newStore(t, 1, 1,
			doctor(t, "busy", "cardiology", 10, 8),
			doctor(t, "idle", "cardiology", 10, 2))

		alloc, err := NewDoctorAllocator(store, nil).Allocate(ctx, "cardiology")
		require.NoError(t, err)
		assert.Equal(t, "idle", alloc.DoctorID)
	})

	t.Run("should break ties by registration order", func(t *testing.T) {
		store := newStore(t, 1, 1,
			doctor(t, "first", "cardiology", 10, 3),
			doctor(t, "second", "cardiology", 10, 3))

		alloc, err := NewDoctorAllocator(store, nil).Allocate(ctx, "cardiology")
		require.NoError(t, err)
		assert.Equal(t, "first", alloc.DoctorID)
	})

	t.Run("should compare by ratio not count", func(t *testing.T) {
		// 4/20 = 0.2 beats 1/4 = 0.25 despite the higher count.
		store := newStore(t, 1, 1,
			doctor(t, "small", "cardiology", 4, 1),
			doctor(t, "large", "cardiology", 20, 4))

		alloc, err := NewDoctorAllocator(store, nil).Allocate(ctx, "cardiology")
		require.NoError(t, err)
		assert.Equal(t, "large", alloc.DoctorID)
	})

	t.Run("should skip full and unavailable doctors", func(t *testing.T) {
		store := newStore(t, 1, 1,
			doctor(t, "full", "cardiology", 3, 3),
			doctor(t, "away", "cardiology", 10, 0),
			doctor(t, "open", "cardiology", 10, 5))
		require.NoError(t, store.SetDoctorAvailability(ctx, "away", false))

		alloc, err := NewDoctorAllocator(store, nil).Allocate(ctx, "cardiology")
		require.NoError(t, err)
		assert.Equal(t, "open", alloc.DoctorID)
	})

	t.Run("should fail when department has no eligible doctor", func(t *testing.T) {
		store := newStore(t, 1, 1, doctor(t, "full", "cardiology", 2, 2))

		_, err := NewDoctorAllocator(store, nil).Allocate(ctx, "cardiology")
		assert.ErrorIs(t, err, ErrNoDoctorAvailable)

		_, err = NewDoctorAllocator(store, nil).Allocate(ctx, "neurology")
		assert.ErrorIs(t, err, ErrNoDoctorAvailable)
	})

	t.Run("should compute wait from post-increment count", func(t *testing.T) {
		store := newStore(t, 1, 1, doctor(t, "d1", "cardiology", 10, 2))

		alloc, err := NewDoctorAllocator(store, nil).Allocate(ctx, "cardiology")
		require.NoError(t, err)
		// 3 appointments after reservation, 15 minutes each.
		assert.Equal(t, 45, alloc.PredictedWaitMinutes)
		assert.InDelta(t, 30.0, alloc.WorkloadPercent, 0.001)
	})

	t.Run("should reserve atomically across sequential allocations", func(t *testing.T) {
		store := newStore(t, 1, 1, doctor(t, "d1", "cardiology", 2, 0))
		allocator := NewDoctorAllocator(store, nil)

		_, err := allocator.Allocate(ctx, "cardiology")
		require.NoError(t, err)
		_, err = allocator.Allocate(ctx, "cardiology")
		require.NoError(t, err)
		_, err = allocator.Allocate(ctx, "cardiology")
		assert.ErrorIs(t, err, ErrNoDoctorAvailable)
	})
}

func TestBedAllocator(t *testing.T) {
	ctx := context.Background()

	t.Run("should route emergencies to ICU", func(t *testing.T) {
		store := newStore(t, 2, 2)
		alloc, err := NewBedAllocator(store).Allocate(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, capacity.BedICU, alloc.Allocated)
		assert.Equal(t, 1, alloc.Pool.ICUOccupied)
	})

	t.Run("should route regular patients to ward", func(t *testing.T) {
		store := newStore(t, 2, 2)
		alloc, err := NewBedAllocator(store).Allocate(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, capacity.BedWard, alloc.Allocated)
		assert.Equal(t, 1, alloc.Pool.WardOccupied)
	})

	t.Run("should fail on exhausted class without fallback", func(t *testing.T) {
		store := newStore(t, 0, 5)
		_, err := NewBedAllocator(store).Allocate(ctx, 1)
		assert.ErrorIs(t, err, capacity.ErrResourceExhausted)

		// Ward untouched by the ICU rejection.
		pool, err := store.Pool(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, pool.WardOccupied)
	})

	t.Run("should render class-specific rejection reason", func(t *testing.T) {
		assert.Equal(t, "No ICU beds available", RejectionReason(capacity.BedICU))
		assert.Equal(t, "No ward beds available", RejectionReason(capacity.BedWard))
	})
}
