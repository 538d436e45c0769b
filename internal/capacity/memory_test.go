package capacity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedStore(t *testing.T, icu, ward int, doctors ...Doctor) *MemoryStore {
	t.Helper()
	pool, err := NewResourcePool(icu, ward)
	require.NoError(t, err)
	store := NewMemoryStore(pool)
	for _, d := range doctors {
		require.NoError(t, store.AddDoctor(context.Background(), d))
	}
	return store
}

func mustDoctor(t *testing.T, id, department string, capacity int) Doctor {
	t.Helper()
	d, err := NewDoctor(id, "Dr. "+id, department, capacity, 15)
	require.NoError(t, err)
	return d
}

func TestMemoryStoreDoctors(t *testing.T) {
	ctx := context.Background()

	t.Run("should reject duplicate registration", func(t *testing.T) {
		store := seedStore(t, 1, 1, mustDoctor(t, "d1", "cardiology", 5))
		err := store.AddDoctor(ctx, mustDoctor(t, "d1", "cardiology", 5))
		assert.Error(t, err)
	})

	t.Run("should list doctors in registration order", func(t *testing.T) {
		store := seedStore(t, 1, 1,
			mustDoctor(t, "d1", "cardiology", 5),
			mustDoctor(t, "d2", "neurology", 5),
			mustDoctor(t, "d3", "cardiology", 5))

		all, err := store.ListDoctors(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "d1", all[0].ID)
		assert.Equal(t, "d3", all[2].ID)
	})

	t.Run("should filter by department", func(t *testing.T) {
		store := seedStore(t, 1, 1,
			mustDoctor(t, "d1", "cardiology", 5),
			mustDoctor(t, "d2", "neurology", 5))

		cardio, err := store.ListDoctors(ctx, "cardiology")
		require.NoError(t, err)
		require.Len(t, cardio, 1)
		assert.Equal(t, "d1", cardio[0].ID)
	})

	t.Run("should return not found for unknown doctor", func(t *testing.T) {
		store := seedStore(t, 1, 1)
		_, err := store.GetDoctor(ctx, "ghost")
		assert.ErrorIs(t, err, ErrDoctorNotFound)
	})

	t.Run("should reserve until capacity then fail", func(t *testing.T) {
		store := seedStore(t, 1, 1, mustDoctor(t, "d1", "cardiology", 2))

		first, err := store.ReserveDoctor(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, 1, first.CurrentAppointments)

		second, err := store.ReserveDoctor(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, 2, second.CurrentAppointments)

		_, err = store.ReserveDoctor(ctx, "d1")
		assert.ErrorIs(t, err, ErrCapacityExceeded)
	})

	t.Run("should not reserve unavailable doctor", func(t *testing.T) {
		store := seedStore(t, 1, 1, mustDoctor(t, "d1", "cardiology", 5))
		require.NoError(t, store.SetDoctorAvailability(ctx, "d1", false))

		_, err := store.ReserveDoctor(ctx, "d1")
		assert.ErrorIs(t, err, ErrCapacityExceeded)
	})

	t.Run("should floor release at zero", func(t *testing.T) {
		store := seedStore(t, 1, 1, mustDoctor(t, "d1", "cardiology", 5))
		require.NoError(t, store.ReleaseDoctor(ctx, "d1"))

		d, err := store.GetDoctor(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, 0, d.CurrentAppointments)
	})
}

func TestMemoryStoreConcurrentReservations(t *testing.T) {
	ctx := context.Background()

	t.Run("should never exceed doctor capacity under contention", func(t *testing.T) {
		const dailyCapacity = 10
		const attempts = 100

		store := seedStore(t, 1, 1, mustDoctor(t, "d1", "cardiology", dailyCapacity))

		var wg sync.WaitGroup
		var mu sync.Mutex
		successes := 0

		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := store.ReserveDoctor(ctx, "d1"); err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
				} else if !errors.Is(err, ErrCapacityExceeded) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, dailyCapacity, successes)

		d, err := store.GetDoctor(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, dailyCapacity, d.CurrentAppointments)
	})

	t.Run("should never exceed bed totals under contention", func(t *testing.T) {
		const icuTotal = 5
		const attempts = 50

		store := seedStore(t, icuTotal, 0)

		var wg sync.WaitGroup
		var mu sync.Mutex
		successes := 0

		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := store.ReserveBed(ctx, BedICU); err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
				} else if !errors.Is(err, ErrResourceExhausted) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, icuTotal, successes)

		pool, err := store.Pool(ctx)
		require.NoError(t, err)
		assert.Equal(t, icuTotal, pool.ICUOccupied)
	})
}

func TestMemoryStoreBeds(t *testing.T) {
	ctx := context.Background()

	t.Run("should reserve independent classes", func(t *testing.T) {
		store := seedStore(t, 1, 1)

		_, err := store.ReserveBed(ctx, BedICU)
		require.NoError(t, err)

		// ICU full, ward still open.
		_, err = store.ReserveBed(ctx, BedICU)
		assert.ErrorIs(t, err, ErrResourceExhausted)

		pool, err := store.ReserveBed(ctx, BedWard)
		require.NoError(t, err)
		assert.Equal(t, 1, pool.WardOccupied)
	})

	t.Run("should reject reservation when class has zero beds", func(t *testing.T) {
		store := seedStore(t, 0, 3)
		_, err := store.ReserveBed(ctx, BedICU)
		assert.ErrorIs(t, err, ErrResourceExhausted)
	})

	t.Run("should floor bed release at zero", func(t *testing.T) {
		store := seedStore(t, 2, 2)
		require.NoError(t, store.ReleaseBed(ctx, BedWard))

		pool, err := store.Pool(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, pool.WardOccupied)
	})

	t.Run("should stamp last updated on reservation", func(t *testing.T) {
		store := seedStore(t, 1, 1)
		pool, err := store.ReserveBed(ctx, BedICU)
		require.NoError(t, err)
		assert.False(t, pool.LastUpdated.IsZero())
	})
}

func TestMemoryStoreSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("should return consistent doctors and pool", func(t *testing.T) {
		store := seedStore(t, 2, 2,
			mustDoctor(t, "d1", "cardiology", 5),
			mustDoctor(t, "d2", "neurology", 5))

		_, err := store.ReserveDoctor(ctx, "d1")
		require.NoError(t, err)
		_, err = store.ReserveBed(ctx, BedWard)
		require.NoError(t, err)

		doctors, pool, err := store.Snapshot(ctx)
		require.NoError(t, err)
		require.Len(t, doctors, 2)
		assert.Equal(t, 1, doctors[0].CurrentAppointments)
		assert.Equal(t, 1, pool.WardOccupied)
	})
}

func TestDoctorTypes(t *testing.T) {
	t.Run("should compute workload percent rounded", func(t *testing.T) {
		d := Doctor{DailyCapacity: 3, CurrentAppointments: 1}
		assert.InDelta(t, 33.33, d.WorkloadPercent(), 0.001)
	})

	t.Run("should default consultation time", func(t *testing.T) {
		d, err := NewDoctor("d1", "Dr. One", "cardiology", 5, 0)
		require.NoError(t, err)
		assert.Equal(t, DefaultConsultationMinutes, d.AvgConsultationMinutes)
	})

	t.Run("should reject non-positive capacity", func(t *testing.T) {
		_, err := NewDoctor("d1", "Dr. One", "cardiology", 0, 15)
		assert.Error(t, err)
	})

	t.Run("should report zero occupancy for empty class", func(t *testing.T) {
		pool := ResourcePool{ICUTotal: 0, WardTotal: 10, WardOccupied: 5}
		assert.Equal(t, 0.0, pool.OccupancyPercent(BedICU))
		assert.Equal(t, 50.0, pool.OccupancyPercent(BedWard))
	})

	t.Run("should map emergency flag to bed class", func(t *testing.T) {
		assert.Equal(t, BedICU, ClassFor(1))
		assert.Equal(t, BedWard, ClassFor(0))
	})
}
