package capacity

import "context"

// Store owns the doctor and bed counters. It is the only component allowed
// to mutate capacity counts, and every mutating call is atomic per entity:
// concurrent reservations against one doctor or one bed class serialize, so
// no committed reservation can push a counter past its capacity.
type Store interface {
	// ListDoctors returns doctors in first-seen (registration) order,
	// filtered by department unless department is empty.
	ListDoctors(ctx context.Context, department string) ([]Doctor, error)
	GetDoctor(ctx context.Context, id string) (Doctor, error)
	AddDoctor(ctx context.Context, d Doctor) error
	SetDoctorAvailability(ctx context.Context, id string, available bool) error

	// ReserveDoctor re-reads the doctor's counters, verifies capacity still
	// holds and increments current_appointments, all as one atomic step.
	// Returns the post-increment doctor, or ErrCapacityExceeded when a
	// concurrent reservation consumed the last slot.
	ReserveDoctor(ctx context.Context, id string) (Doctor, error)

	// ReleaseDoctor decrements current_appointments, flooring at zero. Used
	// to roll back a doctor slot when the rest of an intake fails.
	ReleaseDoctor(ctx context.Context, id string) error

	Pool(ctx context.Context) (ResourcePool, error)

	// ReserveBed verifies occupied < total for the class and increments
	// occupied as one atomic step, stamping LastUpdated. Returns the
	// post-increment pool, or ErrResourceExhausted when the class is full.
	ReserveBed(ctx context.Context, class BedClass) (ResourcePool, error)

	// ReleaseBed decrements occupied for the class, flooring at zero.
	ReleaseBed(ctx context.Context, class BedClass) error

	// Snapshot returns a self-consistent view of all doctors and the pool
	// for derived-metric computation. The view may be momentarily stale but
	// is never torn.
	Snapshot(ctx context.Context) ([]Doctor, ResourcePool, error)
}
