package allocator

import (
	"context"

	"github.com/terminal-bench/careflow/internal/capacity"
)

// BedAllocation is the result of a successful bed reservation.
type BedAllocation struct {
	Allocated capacity.BedClass `json:"allocated"`
	Pool      capacity.ResourcePool
}

// BedAllocator reserves a bed in the class implied by the emergency flag.
type BedAllocator struct {
	store capacity.Store
}

func NewBedAllocator(store capacity.Store) *BedAllocator {
	return &BedAllocator{store: store}
}

// Allocate atomically claims an ICU bed for emergencies, a ward bed
// otherwise. A full class fails with capacity.ErrResourceExhausted and is
// never retried: it is a hard limit the caller surfaces as a rejection.
func (a *BedAllocator) Allocate(ctx context.Context, emergency int) (*BedAllocation, error) {
	class := capacity.ClassFor(emergency)
	pool, err := a.store.ReserveBed(ctx, class)
	if err != nil {
		return nil, err
	}
	return &BedAllocation{Allocated: class, Pool: pool}, nil
}

// RejectionReason renders the patient-facing reason for a full bed class.
func RejectionReason(class capacity.BedClass) string {
	if class == capacity.BedICU {
		return "No ICU beds available"
	}
	return "No ward beds available"
}
