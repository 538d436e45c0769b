package allocator

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/terminal-bench/careflow/internal/capacity"
)

// ErrNoDoctorAvailable means no eligible doctor exists for the department
// right now. Client-correctable: the caller may retry later.
var ErrNoDoctorAvailable = errors.New("no doctor available")

// DoctorAllocation is the result of a successful doctor reservation. Wait
// and workload are computed from the post-increment appointment count.
type DoctorAllocation struct {
	DoctorID             string  `json:"assigned_doctor_id"`
	Name                 string  `json:"assigned_doctor_name"`
	Department           string  `json:"department"`
	PredictedWaitMinutes int     `json:"predicted_wait_minutes"`
	WorkloadPercent      float64 `json:"workload_percent"`
}

// DoctorAllocator selects the least-loaded eligible doctor and reserves a
// slot atomically through the capacity store.
type DoctorAllocator struct {
	store  capacity.Store
	logger *zap.Logger
}

func NewDoctorAllocator(store capacity.Store, logger *zap.Logger) *DoctorAllocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DoctorAllocator{store: store, logger: logger}
}

// Allocate picks the doctor with the lowest workload ratio in the
// department (ties broken by first-seen order) and atomically increments
// their appointment count. A lost race on the last slot is retried once
// with a fresh selection pass before surfacing as ErrNoDoctorAvailable.
func (a *DoctorAllocator) Allocate(ctx context.Context, department string) (*DoctorAllocation, error) {
	const selectionPasses = 2

	var lastErr error
	for attempt := 0; attempt < selectionPasses; attempt++ {
		candidate, err := a.selectCandidate(ctx, department)
		if err != nil {
			return nil, err
		}

		reserved, err := a.store.ReserveDoctor(ctx, candidate.ID)
		if err == nil {
			return &DoctorAllocation{
				DoctorID:             reserved.ID,
				Name:                 reserved.Name,
				Department:           reserved.Department,
				PredictedWaitMinutes: reserved.CurrentAppointments * reserved.AvgConsultationMinutes,
				WorkloadPercent:      reserved.WorkloadPercent(),
			}, nil
		}
		if !errors.Is(err, capacity.ErrCapacityExceeded) {
			return nil, err
		}

		// Another intake took the last slot between selection and reserve.
		a.logger.Warn("lost doctor slot race, reselecting",
			zap.String("doctor_id", candidate.ID),
			zap.String("department", department))
		lastErr = err
	}

	a.logger.Warn("doctor allocation exhausted retries",
		zap.String("department", department), zap.Error(lastErr))
	return nil, ErrNoDoctorAvailable
}

// selectCandidate runs the read-only selection pass: available doctors with
// a free slot, minimum workload ratio wins.
func (a *DoctorAllocator) selectCandidate(ctx context.Context, department string) (capacity.Doctor, error) {
	doctors, err := a.store.ListDoctors(ctx, department)
	if err != nil {
		return capacity.Doctor{}, err
	}

	var best capacity.Doctor
	found := false
	for _, d := range doctors {
		if !d.IsAvailable || !d.HasFreeSlot() {
			continue
		}
		if !found || d.WorkloadRatio() < best.WorkloadRatio() {
			best = d
			found = true
		}
	}
	if !found {
		return capacity.Doctor{}, ErrNoDoctorAvailable
	}
	return best, nil
}
