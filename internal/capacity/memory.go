package capacity

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps capacity counters in process. Each doctor has its own
// mutex so reservations against different doctors never contend; the
// store-level RWMutex is held shared by every mutation and exclusively by
// Snapshot, which is how Snapshot gets a torn-read-free view without a
// global lock on the hot path.
type MemoryStore struct {
	mu      sync.RWMutex
	doctors map[string]*doctorEntry
	order   []string

	poolMu sync.Mutex
	pool   ResourcePool

	now func() time.Time
}

type doctorEntry struct {
	mu  sync.Mutex
	doc Doctor
}

// NewMemoryStore creates a store seeded with the given pool.
func NewMemoryStore(pool ResourcePool) *MemoryStore {
	return &MemoryStore{
		doctors: make(map[string]*doctorEntry),
		pool:    pool,
		now:     time.Now,
	}
}

func (s *MemoryStore) AddDoctor(ctx context.Context, d Doctor) error {
	if d.DailyCapacity <= 0 {
		return fmt.Errorf("daily capacity must be positive, got %d", d.DailyCapacity)
	}
	if d.CurrentAppointments < 0 || d.CurrentAppointments > d.DailyCapacity {
		return fmt.Errorf("current appointments %d out of range [0,%d]", d.CurrentAppointments, d.DailyCapacity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.doctors[d.ID]; exists {
		return fmt.Errorf("doctor %s already registered", d.ID)
	}
	s.doctors[d.ID] = &doctorEntry{doc: d}
	s.order = append(s.order, d.ID)
	return nil
}

func (s *MemoryStore) ListDoctors(ctx context.Context, department string) ([]Doctor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Doctor, 0, len(s.order))
	for _, id := range s.order {
		entry := s.doctors[id]
		entry.mu.Lock()
		doc := entry.doc
		entry.mu.Unlock()
		if department == "" || doc.Department == department {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetDoctor(ctx context.Context, id string) (Doctor, error) {
	s.mu.RLock()
	entry, ok := s.doctors[id]
	s.mu.RUnlock()
	if !ok {
		return Doctor{}, ErrDoctorNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.doc, nil
}

func (s *MemoryStore) SetDoctorAvailability(ctx context.Context, id string, available bool) error {
	s.mu.RLock()
	entry, ok := s.doctors[id]
	s.mu.RUnlock()
	if !ok {
		return ErrDoctorNotFound
	}

	entry.mu.Lock()
	entry.doc.IsAvailable = available
	entry.mu.Unlock()
	return nil
}

func (s *MemoryStore) ReserveDoctor(ctx context.Context, id string) (Doctor, error) {
	s.mu.RLock()
	entry, ok := s.doctors[id]
	defer s.mu.RUnlock()
	if !ok {
		return Doctor{}, ErrDoctorNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if !entry.doc.IsAvailable || !entry.doc.HasFreeSlot() {
		return Doctor{}, fmt.Errorf("%w: doctor %s at %d/%d", ErrCapacityExceeded,
			id, entry.doc.CurrentAppointments, entry.doc.DailyCapacity)
	}
	entry.doc.CurrentAppointments++
	return entry.doc, nil
}

func (s *MemoryStore) ReleaseDoctor(ctx context.Context, id string) error {
	s.mu.RLock()
	entry, ok := s.doctors[id]
	defer s.mu.RUnlock()
	if !ok {
		return ErrDoctorNotFound
	}

	entry.mu.Lock()
	if entry.doc.CurrentAppointments > 0 {
		entry.doc.CurrentAppointments--
	}
	entry.mu.Unlock()
	return nil
}

func (s *MemoryStore) Pool(ctx context.Context) (ResourcePool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.poolMu.Lock()
	defer s.poolMu.Unlock()
	return s.pool, nil
}

func (s *MemoryStore) ReserveBed(ctx context.Context, class BedClass) (ResourcePool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.poolMu.Lock()
	defer s.poolMu.Unlock()

	if s.pool.Occupied(class) >= s.pool.Total(class) {
		return ResourcePool{}, fmt.Errorf("%w: %s at %d/%d", ErrResourceExhausted,
			class, s.pool.Occupied(class), s.pool.Total(class))
	}
	if class == BedICU {
		s.pool.ICUOccupied++
	} else {
		s.pool.WardOccupied++
	}
	s.pool.LastUpdated = s.now()
	return s.pool, nil
}

func (s *MemoryStore) ReleaseBed(ctx context.Context, class BedClass) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.poolMu.Lock()
	defer s.poolMu.Unlock()

	if class == BedICU {
		if s.pool.ICUOccupied > 0 {
			s.pool.ICUOccupied--
		}
	} else {
		if s.pool.WardOccupied > 0 {
			s.pool.WardOccupied--
		}
	}
	s.pool.LastUpdated = s.now()
	return nil
}

func (s *MemoryStore) Snapshot(ctx context.Context) ([]Doctor, ResourcePool, error) {
	// Exclusive store lock: every mutation holds the shared lock, so while
	// we hold the exclusive one nothing can move underneath us.
	s.mu.Lock()
	defer s.mu.Unlock()

	doctors := make([]Doctor, 0, len(s.order))
	for _, id := range s.order {
		doctors = append(doctors, s.doctors[id].doc)
	}

	s.poolMu.Lock()
	pool := s.pool
	s.poolMu.Unlock()

	return doctors, pool, nil
}
