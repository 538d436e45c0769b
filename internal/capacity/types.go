package capacity

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrDoctorNotFound    = errors.New("doctor not found")
	ErrCapacityExceeded  = errors.New("doctor capacity exceeded")
	ErrResourceExhausted = errors.New("bed capacity exhausted")
	ErrStoreUnavailable  = errors.New("capacity store unavailable")
)

// BedClass identifies a bed resource class.
type BedClass string

const (
	BedICU  BedClass = "ICU"
	BedWard BedClass = "WARD"
)

// ClassFor maps the triage emergency flag to a bed class.
func ClassFor(emergency int) BedClass {
	if emergency == 1 {
		return BedICU
	}
	return BedWard
}

// Doctor is the capacity view of a doctor. CurrentAppointments is only ever
// mutated through Store.ReserveDoctor / Store.ReleaseDoctor, which keep
// CurrentAppointments <= DailyCapacity.
type Doctor struct {
	ID                     string `json:"id"`
	Name                   string `json:"name"`
	Department             string `json:"department"`
	DailyCapacity          int    `json:"daily_capacity"`
	CurrentAppointments    int    `json:"current_appointments"`
	IsAvailable            bool   `json:"is_available"`
	AvgConsultationMinutes int    `json:"avg_consultation_time"`
}

// DefaultConsultationMinutes is assumed when a doctor record carries no
// consultation time.
const DefaultConsultationMinutes = 15

// NewDoctor validates invariants at construction time.
func NewDoctor(id, name, department string, dailyCapacity, avgConsultationMinutes int) (Doctor, error) {
	if id == "" {
		return Doctor{}, errors.New("doctor id required")
	}
	if dailyCapacity <= 0 {
		return Doctor{}, fmt.Errorf("daily capacity must be positive, got %d", dailyCapacity)
	}
	if avgConsultationMinutes <= 0 {
		avgConsultationMinutes = DefaultConsultationMinutes
	}
	return Doctor{
		ID:                     id,
		Name:                   name,
		Department:             department,
		DailyCapacity:          dailyCapacity,
		IsAvailable:            true,
		AvgConsultationMinutes: avgConsultationMinutes,
	}, nil
}

// HasFreeSlot reports whether one more appointment fits.
func (d Doctor) HasFreeSlot() bool {
	return d.CurrentAppointments < d.DailyCapacity
}

// WorkloadRatio is current_appointments / daily_capacity.
func (d Doctor) WorkloadRatio() float64 {
	if d.DailyCapacity <= 0 {
		return 0
	}
	return float64(d.CurrentAppointments) / float64(d.DailyCapacity)
}

// WorkloadPercent is the workload ratio as a percentage, rounded to two
// decimal places.
func (d Doctor) WorkloadPercent() float64 {
	return round2(d.WorkloadRatio() * 100)
}

// ResourcePool is the hospital-wide bed counter singleton. Occupied counts
// are only ever mutated through Store.ReserveBed / Store.ReleaseBed, which
// keep occupied <= total per class.
type ResourcePool struct {
	ICUTotal     int       `json:"icu_total"`
	ICUOccupied  int       `json:"icu_occupied"`
	WardTotal    int       `json:"ward_total"`
	WardOccupied int       `json:"ward_occupied"`
	LastUpdated  time.Time `json:"last_updated"`
}

// NewResourcePool validates totals at construction time.
func NewResourcePool(icuTotal, wardTotal int) (ResourcePool, error) {
	if icuTotal < 0 || wardTotal < 0 {
		return ResourcePool{}, fmt.Errorf("bed totals must be non-negative, got icu=%d ward=%d", icuTotal, wardTotal)
	}
	return ResourcePool{ICUTotal: icuTotal, WardTotal: wardTotal}, nil
}

// Occupied returns the occupied count for a class.
func (p ResourcePool) Occupied(class BedClass) int {
	if class == BedICU {
		return p.ICUOccupied
	}
	return p.WardOccupied
}

// Total returns the total count for a class.
func (p ResourcePool) Total(class BedClass) int {
	if class == BedICU {
		return p.ICUTotal
	}
	return p.WardTotal
}

// OccupancyPercent returns occupied/total*100 for a class, 0 when the class
// has no beds at all.
func (p ResourcePool) OccupancyPercent(class BedClass) float64 {
	total := p.Total(class)
	if total <= 0 {
		return 0
	}
	return float64(p.Occupied(class)) / float64(total) * 100
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
