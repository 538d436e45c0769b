package intake

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/terminal-bench/careflow/internal/allocator"
	"github.com/terminal-bench/careflow/internal/appointments"
	"github.com/terminal-bench/careflow/internal/capacity"
	"github.com/terminal-bench/careflow/internal/metrics"
	"github.com/terminal-bench/careflow/internal/recommend"
	"github.com/terminal-bench/careflow/internal/triage"
	"github.com/terminal-bench/careflow/pkg/messaging"
)

var ErrInvalidRequest = errors.New("invalid intake request")

const rescheduleReason = "Emergency patient priority"

// AppointmentStore is the slice of the appointment repository the intake
// flow needs.
type AppointmentStore interface {
	Create(ctx context.Context, a *appointments.Appointment) error
	ScheduledForDoctor(ctx context.Context, doctorID string) ([]*appointments.Appointment, error)
	Reschedule(ctx context.Context, id, reason string) error
}

// Recomputer triggers the asynchronous metrics refresh after each decision.
type Recomputer interface {
	Recompute(ctx context.Context) (*metrics.Snapshot, error)
}

// Recommender regenerates advisories from a fresh snapshot.
type Recommender interface {
	Generate(snap *metrics.Snapshot) recommend.Recommendation
}

// Request is a patient intake submission.
type Request struct {
	PatientName  string `json:"patient_name" binding:"required"`
	PatientEmail string `json:"patient_email"`
	Age          int    `json:"age" binding:"required,gt=0"`
	Symptoms     string `json:"symptoms"`
	Department   string `json:"department" binding:"required"`
}

// Result statuses.
const (
	StatusScheduled = "scheduled"
	StatusRejected  = "rejected"
)

// Result is the structured intake outcome. Capacity problems surface here
// as rejections; only operational failures become errors.
type Result struct {
	Status         string                    `json:"status"`
	Reason         string                    `json:"reason,omitempty"`
	Appointment    *appointments.Appointment `json:"appointment,omitempty"`
	RescheduledIDs []string                  `json:"rescheduled_appointment_ids,omitempty"`
}

// Service runs the intake flow: triage, doctor and bed reservation,
// emergency rescheduling, persistence and event publication.
type Service struct {
	policy      triage.EmergencyPolicy
	doctors     *allocator.DoctorAllocator
	beds        *allocator.BedAllocator
	store       capacity.Store
	repo        AppointmentStore
	nats        *messaging.Client
	aggregator  Recomputer
	recommender Recommender
	logger      *zap.Logger

	now func() time.Time
}

type Config struct {
	Policy      triage.EmergencyPolicy
	Doctors     *allocator.DoctorAllocator
	Beds        *allocator.BedAllocator
	Store       capacity.Store
	Repo        AppointmentStore
	NATS        *messaging.Client
	Aggregator  Recomputer
	Recommender Recommender
	Logger      *zap.Logger
}

func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := cfg.Policy
	if policy == nil {
		policy = triage.SeverityThresholdPolicy{}
	}
	return &Service{
		policy:      policy,
		doctors:     cfg.Doctors,
		beds:        cfg.Beds,
		store:       cfg.Store,
		repo:        cfg.Repo,
		nats:        cfg.NATS,
		aggregator:  cfg.Aggregator,
		recommender: cfg.Recommender,
		logger:      logger,
		now:         time.Now,
	}
}

// Submit runs the full intake flow for one patient. Doctor and bed
// reservations commit together or not at all: a bed rejection rolls the
// doctor slot back before the rejection is returned.
func (s *Service) Submit(ctx context.Context, req Request) (*Result, error) {
	if req.PatientName == "" || req.Department == "" || req.Age <= 0 {
		return nil, ErrInvalidRequest
	}

	severity := triage.Severity(req.Age, req.Symptoms)
	emergency := s.policy.Emergency(req.Age, req.Symptoms, severity)

	docAlloc, err := s.doctors.Allocate(ctx, req.Department)
	if errors.Is(err, allocator.ErrNoDoctorAvailable) {
		s.logger.Info("intake rejected: no doctor",
			zap.String("department", req.Department))
		return &Result{Status: StatusRejected, Reason: "No doctor available in this department"}, nil
	}
	if err != nil {
		return nil, err
	}

	bedAlloc, err := s.beds.Allocate(ctx, emergency)
	if err != nil {
		s.releaseDoctor(ctx, docAlloc.DoctorID)
		if errors.Is(err, capacity.ErrResourceExhausted) {
			class := capacity.ClassFor(emergency)
			s.alertCapacity(ctx, class)
			s.logger.Info("intake rejected: beds full", zap.String("class", string(class)))
			return &Result{Status: StatusRejected, Reason: allocator.RejectionReason(class)}, nil
		}
		return nil, err
	}

	var rescheduledIDs []string
	if emergency == 1 {
		rescheduledIDs = s.bumpScheduled(ctx, docAlloc)
	}

	appt := &appointments.Appointment{
		ID:                   uuid.New().String(),
		PatientName:          req.PatientName,
		PatientEmail:         req.PatientEmail,
		Age:                  req.Age,
		Symptoms:             req.Symptoms,
		Department:           req.Department,
		SeverityScore:        severity,
		Emergency:            emergency,
		AssignedDoctorID:     docAlloc.DoctorID,
		AssignedDoctorName:   docAlloc.Name,
		PredictedWaitMinutes: docAlloc.PredictedWaitMinutes,
		WorkloadPercent:      docAlloc.WorkloadPercent,
		BedType:              string(bedAlloc.Allocated),
		Status:               appointments.StatusScheduled,
		CreatedAt:            s.now().UTC(),
	}

	if err := s.repo.Create(ctx, appt); err != nil {
		// Roll both reservations back so counters do not leak.
		s.releaseDoctor(ctx, docAlloc.DoctorID)
		if relErr := s.store.ReleaseBed(ctx, bedAlloc.Allocated); relErr != nil {
			s.logger.Error("failed to release bed after create failure", zap.Error(relErr))
		}
		return nil, err
	}

	s.publishCreated(ctx, appt)
	s.refreshDerivedState()

	return &Result{
		Status:         StatusScheduled,
		Appointment:    appt,
		RescheduledIDs: rescheduledIDs,
	}, nil
}

// bumpScheduled reschedules the doctor's pending non-emergency appointments
// in favor of the incoming emergency. Failures here are logged and do not
// fail the emergency intake.
func (s *Service) bumpScheduled(ctx context.Context, doc *allocator.DoctorAllocation) []string {
	affected, err := s.repo.ScheduledForDoctor(ctx, doc.DoctorID)
	if err != nil {
		s.logger.Error("failed to list appointments for rescheduling",
			zap.String("doctor_id", doc.DoctorID), zap.Error(err))
		return nil
	}

	var ids []string
	for _, appt := range affected {
		if err := s.repo.Reschedule(ctx, appt.ID, rescheduleReason); err != nil {
			s.logger.Error("failed to reschedule appointment",
				zap.String("appointment_id", appt.ID), zap.Error(err))
			continue
		}
		ids = append(ids, appt.ID)

		if s.nats != nil {
			event := messaging.AppointmentRescheduledEvent{
				AppointmentID:      appt.ID,
				PatientName:        appt.PatientName,
				PatientEmail:       appt.PatientEmail,
				AssignedDoctorName: appt.AssignedDoctorName,
				Department:         appt.Department,
				Reason:             rescheduleReason,
				RescheduledAt:      s.now().UTC(),
			}
			if err := s.nats.Publish(ctx, messaging.SubjectAppointmentRescheduled, event); err != nil {
				s.logger.Error("failed to publish reschedule event", zap.Error(err))
			}
		}
	}
	return ids
}

func (s *Service) releaseDoctor(ctx context.Context, doctorID string) {
	if err := s.store.ReleaseDoctor(ctx, doctorID); err != nil {
		s.logger.Error("failed to release doctor slot",
			zap.String("doctor_id", doctorID), zap.Error(err))
	}
}

func (s *Service) publishCreated(ctx context.Context, appt *appointments.Appointment) {
	if s.nats == nil {
		return
	}
	event := messaging.AppointmentCreatedEvent{
		AppointmentID:        appt.ID,
		PatientName:          appt.PatientName,
		PatientEmail:         appt.PatientEmail,
		Department:           appt.Department,
		SeverityScore:        appt.SeverityScore,
		Emergency:            appt.Emergency,
		AssignedDoctorID:     appt.AssignedDoctorID,
		AssignedDoctorName:   appt.AssignedDoctorName,
		PredictedWaitMinutes: appt.PredictedWaitMinutes,
		BedType:              appt.BedType,
		CreatedAt:            appt.CreatedAt,
	}
	if err := s.nats.Publish(ctx, messaging.SubjectAppointmentCreated, event); err != nil {
		s.logger.Error("failed to publish appointment event", zap.Error(err))
	}
}

func (s *Service) alertCapacity(ctx context.Context, class capacity.BedClass) {
	if s.nats == nil {
		return
	}
	pool, err := s.store.Pool(ctx)
	if err != nil {
		return
	}
	event := messaging.CapacityAlertEvent{
		BedClass:   string(class),
		Occupied:   pool.Occupied(class),
		Total:      pool.Total(class),
		OccurredAt: s.now().UTC(),
	}
	if err := s.nats.Publish(ctx, messaging.SubjectCapacityAlert, event); err != nil {
		s.logger.Error("failed to publish capacity alert", zap.Error(err))
	}
}

// refreshDerivedState recomputes metrics and recommendations off the
// request path. The intake response never waits on it.
func (s *Service) refreshDerivedState() {
	if s.aggregator == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		snap, err := s.aggregator.Recompute(ctx)
		if err != nil {
			s.logger.Error("metrics recompute failed", zap.Error(err))
			return
		}
		if s.recommender != nil {
			s.recommender.Generate(snap)
		}
	}()
}
