package metrics

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	influxapi "github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/terminal-bench/careflow/internal/capacity"
	"github.com/terminal-bench/careflow/pkg/messaging"
)

// Advisory levels derived from the stress index.
const (
	LevelNormal   = "NORMAL"
	LevelWarning  = "WARNING"
	LevelCritical = "CRITICAL"
)

// Stress index level thresholds, inclusive at the boundary.
const (
	criticalThreshold = 80.0
	warningThreshold  = 60.0
)

// RedisKey holds the latest snapshot for other services.
const RedisKey = "hospital:metrics"

// Snapshot is the derived hospital metrics view. It is recomputed wholesale
// from store state; there are no partial updates.
type Snapshot struct {
	StressIndex              float64   `json:"stress_index"`
	Level                    string    `json:"level"`
	AvgDoctorWorkloadPercent float64   `json:"avg_doctor_workload_percent"`
	ICUOccupancyPercent      float64   `json:"icu_occupancy_percent"`
	WardOccupancyPercent     float64   `json:"ward_occupancy_percent"`
	EmergencyRatio           float64   `json:"emergency_ratio"`
	ComputedAt               time.Time `json:"computed_at"`
}

// CaseCounter reports appointment totals for the emergency ratio.
type CaseCounter interface {
	CountCases(ctx context.Context) (total, emergency int, err error)
}

// Aggregator recomputes the stress snapshot from a consistent read of the
// capacity store plus appointment counts. The Redis mirror, Influx history
// and NATS fan-out are optional sinks; their failures are logged and never
// fail a recompute.
type Aggregator struct {
	store  capacity.Store
	cases  CaseCounter
	redis  *redis.Client
	influx influxapi.WriteAPIBlocking
	nats   *messaging.Client
	logger *zap.Logger

	mu     sync.RWMutex
	latest *Snapshot
}

type Option func(*Aggregator)

func WithRedis(client *redis.Client) Option {
	return func(a *Aggregator) { a.redis = client }
}

func WithInflux(writer influxapi.WriteAPIBlocking) Option {
	return func(a *Aggregator) { a.influx = writer }
}

func WithNATS(client *messaging.Client) Option {
	return func(a *Aggregator) { a.nats = client }
}

func NewAggregator(store capacity.Store, cases CaseCounter, logger *zap.Logger, opts ...Option) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Aggregator{store: store, cases: cases, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Recompute builds a fresh snapshot and publishes it to the configured
// sinks. The store read is a single consistent snapshot, so the result may
// be momentarily stale but never torn.
func (a *Aggregator) Recompute(ctx context.Context) (*Snapshot, error) {
	var (
		doctors        []capacity.Doctor
		pool           capacity.ResourcePool
		total, emercnt int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		doctors, pool, err = a.store.Snapshot(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		total, emercnt, err = a.cases.CountCases(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := compute(doctors, pool, total, emercnt)

	a.mu.Lock()
	a.latest = &snap
	a.mu.Unlock()

	a.publish(ctx, snap)
	return &snap, nil
}

// Latest returns the most recent snapshot, or nil before the first
// recompute.
func (a *Aggregator) Latest() *Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest
}

func compute(doctors []capacity.Doctor, pool capacity.ResourcePool, total, emergencies int) Snapshot {
	var workloadSum float64
	counted := 0
	for _, d := range doctors {
		if d.DailyCapacity <= 0 {
			continue
		}
		workloadSum += d.WorkloadRatio() * 100
		counted++
	}

	avgWorkload := 0.0
	if counted > 0 {
		avgWorkload = workloadSum / float64(counted)
	}

	icuPct := pool.OccupancyPercent(capacity.BedICU)
	wardPct := pool.OccupancyPercent(capacity.BedWard)

	emergencyRatio := 0.0
	if total > 0 {
		emergencyRatio = float64(emergencies) / float64(total)
	}

	stress := 0.4*avgWorkload + 0.3*icuPct + 0.2*wardPct + 0.1*(emergencyRatio*100)

	return Snapshot{
		StressIndex:              stress,
		Level:                    LevelFor(stress),
		AvgDoctorWorkloadPercent: avgWorkload,
		ICUOccupancyPercent:      icuPct,
		WardOccupancyPercent:     wardPct,
		EmergencyRatio:           emergencyRatio,
		ComputedAt:               time.Now().UTC(),
	}
}

// LevelFor maps a stress index to its advisory level.
func LevelFor(stress float64) string {
	switch {
	case stress >= criticalThreshold:
		return LevelCritical
	case stress >= warningThreshold:
		return LevelWarning
	default:
		return LevelNormal
	}
}

func (a *Aggregator) publish(ctx context.Context, snap Snapshot) {
	if a.redis != nil {
		payload, err := json.Marshal(snap)
		if err == nil {
			err = a.redis.Set(ctx, RedisKey, payload, 0).Err()
		}
		if err != nil {
			a.logger.Error("failed to cache metrics snapshot", zap.Error(err))
		}
	}

	if a.influx != nil {
		point := write.NewPoint(
			"hospital_stress",
			map[string]string{"level": snap.Level},
			map[string]interface{}{
				"stress_index":        snap.StressIndex,
				"avg_doctor_workload": snap.AvgDoctorWorkloadPercent,
				"icu_occupancy":       snap.ICUOccupancyPercent,
				"ward_occupancy":      snap.WardOccupancyPercent,
				"emergency_ratio":     snap.EmergencyRatio,
			},
			snap.ComputedAt,
		)
		if err := a.influx.WritePoint(ctx, point); err != nil {
			a.logger.Error("failed to write metrics history point", zap.Error(err))
		}
	}

	if a.nats != nil {
		event := messaging.MetricsUpdatedEvent{
			StressIndex:              snap.StressIndex,
			Level:                    snap.Level,
			AvgDoctorWorkloadPercent: snap.AvgDoctorWorkloadPercent,
			ICUOccupancyPercent:      snap.ICUOccupancyPercent,
			WardOccupancyPercent:     snap.WardOccupancyPercent,
			EmergencyRatio:           snap.EmergencyRatio,
			ComputedAt:               snap.ComputedAt,
		}
		if err := a.nats.Publish(ctx, messaging.SubjectMetricsUpdated, event); err != nil {
			a.logger.Error("failed to publish metrics event", zap.Error(err))
		}
	}
}
