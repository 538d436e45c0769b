package recommend

import (
	"sync"

	"github.com/terminal-bench/careflow/internal/metrics"
)

// Recommendation is the advisory message set for a stress level. Each
// generation replaces the previous record wholesale.
type Recommendation struct {
	Level    string   `json:"level"`
	Messages []string `json:"messages"`
}

// Engine maps metrics snapshots to advisory messages.
type Engine struct {
	mu      sync.RWMutex
	current *Recommendation
}

func NewEngine() *Engine {
	return &Engine{}
}

// Generate produces the message set for a snapshot. The rules are evaluated
// in fixed order and append rather than replace, so the base messages for a
// level always come first.
func (e *Engine) Generate(snap *metrics.Snapshot) Recommendation {
	var messages []string

	switch snap.Level {
	case metrics.LevelCritical:
		messages = append(messages,
			"Activate emergency response protocol",
			"Defer non-urgent appointments")
		if snap.ICUOccupancyPercent > 90 {
			messages = append(messages, "Initiate ICU patient transfer")
		}
		if snap.AvgDoctorWorkloadPercent > 85 {
			messages = append(messages, "Call additional on-call doctors")
		}

	case metrics.LevelWarning:
		messages = append(messages, "Monitor ICU capacity closely")
		if snap.ICUOccupancyPercent > 75 {
			messages = append(messages, "Prepare overflow beds")
		}

	default:
		messages = append(messages, "Hospital operating within safe limits")
	}

	rec := Recommendation{Level: snap.Level, Messages: messages}

	e.mu.Lock()
	e.current = &rec
	e.mu.Unlock()

	return rec
}

// Current returns the latest recommendation, or nil before the first
// generation.
func (e *Engine) Current() *Recommendation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}
