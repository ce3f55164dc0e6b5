package task

import (
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/rand"
)

// Policy controls the pacing of a task's reconciliation loop.
type Policy struct {
	// Interval is the minimum sleep between two cycles.
	Interval time.Duration
	// Jitter stretches each sleep to a random duration in
	// [Interval, Interval*(1+Jitter)). Zero or less disables it.
	Jitter float64
	// RefreshMin and RefreshMax bound, inclusively, the number of cycles
	// that trust cached remote state before it is fetched again.
	RefreshMin int
	RefreshMax int
	// MaxFailures stops the task after that many consecutive failed
	// cycles. Zero keeps it running forever.
	MaxFailures int
}

// DefaultPolicy returns a cycle every 60 to 120 seconds and a forced fetch
// every 40 to 80 cycles.
func DefaultPolicy() Policy {
	return Policy{
		Interval:   60 * time.Second,
		Jitter:     1.0,
		RefreshMin: 40,
		RefreshMax: 80,
	}
}

// Validate reports the first inconsistent field.
func (p Policy) Validate() error {
	switch {
	case p.Interval <= 0:
		return fmt.Errorf("interval must be positive, got %s", p.Interval)
	case p.Jitter < 0:
		return fmt.Errorf("jitter must not be negative, got %v", p.Jitter)
	case p.RefreshMin < 0:
		return fmt.Errorf("refresh_min must not be negative, got %d", p.RefreshMin)
	case p.RefreshMax < p.RefreshMin:
		return fmt.Errorf("refresh_max (%d) must not be below refresh_min (%d)", p.RefreshMax, p.RefreshMin)
	case p.MaxFailures < 0:
		return fmt.Errorf("max_failures must not be negative, got %d", p.MaxFailures)
	}
	return nil
}

// NextRefresh draws the number of cycles until the next forced fetch.
func (p Policy) NextRefresh() int {
	return rand.IntnRange(p.RefreshMin, p.RefreshMax+1)
}
