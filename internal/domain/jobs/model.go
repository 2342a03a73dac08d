package jobs

import (
	"time"

	"github.com/Simplici0/shopworks/internal/numeric"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Completed reports whether the job has finished production.
func (s Status) Completed() bool {
	switch s {
	case StatusCompleted, StatusShipped, StatusDelivered:
		return true
	}
	return false
}

type Job struct {
	ID             int64              `json:"id"`
	Name           string             `json:"name"`
	PartID         int64              `json:"partId,omitempty"`
	PartNumber     string             `json:"partNumber,omitempty"`
	VariantSuffix  string             `json:"variantSuffix,omitempty"`
	DashQuantities map[string]float64 `json:"dashQuantities,omitempty"`
	Quantity       string             `json:"quantity,omitempty"`
	Status         Status             `json:"status"`
	LaborHours     *float64           `json:"laborHours,omitempty"`
}

// DashTotal sums the clamped dash quantities.
func (j Job) DashTotal() float64 {
	total := 0.0
	for _, q := range j.DashQuantities {
		total += numeric.SafeQuantity(q)
	}
	return total
}

// NormalizedDash returns dash quantities keyed by normalized suffix with
// non-positive entries dropped.
func (j Job) NormalizedDash() map[string]float64 {
	out := make(map[string]float64, len(j.DashQuantities))
	for suffix, q := range j.DashQuantities {
		q = numeric.SafeQuantity(q)
		if q <= 0 {
			continue
		}
		out[numeric.NormalizeSuffix(suffix)] += q
	}
	return out
}

// Shift is one clock-in/clock-out span worked against a job.
type Shift struct {
	ID           int64      `json:"id"`
	JobID        int64      `json:"jobId"`
	UserID       int64      `json:"userId"`
	ClockIn      time.Time  `json:"clockIn"`
	ClockOut     *time.Time `json:"clockOut,omitempty"`
	BreakMinutes float64    `json:"breakMinutes"`
}

// WorkedHours is clock-out minus clock-in minus breaks, never negative.
// Open shifts count as zero.
func (s Shift) WorkedHours() float64 {
	if s.ClockOut == nil {
		return 0
	}
	d := s.ClockOut.Sub(s.ClockIn)
	worked := d.Hours() - numeric.SafeQuantity(s.BreakMinutes)/60
	return numeric.SafeQuantity(worked)
}
