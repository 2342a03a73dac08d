// Package feedback compares estimated labor against the hours actually
// recorded on completed jobs. It only reads; nothing is written back.
package feedback

import (
	"sort"
	"strings"

	"github.com/Simplici0/shopworks/internal/allocation"
	"github.com/Simplici0/shopworks/internal/domain/jobs"
	"github.com/Simplici0/shopworks/internal/domain/parts"
	"github.com/Simplici0/shopworks/internal/numeric"
)

// HoursSource tells where a job's actual hours came from.
type HoursSource string

const (
	FromShifts HoursSource = "shifts"
	FromJob    HoursSource = "job"
)

type JobSample struct {
	JobID       int64       `json:"jobId"`
	Name        string      `json:"name"`
	Status      jobs.Status `json:"status"`
	ActualHours float64     `json:"actualHours"`
	Sets        float64     `json:"sets"`
	HoursPerSet float64     `json:"hoursPerSet"`
	Source      HoursSource `json:"source"`
}

// VariantSample holds hours allocated to one variant across jobs. Hours from
// dash-quantity jobs are shared out by quantity, not measured.
type VariantSample struct {
	Suffix           string  `json:"suffix"`
	Units            float64 `json:"units"`
	AllocatedHours   float64 `json:"allocatedHours"`
	HoursPerUnit     float64 `json:"hoursPerUnit"`
	EstimatedPerUnit float64 `json:"estimatedPerUnit"`
	HasEstimate      bool    `json:"hasEstimate"`
	VariancePerUnit  float64 `json:"variancePerUnit"`
	ContributingJobs int     `json:"contributingJobs"`
}

type Report struct {
	PartID               int64           `json:"partId,omitempty"`
	PartNumber           string          `json:"partNumber"`
	PartName             string          `json:"partName"`
	EstimatedHoursPerSet float64         `json:"estimatedHoursPerSet"`
	HasEstimate          bool            `json:"hasEstimate"`
	TotalActualHours     float64         `json:"totalActualHours"`
	TotalSets            float64         `json:"totalSets"`
	AverageHoursPerSet   float64         `json:"averageHoursPerSet"`
	Variance             float64         `json:"variance"`
	VariancePercent      float64         `json:"variancePercent"`
	Jobs                 []JobSample     `json:"jobs"`
	Variants             []VariantSample `json:"variants"`
	Excluded             []int64         `json:"excluded,omitempty"`
}

// Matches reports whether job j was made for part p. Jobs match by part id,
// then by part number with an optional trailing dash suffix, and for parts
// built from job history (no id) by name prefix.
func Matches(p parts.Part, j jobs.Job) bool {
	if p.ID != 0 && j.PartID != 0 {
		return p.ID == j.PartID
	}
	if p.Number != "" && j.PartNumber != "" {
		return sameBaseNumber(p.Number, j.PartNumber)
	}
	if p.ID == 0 && p.Name != "" {
		return strings.HasPrefix(strings.ToLower(strings.TrimSpace(j.Name)), strings.ToLower(strings.TrimSpace(p.Name)))
	}
	return false
}

func sameBaseNumber(partNumber, jobNumber string) bool {
	partNumber = strings.TrimSpace(partNumber)
	jobNumber = strings.TrimSpace(jobNumber)
	if strings.EqualFold(partNumber, jobNumber) {
		return true
	}
	if len(jobNumber) <= len(partNumber)+1 || !strings.EqualFold(jobNumber[:len(partNumber)], partNumber) {
		return false
	}
	rest := jobNumber[len(partNumber):]
	return rest[0] == '-' && !strings.Contains(rest[1:], "-")
}

// Analyze builds the feedback report for p from the jobs that match it.
// Jobs that are not completed are ignored; completed jobs without hours or
// without a quantity are listed in Excluded.
func Analyze(p parts.Part, all []jobs.Job, shifts []jobs.Shift) Report {
	worked := make(map[int64]float64)
	for _, s := range shifts {
		worked[s.JobID] += s.WorkedHours()
	}

	r := Report{
		PartID:     p.ID,
		PartNumber: p.Number,
		PartName:   p.Name,
		Jobs:       []JobSample{},
		Variants:   []VariantSample{},
	}
	r.EstimatedHoursPerSet, r.HasEstimate = estimate(p)

	variants := make(map[string]*VariantSample)
	variant := func(suffix string) *VariantSample {
		key := numeric.NormalizeSuffix(suffix)
		if v, ok := variants[key]; ok {
			return v
		}
		v := &VariantSample{Suffix: key}
		if known, ok := p.Variant(key); ok {
			v.Suffix = known.Suffix
		}
		variants[key] = v
		return v
	}

	for _, j := range all {
		if !j.Status.Completed() || !Matches(p, j) {
			continue
		}
		hours, source := actualHours(j, worked[j.ID])
		sets := j.DashTotal()
		if sets <= 0 {
			sets = numeric.ParseQuantity(j.Quantity)
		}
		if hours <= 0 || sets <= 0 {
			r.Excluded = append(r.Excluded, j.ID)
			continue
		}

		r.TotalActualHours += hours
		r.TotalSets += sets
		r.Jobs = append(r.Jobs, JobSample{
			JobID:       j.ID,
			Name:        j.Name,
			Status:      j.Status,
			ActualHours: numeric.Round2(hours),
			Sets:        sets,
			HoursPerSet: numeric.Round2(hours / sets),
			Source:      source,
		})

		if dash := j.NormalizedDash(); len(dash) > 0 {
			total := j.DashTotal()
			for suffix, q := range dash {
				v := variant(suffix)
				v.Units += q
				v.AllocatedHours += hours * q / total
				v.ContributingJobs++
			}
		} else if numeric.NormalizeSuffix(j.VariantSuffix) != "" {
			v := variant(j.VariantSuffix)
			v.Units += sets
			v.AllocatedHours += hours
			v.ContributingJobs++
		}
	}

	if r.TotalSets > 0 {
		r.AverageHoursPerSet = numeric.Round2(r.TotalActualHours / r.TotalSets)
	}
	r.TotalActualHours = numeric.Round2(r.TotalActualHours)
	if r.HasEstimate && len(r.Jobs) > 0 {
		r.Variance = numeric.Round2(r.AverageHoursPerSet - r.EstimatedHoursPerSet)
		if r.EstimatedHoursPerSet > 0 {
			r.VariancePercent = numeric.Round2(r.Variance / r.EstimatedHoursPerSet * 100)
		}
	}

	for key, v := range variants {
		if v.Units > 0 {
			v.HoursPerUnit = numeric.Round2(v.AllocatedHours / v.Units)
		}
		v.AllocatedHours = numeric.Round2(v.AllocatedHours)
		if est, ok := allocation.ResolvedValue(p, parts.Labor, key); ok {
			v.EstimatedPerUnit = est
			v.HasEstimate = true
			v.VariancePerUnit = numeric.Round2(v.HoursPerUnit - est)
		}
		r.Variants = append(r.Variants, *v)
	}
	sort.Slice(r.Variants, func(i, j int) bool {
		return numeric.NormalizeSuffix(r.Variants[i].Suffix) < numeric.NormalizeSuffix(r.Variants[j].Suffix)
	})
	return r
}

func actualHours(j jobs.Job, fromShifts float64) (float64, HoursSource) {
	if fromShifts > 0 {
		return fromShifts, FromShifts
	}
	if j.LaborHours != nil {
		if h := numeric.SafeQuantity(*j.LaborHours); h > 0 {
			return h, FromJob
		}
	}
	return 0, ""
}

// estimate is the part's labor per set: a manual value, else the variant
// aggregate, else any derived value.
func estimate(p parts.Part) (float64, bool) {
	f := p.LaborHours
	if f.IsManual() {
		return f.Value()
	}
	if agg, ok := allocation.Aggregate(p, parts.Labor); ok {
		return agg, true
	}
	return f.Value()
}
