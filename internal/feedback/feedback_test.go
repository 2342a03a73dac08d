package feedback

import (
	"math"
	"testing"
	"time"

	"github.com/Simplici0/shopworks/internal/domain/jobs"
	"github.com/Simplici0/shopworks/internal/domain/parts"
)

func nearlyEqual(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 0.01 {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

func hours(v float64) *float64 { return &v }

func shift(jobID int64, start string, worked time.Duration, breakMinutes float64) jobs.Shift {
	in, _ := time.Parse(time.RFC3339, start)
	out := in.Add(worked)
	return jobs.Shift{JobID: jobID, ClockIn: in, ClockOut: &out, BreakMinutes: breakMinutes}
}

func bracket() parts.Part {
	return parts.Part{
		ID:             7,
		Number:         "BRK-100",
		Name:           "Bracket",
		LaborHours:     parts.Manual(2),
		SetComposition: parts.Composition{"01": 1, "02": 1},
		Variants:       []parts.Variant{{Suffix: "-01"}, {Suffix: "-02", LaborHours: parts.Manual(1.5)}},
	}
}

func TestMatches(t *testing.T) {
	p := bracket()
	cases := []struct {
		name string
		job  jobs.Job
		want bool
	}{
		{"by id", jobs.Job{PartID: 7}, true},
		{"other id", jobs.Job{PartID: 8, PartNumber: "BRK-100"}, false},
		{"by number", jobs.Job{PartNumber: "BRK-100"}, true},
		{"number with suffix", jobs.Job{PartNumber: "brk-100-02"}, true},
		{"longer number", jobs.Job{PartNumber: "BRK-1000"}, false},
		{"nested suffix", jobs.Job{PartNumber: "BRK-100-02-A"}, false},
		{"name only", jobs.Job{Name: "Bracket rush"}, false},
	}
	for _, tc := range cases {
		if got := Matches(p, tc.job); got != tc.want {
			t.Fatalf("%s: Matches = %v, want %v", tc.name, got, tc.want)
		}
	}

	adHoc := parts.Part{Name: "Bracket"}
	if !Matches(adHoc, jobs.Job{Name: "bracket - rush order"}) {
		t.Fatalf("ad hoc part should match by name prefix")
	}
	if Matches(adHoc, jobs.Job{Name: "Hinge"}) {
		t.Fatalf("ad hoc part matched an unrelated job")
	}
}

func TestAnalyze(t *testing.T) {
	all := []jobs.Job{
		{ID: 1, PartID: 7, Status: jobs.StatusCompleted, DashQuantities: map[string]float64{"-01": 2, "-02": 2}},
		{ID: 2, PartNumber: "BRK-100-01", Status: jobs.StatusShipped, Quantity: "3 pcs", VariantSuffix: "-01", LaborHours: hours(6)},
		{ID: 3, PartID: 7, Status: jobs.StatusInProgress, Quantity: "10", LaborHours: hours(99)},
		{ID: 4, PartID: 7, Status: jobs.StatusDelivered, Quantity: "5"},
		{ID: 5, PartID: 7, Status: jobs.StatusCompleted, LaborHours: hours(3)},
		{ID: 6, PartID: 9, Status: jobs.StatusCompleted, Quantity: "1", LaborHours: hours(50)},
	}
	shifts := []jobs.Shift{
		shift(1, "2024-03-01T08:00:00Z", 5*time.Hour, 30),
		shift(1, "2024-03-02T08:00:00Z", 4*time.Hour+30*time.Minute, 0),
	}

	r := Analyze(bracket(), all, shifts)

	if len(r.Jobs) != 2 {
		t.Fatalf("expected two usable jobs, got %+v", r.Jobs)
	}
	if r.Jobs[0].Source != FromShifts || r.Jobs[1].Source != FromJob {
		t.Fatalf("unexpected hour sources: %+v", r.Jobs)
	}
	if len(r.Excluded) != 2 || r.Excluded[0] != 4 || r.Excluded[1] != 5 {
		t.Fatalf("Excluded = %v, want [4 5]", r.Excluded)
	}

	nearlyEqual(t, "totalActualHours", r.TotalActualHours, 15)
	nearlyEqual(t, "totalSets", r.TotalSets, 7)
	nearlyEqual(t, "averageHoursPerSet", r.AverageHoursPerSet, 2.14)
	nearlyEqual(t, "estimate", r.EstimatedHoursPerSet, 2)
	nearlyEqual(t, "variance", r.Variance, 0.14)
	nearlyEqual(t, "variancePercent", r.VariancePercent, 7)

	if len(r.Variants) != 2 {
		t.Fatalf("expected two variants, got %+v", r.Variants)
	}
	v1, v2 := r.Variants[0], r.Variants[1]
	if v1.Suffix != "-01" || v2.Suffix != "-02" {
		t.Fatalf("unexpected variant order: %+v", r.Variants)
	}
	// Job 1 splits 9 hours evenly; job 2 puts all 6 on -01.
	nearlyEqual(t, "-01 hours", v1.AllocatedHours, 10.5)
	nearlyEqual(t, "-01 units", v1.Units, 5)
	nearlyEqual(t, "-01 per unit", v1.HoursPerUnit, 2.1)
	nearlyEqual(t, "-01 estimate", v1.EstimatedPerUnit, 1)
	nearlyEqual(t, "-02 hours", v2.AllocatedHours, 4.5)
	nearlyEqual(t, "-02 estimate", v2.EstimatedPerUnit, 1.5)
	if v2.ContributingJobs != 1 {
		t.Fatalf("-02 contributing jobs = %d", v2.ContributingJobs)
	}
}

func TestAnalyze_NoEstimateNoVariance(t *testing.T) {
	p := bracket()
	p.LaborHours = parts.Auto()
	p.Variants[1].LaborHours = parts.Auto()

	r := Analyze(p, []jobs.Job{{ID: 1, PartID: 7, Status: jobs.StatusCompleted, Quantity: "2", LaborHours: hours(5)}}, nil)
	if r.HasEstimate || r.Variance != 0 {
		t.Fatalf("expected no estimate, got %+v", r)
	}
	nearlyEqual(t, "averageHoursPerSet", r.AverageHoursPerSet, 2.5)
}

func TestAnalyze_OpenShiftFallsBackToJobHours(t *testing.T) {
	in := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	open := jobs.Shift{JobID: 1, ClockIn: in}

	r := Analyze(bracket(), []jobs.Job{{ID: 1, PartID: 7, Status: jobs.StatusCompleted, Quantity: "1", LaborHours: hours(4)}}, []jobs.Shift{open})
	if len(r.Jobs) != 1 || r.Jobs[0].Source != FromJob {
		t.Fatalf("expected stored job hours, got %+v", r.Jobs)
	}
	nearlyEqual(t, "actual", r.Jobs[0].ActualHours, 4)
}
