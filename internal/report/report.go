// Package report renders labor feedback as an xlsx workbook.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Simplici0/shopworks/internal/feedback"
)

const (
	SummarySheet  = "Summary"
	JobsSheet     = "Jobs"
	VariantsSheet = "Variants"
)

// FileName builds the download name for a part's report.
func FileName(r feedback.Report, now time.Time) string {
	number := strings.NewReplacer("/", "_", " ", "_").Replace(strings.TrimSpace(r.PartNumber))
	if number == "" {
		number = "part"
	}
	return fmt.Sprintf("labor_feedback_%s_%s.xlsx", number, now.Format("20060102_150405"))
}

// WriteLaborFeedback writes a workbook with summary, per-job and per-variant
// sheets to w.
func WriteLaborFeedback(w io.Writer, r feedback.Report) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), SummarySheet); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	summary := [][]interface{}{
		{"part_number", r.PartNumber},
		{"part_name", r.PartName},
		{"estimated_hours_per_set", estimateCell(r.HasEstimate, r.EstimatedHoursPerSet)},
		{"jobs", len(r.Jobs)},
		{"excluded_jobs", len(r.Excluded)},
		{"total_actual_hours", r.TotalActualHours},
		{"total_sets", r.TotalSets},
		{"average_hours_per_set", r.AverageHoursPerSet},
		{"variance", r.Variance},
		{"variance_percent", r.VariancePercent},
	}
	if err := writeRows(f, SummarySheet, summary); err != nil {
		return err
	}

	jobRows := [][]interface{}{{"job_id", "name", "status", "actual_hours", "sets", "hours_per_set", "source"}}
	for _, j := range r.Jobs {
		jobRows = append(jobRows, []interface{}{
			j.JobID,
			j.Name,
			string(j.Status),
			j.ActualHours,
			j.Sets,
			j.HoursPerSet,
			string(j.Source),
		})
	}
	if err := newSheet(f, JobsSheet, jobRows); err != nil {
		return err
	}

	variantRows := [][]interface{}{{"suffix", "units", "allocated_hours", "hours_per_unit", "estimated_per_unit", "variance_per_unit", "jobs"}}
	for _, v := range r.Variants {
		variantRows = append(variantRows, []interface{}{
			v.Suffix,
			v.Units,
			v.AllocatedHours,
			v.HoursPerUnit,
			estimateCell(v.HasEstimate, v.EstimatedPerUnit),
			estimateCell(v.HasEstimate, v.VariancePerUnit),
			v.ContributingJobs,
		})
	}
	if err := newSheet(f, VariantsSheet, variantRows); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func estimateCell(ok bool, v float64) interface{} {
	if !ok {
		return ""
	}
	return v
}

func newSheet(f *excelize.File, sheet string, rows [][]interface{}) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheet, err)
	}
	return writeRows(f, sheet, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
