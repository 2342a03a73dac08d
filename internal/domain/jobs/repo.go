package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Repo struct{ db *sql.DB }

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) CreateJob(ctx context.Context, j Job) (Job, error) {
	dash, err := encodeDash(j.DashQuantities)
	if err != nil {
		return Job{}, err
	}
	var partID any
	if j.PartID > 0 {
		partID = j.PartID
	}
	var labor any
	if j.LaborHours != nil {
		labor = *j.LaborHours
	}
	if j.Status == "" {
		j.Status = StatusPending
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (name, part_id, part_number, variant_suffix, dash_quantities, quantity, status, labor_hours)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, j.Name, partID, j.PartNumber, j.VariantSuffix, dash, j.Quantity, string(j.Status), labor)
	if err != nil {
		return Job{}, fmt.Errorf("insert job: %w", err)
	}
	if j.ID, err = res.LastInsertId(); err != nil {
		return Job{}, fmt.Errorf("read job id: %w", err)
	}
	return j, nil
}

func (r *Repo) CreateShift(ctx context.Context, s Shift) (Shift, error) {
	var clockOut any
	if s.ClockOut != nil {
		clockOut = s.ClockOut.UTC().Format(time.RFC3339Nano)
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO shifts (job_id, user_id, clock_in, clock_out, break_minutes)
		VALUES (?, ?, ?, ?, ?)
	`, s.JobID, s.UserID, s.ClockIn.UTC().Format(time.RFC3339Nano), clockOut, s.BreakMinutes)
	if err != nil {
		return Shift{}, fmt.Errorf("insert shift: %w", err)
	}
	if s.ID, err = res.LastInsertId(); err != nil {
		return Shift{}, fmt.Errorf("read shift id: %w", err)
	}
	return s, nil
}

// ListJobs returns every job; callers filter by part and status.
func (r *Repo) ListJobs(ctx context.Context) ([]Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(part_id, 0), part_number, variant_suffix,
			COALESCE(dash_quantities, ''), quantity, status, labor_hours
		FROM jobs
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	out := make([]Job, 0)
	for rows.Next() {
		var (
			j      Job
			dash   string
			status string
			labor  sql.NullFloat64
		)
		if err := rows.Scan(&j.ID, &j.Name, &j.PartID, &j.PartNumber, &j.VariantSuffix, &dash, &j.Quantity, &status, &labor); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		j.Status = Status(status)
		if labor.Valid {
			v := labor.Float64
			j.LaborHours = &v
		}
		if j.DashQuantities, err = decodeDash(dash); err != nil {
			return nil, fmt.Errorf("job %d: %w", j.ID, err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return out, nil
}

// ListShifts returns the shifts recorded against the given jobs.
func (r *Repo) ListShifts(ctx context.Context, jobIDs []int64) ([]Shift, error) {
	if len(jobIDs) == 0 {
		return []Shift{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(jobIDs)), ",")
	args := make([]any, len(jobIDs))
	for i, id := range jobIDs {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, job_id, user_id, clock_in, clock_out, break_minutes
		FROM shifts
		WHERE job_id IN (`+placeholders+`)
		ORDER BY id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query shifts: %w", err)
	}
	defer rows.Close()

	out := make([]Shift, 0)
	for rows.Next() {
		var (
			s        Shift
			clockIn  string
			clockOut sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.JobID, &s.UserID, &clockIn, &clockOut, &s.BreakMinutes); err != nil {
			return nil, fmt.Errorf("scan shift: %w", err)
		}
		if s.ClockIn, err = parseTime(clockIn); err != nil {
			return nil, fmt.Errorf("shift %d clock_in: %w", s.ID, err)
		}
		if clockOut.Valid && clockOut.String != "" {
			t, err := parseTime(clockOut.String)
			if err != nil {
				return nil, fmt.Errorf("shift %d clock_out: %w", s.ID, err)
			}
			s.ClockOut = &t
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shifts: %w", err)
	}
	return out, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func parseTime(raw string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

func encodeDash(m map[string]float64) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode dash quantities: %w", err)
	}
	return string(raw), nil
}

func decodeDash(raw string) (map[string]float64, error) {
	if raw == "" {
		return nil, nil
	}
	var m map[string]float64
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("decode dash quantities: %w", err)
	}
	return m, nil
}
