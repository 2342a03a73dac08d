package main

import (
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/Simplici0/shopworks/internal/domain/jobs"
	"github.com/Simplici0/shopworks/internal/domain/rates"
)

func (s *server) handleGetRates(w http.ResponseWriter, r *http.Request) {
	rc, err := s.rates.Get(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rc)
}

func (s *server) handleUpdateRates(w http.ResponseWriter, r *http.Request) {
	var rc rates.Config
	if err := decodeJSON(w, r, &rc); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateRates(rc); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rc.Currency = strings.ToUpper(strings.TrimSpace(rc.Currency))
	if err := s.rates.Update(r.Context(), rc); err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("rate card updated",
		"labor_rate", rc.LaborRate,
		"cnc_rate", rc.CNCRate,
		"printer_rate", rc.PrinterRate,
		"material_multiplier", rc.MaterialMultiplier,
		"markup_percent", rc.MarkupPercent,
	)
	stored, err := s.rates.Get(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func validateRates(rc rates.Config) error {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"laborRate", rc.LaborRate},
		{"cncRate", rc.CNCRate},
		{"printerRate", rc.PrinterRate},
		{"markupPercent", rc.MarkupPercent},
	} {
		if err := nonNegative(f.value, f.name); err != nil {
			return err
		}
	}
	return positive(rc.MaterialMultiplier, "materialMultiplier")
}

func nonNegative(v float64, field string) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s must be a number", field)
	}
	if v < 0 {
		return fmt.Errorf("%s must be >= 0", field)
	}
	return nil
}

func positive(v float64, field string) error {
	if err := nonNegative(v, field); err != nil {
		return err
	}
	if v == 0 {
		return fmt.Errorf("%s must be > 0", field)
	}
	return nil
}

func (s *server) handleListStockItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.inventory.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

type stockItemRequest struct {
	Name      string  `json:"name"`
	Unit      string  `json:"unit"`
	UnitPrice float64 `json:"unitPrice"`
}

func (s *server) handleCreateStockItem(w http.ResponseWriter, r *http.Request) {
	var req stockItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := nonNegative(req.UnitPrice, "unitPrice"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	item, err := s.inventory.Create(r.Context(), req.Name, strings.TrimSpace(req.Unit), req.UnitPrice)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

type stockPriceRequest struct {
	UnitPrice float64 `json:"unitPrice"`
}

func (s *server) handleUpdateStockPrice(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req stockPriceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := nonNegative(req.UnitPrice, "unitPrice"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.inventory.UpdatePrice(r.Context(), id, req.UnitPrice); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var j jobs.Job
	if err := decodeJSON(w, r, &j); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	j.Name = strings.TrimSpace(j.Name)
	if j.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if j.LaborHours != nil {
		if err := nonNegative(*j.LaborHours, "laborHours"); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	created, err := s.jobs.CreateJob(r.Context(), j)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type shiftRequest struct {
	UserID       int64      `json:"userId"`
	ClockIn      time.Time  `json:"clockIn"`
	ClockOut     *time.Time `json:"clockOut"`
	BreakMinutes float64    `json:"breakMinutes"`
}

func (s *server) handleCreateShift(w http.ResponseWriter, r *http.Request) {
	jobID, err := parseID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req shiftRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ClockIn.IsZero() {
		writeError(w, http.StatusBadRequest, "clockIn is required")
		return
	}
	if req.ClockOut != nil && !req.ClockOut.After(req.ClockIn) {
		writeError(w, http.StatusBadRequest, "clockOut must be after clockIn")
		return
	}
	if err := nonNegative(req.BreakMinutes, "breakMinutes"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := s.jobs.CreateShift(r.Context(), jobs.Shift{
		JobID:        jobID,
		UserID:       req.UserID,
		ClockIn:      req.ClockIn,
		ClockOut:     req.ClockOut,
		BreakMinutes: req.BreakMinutes,
	})
	if err != nil {
		if isConstraint(err, "FOREIGN KEY") {
			writeError(w, http.StatusNotFound, fmt.Sprintf("job %d not found", jobID))
			return
		}
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}
