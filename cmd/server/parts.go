package main

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Simplici0/shopworks/internal/allocation"
	"github.com/Simplici0/shopworks/internal/domain/parts"
	"github.com/Simplici0/shopworks/internal/feedback"
	"github.com/Simplici0/shopworks/internal/numeric"
	"github.com/Simplici0/shopworks/internal/pricing"
	"github.com/Simplici0/shopworks/internal/reconcile"
	"github.com/Simplici0/shopworks/internal/report"
	"github.com/Simplici0/shopworks/internal/requirements"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *server) handleListParts(w http.ResponseWriter, r *http.Request) {
	list, err := s.parts.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// sharedMaterialRequest is a material consumed once per set and split over
// the variants by composition.
type sharedMaterialRequest struct {
	StockItemID    int64   `json:"stockItemId"`
	QuantityPerSet float64 `json:"quantityPerSet"`
	Unit           string  `json:"unit"`
}

type createPartRequest struct {
	parts.Part
	SharedMaterials []sharedMaterialRequest `json:"sharedMaterials"`
}

func (s *server) handleCreatePart(w http.ResponseWriter, r *http.Request) {
	var req createPartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p := req.Part
	p.Number = strings.TrimSpace(p.Number)
	p.Name = strings.TrimSpace(p.Name)
	if p.Number == "" {
		writeError(w, http.StatusBadRequest, "partNumber is required")
		return
	}
	seen := make(map[string]bool, len(p.Variants))
	for _, v := range p.Variants {
		key := strings.ToLower(numeric.NormalizeSuffix(v.Suffix))
		if key == "" || seen[key] {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid or duplicate variant suffix %q", v.Suffix))
			return
		}
		seen[key] = true
	}
	for _, m := range req.SharedMaterials {
		if m.StockItemID <= 0 || m.QuantityPerSet <= 0 {
			writeError(w, http.StatusBadRequest, "shared materials need a stockItemId and a positive quantityPerSet")
			return
		}
		if len(p.Variants) == 0 {
			writeError(w, http.StatusBadRequest, "shared materials need at least one variant")
			return
		}
		allocation.ShareMaterial(&p, parts.Material{StockItemID: m.StockItemID, Unit: strings.TrimSpace(m.Unit)}, m.QuantityPerSet)
	}

	created, err := s.parts.Create(r.Context(), p)
	if err != nil {
		if isConstraint(err, "UNIQUE") {
			writeError(w, http.StatusConflict, fmt.Sprintf("part %s already exists", p.Number))
			return
		}
		s.fail(w, r, err)
		return
	}
	s.log.Info("part created", "part_id", created.ID, "part_number", created.Number, "variants", len(created.Variants))
	writeJSON(w, http.StatusCreated, created)
}

func (s *server) handleGetPart(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.parts.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type requirementsResponse struct {
	CompleteSets float64          `json:"completeSets"`
	Total        float64          `json:"total"`
	Requirements requirements.Map `json:"requirements"`
}

func (s *server) handleRequirements(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var order requirements.Order
	if err := decodeJSON(w, r, &order); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.parts.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, requirementsResponse{
		CompleteSets: requirements.CompleteSets(p, order),
		Total:        order.Total(),
		Requirements: requirements.Resolve(p, order),
	})
}

type partQuoteRequest struct {
	Quantity       float64  `json:"quantity"`
	MarkupPercent  *float64 `json:"markupPercent"`
	ManualSetPrice *float64 `json:"manualSetPrice"`
}

func (s *server) handlePartQuote(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req partQuoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := s.snapshot(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	q, ok := pricing.CalculatePartQuote(snap.Part, snap.Prices, snap.Rates, pricing.PartOptions{
		Quantity:       req.Quantity,
		MarkupPercent:  req.MarkupPercent,
		ManualSetPrice: req.ManualSetPrice,
	})
	if !ok {
		writeError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}
	s.metrics.ObserveQuote("part", q.IsReverseCalculated)
	writeJSON(w, http.StatusOK, q)
}

type variantQuoteRequest struct {
	Quantity    float64  `json:"quantity"`
	ManualPrice *float64 `json:"manualPrice"`
}

func (s *server) handleVariantQuote(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req variantQuoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := s.snapshot(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	suffix := chi.URLParam(r, "suffix")
	if _, ok := snap.Part.Variant(suffix); !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("variant %q not found", suffix))
		return
	}
	q, ok := pricing.CalculateVariantQuote(snap.Part, suffix, snap.Prices, snap.Rates, pricing.VariantOptions{
		Quantity:    req.Quantity,
		ManualPrice: req.ManualPrice,
	})
	if !ok {
		writeError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}
	s.metrics.ObserveQuote("variant", q.IsReverseCalculated)
	writeJSON(w, http.StatusOK, q)
}

type editRequest struct {
	Revision string `json:"revision"`
	Scope    string `json:"scope"`
	Suffix   string `json:"suffix"`
	Measure  string `json:"measure"`
	// Value is the manual value to set; null clears the field back to auto.
	Value *float64 `json:"value"`
	Apply bool     `json:"apply"`
}

type reconcileRequest struct {
	Revision string `json:"revision"`
	Apply    bool   `json:"apply"`
}

type planResponse struct {
	reconcile.Plan
	Applied     bool   `json:"applied"`
	NewRevision string `json:"newRevision,omitempty"`
}

func (s *server) handleEdit(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req editRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := s.snapshot(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	edit := reconcile.Edit{
		Scope:   reconcile.Scope(req.Scope),
		Suffix:  req.Suffix,
		Measure: parts.Measure(req.Measure),
		Value:   parts.Auto(),
	}
	if req.Value != nil {
		edit.Value = parts.Manual(*req.Value)
	}
	plan, err := s.reconciler.Apply(snap, edit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondPlan(w, r, "edit", plan, req.Revision, req.Apply)
}

func (s *server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req reconcileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := s.snapshot(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondPlan(w, r, "reconcile", s.reconciler.Reconcile(snap), req.Revision, req.Apply)
}

// respondPlan persists plan when apply is set. A revision supplied by the
// client must match the one the plan was computed from.
func (s *server) respondPlan(w http.ResponseWriter, r *http.Request, op string, plan reconcile.Plan, revision string, apply bool) {
	if revision != "" && revision != plan.Revision {
		s.fail(w, r, parts.ErrStaleRevision)
		return
	}
	resp := planResponse{Plan: plan}
	if apply && !plan.Empty() {
		next, err := s.parts.ApplyChanges(r.Context(), plan.Part.ID, plan.Revision, plan.Changes)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		resp.Applied = true
		resp.NewRevision = next
		resp.Part.Revision = next
		s.log.Info("plan applied",
			"op", op,
			"part_id", plan.Part.ID,
			"changes", len(plan.Changes),
			"revision", next,
		)
	}
	s.metrics.ObservePlan(op, len(plan.Changes), resp.Applied)
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleLaborFeedback(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()
	p, err := s.parts.Get(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	all, err := s.jobs.ListJobs(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var matched []int64
	for _, j := range all {
		if j.Status.Completed() && feedback.Matches(p, j) {
			matched = append(matched, j.ID)
		}
	}
	shifts, err := s.jobs.ListShifts(ctx, matched)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rep := feedback.Analyze(p, all, shifts)

	switch r.URL.Query().Get("format") {
	case "", "json":
		writeJSON(w, http.StatusOK, rep)
	case "xlsx":
		var buf bytes.Buffer
		if err := report.WriteLaborFeedback(&buf, rep); err != nil {
			s.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.FileName(rep, s.now())))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	default:
		writeError(w, http.StatusBadRequest, "format must be json or xlsx")
	}
}
