// Package reconcile keeps a part's aggregate fields and its variants consistent
// after an edit. It works on a snapshot and returns a plan of field changes;
// the caller persists the plan against the snapshot's revision.
package reconcile

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/Simplici0/shopworks/internal/allocation"
	"github.com/Simplici0/shopworks/internal/domain/inventory"
	"github.com/Simplici0/shopworks/internal/domain/parts"
	"github.com/Simplici0/shopworks/internal/domain/rates"
	"github.com/Simplici0/shopworks/internal/numeric"
	"github.com/Simplici0/shopworks/internal/pricing"
)

var (
	ErrUnknownVariant = errors.New("unknown variant")
	ErrInvalidEdit    = errors.New("invalid edit")
)

type Scope string

const (
	ScopePart    Scope = "part"
	ScopeVariant Scope = "variant"
)

// Edit is one user change. A manual Value sets the field; an auto Value
// clears it back to derived.
type Edit struct {
	Scope   Scope
	Suffix  string
	Measure parts.Measure
	Value   parts.Field
}

func (e Edit) validate() error {
	if _, ok := parts.ParseMeasure(string(e.Measure)); !ok {
		return fmt.Errorf("%w: unknown measure %q", ErrInvalidEdit, e.Measure)
	}
	switch e.Scope {
	case ScopePart:
	case ScopeVariant:
		if numeric.NormalizeSuffix(e.Suffix) == "" {
			return fmt.Errorf("%w: variant edit without suffix", ErrInvalidEdit)
		}
	default:
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidEdit, e.Scope)
	}
	return nil
}

// Snapshot is everything a reconciliation reads. Part must be freshly loaded;
// its Revision is carried into the plan.
type Snapshot struct {
	Part   parts.Part
	Prices inventory.PriceList
	Rates  rates.Config
}

// Mismatch reports an aggregate that disagrees with the sum of its variants.
type Mismatch struct {
	Measure      parts.Measure `json:"measure"`
	Aggregate    float64       `json:"aggregate"`
	VariantTotal float64       `json:"variantTotal"`
	Difference   float64       `json:"difference"`
}

type Plan struct {
	Revision   string         `json:"revision"`
	Part       parts.Part     `json:"part"`
	Changes    []parts.Change `json:"changes"`
	Mismatches []Mismatch     `json:"mismatches,omitempty"`
	Warnings   []string       `json:"warnings,omitempty"`
}

// Empty reports whether the plan writes nothing.
func (p Plan) Empty() bool { return len(p.Changes) == 0 }

type Reconciler struct {
	log *slog.Logger
}

// New returns a Reconciler. A nil logger discards output.
func New(log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reconciler{log: log}
}

// Apply plans the consequences of a single edit.
//
// A variant edit sets that variant, seeds the other variants when it is the
// first price on the part, and recomputes the aggregate when every variant in
// the composition has a value. Replacing a manual aggregate that way is
// reported as a warning. A cleared variant takes a share of the aggregate only
// when the aggregate is manual. A part edit sets the aggregate and redistributes
// it to auto variants only; manual variants keep their values and any
// disagreement is reported as a mismatch.
func (r *Reconciler) Apply(s Snapshot, e Edit) (Plan, error) {
	if err := e.validate(); err != nil {
		return Plan{}, err
	}
	next := s.Part.Clone()
	skip := map[parts.Measure]bool{}
	var warnings []string

	switch e.Scope {
	case ScopeVariant:
		i := next.VariantIndex(e.Suffix)
		if i < 0 {
			return Plan{}, fmt.Errorf("%w: %q on part %s", ErrUnknownVariant, e.Suffix, next.Number)
		}
		if replaced, ok := applyLeaf(&next, i, e); ok {
			r.log.Warn("manual aggregate replaced by variant total",
				"part", next.Number,
				"measure", e.Measure,
				"manual", replaced,
			)
			warnings = append(warnings, fmt.Sprintf("manual %s %.2f replaced by variant total", e.Measure, replaced))
		}
	case ScopePart:
		applyRoot(&next, e)
		skip[e.Measure] = true
	}

	r.settle(s, &next, skip)
	plan := r.plan(s, next)
	plan.Warnings = append(warnings, plan.Warnings...)
	return plan, nil
}

// Reconcile runs a pass without an edit. Running it on its own result
// produces no changes.
func (r *Reconciler) Reconcile(s Snapshot) Plan {
	next := s.Part.Clone()
	r.settle(s, &next, nil)
	return r.plan(s, next)
}

// applyLeaf writes a variant edit and refreshes the aggregate. When that
// refresh replaces a manual aggregate it returns the replaced value.
func applyLeaf(p *parts.Part, i int, e Edit) (float64, bool) {
	m := e.Measure
	suffix := p.Variants[i].Suffix
	unpriced := m == parts.Price && allocation.Unvalued(*p, parts.Price)

	if value, ok := e.Value.Value(); ok && e.Value.IsManual() {
		p.Variants[i].SetField(m, parts.Manual(value))
	} else {
		// A derived aggregate was summed from this variant, so only a manual
		// one can hand it a share.
		p.Variants[i].SetField(m, parts.Auto())
		if p.Field(m).IsManual() {
			if share, ok := allocation.ResolvedValue(*p, m, suffix); ok {
				p.Variants[i].SetField(m, parts.Derived(share))
			}
		}
	}
	if m == parts.Labor {
		p.Variants[i].LaborAutoAdjusted = false
	}

	if unpriced && e.Value.IsManual() {
		value, _ := e.Value.Value()
		for sfx, v := range allocation.Seed(*p, parts.Price, suffix, value) {
			p.Variants[p.VariantIndex(sfx)].PricePerVariant = parts.Manual(v)
		}
	}

	agg, ok := allocation.Aggregate(*p, m)
	if !ok {
		return 0, false
	}
	cur, has := p.Field(m).Value()
	if has && math.Abs(cur-agg) <= numeric.Tolerance {
		return 0, false
	}
	manual := p.Field(m).IsManual()
	p.SetField(m, parts.Derived(agg))
	return cur, manual
}

func applyRoot(p *parts.Part, e Edit) {
	m := e.Measure
	value, ok := e.Value.Value()
	if !ok || !e.Value.IsManual() {
		p.SetField(m, parts.Auto())
		if agg, ok := allocation.Aggregate(*p, m); ok {
			p.SetField(m, parts.Derived(agg))
		}
		return
	}
	p.SetField(m, parts.Manual(value))
	for sfx, v := range allocation.Proposals(*p, m, value) {
		p.Variants[p.VariantIndex(sfx)].SetField(m, parts.Derived(v))
	}
}

// settle derives labor from manual variant prices, then refreshes every
// non-manual aggregate from its variants. Measures in skip keep their
// aggregate as edited.
func (r *Reconciler) settle(s Snapshot, p *parts.Part, skip map[parts.Measure]bool) {
	r.adjustLabor(s, p)
	for _, m := range parts.Measures {
		if skip[m] || p.Field(m).IsManual() {
			continue
		}
		agg, ok := allocation.Aggregate(*p, m)
		if !ok {
			continue
		}
		if cur, has := p.Field(m).Value(); !has || math.Abs(cur-agg) > numeric.Tolerance {
			p.SetField(m, parts.Derived(agg))
		}
	}
}

// adjustLabor sets the labor of each manually priced variant to the hours its
// price implies, unless a user entered that labor by hand.
func (r *Reconciler) adjustLabor(s Snapshot, p *parts.Part) {
	for i := range p.Variants {
		v := p.Variants[i]
		price, ok := v.PricePerVariant.Value()
		if !ok || !v.PricePerVariant.IsManual() {
			continue
		}
		if v.LaborHours.IsManual() && !v.LaborAutoAdjusted {
			continue
		}
		q, ok := pricing.CalculateVariantQuote(*p, v.Suffix, s.Prices, s.Rates, pricing.VariantOptions{
			Quantity:    1,
			ManualPrice: &price,
		})
		if !ok || !q.IsReverseCalculated {
			continue
		}
		implied := numeric.Round2(q.LaborHoursPerUnit)
		if cur, has := v.LaborHours.Value(); has && math.Abs(cur-implied) <= numeric.Tolerance {
			continue
		}
		r.log.Debug("labor implied by variant price",
			"part", p.Number,
			"suffix", v.Suffix,
			"price", price,
			"labor_hours", implied,
		)
		p.Variants[i].LaborHours = parts.Manual(implied)
		p.Variants[i].LaborAutoAdjusted = true
	}
}

func (r *Reconciler) plan(s Snapshot, next parts.Part) Plan {
	out := Plan{
		Revision: s.Part.Revision,
		Part:     next,
		Changes:  parts.Diff(s.Part, next),
	}
	for _, m := range parts.Measures {
		aggregate, ok := next.Field(m).Value()
		if !ok {
			continue
		}
		total, ok := allocation.Aggregate(next, m)
		if !ok || math.Abs(aggregate-total) <= numeric.Tolerance {
			continue
		}
		out.Mismatches = append(out.Mismatches, Mismatch{
			Measure:      m,
			Aggregate:    aggregate,
			VariantTotal: total,
			Difference:   numeric.Round2(aggregate - total),
		})
	}
	for _, suffix := range allocation.MissingVariants(next) {
		r.log.Warn("set composition entry has no variant",
			"part", next.Number,
			"suffix", suffix,
		)
		out.Warnings = append(out.Warnings, fmt.Sprintf("set composition entry %q has no variant", suffix))
	}
	return out
}
