package pricing

import (
	"math"
	"sort"

	"github.com/Simplici0/shopworks/internal/allocation"
	"github.com/Simplici0/shopworks/internal/domain/inventory"
	"github.com/Simplici0/shopworks/internal/domain/parts"
	"github.com/Simplici0/shopworks/internal/domain/rates"
	"github.com/Simplici0/shopworks/internal/numeric"
	"github.com/Simplici0/shopworks/internal/requirements"
)

// DefaultMaterialMultiplier is applied to internal material cost when the rate
// card leaves it unset.
const DefaultMaterialMultiplier = 1.25

// PartOptions are the caller inputs for a set-level quote.
type PartOptions struct {
	Quantity float64
	// MarkupPercent overrides the rate card markup when set.
	MarkupPercent *float64
	// ManualSetPrice is a target total that switches the quote to reverse mode.
	ManualSetPrice *float64
}

// VariantOptions are the caller inputs for a single-variant quote.
type VariantOptions struct {
	Quantity    float64
	ManualPrice *float64
}

// MaterialLine is one costed stock draw.
type MaterialLine struct {
	StockItemID int64   `json:"stockItemId"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
	UnitPrice   float64 `json:"unitPrice"`
	Cost        float64 `json:"cost"`
	Unpriced    bool    `json:"unpriced,omitempty"`
}

// Breakdown contains all intermediate and line-item values of a quote.
type Breakdown struct {
	MaterialCostInternal float64 `json:"materialCostInternal"`
	MaterialCostCustomer float64 `json:"materialCostCustomer"`
	LaborHours           float64 `json:"laborHours"`
	LaborCost            float64 `json:"laborCost"`
	CNCHours             float64 `json:"cncHours"`
	CNCCost              float64 `json:"cncCost"`
	PrintHours           float64 `json:"printHours"`
	PrintCost            float64 `json:"printCost"`
	MachineCost          float64 `json:"machineCost"`
	Subtotal             float64 `json:"subtotal"`
	MarkupPercent        float64 `json:"markupPercent"`
	MarkupAmount         float64 `json:"markupAmount"`
}

// Quote groups the pricing output. LaborHoursPerUnit is the labor per set or
// per variant unit that produced the quote, which in reverse mode is the
// implied value.
type Quote struct {
	Quantity            float64        `json:"quantity"`
	Materials           []MaterialLine `json:"materials"`
	Breakdown           Breakdown      `json:"breakdown"`
	Total               float64        `json:"total"`
	LaborHoursPerUnit   float64        `json:"laborHoursPerUnit"`
	IsReverseCalculated bool           `json:"isReverseCalculated"`
	IsLaborAutoAdjusted bool           `json:"isLaborAutoAdjusted"`
}

// input is the unit-independent description shared by part and variant quotes.
type input struct {
	quantity     float64
	materials    requirements.Map
	laborPerUnit float64
	cncPerUnit   float64
	printPerUnit float64
	markup       float64
	target       *float64
}

// CalculatePartQuote prices n complete sets of p. It returns false when the
// quantity is not positive.
func CalculatePartQuote(p parts.Part, prices inventory.PriceList, rc rates.Config, opts PartOptions) (Quote, bool) {
	n := numeric.SafeQuantity(opts.Quantity)
	if n <= 0 {
		return Quote{}, false
	}
	in := input{
		quantity:     n,
		materials:    requirements.ForSets(p, n),
		laborPerUnit: perSet(p, parts.Labor),
		markup:       rc.MarkupPercent,
		target:       opts.ManualSetPrice,
	}
	if p.CNC {
		in.cncPerUnit = perSet(p, parts.CNCTime)
	}
	if p.Printer3D {
		in.printPerUnit = perSet(p, parts.PrintTime)
	}
	if opts.MarkupPercent != nil {
		in.markup = *opts.MarkupPercent
	}
	return calculate(in, prices, rc), true
}

// CalculateVariantQuote prices n units of one variant: materials and labor
// only, without machine time or markup. An auto variant takes its share of
// the part labor.
func CalculateVariantQuote(p parts.Part, suffix string, prices inventory.PriceList, rc rates.Config, opts VariantOptions) (Quote, bool) {
	n := numeric.SafeQuantity(opts.Quantity)
	v, ok := p.Variant(suffix)
	if n <= 0 || !ok {
		return Quote{}, false
	}
	labor, _ := allocation.ResolvedValue(p, parts.Labor, v.Suffix)
	in := input{
		quantity:     n,
		materials:    requirements.ForVariant(v, n),
		laborPerUnit: labor,
		target:       opts.ManualPrice,
	}
	return calculate(in, prices, rc), true
}

// perSet resolves hours per set for a measure: a manual part value wins,
// then the forward aggregate of the variants, then any derived part value.
func perSet(p parts.Part, m parts.Measure) float64 {
	f := p.Field(m)
	if f.IsManual() {
		return f.Or(0)
	}
	if agg, ok := allocation.Aggregate(p, m); ok {
		return agg
	}
	return f.Or(0)
}

func calculate(in input, prices inventory.PriceList, rc rates.Config) Quote {
	lines, internal := costMaterials(in.materials, prices)
	multiplier := rc.MaterialMultiplier
	if multiplier <= 0 {
		multiplier = DefaultMaterialMultiplier
	}
	laborRate := numeric.SafeQuantity(rc.LaborRate)
	markup := numeric.SafeQuantity(in.markup)

	b := Breakdown{
		MaterialCostInternal: internal,
		MaterialCostCustomer: internal * multiplier,
		CNCHours:             numeric.SafeQuantity(in.cncPerUnit) * in.quantity,
		PrintHours:           numeric.SafeQuantity(in.printPerUnit) * in.quantity,
		MarkupPercent:        markup,
	}
	b.CNCCost = b.CNCHours * numeric.SafeQuantity(rc.CNCRate)
	b.PrintCost = b.PrintHours * numeric.SafeQuantity(rc.PrinterRate)
	b.MachineCost = b.CNCCost + b.PrintCost

	laborPerUnit := numeric.SafeQuantity(in.laborPerUnit)
	reverse := in.target != nil && laborRate > 0
	if reverse {
		// Solve against the pre-markup base so the marked-up total hits the target.
		base := numeric.SafeQuantity(*in.target) / (1 + markup/100)
		hours := math.Max(0, (base-b.MaterialCostCustomer-b.MachineCost)/laborRate)
		laborPerUnit = hours / in.quantity
	}

	b.LaborHours = laborPerUnit * in.quantity
	b.LaborCost = b.LaborHours * laborRate
	b.Subtotal = b.MaterialCostCustomer + b.LaborCost + b.MachineCost
	b.MarkupAmount = b.Subtotal * markup / 100

	return Quote{
		Quantity:            in.quantity,
		Materials:           lines,
		Breakdown:           roundBreakdown(b),
		Total:               numeric.Round2(b.Subtotal + b.MarkupAmount),
		LaborHoursPerUnit:   laborPerUnit,
		IsReverseCalculated: reverse,
		IsLaborAutoAdjusted: reverse,
	}
}

func costMaterials(req requirements.Map, prices inventory.PriceList) ([]MaterialLine, float64) {
	ids := make([]int64, 0, len(req))
	for id := range req {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	lines := make([]MaterialLine, 0, len(ids))
	total := 0.0
	for _, id := range ids {
		r := req[id]
		price, ok := prices.Price(id)
		price = numeric.SafeQuantity(price)
		cost := r.Quantity * price
		total += cost
		lines = append(lines, MaterialLine{
			StockItemID: id,
			Quantity:    r.Quantity,
			Unit:        r.Unit,
			UnitPrice:   price,
			Cost:        numeric.Round2(cost),
			Unpriced:    !ok,
		})
	}
	return lines, total
}

func roundBreakdown(b Breakdown) Breakdown {
	return Breakdown{
		MaterialCostInternal: numeric.Round2(b.MaterialCostInternal),
		MaterialCostCustomer: numeric.Round2(b.MaterialCostCustomer),
		LaborHours:           b.LaborHours,
		LaborCost:            numeric.Round2(b.LaborCost),
		CNCHours:             b.CNCHours,
		CNCCost:              numeric.Round2(b.CNCCost),
		PrintHours:           b.PrintHours,
		PrintCost:            numeric.Round2(b.PrintCost),
		MachineCost:          numeric.Round2(b.MachineCost),
		Subtotal:             numeric.Round2(b.Subtotal),
		MarkupPercent:        b.MarkupPercent,
		MarkupAmount:         numeric.Round2(b.MarkupAmount),
	}
}
