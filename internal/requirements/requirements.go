// Package requirements turns a part and order quantities into the stock drawn
// from inventory. It is the only place order quantities become stock quantities.
package requirements

import (
	"math"

	"github.com/Simplici0/shopworks/internal/domain/parts"
	"github.com/Simplici0/shopworks/internal/numeric"
)

// Requirement is the quantity of one stock item needed for an order.
type Requirement struct {
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

// Map is keyed by stock item id.
type Map map[int64]Requirement

func (m Map) add(stockItemID int64, qty float64, unit string) {
	if qty <= 0 {
		return
	}
	r := m[stockItemID]
	r.Quantity += qty
	if r.Unit == "" {
		r.Unit = unit
	}
	m[stockItemID] = r
}

// Order carries either per-variant ordered counts or a single total quantity.
type Order struct {
	DashQuantities map[string]float64 `json:"dashQuantities,omitempty"`
	Quantity       float64            `json:"quantity,omitempty"`
}

func (o Order) dash() map[string]float64 {
	out := make(map[string]float64, len(o.DashQuantities))
	for suffix, q := range o.DashQuantities {
		q = numeric.SafeQuantity(q)
		if q <= 0 {
			continue
		}
		out[numeric.NormalizeSuffix(suffix)] += q
	}
	return out
}

// Total is the sum of dash quantities, or Quantity when there are none.
func (o Order) Total() float64 {
	dash := o.dash()
	if len(dash) == 0 {
		return numeric.SafeQuantity(o.Quantity)
	}
	total := 0.0
	for _, q := range dash {
		total += q
	}
	return total
}

// CompleteSets returns how many whole sets an order contains. With a set
// composition it is the minimum over composition entries of
// floor(ordered / per-set); otherwise the order total.
func CompleteSets(p parts.Part, o Order) float64 {
	composition := p.SetComposition.Normalized()
	dash := o.dash()
	if len(composition) == 0 || len(dash) == 0 {
		return o.Total()
	}
	sets := math.Inf(1)
	for suffix, perSet := range composition {
		sets = math.Min(sets, math.Floor(dash[suffix]/float64(perSet)))
	}
	return numeric.SafeQuantity(sets)
}

// Resolve computes the stock required for an order. Variant-level materials
// are drawn per ordered variant unit, part-level per_set materials once per
// complete set. Untagged materials take the usage of the level they sit on.
// Entries that come to zero are omitted.
func Resolve(p parts.Part, o Order) Map {
	out := make(Map)
	for suffix, qty := range o.dash() {
		v, ok := p.Variant(suffix)
		if !ok {
			continue
		}
		addVariantMaterials(out, v, qty)
	}
	addSetMaterials(out, p, CompleteSets(p, o))
	return out
}

// ForSets computes the stock for n complete sets: every variant is drawn
// n × its composition count, and per_set materials n times. Parts without a
// composition count one unit of each variant per set.
func ForSets(p parts.Part, n float64) Map {
	n = numeric.SafeQuantity(n)
	out := make(Map)
	if n <= 0 {
		return out
	}
	composed := len(p.SetComposition.Normalized()) > 0
	for _, v := range p.Variants {
		count := 1
		if composed {
			count = p.SetComposition.Count(v.Suffix)
		}
		if count <= 0 {
			continue
		}
		addVariantMaterials(out, v, n*float64(count))
	}
	addSetMaterials(out, p, n)
	return out
}

// ForVariant computes the stock for n units of a single variant.
func ForVariant(v parts.Variant, n float64) Map {
	out := make(Map)
	addVariantMaterials(out, v, numeric.SafeQuantity(n))
	return out
}

func addVariantMaterials(out Map, v parts.Variant, qty float64) {
	if qty <= 0 {
		return
	}
	for _, m := range v.Materials {
		if m.Usage == parts.PerSet {
			continue
		}
		out.add(m.StockItemID, m.PerUnit()*qty, m.Unit)
	}
}

func addSetMaterials(out Map, p parts.Part, sets float64) {
	if sets <= 0 {
		return
	}
	for _, m := range p.Materials {
		if m.Usage == parts.PerVariant {
			continue
		}
		out.add(m.StockItemID, m.PerUnit()*sets, m.Unit)
	}
}
