// Package allocation keeps a part's set-level aggregate and its per-variant
// values proportional to the set composition. The same rule serves price,
// labor hours and machine hours.
package allocation

import (
	"github.com/Simplici0/shopworks/internal/domain/parts"
	"github.com/Simplici0/shopworks/internal/numeric"
)

// EffectiveComposition returns the part's normalized set composition, or one
// unit of each variant when none is defined.
func EffectiveComposition(p parts.Part) parts.Composition {
	if c := p.SetComposition.Normalized(); len(c) > 0 {
		return c
	}
	out := make(parts.Composition, len(p.Variants))
	for _, v := range p.Variants {
		out[numeric.NormalizeSuffix(v.Suffix)] = 1
	}
	return out
}

// Aggregate sums value × count over the suffixes present in both the
// composition and the variant list. It is undefined when any of those
// variants has no value or when nothing overlaps.
func Aggregate(p parts.Part, m parts.Measure) (float64, bool) {
	comp := EffectiveComposition(p)
	total := 0.0
	matched := 0
	for _, v := range p.Variants {
		q := comp[numeric.NormalizeSuffix(v.Suffix)]
		if q <= 0 {
			continue
		}
		value, ok := v.Field(m).Value()
		if !ok {
			return 0, false
		}
		total += value * float64(q)
		matched++
	}
	if matched == 0 {
		return 0, false
	}
	return numeric.Round2(total), true
}

// MissingVariants lists composition suffixes with no matching variant. They
// are ignored by Aggregate.
func MissingVariants(p parts.Part) []string {
	var missing []string
	for _, suffix := range p.SetComposition.Suffixes() {
		if p.VariantIndex(suffix) < 0 {
			missing = append(missing, suffix)
		}
	}
	return missing
}

// Distribute splits a target aggregate across the composition: each suffix
// accounts for round2(target / Σq × q) of one set. An empty composition
// yields nil.
func Distribute(target float64, comp parts.Composition) map[string]float64 {
	comp = comp.Normalized()
	rate, ok := UnitRate(target, comp)
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(comp))
	for suffix, q := range comp {
		out[suffix] = numeric.Round2(rate * float64(q))
	}
	return out
}

// UnitRate is the aggregate per unit in a set, target / Σq.
func UnitRate(target float64, comp parts.Composition) (float64, bool) {
	units := comp.Total()
	if units == 0 {
		return 0, false
	}
	return numeric.SafeQuantity(target) / float64(units), true
}

// UnitShare returns the per-unit value a variant takes from target: the
// suffix's share of one set divided by its count.
func UnitShare(target float64, comp parts.Composition, suffix string) (float64, bool) {
	comp = comp.Normalized()
	if comp[numeric.NormalizeSuffix(suffix)] <= 0 {
		return 0, false
	}
	rate, ok := UnitRate(target, comp)
	if !ok {
		return 0, false
	}
	return numeric.Round2(rate), true
}

// Proposals distributes target over the part's effective composition and
// keeps only the variants whose field is auto. Values are per unit so that
// Aggregate reproduces target. Manual variants are never proposed a value.
func Proposals(p parts.Part, m parts.Measure, target float64) map[string]float64 {
	comp := EffectiveComposition(p)
	out := make(map[string]float64, len(p.Variants))
	for _, v := range p.Variants {
		if v.Field(m).IsManual() {
			continue
		}
		share, ok := UnitShare(target, comp, v.Suffix)
		if !ok {
			continue
		}
		out[v.Suffix] = share
	}
	return out
}

// Unvalued reports whether no variant carries a value for m, which is the
// precondition for seeding.
func Unvalued(p parts.Part, m parts.Measure) bool {
	for _, v := range p.Variants {
		if v.Field(m).HasValue() {
			return false
		}
	}
	return len(p.Variants) > 0
}

// Seed proposes the same absolute value for every variant without a value,
// except the one named by from.
func Seed(p parts.Part, m parts.Measure, from string, value float64) map[string]float64 {
	out := make(map[string]float64)
	for _, v := range p.Variants {
		if numeric.SameSuffix(v.Suffix, from) || v.Field(m).HasValue() {
			continue
		}
		out[v.Suffix] = numeric.SafeQuantity(value)
	}
	return out
}

// DistributeEvenly gives every included suffix the same per-unit quantity
// total / Σq. The per-unit amount is not weighted; weighting happens when
// requirements multiply by ordered quantity.
func DistributeEvenly(total float64, comp parts.Composition) map[string]float64 {
	comp = comp.Normalized()
	units := comp.Total()
	if units == 0 {
		return nil
	}
	perUnit := numeric.SafeQuantity(total) / float64(units)
	out := make(map[string]float64, len(comp))
	for suffix := range comp {
		out[suffix] = perUnit
	}
	return out
}

// ShareMaterial spreads total units of a material shared by one set over the
// variants of the effective composition. Each variant gets a per_variant line
// of total / Σq per unit, so one complete set draws total.
func ShareMaterial(p *parts.Part, m parts.Material, total float64) {
	for suffix, perUnit := range DistributeEvenly(total, EffectiveComposition(*p)) {
		i := p.VariantIndex(suffix)
		if i < 0 || perUnit <= 0 {
			continue
		}
		line := m
		q := perUnit
		line.QuantityPerUnit = &q
		line.Quantity = nil
		line.Usage = parts.PerVariant
		p.Variants[i].Materials = append(p.Variants[i].Materials, line)
	}
}

// ResolvedValue is the value a variant effectively has for m: its own value
// when present, otherwise its share of a valued part aggregate.
func ResolvedValue(p parts.Part, m parts.Measure, suffix string) (float64, bool) {
	v, ok := p.Variant(suffix)
	if !ok {
		return 0, false
	}
	if value, ok := v.Field(m).Value(); ok {
		return value, true
	}
	aggregate, ok := p.Field(m).Value()
	if !ok {
		return 0, false
	}
	return UnitShare(aggregate, EffectiveComposition(p), suffix)
}
