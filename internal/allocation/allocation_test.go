package allocation

import (
	"math"
	"testing"

	"github.com/Simplici0/shopworks/internal/domain/parts"
)

func nearlyEqual(a, b float64) bool {
	return math.Abs(a-b) <= 0.01
}

func fourVariantPart() parts.Part {
	return parts.Part{
		Number:         "KIT-4",
		SetComposition: parts.Composition{"s1": 1, "s2": 1, "s3": 1, "s4": 1},
		Variants: []parts.Variant{
			{Suffix: "s1"}, {Suffix: "s2"}, {Suffix: "s3"}, {Suffix: "s4"},
		},
	}
}

func TestEffectiveComposition_FallsBackToOnePerVariant(t *testing.T) {
	p := parts.Part{Variants: []parts.Variant{{Suffix: "-01"}, {Suffix: "02"}}}

	comp := EffectiveComposition(p)
	if len(comp) != 2 || comp["01"] != 1 || comp["02"] != 1 {
		t.Fatalf("unexpected fallback composition: %+v", comp)
	}

	p.SetComposition = parts.Composition{"-01": 3}
	comp = EffectiveComposition(p)
	if len(comp) != 1 || comp["01"] != 3 {
		t.Fatalf("explicit composition should win: %+v", comp)
	}
}

func TestAggregate(t *testing.T) {
	p := parts.Part{
		SetComposition: parts.Composition{"-01": 1, "-02": 2},
		Variants: []parts.Variant{
			{Suffix: "-01", PricePerVariant: parts.Manual(10)},
			{Suffix: "02", PricePerVariant: parts.Derived(4.5)},
		},
	}

	got, ok := Aggregate(p, parts.Price)
	if !ok || !nearlyEqual(got, 19) {
		t.Fatalf("Aggregate = %v, %v; want 19", got, ok)
	}

	p.Variants[1].PricePerVariant = parts.Auto()
	if _, ok := Aggregate(p, parts.Price); ok {
		t.Fatalf("expected undefined aggregate when a variant is unset")
	}
}

func TestAggregate_IgnoresMissingCompositionVariants(t *testing.T) {
	p := parts.Part{
		SetComposition: parts.Composition{"01": 1, "99": 5},
		Variants:       []parts.Variant{{Suffix: "01", LaborHours: parts.Manual(2)}},
	}

	got, ok := Aggregate(p, parts.Labor)
	if !ok || !nearlyEqual(got, 2) {
		t.Fatalf("Aggregate = %v, %v; want 2", got, ok)
	}
	missing := MissingVariants(p)
	if len(missing) != 1 || missing[0] != "99" {
		t.Fatalf("MissingVariants = %v", missing)
	}

	p.Variants = nil
	if _, ok := Aggregate(p, parts.Labor); ok {
		t.Fatalf("expected undefined aggregate without overlap")
	}
}

func TestDistribute(t *testing.T) {
	got := Distribute(100, parts.Composition{"-01": 1, "-02": 2})
	if !nearlyEqual(got["01"], 33.33) || !nearlyEqual(got["02"], 66.67) {
		t.Fatalf("Distribute = %+v", got)
	}
	if Distribute(10, nil) != nil {
		t.Fatalf("expected nil for empty composition")
	}
}

func TestProposals_PerUnitKeepsAggregate(t *testing.T) {
	p := parts.Part{
		SetComposition: parts.Composition{"-01": 1, "-02": 2},
		Variants:       []parts.Variant{{Suffix: "-01"}, {Suffix: "-02"}},
	}

	proposals := Proposals(p, parts.Labor, 9)
	if !nearlyEqual(proposals["-01"], 3) || !nearlyEqual(proposals["-02"], 3) {
		t.Fatalf("Proposals = %+v, want 3 per unit", proposals)
	}
	p = applyProposals(p, parts.Labor, proposals)
	if got, ok := Aggregate(p, parts.Labor); !ok || !nearlyEqual(got, 9) {
		t.Fatalf("Aggregate after proposals = %v, %v; want 9", got, ok)
	}
}

func TestRoundTrip_AggregateDistributeAggregate(t *testing.T) {
	cases := []struct {
		name string
		comp parts.Composition
		vals map[string]float64
	}{
		{"uniform", parts.Composition{"01": 1, "02": 1, "03": 1}, map[string]float64{"01": 5, "02": 5, "03": 5}},
		{"weighted", parts.Composition{"01": 1, "02": 2}, map[string]float64{"01": 12.5, "02": 12.5}},
		{"single", parts.Composition{"A": 4}, map[string]float64{"A": 7.25}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := parts.Part{SetComposition: tc.comp}
			for suffix, v := range tc.vals {
				p.Variants = append(p.Variants, parts.Variant{Suffix: suffix, PricePerVariant: parts.Derived(v)})
			}

			aggregate, ok := Aggregate(p, parts.Price)
			if !ok {
				t.Fatalf("aggregate undefined")
			}
			for i := range p.Variants {
				p.Variants[i].PricePerVariant = parts.Auto()
			}
			shares := Proposals(p, parts.Price, aggregate)
			for suffix, want := range tc.vals {
				if !nearlyEqual(shares[suffix], want) {
					t.Fatalf("share[%s] = %v, want %v", suffix, shares[suffix], want)
				}
			}
			for i := range p.Variants {
				p.Variants[i].PricePerVariant = parts.Derived(shares[p.Variants[i].Suffix])
			}
			again, _ := Aggregate(p, parts.Price)
			if !nearlyEqual(again, aggregate) {
				t.Fatalf("round trip aggregate = %v, want %v", again, aggregate)
			}
		})
	}
}

func TestProposals_LeaveManualVariantsAlone(t *testing.T) {
	p := fourVariantPart()
	p.Variants[1].PricePerVariant = parts.Manual(300)

	for _, target := range []float64{400, 1000, 12} {
		proposals := Proposals(p, parts.Price, target)
		if _, ok := proposals["s2"]; ok {
			t.Fatalf("manual variant received a proposal for target %v", target)
		}
		if len(proposals) != 3 || !nearlyEqual(proposals["s1"], target/4) {
			t.Fatalf("Proposals(%v) = %+v", target, proposals)
		}
		p = applyProposals(p, parts.Price, proposals)
	}
	if v, _ := p.Variants[1].PricePerVariant.Value(); v != 300 {
		t.Fatalf("manual variant changed to %v", v)
	}
}

func TestSeedingExample(t *testing.T) {
	p := fourVariantPart()
	if !Unvalued(p, parts.Price) {
		t.Fatalf("expected part to be unvalued before the first price")
	}
	p.Variants[0].PricePerVariant = parts.Manual(205)

	seeded := Seed(p, parts.Price, "s1", 205)
	if len(seeded) != 3 {
		t.Fatalf("Seed = %+v, want three seeded variants", seeded)
	}
	for suffix, v := range seeded {
		i := p.VariantIndex(suffix)
		p.Variants[i].PricePerVariant = parts.Manual(v)
	}

	aggregate, ok := Aggregate(p, parts.Price)
	if !ok || !nearlyEqual(aggregate, 820) {
		t.Fatalf("aggregate after seeding = %v, want 820", aggregate)
	}

	p.Variants[3].PricePerVariant = parts.Manual(220)
	if Unvalued(p, parts.Price) || len(Seed(p, parts.Price, "s4", 220)) != 0 {
		t.Fatalf("valued variants must never be re-seeded")
	}
	aggregate, _ = Aggregate(p, parts.Price)
	if !nearlyEqual(aggregate, 835) {
		t.Fatalf("aggregate after override = %v, want 835", aggregate)
	}
}

func TestDistributeEvenly(t *testing.T) {
	comp := parts.Composition{"-01": 1, "-02": 2, "-03": 1}

	got := DistributeEvenly(12, comp)
	for _, suffix := range []string{"01", "02", "03"} {
		if !nearlyEqual(got[suffix], 3) {
			t.Fatalf("DistributeEvenly[%s] = %v, want 3", suffix, got[suffix])
		}
	}
}

func TestDistributeEvenly_SumsToTotal(t *testing.T) {
	comps := []parts.Composition{
		{"01": 1},
		{"01": 1, "02": 2, "03": 1},
		{"A": 3, "B": 7},
		{"x": 1, "y": 1, "z": 1},
	}
	for _, comp := range comps {
		for _, total := range []float64{1, 10, 12.34, 1000} {
			per := DistributeEvenly(total, comp)
			sum := 0.0
			for suffix, q := range comp {
				sum += per[suffix] * float64(q)
			}
			if !nearlyEqual(sum, total) {
				t.Fatalf("sum %v != total %v for %+v", sum, total, comp)
			}
		}
	}
}

func TestShareMaterial(t *testing.T) {
	p := parts.Part{
		SetComposition: parts.Composition{"-01": 1, "-02": 2, "-03": 1, "-09": 4},
		Variants:       []parts.Variant{{Suffix: "-01"}, {Suffix: "-02"}, {Suffix: "-03"}},
	}

	ShareMaterial(&p, parts.Material{StockItemID: 5, Unit: "m", Usage: parts.PerSet}, 24)

	for _, v := range p.Variants {
		if len(v.Materials) != 1 {
			t.Fatalf("%s: expected one shared line, got %+v", v.Suffix, v.Materials)
		}
		m := v.Materials[0]
		if m.StockItemID != 5 || m.Usage != parts.PerVariant || !nearlyEqual(m.PerUnit(), 3) {
			t.Fatalf("%s: unexpected line %+v", v.Suffix, m)
		}
	}

	empty := parts.Part{}
	ShareMaterial(&empty, parts.Material{StockItemID: 5}, 10)
	if len(empty.Variants) != 0 {
		t.Fatalf("part without variants must be untouched")
	}
}

func TestResolvedValue(t *testing.T) {
	p := parts.Part{
		LaborHours:     parts.Manual(6),
		SetComposition: parts.Composition{"01": 1, "02": 2},
		Variants: []parts.Variant{
			{Suffix: "01"},
			{Suffix: "02", LaborHours: parts.Manual(1.5)},
		},
	}

	if v, ok := ResolvedValue(p, parts.Labor, "-01"); !ok || !nearlyEqual(v, 2) {
		t.Fatalf("ResolvedValue(01) = %v, %v; want 2", v, ok)
	}
	if v, ok := ResolvedValue(p, parts.Labor, "02"); !ok || v != 1.5 {
		t.Fatalf("ResolvedValue(02) = %v, %v; want 1.5", v, ok)
	}
	if _, ok := ResolvedValue(p, parts.Price, "01"); ok {
		t.Fatalf("expected no price without a part aggregate")
	}
	if _, ok := ResolvedValue(p, parts.Labor, "07"); ok {
		t.Fatalf("expected no value for an unknown variant")
	}
}

func applyProposals(p parts.Part, m parts.Measure, proposals map[string]float64) parts.Part {
	out := p.Clone()
	for suffix, v := range proposals {
		out.Variants[out.VariantIndex(suffix)].SetField(m, parts.Derived(v))
	}
	return out
}
