package requirements

import (
	"math"
	"reflect"
	"testing"

	"github.com/Simplici0/shopworks/internal/domain/parts"
)

func qty(v float64) *float64 { return &v }

func nearlyEqual(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

func bracketPart() parts.Part {
	return parts.Part{
		Number:         "BRK-100",
		SetComposition: parts.Composition{"-01": 1, "-02": 2},
		Materials: []parts.Material{
			{StockItemID: 10, QuantityPerUnit: qty(1), Unit: "box", Usage: parts.PerSet},
		},
		Variants: []parts.Variant{
			{Suffix: "-01", Materials: []parts.Material{
				{StockItemID: 20, QuantityPerUnit: qty(0.5), Unit: "kg", Usage: parts.PerVariant},
			}},
			{Suffix: "-02", Materials: []parts.Material{
				{StockItemID: 20, QuantityPerUnit: qty(0.25), Unit: "kg", Usage: parts.PerVariant},
				{StockItemID: 30, Quantity: qty(2), Unit: "ea", Usage: parts.PerVariant},
			}},
		},
	}
}

func TestResolve_CompleteSetsDrivePerSetMaterials(t *testing.T) {
	got := Resolve(bracketPart(), Order{DashQuantities: map[string]float64{"-01": 3, "-02": 6}})

	nearlyEqual(t, "per_set box", got[10].Quantity, 3)
	nearlyEqual(t, "steel", got[20].Quantity, 3*0.5+6*0.25)
	nearlyEqual(t, "legacy quantity hardware", got[30].Quantity, 12)
	if got[10].Unit != "box" || got[20].Unit != "kg" {
		t.Fatalf("unexpected units: %+v", got)
	}
}

func TestResolve_IncompleteSetUsesFloorOfMinimum(t *testing.T) {
	got := Resolve(bracketPart(), Order{DashQuantities: map[string]float64{"01": 4, "02": 5}})

	// 4/1 = 4 sets of -01 but only floor(5/2) = 2 sets of -02.
	nearlyEqual(t, "per_set box", got[10].Quantity, 2)
}

func TestResolve_MissingCompositionVariantMeansNoCompleteSets(t *testing.T) {
	got := Resolve(bracketPart(), Order{DashQuantities: map[string]float64{"-01": 4}})

	if _, ok := got[10]; ok {
		t.Fatalf("expected no per_set draw without -02 units, got %+v", got[10])
	}
	nearlyEqual(t, "steel", got[20].Quantity, 2)
}

func TestResolve_NoCompositionFallsBackToTotalQuantity(t *testing.T) {
	p := bracketPart()
	p.SetComposition = nil

	got := Resolve(p, Order{DashQuantities: map[string]float64{"-01": 3, "-02": 6}})
	nearlyEqual(t, "per_set box", got[10].Quantity, 9)

	got = Resolve(p, Order{Quantity: 5})
	nearlyEqual(t, "per_set box from total", got[10].Quantity, 5)
	if _, ok := got[20]; ok {
		t.Fatalf("expected no variant draw without dash quantities")
	}
}

func TestResolve_ClampsCorruptQuantities(t *testing.T) {
	p := parts.Part{
		Materials: []parts.Material{
			{StockItemID: 1, QuantityPerUnit: qty(-5), Usage: parts.PerSet},
			{StockItemID: 2, QuantityPerUnit: qty(math.NaN()), Usage: parts.PerSet},
		},
		Variants: []parts.Variant{{Suffix: "01", Materials: []parts.Material{
			{StockItemID: 3, QuantityPerUnit: qty(1), Usage: parts.PerVariant},
		}}},
	}

	got := Resolve(p, Order{DashQuantities: map[string]float64{"01": -4}, Quantity: 3})
	for id, r := range got {
		if r.Quantity < 0 {
			t.Fatalf("stock item %d has negative requirement %v", id, r.Quantity)
		}
	}
	if len(got) != 0 {
		t.Fatalf("expected all entries omitted, got %+v", got)
	}
}

func TestResolve_IsIdempotent(t *testing.T) {
	p := bracketPart()
	order := Order{DashQuantities: map[string]float64{"-01": 2, "02": 4}}

	first := Resolve(p, order)
	second := Resolve(p, order)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("resolve is not deterministic: %+v vs %+v", first, second)
	}
}

func TestResolve_MergesSuffixSpellings(t *testing.T) {
	got := Resolve(bracketPart(), Order{DashQuantities: map[string]float64{"-01": 1, "01": 2, "-02": 6}})

	nearlyEqual(t, "steel", got[20].Quantity, 3*0.5+6*0.25)
	nearlyEqual(t, "per_set box", got[10].Quantity, 3)
}

func TestForSets(t *testing.T) {
	got := ForSets(bracketPart(), 2)

	nearlyEqual(t, "per_set box", got[10].Quantity, 2)
	nearlyEqual(t, "steel", got[20].Quantity, 2*0.5+4*0.25)
	nearlyEqual(t, "hardware", got[30].Quantity, 8)

	if len(ForSets(bracketPart(), 0)) != 0 {
		t.Fatalf("expected empty map for zero sets")
	}
}

func TestForVariant(t *testing.T) {
	p := bracketPart()
	got := ForVariant(p.Variants[1], 3)

	nearlyEqual(t, "steel", got[20].Quantity, 0.75)
	nearlyEqual(t, "hardware", got[30].Quantity, 6)
	if _, ok := got[10]; ok {
		t.Fatalf("per_set material must not appear in a variant draw")
	}
}
