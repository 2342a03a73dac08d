package parts

import (
	"errors"
	"sort"

	"github.com/Simplici0/shopworks/internal/numeric"
)

var (
	ErrNotFound      = errors.New("part not found")
	ErrStaleRevision = errors.New("part revision is stale")
)

// Usage tags whether a material is drawn once per complete set or once per
// variant unit.
type Usage string

const (
	PerSet     Usage = "per_set"
	PerVariant Usage = "per_variant"
)

// Measure names one of the allocatable quantities kept on both the part and its variants.
type Measure string

const (
	Price     Measure = "price"
	Labor     Measure = "labor_hours"
	CNCTime   Measure = "cnc_time_hours"
	PrintTime Measure = "printer_3d_time_hours"
)

// Measures lists every allocatable measure in a stable order.
var Measures = []Measure{Price, Labor, CNCTime, PrintTime}

func ParseMeasure(s string) (Measure, bool) {
	for _, m := range Measures {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

// Material is one bill-of-materials line. Legacy rows carry Quantity instead
// of QuantityPerUnit.
type Material struct {
	ID              int64    `json:"id,omitempty"`
	StockItemID     int64    `json:"stockItemId"`
	QuantityPerUnit *float64 `json:"quantityPerUnit,omitempty"`
	Quantity        *float64 `json:"quantity,omitempty"`
	Unit            string   `json:"unit"`
	Usage           Usage    `json:"usage"`
}

// PerUnit returns the non-negative per-unit draw, preferring QuantityPerUnit.
func (m Material) PerUnit() float64 {
	switch {
	case m.QuantityPerUnit != nil:
		return numeric.SafeQuantity(*m.QuantityPerUnit)
	case m.Quantity != nil:
		return numeric.SafeQuantity(*m.Quantity)
	default:
		return 0
	}
}

// Composition maps a variant suffix to the number of units of that variant in one set.
type Composition map[string]int

// Normalized returns a copy keyed by normalized suffix with non-positive counts dropped.
func (c Composition) Normalized() Composition {
	out := make(Composition, len(c))
	for suffix, qty := range c {
		if qty <= 0 {
			continue
		}
		out[numeric.NormalizeSuffix(suffix)] += qty
	}
	return out
}

// Count returns the units of suffix in one set.
func (c Composition) Count(suffix string) int {
	key := numeric.NormalizeSuffix(suffix)
	total := 0
	for s, qty := range c {
		if qty > 0 && numeric.NormalizeSuffix(s) == key {
			total += qty
		}
	}
	return total
}

// Total returns the number of units in one set.
func (c Composition) Total() int {
	total := 0
	for _, qty := range c {
		if qty > 0 {
			total += qty
		}
	}
	return total
}

// Suffixes returns the normalized suffixes with a positive count, sorted.
func (c Composition) Suffixes() []string {
	n := c.Normalized()
	out := make([]string, 0, len(n))
	for s := range n {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

type Variant struct {
	ID                int64      `json:"id,omitempty"`
	PartID            int64      `json:"partId,omitempty"`
	Suffix            string     `json:"suffix"`
	Name              string     `json:"name,omitempty"`
	PricePerVariant   Field      `json:"pricePerVariant"`
	LaborHours        Field      `json:"laborHours"`
	CNCTimeHours      Field      `json:"cncTimeHours"`
	PrintTimeHours    Field      `json:"printer3DTimeHours"`
	LaborAutoAdjusted bool       `json:"laborAutoAdjusted"`
	Materials         []Material `json:"materials,omitempty"`
}

func (v Variant) Field(m Measure) Field {
	switch m {
	case Price:
		return v.PricePerVariant
	case Labor:
		return v.LaborHours
	case CNCTime:
		return v.CNCTimeHours
	case PrintTime:
		return v.PrintTimeHours
	}
	return Auto()
}

func (v *Variant) SetField(m Measure, f Field) {
	switch m {
	case Price:
		v.PricePerVariant = f
	case Labor:
		v.LaborHours = f
	case CNCTime:
		v.CNCTimeHours = f
	case PrintTime:
		v.PrintTimeHours = f
	}
}

type Part struct {
	ID             int64       `json:"id,omitempty"`
	Number         string      `json:"partNumber"`
	Name           string      `json:"name"`
	PricePerSet    Field       `json:"pricePerSet"`
	LaborHours     Field       `json:"laborHours"`
	CNC            bool        `json:"requiresCnc"`
	CNCTimeHours   Field       `json:"cncTimeHours"`
	Printer3D      bool        `json:"requires3dPrint"`
	PrintTimeHours Field       `json:"printer3DTimeHours"`
	SetComposition Composition `json:"setComposition,omitempty"`
	Materials      []Material  `json:"materials,omitempty"`
	Variants       []Variant   `json:"variants,omitempty"`
	Revision       string      `json:"revision,omitempty"`
}

func (p Part) Field(m Measure) Field {
	switch m {
	case Price:
		return p.PricePerSet
	case Labor:
		return p.LaborHours
	case CNCTime:
		return p.CNCTimeHours
	case PrintTime:
		return p.PrintTimeHours
	}
	return Auto()
}

func (p *Part) SetField(m Measure, f Field) {
	switch m {
	case Price:
		p.PricePerSet = f
	case Labor:
		p.LaborHours = f
	case CNCTime:
		p.CNCTimeHours = f
	case PrintTime:
		p.PrintTimeHours = f
	}
}

// MachineEnabled reports whether hours of measure m apply to quotes for this part.
func (p Part) MachineEnabled(m Measure) bool {
	switch m {
	case CNCTime:
		return p.CNC
	case PrintTime:
		return p.Printer3D
	}
	return false
}

// VariantIndex returns the position of the variant with the given suffix, or -1.
func (p Part) VariantIndex(suffix string) int {
	key := numeric.NormalizeSuffix(suffix)
	for i, v := range p.Variants {
		if numeric.NormalizeSuffix(v.Suffix) == key {
			return i
		}
	}
	return -1
}

// Variant looks a variant up by suffix.
func (p Part) Variant(suffix string) (Variant, bool) {
	i := p.VariantIndex(suffix)
	if i < 0 {
		return Variant{}, false
	}
	return p.Variants[i], true
}

// Clone returns a deep copy safe to mutate.
func (p Part) Clone() Part {
	out := p
	out.Materials = cloneMaterials(p.Materials)
	if p.SetComposition != nil {
		out.SetComposition = make(Composition, len(p.SetComposition))
		for k, v := range p.SetComposition {
			out.SetComposition[k] = v
		}
	}
	if p.Variants != nil {
		out.Variants = make([]Variant, len(p.Variants))
		for i, v := range p.Variants {
			v.Materials = cloneMaterials(v.Materials)
			out.Variants[i] = v
		}
	}
	return out
}

func cloneMaterials(in []Material) []Material {
	if in == nil {
		return nil
	}
	out := make([]Material, len(in))
	copy(out, in)
	return out
}

// Change is one field write proposed for the persistence collaborator.
// VariantID and Suffix are empty for part-level changes.
type Change struct {
	VariantID         int64   `json:"variantId,omitempty"`
	Suffix            string  `json:"suffix,omitempty"`
	Measure           Measure `json:"measure"`
	Value             Field   `json:"value"`
	LaborAutoAdjusted bool    `json:"laborAutoAdjusted,omitempty"`
}

// PartLevel reports whether the change targets the part aggregate.
func (c Change) PartLevel() bool { return c.Suffix == "" && c.VariantID == 0 }

// Diff lists the field changes that turn before into after. Variants are
// matched by suffix; variants present only in after are ignored.
func Diff(before, after Part) []Change {
	var changes []Change
	for _, m := range Measures {
		if !before.Field(m).Equal(after.Field(m)) {
			changes = append(changes, Change{Measure: m, Value: after.Field(m)})
		}
	}
	for _, next := range after.Variants {
		prev, ok := before.Variant(next.Suffix)
		if !ok {
			continue
		}
		for _, m := range Measures {
			flagChanged := m == Labor && prev.LaborAutoAdjusted != next.LaborAutoAdjusted
			if prev.Field(m).Equal(next.Field(m)) && !flagChanged {
				continue
			}
			changes = append(changes, Change{
				VariantID:         next.ID,
				Suffix:            next.Suffix,
				Measure:           m,
				Value:             next.Field(m),
				LaborAutoAdjusted: m == Labor && next.LaborAutoAdjusted,
			})
		}
	}
	return changes
}

// Apply writes changes onto a copy of p.
func Apply(p Part, changes []Change) Part {
	out := p.Clone()
	for _, c := range changes {
		if c.PartLevel() {
			out.SetField(c.Measure, c.Value)
			continue
		}
		i := out.VariantIndex(c.Suffix)
		if i < 0 {
			continue
		}
		out.Variants[i].SetField(c.Measure, c.Value)
		if c.Measure == Labor {
			out.Variants[i].LaborAutoAdjusted = c.LaborAutoAdjusted
		}
	}
	return out
}
