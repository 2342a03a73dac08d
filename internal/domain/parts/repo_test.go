package parts

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Simplici0/shopworks/internal/db"
	"github.com/Simplici0/shopworks/internal/domain/inventory"
	"github.com/Simplici0/shopworks/internal/migrations"
)

func openMigrated(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "parts-test.db"))
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	if err := migrations.Up(database); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return database
}

func qty(v float64) *float64 { return &v }

func seedPart(t *testing.T, database *sql.DB) Part {
	t.Helper()
	ctx := context.Background()

	steel, err := inventory.NewRepo(database).Create(ctx, "Steel sheet", "kg", 12.5)
	if err != nil {
		t.Fatalf("create stock item: %v", err)
	}
	box, err := inventory.NewRepo(database).Create(ctx, "Shipping box", "ea", 1.2)
	if err != nil {
		t.Fatalf("create stock item: %v", err)
	}

	p, err := NewRepo(database).Create(ctx, Part{
		Number:         "BRK-100",
		Name:           "Bracket",
		LaborHours:     Manual(2),
		CNC:            true,
		CNCTimeHours:   Derived(0.75),
		SetComposition: Composition{"-01": 1, "-02": 2},
		Materials:      []Material{{StockItemID: box.ID, QuantityPerUnit: qty(1), Unit: "ea"}},
		Variants: []Variant{
			{Suffix: "-02", PricePerVariant: Manual(40), Materials: []Material{
				{StockItemID: steel.ID, Quantity: qty(0.5), Unit: "kg"},
			}},
			{Suffix: "-01", LaborHours: Manual(1), LaborAutoAdjusted: true},
		},
	})
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	return p
}

func TestRepo_CreateAndGet(t *testing.T) {
	database := openMigrated(t)
	created := seedPart(t, database)

	got, err := NewRepo(database).Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get part: %v", err)
	}

	if got.Revision == "" || got.Revision != created.Revision {
		t.Fatalf("revision = %q, want %q", got.Revision, created.Revision)
	}
	if !got.LaborHours.Equal(Manual(2)) || !got.CNCTimeHours.Equal(Derived(0.75)) || got.PricePerSet.HasValue() {
		t.Fatalf("unexpected part fields: labor=%v cnc=%v price=%v", got.LaborHours, got.CNCTimeHours, got.PricePerSet)
	}
	if !got.CNC || got.Printer3D {
		t.Fatalf("unexpected machine flags: cnc=%v print=%v", got.CNC, got.Printer3D)
	}
	if got.SetComposition.Count("01") != 1 || got.SetComposition.Count("02") != 2 {
		t.Fatalf("unexpected composition: %+v", got.SetComposition)
	}

	if len(got.Variants) != 2 || got.Variants[0].Suffix != "-01" {
		t.Fatalf("variants not ordered by suffix: %+v", got.Variants)
	}
	if !got.Variants[0].LaborAutoAdjusted || !got.Variants[0].LaborHours.Equal(Manual(1)) {
		t.Fatalf("unexpected -01 variant: %+v", got.Variants[0])
	}
	v2 := got.Variants[1]
	if len(v2.Materials) != 1 || v2.Materials[0].Usage != PerVariant || v2.Materials[0].QuantityPerUnit != nil {
		t.Fatalf("unexpected -02 materials: %+v", v2.Materials)
	}
	if v2.Materials[0].PerUnit() != 0.5 {
		t.Fatalf("legacy quantity not preserved: %+v", v2.Materials[0])
	}
	if len(got.Materials) != 1 || got.Materials[0].Usage != PerSet {
		t.Fatalf("unexpected part materials: %+v", got.Materials)
	}

	if _, err := NewRepo(database).Get(context.Background(), created.ID+100); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepo_ApplyChanges(t *testing.T) {
	database := openMigrated(t)
	repo := NewRepo(database)
	ctx := context.Background()
	p := seedPart(t, database)

	next := p.Clone()
	next.PricePerSet = Derived(110)
	next.Variants[1].PricePerVariant = Derived(35)
	next.Variants[1].LaborHours = Manual(1.25)
	next.Variants[1].LaborAutoAdjusted = false
	changes := Diff(p, next)
	if len(changes) != 3 {
		t.Fatalf("expected 3 changes, got %+v", changes)
	}

	rev, err := repo.ApplyChanges(ctx, p.ID, p.Revision, changes)
	if err != nil {
		t.Fatalf("apply changes: %v", err)
	}
	if rev == "" || rev == p.Revision {
		t.Fatalf("revision not rotated: %q", rev)
	}

	got, err := repo.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get part: %v", err)
	}
	if got.Revision != rev || !got.PricePerSet.Equal(Derived(110)) {
		t.Fatalf("unexpected part after apply: %+v", got)
	}
	v, _ := got.Variant("01")
	if !v.PricePerVariant.Equal(Derived(35)) || !v.LaborHours.Equal(Manual(1.25)) || v.LaborAutoAdjusted {
		t.Fatalf("unexpected variant after apply: %+v", v)
	}

	if _, err := repo.ApplyChanges(ctx, p.ID, p.Revision, changes); !errors.Is(err, ErrStaleRevision) {
		t.Fatalf("expected ErrStaleRevision, got %v", err)
	}
	if _, err := repo.ApplyChanges(ctx, p.ID+100, rev, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepo_ApplyChangesUnknownVariantRollsBack(t *testing.T) {
	database := openMigrated(t)
	repo := NewRepo(database)
	ctx := context.Background()
	p := seedPart(t, database)

	_, err := repo.ApplyChanges(ctx, p.ID, p.Revision, []Change{
		{Measure: Price, Value: Manual(99)},
		{Suffix: "-07", Measure: Price, Value: Manual(1)},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	got, err := repo.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get part: %v", err)
	}
	if got.Revision != p.Revision || got.PricePerSet.HasValue() {
		t.Fatalf("failed apply must not persist anything: %+v", got)
	}
}

func TestRepo_List(t *testing.T) {
	database := openMigrated(t)
	p := seedPart(t, database)

	list, err := NewRepo(database).List(context.Background())
	if err != nil {
		t.Fatalf("list parts: %v", err)
	}
	if len(list) != 1 || list[0].ID != p.ID || list[0].Variants != 2 {
		t.Fatalf("unexpected list: %+v", list)
	}
}
