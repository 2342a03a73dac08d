package parts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Repo is the sqlite-backed persistence collaborator for parts, variants and
// their materials. Every write rotates the part revision.
type Repo struct{ db *sql.DB }

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

// Summary is the list view of a part.
type Summary struct {
	ID       int64  `json:"id"`
	Number   string `json:"partNumber"`
	Name     string `json:"name"`
	Variants int    `json:"variants"`
	Revision string `json:"revision"`
}

func newRevision() string { return uuid.NewString() }

// Create inserts a part with its variants and materials and returns it with
// ids and a fresh revision.
func (r *Repo) Create(ctx context.Context, p Part) (Part, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Part{}, fmt.Errorf("begin create part: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	composition, err := encodeComposition(p.SetComposition)
	if err != nil {
		return Part{}, err
	}

	out := p.Clone()
	out.Revision = newRevision()

	price, priceManual := fieldArgs(p.PricePerSet)
	labor, laborManual := fieldArgs(p.LaborHours)
	cnc, cncManual := fieldArgs(p.CNCTimeHours)
	printHours, printManual := fieldArgs(p.PrintTimeHours)

	res, err := tx.ExecContext(ctx, `
		INSERT INTO parts (
			part_number, name,
			price_per_set, price_per_set_manual,
			labor_hours, labor_hours_manual,
			requires_cnc, cnc_time_hours, cnc_time_hours_manual,
			requires_3d_print, printer_3d_time_hours, printer_3d_time_hours_manual,
			set_composition, revision
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.Number, p.Name, price, priceManual, labor, laborManual,
		p.CNC, cnc, cncManual, p.Printer3D, printHours, printManual,
		composition, out.Revision)
	if err != nil {
		return Part{}, fmt.Errorf("insert part: %w", err)
	}
	if out.ID, err = res.LastInsertId(); err != nil {
		return Part{}, fmt.Errorf("read part id: %w", err)
	}

	for i := range out.Variants {
		v := &out.Variants[i]
		v.PartID = out.ID
		if v.ID, err = insertVariant(ctx, tx, *v); err != nil {
			return Part{}, err
		}
		for j := range v.Materials {
			if v.Materials[j].ID, err = insertMaterial(ctx, tx, out.ID, v.ID, v.Materials[j]); err != nil {
				return Part{}, err
			}
		}
	}
	for i := range out.Materials {
		if out.Materials[i].ID, err = insertMaterial(ctx, tx, out.ID, 0, out.Materials[i]); err != nil {
			return Part{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Part{}, fmt.Errorf("commit create part: %w", err)
	}
	return out, nil
}

func insertVariant(ctx context.Context, tx *sql.Tx, v Variant) (int64, error) {
	price, priceManual := fieldArgs(v.PricePerVariant)
	labor, laborManual := fieldArgs(v.LaborHours)
	cnc, cncManual := fieldArgs(v.CNCTimeHours)
	printHours, printManual := fieldArgs(v.PrintTimeHours)

	res, err := tx.ExecContext(ctx, `
		INSERT INTO part_variants (
			part_id, suffix, name,
			price_per_variant, price_per_variant_manual,
			labor_hours, labor_hours_manual, labor_auto_adjusted,
			cnc_time_hours, cnc_time_hours_manual,
			printer_3d_time_hours, printer_3d_time_hours_manual
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, v.PartID, v.Suffix, v.Name, price, priceManual, labor, laborManual, v.LaborAutoAdjusted,
		cnc, cncManual, printHours, printManual)
	if err != nil {
		return 0, fmt.Errorf("insert variant %s: %w", v.Suffix, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read variant id: %w", err)
	}
	return id, nil
}

func insertMaterial(ctx context.Context, tx *sql.Tx, partID, variantID int64, m Material) (int64, error) {
	var variant any
	if variantID > 0 {
		variant = variantID
	}
	usage := m.Usage
	if usage == "" {
		usage = PerSet
		if variantID > 0 {
			usage = PerVariant
		}
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO part_materials (part_id, variant_id, stock_item_id, quantity_per_unit, quantity, unit, usage)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, partID, variant, m.StockItemID, nullableFloat(m.QuantityPerUnit), nullableFloat(m.Quantity), m.Unit, string(usage))
	if err != nil {
		return 0, fmt.Errorf("insert material for stock item %d: %w", m.StockItemID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read material id: %w", err)
	}
	return id, nil
}

// Get returns a full snapshot of one part.
func (r *Repo) Get(ctx context.Context, id int64) (Part, error) {
	var (
		p                                             Part
		price, labor, cnc, printHours                 sql.NullFloat64
		priceManual, laborManual, cncManual, printMan bool
		composition                                   sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, part_number, name,
			price_per_set, price_per_set_manual,
			labor_hours, labor_hours_manual,
			requires_cnc, cnc_time_hours, cnc_time_hours_manual,
			requires_3d_print, printer_3d_time_hours, printer_3d_time_hours_manual,
			set_composition, revision
		FROM parts
		WHERE id = ?
	`, id).Scan(
		&p.ID, &p.Number, &p.Name,
		&price, &priceManual,
		&labor, &laborManual,
		&p.CNC, &cnc, &cncManual,
		&p.Printer3D, &printHours, &printMan,
		&composition, &p.Revision,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Part{}, ErrNotFound
		}
		return Part{}, fmt.Errorf("query part %d: %w", id, err)
	}
	p.PricePerSet = scanField(price, priceManual)
	p.LaborHours = scanField(labor, laborManual)
	p.CNCTimeHours = scanField(cnc, cncManual)
	p.PrintTimeHours = scanField(printHours, printMan)
	if p.SetComposition, err = decodeComposition(composition); err != nil {
		return Part{}, err
	}

	if p.Variants, err = r.listVariants(ctx, id); err != nil {
		return Part{}, err
	}
	if err := r.attachMaterials(ctx, &p); err != nil {
		return Part{}, err
	}
	return p, nil
}

func (r *Repo) listVariants(ctx context.Context, partID int64) ([]Variant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, part_id, suffix, name,
			price_per_variant, price_per_variant_manual,
			labor_hours, labor_hours_manual, labor_auto_adjusted,
			cnc_time_hours, cnc_time_hours_manual,
			printer_3d_time_hours, printer_3d_time_hours_manual
		FROM part_variants
		WHERE part_id = ?
		ORDER BY suffix, id
	`, partID)
	if err != nil {
		return nil, fmt.Errorf("query variants: %w", err)
	}
	defer rows.Close()

	variants := make([]Variant, 0)
	for rows.Next() {
		var (
			v                                             Variant
			price, labor, cnc, printHours                 sql.NullFloat64
			priceManual, laborManual, cncManual, printMan bool
		)
		if err := rows.Scan(
			&v.ID, &v.PartID, &v.Suffix, &v.Name,
			&price, &priceManual,
			&labor, &laborManual, &v.LaborAutoAdjusted,
			&cnc, &cncManual,
			&printHours, &printMan,
		); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		v.PricePerVariant = scanField(price, priceManual)
		v.LaborHours = scanField(labor, laborManual)
		v.CNCTimeHours = scanField(cnc, cncManual)
		v.PrintTimeHours = scanField(printHours, printMan)
		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate variants: %w", err)
	}
	return variants, nil
}

func (r *Repo) attachMaterials(ctx context.Context, p *Part) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, variant_id, stock_item_id, quantity_per_unit, quantity, unit, usage
		FROM part_materials
		WHERE part_id = ?
		ORDER BY id
	`, p.ID)
	if err != nil {
		return fmt.Errorf("query materials: %w", err)
	}
	defer rows.Close()

	byVariant := make(map[int64]int, len(p.Variants))
	for i, v := range p.Variants {
		byVariant[v.ID] = i
	}

	for rows.Next() {
		var (
			m            Material
			variantID    sql.NullInt64
			perUnit, qty sql.NullFloat64
			usage        string
		)
		if err := rows.Scan(&m.ID, &variantID, &m.StockItemID, &perUnit, &qty, &m.Unit, &usage); err != nil {
			return fmt.Errorf("scan material: %w", err)
		}
		m.Usage = Usage(usage)
		if perUnit.Valid {
			v := perUnit.Float64
			m.QuantityPerUnit = &v
		}
		if qty.Valid {
			v := qty.Float64
			m.Quantity = &v
		}
		if variantID.Valid {
			if i, ok := byVariant[variantID.Int64]; ok {
				p.Variants[i].Materials = append(p.Variants[i].Materials, m)
			}
			continue
		}
		p.Materials = append(p.Materials, m)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate materials: %w", err)
	}
	return nil
}

// List returns all parts ordered by part number.
func (r *Repo) List(ctx context.Context) ([]Summary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.part_number, p.name, p.revision, COUNT(v.id)
		FROM parts p
		LEFT JOIN part_variants v ON v.part_id = p.id
		GROUP BY p.id
		ORDER BY p.part_number
	`)
	if err != nil {
		return nil, fmt.Errorf("query parts: %w", err)
	}
	defer rows.Close()

	out := make([]Summary, 0)
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Number, &s.Name, &s.Revision, &s.Variants); err != nil {
			return nil, fmt.Errorf("scan part: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parts: %w", err)
	}
	return out, nil
}

// ApplyChanges writes changes for one part in a single transaction, provided
// the stored revision still equals revision. It returns the new revision.
func (r *Repo) ApplyChanges(ctx context.Context, partID int64, revision string, changes []Change) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin apply changes: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	next := newRevision()
	res, err := tx.ExecContext(ctx, `
		UPDATE parts
		SET revision = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND revision = ?
	`, next, partID, revision)
	if err != nil {
		return "", fmt.Errorf("rotate part revision: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("rotate part revision: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM parts WHERE id = ?)`, partID).Scan(&exists); err != nil {
			return "", fmt.Errorf("check part existence: %w", err)
		}
		if !exists {
			return "", ErrNotFound
		}
		return "", ErrStaleRevision
	}

	for _, c := range changes {
		if err := applyChange(ctx, tx, partID, c); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit apply changes: %w", err)
	}
	return next, nil
}

var (
	partColumns = map[Measure]string{
		Price:     "price_per_set",
		Labor:     "labor_hours",
		CNCTime:   "cnc_time_hours",
		PrintTime: "printer_3d_time_hours",
	}
	variantColumns = map[Measure]string{
		Price:     "price_per_variant",
		Labor:     "labor_hours",
		CNCTime:   "cnc_time_hours",
		PrintTime: "printer_3d_time_hours",
	}
)

func applyChange(ctx context.Context, tx *sql.Tx, partID int64, c Change) error {
	value, manual := fieldArgs(c.Value)

	if c.PartLevel() {
		col, ok := partColumns[c.Measure]
		if !ok {
			return fmt.Errorf("unknown measure %q", c.Measure)
		}
		q := fmt.Sprintf(`UPDATE parts SET %s = ?, %s_manual = ? WHERE id = ?`, col, col)
		if _, err := tx.ExecContext(ctx, q, value, manual, partID); err != nil {
			return fmt.Errorf("update part %s: %w", c.Measure, err)
		}
		return nil
	}

	col, ok := variantColumns[c.Measure]
	if !ok {
		return fmt.Errorf("unknown measure %q", c.Measure)
	}
	set := fmt.Sprintf(`%s = ?, %s_manual = ?`, col, col)
	args := []any{value, manual}
	if c.Measure == Labor {
		set += `, labor_auto_adjusted = ?`
		args = append(args, c.LaborAutoAdjusted)
	}

	var (
		res sql.Result
		err error
	)
	if c.VariantID > 0 {
		args = append(args, c.VariantID, partID)
		res, err = tx.ExecContext(ctx, `UPDATE part_variants SET `+set+` WHERE id = ? AND part_id = ?`, args...)
	} else {
		args = append(args, partID, c.Suffix)
		res, err = tx.ExecContext(ctx, `UPDATE part_variants SET `+set+` WHERE part_id = ? AND ltrim(trim(suffix), '-') = ltrim(trim(?), '-')`, args...)
	}
	if err != nil {
		return fmt.Errorf("update variant %s %s: %w", c.Suffix, c.Measure, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("update variant %s %s: %w", c.Suffix, c.Measure, ErrNotFound)
	}
	return nil
}

func fieldArgs(f Field) (any, bool) {
	v, ok := f.Value()
	if !ok {
		return nil, false
	}
	return v, f.IsManual()
}

func scanField(v sql.NullFloat64, manual bool) Field {
	if !v.Valid {
		return Auto()
	}
	if manual {
		return Manual(v.Float64)
	}
	return Derived(v.Float64)
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func encodeComposition(c Composition) (any, error) {
	if len(c) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode set composition: %w", err)
	}
	return string(raw), nil
}

func decodeComposition(raw sql.NullString) (Composition, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var c Composition
	if err := json.Unmarshal([]byte(raw.String), &c); err != nil {
		return nil, fmt.Errorf("decode set composition: %w", err)
	}
	return c, nil
}
