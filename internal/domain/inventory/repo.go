package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var ErrNotFound = errors.New("stock item not found")

type Repo struct{ db *sql.DB }

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Create(ctx context.Context, name, unit string, unitPrice float64) (StockItem, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return StockItem{}, fmt.Errorf("stock item name is required")
	}
	if unitPrice < 0 {
		return StockItem{}, fmt.Errorf("unit price must be >= 0")
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO stock_items (name, unit, unit_price)
		VALUES (?, ?, ?)
	`, name, unit, unitPrice)
	if err != nil {
		return StockItem{}, fmt.Errorf("insert stock item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return StockItem{}, fmt.Errorf("read stock item id: %w", err)
	}
	return StockItem{ID: id, Name: name, Unit: unit, UnitPrice: unitPrice}, nil
}

func (r *Repo) UpdatePrice(ctx context.Context, id int64, unitPrice float64) error {
	if unitPrice < 0 {
		return fmt.Errorf("unit price must be >= 0")
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE stock_items
		SET unit_price = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, unitPrice, id)
	if err != nil {
		return fmt.Errorf("update stock item price: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update stock item price: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) List(ctx context.Context) ([]StockItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, unit, unit_price
		FROM stock_items
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("query stock items: %w", err)
	}
	defer rows.Close()

	items := make([]StockItem, 0)
	for rows.Next() {
		var it StockItem
		if err := rows.Scan(&it.ID, &it.Name, &it.Unit, &it.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan stock item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock items: %w", err)
	}
	return items, nil
}

// PriceList loads the current unit price of every stock item.
func (r *Repo) PriceList(ctx context.Context) (PriceList, error) {
	items, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	return NewPriceList(items), nil
}
