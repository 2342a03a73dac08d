package rates

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repo struct{ db DBTX }

func NewRepo(db DBTX) *Repo { return &Repo{db: db} }

// Ensure inserts the rate_config singleton with defaults when it is missing.
// It reports whether a row was inserted.
func (r *Repo) Ensure(ctx context.Context, defaults Config) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO rate_config (
			id,
			labor_rate,
			cnc_rate,
			printer_rate,
			material_multiplier,
			markup_percent,
			currency
		) VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, defaults.LaborRate, defaults.CNCRate, defaults.PrinterRate,
		defaults.MaterialMultiplier, defaults.MarkupPercent, currencyOrDefault(defaults.Currency))
	if err != nil {
		return false, fmt.Errorf("insert default rate_config: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert default rate_config: %w", err)
	}
	return affected > 0, nil
}

func (r *Repo) Get(ctx context.Context) (Config, error) {
	var c Config
	err := r.db.QueryRowContext(ctx, `
		SELECT labor_rate, cnc_rate, printer_rate, material_multiplier, markup_percent, currency
		FROM rate_config
		WHERE id = 1
	`).Scan(
		&c.LaborRate,
		&c.CNCRate,
		&c.PrinterRate,
		&c.MaterialMultiplier,
		&c.MarkupPercent,
		&c.Currency,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Config{}, fmt.Errorf("rate_config singleton not found")
		}
		return Config{}, fmt.Errorf("query rate_config: %w", err)
	}
	return c, nil
}

func (r *Repo) Update(ctx context.Context, c Config) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE rate_config
		SET
			labor_rate = ?,
			cnc_rate = ?,
			printer_rate = ?,
			material_multiplier = ?,
			markup_percent = ?,
			currency = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
	`,
		c.LaborRate,
		c.CNCRate,
		c.PrinterRate,
		c.MaterialMultiplier,
		c.MarkupPercent,
		currencyOrDefault(c.Currency),
	)
	if err != nil {
		return fmt.Errorf("update rate_config: %w", err)
	}
	return nil
}

func currencyOrDefault(c string) string {
	if c == "" {
		return "USD"
	}
	return c
}
