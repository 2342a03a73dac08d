package seed

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Simplici0/shopworks/internal/domain/rates"
)

const (
	defaultStockItemName = "Shop supplies (generic)"
	defaultStockItemUnit = "ea"
)

// Config contains the values required by startup seed.
type Config struct {
	Rates rates.Config
}

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
	Updates int
}

// Run executes the startup seed in an idempotent way.
func Run(ctx context.Context, db *sql.DB, cfg Config) (Stats, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("begin seed transaction: %w", err)
	}

	stats := Stats{}

	if err := ensureRateConfig(ctx, tx, cfg.Rates, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}
	if err := ensureStockItem(ctx, tx, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}
	if err := ensureMultiplier(ctx, tx, cfg.Rates.MaterialMultiplier, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit seed transaction: %w", err)
	}

	return stats, nil
}

func ensureRateConfig(ctx context.Context, tx *sql.Tx, defaults rates.Config, stats *Stats) error {
	inserted, err := rates.NewRepo(tx).Ensure(ctx, defaults)
	if err != nil {
		return fmt.Errorf("ensure rate config singleton: %w", err)
	}
	if inserted {
		stats.Inserts++
	}
	return nil
}

func ensureStockItem(ctx context.Context, tx *sql.Tx, stats *Stats) error {
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM stock_items WHERE name = ? LIMIT 1)`, defaultStockItemName).Scan(&exists); err != nil {
		return fmt.Errorf("check default stock item existence: %w", err)
	}
	if exists {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO stock_items (name, unit, unit_price)
		VALUES (?, ?, ?)
	`, defaultStockItemName, defaultStockItemUnit, 0); err != nil {
		return fmt.Errorf("insert default stock item: %w", err)
	}
	stats.Inserts++
	return nil
}

// ensureMultiplier repairs a rate card whose material multiplier was stored
// as zero or less, which would price every material at nothing.
func ensureMultiplier(ctx context.Context, tx *sql.Tx, multiplier float64, stats *Stats) error {
	if multiplier <= 0 {
		return nil
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE rate_config
		SET material_multiplier = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = 1 AND material_multiplier <= 0
	`, multiplier)
	if err != nil {
		return fmt.Errorf("repair material multiplier: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repair material multiplier: %w", err)
	}
	stats.Updates += int(affected)
	return nil
}
