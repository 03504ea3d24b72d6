package forecast

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLProvider serves statistics from the forecast_statistics table.
type SQLProvider struct {
	db *sql.DB
}

// NewSQLProvider wraps an open database whose schema is migrated.
func NewSQLProvider(db *sql.DB) *SQLProvider {
	return &SQLProvider{db: db}
}

// Statistic implements StatisticProvider.
func (p *SQLProvider) Statistic(ctx context.Context, interval string, step int) (Statistic, error) {
	iv, err := ValidateRequest(interval, step)
	if err != nil {
		return Statistic{}, err
	}

	query := `
		SELECT region, variable, value, unit FROM forecast_statistics
		WHERE time_interval = ? AND step = ?
	`

	s := Statistic{Interval: iv, Step: step}
	err = p.db.QueryRowContext(ctx, query, string(iv), step).Scan(&s.Region, &s.Variable, &s.Value, &s.Unit)
	if errors.Is(err, sql.ErrNoRows) {
		return Statistic{}, &DataUnavailableError{Interval: interval, Step: step, Reason: "frame has not been generated"}
	}
	if err != nil {
		return Statistic{}, fmt.Errorf("failed to query statistic: %w", err)
	}

	return s, nil
}

// Upsert writes records in a single transaction.
func (p *SQLProvider) Upsert(ctx context.Context, records []Statistic) error {
	for _, r := range records {
		if _, err := ValidateRequest(string(r.Interval), r.Step); err != nil {
			return err
		}
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT OR REPLACE INTO forecast_statistics (time_interval, step, region, variable, value, unit)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	for _, r := range records {
		if _, err := tx.ExecContext(ctx, query, string(r.Interval), r.Step, r.Region, r.Variable, r.Value, r.Unit); err != nil {
			return fmt.Errorf("failed to upsert %s step %d: %w", r.Interval, r.Step, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit statistics: %w", err)
	}
	return nil
}

// Count returns the number of stored statistics.
func (p *SQLProvider) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM forecast_statistics").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count statistics: %w", err)
	}
	return n, nil
}
