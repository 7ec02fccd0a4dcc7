package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cloud-clicker/internal/domain"
	"cloud-clicker/internal/repository"
)

const (
	createClicksTable = `
CREATE TABLE IF NOT EXISTS clicks (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	count INTEGER NOT NULL CHECK (count >= 0)
);
`
	createUserClicksTable = `
CREATE TABLE IF NOT EXISTS user_clicks (
	user_id INTEGER NOT NULL UNIQUE REFERENCES users(id),
	clicks INTEGER NOT NULL CHECK (clicks >= 0)
);
`
)

type CounterRepository struct {
	db *sql.DB
}

func NewCounterRepository(db *sql.DB) repository.CounterRepository {
	return &CounterRepository{db: db}
}

// Init creates the counter tables and seeds the singleton global row at 0.
// The seed insert is a no-op on every run after the first.
func (r *CounterRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createClicksTable); err != nil {
		return fmt.Errorf("create clicks table: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, createUserClicksTable); err != nil {
		return fmt.Errorf("create user_clicks table: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO clicks (id, count) VALUES (1, 0)`); err != nil {
		return fmt.Errorf("seed global counter: %w", err)
	}
	return nil
}

func (r *CounterRepository) Total(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT count FROM clicks WHERE id = 1`).Scan(&total); err != nil {
		return 0, fmt.Errorf("read global counter: %w", err)
	}
	return total, nil
}

func (r *CounterRepository) UserClicks(ctx context.Context, userID int64) (int64, error) {
	var clicks int64
	err := r.db.QueryRowContext(ctx, `SELECT clicks FROM user_clicks WHERE user_id = ?`, userID).Scan(&clicks)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read user counter: %w", err)
	}
	return clicks, nil
}

// Increment advances the global counter and the user's counter inside one
// transaction and returns both committed values. The user's row is created at
// 1 on first click. On any failure the transaction rolls back and neither
// counter advances.
func (r *CounterRepository) Increment(ctx context.Context, userID int64) (domain.ClickTotals, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ClickTotals{}, fmt.Errorf("begin increment: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE clicks SET count = count + 1 WHERE id = 1`); err != nil {
		return domain.ClickTotals{}, fmt.Errorf("increment global counter: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO user_clicks (user_id, clicks) VALUES (?, 1)
ON CONFLICT(user_id) DO UPDATE SET clicks = clicks + 1`,
		userID,
	); err != nil {
		return domain.ClickTotals{}, fmt.Errorf("increment user counter: %w", err)
	}

	var totals domain.ClickTotals
	if err := tx.QueryRowContext(ctx, `SELECT count FROM clicks WHERE id = 1`).Scan(&totals.Total); err != nil {
		return domain.ClickTotals{}, fmt.Errorf("read global counter: %w", err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT clicks FROM user_clicks WHERE user_id = ?`, userID).Scan(&totals.UserClicks); err != nil {
		return domain.ClickTotals{}, fmt.Errorf("read user counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.ClickTotals{}, fmt.Errorf("commit increment: %w", err)
	}
	return totals, nil
}

// SeedUser inserts a zero row for the user. Idempotent; used only when the
// seed-on-register policy is enabled.
func (r *CounterRepository) SeedUser(ctx context.Context, userID int64) error {
	if _, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO user_clicks (user_id, clicks) VALUES (?, 0)`, userID); err != nil {
		return fmt.Errorf("seed user counter: %w", err)
	}
	return nil
}
