package repository

import (
	"context"

	"cloud-clicker/internal/domain"
)

// CounterRepository defines persistence operations for the global and per-user
// click counters. Increment moves both counters as one atomic unit: no reader
// ever observes one advanced without the other, and concurrent increments are
// never lost.
type CounterRepository interface {
	Init(ctx context.Context) error
	Total(ctx context.Context) (int64, error)
	UserClicks(ctx context.Context, userID int64) (int64, error)
	Increment(ctx context.Context, userID int64) (domain.ClickTotals, error)
	SeedUser(ctx context.Context, userID int64) error
}
