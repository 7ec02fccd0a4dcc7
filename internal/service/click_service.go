package service

import (
	"context"
	"errors"
	"fmt"

	"cloud-clicker/internal/domain"
	"cloud-clicker/internal/repository"
)

// ErrStorageUnavailable indicates the backing store could not be reached or
// the transaction could not be committed. The failed operation changed nothing.
var ErrStorageUnavailable = errors.New("storage unavailable")

// ClickService exposes the counter operations: reads of the global and
// per-user tallies, and the attributed increment.
type ClickService interface {
	Totals(ctx context.Context) (int64, error)
	UserClicks(ctx context.Context, userID int64) (int64, error)
	Increment(ctx context.Context, userID int64) (domain.ClickTotals, error)
}

type clickService struct {
	counters repository.CounterRepository
}

func NewClickService(counters repository.CounterRepository) ClickService {
	return &clickService{counters: counters}
}

func (s *clickService) Totals(ctx context.Context) (int64, error) {
	total, err := s.counters.Total(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return total, nil
}

func (s *clickService) UserClicks(ctx context.Context, userID int64) (int64, error) {
	clicks, err := s.counters.UserClicks(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return clicks, nil
}

func (s *clickService) Increment(ctx context.Context, userID int64) (domain.ClickTotals, error) {
	totals, err := s.counters.Increment(ctx, userID)
	if err != nil {
		return domain.ClickTotals{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return totals, nil
}
