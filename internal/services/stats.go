package services

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/CARBONMOLECULE09/bear-code/internal/model"
	"github.com/CARBONMOLECULE09/bear-code/internal/store"
)

// StatsService aggregates per-user activity counters.
type StatsService struct {
	store store.Store
}

func NewStatsService(s store.Store) *StatsService {
	return &StatsService{store: s}
}

// UserStats reads the three counters concurrently.
func (s *StatsService) UserStats(ctx context.Context, userID string) (model.UserStats, error) {
	var out model.UserStats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.store.SearchQueries().Count(gctx, userID)
		out.TotalSearches = n
		return err
	})
	g.Go(func() error {
		n, err := s.store.Documents().Count(gctx, userID)
		out.TotalDocuments = n
		return err
	})
	g.Go(func() error {
		n, err := s.store.Transactions().SumUsage(gctx, userID)
		out.TotalCreditsUsed = n
		return err
	})
	if err := g.Wait(); err != nil {
		return model.UserStats{}, err
	}
	return out, nil
}
