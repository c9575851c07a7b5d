package store

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/CARBONMOLECULE09/bear-code/internal/health"
	"github.com/CARBONMOLECULE09/bear-code/internal/model"
)

// healthProbeUser is looked up when a store has no dedicated ping.
const healthProbeUser = "__health_check__"

// NewStoreHealthChecker creates a checker named "store" that pings the record store.
func NewStoreHealthChecker(s Store, log zerolog.Logger, probeTimeout time.Duration) *health.ProbeChecker {
	return health.NewProbeChecker("store", func(ctx context.Context) error { return probe(ctx, s) }, log, probeTimeout)
}

func probe(ctx context.Context, s Store) error {
	// Prefer specialized HealthPing if the store provides it
	if p, ok := s.(health.HealthPinger); ok {
		return p.HealthPing(ctx)
	}
	// Fallback: a read that must answer, not-found included
	_, err := s.Accounts().Get(ctx, healthProbeUser)
	if err == nil || errors.Is(err, model.ErrNotFound) {
		return nil
	}
	return err
}
