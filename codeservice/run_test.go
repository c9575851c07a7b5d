package codeservice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CARBONMOLECULE09/bear-code/internal/config"
	"github.com/CARBONMOLECULE09/bear-code/internal/health"
)

func TestStartupHealthTimeout(t *testing.T) {
	assert.Equal(t, 60, startupHealthTimeout(5))
	assert.Equal(t, 60, startupHealthTimeout(30))
	assert.Equal(t, 90, startupHealthTimeout(45))
}

func TestInMemoryWiring_ServesHealth(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.NewForTesting()
	cfg.HealthIntervalSeconds = 1
	log := zerolog.Nop()

	deps, err := initDependencies(ctx, cfg, log)
	require.NoError(t, err)
	defer deps.close(log)
	assert.Nil(t, deps.embedder)

	svcHealth := startHealthCheckers(ctx, cfg, log, deps)
	require.NoError(t, waitUntilHealthy(ctx, cfg, svcHealth))

	srv := httptest.NewServer(buildRouter(cfg, log, deps, svcHealth))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWaitUntilHealthy_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	cfg := config.NewForTesting()

	// never started, so the aggregate stays down until ctx expires
	svc := health.NewServiceHealthChecker(zerolog.Nop())
	assert.ErrorIs(t, waitUntilHealthy(ctx, cfg, svc), context.DeadlineExceeded)
}
