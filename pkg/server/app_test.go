package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/handler/ws"
	"FinCast/pkg/cache"
	"FinCast/pkg/config"
)

func TestAppStartsAndStopsAvailableComponents(t *testing.T) {
	cfg := config.Default()
	mem := cache.NewMemoryCache()
	hub := ws.NewHub(nil)
	app := New(cfg, nil, Components{Hub: hub, Cache: mem})

	require.NoError(t, app.Start(context.Background()))
	hub.Broadcast(map[string]string{"symbol": "AAPL"})
	assert.Equal(t, 0, hub.Clients())

	app.shutdown()
	assert.NoError(t, mem.Close(), "close is idempotent")
}

func TestAppWithoutComponents(t *testing.T) {
	app := New(config.Default(), nil, Components{})
	require.NoError(t, app.Start(context.Background()))
	app.shutdown()
}
