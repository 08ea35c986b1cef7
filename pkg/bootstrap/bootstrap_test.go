package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larsks/gnocchi-senml-proxy/internal/config"
	"github.com/larsks/gnocchi-senml-proxy/internal/logger"
)

func TestBase_ShutdownOrder(t *testing.T) {
	b := NewBase(&config.Config{}, logger.NopLogger())

	var order []string
	b.OnShutdown("first", func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	b.OnShutdown("second", func(context.Context) error {
		order = append(order, "second")
		return nil
	})

	err := b.Shutdown(context.Background(), func(context.Context) []error {
		order = append(order, "additional")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"additional", "second", "first"}, order)
}

func TestBase_ShutdownCollectsErrors(t *testing.T) {
	b := NewBase(&config.Config{}, logger.NopLogger())
	boom := errors.New("boom")

	b.OnShutdown("queue", func(context.Context) error { return boom })

	err := b.Shutdown(context.Background(), func(context.Context) []error {
		return []error{errors.New("server")}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "queue close error")
	assert.Contains(t, err.Error(), "server")
}

func TestInitRedis_Optional(t *testing.T) {
	dc := NewDatabaseConnector(&config.Config{}, logger.NopLogger())

	rdb, err := dc.InitRedis(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rdb)
}

func TestInitRedis_RequiredByBridge(t *testing.T) {
	cfg := &config.Config{Bridge: config.BridgeConfig{Type: config.BridgeRedis}}
	dc := NewDatabaseConnector(cfg, logger.NopLogger())

	_, err := dc.InitRedis(context.Background())
	assert.Error(t, err)
}
