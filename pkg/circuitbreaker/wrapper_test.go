package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("down")

func failing() (interface{}, error) { return nil, errDown }

func TestWrapper_TripsAfterFailures(t *testing.T) {
	cfg := DefaultConfig("test-trips")
	cfg.Timeout = time.Hour
	w := NewWrapper(cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := w.ExecuteWithContext(ctx, failing)
		assert.ErrorIs(t, err, errDown)
	}

	assert.True(t, w.IsOpen())
	assert.Equal(t, gobreaker.StateOpen, w.State())

	called := false
	_, err := w.ExecuteWithContext(ctx, func() (interface{}, error) {
		called = true
		return nil, nil
	})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.False(t, called)
}

func TestWrapper_IsSuccessful(t *testing.T) {
	cfg := DefaultConfig("test-successful")
	cfg.IsSuccessful = func(err error) bool {
		return err == nil || !errors.Is(err, errDown)
	}
	w := NewWrapper(cfg)
	ctx := context.Background()

	ignored := errors.New("ignored")
	for i := 0; i < 5; i++ {
		_, err := w.ExecuteWithContext(ctx, func() (interface{}, error) { return nil, ignored })
		require.ErrorIs(t, err, ignored)
	}
	assert.False(t, w.IsOpen())
}

func TestWrapper_StateChangeCallback(t *testing.T) {
	var transitions []gobreaker.State
	cfg := DefaultConfig("test-callback")
	cfg.OnStateChange = func(_ string, _, to gobreaker.State) {
		transitions = append(transitions, to)
	}
	w := NewWrapper(cfg)

	for i := 0; i < 3; i++ {
		_, _ = w.ExecuteWithContext(context.Background(), failing)
	}
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)
}

func TestWrapper_CanceledContext(t *testing.T) {
	w := NewWrapper(DefaultConfig("test-canceled"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.ExecuteWithContext(ctx, func() (interface{}, error) {
		t.Fatal("fn must not run")
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
