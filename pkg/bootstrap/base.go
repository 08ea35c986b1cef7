package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/larsks/gnocchi-senml-proxy/internal/config"
	"github.com/larsks/gnocchi-senml-proxy/internal/logger"
)

// Closer releases one resource at shutdown.
type Closer struct {
	Name  string
	Close func(ctx context.Context) error
}

type Base struct {
	Config *config.Config
	Logger logger.Logger

	closers []Closer
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// OnShutdown registers a resource to release. Closers run in reverse order
// of registration.
func (b *Base) OnShutdown(name string, fn func(ctx context.Context) error) {
	b.closers = append(b.closers, Closer{Name: name, Close: fn})
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Info("shutting down application")

	var errs []error

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	for i := len(b.closers) - 1; i >= 0; i-- {
		c := b.closers[i]
		if err := c.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s close error: %w", c.Name, err))
		}
	}
	b.closers = nil

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	b.Logger.Info("application exited successfully")
	return nil
}
