package transport

import (
	"context"

	"github.com/larsks/gnocchi-senml-proxy/internal/logger"
	"github.com/larsks/gnocchi-senml-proxy/pkg/errors"
	"github.com/larsks/gnocchi-senml-proxy/pkg/metrics"
)

// dispatch hands msg to handler, turning a panic into an error so a bad
// message cannot take the receive loop down with it.
func dispatch(ctx context.Context, source string, handler HandlerFunc, msg Message, log logger.Logger) (err error) {
	metrics.IncTransportMessage(source)

	defer func() {
		if r := recover(); r != nil {
			err = errors.RecoverPanic(r)
			log.ErrorwCtx(ctx, "panic recovered during message processing",
				"error", err,
				"topic", msg.Topic,
			)
		}
	}()

	return handler(ctx, msg)
}
