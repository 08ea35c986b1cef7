package senml

import (
	"context"
	"strings"
	"time"

	"github.com/larsks/gnocchi-senml-proxy/internal/logger"
	"github.com/larsks/gnocchi-senml-proxy/pkg/logging"
)

// Aggregator folds the records of a pack into a per-metric batch.
type Aggregator struct {
	namePrefix string
	logger     logger.Logger
	now        func() time.Time
}

type AggregatorOption func(*Aggregator)

// WithClock replaces the wall clock used for packs without time information.
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) {
		a.now = now
	}
}

func NewAggregator(namePrefix string, log logger.Logger, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		namePrefix: namePrefix,
		logger:     log,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Result is the outcome of aggregating one pack.
type Result struct {
	SensorID string
	Batch    Batch
	// Skipped lists the names of records that carried no usable value.
	Skipped []string
}

// Aggregate resolves every record of pack to a (timestamp, value) measure.
//
// Records without v, vb or s are skipped with a warning. The timestamp is
// bt+t when either is present and the current UTC time otherwise. The value
// is bv+v, then vb unchanged, then bs+s. Records sharing a name append to the
// same metric in pack order.
func (a *Aggregator) Aggregate(ctx context.Context, pack *Pack) Result {
	res := Result{
		SensorID: strings.TrimPrefix(pack.BaseName, a.namePrefix),
		Batch:    make(Batch),
	}
	if logging.GetSensorID(ctx) == "" {
		ctx = logging.WithSensorID(ctx, res.SensorID)
	}

	for _, rec := range pack.Records {
		if !rec.HasValue() {
			a.logger.WarnwCtx(ctx, "skipping record without value", "record", rec.Name)
			res.Skipped = append(res.Skipped, rec.Name)
			continue
		}

		res.Batch.Add(rec.Name, Measure{
			Timestamp: a.timestamp(pack, rec),
			Value:     resolveValue(pack, rec),
		})
	}

	return res
}

func (a *Aggregator) timestamp(pack *Pack, rec Record) Timestamp {
	if pack.BaseTime == nil && rec.Time == nil {
		return WallTimestamp(a.now())
	}
	return EpochTimestamp(deref(pack.BaseTime) + deref(rec.Time))
}

func resolveValue(pack *Pack, rec Record) Value {
	switch {
	case rec.Value != nil:
		return NumberValue(deref(pack.BaseValue) + *rec.Value)
	case rec.BoolValue != nil:
		return BoolValue(*rec.BoolValue)
	default:
		return NumberValue(deref(pack.BaseSum) + *rec.Sum)
	}
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
