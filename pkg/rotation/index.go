package rotation

import (
	"context"
	"log/slog"
)

// Index produces slot assignments for sized pools. It prefers the durable
// counter and falls back to the in-process one when the backend errors, so a
// Redis outage degrades fairness across replicas but never availability.
type Index struct {
	durable  Counter
	fallback Counter
	logger   *slog.Logger
}

// NewIndex builds an Index. durable may be nil, in which case only the
// in-process counter is used.
func NewIndex(durable Counter, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		durable:  durable,
		fallback: NewMemoryCounter(),
		logger:   logger,
	}
}

// NextSlot returns the slot in [0, size) for the next request in scope.
// size <= 1 short-circuits to 0 without touching any counter.
func (i *Index) NextSlot(ctx context.Context, scope string, size int) int {
	if size <= 1 {
		return 0
	}
	n, _ := i.next(ctx, scope)
	return int(n % int64(size))
}

// NextValue returns the raw counter value for scope.
func (i *Index) NextValue(ctx context.Context, scope string) int64 {
	n, _ := i.next(ctx, scope)
	return n
}

func (i *Index) next(ctx context.Context, scope string) (int64, error) {
	if i.durable != nil {
		n, err := i.durable.Next(ctx, scope)
		if err == nil {
			return n, nil
		}
		i.logger.Warn("durable rotation counter unavailable, using in-process fallback",
			"scope", scope, "error", err)
	}
	return i.fallback.Next(ctx, scope)
}
