package rotation

import "context"

// ModelRotator cycles through the model variants configured for a provider
// profile, so successive calls spread load over interchangeable deployments.
type ModelRotator struct {
	counter Counter
}

// NewModelRotator builds a rotator over its own in-process counter. Variant
// choice is a per-call concern; it does not need durable state.
func NewModelRotator() *ModelRotator {
	return &ModelRotator{counter: NewMemoryCounter()}
}

// NextModel returns the variant to use for the (provider, alias) scope.
// Empty variant lists return "".
func (r *ModelRotator) NextModel(ctx context.Context, provider, alias string, variants []string) string {
	switch len(variants) {
	case 0:
		return ""
	case 1:
		return variants[0]
	}
	n, _ := r.counter.Next(ctx, provider+"/"+alias)
	return variants[n%int64(len(variants))]
}
