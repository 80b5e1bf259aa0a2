package engine

import "fmt"

// ChainExhaustedError means every profile in the effective chain failed.
// Maps to HTTP 503 on the public surface.
type ChainExhaustedError struct {
	// Alias is the public model name the chain was resolved from.
	Alias string

	// Attempts counts upstream calls made before giving up.
	Attempts int

	// LastErr is the failure from the final attempt.
	LastErr error
}

func (e *ChainExhaustedError) Error() string {
	return fmt.Sprintf("engine: alias %q exhausted after %d attempts: %v",
		e.Alias, e.Attempts, e.LastErr)
}

func (e *ChainExhaustedError) Unwrap() error { return e.LastErr }

// UnknownProviderError means a chain profile names a provider with no
// registered adapter. Validation catches this at startup, so hitting it at
// request time indicates a wiring bug.
type UnknownProviderError struct {
	Provider string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("engine: no adapter registered for provider %q", e.Provider)
}

// UnsupportedOperationError means the resolved provider does not implement
// the requested surface (embeddings, speech, transcription).
type UnsupportedOperationError struct {
	Provider  string
	Operation string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("engine: provider %q does not support %s", e.Provider, e.Operation)
}
