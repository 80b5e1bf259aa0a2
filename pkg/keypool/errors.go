package keypool

import (
	"fmt"
	"time"
)

// KeyTimeoutError indicates that no key became available before the acquire
// deadline. All keys were checked out or quarantined for the full wait.
type KeyTimeoutError struct {
	Provider string
	Waited   time.Duration
}

func (e *KeyTimeoutError) Error() string {
	return fmt.Sprintf("keypool: no %s key available after %s", e.Provider, e.Waited)
}

// ExhaustedError indicates the provider has no usable keys at all: none were
// loaded, or every loaded key has been retired.
type ExhaustedError struct {
	Provider string
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("keypool: provider %s has no usable keys", e.Provider)
}
