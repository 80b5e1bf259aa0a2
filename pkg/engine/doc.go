// Package engine executes chat requests against a resolved fallback chain.
//
// For every profile in the chain the engine runs a key-scoped retry loop:
// acquire a credential, pick a model variant, dispatch, and classify the
// outcome into the key lifecycle. When a profile is out of options the
// engine falls through to the next one. Streaming requests get the same
// treatment up to the first delivered chunk; once a client has seen bytes,
// failures are terminal and surface as-is.
package engine
