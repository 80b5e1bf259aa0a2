// Package providers defines the adapter contract between the execution
// engine and upstream LLM APIs, the typed errors every adapter reports, and
// the shared request plumbing: HTTP client, SSE scanning, message
// normalization, the request policy layer, and image externalization.
//
// Adapters are stateless with respect to credentials: the engine passes the
// key for each attempt, so the credential pool stays the single owner of key
// lifecycle.
package providers
