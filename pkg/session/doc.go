// Package session provides per-conversation exclusivity and short-lived
// task state for agent runs.
//
// A lease serializes concurrent turns on the same session id. Task state
// (draft, phase, cancel flag) lives in a Redis hash with its own TTL so a
// multi-turn agent can pick up where the previous turn stopped. When Redis
// is unreachable the store degrades to permissive in-memory behavior:
// leases always succeed and state survives only the process lifetime.
// Losing cross-replica exclusivity beats refusing every agent request.
package session
