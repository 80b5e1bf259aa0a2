// Package tools routes model tool calls to their implementations.
//
// Two kinds of tools exist: natives compiled into the gateway, and remote
// tools discovered from MCP servers. The orchestrator owns name resolution
// across both, including fuzzy matching for the slightly-wrong names models
// produce, and guards each MCP server with a circuit breaker so one dead
// server cannot stall every agent run.
package tools
