// Package server exposes the gateway's HTTP surface: the OpenAI-compatible
// /v1 endpoints (chat completions with streaming, embeddings, audio,
// models), the agent session controls, and the admin endpoints for key
// pools and tool management.
//
// # Routes
//
//   - POST /v1/chat/completions - completions, streaming and unary; agent
//     aliases dispatch to their reasoning driver
//   - GET  /v1/models - runnable aliases, agents marked as such
//   - POST /v1/embeddings - embedding vectors
//   - POST /v1/audio/speech - text to speech
//   - POST /v1/audio/transcriptions - speech to text
//   - POST /v1/sessions/{id}/cancel - flag a running agent task to stop
//   - GET  /admin/keys - key pool status per provider
//   - GET  /admin/mcp/servers - MCP server connectivity and tool counts
//   - GET  /admin/tools - discovered tools with enabled state
//   - POST /admin/tools/{name} - toggle a tool on or off
//   - GET  /health - liveness probe
//   - GET  /metrics - Prometheus scrape endpoint (configurable path)
//
// # Middleware chain
//
// Requests pass through, outermost first: recovery, logging, request ID,
// CORS, bearer auth. A bearer token other than the gateway token is
// forwarded to the engine as the caller's own upstream credential.
package server
