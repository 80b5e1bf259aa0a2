// Relay is a streaming-aware gateway that fronts heterogeneous LLM
// providers behind one OpenAI-compatible surface.
//
// It provides:
//   - Alias-based routing with load-balanced main pools and ordered
//     fallback chains
//   - Managed API key pools with quarantine and retirement
//   - Reasoning agents (native tool calling and a ReAct scratchpad loop)
//     with MCP and builtin tools
//   - Response caching, session leases, and Prometheus metrics
//
// Usage:
//
//	# Start with the default config file
//	relay run
//
//	# Start with a custom configuration
//	relay run --config /etc/relay/config.yaml
//
//	# Validate configuration without starting
//	relay validate
//
//	# Show version information
//	relay version
package main

func main() {
	Execute()
}
