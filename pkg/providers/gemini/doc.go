// Package gemini adapts the Google Generative Language API to the gateway's
// OpenAI-compatible shapes.
//
// Beyond the wire translation the adapter carries two pieces of Gemini
// statefulness the OpenAI surface has no room for: thought signatures, which
// must ride back with the tool call they were issued for, and context
// caching, which moves a large stable conversation prefix server-side. Both
// are keyed through a pluggable state store so replicas can share them over
// Redis.
package gemini
