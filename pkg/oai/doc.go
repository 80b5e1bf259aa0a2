// Package oai defines the OpenAI-compatible wire types shared by the HTTP
// surface, the provider adapters, and the agent drivers.
//
// Every adapter converges onto these shapes: inbound requests are parsed into
// ChatCompletionRequest, and all providers — whatever their native idiom —
// emit ChatCompletionChunk values. Provider-specific reasoning formats
// (reasoning fields, thinking blocks, thought parts) are translated into the
// ReasoningContent delta field by the adapters, never downstream.
package oai
