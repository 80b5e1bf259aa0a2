// Package openaicompat adapts any provider that speaks the OpenAI wire
// format: OpenAI itself plus the compatible vendors (Groq, Cerebras,
// SambaNova, Mistral, ...). The payload passes through close to verbatim;
// the adapter's work is credential injection, SSE decoding, and folding the
// vendors' divergent reasoning fields into one shape.
package openaicompat
