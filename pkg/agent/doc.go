// Package agent implements the reasoning drivers behind agent aliases.
//
// The native driver leans on provider tool calling: it accumulates
// streaming tool-call deltas, dispatches the tools, and feeds results back
// until the model answers. The ReAct driver runs a scratchpad protocol in
// fuzzy XML for models without reliable tool calling, persisting its draft
// and phase between turns so a long task survives disconnects.
package agent
