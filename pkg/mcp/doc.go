// Package mcp implements a Model Context Protocol client over the
// streamable HTTP transport, plus a registry that tracks server health and
// the tools each server advertises.
//
// Servers answer JSON-RPC either as a plain JSON body or as an SSE stream;
// the client handles both. Tool enablement is a user decision persisted to
// disk, so a registry refresh never resets a toggle.
package mcp
