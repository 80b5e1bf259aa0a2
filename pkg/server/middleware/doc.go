// Package middleware provides the HTTP middleware chain for the gateway:
// request IDs, panic recovery, request logging, CORS, and bearer
// authentication with user-key passthrough.
package middleware
