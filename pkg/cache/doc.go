// Package cache memoizes unary chat completions keyed by a canonical
// request fingerprint.
//
// Admission is validated on both sides of the boundary: responses that look
// like provider errors are never written, and entries that fail validation
// on read are dropped instead of served. A poisoned entry can outlive a
// validator bug fix, so the read-side check is not redundant.
package cache
