// Package keypool manages per-provider credential pools. Each provider owns a
// set of API keys cycling through three states: available (a FIFO queue
// handed out to callers), quarantined (timed suspension after transient
// upstream failures), and retired (permanent removal after auth failures).
//
// Acquire blocks with a deadline when the pool is drained; waiters are served
// in arrival order. A periodic sweep returns expired quarantined keys to the
// available queue. Keys are loaded from tier files on disk and shuffled so
// restarts do not hammer the same key first.
package keypool
