// Package rotation provides monotonic per-scope counters that drive
// load-balancing decisions: which head profile a request starts from, and
// which model variant a provider call uses.
//
// The durable backend is a Redis INCR per scope so rotation state survives
// restarts and is shared across replicas. When Redis is unreachable the
// index degrades to an in-process counter with identical semantics and keeps
// serving.
package rotation
