// Package progress defines primitives for reporting and aggregating the
// progress of a fan-out of activations on a pod. Every component that receives
// the tracker, directly or via the context, updates the counters with Delta.
package progress
