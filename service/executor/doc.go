// Package executor defines the contract between the work-distribution layer
// and the execution engine that runs a narrowed job.
package executor
