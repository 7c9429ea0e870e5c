// Package dispenser implements the pull protocol: a master hands out the next
// chunk index of a job to whichever pod asks first, and pods call it through
// Client until the job is exhausted.
//
// Counters are keyed by job key and guarded by a per-key lock, so requests for
// different jobs never contend. Counters live in memory unless a
// dao.Service[string, model.Counter] is configured, in which case a restarted
// master resumes from the persisted value.
package dispenser
