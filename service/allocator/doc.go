// Package allocator is the cluster-side counterpart of the push protocol. It
// collects pod capacity announcements, hands every pod a contiguous range of
// global CPU slots and broadcasts jobs to all pods.
package allocator
