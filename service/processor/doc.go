// Package processor hosts the bounded worker pool that admits activations on
// a pod. The pool has exactly one worker per CPU slot, so the number of
// running activations can never exceed the pod's slot count.
package processor
