// Package model contains the data exchanged by the coordination layer: jobs
// and their work units, pod slot ranges, activations and the messages
// carried over the bus.
//
// Jobs arrive as base64 encoded JSON. Only the fields the coordination layer
// needs are decoded into typed fields; every other field is preserved so that
// a narrowed job still carries the complete payload to the execution engine.
package model
