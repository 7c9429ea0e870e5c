package model

import "github.com/viant/podwork/internal/idgen"

// Backend tags reported to the execution engine.
const (
	BackendPull = "k8s"
	BackendPush = "k8s_rabbitmq"
)

// Activation is one execution attempt bound to a narrowed job.
type Activation struct {
	ID      string
	Backend string
	// Index is the chunk index (pull) or the global unit index (push).
	Index   int
	BatchID string
	Job     *Job
}

// NewActivation creates an activation with a fresh identifier.
func NewActivation(backend string, index int, job *Job) *Activation {
	return &Activation{
		ID:      idgen.NewActivationID(),
		Backend: backend,
		Index:   index,
		Job:     job,
	}
}
