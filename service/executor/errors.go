package executor

import "errors"

var (
	// ErrNoCommand is returned when no engine command was configured.
	ErrNoCommand = errors.New("executor: command not configured")

	// ErrNilActivation is returned when Execute receives a nil activation or job.
	ErrNilActivation = errors.New("executor: nil activation")
)
