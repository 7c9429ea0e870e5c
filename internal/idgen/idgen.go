package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// ActivationIDLength is the number of hex characters kept for activation ids.
const ActivationIDLength = 12

// New returns a new globally unique identifier as string. It is implemented
// as a thin wrapper so tests can stub it.

var NewFunc = func() string { return uuid.New().String() }

func New() string { return NewFunc() }

// NewActivationID returns a short dash-less identifier for one execution attempt.
func NewActivationID() string {
	id := strings.ReplaceAll(New(), "-", "")
	if len(id) > ActivationIDLength {
		id = id[:ActivationIDLength]
	}
	return id
}
