package scoring

import (
	"errors"
	"fmt"
)

// Collaborator services named in CollaboratorError.
const (
	ServiceEmbedding      = "embedding"
	ServiceTextGeneration = "text-generation"
)

// ErrNilRecord is returned by Pipeline.Score when no candidate is given.
var ErrNilRecord = errors.New("candidate record is required")

// CollaboratorError marks a failed or timed out call to an external
// collaborator. It never fails a scoring run; the affected scorer takes its
// fallback path and the breakdown carries a warning.
type CollaboratorError struct {
	Service string
	Err     error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s collaborator unavailable: %v", e.Service, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}
