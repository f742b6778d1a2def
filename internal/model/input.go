package model

import (
	"errors"
	"fmt"
)

// ErrInvalidInput marks population inputs that failed validation. Matched
// with errors.Is; callers retrying writes should fail fast on it.
var ErrInvalidInput = errors.New("invalid input")

// ProjectInput is the typed population payload accepted at the cache
// boundary. It fully replaces the project's cached artifact set.
type ProjectInput struct {
	ID        string
	Name      string
	Path      string
	Artifacts []ArtifactInput
}

// ArtifactInput describes one artifact within a ProjectInput.
// UpstreamVersion may be empty when the caller has not consulted the
// artifact source; the refresh job fills it in later.
type ArtifactInput struct {
	ID              string
	Name            string
	Type            string
	DeployedVersion string
	UpstreamVersion string
}

// Validate checks the input invariants before any database work starts,
// so a bad batch fails before the first transaction opens.
func (in ProjectInput) Validate() error {
	if in.ID == "" {
		return fmt.Errorf("%w: project input: missing id", ErrInvalidInput)
	}
	if in.Path == "" {
		return fmt.Errorf("%w: project input %s: missing path", ErrInvalidInput, in.ID)
	}
	seen := make(map[string]struct{}, len(in.Artifacts))
	for _, a := range in.Artifacts {
		if a.ID == "" {
			return fmt.Errorf("%w: project input %s: artifact missing id", ErrInvalidInput, in.ID)
		}
		if _, dup := seen[a.ID]; dup {
			return fmt.Errorf("%w: project input %s: duplicate artifact id %s", ErrInvalidInput, in.ID, a.ID)
		}
		seen[a.ID] = struct{}{}
	}
	return nil
}
