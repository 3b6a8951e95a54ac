package outcome

import (
	"context"
	"errors"
	"fmt"

	"connectivity/pkg/models"
)

var (
	ErrNotFound = errors.New("outcome not found")
	// ErrConflict means a different outcome is already stored under the
	// same request id.
	ErrConflict = errors.New("conflicting outcome for request id")
	// ErrInvalidOutcome means the backend refused the outcome's data and
	// will keep refusing it.
	ErrInvalidOutcome = errors.New("outcome rejected by result store")
)

// PutResult reports what PutIfAbsent did. When Stored is false, Existing
// holds the outcome that was already present.
type PutResult struct {
	Stored   bool
	Existing *models.Outcome
}

// Store is the durable record of terminal outcomes keyed by request id.
type Store interface {
	PutIfAbsent(ctx context.Context, outcome *models.Outcome) (PutResult, error)
	Get(ctx context.Context, requestID string) (*models.Outcome, error)
	// RecordPublish increments the durable publish counter and returns its
	// new value.
	RecordPublish(ctx context.Context, requestID string) (int, error)
}

// resolveExisting decides the outcome of a lost insert race.
func resolveExisting(existing, candidate *models.Outcome) (PutResult, error) {
	if existing.SameContent(candidate) {
		return PutResult{Stored: false, Existing: existing}, nil
	}
	return PutResult{Stored: false, Existing: existing},
		fmt.Errorf("%w: request %s stored as %s, got %s", ErrConflict, candidate.RequestID, existing.Status, candidate.Status)
}
