package outcome

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"connectivity/internal/constants"
	"connectivity/pkg/metrics"
	"connectivity/pkg/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) PutIfAbsent(ctx context.Context, outcome *models.Outcome) (result PutResult, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveStoreOperation(constants.ResultStorePostgres, "put_if_absent", ignoreConflict(err), time.Since(start))
	}()

	detail, err := json.Marshal(outcome.Detail)
	if err != nil {
		return PutResult{}, fmt.Errorf("failed to marshal outcome detail: %w", err)
	}

	query := `
		INSERT INTO verification_outcomes (request_id, kind, subject_reference, status, detail, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (request_id) DO NOTHING`

	res, err := s.db.ExecContext(ctx, query,
		outcome.RequestID,
		string(outcome.Kind),
		outcome.SubjectReference,
		string(outcome.Status),
		detail,
		outcome.CompletedAt.UTC(),
	)
	if isDataException(err) {
		return PutResult{}, fmt.Errorf("%w: %v", ErrInvalidOutcome, err)
	}
	if err != nil {
		return PutResult{}, fmt.Errorf("failed to insert outcome: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return PutResult{}, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 1 {
		return PutResult{Stored: true}, nil
	}

	existing, err := s.get(ctx, outcome.RequestID)
	if err != nil {
		return PutResult{}, err
	}
	return resolveExisting(existing, outcome)
}

func (s *PostgresStore) Get(ctx context.Context, requestID string) (outcome *models.Outcome, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveStoreOperation(constants.ResultStorePostgres, "get", ignoreNotFound(err), time.Since(start))
	}()
	return s.get(ctx, requestID)
}

func (s *PostgresStore) get(ctx context.Context, requestID string) (*models.Outcome, error) {
	query := `
		SELECT request_id, kind, subject_reference, status, detail, completed_at, publish_attempts
		FROM verification_outcomes
		WHERE request_id = $1`

	var (
		o      models.Outcome
		kind   string
		status string
		detail []byte
	)
	err := s.db.QueryRowContext(ctx, query, requestID).Scan(
		&o.RequestID,
		&kind,
		&o.SubjectReference,
		&status,
		&detail,
		&o.CompletedAt,
		&o.PublishAttempts,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query outcome: %w", err)
	}

	o.Kind = models.Kind(kind)
	o.Status = models.OutcomeStatus(status)
	o.CompletedAt = o.CompletedAt.UTC()
	if err := json.Unmarshal(detail, &o.Detail); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outcome detail: %w", err)
	}

	return &o, nil
}

func (s *PostgresStore) RecordPublish(ctx context.Context, requestID string) (attempt int, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveStoreOperation(constants.ResultStorePostgres, "record_publish", err, time.Since(start))
	}()

	query := `
		UPDATE verification_outcomes
		SET publish_attempts = publish_attempts + 1, last_published_at = NOW()
		WHERE request_id = $1
		RETURNING publish_attempts`

	err = s.db.QueryRowContext(ctx, query, requestID).Scan(&attempt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to record publish attempt: %w", err)
	}
	return attempt, nil
}

// isDataException matches SQLSTATE class 22 (value too long, invalid text)
// and CHECK violations.
func isDataException(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code.Class() == "22" || pqErr.Code == "23514"
}

func ignoreConflict(err error) error {
	if errors.Is(err, ErrConflict) {
		return nil
	}
	return err
}

func ignoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
