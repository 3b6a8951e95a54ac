package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"connectivity/internal/auth"
	"connectivity/internal/broker"
	"connectivity/internal/logger"
	"connectivity/internal/outcome"
	"connectivity/internal/verification"
	apperrors "connectivity/pkg/errors"
	"connectivity/pkg/metrics"
	"connectivity/pkg/models"
	"connectivity/pkg/tracing"
)

type EligibilityChecker interface {
	ValidateCitizen(ctx context.Context, citizenID int64) (*verification.Response, error)
}

type Revoker interface {
	Revoke(ctx context.Context, credentialID string, ttl time.Duration) error
}

// Service is the synchronous front of the pipeline: it turns requests into
// WorkItems and answers status and eligibility queries.
type Service struct {
	producer    broker.Producer
	store       outcome.Store
	eligibility EligibilityChecker
	revocations Revoker
	tokens      *auth.TokenService
	queues      map[models.Kind]string
	logger      logger.Logger
	now         func() time.Time
}

func NewService(
	producer broker.Producer,
	store outcome.Store,
	eligibility EligibilityChecker,
	revocations Revoker,
	tokens *auth.TokenService,
	queues map[models.Kind]string,
	log logger.Logger,
) *Service {
	return &Service{
		producer:    producer,
		store:       store,
		eligibility: eligibility,
		revocations: revocations,
		tokens:      tokens,
		queues:      queues,
		logger:      log.Named("gateway"),
		now:         time.Now,
	}
}

func (s *Service) EnqueueAffiliation(ctx context.Context, req AffiliationRequest) (*EnqueueResponse, error) {
	payload := models.AffiliationPayload{
		CitizenID:    req.CitizenID,
		Name:         req.Name,
		Email:        req.Email,
		Address:      req.Address,
		OperatorName: req.OperatorName,
	}
	item, err := models.NewWorkItemBuilder(models.KindAffiliation).
		WithRequestID(req.RequestID).
		WithSubject(strconv.FormatInt(req.CitizenID, 10)).
		WithPayload(payload).
		WithTraceID(tracing.TraceIDFromContext(ctx)).
		Build()
	if err != nil {
		return nil, apperrors.ErrValidation.WithCause(err)
	}
	if _, err := models.DecodeAffiliationPayload(item.Payload); err != nil {
		return nil, apperrors.ErrValidation.WithCause(err)
	}
	return s.enqueue(ctx, item)
}

func (s *Service) EnqueueDocument(ctx context.Context, req DocumentRequest) (*EnqueueResponse, error) {
	payload := models.DocumentPayload{
		CitizenID:     req.CitizenID,
		DocumentID:    req.DocumentID,
		URLDocument:   req.URLDocument,
		DocumentTitle: req.DocumentTitle,
	}
	subject := strconv.FormatInt(req.CitizenID, 10)
	if req.DocumentID != "" {
		subject = subject + "/" + req.DocumentID
	}
	item, err := models.NewWorkItemBuilder(models.KindDocument).
		WithRequestID(req.RequestID).
		WithSubject(subject).
		WithPayload(payload).
		WithTraceID(tracing.TraceIDFromContext(ctx)).
		Build()
	if err != nil {
		return nil, apperrors.ErrValidation.WithCause(err)
	}
	if _, err := models.DecodeDocumentPayload(item.Payload); err != nil {
		return nil, apperrors.ErrValidation.WithCause(err)
	}
	return s.enqueue(ctx, item)
}

func (s *Service) enqueue(ctx context.Context, item *models.WorkItem) (*EnqueueResponse, error) {
	queue, ok := s.queues[item.Kind]
	if !ok {
		return nil, apperrors.ErrServiceUnavailable.WithDetail("message", fmt.Sprintf("no queue configured for %s", item.Kind))
	}

	body, err := json.Marshal(item)
	if err != nil {
		return nil, apperrors.ErrInternal.WithCause(err)
	}

	msg := broker.Message{
		ID:      item.RequestID,
		Key:     []byte(item.RequestID),
		Body:    body,
		Headers: map[string]string{"request_id": item.RequestID, "kind": string(item.Kind)},
	}
	if err := s.producer.Publish(ctx, queue, msg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrBrokerUnavailable)
	}

	metrics.IncEnqueued(string(item.Kind))
	s.logger.InfowCtx(ctx, "Work item enqueued",
		"request_id", item.RequestID,
		"kind", item.Kind,
		"queue", queue,
	)

	return &EnqueueResponse{
		RequestID: item.RequestID,
		Kind:      item.Kind,
		Status:    "accepted",
		Queue:     queue,
	}, nil
}

func (s *Service) GetOutcome(ctx context.Context, requestID string) (*models.Outcome, error) {
	o, err := s.store.Get(ctx, requestID)
	if errors.Is(err, outcome.ErrNotFound) {
		return nil, apperrors.ErrNotFound.WithDetail("request_id", requestID)
	}
	if err != nil {
		return nil, apperrors.ErrServiceUnavailable.WithCause(err)
	}
	return o, nil
}

// CheckEligibility asks the centralizer whether the citizen can be
// affiliated. A rejection is an answer, not an error.
func (s *Service) CheckEligibility(ctx context.Context, citizenID int64) (*EligibilityResponse, error) {
	if citizenID <= 0 {
		return nil, apperrors.ErrValidation.WithDetail("message", "citizen id must be positive")
	}

	resp, err := s.eligibility.ValidateCitizen(ctx, citizenID)
	result := &EligibilityResponse{CitizenID: citizenID, CheckedAt: s.now().UTC()}
	if err == nil {
		result.Eligible = true
		result.StatusCode = resp.StatusCode
		return result, nil
	}

	var verr *verification.Error
	if !errors.As(err, &verr) {
		return nil, apperrors.ErrServiceUnavailable.WithCause(err)
	}
	switch verr.Class {
	case verification.ClassRejected:
		result.StatusCode = verr.StatusCode
		return result, nil
	case verification.ClassTimeout:
		return nil, apperrors.ErrTimeout.WithCause(err)
	case verification.ClassInvalidRequest:
		return nil, apperrors.ErrValidation.WithCause(err)
	default:
		return nil, apperrors.ErrServiceUnavailable.WithCause(err)
	}
}

// Revoke puts the caller's credential on the revocation list until it would
// have expired anyway.
func (s *Service) Revoke(ctx context.Context, credentialID string, claims *auth.Claims) (*RevokeResponse, error) {
	ttl := s.tokens.RemainingValidity(claims)
	if err := s.revocations.Revoke(ctx, credentialID, ttl); err != nil {
		return nil, apperrors.ErrServiceUnavailable.WithCause(err)
	}

	s.logger.InfowCtx(ctx, "Credential revoked",
		"client_id", claims.ClientID,
		"ttl", ttl,
	)
	return &RevokeResponse{
		CredentialID: credentialID,
		RevokedUntil: s.now().Add(ttl).UTC(),
	}, nil
}
