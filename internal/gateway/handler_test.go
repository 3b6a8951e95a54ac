package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connectivity/internal/auth"
	"connectivity/internal/config"
	"connectivity/internal/logger"
	apperrors "connectivity/pkg/errors"
	"connectivity/pkg/models"
)

type stubAPI struct {
	lastAffiliation AffiliationRequest
	lastCitizen     int64
	lastCredential  string
	err             error
}

func (s *stubAPI) EnqueueAffiliation(ctx context.Context, req AffiliationRequest) (*EnqueueResponse, error) {
	s.lastAffiliation = req
	if s.err != nil {
		return nil, s.err
	}
	return &EnqueueResponse{RequestID: "r1", Kind: models.KindAffiliation, Status: "accepted", Queue: "affiliation-check"}, nil
}

func (s *stubAPI) EnqueueDocument(ctx context.Context, req DocumentRequest) (*EnqueueResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &EnqueueResponse{RequestID: "r2", Kind: models.KindDocument, Status: "accepted"}, nil
}

func (s *stubAPI) GetOutcome(ctx context.Context, requestID string) (*models.Outcome, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Outcome{RequestID: requestID, Status: models.StatusApproved}, nil
}

func (s *stubAPI) CheckEligibility(ctx context.Context, citizenID int64) (*EligibilityResponse, error) {
	s.lastCitizen = citizenID
	if s.err != nil {
		return nil, s.err
	}
	return &EligibilityResponse{CitizenID: citizenID, Eligible: true, StatusCode: http.StatusNoContent}, nil
}

func (s *stubAPI) Revoke(ctx context.Context, credentialID string, claims *auth.Claims) (*RevokeResponse, error) {
	s.lastCredential = credentialID
	if s.err != nil {
		return nil, s.err
	}
	return &RevokeResponse{CredentialID: credentialID}, nil
}

type noRevocations struct{}

func (noRevocations) IsRevoked(ctx context.Context, credentialID string) (bool, error) {
	return false, nil
}

func setupRouter(t *testing.T, api API) (*gin.Engine, string, *auth.Claims) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := auth.NewTokenService(config.AuthConfig{JWTSecret: "handler-test-secret", TokenTTL: time.Hour})
	require.NoError(t, err)
	token, claims, err := tokens.Issue("client-a", "")
	require.NoError(t, err)

	router := gin.New()
	NewHandler(api, logger.NopLogger()).RegisterRoutes(router, auth.Middleware(tokens, noRevocations{}, logger.NopLogger()))
	return router, token, claims
}

func TestHandler_Routes(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		apiErr     error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "enqueue affiliation",
			method:     http.MethodPost,
			path:       "/api/v1/affiliations",
			body:       `{"citizen_id":1001,"name":"Ana","email":"ana@example.com"}`,
			wantStatus: http.StatusAccepted,
			wantBody:   `"request_id":"r1"`,
		},
		{
			name:       "affiliation missing fields",
			method:     http.MethodPost,
			path:       "/api/v1/affiliations",
			body:       `{"citizen_id":1001}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   "VALIDATION_ERROR",
		},
		{
			name:       "affiliation request id too long",
			method:     http.MethodPost,
			path:       "/api/v1/affiliations",
			body:       `{"request_id":"` + strings.Repeat("r", 256) + `","citizen_id":1001,"name":"Ana","email":"ana@example.com"}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   "VALIDATION_ERROR",
		},
		{
			name:       "document id too long",
			method:     http.MethodPost,
			path:       "/api/v1/documents/authentications",
			body:       `{"citizen_id":1001,"document_id":"` + strings.Repeat("d", 201) + `","url_document":"https://files.example.com/d.pdf","document_title":"cedula"}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   "VALIDATION_ERROR",
		},
		{
			name:       "affiliation broker down",
			method:     http.MethodPost,
			path:       "/api/v1/affiliations",
			body:       `{"citizen_id":1001,"name":"Ana","email":"ana@example.com"}`,
			apiErr:     apperrors.ErrBrokerUnavailable,
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "BROKER_UNAVAILABLE",
		},
		{
			name:       "enqueue document",
			method:     http.MethodPost,
			path:       "/api/v1/documents/authentications",
			body:       `{"citizen_id":1001,"url_document":"https://files.example.com/d.pdf","document_title":"cedula"}`,
			wantStatus: http.StatusAccepted,
			wantBody:   `"request_id":"r2"`,
		},
		{
			name:       "get outcome",
			method:     http.MethodGet,
			path:       "/api/v1/outcomes/r1",
			wantStatus: http.StatusOK,
			wantBody:   `"status":"approved"`,
		},
		{
			name:       "outcome not found",
			method:     http.MethodGet,
			path:       "/api/v1/outcomes/missing",
			apiErr:     apperrors.ErrNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "eligibility",
			method:     http.MethodGet,
			path:       "/api/v1/citizens/1001/eligibility",
			wantStatus: http.StatusOK,
			wantBody:   `"eligible":true`,
		},
		{
			name:       "eligibility bad id",
			method:     http.MethodGet,
			path:       "/api/v1/citizens/abc/eligibility",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &stubAPI{err: tt.apiErr}
			router, token, _ := setupRouter(t, api)

			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestHandler_RequiresToken(t *testing.T) {
	api := &stubAPI{}
	router, _, _ := setupRouter(t, api)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/affiliations",
		strings.NewReader(`{"citizen_id":1001,"name":"Ana","email":"ana@example.com"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, api.lastAffiliation.Name)
}

func TestHandler_RevokeUsesCallerCredential(t *testing.T) {
	api := &stubAPI{}
	router, token, claims := setupRouter(t, api)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/revoke", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, claims.ID, api.lastCredential)
}
