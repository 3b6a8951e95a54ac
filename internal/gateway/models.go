package gateway

import (
	"time"

	"connectivity/pkg/models"
)

type AffiliationRequest struct {
	RequestID    string `json:"request_id,omitempty" binding:"max=255"`
	CitizenID    int64  `json:"citizen_id" binding:"required"`
	Name         string `json:"name" binding:"required"`
	Email        string `json:"email" binding:"required"`
	Address      string `json:"address,omitempty"`
	OperatorName string `json:"operator_name,omitempty"`
}

type DocumentRequest struct {
	RequestID     string `json:"request_id,omitempty" binding:"max=255"`
	CitizenID     int64  `json:"citizen_id" binding:"required"`
	DocumentID    string `json:"document_id" binding:"max=200"`
	URLDocument   string `json:"url_document" binding:"required"`
	DocumentTitle string `json:"document_title" binding:"required"`
}

type EnqueueResponse struct {
	RequestID string      `json:"request_id"`
	Kind      models.Kind `json:"kind"`
	Status    string      `json:"status"`
	Queue     string      `json:"queue"`
}

type EligibilityResponse struct {
	CitizenID  int64     `json:"citizen_id"`
	Eligible   bool      `json:"eligible"`
	StatusCode int       `json:"status_code"`
	CheckedAt  time.Time `json:"checked_at"`
}

type RevokeResponse struct {
	CredentialID string    `json:"credential_id"`
	RevokedUntil time.Time `json:"revoked_until"`
}
