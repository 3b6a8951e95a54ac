package models

import (
	"bytes"
	"encoding/json"
	"time"
)

type OutcomeStatus string

const (
	StatusApproved OutcomeStatus = "approved"
	StatusRejected OutcomeStatus = "rejected"
	StatusError    OutcomeStatus = "error"
)

type OutcomeDetail struct {
	StatusCode int             `json:"status_code,omitempty"`
	Message    string          `json:"message"`
	ErrorClass string          `json:"error_class,omitempty"`
	Response   json.RawMessage `json:"response,omitempty"`
}

// Outcome is the terminal result of verifying one WorkItem. CompletedAt and
// PublishAttempts are bookkeeping and do not take part in content equality.
type Outcome struct {
	RequestID        string        `json:"request_id"`
	Kind             Kind          `json:"kind"`
	SubjectReference string        `json:"subject_reference"`
	Status           OutcomeStatus `json:"status"`
	Detail           OutcomeDetail `json:"detail"`
	CompletedAt      time.Time     `json:"completed_at"`
	PublishAttempts  int           `json:"publish_attempts"`
}

func (o *Outcome) SameContent(other *Outcome) bool {
	if o == nil || other == nil {
		return o == other
	}
	if o.RequestID != other.RequestID ||
		o.Kind != other.Kind ||
		o.SubjectReference != other.SubjectReference ||
		o.Status != other.Status {
		return false
	}
	if o.Detail.StatusCode != other.Detail.StatusCode ||
		o.Detail.Message != other.Detail.Message ||
		o.Detail.ErrorClass != other.Detail.ErrorClass {
		return false
	}
	return bytes.Equal(CanonicalJSON(o.Detail.Response), CanonicalJSON(other.Detail.Response))
}

// OutcomeEvent is the wire form published to the outcome topic. RequestID is
// the deduplication key for downstream consumers.
type OutcomeEvent struct {
	RequestID        string        `json:"request_id"`
	Kind             Kind          `json:"kind"`
	SubjectReference string        `json:"subject_reference"`
	Status           OutcomeStatus `json:"status"`
	Detail           OutcomeDetail `json:"detail"`
	CompletedAt      time.Time     `json:"completed_at"`
	PublishAttempt   int           `json:"publish_attempt"`
}

func NewOutcomeEvent(o *Outcome, attempt int) OutcomeEvent {
	return OutcomeEvent{
		RequestID:        o.RequestID,
		Kind:             o.Kind,
		SubjectReference: o.SubjectReference,
		Status:           o.Status,
		Detail:           o.Detail,
		CompletedAt:      o.CompletedAt.UTC(),
		PublishAttempt:   attempt,
	}
}

// CanonicalJSON re-encodes raw so that key order and whitespace do not
// matter. Invalid or empty input yields nil.
func CanonicalJSON(raw []byte) []byte {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	if v == nil {
		return nil
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return out
}
