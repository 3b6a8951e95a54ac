package models

import (
	"encoding/json"
	"time"
)

type Kind string

const (
	KindAffiliation Kind = "affiliation"
	KindDocument    Kind = "document_authentication"
)

// WorkItem is the unit of work a consumer worker pulls from its queue.
type WorkItem struct {
	RequestID        string          `json:"request_id"`
	Kind             Kind            `json:"kind"`
	SubjectReference string          `json:"subject_reference"`
	Payload          json.RawMessage `json:"payload"`
	EnqueuedAt       time.Time       `json:"enqueued_at"`
	TraceID          string          `json:"trace_id,omitempty"`
}

type AffiliationPayload struct {
	CitizenID    int64  `json:"citizen_id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Address      string `json:"address,omitempty"`
	OperatorName string `json:"operator_name,omitempty"`
}

type DocumentPayload struct {
	CitizenID     int64  `json:"citizen_id"`
	DocumentID    string `json:"document_id"`
	URLDocument   string `json:"url_document"`
	DocumentTitle string `json:"document_title"`
}

func DecodeWorkItem(body []byte) (*WorkItem, error) {
	item, err := ParseWorkItem(body)
	if err != nil {
		return nil, err
	}
	if err := ValidateWorkItem(item); err != nil {
		return nil, err
	}
	return item, nil
}

// ParseWorkItem decodes body without validating the envelope.
func ParseWorkItem(body []byte) (*WorkItem, error) {
	var item WorkItem
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, err
	}
	return &item, nil
}
