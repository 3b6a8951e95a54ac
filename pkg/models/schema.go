package models

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"unicode/utf8"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// MaxReferenceLength bounds request ids and subject references, in
// characters. Both are stored in VARCHAR(255) columns.
const MaxReferenceLength = 255

// ValidateRequestID checks that id can key an outcome in the result store.
func ValidateRequestID(id string) error {
	if strings.TrimSpace(id) == "" {
		return &ValidationError{
			Field:   "request_id",
			Message: "request ID is required",
		}
	}
	return validateReference("request_id", id)
}

func validateReference(field, value string) error {
	if n := utf8.RuneCountInString(value); n > MaxReferenceLength {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be at most %d characters, got %d", MaxReferenceLength, n),
		}
	}
	if strings.ContainsRune(value, 0) {
		return &ValidationError{
			Field:   field,
			Message: "must not contain NUL characters",
		}
	}
	return nil
}

func ValidateWorkItem(item *WorkItem) error {
	if item == nil {
		return &ValidationError{
			Field:   "work_item",
			Message: "work item cannot be nil",
		}
	}

	if err := ValidateRequestID(item.RequestID); err != nil {
		return err
	}
	if err := validateReference("subject_reference", item.SubjectReference); err != nil {
		return err
	}

	switch item.Kind {
	case KindAffiliation, KindDocument:
	default:
		return &ValidationError{
			Field:   "kind",
			Message: fmt.Sprintf("unknown kind: %q", item.Kind),
		}
	}

	if len(item.Payload) == 0 {
		return &ValidationError{
			Field:   "payload",
			Message: "payload is required",
		}
	}

	return nil
}

func DecodeAffiliationPayload(raw json.RawMessage) (*AffiliationPayload, error) {
	var p AffiliationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &ValidationError{Field: "payload", Message: err.Error()}
	}

	if p.CitizenID <= 0 {
		return nil, &ValidationError{Field: "payload.citizen_id", Message: "citizen ID must be positive"}
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, &ValidationError{Field: "payload.name", Message: "name is required"}
	}
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return nil, &ValidationError{Field: "payload.email", Message: "email is invalid"}
	}

	return &p, nil
}

// StripNUL removes NUL characters, which neither Postgres text nor JSONB
// accept.
func StripNUL(s string) string {
	if !strings.ContainsRune(s, 0) {
		return s
	}
	return strings.ReplaceAll(s, "\x00", "")
}

func DecodeDocumentPayload(raw json.RawMessage) (*DocumentPayload, error) {
	var p DocumentPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &ValidationError{Field: "payload", Message: err.Error()}
	}

	if p.CitizenID <= 0 {
		return nil, &ValidationError{Field: "payload.citizen_id", Message: "citizen ID must be positive"}
	}
	if strings.TrimSpace(p.DocumentTitle) == "" {
		return nil, &ValidationError{Field: "payload.document_title", Message: "document title is required"}
	}
	u, err := url.Parse(p.URLDocument)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &ValidationError{Field: "payload.url_document", Message: "document URL must be absolute"}
	}

	return &p, nil
}
