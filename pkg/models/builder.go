package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// requestIDNamespace scopes derived request ids so they never collide with
// ids minted by other systems using name-based UUIDs.
var requestIDNamespace = uuid.MustParse("6f1c3c52-5a0e-4b8e-9a53-0c7d1f2e9b41")

// DeriveRequestID returns a stable id for the same kind, subject and
// payload, regardless of payload key order or whitespace.
func DeriveRequestID(kind Kind, subject string, payload []byte) string {
	name := strings.Join([]string{string(kind), subject, string(CanonicalJSON(payload))}, "|")
	return uuid.NewSHA1(requestIDNamespace, []byte(name)).String()
}

type WorkItemBuilder struct {
	item    *WorkItem
	payload interface{}
	err     error
}

func NewWorkItemBuilder(kind Kind) *WorkItemBuilder {
	return &WorkItemBuilder{
		item: &WorkItem{Kind: kind},
	}
}

func (b *WorkItemBuilder) WithRequestID(id string) *WorkItemBuilder {
	b.item.RequestID = strings.TrimSpace(id)
	return b
}

func (b *WorkItemBuilder) WithSubject(subject string) *WorkItemBuilder {
	b.item.SubjectReference = subject
	return b
}

func (b *WorkItemBuilder) WithPayload(payload interface{}) *WorkItemBuilder {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.err = fmt.Errorf("failed to marshal payload: %w", err)
		return b
	}
	b.item.Payload = raw
	return b
}

func (b *WorkItemBuilder) WithTraceID(traceID string) *WorkItemBuilder {
	b.item.TraceID = traceID
	return b
}

func (b *WorkItemBuilder) WithEnqueuedAt(at time.Time) *WorkItemBuilder {
	b.item.EnqueuedAt = at
	return b
}

func (b *WorkItemBuilder) Build() (*WorkItem, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.item.RequestID == "" {
		b.item.RequestID = DeriveRequestID(b.item.Kind, b.item.SubjectReference, b.item.Payload)
	}
	if b.item.EnqueuedAt.IsZero() {
		b.item.EnqueuedAt = time.Now().UTC()
	}
	if err := ValidateWorkItem(b.item); err != nil {
		return nil, err
	}
	item := *b.item
	return &item, nil
}
