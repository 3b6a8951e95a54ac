package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetLogFields(ctx))

	ctx = WithTraceID(ctx, "t-1")
	ctx = WithRequestID(ctx, "r-1")
	ctx = WithWorker(ctx, "affiliation-check")

	assert.Equal(t, []interface{}{
		"trace_id", "t-1",
		"request_id", "r-1",
		"worker", "affiliation-check",
	}, GetLogFields(ctx))
	assert.Equal(t, "", GetServiceName(ctx))
}
