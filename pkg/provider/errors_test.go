package provider

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		message string
		want    ErrorClass
	}{
		{"http 429", 429, "too many requests", ClassQuotaOrRate},
		{"quota in message", 500, "RESOURCE_EXHAUSTED: Quota exceeded for requests", ClassQuotaOrRate},
		{"rate in message", 400, "rate limit reached", ClassQuotaOrRate},
		{"http 401", 401, "", ClassAuth},
		{"http 403", 403, "permission denied", ClassAuth},
		{"invalid in message", 400, "INVALID_ARGUMENT: API key not valid", ClassAuth},
		{"unauthorized in message", 400, "request unauthorized", ClassAuth},
		{"server error", 500, "internal error", ClassTransient},
		{"bad gateway", 502, "", ClassTransient},
		{"unknown 400", 400, "unsupported image", ClassTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.status, tt.message))
		})
	}
}

func TestClassifyQuotaWinsOverAuth(t *testing.T) {
	// A 403 that talks about quota is a quota problem, not a dead key.
	assert.Equal(t, ClassQuotaOrRate, Classify(403, "quota exceeded for this project"))
}

func TestClassOf(t *testing.T) {
	assert.Equal(t, ClassAuth, ClassOf(&Error{Class: ClassAuth, Err: errors.New("x")}))
	assert.Equal(t, ClassTransient, ClassOf(errors.New("plain")))

	wrapped := fmt.Errorf("outer: %w", &Error{Class: ClassQuotaOrRate, Err: errors.New("x")})
	assert.Equal(t, ClassQuotaOrRate, ClassOf(wrapped))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &Error{Class: ClassTransient, Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "TRANSIENT")
}
