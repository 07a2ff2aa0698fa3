package bedrock

import (
	"errors"
	"testing"

	"github.com/jaatoai/jaato/internal/provider"
)

func TestWrapErrorClassifiesThrottling(t *testing.T) {
	err := wrapError(errors.New("ThrottlingException: rate exceeded"))
	var transient *provider.TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("wrapError() = %T, want *provider.TransientError", err)
	}
	if transient.Class != provider.ClassRateLimit {
		t.Errorf("Class = %v, want ClassRateLimit", transient.Class)
	}
}

func TestWrapErrorClassifiesUnavailable(t *testing.T) {
	err := wrapError(errors.New("503 service unavailable"))
	var transient *provider.TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("wrapError() = %T, want *provider.TransientError", err)
	}
	if transient.Class != provider.ClassInfra {
		t.Errorf("Class = %v, want ClassInfra", transient.Class)
	}
}

func TestWrapErrorNilIsNil(t *testing.T) {
	if wrapError(nil) != nil {
		t.Error("wrapError(nil) should be nil")
	}
}
