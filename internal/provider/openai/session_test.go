package openai

import (
	"errors"
	"testing"

	"github.com/jaatoai/jaato/internal/provider"
)

func TestWrapErrorClassifiesTransientMessage(t *testing.T) {
	err := wrapError(errors.New("429 too many requests"))
	var transient *provider.TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("wrapError() = %T, want *provider.TransientError", err)
	}
	if transient.Class != provider.ClassRateLimit {
		t.Errorf("Class = %v, want ClassRateLimit", transient.Class)
	}
}

func TestWrapErrorNilIsNil(t *testing.T) {
	if wrapError(nil) != nil {
		t.Error("wrapError(nil) should be nil")
	}
}
