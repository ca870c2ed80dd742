package services_test

import (
	"errors"
	"strings"
	"testing"

	"fieldscan/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("disk I/O error")
	err := services.Wrap(services.ErrStorageUnavailable, "queue", "append", "insert mutation", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrStorageUnavailable) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"queue", "append", "insert mutation"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapWithoutMarkerDefaultsToRemoteFailure(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrRemoteFailure) {
		t.Fatalf("expected remote failure marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestHintClassification(t *testing.T) {
	storageErr := services.Wrap(services.ErrStorageUnavailable, "queue", "open", "", errors.New("readonly"))
	if hint := services.Hint(storageErr); !strings.Contains(hint, "state directory") {
		t.Fatalf("unexpected storage hint %q", hint)
	}
	validationErr := services.Wrap(services.ErrValidation, "scans", "queue add", "empty code", nil)
	if hint := services.Hint(validationErr); !strings.Contains(hint, "input") {
		t.Fatalf("unexpected validation hint %q", hint)
	}
	if hint := services.Hint(nil); hint != "" {
		t.Fatalf("expected empty hint for nil error, got %q", hint)
	}
}
