package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrStorageUnavailable = errors.New("local storage unavailable")
	ErrRemoteConflict     = errors.New("remote conflict")
	ErrRemoteFailure      = errors.New("remote failure")
	ErrStatsFailure       = errors.New("stats reconciliation failure")
	ErrValidation         = errors.New("validation error")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrRemoteFailure
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Hint returns a short operator-facing suggestion for a classified error.
func Hint(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStorageUnavailable):
		return "check free space and permissions of the state directory"
	case errors.Is(err, ErrValidation):
		return "correct the input and queue the scan again"
	case errors.Is(err, ErrRemoteConflict):
		return "remote already reflects this change"
	case errors.Is(err, ErrStatsFailure):
		return "counters will be corrected by the next successful sync"
	default:
		return "pending scans were kept; retry sync when the connection is stable"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
