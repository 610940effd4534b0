package backend

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNetworkFailure   = errors.New("network failure")
	ErrDuplicateClaim   = errors.New("points already claimed")
	ErrPermissionDenied = errors.New("permission denied")
	ErrTextTooLong      = errors.New("text too long for synthesis")
	ErrEmptyText        = errors.New("text is empty")
	ErrNoPlaces         = errors.New("no places found")
)

// StatusError is returned for any non-2xx response. Detail carries the
// server's {"detail": ...} message when one was sent.
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Detail)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrPermissionDenied:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrNetworkFailure:
		return e.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// duplicateClaimMarkers are the fragments the points service uses when the
// walking-route reward was already paid out today.
var duplicateClaimMarkers = []string{"이미", "already", "duplicate"}

func isDuplicateClaim(statusCode int, detail string) bool {
	if statusCode == http.StatusConflict {
		return true
	}
	if statusCode != http.StatusBadRequest {
		return false
	}
	lower := strings.ToLower(detail)
	for _, marker := range duplicateClaimMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
