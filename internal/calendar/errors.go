package calendar

import (
	"errors"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
)

// ErrNotFound is returned by fakes and wrappers when an event or calendar does not exist.
var ErrNotFound = errors.New("not found")

// StatusCode returns the HTTP status carried by a Google API error, or 0.
func StatusCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

// IsNotFound reports whether err means the event or calendar does not exist.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	code := StatusCode(err)
	return code == http.StatusNotFound || code == http.StatusGone
}

// IsAlreadyExists reports whether err is the conflict Google returns when a
// caller-supplied event identifier is already in use.
func IsAlreadyExists(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusConflict {
		return false
	}
	for _, item := range apiErr.Errors {
		if item.Reason == "duplicate" {
			return true
		}
	}
	msg := strings.ToLower(apiErr.Message)
	return msg == "" || strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate")
}

// Reason returns a short, user facing description of an external error.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return http.StatusText(apiErr.Code)
	}
	return err.Error()
}
