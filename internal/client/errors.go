package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNetwork marks failures where no HTTP response was received.
var ErrNetwork = errors.New("network unavailable")

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status int
	Detail string
	Method string
	Path   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s failed (%d): %s", e.Method, e.Path, e.Status, e.Detail)
}

func newAPIError(method, path string, status int, body []byte) *APIError {
	return &APIError{Status: status, Detail: detailFrom(status, body), Method: method, Path: path}
}

// detailFrom reads the FastAPI {"detail": ...} envelope. Validation failures
// carry a list of {"msg": ...} objects; the first message is used.
func detailFrom(status int, body []byte) string {
	if gjson.ValidBytes(body) {
		d := gjson.GetBytes(body, "detail")
		switch {
		case d.IsArray():
			if msg := d.Get("0.msg"); msg.Exists() {
				return msg.String()
			}
		case d.Exists() && d.String() != "":
			return d.String()
		}
		return http.StatusText(status)
	}
	if s := strings.TrimSpace(string(body)); s != "" && len(s) < 200 && !strings.HasPrefix(s, "<") {
		return s
	}
	return http.StatusText(status)
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

func IsNotFound(err error) bool     { return statusOf(err) == http.StatusNotFound }
func IsUnauthorized(err error) bool { return statusOf(err) == http.StatusUnauthorized }
func IsForbidden(err error) bool    { return statusOf(err) == http.StatusForbidden }
func IsConflict(err error) bool     { return statusOf(err) == http.StatusConflict }

// DetailOr returns the backend's message for a rejected request, or fallback
// for anything else.
func DetailOr(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" && apiErr.Detail != http.StatusText(apiErr.Status) {
		return apiErr.Detail
	}
	return fallback
}
