package gnocchi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/larsks/gnocchi-senml-proxy/pkg/errors"
)

// errorBody is the error document Gnocchi returns. The description is either
// a plain string or an object that may carry a "cause".
type errorBody struct {
	Title       string          `json:"title"`
	Description json.RawMessage `json:"description"`
}

// statusError maps a failed response onto the proxy's error codes and
// attaches the cause reported by Gnocchi, if any.
func statusError(op string, status int, body []byte) error {
	var base *errors.Error
	switch status {
	case http.StatusBadRequest:
		base = errors.ErrBadRequest
	case http.StatusNotFound:
		base = errors.ErrNotFound
	case http.StatusConflict:
		base = errors.ErrConflict
	default:
		base = errors.ErrClient
	}

	err := base.
		WithCause(fmt.Errorf("%s: unexpected status %d", op, status)).
		WithDetail("operation", op).
		WithDetail("http_status", status)

	if cause := parseCause(body); cause != "" {
		err = err.WithDetail(errors.CauseKey, cause)
	}

	return err
}

func parseCause(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var doc errorBody
	if err := json.Unmarshal(body, &doc); err != nil || len(doc.Description) == 0 {
		return strings.TrimSpace(string(body))
	}

	var desc struct {
		Cause string `json:"cause"`
	}
	if err := json.Unmarshal(doc.Description, &desc); err == nil && desc.Cause != "" {
		return desc.Cause
	}

	var text string
	if err := json.Unmarshal(doc.Description, &text); err == nil && text != "" {
		return text
	}

	if doc.Title != "" {
		return doc.Title
	}
	return strings.TrimSpace(string(doc.Description))
}

func connectionError(op string, err error) error {
	return errors.ErrConnectionFailure.
		WithCause(err).
		WithDetail("operation", op)
}
