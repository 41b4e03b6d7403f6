package atclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// upper bound on how much of an error response body is retained
const maxErrorBody = 16 * 1024

type APIError struct {
	StatusCode int
	Name       string
	Message    string

	// Raw response body (truncated), for logging
	Body string
}

func (ae *APIError) Error() string {
	if ae.StatusCode > 0 {
		if ae.Name != "" && ae.Message != "" {
			return fmt.Sprintf("API request failed (HTTP %d): %s: %s", ae.StatusCode, ae.Name, ae.Message)
		} else if ae.Name != "" {
			return fmt.Sprintf("API request failed (HTTP %d): %s", ae.StatusCode, ae.Name)
		}
		return fmt.Sprintf("API request failed (HTTP %d)", ae.StatusCode)
	}
	return "API request failed"
}

type ErrorBody struct {
	Name    string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Consumes the body of a non-successful HTTP response and returns an [*APIError]. Does not close the body.
func readAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	ae := &APIError{
		StatusCode: resp.StatusCode,
		Body:       string(raw),
	}
	var eb ErrorBody
	if err := json.Unmarshal(raw, &eb); err == nil {
		ae.Name = eb.Name
		ae.Message = eb.Message
	}
	return ae
}
