package engage

import (
	"errors"
	"fmt"

	"github.com/bolhadev/engagebot/atclient"
)

var (
	// Session creation failed; the whole cycle is abandoned until the next tick.
	ErrAuth = errors.New("authentication failed")

	// Fetching candidates failed; only that sub-stage (mentions, or one tag) is skipped.
	ErrFetch = errors.New("candidate fetch failed")

	// A single remote action failed; the item stays eligible for retry.
	ErrAction = errors.New("remote action failed")
)

type ActionError struct {
	Action ActionKind
	ItemID string

	// HTTP status and response body, when the failure was an API error response
	StatusCode int
	Body       string

	Err error
}

func newActionError(action ActionKind, itemID string, err error) *ActionError {
	ae := &ActionError{
		Action: action,
		ItemID: itemID,
		Err:    err,
	}
	var apiErr *atclient.APIError
	if errors.As(err, &apiErr) {
		ae.StatusCode = apiErr.StatusCode
		ae.Body = apiErr.Body
	}
	return ae
}

func (e *ActionError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s of %s failed (HTTP %d): %v", e.Action, e.ItemID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s of %s failed: %v", e.Action, e.ItemID, e.Err)
}

func (e *ActionError) Unwrap() []error {
	return []error{ErrAction, e.Err}
}
