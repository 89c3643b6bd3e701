package graph

import (
	"errors"
	"fmt"

	"basegraph.app/pagebot/internal/domain"
)

// ErrBudgetExhausted is returned instead of calling the API once a page has
// used its hourly call budget.
var ErrBudgetExhausted = errors.New("graph api call budget exhausted")

// FetchError is a failed read. StatusCode is zero when no response arrived.
type FetchError struct {
	ItemID     string
	StatusCode int
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s: status %d: %s", e.ItemID, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("fetching %s: %v", e.ItemID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ActionError is a failed write.
type ActionError struct {
	Type       domain.TaskType
	TargetID   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ActionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s on %s: status %d: %s", e.Type, e.TargetID, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s on %s: %v", e.Type, e.TargetID, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// apiError is the envelope Graph API wraps every failure in.
type apiError struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}
