package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ms-inventory/internal/models"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func ErrorResponse(message, error string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     error,
		Timestamp: time.Now(),
	}
}

func WriteJSON(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteError maps err onto its HTTP status and writes an error response.
func WriteError(w http.ResponseWriter, message string, err error) {
	WriteJSON(w, StatusFor(err), ErrorResponse(message, err.Error()))
}

var statusByError = []struct {
	err    error
	status int
}{
	{models.ErrInvalidInput, http.StatusBadRequest},
	{models.ErrQuantityOutOfRange, http.StatusBadRequest},
	{models.ErrNotFound, http.StatusNotFound},
	{models.ErrPresaleCodeRequired, http.StatusForbidden},
	{models.ErrSoldOutWaitlisted, http.StatusAccepted},
	{models.ErrHandleExpired, http.StatusGone},
	{models.ErrPerUserLimitExceeded, http.StatusUnprocessableEntity},
	{models.ErrSalesWindowClosed, http.StatusUnprocessableEntity},
	{models.ErrEventNotOnSale, http.StatusUnprocessableEntity},
	{models.ErrTierInactive, http.StatusUnprocessableEntity},
	{models.ErrNotRefundable, http.StatusUnprocessableEntity},
	{models.ErrInsufficientCapacity, http.StatusConflict},
	{models.ErrWaitlistFull, http.StatusConflict},
	{models.ErrHandleConfirmed, http.StatusConflict},
	{models.ErrAlreadyRefunded, http.StatusConflict},
	{models.ErrOverRefund, http.StatusConflict},
	{models.ErrInvalidTransition, http.StatusConflict},
	{models.ErrCapacityBelowCommitted, http.StatusConflict},
	{models.ErrAttendeeLimit, http.StatusConflict},
}

func StatusFor(err error) int {
	for _, m := range statusByError {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}
