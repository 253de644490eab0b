package main

import (
	"encoding/json"
	"errors"
	"net/http"
)

var (
	ErrValidation   = errors.New("photos: invalid input")
	ErrNotFound     = errors.New("photos: not found")
	ErrStorage      = errors.New("photos: storage failure")
	ErrUnauthorized = errors.New("api: user unauthorized")
	ErrForbidden    = errors.New("api: host only")
)

type StatusError struct {
	Err    error `json:"error,omitempty"`
	Status int   `json:"status,omitempty"`
}

func (a *StatusError) Error() string {
	if a.Err != nil {
		return a.Err.Error()
	}

	return ""
}

func (a *StatusError) Unwrap() error {
	return a.Err
}

// MarshalJSON renders Err as its message; error values have no exported fields.
func (a *StatusError) MarshalJSON() ([]byte, error) {
	type body struct {
		Error  string `json:"error,omitempty"`
		Status int    `json:"status,omitempty"`
	}

	return json.Marshal(body{Error: a.Error(), Status: a.Status})
}

// toStatusError maps a service error onto the HTTP status it is reported with.
func toStatusError(err error) *StatusError {
	var statusError *StatusError
	if errors.As(err, &statusError) {
		return statusError
	}

	switch {
	case errors.Is(err, ErrValidation):
		return &StatusError{Err: err, Status: http.StatusBadRequest}
	case errors.Is(err, ErrNotFound):
		return &StatusError{Err: err, Status: http.StatusNotFound}
	case errors.Is(err, ErrUnauthorized):
		return &StatusError{Err: err, Status: http.StatusUnauthorized}
	case errors.Is(err, ErrForbidden):
		return &StatusError{Err: err, Status: http.StatusForbidden}
	default:
		return &StatusError{Err: err, Status: http.StatusInternalServerError}
	}
}
