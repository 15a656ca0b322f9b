package utils

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound covers unregistered tag codes, purchase orders, items and actors.
	// Terminal: the reader should correct the input and rescan.
	ErrNotFound = errors.New("not found")
	// ErrBadRequest is a missing or malformed scan field.
	ErrBadRequest = errors.New("bad request")
	// ErrConflict is a uniqueness race that survived the internal retry.
	ErrConflict = errors.New("conflict")
	// ErrInternal is an unexpected store failure.
	ErrInternal = errors.New("internal error")
)

// HTTPStatus maps the error taxonomy onto response codes.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage hides internal details; domain errors keep their context
// so the operator knows what to fix.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	if HTTPStatus(err) == http.StatusInternalServerError {
		return ErrInternal.Error()
	}
	return err.Error()
}
