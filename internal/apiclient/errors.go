package apiclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/tmssession/internal/common"
)

var ErrUnavailable = errors.New("api unavailable")

// StatusError is a non-2xx answer from the API. It unwraps to the matching
// sentinel from the common package so callers can keep using errors.Is.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: %d %s", e.Status, e.Code)
	}
	return fmt.Sprintf("api error: %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *StatusError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest:
		return common.ErrValidation
	case http.StatusUnauthorized:
		return common.ErrorUnauthorized
	case http.StatusForbidden:
		return common.ErrForbidden
	case http.StatusNotFound:
		return common.ErrorNotFound
	case http.StatusConflict:
		if e.Code == "precondition_failed" {
			return common.ErrPreconditionFailed
		}
		return common.ErrConflict
	case http.StatusUnprocessableEntity:
		return common.ErrIntegrity
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return ErrUnavailable
	}
	if e.Code == "configuration_error" {
		return common.ErrConfiguration
	}
	return common.ErrorInternal
}
