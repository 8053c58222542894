package okx

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/alanyoungcy/perpbot/internal/domain"
)

// APIError is a non-zero code returned by the venue in the response body.
type APIError struct {
	HTTPStatus int
	Code       string
	Msg        string
	SCode      string // per-item code on trade endpoints
	SMsg       string
}

func (e *APIError) Error() string {
	if e.SCode != "" && e.SCode != "0" {
		return fmt.Sprintf("okx: code %s: %s (sCode %s: %s)", e.Code, e.Msg, e.SCode, e.SMsg)
	}
	return fmt.Sprintf("okx: code %s: %s", e.Code, e.Msg)
}

// Unwrap lets callers match domain sentinels with errors.Is.
func (e *APIError) Unwrap() []error {
	errs := []error{domain.ErrVenueRejected}
	if e.PositionModeMismatch() {
		errs = append(errs, domain.ErrPositionMode)
	}
	if e.Code == "50011" || e.SCode == "50011" {
		errs = append(errs, domain.ErrRateLimited)
	}
	if e.HTTPStatus == 401 || strings.HasPrefix(e.Code, "5010") {
		errs = append(errs, domain.ErrUnauthorized)
	}
	return errs
}

// PositionModeMismatch reports whether the venue rejected the request
// because the posSide qualifier does not fit the account's position mode.
func (e *APIError) PositionModeMismatch() bool {
	codeMatch := e.Code == "1" || e.Code == "51000" || e.SCode == "51000"
	if !codeMatch {
		return false
	}
	msg := e.Msg + " " + e.SMsg
	return strings.Contains(msg, "posSide") || strings.Contains(msg, "mode")
}

// Transient reports whether the code signals a temporary venue condition
// worth retrying.
func (e *APIError) Transient() bool {
	switch e.Code {
	case "50001", "50004", "50011", "50013", "50026":
		return true
	}
	return false
}

// statusError is a non-2xx response without a decodable venue code.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("okx: HTTP %d: %s", e.status, e.body)
}

// retryable classifies an attempt's error for the backoff loop.
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.status >= 500
	}
	if errors.Is(err, domain.ErrRateLimited) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
