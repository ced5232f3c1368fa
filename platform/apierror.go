package platform

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the platform API.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (ae *APIError) Error() string {
	if ae.StatusCode > 0 {
		if ae.Message != "" {
			return fmt.Sprintf("platform request failed (HTTP %d): code %d: %s", ae.StatusCode, ae.Code, ae.Message)
		}
		return fmt.Sprintf("platform request failed (HTTP %d)", ae.StatusCode)
	}
	return "platform request failed"
}

// ErrorBody is the platform's error envelope: {"errors":[{"code":N,"message":"..."}]}
type ErrorBody struct {
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (eb *ErrorBody) APIError(statusCode int) error {
	ae := &APIError{StatusCode: statusCode}
	if len(eb.Errors) > 0 {
		ae.Code = eb.Errors[0].Code
		ae.Message = eb.Errors[0].Message
	}
	return ae
}

// IsBadRequest reports whether err is an HTTP 400 from the platform. The
// profile endpoint answers this way for terminated accounts.
func IsBadRequest(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == http.StatusBadRequest
}
