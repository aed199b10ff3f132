package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPClass groups non-successful responses of the analysis server API.
type HTTPClass string

const (
	ClassValidation HTTPClass = "validation" // 400
	ClassAuth       HTTPClass = "auth"       // 401, 403
	ClassClient     HTTPClass = "client"     // other 4xx
	ClassServer     HTTPClass = "server"     // 5xx
)

// HTTPError is a classified API error response.
type HTTPError struct {
	Class      HTTPClass
	StatusCode int
	Endpoint   string
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s error on %s (%d): %s", e.Class, e.Endpoint, e.StatusCode, e.Message)
}

// ClassifyStatus maps a status code to its class. Codes below 300 return "".
func ClassifyStatus(code int) HTTPClass {
	switch {
	case code < 300:
		return ""
	case code == http.StatusBadRequest:
		return ClassValidation
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ClassAuth
	case code < 500:
		return ClassClient
	default:
		return ClassServer
	}
}

func hasClass(err error, class HTTPClass) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Class == class
}

// IsValidation reports a 400 response, e.g. "project already exists".
func IsValidation(err error) bool { return hasClass(err, ClassValidation) }

// IsAuth reports a 401/403 response.
func IsAuth(err error) bool { return hasClass(err, ClassAuth) }

// IsClient reports a generic 4xx response (not validation, not auth).
func IsClient(err error) bool { return hasClass(err, ClassClient) }

// IsServer reports a 5xx response.
func IsServer(err error) bool { return hasClass(err, ClassServer) }
