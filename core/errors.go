package core

import "net/http"

// StatusError is an error that carries the HTTP status it should be
// reported with. Adapters map any error providing StatusCode() to that
// status and everything else to an internal server error.
type StatusError struct {
	Status  int
	Message string
}

func (e StatusError) Error() string {
	return e.Message
}

// StatusCode returns the HTTP status for this error.
func (e StatusError) StatusCode() int {
	return e.Status
}

// NotFound returns the 404 error for a missing resource. The phrasing
// follows the route naming, e.g. "no such author".
func NotFound(resource string) error {
	return StatusError{Status: http.StatusNotFound, Message: "no such " + resource}
}

// BadRequest returns a 400 error, used for malformed bodies, unknown
// query parameters and eager-load allow-list violations.
func BadRequest(message string) error {
	return StatusError{Status: http.StatusBadRequest, Message: message}
}
