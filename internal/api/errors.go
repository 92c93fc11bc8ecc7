package api

import "errors"

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg   string
	cause error
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() []error {
	if e.cause == nil {
		return []error{ErrInvalidRequest}
	}
	return []error{ErrInvalidRequest, e.cause}
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// invalidParam marks a parameter validation error as the caller's fault
// while keeping the sentinel reachable through errors.Is.
func invalidParam(field string, err error) error {
	return invalidRequestError{msg: field + ": " + err.Error(), cause: err}
}
