package cerr

import (
	"fmt"
	"net/http"
)

type Error struct {
	Err            error
	HTTPStatusCode int
	Code           Code
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%d] %s", e.HTTPStatusCode, e.Err.Error())
}

func BadRequest(err error) *Error {
	return &Error{
		Err:            err,
		HTTPStatusCode: http.StatusBadRequest,
		Code:           CodeInvalidInput,
	}
}

func Authentication(err error) *Error {
	return &Error{
		Err:            err,
		HTTPStatusCode: http.StatusUnauthorized,
		Code:           CodeInvalidInput,
	}
}

func Authorization(err error) *Error {
	return &Error{
		Err:            err,
		HTTPStatusCode: http.StatusForbidden,
		Code:           CodeInvalidInput,
	}
}

func NotFound(err error) *Error {
	return &Error{
		Err:            err,
		HTTPStatusCode: http.StatusNotFound,
		Code:           CodeNotFound,
	}
}

func Conflict(err error) *Error {
	return &Error{
		Err:            err,
		HTTPStatusCode: http.StatusConflict,
		Code:           CodeAlreadyRunning,
	}
}
