package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeAuthRequired Code = "AUTH_REQUIRED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeRateLimit    Code = "RATE_LIMIT_EXCEEDED"
	CodeRemote       Code = "REMOTE_ERROR"
	CodeDependency   Code = "DEPENDENCY_ERROR"
)

type Metadata struct {
	Retryable     bool
	PublicMessage string
}

var metadataByCode = map[Code]Metadata{
	CodeAuthRequired: {
		Retryable:     false,
		PublicMessage: "sign in required",
	},
	CodeForbidden: {
		Retryable:     false,
		PublicMessage: "access denied",
	},
	CodeValidation: {
		Retryable:     false,
		PublicMessage: "validation failed",
	},
	CodeNotFound: {
		Retryable:     false,
		PublicMessage: "resource not found",
	},
	CodeConflict: {
		Retryable:     false,
		PublicMessage: "conflict detected",
	},
	CodeRateLimit: {
		Retryable:     true,
		PublicMessage: "rate limit exceeded",
	},
	CodeRemote: {
		Retryable:     true,
		PublicMessage: "request failed",
	},
	CodeDependency: {
		Retryable:     true,
		PublicMessage: "backend unavailable",
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeRemote]
}

// CodeForStatus maps a backend HTTP status to a domain error code.
func CodeForStatus(status int) Code {
	switch status {
	case http.StatusUnauthorized:
		return CodeAuthRequired
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	case http.StatusTooManyRequests:
		return CodeRateLimit
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return CodeValidation
	default:
		if status >= 400 && status < 500 {
			return CodeValidation
		}
		return CodeRemote
	}
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeRemote
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err is a domain error carrying the given code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
