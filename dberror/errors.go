// Package dberror defines the provider's error taxonomy and turns database
// failures into messages fit for end users.
package dberror

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gertd/go-pluralize"
)

// Kind classifies a provider error.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindExecution     Kind = "execution"
	KindCancellation  Kind = "cancellation"
	KindConfiguration Kind = "configuration"
)

// CodeQueryCanceled is the SQLSTATE of a statement stopped by a cancel request.
const CodeQueryCanceled = "57014"

// Sentinel errors matched through errors.Is.
var (
	// ErrValidation marks requests rejected before reaching the database.
	ErrValidation = errors.New("pgprovider: validation error")

	// ErrExecution marks statements the database refused or failed.
	ErrExecution = errors.New("pgprovider: execution error")

	// ErrCanceled marks statements stopped by the caller.
	ErrCanceled = errors.New("pgprovider: query canceled")

	// ErrConfiguration marks an unusable provider configuration.
	ErrConfiguration = errors.New("pgprovider: configuration error")
)

var plural = pluralize.NewClient()

// Error is a provider error with an optional database code and debug bundle.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Debug   *Debug
	Cause   error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("pgprovider %s [%s]: %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("pgprovider %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (k Kind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindExecution:
		return ErrExecution
	case KindCancellation:
		return ErrCanceled
	case KindConfiguration:
		return ErrConfiguration
	}
	return nil
}

func Validation(msg string, debug *Debug) *Error {
	return &Error{Kind: KindValidation, Message: msg, Debug: debug}
}

// MissingParams reports parameters a statement or routine needs but the
// caller did not supply.
func MissingParams(names []string, debug *Debug) *Error {
	msg := fmt.Sprintf("missing required %s: %s",
		plural.Pluralize("parameter", len(names), false), strings.Join(names, ","))
	return Validation(msg, debug)
}

// Execution wraps a database failure. msg is the normalized text shown to
// users; the raw failure stays reachable through Unwrap.
func Execution(cause error, code, msg string, debug *Debug) *Error {
	return &Error{Kind: KindExecution, Code: code, Message: msg, Debug: debug, Cause: cause}
}

func Canceled(cause error, debug *Debug) *Error {
	return &Error{Kind: KindCancellation, Code: CodeQueryCanceled, Message: "canceling statement due to user request", Debug: debug, Cause: cause}
}

func Configuration(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsExecution(err error) bool {
	return errors.Is(err, ErrExecution)
}

func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// DebugOf returns the debug bundle attached to err, if any.
func DebugOf(err error) *Debug {
	var e *Error
	if errors.As(err, &e) {
		return e.Debug
	}
	return nil
}
