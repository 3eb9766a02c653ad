package query

import "errors"

var (
	// ErrInvalidIdentifier is reported in strict mode for field, cast or tree
	// identifiers that cannot be embedded.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrUnsupportedOperator is reported in strict mode for filter operators
	// outside the allowed set.
	ErrUnsupportedOperator = errors.New("unsupported filter operator")

	// ErrNoLocator means a locate was requested without a way to run it.
	ErrNoLocator = errors.New("locate requested without a locator")
)
