package apperrors

import "errors"

var (
	ErrConfig = errors.New("invalid configuration")

	// Record store
	ErrDuplicateKey        = errors.New("duplicate key")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrStore               = errors.New("store error")

	// Browser and polling
	ErrElementNotFound = errors.New("element not found")
	ErrTimeout         = errors.New("timed out")
	ErrUnexpectedPage  = errors.New("unexpected page")

	// Receipt parsing
	ErrMalformedRow  = errors.New("malformed row")
	ErrNoProductRows = errors.New("no product rows")
)
