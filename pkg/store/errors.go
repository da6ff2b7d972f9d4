package store

import "errors"

// Standard errors for store operations.
var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when a record already exists.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrAlreadyProcessed is returned when a response log has already been
	// processed by the learning pipeline.
	ErrAlreadyProcessed = errors.New("response log already processed")

	// ErrInvalidID is returned when the record ID is invalid.
	ErrInvalidID = errors.New("invalid ID format")

	// ErrInvalidInput is returned when the input is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConnectionFailed is returned when the store connection fails.
	ErrConnectionFailed = errors.New("store connection failed")
)
