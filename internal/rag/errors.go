package rag

import "errors"

var (
	// ErrInvalidInput is returned when a request fails validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrExternalService is returned when a required external capability
	// (embedding server, LLM backend) fails.
	ErrExternalService = errors.New("external service error")
)
