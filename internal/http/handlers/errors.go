// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP responses
// (via the `fail()` helper in this package). The human-readable `error` text is what
// browser clients display; codes give programmatic callers a stable taxonomy.
//
// Conventions:
//   - Codes are lowercase, snake_case.
//   - Generic codes mirror common HTTP status semantics.
//   - Auth and validation codes are reserved for outcomes that share a status
//     (401 and 400) but need to be told apart.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "invalid_credentials",
//	  "error": "Incorrect Password."
//	}
package handlers

import "github.com/tbourn/go-portfolio-backend/internal/http/middleware"

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = middleware.CodeUnauthorized
	ErrCodeNotFound     = "not_found"
	ErrCodeMethod       = "method_not_allowed"
	ErrCodeRateLimited  = middleware.CodeRateLimited
	ErrCodeInternal     = middleware.CodeInternal

	// Domain-specific:
	ErrCodeInvalidCredentials   = "invalid_credentials"
	ErrCodeValidation           = "validation_failed"
	ErrCodeAlreadyAuthenticated = middleware.CodeAlreadyAuthenticated
)

const internalMessage = middleware.InternalMessage
