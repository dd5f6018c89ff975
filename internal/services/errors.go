// Package services defines the business logic for accounts and the catalog.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// Messages of the account errors are user facing: handlers copy them into
// the response body verbatim.
package services

import "errors"

// Account errors.
var (
	// ErrMissingCredentials is returned by Authenticate when the username or
	// the password is empty.
	ErrMissingCredentials = errors.New("Missing credentials")

	// ErrUnknownUser indicates that no account has the given username.
	ErrUnknownUser = errors.New("There is no user with that username.")

	// ErrIncorrectPassword indicates a password mismatch for an existing user.
	ErrIncorrectPassword = errors.New("Incorrect Password.")

	// ErrAccountNotDeleted is returned when deleting an account removed no row.
	ErrAccountNotDeleted = errors.New("account not deleted")
)

// Catalog errors.
var (
	// ErrEmptySearch is returned when a live search carries no text.
	ErrEmptySearch = errors.New("No text provided")

	// ErrMissingListParams is returned when a browse request has neither a
	// page nor a query.
	ErrMissingListParams = errors.New("Missing page or query")

	// ErrInvalidPage is returned for a page number below 1.
	ErrInvalidPage = errors.New("Page must be a positive number")

	// ErrWaifuNotFound indicates that no catalog entry has the given slug.
	ErrWaifuNotFound = errors.New("No waifu found")

	// ErrSeriesNotFound indicates that no catalog entry appears in the series.
	ErrSeriesNotFound = errors.New("No series found")
)

// ValidationError is a signup rule violation. Msg is user facing.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(msg string) error { return &ValidationError{Msg: msg} }

// Signup rule messages, in the order they are checked.
const (
	MsgUsernameRequired = "Username is required."
	MsgPasswordRequired = "Password is required."
	MsgPasswordMismatch = "Passwords do not match."
	MsgUsernameTaken    = "Username is already taken."
	MsgUsernameShort    = "Username must be at least 2 characters long."
	MsgPasswordShort    = "Password must be at least 7 characters long."
	MsgPasswordLong     = "Password must be at most 72 bytes long."
)
