// Package faults defines the sentinel errors shared by the domain
// packages. Handlers map them to HTTP statuses in one place.
package faults

import "errors"

var (
	// ErrNotFound reports a missing user, conversation or message where
	// existence is required.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized reports an operation the caller may not perform,
	// e.g. delete-for-everyone by a non-sender.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict reports a uniqueness violation (duplicate email/name
	// under the strict policy) or a lost concurrent-insert race.
	ErrConflict = errors.New("conflict")

	// ErrInvalid reports a missing or malformed required field.
	ErrInvalid = errors.New("invalid argument")

	// ErrUpstream reports a failure in an external collaborator
	// (identity provider, blob storage).
	ErrUpstream = errors.New("upstream failure")
)
