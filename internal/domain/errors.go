package domain

import "errors"

// Sentinel errors for the domain layer.
var (
	ErrNotFound       = errors.New("domain: not found")
	ErrUnauthorized   = errors.New("domain: unauthorized")
	ErrForbidden      = errors.New("domain: forbidden")
	ErrMalformedEvent = errors.New("domain: malformed event")
	ErrNotInRoom      = errors.New("domain: session not joined to workspace")
	ErrUnknownEvent   = errors.New("domain: unknown event type")
)
