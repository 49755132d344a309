package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, token utilities and the
// backend client return these (optionally wrapped) so the session layer can
// translate them into domain errors.
//
//   - ErrNotFound: key or record does not exist
//   - ErrExpired: token has expired or carries no expiry
//   - ErrInvalidState: operation not valid in the current session state
//   - ErrUnavailable: backend or storage temporarily unreachable
//   - ErrMalformed: payload could not be decoded
var (
	ErrNotFound     = errors.New("not found")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
	ErrMalformed    = errors.New("malformed")
)
