package protocol

import "errors"

// Frame-level errors are recovered locally: the frame is dropped and
// logged, and no state is mutated. Only ErrJoinFailed crosses back to the
// application as a meaningful return value.
var (
	ErrInvalidFrame           = errors.New("invalid frame")
	ErrUnknownSession         = errors.New("unknown session")
	ErrAuthenticationFailed   = errors.New("authentication failed")
	ErrPersistenceUnavailable = errors.New("persistent store unavailable")
	ErrJoinFailed             = errors.New("join failed after maximum attempts")
	ErrRadio                  = errors.New("radio error")
)
