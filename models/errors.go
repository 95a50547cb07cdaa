package models

import (
	"errors"

	"github.com/rotisserie/eris"
)

// Gameplay and engine errors. Precondition errors are definitive: the engine
// never retries them and a repeated call sees the same answer. ErrContention
// is the one transient error; the caller may try again with a fresh request.
var (
	ErrAlreadyWaiting = eris.New("player already has an open lobby")
	ErrMatchNotFound  = eris.New("match not found")
	ErrNotAvailable   = eris.New("match is not available to join")
	ErrSelfJoin       = eris.New("cannot join your own match")
	ErrAlreadyFull    = eris.New("match already has two players")
	ErrNotWaiting     = eris.New("match is not waiting")
	ErrNotCreator     = eris.New("only the match creator may cancel")
	ErrContention     = eris.New("too much contention, try again")
	ErrUnavailable    = eris.New("storage unavailable")
)

// ValidationError rejects bad input before the store is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

// Stable error codes, used for idempotency replay (a cached error must come
// back as the same error) and for HTTP mapping.
const (
	CodeAlreadyWaiting = "ALREADY_WAITING"
	CodeNotFound       = "NOT_FOUND"
	CodeNotAvailable   = "NOT_AVAILABLE"
	CodeSelfJoin       = "SELF_JOIN"
	CodeAlreadyFull    = "ALREADY_FULL"
	CodeNotWaiting     = "NOT_WAITING"
	CodeNotCreator     = "NOT_CREATOR"
	CodeContention     = "CONTENTION"
	CodeUnavailable    = "UNAVAILABLE"
	CodeValidation     = "VALIDATION"
)

var codeToErr = map[string]error{
	CodeAlreadyWaiting: ErrAlreadyWaiting,
	CodeNotFound:       ErrMatchNotFound,
	CodeNotAvailable:   ErrNotAvailable,
	CodeSelfJoin:       ErrSelfJoin,
	CodeAlreadyFull:    ErrAlreadyFull,
	CodeNotWaiting:     ErrNotWaiting,
	CodeNotCreator:     ErrNotCreator,
	CodeContention:     ErrContention,
	CodeUnavailable:    ErrUnavailable,
}

// ErrorCode maps an engine error to its stable code, or "" for unknown errors.
func ErrorCode(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return CodeValidation
	}
	for code, sentinel := range codeToErr {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return ""
}

// ErrorFromCode restores the sentinel for a cached error code. Validation
// errors replay as a generic validation failure; the original message is kept
// in the cached response body.
func ErrorFromCode(code string) error {
	if err, ok := codeToErr[code]; ok {
		return err
	}
	if code == CodeValidation {
		return &ValidationError{Field: "request", Reason: "rejected"}
	}
	return nil
}
