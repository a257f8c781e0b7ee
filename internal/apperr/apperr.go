// internal/apperr/apperr.go
//
// Error kinds surfaced to callers of the battle service.
// Every rejected request maps to exactly one Kind; the transport turns the
// kind into an HTTP status and a JSON body of the form
// {"error":"<kind>","message":"..."}.
//
// Errors compare by kind, so errors.Is(err, apperr.ErrNotInBattlePhase)
// holds for any *Error carrying that kind regardless of its message.

package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a machine-readable error kind.
type Kind string

const (
	KindInvalidWordSelection Kind = "invalid_word_selection"
	KindTurnAlreadyResolved  Kind = "turn_already_resolved"
	KindTurnOutOfOrder       Kind = "turn_out_of_order"
	KindNotInBattlePhase     Kind = "not_in_battle_phase"
	KindNotInRewardsPhase    Kind = "not_in_rewards_phase"
	KindSessionNotFound      Kind = "session_not_found"
	KindCustomWordInvalid    Kind = "custom_word_invalid"
	KindInvalidReward        Kind = "invalid_reward"
	KindInterpreterError     Kind = "interpreter_error"
	KindInvalidRequest       Kind = "invalid_request"
)

// Sentinels for errors.Is checks.
var (
	ErrInvalidWordSelection = New(KindInvalidWordSelection, "invalid word selection")
	ErrTurnAlreadyResolved  = New(KindTurnAlreadyResolved, "turn already resolved")
	ErrTurnOutOfOrder       = New(KindTurnOutOfOrder, "turn out of order")
	ErrNotInBattlePhase     = New(KindNotInBattlePhase, "not in battle phase")
	ErrNotInRewardsPhase    = New(KindNotInRewardsPhase, "not in rewards phase")
	ErrSessionNotFound      = New(KindSessionNotFound, "session not found")
	ErrCustomWordInvalid    = New(KindCustomWordInvalid, "custom word invalid")
	ErrInvalidReward        = New(KindInvalidReward, "invalid reward")
	ErrInterpreter          = New(KindInterpreterError, "interpreter error")
	ErrInvalidRequest       = New(KindInvalidRequest, "invalid request")
)

// Error is a domain error with a kind and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HTTPStatus maps a kind to the status code used by the transport.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidWordSelection, KindInvalidReward, KindInvalidRequest:
		return http.StatusBadRequest
	case KindTurnAlreadyResolved, KindTurnOutOfOrder, KindNotInBattlePhase, KindNotInRewardsPhase:
		return http.StatusConflict
	case KindSessionNotFound:
		return http.StatusNotFound
	case KindCustomWordInvalid:
		return http.StatusUnprocessableEntity
	case KindInterpreterError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
