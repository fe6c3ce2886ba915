// services/errors.go
package services

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies a validation failure.
type Code string

const (
	CodeRequired          Code = "required"
	CodeDuplicate         Code = "duplicate"
	CodeNotEnoughPlayers  Code = "not_enough_players"
	CodeTooManyPlayers    Code = "too_many_players"
	CodeInvalidResultSum  Code = "invalid_result_sum"
	CodeOutOfRange        Code = "out_of_range"
	CodeNotInGame         Code = "not_in_game"
	CodeGameEnded         Code = "game_ended"
	CodeInvalidTransition Code = "invalid_transition"
)

// ValidationError is a rejected command. Nothing was written when it is
// returned.
type ValidationError struct {
	Code    Code   `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"error"`
	// Arg 附加参数, e.g. the expected sum of results
	Arg int `json:"arg,omitempty"`
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func invalid(code Code, field, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// BatchError reports the items of a batch that could not be processed.
type BatchError struct {
	Requested int
	Failed    int
	Errs      []error
}

func (e *BatchError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d of %d items failed: %s", e.Failed, e.Requested, strings.Join(msgs, "; "))
}

// Unwrap exposes the item errors to errors.Is/As.
func (e *BatchError) Unwrap() []error {
	return e.Errs
}
