package services

import "fmt"

// ErrorKind classifies a rejected gateway operation.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindStateConflict ErrorKind = "state_conflict"
	KindNotFound      ErrorKind = "not_found"
	KindForbidden     ErrorKind = "forbidden"
)

// GameError is a rejection with no side effects: the operation was
// refused before any mutation was applied.
type GameError struct {
	Kind    ErrorKind
	Message string
}

func (e *GameError) Error() string { return e.Message }

func validationErr(format string, args ...interface{}) *GameError {
	return &GameError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func conflictErr(format string, args ...interface{}) *GameError {
	return &GameError{Kind: KindStateConflict, Message: fmt.Sprintf(format, args...)}
}

func notFoundErr(format string, args ...interface{}) *GameError {
	return &GameError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func forbiddenErr(format string, args ...interface{}) *GameError {
	return &GameError{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}
