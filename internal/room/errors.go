// internal/room/errors.go
package room

import (
	"errors"
	"fmt"
)

var (
	// ErrRoomNotFound indicates the room does not exist (or was deleted concurrently).
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomFull indicates the conditional seat increment affected no row.
	ErrRoomFull = errors.New("room is full")
	// ErrWrongPassword indicates a private room's password did not match.
	ErrWrongPassword = errors.New("wrong room password")
	// ErrAlreadyInRoom indicates the user already holds a seat in the room.
	ErrAlreadyInRoom = errors.New("user already in room")
	// ErrValidation is the sentinel every *ValidationError matches.
	ErrValidation = errors.New("invalid request")
	// ErrStorage indicates a store transaction could not commit.
	ErrStorage = errors.New("storage failure")
)

// ValidationError reports a malformed or missing request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// WrapStorage wraps a driver error so callers can match ErrStorage.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}
