package engine

import (
	"errors"
	"fmt"
)

var (
	ErrValidation      = errors.New("openpark: invalid request")
	ErrSlotUnavailable = errors.New("openpark: slot already booked")
	ErrSlotNotFound    = errors.New("openpark: slot not found")
	ErrCheckInExpired  = errors.New("openpark: check-in window expired")
)

// StorageError reports a failure of the slot store. The engine treats every
// storage failure as transient.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("openpark: %s: storage failure: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
