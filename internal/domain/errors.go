package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionExists    = errors.New("session already exists")
	ErrMessageNotFound  = errors.New("message not found")
	ErrCardNotFound     = errors.New("card not found")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrActionInFlight   = errors.New("card action already in flight")
	ErrAlreadyConfirmed = errors.New("card already confirmed")
)

// ErrorKind classifies failures of card actions for the UI boundary.
type ErrorKind string

const (
	KindAuth     ErrorKind = "auth"
	KindBackend  ErrorKind = "backend"
	KindPersist  ErrorKind = "persist"
	KindUsage    ErrorKind = "usage"
	KindInternal ErrorKind = "internal"
)

// ActionError is returned by card actions that touch the network.
type ActionError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *ActionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *ActionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewActionError(kind ErrorKind, op string, err error) error {
	return &ActionError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the ErrorKind of err, or KindInternal.
func KindOf(err error) ErrorKind {
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}
