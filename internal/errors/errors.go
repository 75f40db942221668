// Package errors provides the error taxonomy shared by the store, session,
// dispatcher and model transport.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common cases
var (
	ErrValidation       = errors.New("validation failed")
	ErrPersistence      = errors.New("persistence failed")
	ErrNotFound         = errors.New("conversation not found")
	ErrCorrupt          = errors.New("conversation record is corrupt")
	ErrModelUnavailable = errors.New("model unavailable: no API key configured")
	ErrTransport        = errors.New("model request failed")
	ErrBusy             = errors.New("a request is already in flight")
	ErrNoActive         = errors.New("no active conversation")
	ErrSwitchCancelled  = errors.New("switch cancelled")
	ErrPrepromptExists  = errors.New("preprompt already exists")

	ErrEmptyInput = &ValidationError{Field: "text", Message: "must not be empty"}
	ErrEmptyName  = &ValidationError{Field: "name", Message: "must not be empty"}
)

// ValidationError is returned for input rejected locally before any state changes.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid input: %s", e.Message)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Is allows comparison with sentinel errors
func (e *ValidationError) Is(target error) bool {
	if target == ErrValidation {
		return true
	}
	other, ok := target.(*ValidationError)
	if !ok {
		return false
	}
	return other.Field == e.Field && other.Message == e.Message
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// PersistenceError wraps a failure to read or write a record.
type PersistenceError struct {
	Op  string
	ID  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is allows comparison with sentinel errors
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// NewNotFoundError creates a PersistenceError for a missing record
func NewNotFoundError(op, id string) *PersistenceError {
	return &PersistenceError{Op: op, ID: id, Err: ErrNotFound}
}

// NewCorruptError creates a PersistenceError for a record that cannot be decoded
func NewCorruptError(op, id string, cause error) *PersistenceError {
	return &PersistenceError{Op: op, ID: id, Err: fmt.Errorf("%w: %v", ErrCorrupt, cause)}
}

// TransportError represents a failed call to the remote model.
type TransportError struct {
	Transient  bool
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("model request failed [%d, %s]: %v", e.StatusCode, kind, e.Err)
	}
	return fmt.Sprintf("model request failed (%s): %v", kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is allows comparison with sentinel errors
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// NewTransportError creates a new TransportError
func NewTransportError(statusCode int, transient bool, err error) *TransportError {
	return &TransportError{StatusCode: statusCode, Transient: transient, Err: err}
}

// IsValidation reports whether err was rejected as invalid input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsPersistence reports whether err came from reading or writing a record.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorrupt)
}

func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsTransient reports whether err is a transport failure worth retrying.
func IsTransient(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Transient
	}
	return false
}

// FormatForTranscript renders err as the single line shown in a transcript
// error annotation.
func FormatForTranscript(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrModelUnavailable):
		return "No API key configured. Run 'geminichat set-key' and try again."
	case errors.Is(err, ErrBusy):
		return "Wait for the current response before sending another message."
	case IsValidation(err):
		return err.Error()
	}
	msg := strings.TrimSpace(err.Error())
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return "Error: " + msg
}
