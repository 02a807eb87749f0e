package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinels for the error taxonomy. Concrete errors match them via errors.Is.
var (
	ErrQuantityExceeded = errors.New("quantity exceeded")
	ErrAlreadyTerminal  = errors.New("already terminal")
	ErrInvalidGateState = errors.New("invalid gate state")
	ErrValidation       = errors.New("validation error")
	ErrNotFound         = errors.New("not found")
	ErrContention       = errors.New("lock contention")
)

// QuantityExceededError reports a request larger than what is available.
type QuantityExceededError struct {
	Entity    EntityType
	ID        string
	Requested string
	Available string
}

func (e *QuantityExceededError) Error() string {
	return fmt.Sprintf("%s %s: requested %s exceeds available %s", e.Entity, e.ID, e.Requested, e.Available)
}

func (e *QuantityExceededError) Is(target error) bool { return target == ErrQuantityExceeded }

// TerminalStateError reports an operation on a destroyed or converted record.
type TerminalStateError struct {
	Entity EntityType
	ID     string
	Status Status
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("%s %s is already %s", e.Entity, e.ID, e.Status)
}

func (e *TerminalStateError) Is(target error) bool { return target == ErrAlreadyTerminal }

// GateStateError reports a packaging request on a lab lot that has not passed.
type GateStateError struct {
	ID     string
	Status LabStatus
	Want   LabStatus
}

func (e *GateStateError) Error() string {
	return fmt.Sprintf("lab lot %s has status %s, requires %s", e.ID, e.Status, e.Want)
}

func (e *GateStateError) Is(target error) bool { return target == ErrInvalidGateState }

// ValidationError reports malformed input.
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

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError is returned when a referenced record does not exist.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ContentionError reports a lock wait that exceeded its bound. The operation
// had no effect and may be retried.
type ContentionError struct {
	Key  string
	Wait time.Duration
	Err  error
}

func (e *ContentionError) Error() string {
	if e.Wait > 0 {
		return fmt.Sprintf("lock %s not acquired within %s", e.Key, e.Wait)
	}
	return fmt.Sprintf("lock %s not acquired", e.Key)
}

func (e *ContentionError) Is(target error) bool { return target == ErrContention }

func (e *ContentionError) Unwrap() error { return e.Err }

// Stable error codes exposed to transport collaborators.
const (
	CodeQuantityExceeded = "quantity_exceeded"
	CodeAlreadyTerminal  = "already_terminal"
	CodeInvalidGateState = "invalid_gate_state"
	CodeValidation       = "validation_error"
	CodeNotFound         = "not_found"
	CodeContention       = "contention"
	CodeRuleViolation    = "rule_violation"
	CodeInternal         = "internal"
)

// Code maps err onto its stable error code. A nil error maps to "".
func Code(err error) string {
	var ruleErr RuleViolationError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrQuantityExceeded):
		return CodeQuantityExceeded
	case errors.Is(err, ErrAlreadyTerminal):
		return CodeAlreadyTerminal
	case errors.Is(err, ErrInvalidGateState):
		return CodeInvalidGateState
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrContention):
		return CodeContention
	case errors.As(err, &ruleErr):
		return CodeRuleViolation
	}
	return CodeInternal
}

// Retryable reports whether the caller may resubmit the same request.
func Retryable(err error) bool { return errors.Is(err, ErrContention) }
