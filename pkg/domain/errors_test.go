package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		err       error
		code      string
		retryable bool
	}{
		{nil, "", false},
		{&QuantityExceededError{Entity: EntitySeedLot, ID: "s", Requested: "5", Available: "3"}, CodeQuantityExceeded, false},
		{&TerminalStateError{Entity: EntityUnit, ID: "u", Status: StatusDestroyed}, CodeAlreadyTerminal, false},
		{&GateStateError{ID: "l", Status: LabPending, Want: LabPassed}, CodeInvalidGateState, false},
		{&ValidationError{Field: "member", Reason: "required"}, CodeValidation, false},
		{NotFoundError{Entity: EntityBatch, ID: "b"}, CodeNotFound, false},
		{&ContentionError{Key: "lot-1", Wait: time.Second}, CodeContention, true},
		{fmt.Errorf("convert: %w", &ContentionError{Key: "lot-1"}), CodeContention, true},
		{RuleViolationError{}, CodeRuleViolation, false},
		{errors.New("disk full"), CodeInternal, false},
	}
	for _, tt := range tests {
		if got := Code(tt.err); got != tt.code {
			t.Errorf("Code(%v) = %s, want %s", tt.err, got, tt.code)
		}
		if got := Retryable(tt.err); got != tt.retryable {
			t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.retryable)
		}
	}
}

func TestContentionErrorUnwraps(t *testing.T) {
	cause := errors.New("lock_timeout")
	err := &ContentionError{Key: "lot-1", Err: cause}
	if !errors.Is(err, cause) || !errors.Is(err, ErrContention) {
		t.Fatalf("expected both cause and sentinel to match")
	}
	if err.Error() != "lock lot-1 not acquired" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestValidationErrorMessage(t *testing.T) {
	if msg := (&ValidationError{Reason: "bad"}).Error(); msg != "bad" {
		t.Fatalf("unexpected message %q", msg)
	}
	if msg := (&ValidationError{Field: "quantity", Reason: "must be positive"}).Error(); msg != "quantity: must be positive" {
		t.Fatalf("unexpected message %q", msg)
	}
}
