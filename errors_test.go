package clover

import (
	"errors"
	"fmt"
	"testing"

	"github.com/cloverproject/clovercore/internal/event"
)

func TestStructuredError(t *testing.T) {
	err := NewError("EnqueueWriteBuffer", ErrCodeArgumentValidation, "offset out of range")

	if err.Op != "EnqueueWriteBuffer" {
		t.Errorf("Expected Op=EnqueueWriteBuffer, got %s", err.Op)
	}
	if err.Code != ErrCodeArgumentValidation {
		t.Errorf("Expected Code=ErrCodeArgumentValidation, got %s", err.Code)
	}

	expected := "clover: offset out of range (op=EnqueueWriteBuffer)"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestErrorMessageFallsBackToCode(t *testing.T) {
	err := NewError("", ErrCodeResource, "")
	expected := "clover: resource allocation failed"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestWrapError(t *testing.T) {
	inner := fmt.Errorf("allocation of 1024 bytes failed")
	err := WrapError("EnqueueMapBuffer", ErrCodeResource, inner)

	if err.Code != ErrCodeResource {
		t.Errorf("Expected Code=ErrCodeResource, got %s", err.Code)
	}
	if !errors.Is(err, inner) {
		t.Error("Expected wrapped error to match errors.Is")
	}

	// Wrapping a structured error keeps its code and message.
	rewrapped := WrapError("CreateSubBuffer", ErrCodeExecutionFailure, err)
	if rewrapped.Code != ErrCodeResource {
		t.Errorf("Expected rewrap to keep ErrCodeResource, got %s", rewrapped.Code)
	}
	if rewrapped.Op != "CreateSubBuffer" {
		t.Errorf("Expected rewrap to take the new op, got %s", rewrapped.Op)
	}

	if WrapError("anything", ErrCodeResource, nil) != nil {
		t.Error("Wrapping nil must return nil")
	}
}

func TestIsCode(t *testing.T) {
	err := NewError("CreateQueue", ErrCodeArgumentValidation, "bad properties")

	if !IsCode(err, ErrCodeArgumentValidation) {
		t.Error("IsCode should match the error's own code")
	}
	if IsCode(err, ErrCodeResource) {
		t.Error("IsCode should not match a different code")
	}
	if IsCode(fmt.Errorf("plain"), ErrCodeResource) {
		t.Error("IsCode should not match an unstructured error")
	}

	wrapped := fmt.Errorf("outer: %w", err)
	if !IsCode(wrapped, ErrCodeArgumentValidation) {
		t.Error("IsCode should see through error wrapping")
	}
}

func TestErrorsIsByCode(t *testing.T) {
	a := NewError("OpA", ErrCodeAlignment, "one")
	b := NewError("OpB", ErrCodeAlignment, "two")
	c := NewError("OpC", ErrCodeResource, "three")

	if !errors.Is(a, b) {
		t.Error("errors with the same code should match errors.Is")
	}
	if errors.Is(a, c) {
		t.Error("errors with different codes should not match errors.Is")
	}
}

func TestStatusError(t *testing.T) {
	cases := []struct {
		status event.Status
		code   ErrorCode
	}{
		{event.StatusArgumentValidation, ErrCodeArgumentValidation},
		{event.StatusAlignment, ErrCodeAlignment},
		{event.StatusResource, ErrCodeResource},
		{event.StatusDependencyFailure, ErrCodeDependencyFailure},
		{event.StatusExecutionFailure, ErrCodeExecutionFailure},
	}
	for _, tc := range cases {
		err := StatusError("WaitForEvents", tc.status)
		if err == nil {
			t.Fatalf("status %d should convert to an error", tc.status)
		}
		if err.Code != tc.code {
			t.Errorf("status %d: expected code %s, got %s", tc.status, tc.code, err.Code)
		}
	}

	if StatusError("WaitForEvents", event.StatusComplete) != nil {
		t.Error("Complete must not convert to an error")
	}
	if StatusError("WaitForEvents", event.StatusRunning) != nil {
		t.Error("Running must not convert to an error")
	}
}
