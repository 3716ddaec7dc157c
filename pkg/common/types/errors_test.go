package types

import (
	"errors"
	"strings"
	"testing"
)

func TestMultiError_CollectsFailures(t *testing.T) {
	var m MultiError
	m.Add(errors.New("first"))
	m.Add(nil)
	m.Add(errors.New("second"))

	if m.IsEmpty() {
		t.Error("Expected collected errors")
	}
	if len(m.Errors) != 2 {
		t.Errorf("Expected 2 errors, got %d", len(m.Errors))
	}
	msg := m.Error()
	if !strings.HasPrefix(msg, "2 of the batch failed:") {
		t.Errorf("Expected batch summary prefix, got %q", msg)
	}
}

func TestMultiError_SingleFailureKeepsItsMessage(t *testing.T) {
	var m MultiError
	m.Add(errors.New("only failure"))

	if m.Error() != "only failure" {
		t.Errorf("Expected bare message, got %q", m.Error())
	}
}

func TestMultiError_ErrOrNil(t *testing.T) {
	var m MultiError
	if err := m.ErrOrNil(); err != nil {
		t.Errorf("Expected nil for empty collection, got %v", err)
	}

	m.Add(errors.New("boom"))
	if err := m.ErrOrNil(); err == nil {
		t.Error("Expected non-nil after a failure")
	}
}

func TestMultiError_UnwrapExposesSentinels(t *testing.T) {
	sentinel := errors.New("spent")
	var m MultiError
	m.Addf("coin abc: %w", sentinel)

	if !errors.Is(m.ErrOrNil(), sentinel) {
		t.Error("Expected errors.Is to find the wrapped sentinel")
	}
}
