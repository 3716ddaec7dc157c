package types

import (
	"fmt"
	"strings"
	"sync"
)

// MultiError collects per-coin failures from batch operations so one bad
// record does not abort the rest of the batch. Safe for concurrent Add.
type MultiError struct {
	mu     sync.Mutex
	Errors []error
}

func (m *MultiError) Error() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch len(m.Errors) {
	case 0:
		return "no errors"
	case 1:
		return m.Errors[0].Error()
	}
	msgs := make([]string, len(m.Errors))
	for i, err := range m.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d of the batch failed: %s", len(m.Errors), strings.Join(msgs, "; "))
}

func (m *MultiError) Add(err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors = append(m.Errors, err)
}

// Addf records a failure tagged with the item it belongs to.
func (m *MultiError) Addf(format string, args ...any) {
	m.Add(fmt.Errorf(format, args...))
}

func (m *MultiError) IsEmpty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Errors) == 0
}

// ErrOrNil collapses an empty collection to nil so callers can return it
// directly.
func (m *MultiError) ErrOrNil() error {
	if m.IsEmpty() {
		return nil
	}
	return m
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (m *MultiError) Unwrap() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]error, len(m.Errors))
	copy(out, m.Errors)
	return out
}
