package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := errors.New("connection refused")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain error", base, KindUnknown},
		{"direct", New(NotFound, "load", "session not found"), NotFound},
		{"caller error", New(InvalidInput, "start login", "invalid session name"), InvalidInput},
		{"wrapped by fmt", fmt.Errorf("outer: %w", Wrap(AttachFailure, "connect", "endpoint unreachable", base)), AttachFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestKindValues(t *testing.T) {
	assert.Equal(t, Kind("invalid_input"), InvalidInput)
	assert.Equal(t, Kind("navigation_failure"), NavigationFailure)
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	base := errors.New("disk full")
	err := Wrap(PersistenceFailure, "save", "could not write session", base)

	assert.Equal(t, "save: could not write session: disk full", err.Error())
	assert.True(t, errors.Is(err, base))
	assert.True(t, Is(err, PersistenceFailure))
	assert.False(t, Is(err, NotFound))
}

func TestGuidance(t *testing.T) {
	err := New(AttachFailure, "connect", "no browser listening").WithGuidance("start chrome with --remote-debugging-port=9222")

	assert.Equal(t, "start chrome with --remote-debugging-port=9222", GuidanceOf(fmt.Errorf("wrap: %w", err)))
	assert.Empty(t, GuidanceOf(errors.New("x")))
}
