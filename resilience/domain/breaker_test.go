package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCircuitState(t *testing.T) {
	for _, s := range []CircuitState{CircuitClosed, CircuitOpen, CircuitHalfOpen} {
		assert.Equal(t, s, ParseCircuitState(s.String()))
	}
	// ausente ou lixo volta a Closed
	assert.Equal(t, CircuitClosed, ParseCircuitState(""))
	assert.Equal(t, CircuitClosed, ParseCircuitState("ajar"))
}

func TestOpenError(t *testing.T) {
	err := fmt.Errorf("sync: %w", &OpenError{Key: "hubspot"})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Contains(t, err.Error(), "hubspot")

	var open *OpenError
	assert.True(t, errors.As(err, &open))
	assert.Equal(t, Key("hubspot"), open.Key)
}
