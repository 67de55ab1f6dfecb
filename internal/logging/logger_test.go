package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_VerbosityGatesV(t *testing.T) {
	logger, err := NewLogger(DEBUG, false)
	require.NoError(t, err)
	assert.True(t, logger.V(DEBUG).Enabled())
	assert.False(t, logger.V(TRACE).Enabled())

	logger, err = NewLogger(DEFAULT, true)
	require.NoError(t, err)
	assert.True(t, logger.Enabled())
	assert.False(t, logger.V(VERBOSE).Enabled())
}

func TestFromContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := IntoContext(context.Background(), NewTestLogger().WithName("runner"))
	logger, ok := FromContext(ctx)
	require.True(t, ok)
	assert.True(t, logger.V(TRACE).Enabled())
}
