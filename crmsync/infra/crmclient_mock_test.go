package infra

import (
	"context"
	"testing"
	"time"

	"crm-sync-gateway/crmsync/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func instantClient(target string, failureRate float64) *MockCRMClient {
	c := NewMockCRMClient(target, failureRate)
	c.MinLatency, c.MaxLatency = 0, 0
	return c
}

func TestMockCRMClient_Success(t *testing.T) {
	c := instantClient("salesforce", 0)
	ctx := context.Background()

	res, err := c.Create(ctx, domain.Record{"email": "a@b.c"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, res.ExternalID, 16)
	assert.Equal(t, domain.OpCreate, res.Operation)
	assert.Equal(t, "salesforce", res.Target)

	res, err = c.Update(ctx, "42", nil)
	require.NoError(t, err)
	assert.Equal(t, "42", res.ExternalID)

	res, err = c.Delete(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, domain.OpDelete, res.Operation)
	assert.Equal(t, int64(3), c.Calls())
}

func TestMockCRMClient_AlwaysFails(t *testing.T) {
	c := instantClient("hubspot", 1)
	_, err := c.Create(context.Background(), nil)
	assert.ErrorIs(t, err, ErrSimulatedFailure)
	assert.Contains(t, err.Error(), "hubspot")
}

func TestMockCRMClient_HonorsContext(t *testing.T) {
	c := NewMockCRMClient("salesforce", 0)
	c.MinLatency, c.MaxLatency = time.Hour, time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Update(ctx, "1", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFailureRateFromEnv(t *testing.T) {
	assert.Equal(t, DefaultFailureRate, FailureRateFromEnv("pipedrive"))

	t.Setenv("PIPEDRIVE_FAILURE_RATE", "0.25")
	assert.Equal(t, 0.25, FailureRateFromEnv("pipedrive"))

	t.Setenv("PIPEDRIVE_FAILURE_RATE", "lots")
	assert.Equal(t, DefaultFailureRate, FailureRateFromEnv("pipedrive"))

	t.Setenv("PIPEDRIVE_FAILURE_RATE", "2")
	assert.Equal(t, DefaultFailureRate, FailureRateFromEnv("pipedrive"))
}
