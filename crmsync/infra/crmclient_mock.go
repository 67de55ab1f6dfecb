package infra

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"crm-sync-gateway/crmsync/domain"

	"github.com/google/uuid"
	"k8s.io/utils/clock"
)

const (
	DefaultFailureRate = 0.05
	DefaultMinLatency  = 100 * time.Millisecond
	DefaultMaxLatency  = 300 * time.Millisecond
)

// ErrSimulatedFailure é a falha transitória injetada pelo MockCRMClient.
var ErrSimulatedFailure = errors.New("simulated API error")

// MockCRMClient simula a API de um CRM: falha com probabilidade FailureRate
// (antes de qualquer latência) e responde depois de uma latência aleatória
// entre MinLatency e MaxLatency.
type MockCRMClient struct {
	Target      string
	FailureRate float64
	MinLatency  time.Duration
	MaxLatency  time.Duration
	Clock       clock.Clock

	calls atomic.Int64
}

func NewMockCRMClient(target string, failureRate float64) *MockCRMClient {
	return &MockCRMClient{
		Target:      target,
		FailureRate: failureRate,
		MinLatency:  DefaultMinLatency,
		MaxLatency:  DefaultMaxLatency,
		Clock:       clock.RealClock{},
	}
}

// FailureRateFromEnv lê <TARGET>_FAILURE_RATE (ex: SALESFORCE_FAILURE_RATE).
// Ausente ou inválido vale DefaultFailureRate.
func FailureRateFromEnv(target string) float64 {
	v, ok := os.LookupEnv(strings.ToUpper(target) + "_FAILURE_RATE")
	if !ok {
		return DefaultFailureRate
	}
	rate, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || rate < 0 || rate > 1 {
		return DefaultFailureRate
	}
	return rate
}

// Calls conta as chamadas recebidas, inclusive as que falharam.
func (c *MockCRMClient) Calls() int64 { return c.calls.Load() }

func (c *MockCRMClient) Create(ctx context.Context, _ domain.Record) (domain.Result, error) {
	// id externo no formato hex de 16 caracteres
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	return c.call(ctx, domain.OpCreate, id)
}

func (c *MockCRMClient) Update(ctx context.Context, id string, _ domain.Record) (domain.Result, error) {
	return c.call(ctx, domain.OpUpdate, id)
}

func (c *MockCRMClient) Delete(ctx context.Context, id string) (domain.Result, error) {
	return c.call(ctx, domain.OpDelete, id)
}

func (c *MockCRMClient) call(ctx context.Context, op domain.Operation, id string) (domain.Result, error) {
	c.calls.Add(1)

	if c.FailureRate > 0 && rand.Float64() < c.FailureRate {
		return domain.Result{}, fmt.Errorf("%s %s: %w", c.Target, op, ErrSimulatedFailure)
	}

	if d := c.latency(); d > 0 {
		select {
		case <-ctx.Done():
			return domain.Result{}, ctx.Err()
		case <-c.clock().After(d):
		}
	}

	return domain.Result{
		Success:    true,
		ExternalID: id,
		Operation:  op,
		Target:     c.Target,
		Timestamp:  c.clock().Now().UTC(),
	}, nil
}

func (c *MockCRMClient) latency() time.Duration {
	if c.MaxLatency <= c.MinLatency {
		return c.MinLatency
	}
	return c.MinLatency + rand.N(c.MaxLatency-c.MinLatency)
}

func (c *MockCRMClient) clock() clock.Clock {
	if c.Clock == nil {
		return clock.RealClock{}
	}
	return c.Clock
}
