package crmsync

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"crm-sync-gateway/crmsync/domain"
	"crm-sync-gateway/crmsync/infra"
	"crm-sync-gateway/crmsync/rules"
	logutil "crm-sync-gateway/internal/logging"
	rdomain "crm-sync-gateway/resilience/domain"
	rinfra "crm-sync-gateway/resilience/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

type fixture struct {
	d        *Dispatcher
	clk      *testingclock.FakeClock
	queue    *infra.MemoryQueue
	contacts *infra.MemoryContacts
	stats    *infra.MemoryStatsStore
	clients  map[string]*infra.MockCRMClient
}

func newFixture(t *testing.T, rulesYAML string, failureRates map[string]float64) *fixture {
	t.Helper()
	clk := testingclock.NewFakeClock(time.Date(2025, 6, 7, 12, 0, 0, 0, time.UTC))

	var cfg *rules.Config
	if rulesYAML != "" {
		c, err := rules.Load(strings.NewReader(rulesYAML))
		require.NoError(t, err)
		cfg = &c
	}

	f := &fixture{
		clk:      clk,
		queue:    infra.NewMemoryQueue(infra.WithQueueClock(clk)),
		contacts: infra.NewMemoryContacts(),
		stats:    infra.NewMemoryStatsStore(),
		clients:  make(map[string]*infra.MockCRMClient),
	}
	clients := make(map[string]domain.CRMClient)
	for _, target := range []string{"salesforce", "hubspot"} {
		c := infra.NewMockCRMClient(target, failureRates[target])
		c.MinLatency, c.MaxLatency = 0, 0
		f.clients[target] = c
		clients[target] = c
	}

	d, err := New(Options{
		Store:            rinfra.NewMemoryStore(rinfra.WithClock(clk)),
		Queue:            f.queue,
		Contacts:         f.contacts,
		Rules:            cfg,
		Clients:          clients,
		Stats:            f.stats,
		FailureThreshold: 3,
		BreakerTimeout:   30 * time.Second,
		Logger:           logutil.NewTestLogger(),
		Clock:            clk,
	})
	require.NoError(t, err)
	f.d = d
	return f
}

// drain processa tudo que está pronto agora, sem avançar o relógio.
func (f *fixture) drain(t *testing.T) int {
	t.Helper()
	ctx := context.Background()
	n := 0
	for {
		_, err := f.queue.PromoteDue(ctx)
		require.NoError(t, err)
		del, err := f.queue.Dequeue(ctx, domain.QueueNames())
		if errors.Is(err, domain.ErrQueueEmpty) {
			return n
		}
		require.NoError(t, err)
		f.d.Runner.Process(ctx, del)
		n++
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
	_, err = New(Options{Store: rinfra.NewMemoryStore()})
	assert.Error(t, err)
	_, err = New(Options{Store: rinfra.NewMemoryStore(), Queue: infra.NewMemoryQueue()})
	assert.Error(t, err)
}

func TestNew_DefaultsFromRules(t *testing.T) {
	d, err := New(Options{
		Store:    rinfra.NewMemoryStore(),
		Queue:    infra.NewMemoryQueue(),
		Contacts: infra.NewMemoryContacts(),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"hubspot", "salesforce"}, d.Targets())
	assert.Equal(t, 100, d.Limiter.Limit("salesforce"))
	assert.Equal(t, 50, d.Limiter.Limit("hubspot"))
	assert.Contains(t, d.Worker.Clients, "salesforce")
	assert.Contains(t, d.Worker.Clients, "hubspot")
}

func TestDispatcher_ChangeEventSyncsBothTargets(t *testing.T) {
	f := newFixture(t, "", nil)
	ctx := context.Background()
	c := f.contacts.Put(domain.Contact{Email: "ada@example.com", Company: "Acme", Status: domain.StatusActive})

	jobs, err := f.d.OnChange(ctx, c, domain.OpCreate)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, 2, f.drain(t))
	assert.Equal(t, int64(1), f.clients["salesforce"].Calls())
	assert.Equal(t, int64(1), f.clients["hubspot"].Calls())
	assert.Equal(t, int64(2), f.stats.Total()[domain.OutcomeSynced])
}

func TestDispatcher_RateLimitScenario(t *testing.T) {
	f := newFixture(t, `
targets:
  hubspot:
    rate_limit: 3
    rules:
      create: always
`, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		c := f.contacts.Put(domain.Contact{Email: "c@example.com", Status: domain.StatusActive})
		_, err := f.d.OnChange(ctx, c, domain.OpCreate)
		require.NoError(t, err)
	}
	f.drain(t)

	assert.Equal(t, int64(3), f.clients["hubspot"].Calls())
	assert.Equal(t, int64(2), f.stats.Total()[domain.OutcomeRateLimited])
	require.Len(t, f.queue.Scheduled(), 2)
	for _, s := range f.queue.Scheduled() {
		assert.Equal(t, 1, s.Job.Deferrals)
		assert.Zero(t, s.Job.Attempt)
	}

	f.clk.Step(61 * time.Second)
	assert.Equal(t, 2, f.drain(t))
	assert.Equal(t, int64(5), f.clients["hubspot"].Calls())
	assert.Empty(t, f.queue.Dead())

	st, err := f.d.Status(ctx, "hubspot")
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Usage, "entries older than the window no longer count")
	assert.Equal(t, 3, st.Limit)
}

func TestDispatcher_CircuitBreakerScenario(t *testing.T) {
	f := newFixture(t, `
targets:
  salesforce:
    rate_limit: 100
    rules:
      create: always
`, map[string]float64{"salesforce": 1})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		c := f.contacts.Put(domain.Contact{Email: "c@example.com", Status: domain.StatusActive})
		_, err := f.d.OnChange(ctx, c, domain.OpCreate)
		require.NoError(t, err)
	}
	f.drain(t)

	assert.Equal(t, int64(3), f.clients["salesforce"].Calls(), "4th call must not reach the client")
	assert.Equal(t, int64(3), f.stats.Total()[domain.OutcomeFailed])
	assert.Equal(t, int64(1), f.stats.Total()[domain.OutcomeCircuitOpen])

	st, err := f.d.Status(ctx, "salesforce")
	require.NoError(t, err)
	assert.Equal(t, rdomain.CircuitOpen, st.State)
	assert.Equal(t, int64(3), st.Failures)
	assert.WithinDuration(t, f.clk.Now(), st.OpenedAt, 0)

	var retries, deferrals int
	for _, s := range f.queue.Scheduled() {
		if s.Job.Attempt == 1 {
			retries++
		}
		if s.Job.Deferrals == 1 {
			deferrals++
		}
	}
	assert.Equal(t, 3, retries)
	assert.Equal(t, 1, deferrals)

	// destino se recupera e o circuito fecha na sonda
	f.clients["salesforce"].FailureRate = 0
	f.clk.Step(61 * time.Second)
	assert.Equal(t, 4, f.drain(t))
	st, err = f.d.Status(ctx, "salesforce")
	require.NoError(t, err)
	assert.Equal(t, rdomain.CircuitClosed, st.State)
	assert.Zero(t, st.Failures)
}

func TestDispatcher_Reset(t *testing.T) {
	f := newFixture(t, "", map[string]float64{"hubspot": 1})
	ctx := context.Background()
	c := f.contacts.Put(domain.Contact{Email: "x@y.z", Company: "Acme", Status: domain.StatusActive})

	for i := 0; i < 3; i++ {
		_, err := f.d.OnChange(ctx, c, domain.OpUpdate)
		require.NoError(t, err)
	}
	f.drain(t)

	st, err := f.d.Status(ctx, "hubspot")
	require.NoError(t, err)
	require.Equal(t, rdomain.CircuitOpen, st.State)

	require.NoError(t, f.d.Reset(ctx, "hubspot"))
	st, err = f.d.Status(ctx, "hubspot")
	require.NoError(t, err)
	assert.Equal(t, rdomain.CircuitClosed, st.State)
	assert.Zero(t, st.Usage)
	assert.Zero(t, st.Failures)
	assert.True(t, st.OpenedAt.IsZero())
}
