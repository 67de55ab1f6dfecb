package crmsync

import (
	"context"
	"errors"
	"time"

	"crm-sync-gateway/crmsync/application"
	"crm-sync-gateway/crmsync/domain"
	"crm-sync-gateway/crmsync/infra"
	"crm-sync-gateway/crmsync/rules"
	rapp "crm-sync-gateway/resilience/application"
	rdomain "crm-sync-gateway/resilience/domain"
	rinfra "crm-sync-gateway/resilience/infra"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"
	"k8s.io/utils/clock"
)

// Options configura um Dispatcher. Store, Queue e Contacts são obrigatórios;
// o resto tem padrão.
type Options struct {
	Store    rdomain.Store
	Queue    domain.JobQueue
	Contacts domain.ContactSource

	// Rules nil usa rules.Default().
	Rules *rules.Config
	// Clients nil cria um MockCRMClient por destino das regras.
	Clients    map[string]domain.CRMClient
	Transforms map[string]application.Transform
	Stats      domain.StatsStore

	DefaultRateLimit int
	RateWindow       time.Duration
	FailureThreshold int
	BreakerTimeout   time.Duration

	RateLimitDelay   time.Duration
	CircuitOpenDelay time.Duration

	// Concurrency é o número de jobs simultâneos neste processo.
	Concurrency    int
	AcquireTimeout time.Duration
	// PacerRPS limita retiradas por fila por segundo; 0 desliga.
	PacerRPS     float64
	PacerBurst   int
	MaxRetries   int
	PollInterval time.Duration

	Logger logr.Logger
	Clock  clock.WithTicker
}

// Dispatcher junta o lado de avaliação (OnChange) e o de execução (Run).
type Dispatcher struct {
	Limiter   *rapp.RateLimiter
	Breaker   *rapp.CircuitBreaker
	Evaluator application.Evaluator
	Worker    *application.Worker
	Runner    *application.Runner

	pacer *rinfra.Pacer
	rules *rules.Engine
}

func New(opts Options) (*Dispatcher, error) {
	if opts.Store == nil {
		return nil, errors.New("crmsync: store is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("crmsync: queue is required")
	}
	if opts.Contacts == nil {
		return nil, errors.New("crmsync: contact source is required")
	}
	if opts.Rules == nil {
		cfg := rules.Default()
		opts.Rules = &cfg
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Transforms == nil {
		opts.Transforms = application.DefaultTransforms()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 10
	}
	engine := opts.Rules.Engine()
	if opts.Clients == nil {
		opts.Clients = make(map[string]domain.CRMClient)
		for _, target := range engine.Targets() {
			c := infra.NewMockCRMClient(target, infra.FailureRateFromEnv(target))
			c.Clock = opts.Clock
			opts.Clients[target] = c
		}
	}

	limiter := rapp.NewRateLimiter(opts.Store, opts.DefaultRateLimit, opts.RateWindow)
	limiter.Clock = opts.Clock
	limiter.RetryAfter = opts.RateLimitDelay
	for target, n := range opts.Rules.Limits() {
		limiter.SetLimit(rdomain.Key(target), n)
	}

	breaker := rapp.NewCircuitBreaker(opts.Store, opts.FailureThreshold, opts.BreakerTimeout)
	breaker.Clock = opts.Clock

	worker := &application.Worker{
		Limiter:          limiter,
		Breaker:          breaker,
		Clients:          opts.Clients,
		Transforms:       opts.Transforms,
		Contacts:         opts.Contacts,
		Queue:            opts.Queue,
		Stats:            opts.Stats,
		RateLimitDelay:   opts.RateLimitDelay,
		CircuitOpenDelay: opts.CircuitOpenDelay,
		Logger:           opts.Logger.WithName("worker"),
		Clock:            opts.Clock,
	}

	pacer := rinfra.NewPacer(opts.PacerRPS, opts.PacerBurst, rinfra.WithPacerClock(opts.Clock))
	runner := &application.Runner{
		Queue:        opts.Queue,
		Handler:      worker,
		Slots:        &rapp.Slots{Pool: rinfra.NewChanPool(opts.Concurrency), AcquireTimeout: opts.AcquireTimeout},
		Pacer:        pacer,
		MaxRetries:   opts.MaxRetries,
		PollInterval: opts.PollInterval,
		Stats:        opts.Stats,
		Logger:       opts.Logger.WithName("runner"),
		Clock:        opts.Clock,
	}

	return &Dispatcher{
		Limiter: limiter,
		Breaker: breaker,
		Evaluator: application.Evaluator{
			Rules:  engine,
			Queue:  opts.Queue,
			Logger: opts.Logger.WithName("evaluator"),
			Clock:  opts.Clock,
		},
		Worker: worker,
		Runner: runner,
		pacer:  pacer,
		rules:  engine,
	}, nil
}

// OnChange enfileira os jobs do evento de mudança. Nunca espera a execução.
func (d *Dispatcher) OnChange(ctx context.Context, contact domain.Contact, op domain.Operation) ([]domain.Job, error) {
	return d.Evaluator.OnChange(ctx, contact, op)
}

// Run consome as filas até ctx encerrar.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.pacer.StartJanitor(ctx)
	return d.Runner.Run(ctx)
}

func (d *Dispatcher) Targets() []string { return d.rules.Targets() }

// TargetStatus é a foto do estado de resiliência de um destino.
type TargetStatus struct {
	Target   string
	Usage    int64
	Limit    int
	State    rdomain.CircuitState
	Failures int64
	OpenedAt time.Time
}

func (d *Dispatcher) Status(ctx context.Context, target string) (TargetStatus, error) {
	key := rdomain.Key(target)
	st := TargetStatus{Target: target, Limit: d.Limiter.Limit(key)}

	var err, e error
	st.Usage, e = d.Limiter.CurrentUsage(ctx, key)
	err = multierr.Append(err, e)
	st.State, e = d.Breaker.CurrentState(ctx, key)
	err = multierr.Append(err, e)
	st.Failures, e = d.Breaker.CurrentFailureCount(ctx, key)
	err = multierr.Append(err, e)
	st.OpenedAt, _, e = d.Breaker.OpenedAt(ctx, key)
	err = multierr.Append(err, e)
	return st, err
}

// Reset limpa o estado do rate limit e do circuit breaker do destino.
func (d *Dispatcher) Reset(ctx context.Context, target string) error {
	key := rdomain.Key(target)
	return multierr.Combine(
		d.Limiter.Reset(ctx, key),
		d.Breaker.Reset(ctx, key),
	)
}
