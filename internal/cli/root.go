// Package cli implementa os comandos do synctool (ferramenta de operação do sync).
package cli

import (
	"context"
	"fmt"

	"crm-sync-gateway/crmsync"
	"crm-sync-gateway/crmsync/domain"
	"crm-sync-gateway/crmsync/infra"
	"crm-sync-gateway/crmsync/rules"
	"crm-sync-gateway/internal/config"
	"crm-sync-gateway/internal/logging"
	rdomain "crm-sync-gateway/resilience/domain"
	rinfra "crm-sync-gateway/resilience/infra"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

// RootOptions são as flags globais.
type RootOptions struct {
	Verbose bool
	// Redis usa o Redis do ambiente (REDIS_ADDR...) em vez de estado em memória.
	Redis     bool
	RulesFile string
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "synctool",
		Short: "Operator tooling for the CRM sync workers",
		Long: `Inspect and exercise the CRM sync pipeline: run the resilience scenarios,
generate load, evaluate routing rules and read or reset per-target state.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging")
	cmd.PersistentFlags().BoolVar(&opts.Redis, "redis", false, "use the Redis configured in the environment")
	cmd.PersistentFlags().StringVar(&opts.RulesFile, "rules", "", "rules YAML file (default: embedded rules)")

	cmd.AddCommand(NewScenariosCommand(opts))
	cmd.AddCommand(NewLoadtestCommand(opts))
	cmd.AddCommand(NewEvaluateCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))

	return cmd
}

func (o *RootOptions) logger() logr.Logger {
	if !o.Verbose {
		return logr.Discard()
	}
	logger, err := logging.NewLogger(logging.VERBOSE, true)
	if err != nil {
		return logr.Discard()
	}
	return logger
}

func (o *RootOptions) rules() (rules.Config, error) {
	return rules.LoadFile(o.RulesFile)
}

// contactStore é o diretório onde os comandos gravam contatos de teste.
type contactStore interface {
	domain.ContactSource
	Put(ctx context.Context, c domain.Contact) (domain.Contact, error)
}

type memoryContacts struct{ *infra.MemoryContacts }

func (m memoryContacts) Put(_ context.Context, c domain.Contact) (domain.Contact, error) {
	return m.MemoryContacts.Put(c), nil
}

// backend é o conjunto de stores que os comandos usam, em memória ou Redis.
type backend struct {
	rdb        *redis.Client
	store      rdomain.Store
	queue      domain.JobQueue
	memQueue   *infra.MemoryQueue
	redisQueue *infra.RedisQueue
	contacts   contactStore
	stats      *infra.RedisStatsStore
	cfg        config.Config
}

func (b *backend) Close() error {
	if b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

type queueDepth struct {
	Ready     map[string]int64
	Scheduled int64
	Dead      int64
}

func (b *backend) depth(ctx context.Context) (queueDepth, error) {
	d := queueDepth{Ready: make(map[string]int64)}
	if b.memQueue != nil {
		for _, name := range domain.QueueNames() {
			d.Ready[name] = int64(b.memQueue.Len(name))
		}
		d.Scheduled = int64(len(b.memQueue.Scheduled()))
		d.Dead = int64(len(b.memQueue.Dead()))
		return d, nil
	}

	var err, e error
	for _, name := range domain.QueueNames() {
		d.Ready[name], e = b.redisQueue.Len(ctx, name)
		err = multierr.Append(err, e)
	}
	d.Scheduled, e = b.redisQueue.ScheduledCount(ctx)
	err = multierr.Append(err, e)
	d.Dead, e = b.redisQueue.DeadCount(ctx)
	err = multierr.Append(err, e)
	return d, err
}

func (o *RootOptions) backend(ctx context.Context) (*backend, error) {
	if !o.Redis {
		q := infra.NewMemoryQueue()
		return &backend{
			store:    rinfra.NewMemoryStore(),
			queue:    q,
			memQueue: q,
			contacts: memoryContacts{infra.NewMemoryContacts()},
		}, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	rdb, err := cfg.NewRedisClient(ctx)
	if err != nil {
		return nil, err
	}
	q := infra.NewRedisQueue(rdb, infra.WithQueuePrefix(cfg.QueuePrefix))
	return &backend{
		rdb:        rdb,
		store:      rinfra.NewRedisStore(rdb),
		queue:      q,
		redisQueue: q,
		contacts:   infra.NewRedisContacts(rdb, ""),
		stats: infra.NewRedisStatsStore(rdb,
			infra.WithStatsPrefix(cfg.StatsPrefix),
			infra.WithStatsTTL(cfg.StatsTTL),
			infra.WithStatsBucket(cfg.StatsBucket),
		),
		cfg: cfg,
	}, nil
}

// dispatcher monta um Dispatcher sobre o backend, com a mesma configuração do worker.
func (o *RootOptions) dispatcher(b *backend) (*crmsync.Dispatcher, error) {
	ruleCfg, err := o.rules()
	if err != nil {
		return nil, err
	}
	opts := crmsync.Options{
		Store:    b.store,
		Queue:    b.queue,
		Contacts: b.contacts,
		Rules:    &ruleCfg,
		Logger:   o.logger(),
	}
	if b.rdb != nil {
		opts.DefaultRateLimit = b.cfg.DefaultRateLimit
		opts.RateWindow = b.cfg.RateWindow
		opts.FailureThreshold = b.cfg.BreakerThreshold
		opts.BreakerTimeout = b.cfg.BreakerTimeout
	}
	d, err := crmsync.New(opts)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: %w", err)
	}
	return d, nil
}
