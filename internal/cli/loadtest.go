package cli

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"crm-sync-gateway/crmsync"
	"crm-sync-gateway/crmsync/domain"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

type LoadtestOptions struct {
	Workers int
	Count   int
}

// LoadReport resume uma rodada de carga.
type LoadReport struct {
	Contacts int64
	Jobs     int64
	// NoTarget conta contatos que não casaram com nenhum destino.
	NoTarget int64
	Elapsed  time.Duration
}

func (r LoadReport) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Contacts) / r.Elapsed.Seconds()
}

var loadCompanies = []string{"", "", "", "TechCorp", "DataInc"}

func randomContact(n int) domain.Contact {
	status := domain.StatusActive
	if rand.IntN(2) == 0 {
		status = domain.StatusInactive
	}
	return domain.Contact{
		Email:     fmt.Sprintf("load%d.%d@example.com", n, rand.IntN(1_000_000)),
		FirstName: "Load",
		LastName:  fmt.Sprintf("Test%d", n),
		Company:   loadCompanies[rand.IntN(len(loadCompanies))],
		Status:    status,
	}
}

// Loadtest cria contatos em paralelo e dispara OnChange(CREATE) para cada um.
func Loadtest(ctx context.Context, d *crmsync.Dispatcher, contacts contactStore, opts LoadtestOptions) (LoadReport, error) {
	var (
		report LoadReport
		total  atomic.Int64
		jobs   atomic.Int64
		none   atomic.Int64
		mu     sync.Mutex
		errs   error
		wg     sync.WaitGroup
	)

	start := time.Now()
	for w := range opts.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range opts.Count {
				if ctx.Err() != nil {
					return
				}
				c, err := contacts.Put(ctx, randomContact(w*opts.Count+i))
				if err == nil {
					var created []domain.Job
					created, err = d.OnChange(ctx, c, domain.OpCreate)
					jobs.Add(int64(len(created)))
					if len(created) == 0 && err == nil {
						none.Add(1)
					}
				}
				if err != nil {
					mu.Lock()
					errs = multierr.Append(errs, err)
					mu.Unlock()
					continue
				}
				total.Add(1)
			}
		}()
	}
	wg.Wait()

	report.Elapsed = time.Since(start)
	report.Contacts = total.Load()
	report.Jobs = jobs.Load()
	report.NoTarget = none.Load()
	return report, errs
}

func NewLoadtestCommand(root *RootOptions) *cobra.Command {
	opts := LoadtestOptions{}

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Create contacts concurrently and enqueue their sync jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Workers <= 0 || opts.Count <= 0 {
				return fmt.Errorf("--workers and --count must be > 0")
			}
			ctx := cmd.Context()
			b, err := root.backend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			d, err := root.dispatcher(b)
			if err != nil {
				return err
			}

			report, err := Loadtest(ctx, d, b.contacts, opts)
			if err != nil {
				return err
			}
			depth, err := b.depth(ctx)
			if err != nil {
				return err
			}
			return printLoadReport(cmd.OutOrStdout(), report, depth)
		},
	}

	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 5, "concurrent producers")
	cmd.Flags().IntVarP(&opts.Count, "count", "n", 100, "contacts per producer")

	return cmd
}

func printLoadReport(w io.Writer, r LoadReport, depth queueDepth) error {
	fmt.Fprintf(w, "contacts:   %d\n", r.Contacts)
	fmt.Fprintf(w, "jobs:       %d\n", r.Jobs)
	fmt.Fprintf(w, "no target:  %d\n", r.NoTarget)
	fmt.Fprintf(w, "elapsed:    %s\n", r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "throughput: %.1f contacts/s\n", r.Throughput())
	return printDepth(w, depth)
}

func printDepth(w io.Writer, depth queueDepth) error {
	fmt.Fprintln(w, "\nqueues:")
	for _, name := range domain.QueueNames() {
		fmt.Fprintf(w, "  %-14s %d\n", name, depth.Ready[name])
	}
	fmt.Fprintf(w, "  %-14s %d\n", "scheduled", depth.Scheduled)
	_, err := fmt.Fprintf(w, "  %-14s %d\n", "dead", depth.Dead)
	return err
}
