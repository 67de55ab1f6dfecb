package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"crm-sync-gateway/crmsync"
	"crm-sync-gateway/crmsync/domain"
	"crm-sync-gateway/crmsync/infra"

	"github.com/spf13/cobra"
)

var statsOutcomes = []domain.Outcome{
	domain.OutcomeSynced,
	domain.OutcomeRateLimited,
	domain.OutcomeCircuitOpen,
	domain.OutcomeFailed,
	domain.OutcomeDead,
}

func NewStatsCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show rate limit, circuit breaker and queue state per target",
		Long: `Prints the resilience state of every target plus queue depths. Job counters
are only available with --redis and STATS_ENABLED.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			statuses := make([]crmsync.TargetStatus, 0, len(d.Targets()))
			counters := make(map[string]infra.Counters)
			for _, target := range d.Targets() {
				st, err := d.Status(ctx, target)
				if err != nil {
					return fmt.Errorf("status %s: %w", target, err)
				}
				statuses = append(statuses, st)

				if b.stats != nil {
					c, err := b.stats.Target(ctx, target)
					if err != nil {
						return fmt.Errorf("stats %s: %w", target, err)
					}
					counters[target] = c
				}
			}

			depth, err := b.depth(ctx)
			if err != nil {
				return err
			}
			return printStats(cmd.OutOrStdout(), statuses, counters, depth)
		},
	}
}

func printStats(w io.Writer, statuses []crmsync.TargetStatus, counters map[string]infra.Counters, depth queueDepth) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tUSAGE\tCIRCUIT\tFAILURES\tOPENED_AT")
	for _, st := range statuses {
		opened := "-"
		if !st.OpenedAt.IsZero() {
			opened = st.OpenedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%d/%d\t%s\t%d\t%s\n", st.Target, st.Usage, st.Limit, st.State, st.Failures, opened)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(counters) > 0 {
		fmt.Fprintln(w)
		fmt.Fprint(tw, "TARGET")
		for _, o := range statsOutcomes {
			fmt.Fprintf(tw, "\t%s", o)
		}
		fmt.Fprintln(tw)
		for _, st := range statuses {
			fmt.Fprint(tw, st.Target)
			for _, o := range statsOutcomes {
				fmt.Fprintf(tw, "\t%d", counters[st.Target][o])
			}
			fmt.Fprintln(tw)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	return printDepth(w, depth)
}
