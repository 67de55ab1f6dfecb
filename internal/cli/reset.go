package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func NewResetCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <target>",
		Short: "Clear the rate limit, circuit breaker and counters of a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]
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
			if !slices.Contains(d.Targets(), target) {
				return fmt.Errorf("unknown target %q (known: %v)", target, d.Targets())
			}

			err = d.Reset(ctx, target)
			if b.stats != nil {
				err = multierr.Append(err, b.stats.Reset(ctx, target))
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", target)
			return nil
		},
	}
}
