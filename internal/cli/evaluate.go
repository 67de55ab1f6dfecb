package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"crm-sync-gateway/crmsync/domain"

	"github.com/spf13/cobra"
)

type EvaluateOptions struct {
	Operation string
	Status    string
	Company   string
	Email     string
}

func NewEvaluateCommand(root *RootOptions) *cobra.Command {
	opts := EvaluateOptions{}

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Show which targets a contact would be synced to",
		Long: `Evaluates the routing rules for a contact snapshot. Without --operation every
operation is evaluated.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, ok := domain.ParseStatus(opts.Status)
			if !ok {
				return fmt.Errorf("invalid --status %q (active, inactive or deleted)", opts.Status)
			}
			cfg, err := root.rules()
			if err != nil {
				return err
			}
			engine := cfg.Engine()

			ops := []domain.Operation{domain.OpCreate, domain.OpUpdate, domain.OpDelete}
			if opts.Operation != "" {
				ops = []domain.Operation{domain.ParseOperation(opts.Operation)}
			}

			contact := domain.Contact{Email: opts.Email, Company: opts.Company, Status: status}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "OPERATION\tQUEUE\tTARGETS")
			for _, op := range ops {
				targets := engine.ApplicableTargets(contact, op)
				list := "-"
				if len(targets) > 0 {
					list = strings.Join(targets, ",")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", op, domain.PriorityOf(op).Queue(), list)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&opts.Operation, "operation", "o", "", "CREATE, UPDATE or DELETE")
	cmd.Flags().StringVar(&opts.Status, "status", "active", "contact status")
	cmd.Flags().StringVar(&opts.Company, "company", "", "contact company")
	cmd.Flags().StringVar(&opts.Email, "email", "someone@example.com", "contact email")

	return cmd
}
