package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/atlas/pkg/adapters/postgres"
)

// NewPlanMergeCommand creates the plan-merge command.
func NewPlanMergeCommand() *cobra.Command {
	var (
		onConflict string
		columns    []string
		pkeys      []string
	)

	cmd := &cobra.Command{
		Use:   "plan-merge <source> <target>",
		Short: "Print the statement that merges one table into another",
		Long: `Print the INSERT ... SELECT ... ON CONFLICT statement that moves every row
of source into target. Both tables must be schema qualified. Nothing is
executed.`,
		Example: `  atlas plan-merge staging.asset public.asset --on-conflict ignore --pkeys isin
  atlas plan-merge staging.asset public.asset --on-conflict update --pkeys isin --columns isin,name,last_price`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			stmt, err := postgres.PlanMerge(postgres.MergeRequest{
				Source:     args[0],
				Target:     args[1],
				OnConflict: postgres.ConflictPolicy(onConflict),
				Columns:    columns,
				PKeys:      pkeys,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), stmt)
			return nil
		},
	}

	cmd.Flags().StringVar(&onConflict, "on-conflict", string(postgres.ConflictIgnore), "Conflict policy: ignore or update")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "Full column list of the target (required for update)")
	cmd.Flags().StringSliceVar(&pkeys, "pkeys", nil, "Primary key columns forming the conflict target")

	return cmd
}
