package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/atlas/pkg/adapters/postgres"
	"github.com/leapstack-labs/atlas/pkg/inserter"
)

// LoadOptions holds options for the load command.
type LoadOptions struct {
	Table      string
	Schema     string
	Columns    []string
	Delimiter  string
	OnConflict string
	PKeys      []string
}

// NewLoadCommand creates the load command.
func NewLoadCommand(open Opener) *cobra.Command {
	opts := &LoadOptions{}

	cmd := &cobra.Command{
		Use:   "load <file|->",
		Short: "Bulk load a delimited file into a table",
		Long: `Stream a delimited text file into a table through COPY FROM STDIN.

Empty fields load as NULL. With --on-conflict the rows are first copied into
a fresh staging table and then merged into the target, either skipping rows
whose primary key already exists (ignore) or overwriting their non-key
columns (update).`,
		Example: `  # Tab separated file into public.asset
  atlas load assets.tsv --table asset

  # Comma separated with an explicit column list
  atlas load prices.csv --table asset_data --delimiter , --columns asset_isin,date,mid_close

  # Merge into the target, updating existing rows
  atlas load assets.tsv --table asset --on-conflict update --pkeys isin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd, args[0], opts, open)
		},
	}

	cmd.Flags().StringVarP(&opts.Table, "table", "t", "", "Target table, optionally schema qualified")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "Target schema (default public)")
	cmd.Flags().StringSliceVar(&opts.Columns, "columns", nil, "Columns present in the file, in order")
	cmd.Flags().StringVarP(&opts.Delimiter, "delimiter", "d", postgres.DefaultDelimiter, "Single byte field delimiter")
	cmd.Flags().StringVar(&opts.OnConflict, "on-conflict", "", "Merge through a staging table: ignore or update")
	cmd.Flags().StringSliceVar(&opts.PKeys, "pkeys", nil, "Primary key columns for --on-conflict")
	cmd.Flags().String("staging-schema", inserter.DefaultStagingSchema, "Schema that holds the temporary staging table")
	_ = cmd.MarkFlagRequired("table")

	_ = cmd.RegisterFlagCompletionFunc("on-conflict", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{string(postgres.ConflictIgnore), string(postgres.ConflictUpdate)}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runLoad(cmd *cobra.Command, path string, opts *LoadOptions, open Opener) error {
	cmdCtx := NewCommandContext(cmd)

	var (
		content []byte
		err     error
	)
	if path == "-" {
		content, err = io.ReadAll(cmd.InOrStdin())
	} else {
		content, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	if len(content) == 0 {
		return fmt.Errorf("%s is empty", path)
	}

	req := postgres.CopyRequest{
		Table:     opts.Table,
		Schema:    opts.Schema,
		CSV:       string(content),
		Columns:   opts.Columns,
		Delimiter: opts.Delimiter,
	}
	if err := req.Validate(); err != nil {
		return err
	}

	var policy postgres.ConflictPolicy
	if opts.OnConflict != "" {
		if policy, err = postgres.ParseConflictPolicy(opts.OnConflict); err != nil {
			return err
		}
	} else if len(opts.PKeys) > 0 {
		return fmt.Errorf("--pkeys requires --on-conflict")
	}

	sess, err := open(cmd.Context(), cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	var n int64
	if policy != "" {
		n, err = sess.Upsert(cmd.Context(), inserter.UpsertRequest{
			Load:          req,
			OnConflict:    policy,
			PKeys:         opts.PKeys,
			StagingSchema: cmdCtx.Cfg.StagingSchema,
		})
	} else {
		n, err = sess.Insert(cmd.Context(), req)
	}
	if err != nil {
		return fmt.Errorf("load failed: %w", err)
	}

	verb := "loaded"
	if policy != "" {
		verb = "merged"
	}
	target := opts.Table
	if opts.Schema != "" && !strings.Contains(target, ".") {
		target = opts.Schema + "." + target
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %d rows into %s\n", verb, n, target)
	return nil
}
