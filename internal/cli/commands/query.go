package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/atlas/pkg/adapter"
	"github.com/leapstack-labs/atlas/pkg/core"
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Format string
	Input  string
	Args   []string
	Params []string
	Exec   bool
}

// NewQueryCommand creates the query command.
func NewQueryCommand(open Opener) *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Run a SQL statement against the database",
		Long: `Run a SQL statement on the configured PostgreSQL database and print
the result.

Values are bound with %s placeholders (--arg, in order) or %(name)s
placeholders (--param name=value). They never enter the statement text.`,
		Example: `  # Execute SQL directly
  atlas query "SELECT * FROM asset_type ORDER BY id"

  # Bind parameters
  atlas query "SELECT * FROM asset WHERE isin = %s" --arg US0378331005
  atlas query "SELECT * FROM asset_transaction WHERE user_id = %(user_id)s" --param user_id=7

  # Run a statement without a result
  atlas query --exec "DELETE FROM staging.asset"

  # Read SQL from a file, output as JSON
  atlas query -i report.sql --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args, opts, open)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: auto, table, json (default from --output)")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")
	cmd.Flags().StringArrayVar(&opts.Args, "arg", nil, "Positional parameter for %s placeholders (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Params, "param", nil, "Named parameter name=value for %(name)s placeholders (repeatable)")
	cmd.Flags().BoolVar(&opts.Exec, "exec", false, "Execute a statement that returns no rows")

	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{FormatAuto, FormatTable, FormatJSON}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runQuery(cmd *cobra.Command, args []string, opts *QueryOptions, open Opener) error {
	cmdCtx := NewCommandContext(cmd)

	sqlQuery, err := readStatement(cmd, args, opts.Input)
	if err != nil {
		return err
	}
	params, err := buildParams(opts.Args, opts.Params)
	if err != nil {
		return err
	}

	format := opts.Format
	if format == "" {
		format = cmdCtx.Cfg.Output
	}
	format = resolveFormat(format, cmd.OutOrStdout())

	sess, err := open(cmd.Context(), cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()

	if opts.Exec {
		if err := sess.Execute(cmd.Context(), sqlQuery, params); err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "OK")
		return nil
	}

	res, err := sess.Fetch(cmd.Context(), sqlQuery, params, core.ShapeDataFrame)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	frame, ok := res.(*core.Frame)
	if !ok {
		return fmt.Errorf("unexpected result type %T", res)
	}
	return renderFrame(cmd.OutOrStdout(), frame, format)
}

// readStatement takes SQL from the arguments, --input, or piped stdin.
func readStatement(cmd *cobra.Command, args []string, input string) (string, error) {
	var sqlQuery string
	switch {
	case len(args) > 0:
		sqlQuery = strings.Join(args, " ")
	case input != "":
		content, err := os.ReadFile(input)
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
		sqlQuery = string(content)
	default:
		in := cmd.InOrStdin()
		if f, ok := in.(*os.File); ok && isTerminal(f) {
			return "", errors.New("no SQL given: pass it as an argument, with --input, or on stdin")
		}
		content, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		sqlQuery = string(content)
	}

	if strings.TrimSpace(sqlQuery) == "" {
		return "", errors.New("empty SQL statement")
	}
	return sqlQuery, nil
}

// buildParams turns --arg and --param values into a Binder. The two styles
// cannot be mixed in one statement.
func buildParams(positional, named []string) (adapter.Binder, error) {
	switch {
	case len(positional) > 0 && len(named) > 0:
		return nil, errors.New("--arg and --param cannot be combined")
	case len(positional) > 0:
		args := make(adapter.Args, len(positional))
		for i, v := range positional {
			args[i] = v
		}
		return args, nil
	case len(named) > 0:
		params := make(adapter.NamedArgs, len(named))
		for _, kv := range named {
			name, value, ok := strings.Cut(kv, "=")
			if !ok || name == "" {
				return nil, fmt.Errorf("--param must be name=value, got %q", kv)
			}
			params[name] = value
		}
		return params, nil
	}
	return nil, nil
}
