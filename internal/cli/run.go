package cli

import (
	"database/sql"
	"log/slog"
	"os"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/spf13/cobra"

	"github.com/vgrippa/myflames/internal/runner"
)

// DSNEnv names the environment variable consulted when --dsn is empty.
const DSNEnv = "MYSQL_DSN"

// RunOptions holds flags for the run command.
type RunOptions struct {
	DSN     string
	SQLFile string
	Query   string
	Output  string
	Timeout time.Duration
}

// NewRunCommand creates the run command.
func NewRunCommand(_ *RootOptions) *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute EXPLAIN ANALYZE FORMAT=JSON against MySQL",
		Long: `Run EXPLAIN ANALYZE FORMAT=JSON for a statement and print the plan.

The statement is executed, so only point this at data you can afford to query.
The DSN uses the go-sql-driver/mysql format, e.g. user:pass@tcp(127.0.0.1:3306)/db.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.DSN, "dsn", "", "MySQL DSN; defaults to $"+DSNEnv)
	cmd.Flags().StringVar(&opts.SQLFile, "sql", "", "path to the SQL file to EXPLAIN")
	cmd.Flags().StringVar(&opts.Query, "query", "", "inline SQL statement to EXPLAIN")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (stdout if omitted)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "execution timeout, e.g. 45s")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	dsn := strings.TrimSpace(opts.DSN)
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv(DSNEnv))
	}
	if dsn == "" {
		return NewExitError(ExitCommandError, "--dsn is required or set $"+DSNEnv)
	}

	statement, err := resolveStatement(opts)
	if err != nil {
		return err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer func() {
		_ = db.Close()
	}()

	slog.Debug("running explain", "timeout", opts.Timeout)
	payload, err := runner.Explain(cmd.Context(), db, statement, runner.ExplainOptions{Timeout: opts.Timeout})
	if err != nil {
		return WrapExitError(ExitFailure, "explain", err)
	}
	pretty, err := indentJSON(payload)
	if err != nil {
		return WrapExitError(ExitFailure, "format plan", err)
	}
	return writeOutput(cmd, opts.Output, pretty)
}

func resolveStatement(opts *RunOptions) (string, error) {
	switch {
	case opts.SQLFile != "" && opts.Query != "":
		return "", NewExitError(ExitCommandError, "specify only one of --sql or --query")
	case opts.SQLFile != "":
		data, err := os.ReadFile(opts.SQLFile)
		if err != nil {
			return "", WrapExitError(ExitCommandError, "read sql file", err)
		}
		return string(data), nil
	case opts.Query != "":
		return opts.Query, nil
	default:
		return "", NewExitError(ExitCommandError, "--sql or --query is required")
	}
}
