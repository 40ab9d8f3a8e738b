package runner

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// FormatVersionStatement selects the tree-shaped JSON format that carries
// per-node timings.
const FormatVersionStatement = "SET explain_json_format_version = 2"

// ExplainOptions customises how EXPLAIN ANALYZE is executed.
type ExplainOptions struct {
	Timeout time.Duration
}

// Explain executes EXPLAIN ANALYZE FORMAT=JSON for the provided statement and
// returns the JSON document. Both statements run on one connection because the
// format version is a session variable.
func Explain(ctx context.Context, db *sql.DB, statement string, opts ExplainOptions) ([]byte, error) {
	if db == nil {
		return nil, fmt.Errorf("runner: nil database handle")
	}
	query := strings.TrimSuffix(strings.TrimSpace(statement), ";")
	if query == "" {
		return nil, fmt.Errorf("runner: empty sql statement")
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("runner: connect: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	if _, err := conn.ExecContext(ctx, FormatVersionStatement); err != nil {
		return nil, fmt.Errorf("runner: set format version: %w", err)
	}

	var payload []byte
	if err := conn.QueryRowContext(ctx, ExplainStatement(query)).Scan(&payload); err != nil {
		return nil, fmt.Errorf("runner: query: %w", err)
	}
	return payload, nil
}

// ExplainStatement wraps query in EXPLAIN ANALYZE FORMAT=JSON.
func ExplainStatement(query string) string {
	return "EXPLAIN ANALYZE FORMAT=JSON " + query
}
