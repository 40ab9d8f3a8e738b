package runner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vgrippa/myflames/internal/parser"
	"github.com/vgrippa/myflames/internal/runner"
)

const explainPayload = `{"query": "select * from t", "operation": "Table scan on t", "table_name": "t", "actual_last_row_ms": 0.8, "actual_loops": 1}`

func TestExplain(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec(runner.FormatVersionStatement).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(runner.ExplainStatement("select * from t")).
		WillReturnRows(sqlmock.NewRows([]string{"EXPLAIN"}).AddRow(explainPayload))

	payload, err := runner.Explain(context.Background(), db, "  select * from t;\n", runner.ExplainOptions{Timeout: time.Second})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	plan, err := parser.Parse(payload)
	require.NoError(t, err)
	assert.Equal(t, "Table scan on t", plan.Root.Operation)
	assert.Equal(t, "select * from t", plan.Query)
}

func TestExplainFormatVersionUnsupported(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	unknown := errors.New("Error 1193 (HY000): Unknown system variable 'explain_json_format_version'")
	mock.ExpectExec(runner.FormatVersionStatement).WillReturnError(unknown)

	_, err = runner.Explain(context.Background(), db, "select 1", runner.ExplainOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, unknown)
	assert.Contains(t, err.Error(), "set format version")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExplainQueryError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec(runner.FormatVersionStatement).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(runner.ExplainStatement("select nope")).WillReturnError(errors.New("syntax error"))

	_, err = runner.Explain(context.Background(), db, "select nope", runner.ExplainOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runner: query")
}

func TestExplainRejectsEmptyStatement(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = runner.Explain(context.Background(), db, " ; ", runner.ExplainOptions{})
	assert.Error(t, err)
	_, err = runner.Explain(context.Background(), nil, "select 1", runner.ExplainOptions{})
	assert.Error(t, err)
}

func TestExplainStatement(t *testing.T) {
	assert.Equal(t, "EXPLAIN ANALYZE FORMAT=JSON select 1", runner.ExplainStatement("select 1"))
}
