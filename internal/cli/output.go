package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vgrippa/myflames/internal/analyzer"
	"github.com/vgrippa/myflames/internal/label"
	"github.com/vgrippa/myflames/internal/model"
	"github.com/vgrippa/myflames/internal/parser"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Malformed plan, renderer failure, nothing to draw
	ExitCommandError = 2 // Bad flags, unreadable input or config, missing renderer
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitSuccess for nil and ExitFailure for errors that carry no code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// readInput reads path, or the command's stdin when path is empty or "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "read stdin", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "read input", err)
	}
	return data, nil
}

func loadPlan(cmd *cobra.Command, path string) (*model.Plan, error) {
	data, err := readInput(cmd, path)
	if err != nil {
		return nil, err
	}
	plan, err := parser.Parse(data)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "parse plan", err)
	}
	return plan, nil
}

func loadAnalysis(cmd *cobra.Command, path string, opts label.Options) (*analyzer.PlanAnalysis, error) {
	plan, err := loadPlan(cmd, path)
	if err != nil {
		return nil, err
	}
	analysis, err := analyzer.Analyze(plan, label.New(opts))
	if err != nil {
		return nil, WrapExitError(ExitFailure, "analyze plan", err)
	}
	return analysis, nil
}

// writeOutput writes data to path in one step, or to stdout when path is
// empty or "-".
func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" || path == "-" {
		if _, err := cmd.OutOrStdout().Write(data); err != nil {
			return WrapExitError(ExitFailure, "write output", err)
		}
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return WrapExitError(ExitCommandError, "write output", err)
	}
	return nil
}

func indentJSON(data []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return nil, fmt.Errorf("indent json: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// noArgs rejects positional arguments as a command error.
func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return WrapExitError(ExitCommandError, "invalid arguments", err)
	}
	return nil
}
