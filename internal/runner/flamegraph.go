package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// RendererUnavailableError reports a renderer that cannot be found or started.
type RendererUnavailableError struct {
	Binary string
	Err    error
}

func (e *RendererUnavailableError) Error() string {
	return fmt.Sprintf("renderer unavailable: %s: %v", e.Binary, e.Err)
}

func (e *RendererUnavailableError) Unwrap() error {
	return e.Err
}

// RendererFailureError reports a renderer that exited with a non-zero status.
type RendererFailureError struct {
	Binary string
	Code   int
	Stderr string
}

func (e *RendererFailureError) Error() string {
	msg := fmt.Sprintf("renderer %s exited with status %d", e.Binary, e.Code)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// FlameOptions configures the flame graph renderer invocation.
type FlameOptions struct {
	Binary    string
	Width     int
	Height    int
	Colors    string
	Title     string
	CountName string
	Inverted  bool
	Timeout   time.Duration
}

// Args returns the renderer command-line flags.
func (o FlameOptions) Args() []string {
	var args []string
	if o.Width > 0 {
		args = append(args, "--width", strconv.Itoa(o.Width))
	}
	if o.Height > 0 {
		args = append(args, "--height", strconv.Itoa(o.Height))
	}
	if o.Colors != "" {
		args = append(args, "--colors", o.Colors)
	}
	if o.Title != "" {
		args = append(args, "--title", o.Title)
	}
	if o.CountName != "" {
		args = append(args, "--countname", o.CountName)
	}
	if o.Inverted {
		args = append(args, "--inverted")
	}
	return args
}

// Flamegraph pipes folded-stack text through the external renderer and
// returns its SVG output. Input is written while output is drained so that
// neither side can block on a full pipe.
func Flamegraph(ctx context.Context, folded []byte, opts FlameOptions) ([]byte, error) {
	binary := opts.Binary
	if binary == "" {
		binary = "flamegraph.pl"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, &RendererUnavailableError{Binary: binary, Err: err}
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, path, opts.Args()...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &RendererUnavailableError{Binary: binary, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &RendererUnavailableError{Binary: binary, Err: err}
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, &RendererUnavailableError{Binary: binary, Err: err}
	}

	var out bytes.Buffer
	var g errgroup.Group
	g.Go(func() error {
		_, werr := stdin.Write(folded)
		// Closing signals end of input even when the write failed.
		if cerr := stdin.Close(); werr == nil {
			werr = cerr
		}
		return werr
	})
	g.Go(func() error {
		_, rerr := io.Copy(&out, stdout)
		return rerr
	})
	ioErr := g.Wait()

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("renderer %s: %w", binary, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &RendererFailureError{Binary: binary, Code: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return nil, fmt.Errorf("renderer %s: wait: %w", binary, err)
	}
	if ioErr != nil {
		return nil, fmt.Errorf("renderer %s: pipe: %w", binary, ioErr)
	}
	return out.Bytes(), nil
}
