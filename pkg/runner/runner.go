// Package runner executes external tools. Every command slipway issues to
// the world (swift, docker, file, git) goes through a Runner so the argv is
// assembled in one place and can be faked in tests.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

const defaultMaxOutputBytes = 4 * 1024 * 1024

var (
	ErrToolNotFound = errors.New("tool not found")
)

// Command describes a single external tool invocation.
type Command struct {
	Name  string
	Args  []string
	Dir   string
	Env   []string
	Stdin io.Reader

	// Stream tees the child's output to the parent's stdout and stderr
	// while still capturing it, for long-running interactive tools.
	Stream bool
}

// String renders the command the way a user would type it.
func (c Command) String() string {
	parts := append([]string{c.Name}, c.Args...)
	for i, part := range parts {
		if strings.ContainsAny(part, " \t\"'") {
			parts[i] = fmt.Sprintf("%q", part)
		}
	}
	return strings.Join(parts, " ")
}

// Result holds the output of a command execution. A non-zero exit code is
// not an error at this layer; callers decide what an exit code means.
type Result struct {
	Stdout    []byte
	Stderr    []byte
	ExitCode  int
	Truncated bool
	Duration  time.Duration
}

// StderrTail returns up to n trailing lines of stderr for error messages.
func (r *Result) StderrTail(n int) string {
	lines := strings.Split(strings.TrimSpace(string(r.Stderr)), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
	LookPath(name string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// MaxOutputBytes caps captured stdout and stderr individually.
	MaxOutputBytes int64
}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{MaxOutputBytes: defaultMaxOutputBytes}
}

func (e *ExecRunner) LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return path, nil
}

func (e *ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	path, err := e.LookPath(cmd.Name)
	if err != nil {
		return nil, err
	}

	execCmd := exec.CommandContext(ctx, path, cmd.Args...)
	execCmd.Dir = cmd.Dir
	execCmd.Stdin = cmd.Stdin
	if len(cmd.Env) > 0 {
		execCmd.Env = append(os.Environ(), cmd.Env...)
	}

	max := e.MaxOutputBytes
	if max <= 0 {
		max = defaultMaxOutputBytes
	}

	var stdout, stderr strings.Builder
	stdoutLimited := &limitedWriter{w: &stdout, max: max}
	stderrLimited := &limitedWriter{w: &stderr, max: max}

	if cmd.Stream {
		execCmd.Stdout = io.MultiWriter(os.Stdout, stdoutLimited)
		execCmd.Stderr = io.MultiWriter(os.Stderr, stderrLimited)
	} else {
		execCmd.Stdout = stdoutLimited
		execCmd.Stderr = stderrLimited
	}

	start := time.Now()
	runErr := execCmd.Run()

	result := &Result{
		Stdout:    []byte(stdout.String()),
		Stderr:    []byte(stderr.String()),
		Truncated: stdoutLimited.truncated || stderrLimited.truncated,
		Duration:  time.Since(start),
	}

	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, fmt.Errorf("command %s interrupted after %s: %w",
				cmd.Name, result.Duration.Round(time.Millisecond), ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("unable to run %s: %w", cmd.Name, runErr)
	}

	return result, nil
}

// limitedWriter drops writes beyond max so a chatty tool cannot balloon
// memory; the Result notes the truncation.
type limitedWriter struct {
	w         io.Writer
	max       int64
	n         int64
	truncated bool
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	remaining := l.max - l.n
	if remaining <= 0 {
		l.truncated = true
		return len(p), nil
	}
	if int64(len(p)) > remaining {
		l.truncated = true
		if _, err := l.w.Write(p[:remaining]); err != nil {
			return 0, err
		}
		l.n = l.max
		return len(p), nil
	}
	n, err := l.w.Write(p)
	l.n += int64(n)
	return n, err
}
