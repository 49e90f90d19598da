// Package verify smoke-tests staged binaries inside containers. A Linux
// binary cross-compiled on a Mac has never actually run anywhere until a
// container on the right platform executes it.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/slipway-dev/slipway/pkg/constants"
	"github.com/slipway-dev/slipway/pkg/runner"
)

const DefaultImage = "ubuntu:24.04"

var ErrNoRuntime = errors.New("no container runtime found")

// PlatformFor maps a Linux target triple to the container platform string
// runtimes expect. Apple triples have no container platform.
func PlatformFor(triple string) (string, error) {
	if !strings.Contains(triple, "linux") {
		return "", fmt.Errorf("no container platform for target %s", triple)
	}
	arch, _, _ := strings.Cut(triple, "-")
	switch arch {
	case "x86_64":
		return "linux/amd64", nil
	case "aarch64", "arm64":
		return "linux/arm64", nil
	}
	return "", fmt.Errorf("no container platform for architecture %s", arch)
}

// DetectRuntime finds a usable container runtime, preferring docker.
func DetectRuntime(rnr runner.Runner) (string, error) {
	for _, tool := range []string{constants.ToolDocker, constants.ToolPodman} {
		if _, err := rnr.LookPath(tool); err == nil {
			return tool, nil
		}
	}
	return "", ErrNoRuntime
}

// Options describes one smoke test.
type Options struct {
	// ArtifactDir is the staging directory mounted into the container.
	ArtifactDir string

	// Product is the binary inside ArtifactDir to execute.
	Product string

	Triple string

	// Image, Platform, Args, and Runtime are optional; sensible values
	// are derived when empty.
	Image    string
	Platform string
	Args     []string
	Runtime  string

	// Timeout bounds the container run. Zero leaves only the caller's
	// context in charge.
	Timeout time.Duration
}

// Report records what the smoke test did and how it went.
type Report struct {
	Runtime  string
	Image    string
	Platform string
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	OK       bool
}

// Run executes the product inside a container on the target platform. The
// report's OK field carries the verdict; an error means the test could not
// be run at all.
func Run(ctx context.Context, rnr runner.Runner, opts Options) (*Report, error) {
	if opts.Runtime == "" {
		runtime, err := DetectRuntime(rnr)
		if err != nil {
			return nil, err
		}
		opts.Runtime = runtime
	}
	if opts.Platform == "" {
		platform, err := PlatformFor(opts.Triple)
		if err != nil {
			return nil, err
		}
		opts.Platform = platform
	}
	if opts.Image == "" {
		opts.Image = DefaultImage
	}
	if len(opts.Args) == 0 {
		opts.Args = []string{"--version"}
	}

	// Container runtimes want an absolute host path for bind mounts.
	absDir, err := filepath.Abs(opts.ArtifactDir)
	if err != nil {
		return nil, fmt.Errorf("unable to resolve %s: %w", opts.ArtifactDir, err)
	}

	args := []string{
		"run", "--rm",
		"--platform", opts.Platform,
		"-v", absDir + ":/work:ro",
		"-w", "/work",
		opts.Image,
		"./" + opts.Product,
	}
	args = append(args, opts.Args...)

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := runner.Command{Name: opts.Runtime, Args: args}
	slog.Info("running smoke test",
		"runtime", opts.Runtime,
		"image", opts.Image,
		"platform", opts.Platform,
		"product", opts.Product,
	)
	slog.Debug("smoke test command", "args", cmd.String())

	result, err := rnr.Run(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("unable to run smoke test: %w", err)
	}

	return &Report{
		Runtime:  opts.Runtime,
		Image:    opts.Image,
		Platform: opts.Platform,
		Command:  cmd.String(),
		ExitCode: result.ExitCode,
		Stdout:   string(result.Stdout),
		Stderr:   string(result.Stderr),
		Duration: result.Duration,
		OK:       result.ExitCode == 0,
	}, nil
}
