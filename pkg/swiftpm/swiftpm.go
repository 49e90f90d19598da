// Package swiftpm drives the Swift Package Manager command line. It owns
// every argv handed to the swift tool so flag spelling lives in one place.
package swiftpm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/slipway-dev/slipway/pkg/constants"
	"github.com/slipway-dev/slipway/pkg/runner"
)

// BuildOptions describes one swift build invocation.
type BuildOptions struct {
	// Directory is the package root, where Package.swift lives.
	Directory string

	Configuration string

	// Product narrows the build to one product. Empty builds everything.
	Product string

	// SwiftSDK is the id handed to --swift-sdk for cross builds. Empty
	// builds for the host.
	SwiftSDK string

	// StaticStdlib links the Swift runtime into the binary, trading
	// size for a no-dependency deploy.
	StaticStdlib bool

	// Strip asks the linker to drop the symbol table from the binary.
	Strip bool

	SwiftcFlags []string
	LinkerFlags []string

	// Extra is passed through to swift build verbatim, after every flag
	// slipway knows how to spell.
	Extra []string

	Env     map[string]string
	Jobs    int
	Verbose bool
}

// Args assembles the swift build argv for the options.
func (o BuildOptions) Args() []string {
	args := []string{"build", "-c", o.Configuration}
	if o.Product != "" {
		args = append(args, "--product", o.Product)
	}
	if o.SwiftSDK != "" {
		args = append(args, "--swift-sdk", o.SwiftSDK)
	}
	if o.StaticStdlib {
		args = append(args, "--static-swift-stdlib")
	}
	if o.Jobs > 0 {
		args = append(args, "--jobs", strconv.Itoa(o.Jobs))
	}
	for _, flag := range o.SwiftcFlags {
		args = append(args, "-Xswiftc", flag)
	}
	for _, flag := range o.LinkerFlags {
		args = append(args, "-Xlinker", flag)
	}
	if o.Strip {
		args = append(args, "-Xlinker", "-s")
	}
	if o.Verbose {
		args = append(args, "--verbose")
	}
	args = append(args, o.Extra...)
	return args
}

func (o BuildOptions) environ() []string {
	if len(o.Env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(o.Env))
	for k := range o.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+o.Env[k])
	}
	return env
}

// Build runs swift build, streaming compiler output through to the user.
func Build(ctx context.Context, rnr runner.Runner, opts BuildOptions) error {
	cmd := runner.Command{
		Name:   constants.ToolSwift,
		Args:   opts.Args(),
		Dir:    opts.Directory,
		Env:    opts.environ(),
		Stream: true,
	}
	slog.Debug("running swift build", "args", cmd.String(), "dir", opts.Directory)

	result, err := rnr.Run(ctx, cmd)
	if err != nil {
		return fmt.Errorf("unable to run swift build: %w", err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("swift build exited with status %d", result.ExitCode)
	}
	slog.Debug("swift build finished", "duration", result.Duration.Round(time.Millisecond))
	return nil
}

// BinPath asks SwiftPM where the build products for the options land. The
// answer depends on configuration and SDK, so the same flags are passed.
func BinPath(ctx context.Context, rnr runner.Runner, opts BuildOptions) (string, error) {
	// The answer must be exactly one line on stdout. Verbose mode prints
	// tool invocations ahead of it, and --jobs has no bearing on the path.
	opts.Verbose = false
	opts.Jobs = 0
	cmd := runner.Command{
		Name: constants.ToolSwift,
		Args: append(opts.Args(), "--show-bin-path"),
		Dir:  opts.Directory,
		Env:  opts.environ(),
	}
	result, err := rnr.Run(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("unable to query bin path: %w", err)
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("swift build --show-bin-path exited with status %d: %s",
			result.ExitCode, result.StderrTail(5))
	}
	path := strings.TrimSpace(string(result.Stdout))
	if path == "" {
		return "", fmt.Errorf("swift build --show-bin-path printed nothing")
	}
	return path, nil
}
