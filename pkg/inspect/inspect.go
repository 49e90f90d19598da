// Package inspect identifies built binaries with file(1) and checks that
// what was built matches the target it was built for. Catching an
// architecture mix-up here is much cheaper than catching it in a container
// pull on the production host.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/slipway-dev/slipway/pkg/constants"
	"github.com/slipway-dev/slipway/pkg/runner"
)

var ErrMismatch = errors.New("binary does not match target")

const (
	FormatELF   = "elf"
	FormatMachO = "mach-o"
	FormatPE    = "pe"

	LinkageStatic  = "static"
	LinkageDynamic = "dynamic"
)

// Info is what file(1) told us about a binary, normalized.
type Info struct {
	// Raw is the untouched file -b output.
	Raw string `json:"raw"`

	// Format is elf, mach-o, or pe; empty when unrecognized.
	Format string `json:"format,omitempty"`

	// Arch is normalized: x86_64 or aarch64.
	Arch string `json:"arch,omitempty"`

	// Linkage is static or dynamic.
	Linkage string `json:"linkage,omitempty"`

	// Stripped is whether the symbol table was removed. Only ELF output
	// says, so it stays false for other formats.
	Stripped bool `json:"stripped"`
}

// Inspect runs file -b on the binary at path.
func Inspect(ctx context.Context, rnr runner.Runner, path string) (*Info, error) {
	result, err := rnr.Run(ctx, runner.Command{
		Name: constants.ToolFile,
		Args: []string{"-b", path},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to run file: %w", err)
	}
	if result.ExitCode != 0 {
		return nil, fmt.Errorf("file exited with status %d: %s",
			result.ExitCode, result.StderrTail(2))
	}
	return parse(strings.TrimSpace(string(result.Stdout))), nil
}

// file(1) spells architectures a few different ways.
var archSpellings = map[string]string{
	"x86-64":      "x86_64",
	"x86_64":      "x86_64",
	"ARM aarch64": "aarch64",
	"aarch64":     "aarch64",
	"arm64":       "aarch64",
}

func parse(raw string) *Info {
	info := &Info{Raw: raw}

	switch {
	case strings.HasPrefix(raw, "ELF"):
		info.Format = FormatELF
		// The architecture is the second comma-separated field, e.g.
		// "ELF 64-bit LSB executable, x86-64, version 1 (SYSV), ...".
		fields := strings.Split(raw, ", ")
		if len(fields) > 1 {
			info.Arch = archSpellings[fields[1]]
		}
		info.Linkage = LinkageDynamic
		if strings.Contains(raw, "statically linked") {
			info.Linkage = LinkageStatic
		}
		// The description ends with "stripped" or "not stripped".
		info.Stripped = strings.HasSuffix(raw, ", stripped")
	case strings.HasPrefix(raw, "Mach-O"):
		info.Format = FormatMachO
		// e.g. "Mach-O 64-bit executable arm64".
		fields := strings.Fields(raw)
		if len(fields) > 0 {
			info.Arch = archSpellings[fields[len(fields)-1]]
		}
		info.Linkage = LinkageDynamic
	case strings.HasPrefix(raw, "PE32"):
		info.Format = FormatPE
		// e.g. "PE32+ executable (console) x86-64, for MS Windows".
		// file(1) capitalizes "Aarch64" here, so match case-insensitively.
		lower := strings.ToLower(raw)
		for _, spelling := range []string{"x86-64", "aarch64", "arm64"} {
			if strings.Contains(lower, spelling) {
				info.Arch = archSpellings[spelling]
				break
			}
		}
		info.Linkage = LinkageDynamic
	}
	return info
}

// MatchesTriple checks the binary against a target triple. Linux targets
// must be ELF, Apple targets Mach-O, Windows targets PE, and architectures
// must agree after normalizing the arm64/aarch64 split.
func (i *Info) MatchesTriple(triple string) error {
	if i.Format == "" {
		return fmt.Errorf("%w: not a recognized executable: %s", ErrMismatch, i.Raw)
	}

	expectedFormat := FormatELF
	switch {
	case strings.Contains(triple, "apple"):
		expectedFormat = FormatMachO
	case strings.Contains(triple, "windows"):
		expectedFormat = FormatPE
	}
	if i.Format != expectedFormat {
		return fmt.Errorf("%w: binary is %s but %s wants %s",
			ErrMismatch, i.Format, triple, expectedFormat)
	}

	expectedArch := tripleArch(triple)
	if i.Arch == "" {
		return fmt.Errorf("%w: unrecognized architecture in %q", ErrMismatch, i.Raw)
	}
	if i.Arch != expectedArch {
		return fmt.Errorf("%w: binary is %s but %s wants %s",
			ErrMismatch, i.Arch, triple, expectedArch)
	}
	return nil
}

func tripleArch(triple string) string {
	arch, _, _ := strings.Cut(triple, "-")
	if normalized, ok := archSpellings[arch]; ok {
		return normalized
	}
	return arch
}
