package inspect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipway-dev/slipway/pkg/runner"
	"github.com/slipway-dev/slipway/pkg/testutil"
)

const (
	elfDynamicAmd64 = "ELF 64-bit LSB executable, x86-64, version 1 (SYSV), dynamically linked, " +
		"interpreter /lib64/ld-linux-x86-64.so.2, for GNU/Linux 3.2.0, not stripped"
	elfStaticArm64 = "ELF 64-bit LSB pie executable, ARM aarch64, version 1 (GNU/Linux), " +
		"statically linked, stripped"
	machoArm64 = "Mach-O 64-bit executable arm64"
	peAmd64    = "PE32+ executable (console) x86-64, for MS Windows"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		expected Info
	}{
		{
			name: "dynamic linux amd64",
			raw:  elfDynamicAmd64,
			expected: Info{
				Format:  FormatELF,
				Arch:    "x86_64",
				Linkage: LinkageDynamic,
			},
		},
		{
			name: "static linux arm64",
			raw:  elfStaticArm64,
			expected: Info{
				Format:   FormatELF,
				Arch:     "aarch64",
				Linkage:  LinkageStatic,
				Stripped: true,
			},
		},
		{
			name: "macos arm64",
			raw:  machoArm64,
			expected: Info{
				Format:  FormatMachO,
				Arch:    "aarch64",
				Linkage: LinkageDynamic,
			},
		},
		{
			name: "windows amd64",
			raw:  peAmd64,
			expected: Info{
				Format:  FormatPE,
				Arch:    "x86_64",
				Linkage: LinkageDynamic,
			},
		},
		{
			name:     "not an executable",
			raw:      "ASCII text",
			expected: Info{},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			info := parse(tc.raw)
			assert.Equal(t, tc.expected.Format, info.Format)
			assert.Equal(t, tc.expected.Arch, info.Arch)
			assert.Equal(t, tc.expected.Linkage, info.Linkage)
			assert.Equal(t, tc.expected.Stripped, info.Stripped)
			assert.Equal(t, tc.raw, info.Raw)
		})
	}
}

func TestMatchesTriple(t *testing.T) {
	testCases := []struct {
		name   string
		raw    string
		triple string
		errIs  error
	}{
		{
			name:   "elf amd64 matches linux amd64",
			raw:    elfDynamicAmd64,
			triple: "x86_64-unknown-linux-gnu",
		},
		{
			name:   "elf arm64 matches linux arm64",
			raw:    elfStaticArm64,
			triple: "aarch64-unknown-linux-gnu",
		},
		{
			name:   "macho arm64 matches apple arm64 spelling",
			raw:    machoArm64,
			triple: "arm64-apple-macosx",
		},
		{
			name:   "pe amd64 matches windows amd64",
			raw:    peAmd64,
			triple: "x86_64-unknown-windows-msvc",
		},
		{
			name:   "arch mismatch",
			raw:    elfDynamicAmd64,
			triple: "aarch64-unknown-linux-gnu",
			errIs:  ErrMismatch,
		},
		{
			name:   "format mismatch",
			raw:    machoArm64,
			triple: "aarch64-unknown-linux-gnu",
			errIs:  ErrMismatch,
		},
		{
			name:   "not an executable",
			raw:    "ASCII text",
			triple: "x86_64-unknown-linux-gnu",
			errIs:  ErrMismatch,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := parse(tc.raw).MatchesTriple(tc.triple)
			if tc.errIs != nil {
				assert.ErrorIs(t, err, tc.errIs)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestInspect(t *testing.T) {
	fake := &testutil.FakeRunner{
		RunFunc: func(_ context.Context, _ runner.Command) (*runner.Result, error) {
			return &runner.Result{Stdout: []byte(elfDynamicAmd64 + "\n")}, nil
		},
	}

	info, err := Inspect(context.Background(), fake, "/work/dist/App")
	require.NoError(t, err)
	assert.Equal(t, FormatELF, info.Format)

	require.Len(t, fake.Commands, 1)
	assert.Equal(t, "file", fake.Commands[0].Name)
	assert.Equal(t, []string{"-b", "/work/dist/App"}, fake.Commands[0].Args)
}

func TestInspectFileFails(t *testing.T) {
	fake := &testutil.FakeRunner{
		RunFunc: func(_ context.Context, _ runner.Command) (*runner.Result, error) {
			return &runner.Result{ExitCode: 1, Stderr: []byte("cannot open")}, nil
		},
	}

	_, err := Inspect(context.Background(), fake, "/work/dist/App")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot open")
}
