package manifest

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func p[T any](v T) *T {
	return &v
}

const sampleManifest = `
project {
  name    = "kanban-api"
  version = "1.4.2"
}

build {
  configuration = "release"
  strip         = true
  swiftc_flags  = ["-warnings-as-errors"]
  env = {
    SWIFT_DETERMINISTIC_HASHING = "1"
  }
}

target "x86_64-unknown-linux-gnu" {
  verify {
    image   = "ubuntu:22.04"
    timeout = "90s"
  }
}

target "aarch64-unknown-linux-gnu" {
  swift_sdk = "swift-6.0.1-RELEASE_static-linux-0.0.1"
}

publish {
  bucket = "releases-example"
  region = "us-east-1"
}

docs {
  fence_languages = ["bash", "swift", "console"]
  external_links  = true
}
`

func TestParse(t *testing.T) {
	m, err := Parse([]byte(sampleManifest), "slipway.hcl", nil)
	require.NoError(t, err)

	assert.Equal(t, "kanban-api", m.Project.Name)
	assert.Equal(t, "1.4.2", m.Project.Version)
	assert.Equal(t, "release", m.Build.Configuration)
	assert.True(t, m.Build.Strip)
	assert.Equal(t, []string{"-warnings-as-errors"}, m.Build.SwiftcFlags)
	assert.Equal(t, map[string]string{"SWIFT_DETERMINISTIC_HASHING": "1"}, m.Build.Env)

	require.Len(t, m.Targets, 2)
	assert.Equal(t, "x86_64-unknown-linux-gnu", m.Targets[0].Triple)
	require.NotNil(t, m.Targets[0].Verify)
	assert.Equal(t, "ubuntu:22.04", m.Targets[0].Verify.Image)
	assert.Equal(t, 90*time.Second, m.Targets[0].Verify.TimeoutDuration())
	assert.Equal(t, "swift-6.0.1-RELEASE_static-linux-0.0.1", m.Targets[1].SDKID())

	require.NotNil(t, m.Publish)
	assert.Equal(t, "releases-example", m.Publish.Bucket)
	assert.Equal(t, "kanban-api", m.Publish.Prefix, "prefix defaults to project name")

	assert.Equal(t, []string{"README.md", "docs"}, m.Docs.Paths, "docs block defaulted")
	assert.Equal(t, []string{"bash", "swift", "console"}, m.Docs.FenceLanguages)
	assert.True(t, m.Docs.ExternalLinks)
}

func TestParseEnvReference(t *testing.T) {
	src := `
project {
  name    = "api"
  version = env.RELEASE_VERSION
}
`
	m, err := Parse([]byte(src), "slipway.hcl", []string{"RELEASE_VERSION=2.0.0"})
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", m.Project.Version)
}

func TestParseSyntaxError(t *testing.T) {
	_, err := Parse([]byte("project {"), "slipway.hcl", nil)
	require.ErrorIs(t, err, ErrInvalidManifest)
	assert.Contains(t, err.Error(), "unable to parse")
}

func TestParseUnknownAttribute(t *testing.T) {
	src := `
project {
  name   = "api"
  flavor = "grape"
}
`
	_, err := Parse([]byte(src), "slipway.hcl", nil)
	require.ErrorIs(t, err, ErrInvalidManifest)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name     string
		manifest *Manifest
		errs     []string
	}{
		{
			name: "valid",
			manifest: &Manifest{
				Project: &ProjectBlock{Name: "api", Version: "1.0.0"},
			},
		},
		{
			name:     "missing project",
			manifest: &Manifest{},
			errs:     []string{"project block is required"},
		},
		{
			name: "bad name and version",
			manifest: &Manifest{
				Project: &ProjectBlock{Name: "Bad Name", Version: "1.0 beta"},
			},
			errs: []string{"invalid project name", "invalid project version"},
		},
		{
			name: "bad configuration",
			manifest: &Manifest{
				Project: &ProjectBlock{Name: "api"},
				Build:   &BuildBlock{Configuration: "fast"},
			},
			errs: []string{"invalid build configuration"},
		},
		{
			name: "bad triple and duplicate",
			manifest: &Manifest{
				Project: &ProjectBlock{Name: "api"},
				Targets: []TargetBlock{
					{Triple: "linux"},
					{Triple: "x86_64-unknown-linux-gnu"},
					{Triple: "x86_64-unknown-linux-gnu"},
				},
			},
			errs: []string{"invalid target triple", "duplicate target"},
		},
		{
			name: "publish without bucket",
			manifest: &Manifest{
				Project: &ProjectBlock{Name: "api"},
				Publish: &PublishBlock{Prefix: "/bad/"},
			},
			errs: []string{"publish bucket is required", "must not begin or end with /"},
		},
		{
			name: "bad verify timeout",
			manifest: &Manifest{
				Project: &ProjectBlock{Name: "api"},
				Targets: []TargetBlock{
					{
						Triple: "x86_64-unknown-linux-gnu",
						Verify: &VerifyBlock{Timeout: "whenever"},
					},
				},
			},
			errs: []string{"invalid verify timeout"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.manifest.Validate()
			if len(tc.errs) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tc.errs {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestStaticStdlibFor(t *testing.T) {
	testCases := []struct {
		name     string
		block    BuildBlock
		triple   string
		expected bool
	}{
		{
			name:     "unset defaults on for linux",
			block:    BuildBlock{},
			triple:   "x86_64-unknown-linux-gnu",
			expected: true,
		},
		{
			name:     "unset defaults off for macos",
			block:    BuildBlock{},
			triple:   "arm64-apple-macosx",
			expected: false,
		},
		{
			name:     "explicit off wins on linux",
			block:    BuildBlock{StaticSwiftStdlib: p(false)},
			triple:   "aarch64-unknown-linux-gnu",
			expected: false,
		},
		{
			name:     "explicit on wins on macos",
			block:    BuildBlock{StaticSwiftStdlib: p(true)},
			triple:   "arm64-apple-macosx",
			expected: true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.block.StaticStdlibFor(tc.triple))
		})
	}
}

func TestMergeBuild(t *testing.T) {
	m := &Manifest{
		Project: &ProjectBlock{Name: "api"},
		Build: &BuildBlock{
			Configuration: "debug",
			SwiftcFlags:   []string{"-warnings-as-errors"},
		},
	}

	err := m.MergeBuild(&BuildBlock{
		Configuration:     "release",
		StaticSwiftStdlib: p(false),
	})
	require.NoError(t, err)

	assert.Equal(t, "release", m.Build.Configuration)
	assert.Equal(t, p(false), m.Build.StaticSwiftStdlib)
	assert.Equal(t, []string{"-warnings-as-errors"}, m.Build.SwiftcFlags,
		"fields absent from the overlay are kept")
}

func TestTimeoutDuration(t *testing.T) {
	var unset *VerifyBlock
	assert.Zero(t, unset.TimeoutDuration())
	assert.Zero(t, (&VerifyBlock{}).TimeoutDuration())
	assert.Equal(t, 2*time.Minute, (&VerifyBlock{Timeout: "2m"}).TimeoutDuration())
}

func TestTargetLookup(t *testing.T) {
	m := &Manifest{
		Targets: []TargetBlock{
			{Triple: "x86_64-unknown-linux-gnu"},
		},
	}
	assert.NotNil(t, m.Target("x86_64-unknown-linux-gnu"))
	assert.Nil(t, m.Target("aarch64-unknown-linux-gnu"))
}

func TestFind(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/work/api/Sources/App", 0755))
	require.NoError(t, afero.WriteFile(fsys, "/work/api/slipway.hcl", []byte(sampleManifest), 0644))

	path, err := Find(fsys, "/work/api/Sources/App")
	require.NoError(t, err)
	assert.Equal(t, "/work/api/slipway.hcl", path)

	_, err = Find(fsys, "/elsewhere")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoManifest))
}

func TestLoad(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/work/api/slipway.hcl", []byte(sampleManifest), 0644))

	m, err := Load(fsys, "/work/api/slipway.hcl")
	require.NoError(t, err)
	assert.Equal(t, "kanban-api", m.Project.Name)

	_, err = Load(fsys, "/work/api/missing.hcl")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoManifest))
}
