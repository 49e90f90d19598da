// Package manifest defines the slipway.hcl configuration file and how it is
// located, parsed, and validated.
package manifest

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"dario.cat/mergo"

	"github.com/slipway-dev/slipway/pkg/constants"
)

var (
	ErrNoManifest      = errors.New("manifest not found")
	ErrInvalidManifest = errors.New("invalid manifest")

	projectNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)
)

// Manifest is the root of slipway.hcl.
type Manifest struct {
	Project *ProjectBlock `hcl:"project,block"`
	Build   *BuildBlock   `hcl:"build,block"`
	Targets []TargetBlock `hcl:"target,block"`
	Publish *PublishBlock `hcl:"publish,block"`
	Docs    *DocsBlock    `hcl:"docs,block"`
}

type ProjectBlock struct {
	Name string `hcl:"name"`

	// Version may be left empty, in which case it is resolved from git
	// metadata at build time.
	Version string `hcl:"version,optional"`
}

type BuildBlock struct {
	Configuration string `hcl:"configuration,optional"`

	// Product narrows the build to one executable product. Empty means
	// every executable product in the package.
	Product string `hcl:"product,optional"`

	// StaticSwiftStdlib is tri-state: unset means "when the target
	// supports it", which today means Linux targets.
	StaticSwiftStdlib *bool `hcl:"static_swift_stdlib,optional"`

	// Strip asks the linker to drop the symbol table.
	Strip bool `hcl:"strip,optional"`

	SwiftcFlags []string `hcl:"swiftc_flags,optional"`
	LinkerFlags []string `hcl:"linker_flags,optional"`

	// Flags are passed to swift build verbatim, after everything else.
	Flags []string `hcl:"flags,optional"`

	Env  map[string]string `hcl:"env,optional"`
	Jobs int               `hcl:"jobs,optional"`
}

// StaticStdlibFor resolves the tri-state static_swift_stdlib setting for a
// concrete target triple.
func (b *BuildBlock) StaticStdlibFor(triple string) bool {
	if b.StaticSwiftStdlib != nil {
		return *b.StaticSwiftStdlib
	}
	return strings.Contains(triple, "linux")
}

type TargetBlock struct {
	Triple string `hcl:"triple,label"`

	// SwiftSDK names the Swift SDK id to pass via --swift-sdk. Empty
	// means the triple itself, which works when an SDK is installed
	// under its triple name or the target is the host.
	SwiftSDK string `hcl:"swift_sdk,optional"`

	Verify *VerifyBlock `hcl:"verify,block"`
}

// SDKID returns the value to hand to swift build --swift-sdk.
func (t *TargetBlock) SDKID() string {
	if t.SwiftSDK != "" {
		return t.SwiftSDK
	}
	return t.Triple
}

type VerifyBlock struct {
	// Image is the container image the smoke test runs in.
	Image string `hcl:"image,optional"`

	// Platform overrides the container platform derived from the triple.
	Platform string `hcl:"platform,optional"`

	// Args are passed to the binary inside the container. Defaults to
	// --version, which any serious server binary should answer quickly.
	Args []string `hcl:"args,optional"`

	// Timeout bounds the smoke test, e.g. "90s". Empty means no bound
	// beyond the command's own.
	Timeout string `hcl:"timeout,optional"`
}

// TimeoutDuration returns the parsed timeout, or zero when unset.
func (v *VerifyBlock) TimeoutDuration() time.Duration {
	if v == nil || v.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(v.Timeout)
	if err != nil {
		return 0
	}
	return d
}

type PublishBlock struct {
	Bucket string `hcl:"bucket"`
	Prefix string `hcl:"prefix,optional"`
	Region string `hcl:"region,optional"`
}

type DocsBlock struct {
	Paths  []string `hcl:"paths,optional"`
	Ignore []string `hcl:"ignore,optional"`

	// FenceLanguages, when set, is the closed set of languages code
	// fences may claim.
	FenceLanguages []string `hcl:"fence_languages,optional"`

	// ExternalLinks turns on reachability checks for http(s) links.
	ExternalLinks bool `hcl:"external_links,optional"`
}

// SetDefaults fills in the parts of the manifest the user left out.
func (m *Manifest) SetDefaults() {
	if m.Build == nil {
		m.Build = &BuildBlock{}
	}
	if m.Build.Configuration == "" {
		m.Build.Configuration = constants.ConfigurationRelease
	}
	if m.Docs == nil {
		m.Docs = &DocsBlock{}
	}
	if len(m.Docs.Paths) == 0 {
		m.Docs.Paths = []string{"README.md", "docs"}
	}
	if m.Publish != nil && m.Publish.Prefix == "" && m.Project != nil {
		m.Publish.Prefix = m.Project.Name
	}
}

// MergeBuild overlays the non-zero fields of o onto the build block, so
// command-line flags win over the manifest.
func (m *Manifest) MergeBuild(o *BuildBlock) error {
	if m.Build == nil {
		m.Build = &BuildBlock{}
	}
	err := mergo.Merge(m.Build, o, mergo.WithOverride)
	if err != nil {
		return fmt.Errorf("unable to merge build overrides: %w", err)
	}
	return nil
}

// Target returns the target block for the given triple, or nil.
func (m *Manifest) Target(triple string) *TargetBlock {
	for i := range m.Targets {
		if m.Targets[i].Triple == triple {
			return &m.Targets[i]
		}
	}
	return nil
}

// Validate checks the manifest for problems that parsing alone cannot
// catch. All findings are reported at once.
func (m *Manifest) Validate() error {
	errs := []error{}

	if m.Project == nil {
		errs = append(errs, errors.New("project block is required"))
	} else {
		if !projectNameRegex.MatchString(m.Project.Name) {
			errs = append(errs, fmt.Errorf("invalid project name %q", m.Project.Name))
		}
		if strings.ContainsAny(m.Project.Version, "/ \t") {
			errs = append(errs, fmt.Errorf("invalid project version %q", m.Project.Version))
		}
	}

	if m.Build != nil {
		switch m.Build.Configuration {
		case "", constants.ConfigurationDebug, constants.ConfigurationRelease:
		default:
			errs = append(errs, fmt.Errorf("invalid build configuration %q: must be %s or %s",
				m.Build.Configuration, constants.ConfigurationDebug, constants.ConfigurationRelease))
		}
		if m.Build.Jobs < 0 {
			errs = append(errs, fmt.Errorf("invalid build jobs %d", m.Build.Jobs))
		}
	}

	seen := map[string]bool{}
	for _, target := range m.Targets {
		if len(strings.Split(target.Triple, "-")) < 3 {
			errs = append(errs, fmt.Errorf("invalid target triple %q", target.Triple))
		}
		if seen[target.Triple] {
			errs = append(errs, fmt.Errorf("duplicate target %q", target.Triple))
		}
		seen[target.Triple] = true

		if target.Verify != nil && target.Verify.Timeout != "" {
			if _, err := time.ParseDuration(target.Verify.Timeout); err != nil {
				errs = append(errs, fmt.Errorf("invalid verify timeout %q for target %s",
					target.Verify.Timeout, target.Triple))
			}
		}
	}

	if m.Publish != nil {
		if m.Publish.Bucket == "" {
			errs = append(errs, errors.New("publish bucket is required"))
		}
		if strings.HasPrefix(m.Publish.Prefix, "/") || strings.HasSuffix(m.Publish.Prefix, "/") {
			errs = append(errs, fmt.Errorf("publish prefix %q must not begin or end with /", m.Publish.Prefix))
		}
	}

	if m.Docs != nil {
		for _, path := range m.Docs.Paths {
			if path == "" {
				errs = append(errs, errors.New("docs paths must not be empty"))
			}
		}
	}

	return errors.Join(errs...)
}
