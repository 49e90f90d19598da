package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/spf13/afero"
	"github.com/zclconf/go-cty/cty"

	"github.com/slipway-dev/slipway/pkg/constants"
)

// Find walks from dir toward the filesystem root looking for slipway.hcl,
// so slipway can be run from anywhere inside a project.
func Find(fsys afero.Fs, dir string) (string, error) {
	start, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("unable to resolve %s: %w", dir, err)
	}
	current := start
	for {
		candidate := filepath.Join(current, constants.FileManifest)
		found, err := afero.Exists(fsys, candidate)
		if err != nil {
			return "", fmt.Errorf("unable to stat %s: %w", candidate, err)
		}
		if found {
			return candidate, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("%w: searched from %s upward", ErrNoManifest, start)
		}
		current = parent
	}
}

// Load reads, parses, and validates the manifest at path. Values in the
// file may reference process environment variables as env.NAME.
func Load(fsys afero.Fs, path string) (*Manifest, error) {
	src, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoManifest, path)
		}
		return nil, fmt.Errorf("unable to read %s: %w", path, err)
	}
	return Parse(src, path, os.Environ())
}

// Parse decodes manifest source. The environ slice, in os.Environ form,
// backs env.NAME references in the file.
func Parse(src []byte, filename string, environ []string) (*Manifest, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: unable to parse %s: %w", ErrInvalidManifest, filename, diags)
	}

	m := &Manifest{}
	diags = gohcl.DecodeBody(file.Body, evalContext(environ), m)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: unable to decode %s: %w", ErrInvalidManifest, filename, diags)
	}

	m.SetDefaults()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidManifest, filename, err)
	}
	return m, nil
}

func evalContext(environ []string) *hcl.EvalContext {
	values := map[string]cty.Value{}
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		values[k] = cty.StringVal(v)
	}
	env := cty.EmptyObjectVal
	if len(values) > 0 {
		env = cty.ObjectVal(values)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": env},
	}
}
