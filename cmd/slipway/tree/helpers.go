package tree

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/slipway-dev/slipway/pkg/manifest"
)

var fs = afero.NewOsFs()

// loadManifest resolves the manifest path from the --manifest flag or by
// searching upward from the working directory, then loads and validates
// it. The second return value is the project root, the directory holding
// the manifest.
func loadManifest() (*manifest.Manifest, string, error) {
	path := rootCfg.manifest
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, "", fmt.Errorf("unable to get working directory: %w", err)
		}
		path, err = manifest.Find(fs, cwd)
		if err != nil {
			return nil, "", err
		}
	}

	m, err := manifest.Load(fs, path)
	if err != nil {
		return nil, "", err
	}

	root, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, "", fmt.Errorf("unable to resolve %s: %w", path, err)
	}
	return m, root, nil
}
