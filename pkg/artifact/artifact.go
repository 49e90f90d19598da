// Package artifact stages built binaries into a release layout: one
// directory per project/version/configuration/triple holding the binaries,
// a SHA256SUMS file, and a build manifest describing how they were made.
package artifact

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/slipway-dev/slipway/pkg/constants"
)

// Name returns the staging directory name for one build of a project,
// for example api_1.4.0_release_aarch64-unknown-linux-gnu.
func Name(project, version, configuration, triple string) string {
	return strings.Join([]string{project, version, configuration, triple}, "_")
}

// Meta is the build manifest written next to the binaries. It is the
// record of how an artifact set was produced.
type Meta struct {
	ID            string        `json:"id"`
	Project       string        `json:"project"`
	Version       string        `json:"version"`
	Configuration string        `json:"configuration"`
	Triple        string        `json:"triple"`
	SwiftVersion  string        `json:"swift_version,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	Products      []ProductMeta `json:"products"`
}

type ProductMeta struct {
	Name   string `json:"name"`
	File   string `json:"file"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// Artifact is one staged artifact set on disk.
type Artifact struct {
	// Dir is the staging directory.
	Dir string

	// Name is the directory's base name, also used for the archive.
	Name string

	Meta *Meta
}

// LoadMeta reads the build manifest from a staging directory.
func LoadMeta(fsys afero.Fs, dir string) (*Meta, error) {
	path := filepath.Join(dir, constants.FileBuildManifest)
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", path, err)
	}
	meta := &Meta{}
	if err = json.Unmarshal(data, meta); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", path, err)
	}
	return meta, nil
}
