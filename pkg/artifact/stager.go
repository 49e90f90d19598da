package artifact

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/slipway-dev/slipway/pkg/constants"
)

var ErrChecksumMismatch = errors.New("checksum mismatch")

// Stager lays out artifact sets under the dist directory.
type Stager struct {
	fs      afero.Fs
	distDir string
}

type StagerOpt func(*Stager)

func WithFS(fsys afero.Fs) StagerOpt {
	return func(s *Stager) {
		s.fs = fsys
	}
}

func WithDistDir(dir string) StagerOpt {
	return func(s *Stager) {
		s.distDir = dir
	}
}

func NewStager(opts ...StagerOpt) *Stager {
	stager := &Stager{
		fs:      afero.NewOsFs(),
		distDir: constants.DirDist,
	}
	for _, opt := range opts {
		opt(stager)
	}
	return stager
}

// StageInput names the binaries to stage and the metadata describing them.
type StageInput struct {
	Project       string
	Version       string
	Configuration string
	Triple        string
	SwiftVersion  string

	// BinPath is where SwiftPM put the build products.
	BinPath string

	// Products are the executable names to pick up from BinPath.
	Products []string
}

func (in StageInput) dirName() string {
	return Name(in.Project, in.Version, in.Configuration, in.Triple)
}

// Dir returns the staging directory path for an artifact name.
func (s *Stager) Dir(name string) string {
	return filepath.Join(s.distDir, name)
}

// ArchivePath returns where Archive writes the tarball for an artifact name.
func (s *Stager) ArchivePath(name string) string {
	return filepath.Join(s.distDir, name+".tar.gz")
}

// Stage copies the product binaries into a fresh staging directory and
// writes SHA256SUMS and the build manifest beside them. An existing staging
// directory for the same input is replaced.
func (s *Stager) Stage(in StageInput) (*Artifact, error) {
	if len(in.Products) == 0 {
		return nil, errors.New("no products to stage")
	}

	name := in.dirName()
	dir := filepath.Join(s.distDir, name)
	if err := s.fs.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("unable to clean %s: %w", dir, err)
	}
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("unable to create %s: %w", dir, err)
	}

	meta := &Meta{
		ID:            uuid.NewString(),
		Project:       in.Project,
		Version:       in.Version,
		Configuration: in.Configuration,
		Triple:        in.Triple,
		SwiftVersion:  in.SwiftVersion,
		CreatedAt:     time.Now().UTC(),
	}

	sums := &strings.Builder{}
	for _, product := range in.Products {
		src := filepath.Join(in.BinPath, product)
		dst := filepath.Join(dir, product)
		size, sum, err := s.copyAndHash(src, dst)
		if err != nil {
			return nil, err
		}
		meta.Products = append(meta.Products, ProductMeta{
			Name:   product,
			File:   product,
			Size:   size,
			SHA256: sum,
		})
		fmt.Fprintf(sums, "%s  %s\n", sum, product)
	}

	sumsPath := filepath.Join(dir, constants.FileChecksums)
	if err := afero.WriteFile(s.fs, sumsPath, []byte(sums.String()), 0644); err != nil {
		return nil, fmt.Errorf("unable to write %s: %w", sumsPath, err)
	}

	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("unable to marshal build manifest: %w", err)
	}
	metaPath := filepath.Join(dir, constants.FileBuildManifest)
	if err = afero.WriteFile(s.fs, metaPath, append(metaBytes, '\n'), 0644); err != nil {
		return nil, fmt.Errorf("unable to write %s: %w", metaPath, err)
	}

	return &Artifact{Dir: dir, Name: name, Meta: meta}, nil
}

func (s *Stager) copyAndHash(src, dst string) (int64, string, error) {
	in, err := s.fs.Open(src)
	if err != nil {
		return 0, "", fmt.Errorf("unable to open product binary %s: %w", src, err)
	}
	defer in.Close()

	out, err := s.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0755)
	if err != nil {
		return 0, "", fmt.Errorf("unable to create %s: %w", dst, err)
	}
	defer out.Close()

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(out, hash), in)
	if err != nil {
		return 0, "", fmt.Errorf("unable to copy %s: %w", src, err)
	}
	if size == 0 {
		return 0, "", fmt.Errorf("product binary %s is empty", src)
	}
	return size, hex.EncodeToString(hash.Sum(nil)), nil
}

// Verify re-hashes every file listed in the staging directory's SHA256SUMS.
func (s *Stager) Verify(dir string) error {
	sumsPath := filepath.Join(dir, constants.FileChecksums)
	data, err := afero.ReadFile(s.fs, sumsPath)
	if err != nil {
		return fmt.Errorf("unable to read %s: %w", sumsPath, err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		sum, name, found := strings.Cut(line, "  ")
		if !found {
			return fmt.Errorf("malformed checksum line %q in %s", line, sumsPath)
		}
		actual, err := s.hashFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if actual != sum {
			return fmt.Errorf("%w: %s", ErrChecksumMismatch, name)
		}
	}
	return nil
}

func (s *Stager) hashFile(path string) (string, error) {
	file, err := s.fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("unable to open %s: %w", path, err)
	}
	defer file.Close()

	hash := sha256.New()
	if _, err = io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("unable to hash %s: %w", path, err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// Archive writes <name>.tar.gz next to the staging directory and returns
// its path. Entries are prefixed with the artifact name so the tarball
// unpacks into its own directory.
func (s *Stager) Archive(a *Artifact) (string, error) {
	archivePath := s.ArchivePath(a.Name)
	out, err := s.fs.OpenFile(archivePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return "", fmt.Errorf("unable to create %s: %w", archivePath, err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	entries, err := afero.ReadDir(s.fs, a.Dir)
	if err != nil {
		return "", fmt.Errorf("unable to read %s: %w", a.Dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err = s.addToArchive(tw, a, entry.Name(), entry.Size(), entry.Mode()); err != nil {
			return "", err
		}
	}

	if err = tw.Close(); err != nil {
		return "", fmt.Errorf("unable to finish archive: %w", err)
	}
	if err = gz.Close(); err != nil {
		return "", fmt.Errorf("unable to finish archive: %w", err)
	}
	return archivePath, nil
}

func (s *Stager) addToArchive(tw *tar.Writer, a *Artifact, name string, size int64, mode os.FileMode) error {
	hdr := &tar.Header{
		Name:    a.Name + "/" + name,
		Mode:    int64(mode.Perm()),
		Size:    size,
		ModTime: a.Meta.CreatedAt,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("unable to write archive header for %s: %w", name, err)
	}

	file, err := s.fs.Open(filepath.Join(a.Dir, name))
	if err != nil {
		return fmt.Errorf("unable to open %s: %w", name, err)
	}
	defer file.Close()

	if _, err = io.Copy(tw, file); err != nil {
		return fmt.Errorf("unable to archive %s: %w", name, err)
	}
	return nil
}
