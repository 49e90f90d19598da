// Package publish uploads staged artifacts to S3 so deploy tooling can
// fetch them by project and version.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/spf13/afero"

	"github.com/slipway-dev/slipway/pkg/artifact"
	"github.com/slipway-dev/slipway/pkg/constants"
)

type s3API interface {
	PutObject(context.Context, *s3.PutObjectInput,
		...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(context.Context, *s3.HeadObjectInput,
		...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type Config struct {
	Bucket       string
	Prefix       string
	Region       string
	DryRun       bool
	SkipExisting bool
	Output       io.Writer
}

type Upload struct {
	Key     string
	Size    int64
	Skipped bool
}

type Result struct {
	Bucket  string
	DryRun  bool
	Uploads []Upload
}

// Publish uploads the archive, checksums, and build manifest for a staged
// artifact. A dry run never touches AWS, not even for configuration.
func Publish(ctx context.Context, fsys afero.Fs, cfg Config, art *artifact.Artifact, archivePath string) (*Result, error) {
	var client s3API
	if !cfg.DryRun {
		opts := []func(*config.LoadOptions) error{}
		if cfg.Region != "" {
			opts = append(opts, config.WithRegion(cfg.Region))
		}
		awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("unable to load AWS config: %w", err)
		}
		client = s3.NewFromConfig(awsCfg)
	}
	return PublishWithClient(ctx, fsys, cfg, client, art, archivePath)
}

func PublishWithClient(
	ctx context.Context,
	fsys afero.Fs,
	cfg Config,
	client s3API,
	art *artifact.Artifact,
	archivePath string,
) (*Result, error) {
	// Checksums and the build manifest are keyed under the artifact name,
	// since several triples of the same version share the version prefix.
	keyBase := path.Join(cfg.Prefix, art.Meta.Version)
	objects := []object{
		{
			localPath:   archivePath,
			key:         path.Join(keyBase, filepath.Base(archivePath)),
			contentType: "application/gzip",
		},
		{
			localPath:   filepath.Join(art.Dir, constants.FileChecksums),
			key:         path.Join(keyBase, art.Name, constants.FileChecksums),
			contentType: "text/plain",
		},
		{
			localPath:   filepath.Join(art.Dir, constants.FileBuildManifest),
			key:         path.Join(keyBase, art.Name, constants.FileBuildManifest),
			contentType: "application/json",
		},
	}

	result := &Result{Bucket: cfg.Bucket, DryRun: cfg.DryRun}
	for _, obj := range objects {
		upload, err := uploadOne(ctx, fsys, cfg, client, obj)
		if err != nil {
			return nil, err
		}
		result.Uploads = append(result.Uploads, *upload)
	}
	return result, nil
}

type object struct {
	localPath   string
	key         string
	contentType string
}

func uploadOne(ctx context.Context, fsys afero.Fs, cfg Config, client s3API, obj object) (*Upload, error) {
	s3URL := "s3://" + cfg.Bucket + "/" + obj.key

	info, err := fsys.Stat(obj.localPath)
	if err != nil {
		// A dry run writes nothing, so the archive it would upload may
		// not exist yet; the plan names it instead of failing on it.
		if cfg.DryRun && errors.Is(err, os.ErrNotExist) {
			log(cfg.Output, "Would upload %s to %s (not yet written)\n", obj.localPath, s3URL)
			return &Upload{Key: obj.key}, nil
		}
		return nil, fmt.Errorf("unable to stat %s: %w", obj.localPath, err)
	}

	if cfg.DryRun {
		log(cfg.Output, "Would upload %s to %s (%d bytes)\n", obj.localPath, s3URL, info.Size())
		return &Upload{Key: obj.key, Size: info.Size()}, nil
	}

	if cfg.SkipExisting {
		_, err = client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(cfg.Bucket),
			Key:    aws.String(obj.key),
		})
		if err == nil {
			log(cfg.Output, "Skipping %s, already exists\n", s3URL)
			return &Upload{Key: obj.key, Size: info.Size(), Skipped: true}, nil
		}
		var notFound *s3types.NotFound
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("unable to check for existing object at %s: %w", s3URL, err)
		}
	}

	file, err := fsys.Open(obj.localPath)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s: %w", obj.localPath, err)
	}
	defer file.Close()

	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(cfg.Bucket),
		Key:           aws.String(obj.key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(obj.contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to upload to %s: %w", s3URL, err)
	}

	log(cfg.Output, "Uploaded %s (%d bytes)\n", s3URL, info.Size())
	return &Upload{Key: obj.key, Size: info.Size()}, nil
}

func log(w io.Writer, format string, args ...any) {
	if w != nil {
		fmt.Fprintf(w, format, args...)
	}
}
