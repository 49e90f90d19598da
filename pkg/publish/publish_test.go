package publish

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipway-dev/slipway/pkg/artifact"
)

type mockS3 struct {
	putFunc  func(*s3.PutObjectInput) (*s3.PutObjectOutput, error)
	headFunc func(*s3.HeadObjectInput) (*s3.HeadObjectOutput, error)
	puts     []*s3.PutObjectInput
}

func (m *mockS3) PutObject(_ context.Context, input *s3.PutObjectInput,
	_ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.puts = append(m.puts, input)
	if m.putFunc != nil {
		return m.putFunc(input)
	}
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) HeadObject(_ context.Context, input *s3.HeadObjectInput,
	_ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if m.headFunc != nil {
		return m.headFunc(input)
	}
	return nil, &s3types.NotFound{}
}

func publishFixture(t *testing.T) (afero.Fs, *artifact.Artifact, string) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	dir := "/work/dist/kanban-api_1.4.2_release_x86_64-unknown-linux-gnu"
	archive := dir + ".tar.gz"
	require.NoError(t, afero.WriteFile(fsys, dir+"/SHA256SUMS", []byte("abc  App\n"), 0644))
	require.NoError(t, afero.WriteFile(fsys, dir+"/build-manifest.json", []byte("{}\n"), 0644))
	require.NoError(t, afero.WriteFile(fsys, archive, []byte("gzipped"), 0644))
	art := &artifact.Artifact{
		Dir:  dir,
		Name: "kanban-api_1.4.2_release_x86_64-unknown-linux-gnu",
		Meta: &artifact.Meta{Project: "kanban-api", Version: "1.4.2"},
	}
	return fsys, art, archive
}

func TestPublishWithClient(t *testing.T) {
	fsys, art, archive := publishFixture(t)
	client := &mockS3{}
	output := &bytes.Buffer{}

	result, err := PublishWithClient(context.Background(), fsys, Config{
		Bucket: "releases-example",
		Prefix: "kanban-api",
		Output: output,
	}, client, art, archive)
	require.NoError(t, err)

	require.Len(t, result.Uploads, 3)
	name := "kanban-api_1.4.2_release_x86_64-unknown-linux-gnu"
	assert.Equal(t, "kanban-api/1.4.2/"+name+".tar.gz", result.Uploads[0].Key)
	assert.Equal(t, "kanban-api/1.4.2/"+name+"/SHA256SUMS", result.Uploads[1].Key)
	assert.Equal(t, "kanban-api/1.4.2/"+name+"/build-manifest.json", result.Uploads[2].Key)
	assert.Equal(t, int64(len("gzipped")), result.Uploads[0].Size)

	require.Len(t, client.puts, 3)
	assert.Equal(t, "releases-example", *client.puts[0].Bucket)
	assert.Equal(t, "application/gzip", *client.puts[0].ContentType)
	assert.Equal(t, "text/plain", *client.puts[1].ContentType)
	assert.Equal(t, "application/json", *client.puts[2].ContentType)
	assert.Contains(t, output.String(),
		"Uploaded s3://releases-example/kanban-api/1.4.2/"+name+"/SHA256SUMS")
}

func TestPublishSkipExisting(t *testing.T) {
	fsys, art, archive := publishFixture(t)
	client := &mockS3{
		headFunc: func(input *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
			if strings.HasSuffix(*input.Key, "/SHA256SUMS") {
				return &s3.HeadObjectOutput{}, nil
			}
			return nil, &s3types.NotFound{}
		},
	}

	result, err := PublishWithClient(context.Background(), fsys, Config{
		Bucket:       "releases-example",
		Prefix:       "kanban-api",
		SkipExisting: true,
	}, client, art, archive)
	require.NoError(t, err)

	assert.False(t, result.Uploads[0].Skipped)
	assert.True(t, result.Uploads[1].Skipped)
	assert.False(t, result.Uploads[2].Skipped)
	assert.Len(t, client.puts, 2, "the existing object is not re-uploaded")
}

func TestPublishDryRun(t *testing.T) {
	fsys, art, archive := publishFixture(t)
	output := &bytes.Buffer{}

	// A nil client proves a dry run makes no AWS calls.
	result, err := PublishWithClient(context.Background(), fsys, Config{
		Bucket: "releases-example",
		Prefix: "kanban-api",
		DryRun: true,
		Output: output,
	}, nil, art, archive)
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Len(t, result.Uploads, 3)
	assert.Contains(t, output.String(), "Would upload")
}

func TestPublishDryRunMissingArchive(t *testing.T) {
	fsys, art, archive := publishFixture(t)
	require.NoError(t, fsys.Remove(archive))
	output := &bytes.Buffer{}

	result, err := PublishWithClient(context.Background(), fsys, Config{
		Bucket: "releases-example",
		Prefix: "kanban-api",
		DryRun: true,
		Output: output,
	}, nil, art, archive)
	require.NoError(t, err)

	assert.Len(t, result.Uploads, 3)
	assert.Contains(t, output.String(), "not yet written")
	exists, err := afero.Exists(fsys, archive)
	require.NoError(t, err)
	assert.False(t, exists, "a dry run must not create the archive")
}

func TestPublishHeadError(t *testing.T) {
	fsys, art, archive := publishFixture(t)
	client := &mockS3{
		headFunc: func(*s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
			return nil, errors.New("access denied")
		},
	}

	_, err := PublishWithClient(context.Background(), fsys, Config{
		Bucket:       "releases-example",
		SkipExisting: true,
	}, client, art, archive)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to check for existing object")
}

func TestPublishPutError(t *testing.T) {
	fsys, art, archive := publishFixture(t)
	client := &mockS3{
		putFunc: func(*s3.PutObjectInput) (*s3.PutObjectOutput, error) {
			return nil, errors.New("no such bucket")
		},
	}

	_, err := PublishWithClient(context.Background(), fsys, Config{
		Bucket: "releases-example",
	}, client, art, archive)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to upload")
}

func TestPublishMissingLocalFile(t *testing.T) {
	fsys, art, _ := publishFixture(t)

	_, err := PublishWithClient(context.Background(), fsys, Config{
		Bucket: "releases-example",
	}, &mockS3{}, art, "/work/dist/missing.tar.gz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to stat")
}
