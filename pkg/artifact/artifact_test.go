package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipway-dev/slipway/pkg/runner"
	"github.com/slipway-dev/slipway/pkg/testutil"
)

func newTestStager(t *testing.T) (*Stager, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	stager := NewStager(WithFS(fsys), WithDistDir("/work/api/dist"))
	return stager, fsys
}

func stageFixture(t *testing.T, fsys afero.Fs) StageInput {
	t.Helper()
	require.NoError(t, afero.WriteFile(fsys, "/work/api/.build/release/App", []byte("binary-app"), 0755))
	require.NoError(t, afero.WriteFile(fsys, "/work/api/.build/release/Migrator", []byte("binary-migrator"), 0755))
	return StageInput{
		Project:       "kanban-api",
		Version:       "1.4.2",
		Configuration: "release",
		Triple:        "x86_64-unknown-linux-gnu",
		SwiftVersion:  "6.0.1",
		BinPath:       "/work/api/.build/release",
		Products:      []string{"App", "Migrator"},
	}
}

func TestStage(t *testing.T) {
	stager, fsys := newTestStager(t)

	art, err := stager.Stage(stageFixture(t, fsys))
	require.NoError(t, err)

	assert.Equal(t, "kanban-api_1.4.2_release_x86_64-unknown-linux-gnu", art.Name)
	assert.Equal(t, "/work/api/dist/kanban-api_1.4.2_release_x86_64-unknown-linux-gnu", art.Dir)

	content, err := afero.ReadFile(fsys, art.Dir+"/App")
	require.NoError(t, err)
	assert.Equal(t, "binary-app", string(content))

	appSum := sha256.Sum256([]byte("binary-app"))
	migratorSum := sha256.Sum256([]byte("binary-migrator"))
	sums, err := afero.ReadFile(fsys, art.Dir+"/SHA256SUMS")
	require.NoError(t, err)
	expected := fmt.Sprintf("%s  App\n%s  Migrator\n",
		hex.EncodeToString(appSum[:]), hex.EncodeToString(migratorSum[:]))
	assert.Equal(t, expected, string(sums))

	meta, err := LoadMeta(fsys, art.Dir)
	require.NoError(t, err)
	assert.NotEmpty(t, meta.ID)
	assert.Equal(t, "kanban-api", meta.Project)
	assert.Equal(t, "6.0.1", meta.SwiftVersion)
	require.Len(t, meta.Products, 2)
	assert.Equal(t, int64(len("binary-app")), meta.Products[0].Size)
	assert.Equal(t, hex.EncodeToString(appSum[:]), meta.Products[0].SHA256)
}

func TestStageReplacesExisting(t *testing.T) {
	stager, fsys := newTestStager(t)
	in := stageFixture(t, fsys)

	first, err := stager.Stage(in)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fsys, first.Dir+"/stale-file", []byte("old"), 0644))

	second, err := stager.Stage(in)
	require.NoError(t, err)
	assert.Equal(t, first.Dir, second.Dir)

	exists, err := afero.Exists(fsys, second.Dir+"/stale-file")
	require.NoError(t, err)
	assert.False(t, exists, "restaging starts from a clean directory")
	assert.NotEqual(t, first.Meta.ID, second.Meta.ID)
}

func TestStageMissingBinary(t *testing.T) {
	stager, fsys := newTestStager(t)
	in := stageFixture(t, fsys)
	in.Products = append(in.Products, "Ghost")

	_, err := stager.Stage(in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Ghost")
}

func TestStageEmptyBinary(t *testing.T) {
	stager, fsys := newTestStager(t)
	in := stageFixture(t, fsys)
	require.NoError(t, afero.WriteFile(fsys, "/work/api/.build/release/App", nil, 0755))

	_, err := stager.Stage(in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestStageNoProducts(t *testing.T) {
	stager, _ := newTestStager(t)

	_, err := stager.Stage(StageInput{Project: "api"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no products")
}

func TestVerify(t *testing.T) {
	stager, fsys := newTestStager(t)

	art, err := stager.Stage(stageFixture(t, fsys))
	require.NoError(t, err)
	require.NoError(t, stager.Verify(art.Dir))

	// Corrupt a binary and expect the mismatch to be caught.
	require.NoError(t, afero.WriteFile(fsys, art.Dir+"/App", []byte("tampered"), 0755))
	err = stager.Verify(art.Dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestArchive(t *testing.T) {
	stager, fsys := newTestStager(t)

	art, err := stager.Stage(stageFixture(t, fsys))
	require.NoError(t, err)

	archivePath, err := stager.Archive(art)
	require.NoError(t, err)
	assert.Equal(t, art.Dir+".tar.gz", archivePath)

	data, err := afero.ReadFile(fsys, archivePath)
	require.NoError(t, err)
	files, err := testutil.ExtractTarGz(data)
	require.NoError(t, err)

	prefix := art.Name + "/"
	assert.Equal(t, "binary-app", files[prefix+"App"])
	assert.Equal(t, "binary-migrator", files[prefix+"Migrator"])
	assert.Contains(t, files, prefix+"SHA256SUMS")
	assert.Contains(t, files, prefix+"build-manifest.json")
}

func TestResolveVersion(t *testing.T) {
	testCases := []struct {
		name     string
		explicit string
		output   string
		exitCode int
		expected string
		err      bool
	}{
		{
			name:     "explicit version wins",
			explicit: "2.0.0",
			expected: "2.0.0",
		},
		{
			name:     "git tag with leading v",
			output:   "v1.4.2\n",
			expected: "1.4.2",
		},
		{
			name:     "dirty describe",
			output:   "1.4.2-3-gdeadbee-dirty\n",
			expected: "1.4.2-3-gdeadbee-dirty",
		},
		{
			name:     "git fails",
			output:   "",
			exitCode: 128,
			err:      true,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fake := &testutil.FakeRunner{
				RunFunc: func(_ context.Context, _ runner.Command) (*runner.Result, error) {
					return &runner.Result{
						Stdout:   []byte(tc.output),
						ExitCode: tc.exitCode,
					}, nil
				},
			}
			version, err := ResolveVersion(context.Background(), fake, "/work/api", tc.explicit)
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, version)
			if tc.explicit != "" {
				assert.Empty(t, fake.Commands, "git is not consulted when the version is explicit")
			}
		})
	}
}
