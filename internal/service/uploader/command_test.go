package uploader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/webfs/internal/config"
	"github.com/oshokin/webfs/internal/domain/asset"
	"github.com/oshokin/webfs/internal/repository/state"
	"github.com/oshokin/webfs/internal/service/common"
)

// fakeFlasher records invocations and returns a scripted error.
type fakeFlasher struct {
	calls        int
	environments []string
	err          error
}

func (f *fakeFlasher) Flash(_ context.Context, environment string) error {
	f.calls++
	f.environments = append(f.environments, environment)

	return f.err
}

// brokenRepository fails on every call.
type brokenRepository struct {
	loadErr error
	saveErr error
}

func (r *brokenRepository) Load(context.Context) (asset.Fingerprint, error) {
	return "", r.loadErr
}

func (r *brokenRepository) Save(context.Context, asset.Fingerprint) error {
	return r.saveErr
}

// newGateFixture returns settings with a populated canonical tree and a file state store.
func newGateFixture(t *testing.T) (*config.Config, *state.FileRepository) {
	t.Helper()

	root := t.TempDir()
	cfg := &config.Config{
		SourceDir:            filepath.Join(root, "src"),
		OutputDir:            filepath.Join(root, "data"),
		StateFile:            filepath.Join(root, ".littlefs_hash"),
		ConflictingProcesses: []string{},
		Environment:          "esp32dev",
	}
	require.NoError(t, config.Validate(cfg))

	writeFile(t, filepath.Join(cfg.OutputDir, "index.html.gz"), "compressed-index")
	writeFile(t, filepath.Join(cfg.OutputDir, "sounds", "move.mp3"), "mp3")

	return cfg, state.NewFileRepository(cfg.StateFile)
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

// TestGate_NoData skips without invoking the flasher.
func TestGate_NoData(t *testing.T) {
	t.Parallel()

	cfg, repo := newGateFixture(t)
	require.NoError(t, os.RemoveAll(cfg.OutputDir))

	flasher := new(fakeFlasher)

	result, err := NewGate(cfg, repo, flasher).UploadIfChanged(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeNoData, result.Outcome)
	require.Zero(t, flasher.calls)

	// Empty directories count as no data.
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.OutputDir, "empty"), 0o755))

	result, err = NewGate(cfg, repo, flasher).UploadIfChanged(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeNoData, result.Outcome)
	require.Zero(t, flasher.calls)
}

// TestGate_FirstRunUploadsThenSkips covers the changed and unchanged verdicts.
func TestGate_FirstRunUploadsThenSkips(t *testing.T) {
	t.Parallel()

	cfg, repo := newGateFixture(t)
	flasher := new(fakeFlasher)
	gate := NewGate(cfg, repo, flasher)

	result, err := gate.UploadIfChanged(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeUploaded, result.Outcome)
	require.True(t, result.Previous.IsZero())
	require.Equal(t, 1, flasher.calls)
	require.Equal(t, []string{"esp32dev"}, flasher.environments)

	want, err := common.TreeFingerprint(cfg.OutputDir)
	require.NoError(t, err)
	require.Equal(t, want, result.Current)

	persisted, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, want, persisted)

	result, err = gate.UploadIfChanged(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeUnchanged, result.Outcome)
	require.Equal(t, 1, flasher.calls)
}

// TestGate_ChangedContentUploadsAgain verifies any byte change re-triggers the upload.
func TestGate_ChangedContentUploadsAgain(t *testing.T) {
	t.Parallel()

	cfg, repo := newGateFixture(t)
	flasher := new(fakeFlasher)
	gate := NewGate(cfg, repo, flasher)

	_, err := gate.UploadIfChanged(context.Background())
	require.NoError(t, err)

	writeFile(t, filepath.Join(cfg.OutputDir, "sounds", "move.mp3"), "mp4")

	result, err := gate.UploadIfChanged(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeUploaded, result.Outcome)
	require.NotEqual(t, result.Previous, result.Current)
	require.Equal(t, 2, flasher.calls)
}

// TestGate_FailureKeepsState leaves the persisted state untouched and reports instead of failing.
func TestGate_FailureKeepsState(t *testing.T) {
	t.Parallel()

	cfg, repo := newGateFixture(t)
	flashErr := errors.New("serial port busy")
	flasher := &fakeFlasher{err: flashErr}
	gate := NewGate(cfg, repo, flasher)

	// Never uploaded: the state stays absent.
	result, err := gate.UploadIfChanged(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeUploadFailed, result.Outcome)
	require.ErrorIs(t, result.UploadErr, flashErr)

	_, err = repo.Load(context.Background())
	require.ErrorIs(t, err, state.ErrNotFound)

	// Previously uploaded: the old value survives.
	old := asset.Fingerprint("0000000000000000000000000000000000000000000000000000000000000000")
	require.NoError(t, repo.Save(context.Background(), old))

	result, err = gate.UploadIfChanged(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeUploadFailed, result.Outcome)

	persisted, err := repo.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, old, persisted)

	// The next build retries.
	flasher.err = nil

	result, err = gate.UploadIfChanged(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeUploaded, result.Outcome)
	require.Equal(t, 3, flasher.calls)
}

// TestGate_DryRun never flashes nor persists.
func TestGate_DryRun(t *testing.T) {
	t.Parallel()

	cfg, repo := newGateFixture(t)
	flasher := new(fakeFlasher)

	result, err := NewGate(cfg, repo, flasher, WithDryRun(true)).UploadIfChanged(context.Background())
	require.NoError(t, err)
	require.Equal(t, OutcomeChanged, result.Outcome)
	require.Zero(t, flasher.calls)

	_, err = repo.Load(context.Background())
	require.ErrorIs(t, err, state.ErrNotFound)
}

// TestGate_StateErrorsAreFatal propagates repository failures other than "not found".
func TestGate_StateErrorsAreFatal(t *testing.T) {
	t.Parallel()

	cfg, _ := newGateFixture(t)
	flasher := new(fakeFlasher)

	loadErr := errors.New("permission denied")
	_, err := NewGate(cfg, &brokenRepository{loadErr: loadErr}, flasher).UploadIfChanged(context.Background())
	require.ErrorIs(t, err, loadErr)
	require.Zero(t, flasher.calls)

	saveErr := errors.New("disk full")
	repo := &brokenRepository{loadErr: state.ErrNotFound, saveErr: saveErr}
	_, err = NewGate(cfg, repo, flasher).UploadIfChanged(context.Background())
	require.ErrorIs(t, err, saveErr)
	require.Equal(t, 1, flasher.calls)
}

// TestGate_RequiresCollaborators rejects a gate without state or flasher.
func TestGate_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	cfg, repo := newGateFixture(t)

	_, err := NewGate(cfg, nil, new(fakeFlasher)).UploadIfChanged(context.Background())
	require.ErrorIs(t, err, errStateNotSet)

	_, err = NewGate(cfg, repo, nil).UploadIfChanged(context.Background())
	require.ErrorIs(t, err, errFlasherNotSet)
}

// TestRun_DryRunAndFingerprint exercises the entry points with a settings file.
func TestRun_DryRunAndFingerprint(t *testing.T) {
	t.Parallel()

	cfg, _ := newGateFixture(t)
	configPath := filepath.Join(filepath.Dir(cfg.OutputDir), "webfs.yaml")
	require.NoError(t, config.Save(configPath, cfg))

	opts := &Options{
		ConfigPath:  configPath,
		Environment: "esp32dev",
		DryRun:      true,
	}

	result, err := Run(context.Background(), opts)
	require.NoError(t, err)
	require.Equal(t, OutcomeChanged, result.Outcome)

	current, err := CurrentFingerprint(context.Background(), opts)
	require.NoError(t, err)
	require.Equal(t, result.Current, current)

	empty, err := CurrentFingerprint(context.Background(), &Options{
		ConfigPath: configPath,
		OutputDir:  filepath.Join(filepath.Dir(cfg.OutputDir), "missing"),
	})
	require.NoError(t, err)
	require.True(t, empty.IsZero())
}

// TestRun_MissingEnvironment fails before any work when the command needs one.
func TestRun_MissingEnvironment(t *testing.T) {
	cfg, _ := newGateFixture(t)
	configPath := filepath.Join(filepath.Dir(cfg.OutputDir), "webfs.yaml")
	require.NoError(t, config.Save(configPath, cfg))

	t.Setenv(config.EnvironmentVariable, "")

	_, err := Run(context.Background(), &Options{ConfigPath: configPath})
	require.Error(t, err)
}
