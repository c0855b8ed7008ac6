package uploader

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/webfs/internal/config"
	"github.com/oshokin/webfs/internal/domain/asset"
	"github.com/oshokin/webfs/internal/logger"
	"github.com/oshokin/webfs/internal/repository/state"
	"github.com/oshokin/webfs/internal/service/common"
)

// Options are inputs accepted by the uploader entry point.
type Options struct {
	// ConfigPath is the optional path to the settings file.
	ConfigPath string
	// OutputDir overrides the configured canonical tree when set.
	OutputDir string
	// StateFile overrides the configured upload state file when set.
	StateFile string
	// Environment is the active build environment; PIOENV is used when empty.
	Environment string
	// DryRun reports the verdict without uploading or touching the state.
	DryRun bool
}

// Outcome is the terminal state of one gate evaluation.
type Outcome string

const (
	// OutcomeNoData means the canonical tree is absent or empty.
	OutcomeNoData Outcome = "no-data"
	// OutcomeUnchanged means the tree matches the last uploaded fingerprint.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeChanged means the tree changed but the dry run skipped the upload.
	OutcomeChanged Outcome = "changed"
	// OutcomeUploaded means the upload succeeded and the state was persisted.
	OutcomeUploaded Outcome = "uploaded"
	// OutcomeUploadFailed means the upload action failed; the state is untouched.
	OutcomeUploadFailed Outcome = "upload-failed"
)

// Result describes what the gate decided and did.
type Result struct {
	// Outcome is the terminal state reached.
	Outcome Outcome
	// Current is the fingerprint of the canonical tree; empty for OutcomeNoData.
	Current asset.Fingerprint
	// Previous is the persisted fingerprint read before the decision.
	Previous asset.Fingerprint
	// UploadErr is the upload action failure for OutcomeUploadFailed.
	UploadErr error
}

// Gate decides whether the filesystem image must be flashed and tracks success.
type Gate struct {
	// cfg holds the canonical tree location and the build environment.
	cfg *config.Config
	// state persists the fingerprint of the last successful upload.
	state state.Repository
	// flasher performs the upload action.
	flasher Flasher
	// dryRun disables the upload and the state update.
	dryRun bool
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithDryRun makes the gate stop after computing the verdict.
func WithDryRun(dryRun bool) GateOption {
	return func(g *Gate) {
		g.dryRun = dryRun
	}
}

var (
	// errStateNotSet is returned when the gate has no state repository.
	errStateNotSet = errors.New("upload state repository is not set")
	// errFlasherNotSet is returned when the gate has no flasher.
	errFlasherNotSet = errors.New("flasher is not set")
)

// Run loads the settings, builds the gate with a subprocess flasher and evaluates it.
// Only configuration and filesystem problems are returned as errors: a failed
// upload is reported through Result so the host build carries on.
func Run(ctx context.Context, opts *Options) (*Result, error) {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "webfs-upload")

	cfg, err := loadSettings(opts)
	if err != nil {
		return nil, err
	}

	// Surface a missing environment before any work is done.
	if _, err = cfg.UploadArgs(); err != nil {
		return nil, err
	}

	ctx = logger.WithKV(ctx, "environment", cfg.Environment)

	gate := NewGate(
		cfg,
		state.NewFileRepository(cfg.StateFile),
		NewCommandFlasher(cfg.UploadCommand),
		WithDryRun(opts.DryRun),
	)

	return gate.UploadIfChanged(ctx)
}

// CurrentFingerprint returns the fingerprint of the configured canonical tree,
// or an empty value when the tree holds no files.
func CurrentFingerprint(ctx context.Context, opts *Options) (asset.Fingerprint, error) {
	ctx = logger.WithName(ctx, "webfs-upload")

	cfg, err := loadSettings(opts)
	if err != nil {
		return "", err
	}

	hasData, err := common.HasFiles(cfg.OutputDir)
	if err != nil {
		return "", fmt.Errorf("inspect output tree: %w", err)
	}

	if !hasData {
		logger.Warnf(ctx, "No %s directory, nothing to fingerprint", cfg.OutputDir)
		return "", nil
	}

	return common.TreeFingerprint(cfg.OutputDir)
}

// NewGate creates a gate over the canonical tree described by cfg.
func NewGate(cfg *config.Config, repo state.Repository, flasher Flasher, opts ...GateOption) *Gate {
	g := &Gate{
		cfg:     cfg,
		state:   repo,
		flasher: flasher,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// UploadIfChanged fingerprints the canonical tree and flashes it when the
// fingerprint differs from the persisted one.
func (g *Gate) UploadIfChanged(ctx context.Context) (*Result, error) {
	if g.state == nil {
		return nil, errStateNotSet
	}

	if g.flasher == nil {
		return nil, errFlasherNotSet
	}

	hasData, err := common.HasFiles(g.cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("inspect output tree: %w", err)
	}

	if !hasData {
		logger.Infof(ctx, "No %s directory, skipping filesystem upload", g.cfg.OutputDir)
		return &Result{Outcome: OutcomeNoData}, nil
	}

	current, err := common.TreeFingerprint(g.cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("fingerprint output tree: %w", err)
	}

	previous, err := g.loadPrevious(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Current:  current,
		Previous: previous,
	}

	if current.Matches(previous) {
		logger.InfoKV(ctx, "Web assets unchanged, skipping filesystem upload", "fingerprint", current.Short())

		result.Outcome = OutcomeUnchanged

		return result, nil
	}

	if g.dryRun {
		logger.InfoKV(ctx, "Web assets changed, dry run leaves the device untouched",
			"fingerprint", current.Short(), "previous", previous.Short())

		result.Outcome = OutcomeChanged

		return result, nil
	}

	logger.InfoKV(ctx, "Web assets changed, uploading filesystem image",
		"fingerprint", current.Short(), "previous", previous.Short())

	g.warnAboutBusyPort(ctx)

	if err = g.flasher.Flash(ctx, g.cfg.Environment); err != nil {
		logger.ErrorKV(ctx, "Filesystem upload FAILED, it will be retried by the next build", "error", err)

		result.Outcome = OutcomeUploadFailed
		result.UploadErr = err

		return result, nil
	}

	if err = g.state.Save(ctx, current); err != nil {
		return nil, fmt.Errorf("persist upload state: %w", err)
	}

	logger.InfoKV(ctx, "Filesystem uploaded successfully", "fingerprint", current.Short())

	result.Outcome = OutcomeUploaded

	return result, nil
}

// loadPrevious reads the persisted fingerprint; a missing state means "never uploaded".
func (g *Gate) loadPrevious(ctx context.Context) (asset.Fingerprint, error) {
	previous, err := g.state.Load(ctx)
	if errors.Is(err, state.ErrNotFound) {
		logger.Debug(ctx, "No upload state recorded yet")
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("load upload state: %w", err)
	}

	return previous, nil
}

// warnAboutBusyPort logs processes that usually keep the serial port open.
func (g *Gate) warnAboutBusyPort(ctx context.Context) {
	running, err := common.RunningProcesses(g.cfg.ConflictingProcesses)
	if err != nil {
		logger.DebugKV(ctx, "Unable to list processes", "error", err)
		return
	}

	if len(running) > 0 {
		logger.WarnKV(ctx, "Processes that may hold the serial port are running", "processes", running)
	}
}

// loadSettings reads the settings file and applies the command-line overrides.
func loadSettings(opts *Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	if opts.OutputDir != "" {
		cfg.OutputDir = opts.OutputDir
	}

	if opts.StateFile != "" {
		cfg.StateFile = opts.StateFile
	}

	if err = config.Validate(cfg); err != nil {
		return nil, err
	}

	cfg.Environment = config.ResolveEnvironment(opts.Environment)

	return cfg, nil
}
