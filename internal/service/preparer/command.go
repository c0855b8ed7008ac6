package preparer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/oshokin/webfs/internal/config"
	"github.com/oshokin/webfs/internal/domain/asset"
	"github.com/oshokin/webfs/internal/logger"
	"github.com/oshokin/webfs/internal/service/common"
)

// Options contains inputs for the preparer entry point.
type Options struct {
	// ConfigPath is an optional path to the settings file (defaults to webfs.yaml).
	ConfigPath string
	// SourceDir overrides the configured source tree when set.
	SourceDir string
	// OutputDir overrides the configured output tree when set.
	OutputDir string
}

// Report summarises a preparer run.
type Report struct {
	// Processed is the number of canonical files written.
	Processed int
	// Compressed is the number of files stored gzip-compressed.
	Compressed int
	// Copied is the number of files stored verbatim.
	Copied int
	// Ignored is the number of source files outside the extension allow-list.
	Ignored int
	// Purged is the number of top-level source entries removed after the run.
	Purged int
	// SourceBytes is the total size of the processed source files.
	SourceBytes int64
	// OutputBytes is the total size of the written canonical files.
	OutputBytes int64
	// Reused is set when there was nothing to prepare and an existing output tree was kept.
	Reused bool
	// Missing is set when there was nothing to prepare and no output tree either.
	Missing bool
}

// preparer rebuilds the canonical tree for one run.
// Callers use Run or Prepare.
type preparer struct {
	// cfg holds the source and output trees and the compression policy settings.
	cfg *config.Config
	// policy classifies source files and derives canonical paths.
	policy *asset.Policy
	// report accumulates the run summary.
	report *Report
}

// job pairs a source asset with the canonical file it produces.
type job struct {
	source    asset.Source
	canonical asset.Canonical
}

// errCanonicalCollision indicates that two source files map onto the same canonical path.
var errCanonicalCollision = errors.New("source files map to the same canonical path")

// Run loads the settings, applies overrides and prepares the canonical tree.
func Run(ctx context.Context, opts *Options) (*Report, error) {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "webfs-prepare")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	if opts.SourceDir != "" {
		cfg.SourceDir = opts.SourceDir
	}

	if opts.OutputDir != "" {
		cfg.OutputDir = opts.OutputDir
	}

	if err = config.Validate(cfg); err != nil {
		return nil, err
	}

	report, err := Prepare(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("preparer failed: %w", err)
	}

	return report, nil
}

// Prepare rebuilds cfg.OutputDir from cfg.SourceDir and purges the source tree.
// When the source tree has no eligible files nothing is touched.
func Prepare(ctx context.Context, cfg *config.Config) (*Report, error) {
	p := &preparer{
		cfg:    cfg,
		policy: asset.NewPolicy(cfg.Extensions, cfg.NoCompressMarker),
		report: new(Report),
	}

	jobs, err := p.plan()
	if err != nil {
		return nil, err
	}

	if len(jobs) == 0 {
		if err = p.handleNothingToPrepare(ctx); err != nil {
			return nil, err
		}

		return p.report, nil
	}

	logger.InfoKV(ctx, "Rebuilding canonical tree",
		"source", p.cfg.SourceDir, "output", p.cfg.OutputDir, "assets", len(jobs))

	if err = p.resetOutput(); err != nil {
		return nil, err
	}

	for _, j := range jobs {
		if err = p.write(ctx, j); err != nil {
			return nil, err
		}
	}

	if err = p.purgeSource(ctx); err != nil {
		return nil, err
	}

	logger.Infof(ctx, "Prepared %d web assets in %s (%s -> %s, %d compressed, %d copied)",
		p.report.Processed,
		p.cfg.OutputDir,
		humanize.Bytes(uint64(p.report.SourceBytes)),
		humanize.Bytes(uint64(p.report.OutputBytes)),
		p.report.Compressed,
		p.report.Copied)

	return p.report, nil
}

// plan lists eligible source files in sorted order and derives their canonical paths.
func (p *preparer) plan() ([]job, error) {
	files, err := p.sourceFiles()
	if err != nil {
		return nil, err
	}

	jobs := make([]job, 0, len(files))
	owners := make(map[string]string, len(files))

	for _, rel := range files {
		src, ok := p.policy.Classify(rel)
		if !ok {
			p.report.Ignored++
			continue
		}

		canonical := p.policy.Canonical(src)

		if owner, taken := owners[canonical.RelativePath]; taken {
			return nil, fmt.Errorf("%s and %s -> %s: %w", owner, rel, canonical.RelativePath, errCanonicalCollision)
		}

		owners[canonical.RelativePath] = rel

		jobs = append(jobs, job{source: src, canonical: canonical})
	}

	return jobs, nil
}

// sourceFiles returns the slash-separated paths of regular files below SourceDir.
// A missing source tree yields no files.
func (p *preparer) sourceFiles() ([]string, error) {
	info, err := os.Stat(p.cfg.SourceDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("stat source tree: %w", err)
	}

	if !info.IsDir() {
		return nil, nil
	}

	files, err := common.ListFiles(os.DirFS(p.cfg.SourceDir))
	if err != nil {
		return nil, fmt.Errorf("scan source tree: %w", err)
	}

	return files, nil
}

// handleNothingToPrepare keeps an existing output tree or warns about the missing one.
func (p *preparer) handleNothingToPrepare(ctx context.Context) error {
	hasOutput, err := common.HasFiles(p.cfg.OutputDir)
	if err != nil {
		return fmt.Errorf("inspect output tree: %w", err)
	}

	if hasOutput {
		p.report.Reused = true

		logger.Infof(ctx, "No minified files in %s, using existing %s from repository",
			p.cfg.SourceDir, p.cfg.OutputDir)

		return nil
	}

	p.report.Missing = true

	logger.Warnf(ctx, "No minified files found in %s and no pre-built %s directory",
		p.cfg.SourceDir, p.cfg.OutputDir)
	logger.Warnf(ctx, "Install minification tools or restore %s from the repository", p.cfg.OutputDir)

	return nil
}

// resetOutput deletes the output tree and recreates it empty.
func (p *preparer) resetOutput() error {
	if err := os.RemoveAll(p.cfg.OutputDir); err != nil {
		return fmt.Errorf("remove output tree: %w", err)
	}

	if err := os.MkdirAll(p.cfg.OutputDir, config.DefaultDirPermissions); err != nil {
		return fmt.Errorf("create output tree: %w", err)
	}

	return nil
}

// write stores one canonical file, compressed or verbatim.
func (p *preparer) write(ctx context.Context, j job) error {
	sourcePath := filepath.Join(p.cfg.SourceDir, filepath.FromSlash(j.source.RelativePath))
	outputPath := filepath.Join(p.cfg.OutputDir, filepath.FromSlash(j.canonical.RelativePath))

	raw, err := os.ReadFile(filepath.Clean(sourcePath))
	if err != nil {
		return fmt.Errorf("read %s: %w", j.source.RelativePath, err)
	}

	data := raw
	if j.canonical.Compressed {
		data, err = compress(raw, p.cfg.CompressionLevel)
		if err != nil {
			return fmt.Errorf("compress %s: %w", j.source.RelativePath, err)
		}
	}

	if err = os.MkdirAll(filepath.Dir(outputPath), config.DefaultDirPermissions); err != nil {
		return fmt.Errorf("create directory for %s: %w", j.canonical.RelativePath, err)
	}

	if err = os.WriteFile(outputPath, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write %s: %w", j.canonical.RelativePath, err)
	}

	if j.canonical.Compressed {
		p.report.Compressed++
	} else {
		p.report.Copied++
	}

	p.report.Processed++
	p.report.SourceBytes += int64(len(raw))
	p.report.OutputBytes += int64(len(data))

	logger.DebugKV(ctx, "Prepared asset",
		"source", j.source.RelativePath,
		"output", j.canonical.RelativePath,
		"compressed", j.canonical.Compressed)

	return nil
}

// purgeSource removes top-level source entries except dotfiles and pipeline scripts.
func (p *preparer) purgeSource(ctx context.Context) error {
	entries, err := os.ReadDir(p.cfg.SourceDir)
	if err != nil {
		return fmt.Errorf("read source tree: %w", err)
	}

	for _, entry := range entries {
		if p.keep(entry) {
			continue
		}

		if err = os.RemoveAll(filepath.Join(p.cfg.SourceDir, entry.Name())); err != nil {
			return fmt.Errorf("purge %s: %w", entry.Name(), err)
		}

		p.report.Purged++
	}

	logger.DebugKV(ctx, "Purged source tree", "entries", p.report.Purged)

	return nil
}

func (p *preparer) keep(entry fs.DirEntry) bool {
	name := entry.Name()
	if strings.HasPrefix(name, ".") {
		return true
	}

	return slices.Contains(p.cfg.KeepSuffixes, strings.ToLower(filepath.Ext(name)))
}
