package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the pipeline settings shared by the webfs build hooks.
type Config struct {
	// SourceDir is the tree of minified web assets produced by the UI build.
	SourceDir string `yaml:"source_dir"`
	// OutputDir is the canonical tree packed into the device filesystem image.
	OutputDir string `yaml:"output_dir"`
	// StateFile stores the fingerprint of the last successfully uploaded tree.
	StateFile string `yaml:"state_file"`
	// NoCompressMarker is the filename token that opts a file out of compression.
	NoCompressMarker string `yaml:"no_compress_marker"`
	// Extensions is the allow-list of asset extensions the preparer handles.
	Extensions []string `yaml:"extensions"`
	// KeepSuffixes lists top-level source entries (by extension) that survive cleanup.
	KeepSuffixes []string `yaml:"keep_suffixes"`
	// CompressionLevel is the gzip level used for compressible assets.
	CompressionLevel int `yaml:"compression_level"`
	// UploadCommand is the argv of the filesystem upload action.
	// Every EnvironmentPlaceholder is replaced with the active build environment.
	UploadCommand []string `yaml:"upload_command"`
	// ConflictingProcesses are executables that usually hold the serial port.
	ConflictingProcesses []string `yaml:"conflicting_processes"`
	// Environment is the active build environment passed in by the build system.
	// It is set at runtime and never persisted.
	Environment string `yaml:"-"`
}

const (
	// DefaultConfigFilename is the default filename for pipeline settings.
	DefaultConfigFilename = "webfs.yaml"

	// DefaultSourceDir is where the UI build leaves minified assets.
	DefaultSourceDir = "src/web/build"

	// DefaultOutputDir is the directory the filesystem image is built from.
	DefaultOutputDir = "data"

	// DefaultStateFilename holds the fingerprint of the last uploaded tree.
	DefaultStateFilename = ".littlefs_hash"

	// DefaultNoCompressMarker is the token that keeps a file out of gzip.
	DefaultNoCompressMarker = ".nogz"

	// DefaultCompressionLevel is the maximum gzip level.
	DefaultCompressionLevel = 9

	// EnvironmentPlaceholder is substituted in UploadCommand arguments.
	EnvironmentPlaceholder = "{env}"

	// EnvironmentVariable is exported by PlatformIO to hook scripts.
	EnvironmentVariable = "PIOENV"

	// DefaultFilePermissions is the permission for files the pipeline writes.
	DefaultFilePermissions = 0o644

	// DefaultDirPermissions is the permission for directories the pipeline creates.
	DefaultDirPermissions = 0o755

	minCompressionLevel = 1
	maxCompressionLevel = 9
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errDirectoryRequired is returned when a tree path is blank after defaults.
	errDirectoryRequired = errors.New("directory must be provided")
	// errOverlappingTrees is returned when the source and output trees nest.
	errOverlappingTrees = errors.New("source and output directories must not overlap")
	// errInvalidCompressionLevel is returned for levels outside 1..9.
	errInvalidCompressionLevel = errors.New("compression level must be between 1 and 9")
	// errInvalidMarker is returned when the marker is only a dot.
	errInvalidMarker = errors.New("no-compress marker must contain a token")
	// errEnvironmentRequired is returned when the upload command needs an environment.
	errEnvironmentRequired = errors.New("build environment must be provided")
	// errUploadCommandRequired is returned when the rendered upload command is empty.
	errUploadCommandRequired = errors.New("upload command must be provided")
)

// DefaultExtensions returns the allow-list used when the settings do not name one.
func DefaultExtensions() []string {
	return []string{".html", ".htm", ".css", ".js", ".json", ".svg", ".ico", ".mp3", ".wav", ".bin"}
}

// DefaultKeepSuffixes returns the extensions of pipeline scripts kept in the source tree.
func DefaultKeepSuffixes() []string {
	return []string{".py", ".sh"}
}

// DefaultUploadCommand returns the PlatformIO invocation that flashes the filesystem image.
func DefaultUploadCommand() []string {
	return []string{"pio", "run", "--target", "uploadfs", "--environment", EnvironmentPlaceholder}
}

// DefaultConflictingProcesses returns executables that typically keep the serial port busy.
func DefaultConflictingProcesses() []string {
	return []string{"pio", "platformio", "esptool", "esptool.py"}
}

// Default returns a validated configuration built from defaults only.
func Default() *Config {
	cfg := new(Config)

	// Defaults always validate.
	_ = Validate(cfg)

	return cfg
}

// Load reads configuration from the provided path and validates it.
// An empty path means DefaultConfigFilename, which may be absent:
// in that case the defaults are returned.
func Load(path string) (*Config, error) {
	optional := path == ""
	if optional {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate fills defaults, normalises the lists and rejects unusable settings.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	applyDefaults(cfg)

	cfg.Extensions = normaliseSuffixes(cfg.Extensions)
	cfg.KeepSuffixes = normaliseSuffixes(cfg.KeepSuffixes)

	if !strings.HasPrefix(cfg.NoCompressMarker, ".") {
		cfg.NoCompressMarker = "." + cfg.NoCompressMarker
	}

	if strings.Trim(cfg.NoCompressMarker, ".") == "" {
		return errInvalidMarker
	}

	if cfg.CompressionLevel < minCompressionLevel || cfg.CompressionLevel > maxCompressionLevel {
		return fmt.Errorf("%w: %d", errInvalidCompressionLevel, cfg.CompressionLevel)
	}

	if strings.TrimSpace(cfg.SourceDir) == "" || strings.TrimSpace(cfg.OutputDir) == "" {
		return errDirectoryRequired
	}

	overlap, err := treesOverlap(cfg.SourceDir, cfg.OutputDir)
	if err != nil {
		return err
	}

	if overlap {
		return fmt.Errorf("%w: %s, %s", errOverlappingTrees, cfg.SourceDir, cfg.OutputDir)
	}

	return nil
}

// UploadArgs renders UploadCommand for the configured environment.
func (c *Config) UploadArgs() ([]string, error) {
	return RenderCommand(c.UploadCommand, c.Environment)
}

// RenderCommand replaces EnvironmentPlaceholder in every argument with environment.
// An empty environment is an error only when the command references it.
func RenderCommand(command []string, environment string) ([]string, error) {
	args := make([]string, 0, len(command))

	for _, arg := range command {
		if !strings.Contains(arg, EnvironmentPlaceholder) {
			args = append(args, arg)
			continue
		}

		if environment == "" {
			return nil, fmt.Errorf("%w: upload command references %s", errEnvironmentRequired, EnvironmentPlaceholder)
		}

		args = append(args, strings.ReplaceAll(arg, EnvironmentPlaceholder, environment))
	}

	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return nil, errUploadCommandRequired
	}

	return args, nil
}

// ResolveEnvironment picks the explicit environment or falls back to EnvironmentVariable.
func ResolveEnvironment(explicit string) string {
	if env := strings.TrimSpace(explicit); env != "" {
		return env
	}

	return strings.TrimSpace(os.Getenv(EnvironmentVariable))
}

func applyDefaults(cfg *Config) {
	if cfg.SourceDir == "" {
		cfg.SourceDir = DefaultSourceDir
	}

	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}

	if cfg.StateFile == "" {
		cfg.StateFile = DefaultStateFilename
	}

	if cfg.NoCompressMarker == "" {
		cfg.NoCompressMarker = DefaultNoCompressMarker
	}

	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultExtensions()
	}

	if cfg.KeepSuffixes == nil {
		cfg.KeepSuffixes = DefaultKeepSuffixes()
	}

	if cfg.CompressionLevel == 0 {
		cfg.CompressionLevel = DefaultCompressionLevel
	}

	if len(cfg.UploadCommand) == 0 {
		cfg.UploadCommand = DefaultUploadCommand()
	}

	if cfg.ConflictingProcesses == nil {
		cfg.ConflictingProcesses = DefaultConflictingProcesses()
	}
}

// normaliseSuffixes lower-cases, dot-prefixes and de-duplicates extensions.
func normaliseSuffixes(values []string) []string {
	result := make([]string, 0, len(values))

	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" || value == "." {
			continue
		}

		if !strings.HasPrefix(value, ".") {
			value = "." + value
		}

		if !slices.Contains(result, value) {
			result = append(result, value)
		}
	}

	return result
}

// treesOverlap reports whether one directory is equal to or nested inside the other.
func treesOverlap(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", a, err)
	}

	absB, err := filepath.Abs(b)
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", b, err)
	}

	return within(absA, absB) || within(absB, absA), nil
}

func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}

	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
