package state

import (
	"bytes"
	"context"
	"crypto"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/webfs/internal/config"
	"github.com/oshokin/webfs/internal/domain/asset"

	// Ensure SHA256 is available for write verification.
	_ "crypto/sha256"
)

// Repository defines persistence operations for the upload state.
type Repository interface {
	Load(ctx context.Context) (asset.Fingerprint, error)
	Save(ctx context.Context, fingerprint asset.Fingerprint) error
}

// FileRepository persists the upload state to a plain-text file on disk.
// Saves replace the file atomically, so a crash never leaves a torn value.
type FileRepository struct {
	// path is the filesystem location of the state file.
	path string
	// mu protects concurrent access to the state file.
	mu sync.Mutex
}

// ErrNotFound is returned when the state file does not exist yet.
var ErrNotFound = errors.New("upload state not found")

// errEmptyFingerprint is returned when saving a zero fingerprint.
var errEmptyFingerprint = errors.New("fingerprint must not be empty")

// writeChecksumFunction verifies the bytes written by Save.
const writeChecksumFunction = crypto.SHA256

// NewFileRepository creates a repository that reads/writes the fingerprint at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the location of the state file.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads the last uploaded fingerprint from disk.
func (r *FileRepository) Load(_ context.Context) (asset.Fingerprint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}

		return "", fmt.Errorf("read state file: %w", err)
	}

	return asset.Fingerprint(strings.TrimSpace(string(contents))), nil
}

// Save replaces the state file with the provided fingerprint.
func (r *FileRepository) Save(_ context.Context, fingerprint asset.Fingerprint) error {
	if fingerprint.IsZero() {
		return errEmptyFingerprint
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	data := []byte(fingerprint.String())

	// The atomic swap renames the current file aside, so it has to exist.
	if _, err := os.Stat(r.path); errors.Is(err, os.ErrNotExist) {
		if err = os.WriteFile(r.path, nil, config.DefaultFilePermissions); err != nil {
			return fmt.Errorf("create state file: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("stat state file: %w", err)
	}

	hasher := writeChecksumFunction.New()
	_, _ = hasher.Write(data)

	options := goupdate.Options{
		TargetPath: r.path,
		TargetMode: config.DefaultFilePermissions,
		Checksum:   hasher.Sum(nil),
		Hash:       writeChecksumFunction,
	}

	if err := goupdate.Apply(bytes.NewReader(data), options); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}

	// On Windows the previous file is only hidden, not removed.
	oldFileName := filepath.Join(filepath.Dir(r.path), "."+filepath.Base(r.path)+".old")
	if _, err := os.Stat(oldFileName); err == nil {
		_ = os.Remove(oldFileName)
	}

	return nil
}
