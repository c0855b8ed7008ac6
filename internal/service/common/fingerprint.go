//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"crypto"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"

	"github.com/oshokin/webfs/internal/domain/asset"

	// Ensure SHA256 available for fingerprint calculation.
	_ "crypto/sha256"
)

// DefaultChecksumFunction is used to fingerprint canonical trees.
const DefaultChecksumFunction crypto.Hash = crypto.SHA256

var errHashUnavailable = errors.New("hash function unavailable")

// ListFiles returns the slash-separated paths of all regular files in fsys,
// sorted lexicographically.
func ListFiles(fsys fs.FS) ([]string, error) {
	var files []string

	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.Type().IsRegular() {
			files = append(files, path)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)

	return files, nil
}

// HasFiles reports whether root exists and contains at least one regular file.
func HasFiles(root string) (bool, error) {
	info, err := os.Stat(root)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}

	if !info.IsDir() {
		return false, nil
	}

	found := false

	err = fs.WalkDir(os.DirFS(root), ".", func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.Type().IsRegular() {
			found = true
			return fs.SkipAll
		}

		return nil
	})
	if err != nil {
		return false, fmt.Errorf("scan %s: %w", root, err)
	}

	return found, nil
}

// TreeFingerprint computes the content fingerprint of the directory at root.
func TreeFingerprint(root string) (asset.Fingerprint, error) {
	return Fingerprint(os.DirFS(root))
}

// Fingerprint feeds the relative path and the raw bytes of every file in fsys,
// in lexicographic path order, into a single hash and returns its hex digest.
func Fingerprint(fsys fs.FS) (asset.Fingerprint, error) {
	if !DefaultChecksumFunction.Available() {
		return "", fmt.Errorf("fingerprint calculation not possible: %w", errHashUnavailable)
	}

	files, err := ListFiles(fsys)
	if err != nil {
		return "", fmt.Errorf("list files: %w", err)
	}

	hasher := DefaultChecksumFunction.New()

	for _, name := range files {
		if _, err = io.WriteString(hasher, name); err != nil {
			return "", fmt.Errorf("hash path %s: %w", name, err)
		}

		if err = hashFile(hasher, fsys, name); err != nil {
			return "", err
		}
	}

	return asset.Fingerprint(hex.EncodeToString(hasher.Sum(nil))), nil
}

func hashFile(w io.Writer, fsys fs.FS, name string) error {
	f, err := fsys.Open(name)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}

	// Best-effort cleanup.
	defer func() {
		_ = f.Close()
	}()

	if _, err = io.Copy(w, f); err != nil {
		return fmt.Errorf("hash %s: %w", name, err)
	}

	return nil
}
