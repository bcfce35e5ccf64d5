package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/weft/pkg/domain"
)

// Ext is the file extension of a persisted cache entry.
const Ext = ".wcache"

// Tier implements ports.CacheTier using the local filesystem.
// Entries are sharded by the first two characters of the fingerprint:
// <root>/<fp[0:2]>/<fp>.wcache
type Tier struct {
	Root string
}

// New creates a new Tier rooted at root.
// If root is empty, it defaults to ".weft/cache".
func New(root string) *Tier {
	if root == "" {
		root = filepath.Join(".weft", "cache")
	}
	return &Tier{Root: root}
}

// Path returns the file that holds the entry for a fingerprint.
func (t *Tier) Path(fingerprint string) (string, error) {
	if err := checkFingerprint(fingerprint); err != nil {
		return "", err
	}
	return filepath.Join(t.Root, fingerprint[:2], fingerprint+Ext), nil
}

// Read returns the stored entry bytes.
func (t *Tier) Read(ctx context.Context, fingerprint string) ([]byte, error) {
	path, err := t.Path(fingerprint)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return data, nil
}

// Write persists the entry atomically.
// It writes to a temporary file in the shard directory, syncs it, and renames it into place,
// so readers never observe a partially written entry.
func (t *Tier) Write(ctx context.Context, fingerprint string, data []byte) error {
	destPath, err := t.Path(fingerprint)
	if err != nil {
		return err
	}
	dir := filepath.Dir(destPath)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to ensure cache shard directory: %w", err)
	}

	// Same directory keeps the rename on one filesystem.
	tmpFile, err := os.CreateTemp(dir, "tmp-"+fingerprint+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file into cache: %w", err)
	}
	return nil
}

// Delete removes the entry file.
func (t *Tier) Delete(ctx context.Context, fingerprint string) error {
	path, err := t.Path(fingerprint)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// List returns the fingerprints of every persisted entry.
func (t *Tier) List(ctx context.Context) ([]string, error) {
	var fps []string
	err := t.walk(ctx, func(path string, info fs.FileInfo) error {
		fps = append(fps, strings.TrimSuffix(filepath.Base(path), Ext))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}
	return fps, nil
}

// Size returns the total bytes of persisted entries.
func (t *Tier) Size(ctx context.Context) (int64, error) {
	var total int64
	err := t.walk(ctx, func(path string, info fs.FileInfo) error {
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to size cache: %w", err)
	}
	return total, nil
}

// Clear removes every entry file and the shard directories left empty.
// Files not written by the tier are left alone.
func (t *Tier) Clear(ctx context.Context) error {
	err := t.walk(ctx, func(path string, info fs.FileInfo) error {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		_ = os.Remove(filepath.Dir(path)) // only succeeds once the shard is empty
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

func (t *Tier) walk(ctx context.Context, fn func(path string, info fs.FileInfo) error) error {
	err := filepath.WalkDir(t.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || filepath.Ext(path) != Ext {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		return fn(path, info)
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func checkFingerprint(fp string) error {
	if len(fp) < 2 {
		return fmt.Errorf("invalid fingerprint %q: too short", fp)
	}
	if strings.ContainsAny(fp, `/\.`) {
		return fmt.Errorf("invalid fingerprint %q: path characters", fp)
	}
	return nil
}
