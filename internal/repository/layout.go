package repository

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	archiveDirName = "archived"
	stagingDirName = ".staging"
	activeDirName  = "active"
	versionsDir    = "versions"
)

// Layout maps documents onto the storage tree:
//
//	<root>/<doc_id>/active/...
//	<root>/<doc_id>/versions/v<major>/...
//	<root>/archived/<doc_id>/...
type Layout struct {
	root string
}

func NewLayout(root string) (Layout, error) {
	if strings.TrimSpace(root) == "" {
		return Layout{}, errors.New("storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return Layout{}, fmt.Errorf("resolve storage root: %w", err)
	}
	for _, dir := range []string{abs, filepath.Join(abs, archiveDirName), filepath.Join(abs, stagingDirName)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Layout{}, fmt.Errorf("create storage directory %s: %w", dir, err)
		}
	}
	return Layout{root: abs}, nil
}

func (l Layout) Root() string { return l.root }

// DocDir is the directory holding everything for one document.
func (l Layout) DocDir(id string, retired bool) string {
	if retired {
		return filepath.Join(l.root, archiveDirName, id)
	}
	return filepath.Join(l.root, id)
}

func (l Layout) ActiveDir(id string, retired bool) string {
	return filepath.Join(l.DocDir(id, retired), activeDirName)
}

func (l Layout) VersionDir(id string, retired bool, major int) string {
	return filepath.Join(l.DocDir(id, retired), versionsDir, fmt.Sprintf("v%d", major))
}

func (l Layout) newStagingDir() (string, error) {
	dir := filepath.Join(l.root, stagingDirName, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create staging directory: %w", err)
	}
	return dir, nil
}

// rel converts an absolute artifact path to the slash-separated form stored
// in the database.
func (l Layout) rel(abs string) (string, error) {
	if abs == "" {
		return "", nil
	}
	r, err := filepath.Rel(l.root, abs)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("artifact %s is outside the storage root", abs)
	}
	return filepath.ToSlash(r), nil
}

// Relative is rel for callers outside the store: paths outside the root
// collapse to their base name.
func (l Layout) Relative(abs string) string {
	r, err := l.rel(abs)
	if err != nil {
		return filepath.Base(abs)
	}
	return r
}

func (l Layout) abs(rel string) string {
	if rel == "" {
		return ""
	}
	return filepath.Join(l.root, filepath.FromSlash(rel))
}

// retarget rewrites a stored path when the document directory moves into or
// out of the archive area.
func retarget(rel, id string, toRetired bool) string {
	live := id + "/"
	archived := path.Join(archiveDirName, id) + "/"
	switch {
	case toRetired && strings.HasPrefix(rel, live):
		return archived + strings.TrimPrefix(rel, live)
	case !toRetired && strings.HasPrefix(rel, archived):
		return live + strings.TrimPrefix(rel, archived)
	}
	return rel
}

// copyFile writes src to dst through a temp file and rename so dst is either
// absent or complete.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", dst, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	if err = os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("rename into %s: %w", dst, err)
	}
	return nil
}

// uniquePath returns dir/name, or dir/name-N.ext when that already exists.
// Artifacts are never overwritten.
func uniquePath(dir, name string) string {
	candidate := filepath.Join(dir, name)
	if _, err := os.Stat(candidate); errors.Is(err, fs.ErrNotExist) {
		return candidate
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, i, ext))
		if _, err := os.Stat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate
		}
	}
}

// moveDir renames src to dst. It is idempotent: a missing src with an
// existing dst counts as already moved.
func moveDir(src, dst string) error {
	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		if _, derr := os.Stat(dst); derr == nil {
			return nil
		}
		return fmt.Errorf("move %s: source missing", src)
	}
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("move %s: destination %s already exists", src, dst)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("move %s to %s: %w", src, dst, err)
	}
	return nil
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}
