package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"tululu-scraper/pkg/utils"
)

// writeFileAtomic writes data to a temp file next to path and renames it into place,
// so readers see either the old file or the complete new one.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: creating directory '%s': %w", utils.ErrFilesystem, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp file in '%s': %w", utils.ErrFilesystem, dir, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("%w: writing '%s': %w", utils.ErrFilesystem, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: closing '%s': %w", utils.ErrFilesystem, tmpName, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return fmt.Errorf("%w: chmod '%s': %w", utils.ErrFilesystem, tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("%w: renaming into '%s': %w", utils.ErrFilesystem, path, err)
	}
	return nil
}
