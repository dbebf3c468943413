package fsutil

import (
	"os"
	"path/filepath"
)

// EnsureDir creates path and any missing parents with DirModeDefault
// permissions. Used wherever a cache or staging directory may not exist
// yet on first run.
func EnsureDir(path string) error {
	return os.MkdirAll(path, DirModeDefault)
}

// EnsureFileDir creates the parent directory of filePath, so a caller
// about to write filePath (a config file, a staged download, a target
// inside the install root) doesn't have to check for it first.
func EnsureFileDir(filePath string) error {
	dir := filepath.Dir(filePath)
	return EnsureDir(dir)
}
