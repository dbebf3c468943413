package fsutil

import "path/filepath"

// Layout constants for the local installation root, per the external
// interfaces: <root>/db.xml.gz, <root>/.checksums, <root>/update/...,
// and <root>/<AppName>.app alongside its .old.app backup.
const (
	CatalogFileName   = "db.xml.gz"
	ChecksumCacheName = ".checksums"
	UpdateDirName     = "update"
)

// CatalogPath returns <root>/db.xml.gz.
func CatalogPath(root string) string {
	return filepath.Join(root, CatalogFileName)
}

// ChecksumCachePath returns <root>/.checksums.
func ChecksumCachePath(root string) string {
	return filepath.Join(root, ChecksumCacheName)
}

// UpdateDir returns <root>/update, the staging area.
func UpdateDir(root string) string {
	return filepath.Join(root, UpdateDirName)
}

// StagedPath maps a root-relative file path to its staging location under
// <root>/update/<path>.
func StagedPath(root, relPath string) string {
	return filepath.Join(UpdateDir(root), relPath)
}

// AppBundlePath returns <root>/<appName>.app.
func AppBundlePath(root, appName string) string {
	return filepath.Join(root, appName+".app")
}

// AppBundleBackupPath returns <root>/<appName>.old.app.
func AppBundleBackupPath(root, appName string) string {
	return filepath.Join(root, appName+".old.app")
}
