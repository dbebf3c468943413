// Package installer stages downloaded payload files under the
// installation's update directory, verifies them against the catalog's
// advertised size and digest, and atomically moves verified files into
// place - with two carve-outs for files that cannot tolerate staging: the
// platform launcher/native-config path and the whole-bundle refresh of a
// *.app directory.
package installer

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/plugsite/plugsite/pkg/applog"
	"github.com/plugsite/plugsite/pkg/catalog"
	"github.com/plugsite/plugsite/pkg/errs"
	"github.com/plugsite/plugsite/pkg/fsutil"
	"github.com/plugsite/plugsite/pkg/hashsum"
	"github.com/plugsite/plugsite/pkg/platform"
	"github.com/plugsite/plugsite/pkg/progress"
)

// launcherConfiguratorDir is the top-level directory whose contents are
// always treated as launcher/native-config files regardless of extension.
const launcherConfiguratorDir = "Contents/MacOS"

// Task is one file the installer must act on for a single batch.
type Task struct {
	File     *catalog.File
	SiteBase string // the owning site's URL, for building the download URL
	Delete   bool   // true for a staged UNINSTALL/REMOVE
}

// Batch drives one install/update/uninstall run against root.
type Batch struct {
	Root    string
	Fetcher *Fetcher
	Sink    progress.Sink

	// ResolveBundle, if set, returns every currently-installed catalog
	// file inside the named *.app bundle, not just the subset that
	// happened to be staged for this run - so a single changed member
	// still triggers a full atomic bundle refresh per the design's
	// whole-bundle-backup guarantee. Tasks it returns override any
	// task in the batch that shares the same LocalFilename.
	ResolveBundle func(bundleName string) []Task
}

// NewBatch creates a Batch with a Noop progress sink unless overridden.
func NewBatch(root string, fetcher *Fetcher) *Batch {
	return &Batch{Root: root, Fetcher: fetcher, Sink: progress.Noop{}}
}

// Run executes tasks to completion: stage (or direct-write, for launcher
// and bundle paths), verify, and move into place. Any verification
// failure aborts the whole batch before moveUpdatedIntoPlace runs, leaving
// the update directory untouched for the next attempt.
func (b *Batch) Run(ctx context.Context, tasks []Task) error {
	bundleName, bundleTasks := detectBundleRefresh(tasks)
	if bundleName != "" {
		if b.ResolveBundle != nil {
			if full := b.ResolveBundle(bundleName); len(full) > 0 {
				resolved := make(map[string]bool, len(full))
				for _, t := range full {
					resolved[t.File.LocalFilename] = true
				}
				for _, t := range bundleTasks {
					if !resolved[t.File.LocalFilename] {
						full = append(full, t)
					}
				}
				bundleTasks = full
			}
		}
		if err := b.refreshBundle(ctx, bundleName, bundleTasks); err != nil {
			return err
		}
	}

	var staged []Task
	var launcher []Task
	for _, t := range tasks {
		if bundleName != "" && strings.HasPrefix(t.File.LocalFilename, bundleName+"/") {
			continue // handled by refreshBundle above
		}
		if t.Delete {
			staged = append(staged, t)
			continue
		}
		if isLauncherPath(t.File.LocalFilename) {
			launcher = append(launcher, t)
			continue
		}
		staged = append(staged, t)
	}

	if err := b.runLauncherBypass(ctx, launcher); err != nil {
		return err
	}

	items, placeholders := b.planDownloads(staged)
	if err := b.Fetcher.FetchAll(ctx, items, b.Sink); err != nil {
		return err
	}
	for _, relPath := range placeholders {
		if err := writePlaceholder(fsutil.StagedPath(b.Root, relPath)); err != nil {
			return err
		}
	}

	if err := b.verifyStaged(staged); err != nil {
		return err
	}

	return b.moveUpdatedIntoPlace(ctx)
}

func isLauncherPath(relPath string) bool {
	if _, ok := platform.LauncherTag(relPath); ok {
		return true
	}
	return strings.HasPrefix(relPath, launcherConfiguratorDir+"/")
}

// planDownloads returns the download items for non-delete tasks and the
// staged relative paths that should become zero-length placeholders
// (deletes).
func (b *Batch) planDownloads(staged []Task) (items []Item, placeholders []string) {
	for _, t := range staged {
		if t.Delete {
			placeholders = append(placeholders, t.File.LocalFilename)
			continue
		}
		items = append(items, Item{
			URL:      payloadURL(t),
			DestPath: fsutil.StagedPath(b.Root, t.File.LocalFilename),
		})
	}
	return items, placeholders
}

func payloadURL(t Task) string {
	if t.File.Current == nil {
		return EncodedURL(t.SiteBase, t.File.Filename, t.File.LocalTimestamp)
	}
	return EncodedURL(t.SiteBase, t.File.Filename, t.File.Current.Timestamp)
}

func writePlaceholder(path string) error {
	if err := fsutil.EnsureFileDir(path); err != nil {
		return errs.Wrap(err, "create placeholder directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return errs.Wrap(err, "create placeholder")
	}
	return f.Close()
}

// verifyStaged checks every non-delete staged file's byte length and
// digest (current or any legacy digest) against the catalog's advertised
// values. A single mismatch aborts the batch.
func (b *Batch) verifyStaged(staged []Task) error {
	var result *multierror.Error
	for _, t := range staged {
		if t.Delete || t.File.Current == nil {
			continue
		}
		stagedPath := fsutil.StagedPath(b.Root, t.File.LocalFilename)
		info, err := os.Stat(stagedPath)
		if err != nil {
			return errs.Wrap(err, "stat staged file")
		}
		if info.Size() != t.File.Current.Filesize {
			result = multierror.Append(result, errs.Wrapf(errs.ErrSizeMismatch, "%s: staged %d bytes, expected %d", t.File.Filename, info.Size(), t.File.Current.Filesize))
			continue
		}

		digest, err := hashsum.Digest(context.Background(), stagedPath, t.File.LocalFilename)
		if err != nil {
			return errs.Wrap(err, "digest staged file")
		}
		matched := digest == t.File.Current.Checksum
		if !matched {
			legacy, err := hashsum.LegacyDigests(context.Background(), stagedPath, t.File.LocalFilename)
			if err != nil {
				return errs.Wrap(err, "legacy digest staged file")
			}
			for _, l := range legacy {
				if l == t.File.Current.Checksum {
					matched = true
					break
				}
			}
		}
		if !matched {
			result = multierror.Append(result, errs.Wrapf(errs.ErrDigestMismatch, "%s", t.File.Filename))
			continue
		}

		if t.File.Executable && runtime.GOOS != "windows" {
			if err := os.Chmod(stagedPath, fsutil.FileModeExec); err != nil {
				return errs.Wrap(err, "set executable bit")
			}
		}
	}
	return result.ErrorOrNil()
}

// moveUpdatedIntoPlace recursively walks the update directory and, for
// each staged file, either deletes the corresponding target (if the
// staged file is a zero-length placeholder) or renames the staged file
// over the target, retrying via RenameSidestep if the target is locked.
func (b *Batch) moveUpdatedIntoPlace(ctx context.Context) error {
	updateDir := fsutil.UpdateDir(b.Root)
	if _, err := os.Stat(updateDir); os.IsNotExist(err) {
		return nil
	}

	return filepath.WalkDir(updateDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(updateDir, p)
		if err != nil {
			return err
		}
		target := filepath.Join(b.Root, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() == 0 {
			if rmErr := os.Remove(target); rmErr != nil && !os.IsNotExist(rmErr) {
				return errs.Wrap(rmErr, "remove target for placeholder")
			}
			_ = os.Remove(p)
			return nil
		}

		if err := fsutil.EnsureFileDir(target); err != nil {
			return errs.Wrap(err, "create target directory")
		}
		if err := fsutil.RenameSidestep(p, target); err != nil {
			return errs.Wrap(err, "move staged file into place")
		}
		return nil
	})
}

// runLauncherBypass handles launcher/native-config files, which must never
// be staged: the currently installed file is renamed to <file>.old (with
// the ".exe" suffix re-appended on Windows), and the new file is
// downloaded directly to the final path so the operation succeeds even
// while the old binary is executing.
func (b *Batch) runLauncherBypass(ctx context.Context, tasks []Task) error {
	var items []Item
	for _, t := range tasks {
		target := filepath.Join(b.Root, t.File.LocalFilename)
		if _, err := os.Stat(target); err == nil {
			if err := os.Rename(target, launcherBackupPath(target)); err != nil {
				return errs.Wrap(err, "rename launcher to backup")
			}
		}
		if t.Delete {
			continue
		}
		items = append(items, Item{URL: payloadURL(t), DestPath: target})
	}
	if len(items) == 0 {
		return nil
	}
	return b.Fetcher.FetchAll(ctx, items, b.Sink)
}

// launcherBackupPath appends ".old" to target, re-appending ".exe" after
// it for Windows executables so the backup is still a runnable binary on
// platforms where the extension is load-bearing.
func launcherBackupPath(target string) string {
	if strings.HasSuffix(strings.ToLower(target), ".exe") {
		base := target[:len(target)-len(".exe")]
		return base + ".old.exe"
	}
	return target + ".old"
}

// detectBundleRefresh reports whether any task's path falls inside a
// *.app bundle and, if so, returns the bundle's root-relative name and the
// subset of tasks belonging to it. That subset is only a fallback member
// list, used when Batch.ResolveBundle is unset; callers that can enumerate
// every catalog entry under the bundle should set ResolveBundle instead.
func detectBundleRefresh(tasks []Task) (string, []Task) {
	for _, t := range tasks {
		if platform.IsAppBundleMember(t.File.LocalFilename) {
			first, _, _ := strings.Cut(t.File.LocalFilename, "/")
			var members []Task
			for _, other := range tasks {
				if strings.HasPrefix(other.File.LocalFilename, first+"/") {
					members = append(members, other)
				}
			}
			return first, members
		}
	}
	return "", nil
}

// refreshBundle backs up the whole *.app bundle to a sibling .old.app
// directory (replacing any prior backup), then force-downloads every
// member file directly to its final path inside the live bundle, never
// through the update directory.
func (b *Batch) refreshBundle(ctx context.Context, bundleName string, members []Task) error {
	appName := strings.TrimSuffix(bundleName, ".app")
	live := fsutil.AppBundlePath(b.Root, appName)
	backup := fsutil.AppBundleBackupPath(b.Root, appName)

	if _, err := os.Stat(live); err == nil {
		if err := os.RemoveAll(backup); err != nil {
			return errs.Wrap(err, "remove prior bundle backup")
		}
		if err := fsutil.CopyDir(live, backup); err != nil {
			return errs.Wrap(err, "back up bundle")
		}
	}

	applog.Info("refreshing platform bundle", logrus.Fields{"bundle": bundleName})

	var items []Item
	for _, t := range members {
		if t.Delete {
			_ = os.Remove(filepath.Join(b.Root, t.File.LocalFilename))
			continue
		}
		items = append(items, Item{
			URL:      payloadURL(t),
			DestPath: filepath.Join(b.Root, t.File.LocalFilename),
		})
	}
	return b.Fetcher.FetchAll(ctx, items, b.Sink)
}
