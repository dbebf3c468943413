// Package depscan extracts inter-archive dependency references by parsing
// the constant pool of every compiled class file inside a bundle and
// resolving each referenced symbolic class name against an index built by
// scanning the installation's own archive directories. There is no
// off-the-shelf library for this: walking a JVM class file's constant pool
// is a narrow, self-contained binary format with no general-purpose Go
// parser in wide use, so pkg/depscan/classfile.go implements the minimal
// reader directly against encoding/binary.
package depscan

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/mholt/archives"
)

// stdlibPrefixes names the top-level packages resolvable by the host
// runtime itself, never by an installed archive. References into these
// packages are dropped before index lookup.
var stdlibPrefixes = []string{
	"java/", "javax/", "jdk/", "sun/", "com/sun/", "org/w3c/", "org/xml/",
}

// exclusions is the explicit table of known circular or self-declared
// empty-deps cases: a bundle filename whose dependency scan should be
// skipped entirely and reported as having no dependencies, because the
// installation is known to declare them independently (or the bundle
// legitimately depends on nothing despite what a naive class scan would
// suggest).
var exclusions = map[string]struct{}{
	"ij.jar": {},
}

func isStdlib(internalName string) bool {
	for _, p := range stdlibPrefixes {
		if strings.HasPrefix(internalName, p) {
			return true
		}
	}
	return false
}

// Index maps an internal class name (without the ".class" suffix) to the
// sorted set of archive filenames that provide it.
type Index struct {
	byClass map[string][]string
}

// BuildIndex scans every archive in archivePaths (absolute paths) and
// records which classes each one provides, keyed by the archive's base
// filename.
func BuildIndex(ctx context.Context, archivePaths []string) (*Index, error) {
	idx := &Index{byClass: make(map[string][]string)}
	for _, p := range archivePaths {
		base := path.Base(filepathToSlash(p))
		names, err := classNamesIn(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("depscan: indexing %s: %w", p, err)
		}
		for _, name := range names {
			idx.byClass[name] = appendSorted(idx.byClass[name], base)
		}
	}
	return idx, nil
}

// Lookup returns the sorted archive filenames providing className, if any.
func (idx *Index) Lookup(className string) []string {
	return idx.byClass[className]
}

func appendSorted(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	list = append(list, v)
	sort.Strings(list)
	return list
}

// Analyze computes the sorted set of archive filenames that bundleName
// (opened from path bundlePath) depends on, given a prebuilt class index
// and the dependencies already declared for it in the catalog (used only
// as an early-exit tiebreaker, per the design note).
func Analyze(ctx context.Context, bundlePath, bundleName string, idx *Index, declaredDeps []string) ([]string, error) {
	if _, excluded := exclusions[bundleName]; excluded {
		return nil, nil
	}

	ownClasses, err := classNamesIn(ctx, bundlePath)
	if err != nil {
		return nil, fmt.Errorf("depscan: reading %s: %w", bundlePath, err)
	}
	own := make(map[string]struct{}, len(ownClasses))
	for _, c := range ownClasses {
		own[c] = struct{}{}
	}

	var firstDeclared string
	if len(declaredDeps) > 0 {
		firstDeclared = declaredDeps[0]
	}

	fsys, err := archives.FileSystem(ctx, bundlePath, nil)
	if err != nil {
		return nil, fmt.Errorf("depscan: open %s: %w", bundlePath, err)
	}

	deps := make(map[string]struct{})
	err = fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".class") {
			return nil
		}
		refs, err := readClassRefs(fsys, p)
		if err != nil {
			return nil //nolint:nilerr // a single unreadable class unit does not abort the scan
		}
		for _, ref := range refs {
			if _, isOwn := own[ref]; isOwn {
				continue
			}
			if isStdlib(ref) {
				continue
			}
			providers := idx.Lookup(ref)
			if len(providers) == 0 {
				continue
			}
			if firstDeclared != "" && contains(providers, firstDeclared) {
				deps[firstDeclared] = struct{}{}
				break
			}
			for _, prov := range providers {
				if prov == bundleName {
					continue
				}
				deps[prov] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("depscan: walk %s: %w", bundlePath, err)
	}

	out := make([]string, 0, len(deps))
	for d := range deps {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func classNamesIn(ctx context.Context, archivePath string) ([]string, error) {
	fsys, err := archives.FileSystem(ctx, archivePath, nil)
	if err != nil {
		return nil, err
	}
	var names []string
	err = fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".class") {
			return nil
		}
		names = append(names, strings.TrimSuffix(p, ".class"))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

func readClassRefs(fsys fs.FS, entryPath string) ([]string, error) {
	f, err := fsys.Open(entryPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReferencedClassNames(f)
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
