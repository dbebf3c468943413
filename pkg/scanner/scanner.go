package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/plugsite/plugsite/pkg/catalog"
	"github.com/plugsite/plugsite/pkg/hashsum"
	"github.com/plugsite/plugsite/pkg/platform"
)

// topLevelExtensions is the closed set of top-level directory -> accepted
// extension rules from §4.4. A directory not listed here is not scanned
// at all (config and lib accept anything, signalled by a nil slice).
var topLevelExtensions = map[string][]string{
	"jars":    {".jar", ".class"},
	"plugins": {".jar", ".class", ".txt", ".ijm", ".py", ".js", ".bsh", ".clj"},
	"macros":  {".txt", ".ijm", ".png"},
	"scripts": {".py", ".js", ".bsh", ".clj", ".rb", ".groovy", ".txt", ".ijm"},
	"lib":     nil,
	"config":  nil,
}

// Candidate is one path the scanner found worth hashing: a disk file
// that matched the directory/extension rules (or lives inside a *.app
// bundle), grouped by its unversioned logical name.
type Candidate struct {
	AbsPath string
	RelPath string // forward-slash, root-relative
	ModTime int64  // unix seconds
}

// Group is every candidate sharing one unversioned logical filename.
type Group struct {
	LogicalName string
	Candidates  []Candidate
}

// Walk enumerates every candidate path under root per the directory/
// extension rules, grouped by unversioned basename. Hidden files
// (basename starting with '.') and ".old" backup files are skipped.
func Walk(root string) ([]Group, error) {
	byName := map[string][]Candidate{}

	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		base := catalog.Basename(rel)
		if strings.HasPrefix(base, ".") {
			return nil
		}
		if strings.Contains(catalog.NormalizeFilename(base), ".old") {
			return nil
		}
		if !eligible(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		logical := catalog.NormalizeFilename(base)
		byName[logical] = append(byName[logical], Candidate{
			AbsPath: p, RelPath: rel, ModTime: info.ModTime().Unix(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	groups := make([]Group, 0, len(names))
	for _, name := range names {
		groups = append(groups, Group{LogicalName: name, Candidates: byName[name]})
	}
	return groups, nil
}

func eligible(relPath string) bool {
	if platform.IsAppBundleMember(relPath) {
		return true
	}
	first, _, _ := strings.Cut(relPath, "/")
	exts, known := topLevelExtensions[first]
	if !known {
		return false
	}
	if exts == nil {
		return true
	}
	for _, ext := range exts {
		if strings.HasSuffix(relPath, ext) {
			return true
		}
	}
	return false
}

// Scanned is one fully-hashed candidate: the digest computation applied.
type Scanned struct {
	Candidate
	Digest string
	Legacy []string
}

// HashGroup computes digests for every candidate in a group, consulting
// (and updating) the digest cache.
func HashGroup(ctx context.Context, g Group, cache *DigestCache) ([]Scanned, error) {
	out := make([]Scanned, 0, len(g.Candidates))
	for _, c := range g.Candidates {
		mtime := Mtime14(time.Unix(c.ModTime, 0))
		var digest string
		var legacy []string
		if cached, ok := cache.Lookup(c.RelPath, mtime); ok {
			digest = cached
			legacy = cache.LegacyEquivalents(digest)
		} else {
			d, err := hashsum.Digest(ctx, c.AbsPath, c.RelPath)
			if err != nil {
				return nil, err
			}
			l, err := hashsum.LegacyDigests(ctx, c.AbsPath, c.RelPath)
			if err != nil {
				return nil, err
			}
			digest, legacy = d, l
			cache.Remember(c.RelPath, mtime, digest, legacy)
		}
		out = append(out, Scanned{Candidate: c, Digest: digest, Legacy: legacy})
	}
	return out, nil
}
