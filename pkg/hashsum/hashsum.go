// Package hashsum computes the content-addressed digests of local files,
// with special handling for archive bundles (jar/zip): entries are walked
// in sorted order and certain volatile entries are filtered before
// hashing so that rebuilding an otherwise-identical archive produces the
// same digest.
package hashsum

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mholt/archives"
)

// Mode selects which legacy filters are disabled, matching the source's
// treatPropertiesSpecially / treatManifestsSpecially / keepOnlyMainClassInManifest
// flags. Current hashing uses all filters; legacy modes disable one or
// both to reproduce digests computed by earlier versions of the catalog
// writer.
type Mode struct {
	TreatPropertiesSpecially   bool
	TreatManifestsSpecially    bool
	KeepOnlyMainClassInManifest bool
}

// CurrentMode is the digest mode used for newly written catalog entries.
var CurrentMode = Mode{TreatPropertiesSpecially: true, TreatManifestsSpecially: true, KeepOnlyMainClassInManifest: true}

// LegacyModes enumerates, in the order callers should try them, the
// historical modes a catalog entry might have been hashed under. There
// are at most three: this repeats the source's bound.
var LegacyModes = []Mode{
	{TreatPropertiesSpecially: true, TreatManifestsSpecially: true, KeepOnlyMainClassInManifest: false},
	{TreatPropertiesSpecially: true, TreatManifestsSpecially: false, KeepOnlyMainClassInManifest: false},
	{TreatPropertiesSpecially: false, TreatManifestsSpecially: false, KeepOnlyMainClassInManifest: false},
}

// forceAggressiveLegacy is the one special-cased entry that is always
// hashed in the most aggressive legacy mode, matching the source's
// hard-coded carve-out for its own updater jar.
const forceAggressiveLegacy = "plugins/Fiji_Updater.jar"

const manifestEntry = "META-INF/MANIFEST.MF"

// isArchive reports whether path should be hashed with the archive-aware
// algorithm rather than as an opaque byte stream.
func isArchive(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".jar")
}

// Digest computes the current-mode digest of the file at path, whose
// catalog-relative name is relPath (used both as the archive
// special-case key and as the prefix hashed for non-archives).
func Digest(ctx context.Context, path, relPath string) (string, error) {
	return digestWithMode(ctx, path, relPath, CurrentMode)
}

// LegacyDigests computes up to three earlier-era digests for the file at
// path, for callers that need to accept catalog entries written by older
// versions of the tool.
func LegacyDigests(ctx context.Context, path, relPath string) ([]string, error) {
	out := make([]string, 0, len(LegacyModes))
	for _, mode := range LegacyModes {
		d, err := digestWithMode(ctx, path, relPath, mode)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func digestWithMode(ctx context.Context, path, relPath string, mode Mode) (string, error) {
	if relPath == forceAggressiveLegacy {
		mode = Mode{}
	}
	if !isArchive(path) {
		return digestPlainFile(path, relPath)
	}
	return digestArchive(ctx, path, mode)
}

func digestPlainFile(path, relPath string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hashsum: open %s: %w", path, err)
	}
	defer f.Close()

	h := sha1.New()
	h.Write([]byte(relPath))
	if _, err := io.Copy(h, bufio.NewReader(f)); err != nil {
		return "", fmt.Errorf("hashsum: read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func digestArchive(ctx context.Context, path string, mode Mode) (string, error) {
	fsys, err := archives.FileSystem(ctx, path, nil)
	if err != nil {
		return "", fmt.Errorf("hashsum: open archive %s: %w", path, err)
	}
	if closer, ok := fsys.(io.Closer); ok {
		defer closer.Close()
	}

	var names []string
	err = fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		names = append(names, p)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("hashsum: walk archive %s: %w", path, err)
	}
	sort.Strings(names)

	h := sha1.New()
	for _, name := range names {
		content, err := readEntry(fsys, name)
		if err != nil {
			return "", err
		}
		content = filterEntry(name, content, mode)
		h.Write([]byte(name))
		h.Write(content)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func readEntry(fsys fs.FS, name string) ([]byte, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("hashsum: open entry %s: %w", name, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("hashsum: read entry %s: %w", name, err)
	}
	return data, nil
}

// filterEntry applies the volatile-content filters described in §4.2
// before the entry's bytes are fed to the digest.
func filterEntry(name string, content []byte, mode Mode) []byte {
	switch {
	case mode.TreatPropertiesSpecially && strings.HasSuffix(name, ".properties"):
		return stripCommentLines(content)
	case mode.TreatManifestsSpecially && name == manifestEntry:
		return normalizeManifest(content, mode.KeepOnlyMainClassInManifest)
	default:
		return content
	}
}

// stripCommentLines drops every line beginning with '#', which removes
// the build-date comment common archive tooling stamps into .properties
// files on every build even when nothing else changed.
func stripCommentLines(content []byte) []byte {
	lines := bytes.Split(content, []byte("\n"))
	out := make([][]byte, 0, len(lines))
	for _, line := range lines {
		if bytes.HasPrefix(bytes.TrimLeft(line, " \t"), []byte("#")) {
			continue
		}
		out = append(out, line)
	}
	return bytes.Join(out, []byte("\n"))
}

// normalizeManifest drops every manifest attribute except, optionally,
// Main-Class, and normalizes line endings so that manifests differing
// only in attribute order or trailing whitespace hash identically.
func normalizeManifest(content []byte, keepOnlyMainClass bool) []byte {
	lines := strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")
	var kept []string
	for _, line := range lines {
		if !keepOnlyMainClass {
			continue
		}
		if strings.HasPrefix(line, "Main-Class:") {
			kept = append(kept, strings.TrimSpace(line))
		}
	}
	sort.Strings(kept)
	return []byte(strings.Join(kept, "\n"))
}

// VerifyExtension reports whether path's extension marks it as an archive
// bundle for the purposes of the dependency analyzer and installer, which
// both need the same classification the hasher uses.
func VerifyExtension(path string) bool { return isArchive(path) }

// Join is a small helper for building the relPath the hasher expects from
// a root and an absolute path, kept here so scanner/installer don't
// duplicate filepath.Rel error handling.
func Join(root, abs string) (string, error) {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}
