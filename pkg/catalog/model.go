// Package catalog implements the file model (Site, File, Version,
// Dependency), the GZIP+XML catalog codec, and the multi-site merge that
// produces one logical catalog from several update sites while preserving
// shadowed entries. This is the core data structure the rest of plugsite
// (scanner, reconciler, conflict engine, installer, uploader) operates on.
package catalog

import (
	"path"
	"strings"
	"time"

	"github.com/plugsite/plugsite/pkg/platform"
)

// TimestampLayout is the wire format for the 14-digit decimal timestamp
// "YYYYMMDDhhmmss" used throughout the catalog.
const TimestampLayout = "20060102150405"

// Site is an addressable catalog source.
type Site struct {
	Name        string
	URL         string // must end in "/"
	Host        string // upload transport address, optional
	UploadDir   string
	Description string
	Maintainer  string
	LastKnown   string // 14-digit timestamp of the catalog we last read from this site
	Active      bool
	Official    bool
	KeepURL     bool // user-pinned URL; must not be auto-rewritten
	Rank        int  // higher rank shadows lower rank
	Warnings    []string

	// Upload credentials, never written to the XML catalog - only the
	// local config round-trips these. At most one scheme applies; Basic
	// takes precedence over the header scheme if both are set.
	AuthUsername    string
	AuthPassword    string
	AuthHeaderName  string
	AuthHeaderValue string
}

// Equal implements the data model's equality rule: two sites are equal iff
// their rank is equal.
func (s *Site) Equal(other *Site) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.Rank == other.Rank
}

// Uploadable reports whether this site can be the target of an UPLOAD
// action: it must have upload transport coordinates configured.
func (s *Site) Uploadable() bool {
	return s != nil && s.Host != "" && s.UploadDir != ""
}

// Dependency is an inter-file reference. Timestamp is the minimum
// acceptable timestamp of the depended-on file; Overrides means this
// dependency intentionally supersedes a co-named entry from another site
// and must not trigger recursive dependency chasing.
type Dependency struct {
	Filename  string
	Timestamp string
	Overrides bool
}

// Version is one historical or current state of a File's content.
type Version struct {
	Checksum           string
	Timestamp          string
	Filename           string // optional, set when it differs from the File's logical name
	TimestampObsolete  string // optional

	Description  string
	Dependencies []Dependency
	Links        []string
	Authors      []string
	Filesize     int64
}

// Less orders Versions by timestamp then checksum, per the data model.
func (v Version) Less(other Version) bool {
	if v.Timestamp != other.Timestamp {
		return v.Timestamp < other.Timestamp
	}
	return v.Checksum < other.Checksum
}

// File is a tracked artifact: the identity the whole system reconciles
// around.
type File struct {
	// Filename is the logical, stable identity - the version suffix is
	// stripped for lookup (see NormalizeFilename).
	Filename string

	// LocalFilename is the actual on-disk name, which may carry a version
	// suffix differing from the catalog's logical name.
	LocalFilename string

	Filesize   int64
	Current    *Version
	Previous   []Version
	Dependencies []Dependency
	Authors    []string
	Categories []string
	Links      []string
	Platforms  []platform.Tag
	Executable bool
	Description string

	// Site is the name of the owning site (the highest-rank active site
	// that lists this filename).
	Site string

	// OverriddenSites maps a shadowed site's name to the File record that
	// site advertised, preserved for fallback if the owning site is later
	// deactivated or unshadowed.
	OverriddenSites map[string]*File

	// Local state, populated by the scanner.
	LocalDigest       string
	LocalLegacyDigests []string
	LocalTimestamp    string // 14-digit mtime
	Warning           string
}

// Applies reports whether this File's platform set matches the running
// platform.
func (f *File) Applies() bool {
	return platform.Applies(f.Platforms, platform.Current())
}

// HasPrevious reports whether digest appears in the File's previous
// versions.
func (f *File) HasPrevious(digest string) bool {
	for _, v := range f.Previous {
		if v.Checksum == digest {
			return true
		}
	}
	return false
}

// MatchesCurrent reports whether digest equals the current version's
// checksum, also checking legacy-digest equivalents supplied by the
// caller (the hasher's legacy modes).
func (f *File) MatchesCurrent(digest string, legacy []string) bool {
	if f.Current == nil {
		return false
	}
	if f.Current.Checksum == digest {
		return true
	}
	for _, l := range legacy {
		if f.Current.Checksum == l {
			return true
		}
	}
	return false
}

// MatchesPrevious reports whether digest, or any legacy equivalent,
// matches a previous version's checksum.
func (f *File) MatchesPrevious(digest string, legacy []string) bool {
	if f.HasPrevious(digest) {
		return true
	}
	for _, l := range legacy {
		if f.HasPrevious(l) {
			return true
		}
	}
	return false
}

// knownExtensions lists the extensions NormalizeFilename strips the
// version suffix in front of.
var knownExtensions = []string{
	".jar", ".zip", ".tar.gz", ".tgz", ".txt", ".py", ".ijm", ".js",
	".png", ".class", ".xml", ".config", ".dll", ".so", ".dylib", ".exe",
}

// NormalizeFilename strips a "-<version>" suffix immediately before a
// known extension, turning a disk filename into the stable logical key
// used by the collection (e.g. "Fancy_Plugin-1.2.3.jar" -> "Fancy_Plugin.jar").
func NormalizeFilename(name string) string {
	for _, ext := range knownExtensions {
		if !strings.HasSuffix(name, ext) {
			continue
		}
		base := strings.TrimSuffix(name, ext)
		idx := strings.LastIndex(base, "-")
		if idx < 0 {
			return name
		}
		suffix := base[idx+1:]
		if suffix == "" || !looksLikeVersion(suffix) {
			return name
		}
		return base[:idx] + ext
	}
	return name
}

func looksLikeVersion(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != '_' {
			return false
		}
	}
	return true
}

// Basename is a small helper mirroring path.Base but defensive about
// backslash-separated paths from a Windows-authored catalog.
func Basename(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return path.Base(p)
}

// Now14 formats t as a 14-digit catalog timestamp.
func Now14(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
