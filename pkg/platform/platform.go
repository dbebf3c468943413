// Package platform implements the static platform table: the set of
// recognized OS/arch tags, the launcher-relative-path to tag mapping, and
// the rules for deciding whether a path or a File's platform set applies
// to the platform plugsite is currently running on.
package platform

import (
	"path"
	"runtime"
	"strings"
)

// Tag identifies one concrete, recognized platform (e.g. "linux64").
type Tag string

// Concrete tags. These are the platforms a File's Platforms set may name.
const (
	Linux64     Tag = "linux64"
	Linux32     Tag = "linux32"
	LinuxARM64  Tag = "linux-arm64"
	LinuxARM32  Tag = "linux-arm32"
	Macos64     Tag = "macosx"
	MacosARM64  Tag = "macos-arm64"
	Win64       Tag = "win64"
	Win32       Tag = "win32"
)

// Family wildcards. A File whose Platforms set contains one of these
// matches every concrete tag belonging to that OS family.
//
// "macosx" is overloaded by history: it is both the concrete tag for the
// original (pre-Apple-Silicon) Intel/universal macOS build and the family
// wildcard that also covers macos-arm64. There was never a need for a
// distinct "macos64" tag because the updater predates arm64 Macs.
const (
	FamilyLinux Tag = "linuxx"
	FamilyMacos Tag = Macos64
	FamilyWin   Tag = "winx"
)

// families maps each wildcard to the concrete tags it covers.
var families = map[Tag][]Tag{
	FamilyLinux: {Linux64, Linux32, LinuxARM64, LinuxARM32},
	FamilyMacos: {Macos64, MacosARM64},
	FamilyWin:   {Win64, Win32},
}

// launcherTags maps a known launcher-relative path (forward-slash form, as
// stored in a catalog) to the platform tag it identifies. These are the
// native executables that must bypass staging per the installer's launcher
// bypass rule.
var launcherTags = map[string]Tag{
	"ImageJ-linux64":      Linux64,
	"ImageJ-linux32":      Linux32,
	"ImageJ-win64.exe":    Win64,
	"ImageJ-win32.exe":    Win32,
	"Contents/MacOS/ImageJ-macosx": Macos64,
}

// specialPrefixes are the top-level directories whose second path segment
// is interpreted as a platform tag (e.g. "jars/linux64/...").
var specialPrefixes = map[string]struct{}{
	"jars": {},
	"lib":  {},
}

// allTags is the complete set of known concrete tags, used for validation
// and for expanding wildcards.
var allTags = map[Tag]struct{}{
	Linux64: {}, Linux32: {}, LinuxARM64: {}, LinuxARM32: {},
	Macos64: {}, MacosARM64: {},
	Win64: {}, Win32: {},
}

// IsKnownTag reports whether t is a recognized concrete platform tag.
func IsKnownTag(t Tag) bool {
	_, ok := allTags[t]
	return ok
}

// LauncherTag returns the platform tag for a known launcher-relative path,
// and whether the path was recognized as a launcher at all.
func LauncherTag(relPath string) (Tag, bool) {
	t, ok := launcherTags[path.Clean(relPath)]
	return t, ok
}

// IsAppBundleMember reports whether relPath lives anywhere inside a
// top-level directory ending in ".app" - the macOS bundle convention.
func IsAppBundleMember(relPath string) bool {
	first, _, _ := strings.Cut(path.Clean(relPath), "/")
	return strings.HasSuffix(first, ".app")
}

// IsPlatformScoped reports whether relPath's first component names a
// special prefix (jars, lib, ...) and its second component is a known
// platform tag, in which case the path is specific to that platform
// regardless of what the owning File's Platforms set says.
func IsPlatformScoped(relPath string) (Tag, bool) {
	parts := strings.Split(path.Clean(relPath), "/")
	if len(parts) < 2 {
		return "", false
	}
	if _, ok := specialPrefixes[parts[0]]; !ok {
		return "", false
	}
	t := Tag(parts[1])
	if !IsKnownTag(t) {
		return "", false
	}
	return t, true
}

// Current returns the tag of the platform plugsite is currently running on.
// An unrecognized runtime.GOOS/GOARCH combination yields "" (matches
// nothing but the empty/"all" platform set).
func Current() Tag {
	switch runtime.GOOS {
	case "linux":
		if runtime.GOARCH == "arm64" {
			return LinuxARM64
		}
		if runtime.GOARCH == "arm" {
			return LinuxARM32
		}
		if runtime.GOARCH == "386" {
			return Linux32
		}
		return Linux64
	case "darwin":
		if runtime.GOARCH == "arm64" {
			return MacosARM64
		}
		return Macos64
	case "windows":
		if runtime.GOARCH == "386" {
			return Win32
		}
		return Win64
	default:
		return ""
	}
}

// Applies reports whether a File whose Platforms set is `platforms` applies
// to the tag `running`. An empty set means "all platforms". A family
// wildcard in the set matches every concrete tag of that family.
func Applies(platforms []Tag, running Tag) bool {
	if len(platforms) == 0 {
		return true
	}
	for _, p := range platforms {
		if p == running {
			return true
		}
		if concrete, ok := families[p]; ok {
			for _, c := range concrete {
				if c == running {
					return true
				}
			}
		}
	}
	return false
}

// Family returns the wildcard family tag that a concrete tag belongs to,
// or "" if it belongs to none (unrecognized tag).
func Family(t Tag) Tag {
	for family, members := range families {
		for _, m := range members {
			if m == t {
				return family
			}
		}
	}
	return ""
}
