package scanner

import (
	"context"
	"sort"
	"time"

	"github.com/plugsite/plugsite/pkg/catalog"
)

// Category labels a LocalConflict's rejected candidates by how they relate
// to the known File's version history. Empty when f was nil or obsolete
// (Current == nil), since there is no current/previous checksum to compare
// against in that case.
type Category string

const (
	CategoryUpToDate        Category = "up-to-date"
	CategoryObsolete        Category = "obsolete"
	CategoryLocallyModified Category = "locally-modified"
)

// LocalConflict records that a Group produced more than one surviving
// candidate: the installation directory holds two files that normalize to
// the same logical name and neither is clearly obsolete relative to the
// other. pkg/conflict turns these into user-facing Conflicts; this package
// only needs to decide which candidate is authoritative for the purposes
// of computing a Status.
//
// A single Group can raise more than one LocalConflict: when f.Current is
// known, rejected candidates are split by Category so each category can be
// resolved (ignored or deleted) independently, matching the per-category
// conflicts the original updater raises.
type LocalConflict struct {
	LogicalName string
	Category    Category
	Kept        Scanned
	Rejected    []Scanned
}

// Resolved is one logical file's outcome after scanning: the candidate
// chosen as authoritative (if any), plus any rejected siblings recorded as
// LocalConflicts for the caller to surface.
type Resolved struct {
	LogicalName string
	Chosen      *Scanned
	Conflicts   []LocalConflict
}

// ResolveGroup picks, among a Group's hashed candidates, the one that
// should drive this File's local state.
//
// When f is nil, or f is known but obsolete (f.Current == nil), there is no
// current version to compare checksums against, so the newest-by-mtime
// candidate wins outright and every other candidate is rejected together,
// uncategorized.
//
// When f.Current is known, a candidate matching f's current checksum is
// favored over one matching a previous checksum, which is favored over an
// unrecognized (locally modified) candidate; ties within a favored
// category are broken by newest mtime. Rejected candidates are grouped into
// up-to-date/obsolete/locally-modified LocalConflicts, one per non-empty
// category.
func ResolveGroup(logicalName string, scanned []Scanned, f *catalog.File) Resolved {
	if len(scanned) == 0 {
		return Resolved{LogicalName: logicalName}
	}
	if len(scanned) == 1 {
		c := scanned[0]
		return Resolved{LogicalName: logicalName, Chosen: &c}
	}

	categorize := f != nil && f.Current != nil

	ranked := make([]Scanned, len(scanned))
	copy(ranked, scanned)
	sort.SliceStable(ranked, func(i, j int) bool {
		if categorize {
			ci, cj := categoryRank(ranked[i], f), categoryRank(ranked[j], f)
			if ci != cj {
				return ci < cj
			}
		}
		return ranked[i].ModTime > ranked[j].ModTime
	})

	chosen := ranked[0]
	rejected := ranked[1:]

	if !categorize {
		return Resolved{
			LogicalName: logicalName,
			Chosen:      &chosen,
			Conflicts: []LocalConflict{{
				LogicalName: logicalName,
				Kept:        chosen,
				Rejected:    rejected,
			}},
		}
	}

	grouped := map[Category][]Scanned{}
	for _, s := range rejected {
		grouped[categoryOf(s, f)] = append(grouped[categoryOf(s, f)], s)
	}

	var conflicts []LocalConflict
	for _, cat := range []Category{CategoryLocallyModified, CategoryObsolete, CategoryUpToDate} {
		if group := grouped[cat]; len(group) > 0 {
			conflicts = append(conflicts, LocalConflict{
				LogicalName: logicalName,
				Category:    cat,
				Kept:        chosen,
				Rejected:    group,
			})
		}
	}

	return Resolved{LogicalName: logicalName, Chosen: &chosen, Conflicts: conflicts}
}

// categoryRank orders categories for the favored-category tie-break: lower
// is more favored. Kept in sync with categoryOf below.
func categoryRank(s Scanned, f *catalog.File) int {
	switch categoryOf(s, f) {
	case CategoryUpToDate:
		return 0
	case CategoryObsolete:
		return 1
	default:
		return 2
	}
}

// categoryOf classifies a candidate against f's current and previous
// checksums. f.Current must be non-nil; callers check categorize first.
func categoryOf(s Scanned, f *catalog.File) Category {
	if f.MatchesCurrent(s.Digest, s.Legacy) {
		return CategoryUpToDate
	}
	if f.MatchesPrevious(s.Digest, s.Legacy) {
		return CategoryObsolete
	}
	return CategoryLocallyModified
}

// Apply runs the full scan pipeline against root and populates the local
// state fields (LocalDigest, LocalLegacyDigests, LocalTimestamp) of every
// File in coll that has a matching candidate on disk. It returns the
// LocalConflicts raised along the way and, separately, the logical names
// present on disk but unknown to coll (orphaned LOCAL_ONLY candidates).
func Apply(ctx context.Context, root string, coll *catalog.Collection, cache *DigestCache) ([]LocalConflict, []string, error) {
	groups, err := Walk(root)
	if err != nil {
		return nil, nil, err
	}

	var conflicts []LocalConflict
	var orphans []string

	for _, g := range groups {
		scanned, err := HashGroup(ctx, g, cache)
		if err != nil {
			return nil, nil, err
		}

		f, known := coll.Get(g.LogicalName)
		resolved := ResolveGroup(g.LogicalName, scanned, f)
		conflicts = append(conflicts, resolved.Conflicts...)

		if resolved.Chosen == nil {
			continue
		}
		if !known {
			orphans = append(orphans, g.LogicalName)
			continue
		}

		f.LocalDigest = resolved.Chosen.Digest
		f.LocalLegacyDigests = resolved.Chosen.Legacy
		f.LocalTimestamp = Mtime14(time.Unix(resolved.Chosen.ModTime, 0))
	}

	return conflicts, orphans, nil
}
