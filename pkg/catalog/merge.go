package catalog

import (
	"sort"

	"github.com/plugsite/plugsite/pkg/errs"
)

// Merge builds one logical Collection out of several per-site catalogs,
// per §4.6. It sorts sites ascending by Rank itself and applies them
// lowest-rank first, so a higher-rank site's entry wins over a lower-rank
// one; two active sites of equal rank listing the same filename produce
// ErrShadowConflict.
func Merge(perSite map[string]*Collection, sites []*Site) (*Collection, error) {
	ordered := append([]*Site(nil), sites...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Rank < ordered[j].Rank })

	out := NewCollection()
	out.Sites = ordered

	for _, site := range ordered {
		if !site.Active {
			continue
		}
		siteCatalog := perSite[site.Name]
		if siteCatalog == nil {
			continue
		}
		for _, f := range siteCatalog.All() {
			if err := mergeOne(out, f, site); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// mergeOne applies a single site's File into the merged collection,
// following §4.6's three cases.
func mergeOne(out *Collection, incoming *File, site *Site) error {
	incoming.Site = site.Name

	existing, ok := out.Get(incoming.Filename)
	if !ok {
		out.Put(incoming)
		return nil
	}

	existingSite := out.FindSite(existing.Site)
	if existingSite == nil || existingSite.Rank < site.Rank {
		// Incoming site outranks the current owner: displace it into the
		// override map, merge its previous-versions forward, and promote
		// incoming to owner.
		if existing.OverriddenSites == nil {
			existing.OverriddenSites = map[string]*File{}
		}
		incoming.OverriddenSites = existing.OverriddenSites
		incoming.OverriddenSites[existing.Site] = existing
		incoming.Previous = mergePrevious(incoming.Previous, existing.Previous)
		out.Put(incoming)
		return nil
	}

	if existingSite.Rank > site.Rank {
		// Incoming is shadowed: record it under the winner, don't replace.
		if existing.OverriddenSites == nil {
			existing.OverriddenSites = map[string]*File{}
		}
		existing.OverriddenSites[site.Name] = incoming
		return nil
	}

	// Equal rank, same filename: the source leaves this undisambiguated;
	// we raise a ShadowConflict at load time per the Open Question.
	return errs.Wrapf(errs.ErrShadowConflict, "sites %q and %q (rank %d) both claim %q", existing.Site, site.Name, site.Rank, incoming.Filename)
}

// mergePrevious unions two previous-version lists, deduplicating by
// (checksum, timestamp).
func mergePrevious(a, b []Version) []Version {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]Version, 0, len(a)+len(b))
	for _, v := range append(append([]Version(nil), a...), b...) {
		key := v.Checksum + "@" + v.Timestamp
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// DeactivateSite removes site from consideration: each File it owns is
// either deleted (no shadow exists) or has its highest-ranked remaining
// override promoted to owner. Returns the filenames that were promoted,
// so the caller can raise the resulting UPDATE action where the promoted
// current now differs from the local digest.
func DeactivateSite(c *Collection, siteName string) (promoted []string) {
	for _, site := range c.Sites {
		if site.Name == siteName {
			site.Active = false
		}
	}

	for _, f := range c.SiteFiles(siteName) {
		best := bestOverride(c, f)
		if best == nil {
			c.Delete(f.Filename)
			continue
		}
		delete(f.OverriddenSites, best.Site)
		best.OverriddenSites = f.OverriddenSites
		best.LocalDigest = f.LocalDigest
		best.LocalLegacyDigests = f.LocalLegacyDigests
		best.LocalTimestamp = f.LocalTimestamp
		c.Put(best)
		promoted = append(promoted, best.Filename)
	}
	return promoted
}

// ReactivateSite marks a previously deactivated site active again. The
// caller is responsible for re-reading its XML and calling Merge (or
// mergeOne per file) to restore entries it used to shadow or own.
func ReactivateSite(c *Collection, siteName string) {
	for _, site := range c.Sites {
		if site.Name == siteName {
			site.Active = true
		}
	}
}

func bestOverride(c *Collection, f *File) *File {
	var best *File
	var bestRank = -1
	for siteName, ov := range f.OverriddenSites {
		site := c.FindSite(siteName)
		if site == nil || !site.Active {
			continue
		}
		if site.Rank > bestRank {
			bestRank = site.Rank
			best = ov
		}
	}
	return best
}
