package reconcile

import "github.com/plugsite/plugsite/pkg/catalog"

// Input bundles the facts the state machine needs about one File: whether
// it is present locally (and under what digest), and whether it is known
// to any site at all.
type Input struct {
	LocalPresent     bool
	LocalDigest      string
	LocalLegacy      []string
	KnownToAnySite   bool
	Current          *catalog.Version
	Previous         []catalog.Version
	PlatformApplies  bool
	HasHistory       bool // the file has some previous version even though current is unset
}

// Compute derives the Status for a single File, following the decision
// table in §4.3.
func Compute(in Input) Status {
	if !in.KnownToAnySite {
		if in.LocalPresent {
			return StatusLocalOnly
		}
		// Unknown and absent: not part of the model at all. Treat as
		// NOT_INSTALLED so callers have a total function.
		return StatusNotInstalled
	}

	if !in.PlatformApplies {
		// A File that doesn't apply to the running platform is tracked
		// but inert; NOT_INSTALLED (OBSOLETE_UNINSTALLED when there is no
		// current version) covers "nothing to do here".
		if in.Current == nil {
			return StatusObsoleteUninstalled
		}
		return StatusNotInstalled
	}

	matchesCurrent := in.Current != nil && matches(in.LocalDigest, in.LocalLegacy, in.Current.Checksum)
	matchesPrevious := matchesAny(in.LocalDigest, in.LocalLegacy, in.Previous)

	switch {
	case !in.LocalPresent && in.Current != nil:
		return StatusNotInstalled
	case !in.LocalPresent && in.Current == nil:
		if in.HasHistory {
			return StatusObsoleteUninstalled
		}
		return StatusNew
	case in.LocalPresent && matchesCurrent:
		return StatusInstalled
	case in.LocalPresent && in.Current != nil && matchesPrevious:
		return StatusUpdateable
	case in.LocalPresent && in.Current != nil:
		return StatusModified
	case in.LocalPresent && in.Current == nil && matchesPrevious:
		return StatusObsolete
	default: // in.LocalPresent && in.Current == nil && !matchesPrevious
		return StatusObsoleteModified
	}
}

func matches(digest string, legacy []string, target string) bool {
	if digest == target {
		return true
	}
	for _, l := range legacy {
		if l == target {
			return true
		}
	}
	return false
}

func matchesAny(digest string, legacy []string, versions []catalog.Version) bool {
	for _, v := range versions {
		if matches(digest, legacy, v.Checksum) {
			return true
		}
	}
	return false
}

// ActionPreference is the ordered preference list CascadeAction walks;
// the orchestrator's forced Plan uses it to pick each file's action.
var ActionPreference = []Action{ActionUpdate, ActionUninstall, ActionInstall}

// CascadeAction returns the first action in ActionPreference that is
// valid for status.
func CascadeAction(status Status, canUpload bool) (Action, bool) {
	valid := ValidActions(status, canUpload)
	allowed := make(map[Action]bool, len(valid))
	for _, a := range valid {
		allowed[a] = true
	}
	for _, pref := range ActionPreference {
		if allowed[pref] {
			return pref, true
		}
	}
	return "", false
}
