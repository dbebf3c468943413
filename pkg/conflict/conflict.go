// Package conflict implements the two conflict-detection passes: one run
// before the installer acts on staged install/update actions, and one run
// before the uploader republishes a site's catalog.
package conflict

import (
	"fmt"
	"sort"

	"github.com/plugsite/plugsite/pkg/catalog"
	"github.com/plugsite/plugsite/pkg/reconcile"
	"github.com/plugsite/plugsite/pkg/scanner"
)

// Severity distinguishes conflicts the caller may proceed past from those
// that block the operation outright.
type Severity string

const (
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL_ERROR"
)

// Resolution is one way a user could address a Conflict. Effect is left
// nil for purely informational choices; callers that wire this to a CLI or
// UI supply Effect closures mutating the staged-action map appropriately.
type Resolution struct {
	Description string
	Effect      func() error
}

// Conflict is one detected problem, optionally scoped to a single File.
type Conflict struct {
	Severity    Severity
	Filename    string
	Message     string
	Resolutions []Resolution
}

// HasCritical reports whether any conflict in the list is CRITICAL_ERROR.
// A caller must not let the installer or uploader proceed while this is
// true.
func HasCritical(conflicts []Conflict) bool {
	for _, c := range conflicts {
		if c.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// StagedActions maps a logical filename to the Action the user (or a
// dependency cascade) has chosen for it.
type StagedActions map[string]reconcile.Action

func resolutionKeep() Resolution  { return Resolution{Description: "Keep local"} }
func resolutionOverwrite() Resolution { return Resolution{Description: "Overwrite"} }
func resolutionUninstall() Resolution { return Resolution{Description: "Uninstall"} }
func resolutionDoNotUpdate() Resolution { return Resolution{Description: "Do not update"} }
func resolutionIgnore() Resolution  { return Resolution{Description: "Ignore"} }

// DetectInstallUpdate runs the install/update pass of §4.8: dependency
// completeness for every staged INSTALL/UPDATE file, data-loss warnings for
// MODIFIED files staged for update, and keep-vs-update prompts for OBSOLETE
// files the user has left untouched.
func DetectInstallUpdate(coll *catalog.Collection, staged StagedActions, statusOf map[string]reconcile.Status) []Conflict {
	var out []Conflict

	for _, f := range coll.All() {
		action := staged[f.Filename]
		status := statusOf[f.Filename]

		if action == reconcile.ActionInstall || action == reconcile.ActionUpdate {
			for _, missing := range unresolvedDeps(coll, staged, statusOf, f, make(map[string]bool)) {
				out = append(out, Conflict{
					Severity: SeverityCritical,
					Filename: f.Filename,
					Message:  fmt.Sprintf("%s depends on %s, which is neither up to date locally nor staged for install/update", f.Filename, missing),
					Resolutions: []Resolution{
						{Description: fmt.Sprintf("Stage %s for install", missing)},
					},
				})
			}
		}

		if status == reconcile.StatusModified && action == reconcile.ActionUpdate {
			out = append(out, Conflict{
				Severity:    SeverityError,
				Filename:    f.Filename,
				Message:     fmt.Sprintf("local changes to %s would be lost", f.Filename),
				Resolutions: []Resolution{resolutionKeep(), resolutionOverwrite()},
			})
		}

		if status == reconcile.StatusObsolete && action == reconcile.NoAction(status) {
			out = append(out, Conflict{
				Severity:    SeverityError,
				Filename:    f.Filename,
				Message:     fmt.Sprintf("%s is obsolete but still installed", f.Filename),
				Resolutions: []Resolution{resolutionUninstall(), resolutionDoNotUpdate()},
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out
}

// unresolvedDeps returns, for file f staged INSTALL/UPDATE, every
// transitive non-overriding dependency that is neither up to date locally
// nor itself staged INSTALL/UPDATE.
func unresolvedDeps(coll *catalog.Collection, staged StagedActions, statusOf map[string]reconcile.Status, f *catalog.File, visited map[string]bool) []string {
	if visited[f.Filename] {
		return nil
	}
	visited[f.Filename] = true

	var missing []string
	deps := currentDeps(f)
	for _, dep := range deps {
		if dep.Overrides {
			continue
		}
		depFile, ok := coll.Get(dep.Filename)
		if !ok {
			missing = append(missing, dep.Filename)
			continue
		}
		depAction := staged[depFile.Filename]
		depStatus := statusOf[depFile.Filename]
		upToDate := depStatus == reconcile.StatusInstalled
		staging := depAction == reconcile.ActionInstall || depAction == reconcile.ActionUpdate
		if upToDate || staging {
			missing = append(missing, unresolvedDeps(coll, staged, statusOf, depFile, visited)...)
			continue
		}
		missing = append(missing, dep.Filename)
	}
	return missing
}

func currentDeps(f *catalog.File) []catalog.Dependency {
	if f.Current != nil {
		return f.Current.Dependencies
	}
	return f.Dependencies
}

// DetectUpload runs the upload pass of §4.8, restricted to files owned by
// siteName: a cycle check over the owning site's dependency graph, a
// staged-for-REMOVE dependency check, a digest/timestamp-skew check against
// values the scanner last recorded, and an obsolete-files-have-no-deps
// check.
func DetectUpload(coll *catalog.Collection, siteName string, staged StagedActions, rescan map[string]ScanSnapshot) []Conflict {
	var out []Conflict

	siteFiles := coll.SiteFiles(siteName)
	byName := make(map[string]*catalog.File, len(siteFiles))
	for _, f := range siteFiles {
		byName[f.Filename] = f
	}

	if cyclePath := findCycle(byName); len(cyclePath) > 0 {
		out = append(out, Conflict{
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("dependency cycle: %s", joinArrow(cyclePath)),
		})
	}

	for _, f := range siteFiles {
		if staged[f.Filename] != reconcile.ActionUpload {
			continue
		}
		for _, dep := range currentDeps(f) {
			if dep.Overrides {
				continue
			}
			if staged[dep.Filename] == reconcile.ActionRemove {
				out = append(out, Conflict{
					Severity: SeverityError,
					Filename: f.Filename,
					Message:  fmt.Sprintf("%s depends on %s, which is scheduled for removal", f.Filename, dep.Filename),
					Resolutions: []Resolution{
						{Description: "Break dependency"},
					},
				})
			}
		}

		if snap, ok := rescan[f.Filename]; ok {
			if snap.Digest != f.LocalDigest || snap.Timestamp != f.LocalTimestamp {
				out = append(out, Conflict{
					Severity: SeverityCritical,
					Filename: f.Filename,
					Message:  fmt.Sprintf("%s changed on disk since it was scanned", f.Filename),
					Resolutions: []Resolution{
						{Description: "Re-checksum"},
					},
				})
			}
		}

		if f.Current == nil && len(f.Previous) > 0 && len(currentDeps(f)) > 0 {
			out = append(out, Conflict{
				Severity: SeverityError,
				Filename: f.Filename,
				Message:  fmt.Sprintf("obsolete file %s still declares dependencies", f.Filename),
				Resolutions: []Resolution{
					{Description: "Clear dependencies"},
				},
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out
}

// ScanSnapshot is the (digest, timestamp) pair recorded for a file the last
// time the scanner ran, used by DetectUpload to notice mid-session edits.
type ScanSnapshot struct {
	Digest    string
	Timestamp string
}

// findCycle performs a DFS cycle search over byName's non-overriding
// dependency edges, returning the cycle as an ordered path of filenames, or
// nil if the graph is acyclic. Grounded on the same visiting-set technique
// used by the dependency resolver.
func findCycle(byName map[string]*catalog.File) []string {
	visiting := make(map[string]bool)
	done := make(map[string]bool)
	var path []string

	var dfs func(name string) []string
	dfs = func(name string) []string {
		if done[name] {
			return nil
		}
		if visiting[name] {
			return append(append([]string{}, path...), name)
		}
		f, ok := byName[name]
		if !ok {
			return nil
		}
		visiting[name] = true
		path = append(path, name)
		for _, dep := range currentDeps(f) {
			if dep.Overrides {
				continue
			}
			if cycle := dfs(dep.Filename); cycle != nil {
				return cycle
			}
		}
		path = path[:len(path)-1]
		visiting[name] = false
		done[name] = true
		return nil
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if cycle := dfs(name); cycle != nil {
			return cycle
		}
	}
	return nil
}

func joinArrow(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += " -> "
		}
		out += n
	}
	return out
}

// FromLocalConflicts turns the scanner's raw multi-candidate findings into
// user-facing Conflicts, offering {Ignore, Delete the losers} as the
// Scanner section prescribes. The scanner already splits a Group's
// rejected candidates by Category (up-to-date / obsolete / locally
// modified) when the File's current version is known, so each category
// becomes its own independently resolvable Conflict; locally-modified
// losers are CRITICAL_ERROR since deleting them destroys the user's local
// edits, the rest are plain ERROR.
func FromLocalConflicts(raw []scanner.LocalConflict) []Conflict {
	out := make([]Conflict, 0, len(raw))
	for _, lc := range raw {
		losers := make([]string, 0, len(lc.Rejected))
		for _, r := range lc.Rejected {
			losers = append(losers, r.RelPath)
		}

		severity := SeverityError
		if lc.Category == scanner.CategoryLocallyModified {
			severity = SeverityCritical
		}

		adjective := ""
		if lc.Category != "" {
			adjective = string(lc.Category) + " "
		}

		out = append(out, Conflict{
			Severity: severity,
			Filename: lc.LogicalName,
			Message:  fmt.Sprintf("multiple %sversions of %s exist: %v (kept %s)", adjective, lc.LogicalName, losers, lc.Kept.RelPath),
			Resolutions: []Resolution{
				resolutionIgnore(),
				{Description: "Delete the losers"},
			},
		})
	}
	return out
}
