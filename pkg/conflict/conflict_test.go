package conflict

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugsite/plugsite/pkg/catalog"
	"github.com/plugsite/plugsite/pkg/reconcile"
	"github.com/plugsite/plugsite/pkg/scanner"
)

// TestDetectInstallUpdate_CatalogRoundTrippedDependencyIsStillDetected
// exercises the real codec instead of a hand-built fixture: a file read
// back through catalog.Read must carry its dependency on Current, the
// field unresolvedDeps/currentDeps actually reads, not just on the
// File-level Dependencies slice the XML parser fills in first.
func TestDetectInstallUpdate_CatalogRoundTrippedDependencyIsStillDetected(t *testing.T) {
	src := catalog.NewCollection()
	src.Put(&catalog.File{
		Filename: "A.jar",
		Current: &catalog.Version{
			Checksum:     "a1",
			Timestamp:    "20200101000000",
			Filesize:     1,
			Dependencies: []catalog.Dependency{{Filename: "B.jar"}},
		},
	})

	var buf bytes.Buffer
	require.NoError(t, catalog.WriteRemote(&buf, src))
	coll, err := catalog.Read(&buf)
	require.NoError(t, err)
	// B.jar is deliberately absent from coll.

	f, ok := coll.Get("A.jar")
	require.True(t, ok)
	require.NotNil(t, f.Current)
	require.NotEmpty(t, f.Current.Dependencies, "codec must populate Current.Dependencies, not just File.Dependencies")

	staged := StagedActions{"A.jar": reconcile.ActionInstall}
	statusOf := map[string]reconcile.Status{"A.jar": reconcile.StatusNotInstalled}

	out := DetectInstallUpdate(coll, staged, statusOf)
	require.Len(t, out, 1)
	assert.Equal(t, SeverityCritical, out[0].Severity)
	assert.Equal(t, "A.jar", out[0].Filename)
}

func TestDetectInstallUpdate_MissingDependencyIsCritical(t *testing.T) {
	coll := catalog.NewCollection()
	coll.Put(&catalog.File{
		Filename: "A.jar",
		Current: &catalog.Version{
			Checksum:     "a1",
			Dependencies: []catalog.Dependency{{Filename: "B.jar"}},
		},
	})
	// B.jar is not in the collection at all.

	staged := StagedActions{"A.jar": reconcile.ActionInstall}
	statusOf := map[string]reconcile.Status{"A.jar": reconcile.StatusNotInstalled}

	out := DetectInstallUpdate(coll, staged, statusOf)
	require.Len(t, out, 1)
	assert.Equal(t, SeverityCritical, out[0].Severity)
	assert.Equal(t, "A.jar", out[0].Filename)
	assert.True(t, HasCritical(out))
}

func TestDetectInstallUpdate_DependencyStagedTogetherIsNotAConflict(t *testing.T) {
	coll := catalog.NewCollection()
	coll.Put(&catalog.File{
		Filename: "A.jar",
		Current: &catalog.Version{
			Checksum:     "a1",
			Dependencies: []catalog.Dependency{{Filename: "B.jar"}},
		},
	})
	coll.Put(&catalog.File{
		Filename: "B.jar",
		Current:  &catalog.Version{Checksum: "b1"},
	})

	staged := StagedActions{"A.jar": reconcile.ActionInstall, "B.jar": reconcile.ActionInstall}
	statusOf := map[string]reconcile.Status{
		"A.jar": reconcile.StatusNotInstalled,
		"B.jar": reconcile.StatusNotInstalled,
	}

	out := DetectInstallUpdate(coll, staged, statusOf)
	assert.Empty(t, out)
}

func TestDetectInstallUpdate_DependencyAlreadyInstalledIsNotAConflict(t *testing.T) {
	coll := catalog.NewCollection()
	coll.Put(&catalog.File{
		Filename: "A.jar",
		Current: &catalog.Version{
			Checksum:     "a1",
			Dependencies: []catalog.Dependency{{Filename: "B.jar"}},
		},
	})
	coll.Put(&catalog.File{
		Filename: "B.jar",
		Current:  &catalog.Version{Checksum: "b1"},
	})

	staged := StagedActions{"A.jar": reconcile.ActionInstall}
	statusOf := map[string]reconcile.Status{
		"A.jar": reconcile.StatusNotInstalled,
		"B.jar": reconcile.StatusInstalled,
	}

	out := DetectInstallUpdate(coll, staged, statusOf)
	assert.Empty(t, out)
}

func TestDetectInstallUpdate_OverridingDependencyIsIgnored(t *testing.T) {
	coll := catalog.NewCollection()
	coll.Put(&catalog.File{
		Filename: "A.jar",
		Current: &catalog.Version{
			Checksum:     "a1",
			Dependencies: []catalog.Dependency{{Filename: "B.jar", Overrides: true}},
		},
	})

	staged := StagedActions{"A.jar": reconcile.ActionInstall}
	statusOf := map[string]reconcile.Status{"A.jar": reconcile.StatusNotInstalled}

	out := DetectInstallUpdate(coll, staged, statusOf)
	assert.Empty(t, out)
}

func TestDetectInstallUpdate_ModifiedStagedForUpdateWarnsOfDataLoss(t *testing.T) {
	coll := catalog.NewCollection()
	coll.Put(&catalog.File{Filename: "A.jar", Current: &catalog.Version{Checksum: "a1"}})

	staged := StagedActions{"A.jar": reconcile.ActionUpdate}
	statusOf := map[string]reconcile.Status{"A.jar": reconcile.StatusModified}

	out := DetectInstallUpdate(coll, staged, statusOf)
	require.Len(t, out, 1)
	assert.Equal(t, SeverityError, out[0].Severity)
	assert.Len(t, out[0].Resolutions, 2)
}

func TestDetectInstallUpdate_ObsoleteUntouchedWarns(t *testing.T) {
	coll := catalog.NewCollection()
	coll.Put(&catalog.File{Filename: "A.jar"})

	statusOf := map[string]reconcile.Status{"A.jar": reconcile.StatusObsolete}
	staged := StagedActions{"A.jar": reconcile.NoAction(reconcile.StatusObsolete)}

	out := DetectInstallUpdate(coll, staged, statusOf)
	require.Len(t, out, 1)
	assert.Equal(t, SeverityError, out[0].Severity)
	assert.Contains(t, out[0].Message, "obsolete but still installed")
}

func TestDetectUpload_DependencyCycleIsCritical(t *testing.T) {
	coll := catalog.NewCollection()
	coll.Put(&catalog.File{
		Filename: "A.jar", Site: "Example",
		Current: &catalog.Version{Dependencies: []catalog.Dependency{{Filename: "B.jar"}}},
	})
	coll.Put(&catalog.File{
		Filename: "B.jar", Site: "Example",
		Current: &catalog.Version{Dependencies: []catalog.Dependency{{Filename: "A.jar"}}},
	})

	out := DetectUpload(coll, "Example", StagedActions{}, nil)
	require.Len(t, out, 1)
	assert.Equal(t, SeverityCritical, out[0].Severity)
	assert.Contains(t, out[0].Message, "dependency cycle")
	assert.Contains(t, out[0].Message, "A.jar -> B.jar -> A.jar")
}

func TestDetectUpload_OverridingDependencyBreaksCycle(t *testing.T) {
	coll := catalog.NewCollection()
	coll.Put(&catalog.File{
		Filename: "A.jar", Site: "Example",
		Current: &catalog.Version{Dependencies: []catalog.Dependency{{Filename: "B.jar", Overrides: true}}},
	})
	coll.Put(&catalog.File{
		Filename: "B.jar", Site: "Example",
		Current: &catalog.Version{Dependencies: []catalog.Dependency{{Filename: "A.jar"}}},
	})

	out := DetectUpload(coll, "Example", StagedActions{}, nil)
	assert.Empty(t, out)
}

func TestDetectUpload_DependencyScheduledForRemoval(t *testing.T) {
	coll := catalog.NewCollection()
	coll.Put(&catalog.File{
		Filename: "A.jar", Site: "Example",
		Current: &catalog.Version{Dependencies: []catalog.Dependency{{Filename: "B.jar"}}},
	})
	coll.Put(&catalog.File{Filename: "B.jar", Site: "Example", Current: &catalog.Version{}})

	staged := StagedActions{"A.jar": reconcile.ActionUpload, "B.jar": reconcile.ActionRemove}
	out := DetectUpload(coll, "Example", staged, nil)

	require.Len(t, out, 1)
	assert.Equal(t, SeverityError, out[0].Severity)
	assert.Equal(t, "A.jar", out[0].Filename)
	assert.Contains(t, out[0].Message, "scheduled for removal")
}

func TestDetectUpload_SkewSinceScanIsCritical(t *testing.T) {
	coll := catalog.NewCollection()
	coll.Put(&catalog.File{
		Filename: "A.jar", Site: "Example",
		Current:        &catalog.Version{},
		LocalDigest:    "new-digest",
		LocalTimestamp: "20200102000000",
	})

	staged := StagedActions{"A.jar": reconcile.ActionUpload}
	rescan := map[string]ScanSnapshot{"A.jar": {Digest: "old-digest", Timestamp: "20200101000000"}}

	out := DetectUpload(coll, "Example", staged, rescan)
	require.Len(t, out, 1)
	assert.Equal(t, SeverityCritical, out[0].Severity)
	assert.Contains(t, out[0].Message, "changed on disk")
}

func TestDetectUpload_NoSkewIsNotAConflict(t *testing.T) {
	coll := catalog.NewCollection()
	coll.Put(&catalog.File{
		Filename: "A.jar", Site: "Example",
		Current:        &catalog.Version{},
		LocalDigest:    "same-digest",
		LocalTimestamp: "20200101000000",
	})

	staged := StagedActions{"A.jar": reconcile.ActionUpload}
	rescan := map[string]ScanSnapshot{"A.jar": {Digest: "same-digest", Timestamp: "20200101000000"}}

	out := DetectUpload(coll, "Example", staged, rescan)
	assert.Empty(t, out)
}

func TestDetectUpload_ObsoleteWithDeclaredDependenciesErrors(t *testing.T) {
	coll := catalog.NewCollection()
	coll.Put(&catalog.File{
		Filename:     "A.jar",
		Site:         "Example",
		Current:      nil,
		Previous:     []catalog.Version{{Checksum: "old"}},
		Dependencies: []catalog.Dependency{{Filename: "B.jar"}},
	})

	staged := StagedActions{"A.jar": reconcile.ActionUpload}
	out := DetectUpload(coll, "Example", staged, nil)

	require.Len(t, out, 1)
	assert.Equal(t, SeverityError, out[0].Severity)
	assert.Contains(t, out[0].Message, "still declares dependencies")
}

func TestFromLocalConflicts_LocallyModifiedLoserIsCritical(t *testing.T) {
	raw := []scanner.LocalConflict{{
		LogicalName: "Example.jar",
		Category:    scanner.CategoryLocallyModified,
		Kept:        scanner.Scanned{Candidate: scanner.Candidate{RelPath: "jars/Example.jar"}},
		Rejected:    []scanner.Scanned{{Candidate: scanner.Candidate{RelPath: "jars/Example.jar.bak"}}},
	}}

	out := FromLocalConflicts(raw)
	require.Len(t, out, 1)
	assert.Equal(t, SeverityCritical, out[0].Severity)
	assert.Contains(t, out[0].Message, "locally-modified")
}

func TestFromLocalConflicts_ObsoleteLoserIsPlainError(t *testing.T) {
	raw := []scanner.LocalConflict{{
		LogicalName: "Example.jar",
		Category:    scanner.CategoryObsolete,
		Kept:        scanner.Scanned{Candidate: scanner.Candidate{RelPath: "jars/Example.jar"}},
		Rejected:    []scanner.Scanned{{Candidate: scanner.Candidate{RelPath: "jars/Example.jar.old"}}},
	}}

	out := FromLocalConflicts(raw)
	require.Len(t, out, 1)
	assert.Equal(t, SeverityError, out[0].Severity)
	assert.Contains(t, out[0].Message, "obsolete")
}

func TestFromLocalConflicts_OffersIgnoreAndDeleteLosers(t *testing.T) {
	raw := []scanner.LocalConflict{{
		LogicalName: "Example.txt",
		Kept:        scanner.Scanned{Candidate: scanner.Candidate{RelPath: "macros/Example.txt"}},
		Rejected:    []scanner.Scanned{{Candidate: scanner.Candidate{RelPath: "macros/Example-2.0.txt"}}},
	}}

	out := FromLocalConflicts(raw)
	require.Len(t, out, 1)
	assert.Equal(t, "Example.txt", out[0].Filename)
	require.Len(t, out[0].Resolutions, 2)
	assert.Equal(t, "Ignore", out[0].Resolutions[0].Description)
}
