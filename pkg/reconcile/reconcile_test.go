package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/plugsite/plugsite/pkg/catalog"
)

func TestCompute_UnknownToAnySite(t *testing.T) {
	assert.Equal(t, StatusLocalOnly, Compute(Input{LocalPresent: true, KnownToAnySite: false}))
	assert.Equal(t, StatusNotInstalled, Compute(Input{LocalPresent: false, KnownToAnySite: false}))
}

func TestCompute_PlatformDoesNotApply(t *testing.T) {
	assert.Equal(t, StatusObsoleteUninstalled, Compute(Input{
		KnownToAnySite: true, PlatformApplies: false, Current: nil,
	}))
	assert.Equal(t, StatusNotInstalled, Compute(Input{
		KnownToAnySite: true, PlatformApplies: false, Current: &catalog.Version{Checksum: "x"},
	}))
}

func TestCompute_NotInstalled(t *testing.T) {
	got := Compute(Input{
		KnownToAnySite: true, PlatformApplies: true, LocalPresent: false,
		Current: &catalog.Version{Checksum: "abc"},
	})
	assert.Equal(t, StatusNotInstalled, got)
}

func TestCompute_NewWhenAbsentWithNoCurrentOrHistory(t *testing.T) {
	got := Compute(Input{
		KnownToAnySite: true, PlatformApplies: true, LocalPresent: false,
		Current: nil, HasHistory: false,
	})
	assert.Equal(t, StatusNew, got)
}

func TestCompute_ObsoleteUninstalledWhenAbsentWithHistory(t *testing.T) {
	got := Compute(Input{
		KnownToAnySite: true, PlatformApplies: true, LocalPresent: false,
		Current: nil, HasHistory: true,
	})
	assert.Equal(t, StatusObsoleteUninstalled, got)
}

func TestCompute_InstalledWhenDigestMatchesCurrent(t *testing.T) {
	got := Compute(Input{
		KnownToAnySite: true, PlatformApplies: true, LocalPresent: true,
		LocalDigest: "abc", Current: &catalog.Version{Checksum: "abc"},
	})
	assert.Equal(t, StatusInstalled, got)
}

func TestCompute_InstalledWhenLegacyDigestMatchesCurrent(t *testing.T) {
	got := Compute(Input{
		KnownToAnySite: true, PlatformApplies: true, LocalPresent: true,
		LocalDigest: "zzz", LocalLegacy: []string{"abc"},
		Current: &catalog.Version{Checksum: "abc"},
	})
	assert.Equal(t, StatusInstalled, got)
}

func TestCompute_UpdateableWhenDigestMatchesPrevious(t *testing.T) {
	got := Compute(Input{
		KnownToAnySite: true, PlatformApplies: true, LocalPresent: true,
		LocalDigest: "old", Current: &catalog.Version{Checksum: "new"},
		Previous: []catalog.Version{{Checksum: "old"}},
	})
	assert.Equal(t, StatusUpdateable, got)
}

func TestCompute_ModifiedWhenDigestMatchesNeither(t *testing.T) {
	got := Compute(Input{
		KnownToAnySite: true, PlatformApplies: true, LocalPresent: true,
		LocalDigest: "mystery", Current: &catalog.Version{Checksum: "new"},
		Previous: []catalog.Version{{Checksum: "old"}},
	})
	assert.Equal(t, StatusModified, got)
}

func TestCompute_ObsoleteWhenNoCurrentButMatchesPrevious(t *testing.T) {
	got := Compute(Input{
		KnownToAnySite: true, PlatformApplies: true, LocalPresent: true,
		LocalDigest: "old", Current: nil,
		Previous: []catalog.Version{{Checksum: "old"}},
	})
	assert.Equal(t, StatusObsolete, got)
}

func TestCompute_ObsoleteModifiedWhenNoCurrentAndNoPreviousMatch(t *testing.T) {
	got := Compute(Input{
		KnownToAnySite: true, PlatformApplies: true, LocalPresent: true,
		LocalDigest: "mystery", Current: nil,
		Previous: []catalog.Version{{Checksum: "old"}},
	})
	assert.Equal(t, StatusObsoleteModified, got)
}

func TestNoAction_CoveredForEveryStatus(t *testing.T) {
	for status, valid := range validActions {
		na := NoAction(status)
		assert.NotEmpty(t, na, "status %s must have a no-action entry", status)
		found := false
		for _, a := range valid {
			if a == na {
				found = true
				break
			}
		}
		assert.True(t, found, "no-action %s for status %s must be in its valid-action set", na, status)
	}
}

func TestValidActions_UploadExcludedWithoutRights(t *testing.T) {
	withUpload := ValidActions(StatusUpdateable, true)
	withoutUpload := ValidActions(StatusUpdateable, false)
	assert.Contains(t, withUpload, ActionUpload)
	assert.NotContains(t, withoutUpload, ActionUpload)
}

func TestIsValidAction_ShadowingCarveOut(t *testing.T) {
	// UPLOAD is not in StatusInstalled's table at all, and canUpload=false
	// would normally rule it out regardless - but the shadowing-own-name
	// carve-out bypasses the table entirely.
	assert.True(t, IsValidAction(StatusInstalled, ActionUpload, false, true))
	assert.False(t, IsValidAction(StatusInstalled, ActionUpload, false, false))
}

func TestIsValidAction_RespectsTable(t *testing.T) {
	assert.True(t, IsValidAction(StatusUpdateable, ActionUpdate, true, false))
	assert.False(t, IsValidAction(StatusUpdateable, ActionInstall, true, false))
}

func TestCascadeAction_PrefersUpdateThenUninstallThenInstall(t *testing.T) {
	a, ok := CascadeAction(StatusUpdateable, true)
	assert.True(t, ok)
	assert.Equal(t, ActionUpdate, a)

	a, ok = CascadeAction(StatusInstalled, true)
	assert.True(t, ok)
	assert.Equal(t, ActionUninstall, a)

	a, ok = CascadeAction(StatusNotInstalled, true)
	assert.True(t, ok)
	assert.Equal(t, ActionInstall, a)
}

func TestCascadeAction_NoneValidReturnsFalse(t *testing.T) {
	_, ok := CascadeAction(StatusObsoleteUninstalled, true)
	assert.False(t, ok)
}
