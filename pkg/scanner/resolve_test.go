package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugsite/plugsite/pkg/catalog"
)

func TestResolveGroup_EmptyYieldsNoChosen(t *testing.T) {
	r := ResolveGroup("Example.txt", nil, nil)
	assert.Nil(t, r.Chosen)
	assert.Empty(t, r.Conflicts)
}

func TestResolveGroup_SingleCandidateTrivial(t *testing.T) {
	s := Scanned{Candidate: Candidate{RelPath: "macros/Example.txt"}, Digest: "abc"}
	r := ResolveGroup("Example.txt", []Scanned{s}, nil)
	require.NotNil(t, r.Chosen)
	assert.Equal(t, "abc", r.Chosen.Digest)
	assert.Empty(t, r.Conflicts)
}

func TestResolveGroup_FavorsMatchCurrentOverUnrecognized(t *testing.T) {
	f := &catalog.File{Current: &catalog.Version{Checksum: "current-digest"}}
	matching := Scanned{Candidate: Candidate{RelPath: "a", ModTime: 100}, Digest: "current-digest"}
	unknown := Scanned{Candidate: Candidate{RelPath: "b", ModTime: 200}, Digest: "mystery-digest"}

	r := ResolveGroup("Example.txt", []Scanned{unknown, matching}, f)
	require.NotNil(t, r.Chosen)
	assert.Equal(t, "current-digest", r.Chosen.Digest, "matching current must win even though it's older")
	require.Len(t, r.Conflicts, 1)
	assert.Equal(t, "mystery-digest", r.Conflicts[0].Rejected[0].Digest)
}

func TestResolveGroup_FavorsMatchPreviousOverUnrecognized(t *testing.T) {
	f := &catalog.File{
		Current:  &catalog.Version{Checksum: "unrelated-digest"},
		Previous: []catalog.Version{{Checksum: "previous-digest"}},
	}
	matching := Scanned{Candidate: Candidate{RelPath: "a", ModTime: 100}, Digest: "previous-digest"}
	unknown := Scanned{Candidate: Candidate{RelPath: "b", ModTime: 200}, Digest: "mystery-digest"}

	r := ResolveGroup("Example.txt", []Scanned{unknown, matching}, f)
	require.NotNil(t, r.Chosen)
	assert.Equal(t, "previous-digest", r.Chosen.Digest)
	require.Len(t, r.Conflicts, 1)
	assert.Equal(t, CategoryLocallyModified, r.Conflicts[0].Category)
}

// TestResolveGroup_ObsoleteFileIsNewestWinsNotCategoryRanked covers §4.4's
// second bullet: once a File has gone obsolete (Current == nil), there is
// no current checksum to rank candidates against, so the newest candidate
// on disk wins outright even if an older one happens to match a previous
// checksum.
func TestResolveGroup_ObsoleteFileIsNewestWinsNotCategoryRanked(t *testing.T) {
	f := &catalog.File{Previous: []catalog.Version{{Checksum: "previous-digest"}}}
	olderMatchesPrevious := Scanned{Candidate: Candidate{RelPath: "a", ModTime: 100}, Digest: "previous-digest"}
	newerUnrecognized := Scanned{Candidate: Candidate{RelPath: "b", ModTime: 200}, Digest: "mystery-digest"}

	r := ResolveGroup("Example.txt", []Scanned{olderMatchesPrevious, newerUnrecognized}, f)
	require.NotNil(t, r.Chosen)
	assert.Equal(t, "mystery-digest", r.Chosen.Digest, "newest candidate must win for an obsolete file regardless of checksum match")
	require.Len(t, r.Conflicts, 1)
	assert.Equal(t, Category(""), r.Conflicts[0].Category, "obsolete files get an uncategorized conflict, same as an unknown logical name")
}

func TestResolveGroup_TiesWithinCategoryBrokenByNewestMtime(t *testing.T) {
	older := Scanned{Candidate: Candidate{RelPath: "a", ModTime: 100}, Digest: "x"}
	newer := Scanned{Candidate: Candidate{RelPath: "b", ModTime: 200}, Digest: "y"}

	r := ResolveGroup("Example.txt", []Scanned{older, newer}, nil)
	require.NotNil(t, r.Chosen)
	assert.Equal(t, "y", r.Chosen.Digest)
}

func TestApply_PopulatesLocalStateForKnownFiles(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	writeFile(t, root, "macros/Example.txt", []byte("content"), now)

	coll := catalog.NewCollection()
	f := &catalog.File{Filename: "Example.txt"}
	coll.Put(f)

	cache := NewDigestCache()
	conflicts, orphans, err := Apply(context.Background(), root, coll, cache)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	assert.Empty(t, orphans)
	assert.NotEmpty(t, f.LocalDigest)
	assert.NotEmpty(t, f.LocalTimestamp)
}

func TestApply_ReportsOrphansForUnknownLocalFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "macros/Mystery.txt", []byte("content"), time.Now())

	coll := catalog.NewCollection()
	cache := NewDigestCache()
	_, orphans, err := Apply(context.Background(), root, coll, cache)
	require.NoError(t, err)
	assert.Equal(t, []string{"Mystery.txt"}, orphans)
}

func TestApply_ReportsLocalConflictForMultipleCandidates(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	later := now.Add(time.Hour)
	writeFile(t, root, "macros/Example.txt", []byte("a"), now)
	writeFile(t, root, "macros/Example-2.0.txt", []byte("b"), later)

	coll := catalog.NewCollection()
	coll.Put(&catalog.File{Filename: "Example.txt"})

	cache := NewDigestCache()
	conflicts, _, err := Apply(context.Background(), root, coll, cache)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "Example.txt", conflicts[0].LogicalName)
	assert.Len(t, conflicts[0].Rejected, 1)
}
