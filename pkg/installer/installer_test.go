package installer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugsite/plugsite/pkg/catalog"
	"github.com/plugsite/plugsite/pkg/fsutil"
	"github.com/plugsite/plugsite/pkg/hashsum"
)

func digestOf(t *testing.T, content []byte, relPath string) string {
	t.Helper()
	tmp := filepath.Join(t.TempDir(), filepath.Base(relPath))
	require.NoError(t, os.WriteFile(tmp, content, 0o644))
	d, err := hashsum.Digest(context.Background(), tmp, relPath)
	require.NoError(t, err)
	return d
}

func TestBatchRun_InstallsAndVerifies(t *testing.T) {
	// A plain (non-archive) extension keeps this a test of staging and
	// verification plumbing, not of the archive-aware hasher in pkg/hashsum.
	content := []byte("macro payload")
	digest := digestOf(t, content, "macros/Example.txt")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(content)
	}))
	defer server.Close()

	root := t.TempDir()
	f := &catalog.File{
		Filename:      "Example.txt",
		LocalFilename: "macros/Example.txt",
		Current: &catalog.Version{
			Checksum: digest,
			Filesize: int64(len(content)),
		},
	}

	batch := NewBatch(root, NewFetcher(server.Client(), 2))
	err := batch.Run(context.Background(), []Task{{File: f, SiteBase: server.URL}})
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(root, "macros", "Example.txt"))
	require.NoError(t, err)
	assert.Equal(t, content, got)

	_, err = os.Stat(fsutil.UpdateDir(root))
	assert.NoError(t, err) // directory exists but should be empty of the moved file
}

func TestBatchRun_DigestMismatchAborts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("wrong content"))
	}))
	defer server.Close()

	root := t.TempDir()
	f := &catalog.File{
		Filename:      "Example.txt",
		LocalFilename: "macros/Example.txt",
		Current: &catalog.Version{
			Checksum: "0000000000000000000000000000000000000000",
			Filesize: 13,
		},
	}

	batch := NewBatch(root, NewFetcher(server.Client(), 2))
	err := batch.Run(context.Background(), []Task{{File: f, SiteBase: server.URL}})
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(root, "macros", "Example.txt"))
	assert.True(t, os.IsNotExist(statErr), "final path must not be touched when verification fails")
}

func TestVerifyStaged_AccumulatesEveryMismatchInsteadOfStoppingAtTheFirst(t *testing.T) {
	root := t.TempDir()
	stageOne := fsutil.StagedPath(root, "macros/One.txt")
	stageTwo := fsutil.StagedPath(root, "macros/Two.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(stageOne), fsutil.DirModeDefault))
	require.NoError(t, os.WriteFile(stageOne, []byte("one"), 0o644))
	require.NoError(t, os.WriteFile(stageTwo, []byte("two"), 0o644))

	tasks := []Task{
		{File: &catalog.File{Filename: "One.txt", LocalFilename: "macros/One.txt", Current: &catalog.Version{Checksum: "bad", Filesize: 3}}},
		{File: &catalog.File{Filename: "Two.txt", LocalFilename: "macros/Two.txt", Current: &catalog.Version{Checksum: "bad", Filesize: 3}}},
	}

	batch := NewBatch(root, NewFetcher(http.DefaultClient, 2))
	err := batch.verifyStaged(tasks)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "One.txt")
	assert.Contains(t, err.Error(), "Two.txt")
}

func TestBatchRun_DeletePlacesholderRemovesTarget(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "plugins", "Old_Plugin.jar")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), fsutil.DirModeDefault))
	require.NoError(t, os.WriteFile(target, []byte("stale"), 0o644))

	f := &catalog.File{Filename: "Old_Plugin.jar", LocalFilename: "plugins/Old_Plugin.jar"}
	batch := NewBatch(root, NewFetcher(http.DefaultClient, 2))
	err := batch.Run(context.Background(), []Task{{File: f, Delete: true}})
	require.NoError(t, err)

	_, statErr := os.Stat(target)
	assert.True(t, os.IsNotExist(statErr))
}

func TestBatchRun_ResolveBundleForcesFullBundleRefresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("bundle payload"))
	}))
	defer server.Close()

	root := t.TempDir()
	changed := &catalog.File{Filename: "One.bin", LocalFilename: "Fiji.app/Contents/MacOS/One.bin"}
	untouched := &catalog.File{Filename: "Two.bin", LocalFilename: "Fiji.app/Contents/MacOS/Two.bin"}

	batch := NewBatch(root, NewFetcher(server.Client(), 2))
	batch.ResolveBundle = func(bundleName string) []Task {
		require.Equal(t, "Fiji.app", bundleName)
		return []Task{
			{File: changed, SiteBase: server.URL},
			{File: untouched, SiteBase: server.URL},
		}
	}

	// Only "changed" is staged for this run; ResolveBundle still reports
	// every bundle member, so both must end up refreshed.
	err := batch.Run(context.Background(), []Task{{File: changed, SiteBase: server.URL}})
	require.NoError(t, err)

	for _, rel := range []string{"Contents/MacOS/One.bin", "Contents/MacOS/Two.bin"} {
		got, err := os.ReadFile(filepath.Join(root, "Fiji.app", rel))
		require.NoError(t, err)
		assert.Equal(t, []byte("bundle payload"), got)
	}
}

func TestLauncherBackupPath(t *testing.T) {
	assert.Equal(t, "/a/ImageJ-win64.old.exe", launcherBackupPath("/a/ImageJ-win64.exe"))
	assert.Equal(t, "/a/ImageJ-linux64.old", launcherBackupPath("/a/ImageJ-linux64"))
}

func TestIsLauncherPath(t *testing.T) {
	assert.True(t, isLauncherPath("ImageJ-linux64"))
	assert.True(t, isLauncherPath("Contents/MacOS/ImageJ-macosx"))
	assert.False(t, isLauncherPath("plugins/Example.jar"))
}
