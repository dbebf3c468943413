package uploader

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugsite/plugsite/pkg/catalog"
	"github.com/plugsite/plugsite/pkg/hashsum"
)

// fakeTransport is a hand-written in-memory stand-in for Transport, used
// instead of a generated mock since the coordinator's contract is small
// enough to fake directly.
type fakeTransport struct {
	mtime        time.Time
	locked       bool
	lockErr      error
	uploaded     map[string][]byte
	commitMtime  time.Time
	commitErr    error
	unlockCalled bool
}

func newFakeTransport(mtime time.Time) *fakeTransport {
	return &fakeTransport{mtime: mtime, uploaded: make(map[string][]byte)}
}

func (f *fakeTransport) Protocol() string { return "fake" }

func (f *fakeTransport) ProbeCatalogMtime(ctx context.Context, site *catalog.Site) (time.Time, error) {
	return f.mtime, nil
}

func (f *fakeTransport) Lock(ctx context.Context, site *catalog.Site) error {
	if f.lockErr != nil {
		return f.lockErr
	}
	f.locked = true
	return nil
}

func (f *fakeTransport) Unlock(ctx context.Context, site *catalog.Site) error {
	f.unlockCalled = true
	f.locked = false
	return nil
}

func (f *fakeTransport) UploadFile(ctx context.Context, site *catalog.Site, filename string, r io.Reader, size int64) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.uploaded[filename] = b
	return nil
}

func (f *fakeTransport) CommitCatalog(ctx context.Context, site *catalog.Site, catalogBytes []byte) (time.Time, error) {
	if f.commitErr != nil {
		return time.Time{}, f.commitErr
	}
	return f.commitMtime, nil
}

func writePayload(t *testing.T, dir, relPath string, content []byte) string {
	t.Helper()
	p := filepath.Join(dir, relPath)
	require.NoError(t, os.WriteFile(p, content, 0o644))
	return p
}

func TestCoordinatorUpload_HappyPath(t *testing.T) {
	dir := t.TempDir()
	// A non-archive extension keeps this a test of the upload sequence, not
	// of the archive-aware hasher in pkg/hashsum.
	content := []byte("macro bytes")
	digest, err := hashsum.Digest(context.Background(), writePayload(t, dir, "Example.txt", content), "Example.txt")
	require.NoError(t, err)

	site := &catalog.Site{Name: "Example", LastKnown: "20200101000000"}
	coll := catalog.NewCollection()
	f := &catalog.File{
		Filename: "Example.txt",
		Site:     "Example",
		Current: &catalog.Version{
			Checksum: digest,
			Filesize: int64(len(content)),
		},
	}
	coll.Put(f)

	probeMtime, _ := time.Parse(catalog.TimestampLayout, site.LastKnown)
	commitMtime := probeMtime.Add(time.Hour)
	transport := newFakeTransport(probeMtime)
	transport.commitMtime = commitMtime

	reg := NewRegistry()
	reg.Register(transport)
	coord := NewCoordinator(reg)

	payloads := []Payload{{File: f, LocalPath: filepath.Join(dir, "Example.txt")}}
	err = coord.Upload(context.Background(), "fake", site, coll, payloads)
	require.NoError(t, err)

	assert.Equal(t, content, transport.uploaded["Example.txt"])
	assert.False(t, transport.unlockCalled, "a committed upload must not also unlock")
	assert.Equal(t, catalog.Now14(commitMtime), f.Current.Timestamp)
	assert.Equal(t, catalog.Now14(commitMtime), site.LastKnown)
}

func TestCoordinatorUpload_SiteSkewAborts(t *testing.T) {
	site := &catalog.Site{Name: "Example", LastKnown: "20200101000000"}
	coll := catalog.NewCollection()

	driftedMtime := time.Now().UTC()
	transport := newFakeTransport(driftedMtime)
	reg := NewRegistry()
	reg.Register(transport)
	coord := NewCoordinator(reg)

	err := coord.Upload(context.Background(), "fake", site, coll, nil)
	require.Error(t, err)
	assert.False(t, transport.locked, "lock must never be acquired once skew is detected")
}

func TestCoordinatorUpload_LockContestedAborts(t *testing.T) {
	site := &catalog.Site{Name: "Example", LastKnown: "20200101000000"}
	coll := catalog.NewCollection()

	probeMtime, _ := time.Parse(catalog.TimestampLayout, site.LastKnown)
	transport := newFakeTransport(probeMtime)
	transport.lockErr = assertableErr{"lock held by another writer"}
	reg := NewRegistry()
	reg.Register(transport)
	coord := NewCoordinator(reg)

	err := coord.Upload(context.Background(), "fake", site, coll, nil)
	require.Error(t, err)
}

func TestCoordinatorUpload_RenamedPayloadRecordsPreviousVersion(t *testing.T) {
	dir := t.TempDir()
	content := []byte("renamed macro bytes")
	digest, err := hashsum.Digest(context.Background(), writePayload(t, dir, "Example_2.txt", content), "Example_2.txt")
	require.NoError(t, err)

	site := &catalog.Site{Name: "Example", LastKnown: "20200101000000"}
	coll := catalog.NewCollection()
	f := &catalog.File{
		Filename:      "Example.txt",
		LocalFilename: "Example_2.txt",
		Site:          "Example",
		Current: &catalog.Version{
			Checksum:  digest,
			Filesize:  int64(len(content)),
			Timestamp: "20190101000000",
		},
	}
	coll.Put(f)

	probeMtime, _ := time.Parse(catalog.TimestampLayout, site.LastKnown)
	transport := newFakeTransport(probeMtime)
	transport.commitMtime = probeMtime.Add(time.Hour)
	reg := NewRegistry()
	reg.Register(transport)
	coord := NewCoordinator(reg)

	payloads := []Payload{{File: f, LocalPath: filepath.Join(dir, "Example_2.txt")}}
	err = coord.Upload(context.Background(), "fake", site, coll, payloads)
	require.NoError(t, err)

	require.Len(t, f.Previous, 1)
	assert.Equal(t, "Example_2.txt", f.Previous[0].Filename)
	assert.Equal(t, "20190101000000", f.Previous[0].Timestamp)
}

func TestBuildSiteCatalog_OnlyIncludesSiteFiles(t *testing.T) {
	coll := catalog.NewCollection()
	coll.Put(&catalog.File{Filename: "A.jar", Site: "Example", Current: &catalog.Version{Checksum: "a1", Timestamp: "20200101000000"}})
	coll.Put(&catalog.File{Filename: "B.jar", Site: "Other", Current: &catalog.Version{Checksum: "b1", Timestamp: "20200101000000"}})

	b, err := buildSiteCatalog(coll, &catalog.Site{Name: "Example"})
	require.NoError(t, err)

	decoded, err := catalog.Read(bytes.NewReader(b))
	require.NoError(t, err)
	_, hasA := decoded.Get("A.jar")
	_, hasB := decoded.Get("B.jar")
	assert.True(t, hasA)
	assert.False(t, hasB)
}

type assertableErr struct{ msg string }

func (e assertableErr) Error() string { return e.msg }
