// Package uploader implements the remote catalog republish sequence: a
// lock-then-atomic-rename discipline executed through a pluggable
// Transport, with skew detection against the site's last-known catalog
// timestamp and re-verification of every staged payload immediately
// before it goes out over the wire.
package uploader

import (
	"context"
	"io"
	"time"

	"github.com/plugsite/plugsite/pkg/catalog"
	"github.com/plugsite/plugsite/pkg/errs"
)

// Transport is the pluggable byte-transfer backend a site's upload
// credentials select (ssh, sftp, s3, a bare HTTP PUT endpoint, ...). Every
// method must honor the remote lock: once Lock succeeds, no other
// transport instance talking to the same upload directory may proceed
// until Unlock or CommitCatalog runs.
type Transport interface {
	// Protocol names the scheme this transport answers to (e.g. "ssh").
	Protocol() string

	// ProbeCatalogMtime returns the last-modified time the remote host
	// reports for the site's current catalog file.
	ProbeCatalogMtime(ctx context.Context, site *catalog.Site) (time.Time, error)

	// Lock creates the site's db.xml.gz.lock file, claiming the upload
	// right. It must fail if the lock already exists.
	Lock(ctx context.Context, site *catalog.Site) error

	// Unlock removes the lock without committing, used on abort.
	Unlock(ctx context.Context, site *catalog.Site) error

	// UploadFile writes one payload file (by its final catalog filename)
	// to the site's upload directory.
	UploadFile(ctx context.Context, site *catalog.Site, filename string, r io.Reader, size int64) error

	// CommitCatalog writes the new catalog bytes to the lock file, then
	// atomically renames the lock to the live catalog name, backing up
	// the prior catalog. It returns the server-side mtime recorded for
	// the lock file at the moment of the rename - the authoritative
	// upload timestamp every uploaded file adopts.
	CommitCatalog(ctx context.Context, site *catalog.Site, catalogBytes []byte) (time.Time, error)
}

// Registry resolves a Transport by protocol scheme.
type Registry struct {
	byProtocol map[string]Transport
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry { return &Registry{byProtocol: make(map[string]Transport)} }

// Register adds a Transport under its own Protocol() name.
func (r *Registry) Register(t Transport) { r.byProtocol[t.Protocol()] = t }

// Get resolves a Transport by protocol, or ErrTransportUnavailable.
func (r *Registry) Get(protocol string) (Transport, error) {
	t, ok := r.byProtocol[protocol]
	if !ok {
		return nil, errs.Wrapf(errs.ErrTransportUnavailable, "%s", protocol)
	}
	return t, nil
}
