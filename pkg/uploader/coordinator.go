package uploader

import (
	"bytes"
	"context"
	"os"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/plugsite/plugsite/pkg/applog"
	"github.com/plugsite/plugsite/pkg/catalog"
	"github.com/plugsite/plugsite/pkg/errs"
	"github.com/plugsite/plugsite/pkg/hashsum"
	"github.com/plugsite/plugsite/pkg/reconcile"
)

// Payload is one staged upload: the local file backing a File staged for
// the UPLOAD action.
type Payload struct {
	File     *catalog.File
	LocalPath string
}

// Coordinator drives one site's upload sequence end to end.
type Coordinator struct {
	Registry *Registry
}

// NewCoordinator creates a Coordinator bound to a Transport registry.
func NewCoordinator(reg *Registry) *Coordinator { return &Coordinator{Registry: reg} }

// Upload executes the four-step sequence of §4.10 against one site. coll
// is mutated in place: every successfully uploaded File's timestamp is
// rewritten to the server's authoritative value, and a previous-version
// record is appended for any file whose on-disk name differs from its
// catalog filename.
func (c *Coordinator) Upload(ctx context.Context, protocol string, site *catalog.Site, coll *catalog.Collection, payloads []Payload) error {
	t, err := c.Registry.Get(protocol)
	if err != nil {
		return err
	}

	remoteMtime, err := t.ProbeCatalogMtime(ctx, site)
	if err != nil {
		return err
	}
	if site.LastKnown != "" && catalog.Now14(remoteMtime) != site.LastKnown {
		return errs.Wrapf(errs.ErrSiteSkew, "site %s: remote catalog moved since last sync", site.Name)
	}

	if err := reverifyPayloads(ctx, payloads); err != nil {
		return err
	}

	if err := t.Lock(ctx, site); err != nil {
		return errs.Wrap(err, "acquire remote lock")
	}
	committed := false
	defer func() {
		if !committed {
			_ = t.Unlock(ctx, site)
		}
	}()

	for _, p := range payloads {
		f, err := os.Open(p.LocalPath)
		if err != nil {
			return errs.Wrap(err, "open payload for upload")
		}
		info, statErr := f.Stat()
		if statErr != nil {
			f.Close()
			return errs.Wrap(statErr, "stat payload")
		}
		err = t.UploadFile(ctx, site, p.File.Filename, f, info.Size())
		f.Close()
		if err != nil {
			return errs.Wrap(err, "upload payload")
		}
	}

	catalogBytes, err := buildSiteCatalog(coll, site)
	if err != nil {
		return err
	}

	serverMtime, err := t.CommitCatalog(ctx, site, catalogBytes)
	if err != nil {
		return err
	}
	committed = true

	stamp := catalog.Now14(serverMtime)
	for _, p := range payloads {
		applyUploadStamp(p.File, stamp)
	}
	site.LastKnown = stamp

	applog.Success("uploaded site catalog", logrus.Fields{"site": site.Name, "files": len(payloads), "timestamp": stamp})
	return nil
}

// reverifyPayloads re-checks each payload's local size and digest against
// the catalog's current version, catching edits made between scan time
// and upload time.
func reverifyPayloads(ctx context.Context, payloads []Payload) error {
	for _, p := range payloads {
		if p.File.Current == nil {
			continue
		}
		info, err := os.Stat(p.LocalPath)
		if err != nil {
			return errs.Wrap(err, "stat payload for re-verification")
		}
		if info.Size() != p.File.Current.Filesize {
			return errs.Wrapf(errs.ErrSizeMismatch, "%s changed since it was scanned", p.File.Filename)
		}
		relPath := p.File.LocalFilename
		if relPath == "" {
			relPath = p.File.Filename
		}
		digest, err := hashsum.Digest(ctx, p.LocalPath, relPath)
		if err != nil {
			return errs.Wrap(err, "digest payload for re-verification")
		}
		if digest != p.File.Current.Checksum {
			return errs.Wrapf(errs.ErrTimestampSkew, "%s changed on disk since it was scanned", p.File.Filename)
		}
	}
	return nil
}

// applyUploadStamp rewrites f's current-version timestamp to the
// server-authoritative stamp and, if the on-disk filename diverges from
// the logical catalog name, records a previous-version entry carrying the
// old filename so the rename is not lost from history.
func applyUploadStamp(f *catalog.File, stamp string) {
	if f.Current == nil {
		return
	}
	old := *f.Current
	f.Current.Timestamp = stamp

	if f.LocalFilename != "" && f.LocalFilename != f.Filename {
		f.Previous = append(f.Previous, catalog.Version{
			Filename:  f.LocalFilename,
			Timestamp: old.Timestamp,
			Checksum:  old.Checksum,
		})
		sort.Slice(f.Previous, func(i, j int) bool { return f.Previous[i].Less(f.Previous[j]) })
	}
}

// buildSiteCatalog serializes the subset of coll owned by site into the
// remote-form catalog bytes (no site declarations) ready for CommitCatalog.
func buildSiteCatalog(coll *catalog.Collection, site *catalog.Site) ([]byte, error) {
	siteColl := catalog.NewCollection()
	for _, f := range coll.SiteFiles(site.Name) {
		siteColl.Put(f)
	}
	var buf bytes.Buffer
	if err := catalog.WriteRemote(&buf, siteColl); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// StagedPayloads filters coll down to the Files staged ActionUpload that
// belong to siteName, pairing each with its local on-disk path.
func StagedPayloads(coll *catalog.Collection, siteName string, staged map[string]reconcile.Action, localPath func(*catalog.File) string) []Payload {
	var out []Payload
	for _, f := range coll.SiteFiles(siteName) {
		if staged[f.Filename] != reconcile.ActionUpload {
			continue
		}
		out = append(out, Payload{File: f, LocalPath: localPath(f)})
	}
	return out
}
