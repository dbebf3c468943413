package uploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/plugsite/plugsite/pkg/catalog"
	"github.com/plugsite/plugsite/pkg/errs"
	"github.com/plugsite/plugsite/pkg/fsutil"
)

// HTTPTransport implements Transport against a bare HTTP PUT/DELETE
// endpoint rooted at each site's UploadDir, the simplest deployment target
// that needs no native client library. NewSession registers it under the
// "http" protocol, which Session.Upload uses for every site.
type HTTPTransport struct {
	Client *http.Client
}

// NewHTTPTransport creates an HTTPTransport with a sane default client if
// client is nil.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPTransport{Client: client}
}

func (t *HTTPTransport) Protocol() string { return "http" }

func (t *HTTPTransport) baseURL(site *catalog.Site) string {
	base := site.Host
	if site.UploadDir != "" {
		base += "/" + site.UploadDir
	}
	return base
}

func (t *HTTPTransport) ProbeCatalogMtime(ctx context.Context, site *catalog.Site) (time.Time, error) {
	url := t.baseURL(site) + "/" + fsutil.CatalogFileName
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return time.Time{}, errs.Wrap(err, "build probe request")
	}
	t.authenticate(site, req)
	resp, err := t.Client.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", errs.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return time.Time{}, fmt.Errorf("%w: probe returned %d", errs.ErrNetworkUnavailable, resp.StatusCode)
	}
	lm := resp.Header.Get("Last-Modified")
	mtime, err := http.ParseTime(lm)
	if err != nil {
		return time.Time{}, errs.Wrapf(errs.ErrCorruptCatalog, "unparsable Last-Modified header %q", lm)
	}
	return mtime, nil
}

func (t *HTTPTransport) Lock(ctx context.Context, site *catalog.Site) error {
	url := t.baseURL(site) + "/" + fsutil.CatalogFileName + ".lock"
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err == nil {
		t.authenticate(site, req)
		if resp, err := t.Client.Do(req); err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return errs.Wrapf(errs.ErrLockContested, "site %s", site.Name)
			}
		}
	}
	return t.put(ctx, site, url, emptyReader{}, 0)
}

func (t *HTTPTransport) Unlock(ctx context.Context, site *catalog.Site) error {
	url := t.baseURL(site) + "/" + fsutil.CatalogFileName + ".lock"
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return errs.Wrap(err, "build unlock request")
	}
	t.authenticate(site, req)
	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrNetworkUnavailable, err)
	}
	resp.Body.Close()
	return nil
}

func (t *HTTPTransport) UploadFile(ctx context.Context, site *catalog.Site, filename string, r io.Reader, size int64) error {
	return t.put(ctx, site, t.baseURL(site)+"/"+filename, r, size)
}

func (t *HTTPTransport) CommitCatalog(ctx context.Context, site *catalog.Site, catalogBytes []byte) (time.Time, error) {
	lockURL := t.baseURL(site) + "/" + fsutil.CatalogFileName + ".lock"
	if err := t.put(ctx, site, lockURL, bytesReader(catalogBytes), int64(len(catalogBytes))); err != nil {
		return time.Time{}, err
	}

	headReq, err := http.NewRequestWithContext(ctx, http.MethodHead, lockURL, nil)
	if err != nil {
		return time.Time{}, errs.Wrap(err, "build commit-probe request")
	}
	t.authenticate(site, headReq)
	resp, err := t.Client.Do(headReq)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", errs.ErrNetworkUnavailable, err)
	}
	mtime, parseErr := http.ParseTime(resp.Header.Get("Last-Modified"))
	resp.Body.Close()
	if parseErr != nil {
		mtime = time.Now().UTC()
	}

	liveURL := t.baseURL(site) + "/" + fsutil.CatalogFileName
	backupURL := liveURL + ".old"
	_ = t.moveRemote(ctx, site, liveURL, backupURL)
	if err := t.moveRemote(ctx, site, lockURL, liveURL); err != nil {
		return time.Time{}, errs.Wrap(err, "commit catalog rename")
	}

	return mtime, nil
}

// moveRemote approximates a server-side rename as a GET+PUT+DELETE
// sequence for transports fronted by a plain HTTP file server that has no
// native rename verb.
func (t *HTTPTransport) moveRemote(ctx context.Context, site *catalog.Site, src, dst string) error {
	getReq, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil //nolint:nilerr // missing source (e.g. no prior catalog to back up) is not an error
	}
	t.authenticate(site, getReq)
	resp, err := t.Client.Do(getReq)
	if err != nil || resp.StatusCode != http.StatusOK {
		if resp != nil {
			resp.Body.Close()
		}
		return nil
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Wrap(err, "read remote file for move")
	}
	if err := t.put(ctx, site, dst, bytesReader(body), int64(len(body))); err != nil {
		return err
	}
	delReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, src, nil)
	if err != nil {
		return nil
	}
	t.authenticate(site, delReq)
	if delResp, err := t.Client.Do(delReq); err == nil {
		delResp.Body.Close()
	}
	return nil
}

func (t *HTTPTransport) put(ctx context.Context, site *catalog.Site, url string, r io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, r)
	if err != nil {
		return errs.Wrap(err, "build upload request")
	}
	req.ContentLength = size
	t.authenticate(site, req)
	resp, err := t.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%w: upload to %s returned %d", errs.ErrNetworkUnavailable, url, resp.StatusCode)
	}
	return nil
}

// authenticate applies site's configured upload credentials, if any, to
// req before it goes out over the wire.
func (t *HTTPTransport) authenticate(site *catalog.Site, req *http.Request) {
	if a := AuthenticatorFor(site); a != nil {
		a.Apply(req)
	}
}

type emptyReader struct{}

func (emptyReader) Read([]byte) (int, error) { return 0, io.EOF }

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }
