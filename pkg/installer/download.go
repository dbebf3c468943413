package installer

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/plugsite/plugsite/pkg/errs"
	"github.com/plugsite/plugsite/pkg/fsutil"
	"github.com/plugsite/plugsite/pkg/progress"
)

// Fetcher fetches payload files over HTTP with a bounded worker pool, one
// goroutine per in-flight download, sized by the caller's MaxConcurrent
// setting.
type Fetcher struct {
	Client        *http.Client
	MaxConcurrent int
}

// NewFetcher creates a Fetcher with sane defaults if maxConcurrent <= 0.
func NewFetcher(client *http.Client, maxConcurrent int) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Fetcher{Client: client, MaxConcurrent: maxConcurrent}
}

// Item is one payload file to fetch: the remote URL and the absolute local
// destination it should be written to.
type Item struct {
	URL      string
	DestPath string
}

// FetchAll downloads every item concurrently, up to MaxConcurrent at a
// time, reporting progress to sink. It returns the first error
// encountered; per the cancellation model, a failed or cancelled batch
// leaves partial files in place for the next run to overwrite.
func (f *Fetcher) FetchAll(ctx context.Context, items []Item, sink progress.Sink) error {
	sink.SetTitle("Downloading")
	total := int64(len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.MaxConcurrent)

	for i, it := range items {
		item := it
		done := int64(i + 1)
		sink.SetItemCount(item.DestPath, done, total)
		g.Go(func() error {
			if err := f.fetchOne(gctx, item); err != nil {
				return err
			}
			sink.ItemDone(item.DestPath)
			return nil
		})
	}
	return g.Wait()
}

func (f *Fetcher) fetchOne(ctx context.Context, item Item) error {
	if err := fsutil.EnsureFileDir(item.DestPath); err != nil {
		return errs.Wrap(err, "create staging directory")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.URL, nil)
	if err != nil {
		return errs.Wrap(err, "build request")
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errs.ErrNetworkUnavailable, item.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", errs.ErrNetworkUnavailable, item.URL, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(item.DestPath), ".dl-*")
	if err != nil {
		return errs.Wrap(err, "create temp file")
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errs.Wrap(err, "write payload")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errs.Wrap(err, "close payload")
	}
	if err := fsutil.Move(tmpPath, item.DestPath); err != nil {
		os.Remove(tmpPath)
		return errs.Wrap(err, "finalize payload")
	}
	return nil
}

// EncodedURL builds a per-file URL per §6: "<site base>/<filename with
// spaces url-encoded>-<timestamp>".
func EncodedURL(siteBase, filename, timestamp string) string {
	if !strings.HasSuffix(siteBase, "/") {
		siteBase += "/"
	}
	return siteBase + url.PathEscape(filename) + "-" + timestamp
}

// sha1Hex returns the hex SHA-1 of a local file's raw bytes, independent
// of the archive-aware hasher. Nothing in the package calls it.
func sha1Hex(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
