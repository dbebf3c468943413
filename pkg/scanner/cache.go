package scanner

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/plugsite/plugsite/pkg/errs"
)

// entry is one path-keyed line of the on-disk digest cache: the digest,
// the mtime it was computed from, and the path itself.
type entry struct {
	Digest    string
	Timestamp string
	Path      string
}

// DigestCache is the in-memory form of <root>/.checksums. It mixes two
// kinds of entries: path-keyed ("<digest> <timestamp> <path>") and
// digest-keyed ("<digest> :<legacy1>:<legacy2>:..." reverse entries
// giving the legacy-digest equivalents of a current digest). These are
// kept as two distinct maps, per the design note.
type DigestCache struct {
	mu      sync.RWMutex
	byPath  map[string]entry
	legacy  map[string][]string // current digest -> legacy equivalents
	hot     *lru.Cache[string, entry]
}

// NewDigestCache creates an empty cache with a bounded in-memory hot
// layer in front of the path map, avoiding repeated large-archive hashing
// within a single scan pass.
func NewDigestCache() *DigestCache {
	hot, _ := lru.New[string, entry](512)
	return &DigestCache{
		byPath: make(map[string]entry),
		legacy: make(map[string][]string),
		hot:    hot,
	}
}

// Load reads a cache file in the ".checksums" format. A missing file is
// not an error - it simply yields an empty cache.
func Load(path string) (*DigestCache, error) {
	c := NewDigestCache()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, errs.Wrap(err, "failed to open digest cache")
	}
	defer f.Close()

	scan := bufio.NewScanner(f)
	for scan.Scan() {
		line := scan.Text()
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 3)
		if len(fields) < 2 {
			continue
		}
		digest := fields[0]
		if strings.HasPrefix(fields[1], ":") {
			legacyList := strings.Split(strings.TrimPrefix(fields[1], ":"), ":")
			c.legacy[digest] = legacyList
			continue
		}
		if len(fields) < 3 {
			continue
		}
		e := entry{Digest: digest, Timestamp: fields[1], Path: fields[2]}
		c.byPath[e.Path] = e
	}
	if err := scan.Err(); err != nil {
		return nil, errs.Wrap(err, "failed to read digest cache")
	}
	return c, nil
}

// Save writes the cache back out in the ".checksums" format, path-keyed
// entries first, then the digest-keyed reverse entries.
func (c *DigestCache) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return errs.Wrap(err, "failed to create digest cache")
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, e := range c.byPath {
		if _, err := fmt.Fprintf(w, "%s %s %s\n", e.Digest, e.Timestamp, e.Path); err != nil {
			return err
		}
	}
	for digest, legacyList := range c.legacy {
		if _, err := fmt.Fprintf(w, "%s :%s\n", digest, strings.Join(legacyList, ":")); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Lookup returns the cached digest for path if its recorded timestamp
// matches mtime14 (the file's current mtime as a 14-digit string); a
// stale or absent entry is reported via ok=false.
func (c *DigestCache) Lookup(path, mtime14 string) (digest string, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if hit, found := c.hot.Get(path); found && hit.Timestamp == mtime14 {
		return hit.Digest, true
	}
	e, found := c.byPath[path]
	if !found || e.Timestamp != mtime14 {
		return "", false
	}
	return e.Digest, true
}

// LegacyEquivalents returns the legacy digests previously recorded for a
// current digest, if the reverse map already has them. Reconciling a new
// path-keyed entry's legacy digests into this map is the caller's job
// (via Remember), done lazily so the reverse map only grows when a path
// entry's legacy digests are not already indexed.
func (c *DigestCache) LegacyEquivalents(currentDigest string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.legacy[currentDigest]
}

// Remember records a freshly computed digest for path, and its legacy
// equivalents if they are not already indexed under that digest.
func (c *DigestCache) Remember(path, mtime14, digest string, legacy []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry{Digest: digest, Timestamp: mtime14, Path: path}
	c.byPath[path] = e
	c.hot.Add(path, e)
	if len(legacy) > 0 {
		if _, ok := c.legacy[digest]; !ok {
			c.legacy[digest] = legacy
		}
	}
}

// Mtime14 formats a modification time at second resolution as the
// cache's 14-digit decimal "YYYYMMDDhhmmss" representation, matching the
// catalog's own timestamp format.
func Mtime14(t time.Time) string {
	return t.UTC().Format(catalogTimestampLayout)
}

const catalogTimestampLayout = "20060102150405"
