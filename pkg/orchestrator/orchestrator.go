// Package orchestrator ties config, catalog, scanner, reconcile, conflict,
// installer, and uploader together into the handful of high-level
// operations the CLI drives: refreshing site catalogs, scanning the local
// installation, planning actions, and running an install or upload batch.
package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/plugsite/plugsite/pkg/applog"
	"github.com/plugsite/plugsite/pkg/catalog"
	"github.com/plugsite/plugsite/pkg/conflict"
	"github.com/plugsite/plugsite/pkg/config"
	"github.com/plugsite/plugsite/pkg/depscan"
	"github.com/plugsite/plugsite/pkg/errs"
	"github.com/plugsite/plugsite/pkg/installer"
	"github.com/plugsite/plugsite/pkg/platform"
	"github.com/plugsite/plugsite/pkg/reconcile"
	"github.com/plugsite/plugsite/pkg/scanner"
	"github.com/plugsite/plugsite/pkg/uploader"
)

// Session bundles the loaded config, merged catalog, and digest cache for
// one CLI invocation against a single installation root.
type Session struct {
	Config  *config.Config
	Catalog *catalog.Collection
	Cache   *scanner.DigestCache
	Hooks   Hooks

	HTTPClient *http.Client
	Uploaders  *uploader.Registry
}

// NewSession loads the local catalog and digest cache for cfg.Root. A
// missing db.xml.gz yields an empty catalog seeded with cfg's configured
// sites; a missing digest cache yields an empty one.
func NewSession(cfg *config.Config) (*Session, error) {
	s := &Session{
		Config:     cfg,
		HTTPClient: http.DefaultClient,
		Uploaders:  uploader.NewRegistry(),
	}
	s.Uploaders.Register(uploader.NewHTTPTransport(s.HTTPClient))

	coll, err := loadLocalCatalog(cfg)
	if err != nil {
		return nil, err
	}
	s.Catalog = coll

	cache, err := scanner.Load(cfg.ChecksumCachePath())
	if err != nil {
		return nil, err
	}
	s.Cache = cache

	return s, nil
}

func loadLocalCatalog(cfg *config.Config) (*catalog.Collection, error) {
	f, err := os.Open(cfg.DatabasePath())
	if err != nil {
		if os.IsNotExist(err) {
			coll := catalog.NewCollection()
			coll.Sites = sitesFromConfig(cfg)
			return coll, nil
		}
		return nil, errs.Wrap(err, "failed to open local catalog")
	}
	defer f.Close()
	return catalog.Read(f)
}

func sitesFromConfig(cfg *config.Config) []*catalog.Site {
	out := make([]*catalog.Site, 0, len(cfg.Sites))
	for _, sc := range cfg.Sites {
		out = append(out, siteFromConfig(sc))
	}
	return out
}

func siteFromConfig(sc *config.SiteConfig) *catalog.Site {
	return &catalog.Site{
		Name:        sc.Name,
		URL:         sc.URL,
		Host:        sc.Host,
		UploadDir:   sc.UploadDir,
		Description: sc.Description,
		Maintainer:  sc.Maintainer,
		LastKnown:   sc.LastKnown,
		Active:      sc.Active,
		Official:    sc.Official,
		KeepURL:     sc.KeepURL,
		Rank:        sc.Rank,

		AuthUsername:    sc.AuthUsername,
		AuthPassword:    sc.AuthPassword,
		AuthHeaderName:  sc.AuthHeaderName,
		AuthHeaderValue: sc.AuthHeaderValue,
	}
}

// Save persists the merged catalog and digest cache back under the
// installation root.
func (s *Session) Save() error {
	f, err := os.Create(s.Config.DatabasePath())
	if err != nil {
		return errs.Wrap(err, "failed to write local catalog")
	}
	defer f.Close()
	if err := catalog.WriteLocal(f, s.Catalog); err != nil {
		return err
	}
	return s.Cache.Save(s.Config.ChecksumCachePath())
}

// Refresh re-fetches every active site's remote catalog and re-merges them
// per the shadowing rules, replacing s.Catalog. Every active site is
// always fetched; opts.UpdateAll and opts.Simulate are not read here.
func (s *Session) Refresh(ctx context.Context, opts RefreshOptions) error {
	sites := sitesFromConfig(s.Config)
	perSite := make(map[string]*catalog.Collection, len(sites))

	for _, site := range sites {
		if !site.Active {
			continue
		}
		emit(s.Hooks, Event{Phase: "refreshing", ID: site.Name})
		coll, err := s.fetchSiteCatalog(ctx, site)
		if err != nil {
			return errs.Wrapf(err, "refresh site %s", site.Name)
		}
		perSite[site.Name] = coll
	}

	merged, err := catalog.Merge(perSite, sites)
	if err != nil {
		return err
	}
	s.Catalog = merged
	emit(s.Hooks, Event{Phase: "done"})
	return nil
}

func (s *Session) fetchSiteCatalog(ctx context.Context, site *catalog.Site) (*catalog.Collection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, site.URL+"db.xml.gz", nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.ErrNetworkUnavailable, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errs.Wrapf(errs.ErrNetworkUnavailable, "%s: HTTP %d", site.URL, resp.StatusCode)
	}
	coll, err := catalog.Read(resp.Body)
	if err != nil {
		return nil, err
	}
	site.LastKnown = latestTimestampIn(coll)
	return coll, nil
}

func latestTimestampIn(coll *catalog.Collection) string {
	var latest string
	for _, f := range coll.All() {
		if f.Current != nil && f.Current.Timestamp > latest {
			latest = f.Current.Timestamp
		}
	}
	return latest
}

// Reconcile scans the local installation and computes a Status for every
// File in the catalog, returning the per-file status map alongside any
// local multi-candidate conflicts and orphaned (catalog-unknown) files the
// scanner found.
func (s *Session) Reconcile(ctx context.Context) (map[string]reconcile.Status, []scanner.LocalConflict, []string, error) {
	emit(s.Hooks, Event{Phase: "scanning"})
	localConflicts, orphans, err := scanner.Apply(ctx, s.Config.Root, s.Catalog, s.Cache)
	if err != nil {
		return nil, nil, nil, err
	}

	statusOf := make(map[string]reconcile.Status, s.Catalog.Len())
	for _, f := range s.Catalog.All() {
		statusOf[f.Filename] = reconcile.Compute(reconcile.Input{
			LocalPresent:    f.LocalDigest != "" || f.LocalTimestamp != "",
			LocalDigest:     f.LocalDigest,
			LocalLegacy:     f.LocalLegacyDigests,
			KnownToAnySite:  true,
			Current:         f.Current,
			Previous:        f.Previous,
			PlatformApplies: platform.Applies(f.Platforms, platform.Current()),
			HasHistory:      len(f.Previous) > 0,
		})
	}
	for _, name := range orphans {
		statusOf[name] = reconcile.StatusLocalOnly
	}

	emit(s.Hooks, Event{Phase: "done"})
	return statusOf, localConflicts, orphans, nil
}

// Plan derives the default staged action for every name in filenames
// (every catalog file, if filenames is empty), following
// reconcile.NoAction unless force requests the preferred cascade action
// (UPDATE over UNINSTALL over INSTALL) instead.
func (s *Session) Plan(statusOf map[string]reconcile.Status, filenames []string, force bool) conflict.StagedActions {
	if len(filenames) == 0 {
		filenames = make([]string, 0, len(statusOf))
		for name := range statusOf {
			filenames = append(filenames, name)
		}
	}

	staged := conflict.StagedActions{}
	for _, name := range filenames {
		status, ok := statusOf[name]
		if !ok {
			continue
		}
		f, _ := s.Catalog.Get(name)
		canUpload := false
		if f != nil {
			canUpload = s.Catalog.FindSite(f.Site).Uploadable()
		}

		if force {
			if action, ok := reconcile.CascadeAction(status, canUpload); ok {
				staged[name] = action
				continue
			}
		}
		staged[name] = reconcile.NoAction(status)
	}
	return staged
}

// Update runs the install/update conflict check and, if nothing critical
// blocks it, an installer batch for every file staged INSTALL, UPDATE, or
// UNINSTALL/REMOVE.
func (s *Session) Update(ctx context.Context, statusOf map[string]reconcile.Status, staged conflict.StagedActions, opts UpdateOptions) ([]conflict.Conflict, error) {
	conflicts := conflict.DetectInstallUpdate(s.Catalog, staged, statusOf)
	if conflict.HasCritical(conflicts) {
		return conflicts, errs.ErrCriticalConflict
	}
	if opts.Simulate {
		return conflicts, nil
	}

	var tasks []installer.Task
	for name, action := range staged {
		f, ok := s.Catalog.Get(name)
		if !ok {
			continue
		}
		switch action {
		case reconcile.ActionInstall, reconcile.ActionUpdate:
			site := s.Catalog.FindSite(f.Site)
			base := ""
			if site != nil {
				base = site.URL
			}
			tasks = append(tasks, installer.Task{File: f, SiteBase: base})
		case reconcile.ActionUninstall, reconcile.ActionRemove:
			tasks = append(tasks, installer.Task{File: f, Delete: true})
		}
	}
	if opts.RemoveObsolete {
		for name, status := range statusOf {
			if status != reconcile.StatusObsolete && status != reconcile.StatusObsoleteModified {
				continue
			}
			f, ok := s.Catalog.Get(name)
			if !ok {
				continue
			}
			tasks = append(tasks, installer.Task{File: f, Delete: true})
		}
	}
	if len(tasks) == 0 {
		return conflicts, nil
	}

	fetcher := installer.NewFetcher(s.HTTPClient, s.Config.Settings.MaxConcurrent)
	batch := installer.NewBatch(s.Config.Root, fetcher)
	batch.ResolveBundle = s.bundleMembers
	emit(s.Hooks, Event{Phase: "installing", Msg: fmt.Sprintf("%d files", len(tasks))})
	if err := batch.Run(ctx, tasks); err != nil {
		return conflicts, err
	}
	emit(s.Hooks, Event{Phase: "done"})
	return conflicts, nil
}

// Upload runs the upload conflict check for siteName and, if nothing
// critical blocks it, hands every file staged UPLOAD to the uploader
// coordinator.
func (s *Session) Upload(ctx context.Context, siteName string, staged conflict.StagedActions, rescan map[string]conflict.ScanSnapshot, opts UploadOptions) ([]conflict.Conflict, error) {
	site := s.Catalog.FindSite(siteName)
	if site == nil {
		return nil, errs.Wrapf(errs.ErrFileNotFound, "unknown update site %q", siteName)
	}
	if !site.Uploadable() {
		return nil, errs.Wrapf(errs.ErrProtectedLocation, "site %q has no upload transport configured", siteName)
	}

	if err := s.analyzeUploadDependencies(ctx, siteName, staged); err != nil {
		applog.Warn("dependency analysis incomplete", logrus.Fields{"site": siteName, "error": err.Error()})
	}

	conflicts := conflict.DetectUpload(s.Catalog, siteName, staged, rescan)
	if opts.ForgetMissingDependencies {
		conflicts = filterUnresolvedDependency(conflicts)
	}
	if conflict.HasCritical(conflicts) {
		return conflicts, errs.ErrCriticalConflict
	}
	if opts.Simulate {
		return conflicts, nil
	}

	payloads := uploader.StagedPayloads(s.Catalog, siteName, staged, func(f *catalog.File) string {
		return s.Config.Root + "/" + f.LocalFilename
	})
	if len(payloads) == 0 {
		return conflicts, nil
	}

	emit(s.Hooks, Event{Phase: "uploading", Msg: fmt.Sprintf("%d files to %s", len(payloads), siteName)})
	coord := uploader.NewCoordinator(s.Uploaders)
	if err := coord.Upload(ctx, "http", site, s.Catalog, payloads); err != nil {
		return conflicts, err
	}
	applog.Success("upload complete", logrus.Fields{"site": siteName})
	emit(s.Hooks, Event{Phase: "done"})
	return conflicts, nil
}

// analyzeUploadDependencies runs the §4.7 class-file dependency scan over
// every archive staged UPLOAD for siteName, the way FilesCollection's
// analyzeDependencies pass does before a real upload: a freshly-computed
// dependency list, not whatever the catalog happened to already record,
// is what actually ships in the re-serialized catalog.
func (s *Session) analyzeUploadDependencies(ctx context.Context, siteName string, staged conflict.StagedActions) error {
	var jars []string
	for name, action := range staged {
		if action != reconcile.ActionUpload {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(name), ".jar") {
			continue
		}
		jars = append(jars, name)
	}
	if len(jars) == 0 {
		return nil
	}

	groups, err := scanner.Walk(s.Config.Root)
	if err != nil {
		return fmt.Errorf("walk install root for dependency analysis: %w", err)
	}
	var archivePaths []string
	for _, g := range groups {
		if !strings.HasSuffix(strings.ToLower(g.LogicalName), ".jar") {
			continue
		}
		for _, c := range g.Candidates {
			archivePaths = append(archivePaths, c.AbsPath)
		}
	}

	idx, err := depscan.BuildIndex(ctx, archivePaths)
	if err != nil {
		return fmt.Errorf("build dependency index: %w", err)
	}

	for _, name := range jars {
		f, ok := s.Catalog.Get(name)
		if !ok {
			continue
		}
		localPath := s.Config.Root + "/" + f.LocalFilename
		declared := make([]string, 0, len(f.Dependencies))
		for _, d := range f.Dependencies {
			declared = append(declared, d.Filename)
		}
		deps, err := depscan.Analyze(ctx, localPath, f.Filename, idx, declared)
		if err != nil {
			applog.Warn("dependency scan failed", logrus.Fields{"file": f.Filename, "error": err.Error()})
			continue
		}
		analyzed := make([]catalog.Dependency, 0, len(deps))
		for _, dep := range deps {
			analyzed = append(analyzed, catalog.Dependency{Filename: dep})
		}
		f.Dependencies = analyzed
		if f.Current != nil {
			f.Current.Dependencies = analyzed
		}
	}
	return nil
}

// bundleMembers returns an installer.Task for every catalog file currently
// tracked inside the named *.app bundle, regardless of which files were
// actually staged for this run, so Batch.Run force-refreshes the whole
// bundle atomically instead of only the handful of files that changed.
func (s *Session) bundleMembers(bundleName string) []installer.Task {
	var tasks []installer.Task
	prefix := bundleName + "/"
	for _, f := range s.Catalog.All() {
		if !strings.HasPrefix(f.LocalFilename, prefix) {
			continue
		}
		site := s.Catalog.FindSite(f.Site)
		base := ""
		if site != nil {
			base = site.URL
		}
		tasks = append(tasks, installer.Task{File: f, SiteBase: base})
	}
	return tasks
}

func filterUnresolvedDependency(in []conflict.Conflict) []conflict.Conflict {
	out := make([]conflict.Conflict, 0, len(in))
	for _, c := range in {
		if c.Severity == conflict.SeverityError && containsDependencyWording(c.Message) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func containsDependencyWording(msg string) bool {
	return strings.Contains(msg, "depends on") || strings.Contains(msg, "dependencies")
}
