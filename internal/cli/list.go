package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/plugsite/plugsite/pkg/catalog"
	"github.com/plugsite/plugsite/pkg/reconcile"
)

type listedFile struct {
	Filename string `json:"filename" yaml:"filename"`
	Status   string `json:"status" yaml:"status"`
	Site     string `json:"site" yaml:"site"`
}

// NewListCmd creates the unfiltered list command, per §6's CLI surface.
// The status-filtered list-* siblings come from NewListVariantCmds.
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [files]",
		Short: "List tracked files and their status",
		Long:  "List every file plugsite tracks, or only the named ones, with its current status.",
		RunE: func(_ *cobra.Command, args []string) error {
			return runList(args, func(reconcile.Status, *catalog.File) bool { return true })
		},
	}
	return cmd
}

// NewListVariantCmds returns the status-filtered list-* commands
// (list-current, list-uptodate, list-not-uptodate, list-updateable,
// list-modified, list-local-only, list-shadowed).
func NewListVariantCmds() []*cobra.Command {
	variants := []struct {
		use, short string
		pred       func(reconcile.Status, *catalog.File) bool
	}{
		{"list-current", "List files at their current version", func(s reconcile.Status, _ *catalog.File) bool {
			return s == reconcile.StatusInstalled || s == reconcile.StatusUpdateable || s == reconcile.StatusModified
		}},
		{"list-uptodate", "List files whose local copy matches the latest version", func(s reconcile.Status, _ *catalog.File) bool {
			return s == reconcile.StatusInstalled
		}},
		{"list-not-uptodate", "List files whose local copy does not match the latest version", func(s reconcile.Status, _ *catalog.File) bool {
			return s != reconcile.StatusInstalled && s != reconcile.StatusLocalOnly
		}},
		{"list-updateable", "List files with a newer version available", func(s reconcile.Status, _ *catalog.File) bool {
			return s == reconcile.StatusUpdateable
		}},
		{"list-modified", "List files modified locally since their last known version", func(s reconcile.Status, _ *catalog.File) bool {
			return s == reconcile.StatusModified || s == reconcile.StatusObsoleteModified
		}},
		{"list-local-only", "List files present locally but unknown to any update site", func(s reconcile.Status, _ *catalog.File) bool {
			return s == reconcile.StatusLocalOnly
		}},
		{"list-shadowed", "List files shadowed by a higher-rank update site", func(_ reconcile.Status, f *catalog.File) bool {
			return f != nil && len(f.OverriddenSites) > 0
		}},
	}

	out := make([]*cobra.Command, 0, len(variants))
	for _, v := range variants {
		v := v
		out = append(out, &cobra.Command{
			Use:   v.use + " [files]",
			Short: v.short,
			RunE: func(_ *cobra.Command, args []string) error {
				return runList(args, v.pred)
			},
		})
	}
	return out
}

// NewListFromSiteCmd creates list-from-site.
func NewListFromSiteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-from-site <name>",
		Short: "List every file owned by the named update site",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			s, err := loadSession()
			if err != nil {
				return err
			}
			files := s.Catalog.SiteFiles(args[0])
			rows := make([][]string, 0, len(files))
			records := make([]listedFile, 0, len(files))
			for _, f := range files {
				rows = append(rows, []string{f.Filename, string(statusLabel(f)), f.Site})
				records = append(records, listedFile{Filename: f.Filename, Status: statusLabel(f), Site: f.Site})
			}
			renderRows([]string{"FILENAME", "STATUS", "SITE"}, rows, records)
			return nil
		},
	}
}

func statusLabel(f *catalog.File) string {
	if f.Current == nil {
		return "obsolete"
	}
	return "current"
}

func runList(filenames []string, pred func(reconcile.Status, *catalog.File) bool) error {
	s, err := loadSession()
	if err != nil {
		return err
	}
	statusOf, _, _, err := s.Reconcile(context.Background())
	if err != nil {
		return err
	}

	names := filenames
	if len(names) == 0 {
		for name := range statusOf {
			names = append(names, name)
		}
	}

	rows := make([][]string, 0, len(names))
	records := make([]listedFile, 0, len(names))
	for _, name := range sortedKeys(names) {
		status, ok := statusOf[name]
		if !ok {
			continue
		}
		f, _ := s.Catalog.Get(name)
		if !pred(status, f) {
			continue
		}
		site := ""
		if f != nil {
			site = f.Site
		}
		rows = append(rows, []string{name, string(status), site})
		records = append(records, listedFile{Filename: name, Status: string(status), Site: site})
	}
	renderRows([]string{"FILENAME", "STATUS", "SITE"}, rows, records)
	return nil
}
