package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plugsite/plugsite/pkg/config"
	"github.com/plugsite/plugsite/pkg/orchestrator"
)

type siteRow struct {
	Name   string `json:"name" yaml:"name"`
	URL    string `json:"url" yaml:"url"`
	Rank   int    `json:"rank" yaml:"rank"`
	Active bool   `json:"active" yaml:"active"`
}

// NewListUpdateSitesCmd creates list-update-sites.
func NewListUpdateSitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-update-sites",
		Short: "List every configured update site",
		RunE: func(_ *cobra.Command, _ []string) error {
			s, err := loadSession()
			if err != nil {
				return err
			}
			sites := append([]*config.SiteConfig(nil), s.Config.Sites...)
			rows := make([][]string, 0, len(sites))
			records := make([]siteRow, 0, len(sites))
			for _, site := range sites {
				rows = append(rows, []string{site.Name, site.URL, fmt.Sprintf("%d", site.Rank), fmt.Sprintf("%v", site.Active)})
				records = append(records, siteRow{Name: site.Name, URL: site.URL, Rank: site.Rank, Active: site.Active})
			}
			renderRows([]string{"NAME", "URL", "RANK", "ACTIVE"}, rows, records)
			return nil
		},
	}
}

// NewAddUpdateSiteCmd creates add-update-site.
func NewAddUpdateSiteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-update-site <name> <url> [<host> <dir>]",
		Short: "Register a new update site",
		Args:  cobra.RangeArgs(2, 4),
		RunE: func(_ *cobra.Command, args []string) error {
			s, err := loadSession()
			if err != nil {
				return err
			}
			site := &config.SiteConfig{Name: args[0], URL: args[1], Active: true, Rank: s.Config.NextRank()}
			if len(args) >= 4 {
				site.Host = args[2]
				site.UploadDir = args[3]
			}
			s.Config.Sites = append(s.Config.Sites, site)
			if err := s.Config.Validate(); err != nil {
				return err
			}
			return saveConfig(s)
		},
	}
}

// NewAddUpdateSitesCmd creates add-update-sites, registering several
// name/url pairs in one call.
func NewAddUpdateSitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-update-sites <n1> <u1> [<n2> <u2> ...]",
		Short: "Register several update sites at once",
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 || len(args)%2 != 0 {
				return fmt.Errorf("expected an even number of name/url arguments")
			}
			return nil
		},
		RunE: func(_ *cobra.Command, args []string) error {
			s, err := loadSession()
			if err != nil {
				return err
			}
			for i := 0; i < len(args); i += 2 {
				s.Config.Sites = append(s.Config.Sites, &config.SiteConfig{
					Name: args[i], URL: args[i+1], Active: true, Rank: s.Config.NextRank(),
				})
			}
			if err := s.Config.Validate(); err != nil {
				return err
			}
			return saveConfig(s)
		},
	}
}

// NewEditUpdateSiteCmd creates edit-update-site.
func NewEditUpdateSiteCmd() *cobra.Command {
	var url, host, dir string
	cmd := &cobra.Command{
		Use:   "edit-update-site <name>",
		Short: "Edit an existing update site's URL or upload coordinates",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			s, err := loadSession()
			if err != nil {
				return err
			}
			site := s.Config.FindSite(args[0])
			if site == nil {
				return fmt.Errorf("unknown update site %q", args[0])
			}
			if url != "" {
				site.URL = url
			}
			if host != "" {
				site.Host = host
			}
			if dir != "" {
				site.UploadDir = dir
			}
			return saveConfig(s)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "new catalog URL")
	cmd.Flags().StringVar(&host, "host", "", "new upload transport host")
	cmd.Flags().StringVar(&dir, "upload-dir", "", "new upload transport directory")
	return cmd
}

// NewRemoveUpdateSiteCmd creates remove-update-site.
func NewRemoveUpdateSiteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-update-site <name>...",
		Short: "Remove one or more update sites",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			s, err := loadSession()
			if err != nil {
				return err
			}
			remove := make(map[string]bool, len(args))
			for _, name := range args {
				remove[name] = true
			}
			kept := make([]*config.SiteConfig, 0, len(s.Config.Sites))
			for _, site := range s.Config.Sites {
				if !remove[site.Name] {
					kept = append(kept, site)
				}
			}
			s.Config.Sites = kept
			return saveConfig(s)
		},
	}
}

// NewDeactivateUpdateSiteCmd creates deactivate-update-site.
func NewDeactivateUpdateSiteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate-update-site <name>...",
		Short: "Deactivate one or more update sites without forgetting them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			s, err := loadSession()
			if err != nil {
				return err
			}
			for _, name := range args {
				site := s.Config.FindSite(name)
				if site == nil {
					return fmt.Errorf("unknown update site %q", name)
				}
				site.Active = false
			}
			return saveConfig(s)
		},
	}
}

// NewRefreshUpdateSitesCmd creates refresh-update-sites.
func NewRefreshUpdateSitesCmd() *cobra.Command {
	var simulate, updateAll bool
	cmd := &cobra.Command{
		Use:   "refresh-update-sites",
		Short: "Re-fetch and re-merge every active update site's catalog",
		RunE: func(_ *cobra.Command, _ []string) error {
			s, err := loadSession()
			if err != nil {
				return err
			}
			if err := s.Refresh(context.Background(), orchestrator.RefreshOptions{UpdateAll: updateAll, Simulate: simulate}); err != nil {
				return err
			}
			if simulate {
				return nil
			}
			return s.Save()
		},
	}
	cmd.Flags().BoolVar(&simulate, "simulate", false, "fetch and merge but do not persist the result")
	cmd.Flags().BoolVar(&updateAll, "updateall", false, "re-fetch even sites whose last-known timestamp has not changed")
	return cmd
}

func saveConfig(s *orchestrator.Session) error {
	path := ""
	if ConfigPath != nil {
		path = *ConfigPath
	}
	if path == "" {
		var err error
		path, err = config.GetDefaultConfigPath()
		if err != nil {
			return err
		}
	}
	return s.Config.Save(path)
}
