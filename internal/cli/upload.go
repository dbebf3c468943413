package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plugsite/plugsite/pkg/catalog"
	"github.com/plugsite/plugsite/pkg/conflict"
	"github.com/plugsite/plugsite/pkg/orchestrator"
	"github.com/plugsite/plugsite/pkg/platform"
	"github.com/plugsite/plugsite/pkg/reconcile"
)

// NewUploadCmd creates upload.
func NewUploadCmd() *cobra.Command {
	var simulate, forceShadow, forgetMissingDeps bool
	var site string
	cmd := &cobra.Command{
		Use:   "upload <files>",
		Short: "Upload the named files to an update site",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			s, err := loadSession()
			if err != nil {
				return err
			}
			if site == "" {
				return fmt.Errorf("--update-site is required")
			}
			staged := conflict.StagedActions{}
			rescan := map[string]conflict.ScanSnapshot{}
			for _, name := range args {
				f, ok := s.Catalog.Get(name)
				if !ok {
					return fmt.Errorf("unknown file %q", name)
				}
				staged[name] = reconcile.ActionUpload
				rescan[name] = conflict.ScanSnapshot{Digest: f.LocalDigest, Timestamp: f.LocalTimestamp}
			}

			conflicts, err := s.Upload(context.Background(), site, staged, rescan, orchestrator.UploadOptions{
				Simulate:                  simulate,
				ForceShadow:               forceShadow,
				ForgetMissingDependencies: forgetMissingDeps,
			})
			for _, c := range conflicts {
				fmt.Printf("[%s] %s: %s\n", c.Severity, c.Filename, c.Message)
			}
			if err != nil {
				return err
			}
			if simulate {
				return nil
			}
			return s.Save()
		},
	}
	cmd.Flags().StringVar(&site, "update-site", "", "name of the update site to upload to")
	cmd.Flags().BoolVar(&simulate, "simulate", false, "report what would be uploaded without transferring anything")
	cmd.Flags().BoolVar(&forceShadow, "force-shadow", false, "upload even though another site already shadows this entry")
	cmd.Flags().BoolVar(&forgetMissingDeps, "forget-missing-dependencies", false, "ignore unresolved-dependency conflicts")
	return cmd
}

// NewUploadCompleteSiteCmd creates upload-complete-site.
func NewUploadCompleteSiteCmd() *cobra.Command {
	var simulate, force, forceShadow bool
	var platforms []string
	cmd := &cobra.Command{
		Use:   "upload-complete-site <site>",
		Short: "Upload every local file the named site owns, as a consistent snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			siteName := args[0]
			s, err := loadSession()
			if err != nil {
				return err
			}
			statusOf, _, _, err := s.Reconcile(context.Background())
			if err != nil {
				return err
			}

			staged := conflict.StagedActions{}
			rescan := map[string]conflict.ScanSnapshot{}
			for _, f := range s.Catalog.SiteFiles(siteName) {
				if len(platforms) > 0 && !fileMatchesAny(f, platforms) {
					continue
				}
				status := statusOf[f.Filename]
				if !force && status != reconcile.StatusModified && status != reconcile.StatusLocalOnly {
					continue
				}
				staged[f.Filename] = reconcile.ActionUpload
				rescan[f.Filename] = conflict.ScanSnapshot{Digest: f.LocalDigest, Timestamp: f.LocalTimestamp}
			}
			if len(staged) == 0 {
				fmt.Println("nothing to upload: every file is already current on", siteName)
				return nil
			}

			conflicts, err := s.Upload(context.Background(), siteName, staged, rescan, orchestrator.UploadOptions{
				Simulate:    simulate,
				ForceShadow: forceShadow,
			})
			for _, c := range conflicts {
				fmt.Printf("[%s] %s: %s\n", c.Severity, c.Filename, c.Message)
			}
			if err != nil {
				return err
			}
			if simulate {
				return nil
			}
			return s.Save()
		},
	}
	cmd.Flags().BoolVar(&simulate, "simulate", false, "report what would be uploaded without transferring anything")
	cmd.Flags().BoolVar(&force, "force", false, "upload every owned file regardless of status")
	cmd.Flags().BoolVar(&forceShadow, "force-shadow", false, "upload even though another site already shadows an entry")
	cmd.Flags().StringSliceVar(&platforms, "platforms", nil, "restrict to files whose platform list names one of these tags (files with no platform list are skipped)")
	return cmd
}

func fileMatchesAny(f *catalog.File, tags []string) bool {
	for _, t := range tags {
		for _, p := range f.Platforms {
			if p == platform.Tag(t) {
				return true
			}
		}
	}
	return false
}
