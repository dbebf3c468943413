package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plugsite/plugsite/pkg/catalog"
	"github.com/plugsite/plugsite/pkg/reconcile"
)

// NewDiffCmd creates diff.
func NewDiffCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "diff [files]",
		Short: "Show the difference between the local copy and the latest known version",
		RunE: func(_ *cobra.Command, args []string) error {
			s, err := loadSession()
			if err != nil {
				return err
			}
			statusOf, _, _, err := s.Reconcile(context.Background())
			if err != nil {
				return err
			}
			names := args
			if len(names) == 0 {
				for name := range statusOf {
					names = append(names, name)
				}
			}
			for _, name := range sortedKeys(names) {
				f, ok := s.Catalog.Get(name)
				if !ok {
					continue
				}
				printDiff(f, statusOf[name], mode)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "summary", "summary or full: full also lists the latest version's dependencies")
	return cmd
}

func printDiff(f *catalog.File, status reconcile.Status, mode string) {
	fmt.Printf("%s: %s\n", f.Filename, status)
	switch status {
	case reconcile.StatusInstalled, reconcile.StatusNotInstalled, reconcile.StatusLocalOnly:
		return
	}
	if f.Current != nil {
		fmt.Printf("  latest digest:  %s (%s)\n", f.Current.Checksum, f.Current.Timestamp)
	}
	if f.LocalDigest != "" {
		fmt.Printf("  local digest:   %s (%s)\n", f.LocalDigest, f.LocalTimestamp)
	}
	if mode != "full" || f.Current == nil {
		return
	}
	for _, d := range f.Current.Dependencies {
		fmt.Printf("  depends on %s >= %s\n", d.Filename, d.Timestamp)
	}
}
