package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plugsite/plugsite/pkg/catalog"
)

// NewShowCmd creates the show command.
func NewShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <files>",
		Short: "Show everything plugsite knows about one or more files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			s, err := loadSession()
			if err != nil {
				return err
			}
			for i, name := range args {
				if i > 0 {
					fmt.Println()
				}
				f, ok := s.Catalog.Get(name)
				if !ok {
					fmt.Printf("%s: not tracked\n", name)
					continue
				}
				showFile(f)
			}
			return nil
		},
	}
}

func showFile(f *catalog.File) {
	fmt.Printf("Filename:    %s\n", f.Filename)
	fmt.Printf("Site:        %s\n", f.Site)
	fmt.Printf("Executable:  %v\n", f.Executable)
	if len(f.Platforms) > 0 {
		fmt.Printf("Platforms:   %v\n", f.Platforms)
	}
	if f.Current != nil {
		fmt.Printf("Current:     %s (%s)\n", f.Current.Checksum, f.Current.Timestamp)
		if len(f.Current.Dependencies) > 0 {
			fmt.Println("Depends on:")
			for _, d := range f.Current.Dependencies {
				tag := ""
				if d.Overrides {
					tag = " (overrides)"
				}
				fmt.Printf("  %s >= %s%s\n", d.Filename, d.Timestamp, tag)
			}
		}
	} else {
		fmt.Println("Current:     (obsolete)")
	}
	if len(f.Previous) > 0 {
		fmt.Printf("Previous versions: %d\n", len(f.Previous))
	}
	if f.LocalDigest != "" {
		fmt.Printf("Local digest: %s (as of %s)\n", f.LocalDigest, f.LocalTimestamp)
	}
	if len(f.OverriddenSites) > 0 {
		fmt.Println("Shadowed entries from:")
		for site := range f.OverriddenSites {
			fmt.Printf("  %s\n", site)
		}
	}
	if f.Warning != "" {
		fmt.Printf("Warning:     %s\n", f.Warning)
	}
}
