package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plugsite/plugsite/pkg/catalog"
)

// NewDowngradeCmd creates downgrade.
func NewDowngradeCmd() *cobra.Command {
	var simulate bool
	cmd := &cobra.Command{
		Use:   "downgrade <timestamp> [files]",
		Short: "Roll back files to the newest version at or before the given timestamp",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cutoff := args[0]
			names := args[1:]
			s, err := loadSession()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				for _, f := range s.Catalog.All() {
					names = append(names, f.Filename)
				}
			}
			for _, name := range sortedKeys(names) {
				f, ok := s.Catalog.Get(name)
				if !ok {
					fmt.Printf("%s: not tracked\n", name)
					continue
				}
				if !downgradeOne(f, cutoff) {
					fmt.Printf("%s: no version at or before %s\n", name, cutoff)
					continue
				}
				fmt.Printf("%s: rolled back to %s\n", name, f.Current.Timestamp)
			}
			if simulate {
				return nil
			}
			return s.Save()
		},
	}
	cmd.Flags().BoolVar(&simulate, "simulate", false, "report what would change without persisting it")
	return cmd
}

// downgradeOne rewrites f's Current/Previous split so Current becomes the
// newest version at or before cutoff, pushing every newer version
// (including the prior Current, if any) into Previous. Reports whether a
// qualifying version existed.
func downgradeOne(f *catalog.File, cutoff string) bool {
	all := append([]catalog.Version(nil), f.Previous...)
	if f.Current != nil {
		all = append(all, *f.Current)
	}

	var best *catalog.Version
	var rest []catalog.Version
	for i := range all {
		v := all[i]
		if v.Timestamp <= cutoff && (best == nil || best.Less(v)) {
			if best != nil {
				rest = append(rest, *best)
			}
			best = &v
			continue
		}
		rest = append(rest, v)
	}
	if best == nil {
		return false
	}
	f.Current = best
	f.Previous = rest
	return true
}
