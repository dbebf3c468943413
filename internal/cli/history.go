package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewHistoryCmd creates history.
func NewHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history [files]",
		Short: "Show every known version of one or more files, oldest first",
		RunE: func(_ *cobra.Command, args []string) error {
			s, err := loadSession()
			if err != nil {
				return err
			}
			names := args
			if len(names) == 0 {
				for _, f := range s.Catalog.All() {
					names = append(names, f.Filename)
				}
			}
			for i, name := range sortedKeys(names) {
				if i > 0 {
					fmt.Println()
				}
				f, ok := s.Catalog.Get(name)
				if !ok {
					fmt.Printf("%s: not tracked\n", name)
					continue
				}
				fmt.Printf("%s\n", f.Filename)
				for _, v := range f.Previous {
					fmt.Printf("  %s  %s\n", v.Timestamp, v.Checksum)
				}
				if f.Current != nil {
					fmt.Printf("  %s  %s  (current)\n", f.Current.Timestamp, f.Current.Checksum)
				} else {
					fmt.Println("  (obsolete)")
				}
			}
			return nil
		},
	}
}
