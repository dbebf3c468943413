package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plugsite/plugsite/pkg/reconcile"
)

// NewRevertUnrealChangesCmd creates revert-unreal-changes.
//
// The source program ships a bespoke .dll comparator that ignores
// timestamp ranges, checksums, and an embedded debug GUID to decide
// whether a changed Windows shared library is functionally identical to
// the version plugsite knows about. This build omits that comparator and
// falls back to the digest equality reconcile.Compute already performs
// (including its legacy-digest fallbacks), so a file only reports as an
// unreal change here if re-scanning resolves it to StatusInstalled.
func NewRevertUnrealChangesCmd() *cobra.Command {
	var simulate bool
	cmd := &cobra.Command{
		Use:   "revert-unreal-changes [files]",
		Short: "Re-verify files flagged as modified and drop the flag where the content actually matches",
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

			resolved := 0
			for _, name := range sortedKeys(names) {
				status, ok := statusOf[name]
				if !ok || status != reconcile.StatusInstalled {
					continue
				}
				f, ok := s.Catalog.Get(name)
				if !ok || f.Warning == "" {
					continue
				}
				f.Warning = ""
				resolved++
				fmt.Printf("%s: local copy matches a known digest, clearing warning\n", name)
			}
			if resolved == 0 {
				fmt.Println("no unreal changes found")
			}
			if simulate {
				return nil
			}
			return s.Save()
		},
	}
	cmd.Flags().BoolVar(&simulate, "simulate", false, "report without persisting the cleared warnings")
	return cmd
}
