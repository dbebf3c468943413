package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plugsite/plugsite/pkg/orchestrator"
)

// NewUpdateCmd creates update.
func NewUpdateCmd() *cobra.Command {
	var simulate bool
	cmd := &cobra.Command{
		Use:   "update [files]",
		Short: "Install, upgrade, or remove files per the default reconciliation plan",
		RunE: func(_ *cobra.Command, args []string) error {
			return runUpdate(args, false, false, simulate)
		},
	}
	cmd.Flags().BoolVar(&simulate, "simulate", false, "report what would change without touching disk")
	return cmd
}

// NewUpdateForceCmd creates update-force.
func NewUpdateForceCmd() *cobra.Command {
	var simulate bool
	cmd := &cobra.Command{
		Use:   "update-force [files]",
		Short: "Update, overriding any previously staged action with the cascade preference",
		RunE: func(_ *cobra.Command, args []string) error {
			return runUpdate(args, true, false, simulate)
		},
	}
	cmd.Flags().BoolVar(&simulate, "simulate", false, "report what would change without touching disk")
	return cmd
}

// NewUpdateForcePristineCmd creates update-force-pristine.
func NewUpdateForcePristineCmd() *cobra.Command {
	var simulate bool
	cmd := &cobra.Command{
		Use:   "update-force-pristine [files]",
		Short: "Update like update-force, additionally removing every obsolete local file",
		RunE: func(_ *cobra.Command, args []string) error {
			return runUpdate(args, true, true, simulate)
		},
	}
	cmd.Flags().BoolVar(&simulate, "simulate", false, "report what would change without touching disk")
	return cmd
}

func runUpdate(filenames []string, force, removeObsolete, simulate bool) error {
	s, err := loadSession()
	if err != nil {
		return err
	}
	statusOf, _, _, err := s.Reconcile(context.Background())
	if err != nil {
		return err
	}
	staged := s.Plan(statusOf, filenames, force)

	conflicts, err := s.Update(context.Background(), statusOf, staged, orchestrator.UpdateOptions{
		Simulate:       simulate,
		Force:          force,
		RemoveObsolete: removeObsolete,
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
}
