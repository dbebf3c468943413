package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/plugsite/plugsite/internal/cli"
)

var (
	configPath   string
	verbose      bool
	noColor      bool
	outputFormat string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}

	cancel()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugsite",
		Short: "A package manager for a plugin-based desktop application",
		Long: `plugsite reconciles a local plugin installation against one or more
update sites: it tracks what's installed, what's available, and what
shadows what, then installs, updates, removes, or uploads files on
command.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: auto-detect)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	cmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format (json, yaml, table)")

	cli.ConfigPath = &configPath
	cli.Verbose = &verbose
	cli.NoColor = &noColor
	cli.OutputFormat = &outputFormat

	cmd.AddCommand(cli.NewListCmd())
	cmd.AddCommand(cli.NewListVariantCmds()...)
	cmd.AddCommand(
		cli.NewListFromSiteCmd(),
		cli.NewShowCmd(),
		cli.NewUpdateCmd(),
		cli.NewUpdateForceCmd(),
		cli.NewUpdateForcePristineCmd(),
		cli.NewUploadCmd(),
		cli.NewUploadCompleteSiteCmd(),
		cli.NewListUpdateSitesCmd(),
		cli.NewAddUpdateSiteCmd(),
		cli.NewAddUpdateSitesCmd(),
		cli.NewEditUpdateSiteCmd(),
		cli.NewRemoveUpdateSiteCmd(),
		cli.NewDeactivateUpdateSiteCmd(),
		cli.NewRefreshUpdateSitesCmd(),
		cli.NewDiffCmd(),
		cli.NewHistoryCmd(),
		cli.NewDowngradeCmd(),
		cli.NewRevertUnrealChangesCmd(),
		cli.NewVersionCmd(),
	)

	return cmd
}
