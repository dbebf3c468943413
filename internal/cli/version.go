package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// BuildVersion is set by the linker at release build time via -ldflags.
var BuildVersion = "dev"

// NewVersionCmd creates version.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the plugsite version",
		RunE: func(_ *cobra.Command, _ []string) error {
			fmt.Println("plugsite", BuildVersion)
			return nil
		},
	}
}
