package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"winerp/cmd/winerp/internal"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Aliases: []string{"v"},
		Short:   "Show version information",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "winerp %s\n", internal.FormatVersion())
		},
	}
}
