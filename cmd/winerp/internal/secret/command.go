package secret

import (
	"fmt"

	"github.com/spf13/cobra"

	"winerp/server"
)

func NewHashSecretCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "hash-secret SECRET",
		Short:   "Print the bcrypt hash to use as WINERP_SERVER_SECRET_HASH",
		Example: "winerp hash-secret s3cret",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := server.HashSecret(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
