package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xingyunzhou/augment2api/pkg/version"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Current().String())
			return err
		},
	})
}
