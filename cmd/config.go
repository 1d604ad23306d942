package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xingyunzhou/augment2api/pkg/config"
	"github.com/xingyunzhou/augment2api/pkg/wizard"
)

var configServerPath string

func init() {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Run the configuration wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, found, err := config.LoadServerConfigOrDefault(configServerPath)
			if err != nil {
				return fmt.Errorf("load server config: %w", err)
			}
			if !found {
				fmt.Fprintf(cmd.OutOrStdout(), "No config at %s yet, starting from defaults.\n", configServerPath)
			}
			return wizard.Run(cmd.InOrStdin(), cmd.OutOrStdout(), configServerPath, cfg)
		},
	}
	configCmd.Flags().StringVar(&configServerPath, "config", config.DefaultServerConfigPath(), "Server config TOML path")
	rootCmd.AddCommand(configCmd)
}
