package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/xingyunzhou/augment2api/pkg/logutil"
)

var (
	logLevel  string
	logFormat string
	envFile   string
)

var rootCmd = &cobra.Command{
	Use:   "augment2api",
	Short: "OpenAI-compatible gateway for the Augment chat API",
	Long:  "augment2api accepts OpenAI chat-completion requests, relays them to an Augment tenant using pooled OAuth tokens and streams the answer back.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)
	rootCmd.SilenceUsage = true
	rootCmd.PersistentFlags().StringVar(&logLevel, "loglevel", "", "Log level (trace, debug, info, warn, error, fatal); defaults to the config value")
	rootCmd.PersistentFlags().StringVar(&logFormat, "logformat", "text", "Log format (text, json, logfmt)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before config")
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		if err := logutil.SetFormatter(logFormat); err != nil {
			return err
		}
		if err := logutil.Configure(logLevel); err != nil {
			return err
		}
		return nil
	}
}
