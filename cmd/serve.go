package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xingyunzhou/augment2api/pkg/config"
	"github.com/xingyunzhou/augment2api/pkg/logutil"
	"github.com/xingyunzhou/augment2api/pkg/proxy"
)

var (
	serveConfigPath         string
	serveListenAddrOverride string
	serveStaticDirOverride  string
	serveStoreBackend       string
)

// loadConfig reads the config file, falling back to defaults when it does not
// exist, and applies the command line overrides.
func loadConfig(cmd *cobra.Command, path string) (*config.ServerConfig, error) {
	cfg, found, err := config.LoadServerConfigOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load server config: %w", err)
	}
	if !found {
		slog.Warn("no config file, using defaults", "path", path)
	}
	flags := cmd.Flags()
	if flags.Changed("listen-addr") {
		cfg.ListenAddr = serveListenAddrOverride
	}
	if flags.Changed("static-dir") {
		cfg.StaticDir = serveStaticDirOverride
	}
	if flags.Changed("store") {
		cfg.Store.Backend = serveStoreBackend
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cmd.Flags().Changed("loglevel") {
		if err := logutil.Configure(cfg.LogLevel); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, serveConfigPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := proxy.NewServer(ctx, cfg)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}
			defer srv.Close()
			return srv.Run(ctx)
		},
	}
	serveCmd.Flags().StringVar(&serveConfigPath, "config", config.DefaultServerConfigPath(), "Server config TOML path")
	serveCmd.Flags().StringVar(&serveListenAddrOverride, "listen-addr", "", "Override listen address from config (e.g. 127.0.0.1:4242)")
	serveCmd.Flags().StringVar(&serveStaticDirOverride, "static-dir", "", "Serve unmatched paths from this directory instead of the built-in page")
	serveCmd.Flags().StringVar(&serveStoreBackend, "store", "", "Override credential store backend (bolt, memory, redis)")
	rootCmd.AddCommand(serveCmd)
}
