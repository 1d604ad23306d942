package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xingyunzhou/augment2api/pkg/config"
	"github.com/xingyunzhou/augment2api/pkg/credstore"
)

// tokensLockTimeout bounds how long the offline commands wait for the bolt
// file held by a running server.
const tokensLockTimeout = 250 * time.Millisecond

var tokensConfigPath string

func openPool(cmd *cobra.Command) (*credstore.Pool, func(), error) {
	cfg, _, err := config.LoadServerConfigOrDefault(tokensConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load server config: %w", err)
	}
	return openPoolFor(cmd, cfg.Store)
}

func openPoolFor(cmd *cobra.Command, sc config.StoreConfig) (*credstore.Pool, func(), error) {
	if sc.Backend == config.StoreBackendMemory {
		return nil, nil, fmt.Errorf("store backend %q keeps no tokens between runs", sc.Backend)
	}
	store, err := credstore.OpenWithLockTimeout(cmd.Context(), sc, tokensLockTimeout)
	if errors.Is(err, credstore.ErrStoreLocked) {
		return nil, nil, fmt.Errorf("%w; stop the server or use its /getTokens and /deleteToken endpoints", err)
	}
	if err != nil {
		return nil, nil, err
	}
	return credstore.NewPool(store), func() { _ = store.Close() }, nil
}

func init() {
	tokensCmd := &cobra.Command{
		Use:   "tokens",
		Short: "Manage pooled upstream tokens",
		Long:  "Manage pooled upstream tokens directly in the store. With the bolt backend the server must be stopped first.",
	}
	tokensCmd.PersistentFlags().StringVar(&tokensConfigPath, "config", config.DefaultServerConfigPath(), "Server config TOML path")

	tokensCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List pooled tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, closeFn, err := openPool(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			tokens, err := pool.Tokens(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TOKEN\tTENANT\tCREATED")
			for _, t := range tokens {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", maskToken(t.Token), t.TenantURL, time.UnixMilli(t.CreatedAt).Format(time.RFC3339))
			}
			return tw.Flush()
		},
	})

	tokensCmd.AddCommand(&cobra.Command{
		Use:   "delete <token>",
		Short: "Remove a token from the pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, closeFn, err := openPool(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			return pool.DeleteToken(cmd.Context(), args[0])
		},
	})

	tokensCmd.AddCommand(&cobra.Command{
		Use:   "export <file>",
		Short: "Write all pooled tokens to a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, closeFn, err := openPool(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			n, err := pool.ExportTokens(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d token(s)\n", n)
			return nil
		},
	})

	tokensCmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Add tokens from a JSON export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, closeFn, err := openPool(cmd)
			if err != nil {
				return err
			}
			defer closeFn()
			n, err := pool.ImportTokens(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d token(s)\n", n)
			return nil
		},
	})

	rootCmd.AddCommand(tokensCmd)
}

func maskToken(t string) string {
	if len(t) <= 8 {
		return "****"
	}
	return t[:4] + "…" + t[len(t)-4:]
}
