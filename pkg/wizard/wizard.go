package wizard

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/xingyunzhou/augment2api/pkg/config"
)

func RunServerWizard(path string, cfg *config.ServerConfig) error {
	return Run(os.Stdin, os.Stdout, path, cfg)
}

// Run asks for each setting on out, reads answers from in and saves the
// result to path. An empty answer keeps the current value.
func Run(r io.Reader, out io.Writer, path string, cfg *config.ServerConfig) error {
	p := prompter{in: bufio.NewScanner(r), out: out}
	fmt.Fprintln(out, "augment2api configuration wizard")
	cfg.ListenAddr = p.ask("Listen address", cfg.ListenAddr)
	cfg.IncomingAPIKeys = splitCSV(p.ask("Incoming API keys (comma-separated, empty for open access)", strings.Join(cfg.IncomingAPIKeys, ",")))
	cfg.StaticDir = p.ask("Static files directory (empty for built-in page)", cfg.StaticDir)

	cfg.Store.Backend = p.ask("Credential store backend (bolt/memory/redis)", cfg.Store.Backend)
	switch strings.ToLower(strings.TrimSpace(cfg.Store.Backend)) {
	case config.StoreBackendBolt:
		cfg.Store.Path = p.ask("  bolt file", cfg.Store.Path)
	case config.StoreBackendRedis:
		cfg.Store.RedisURL = p.ask("  redis url", cfg.Store.RedisURL)
	}

	if v, err := strconv.Atoi(p.ask("Upstream timeout seconds (0 disables)", strconv.Itoa(cfg.Upstream.TimeoutSeconds))); err == nil && v >= 0 {
		cfg.Upstream.TimeoutSeconds = v
	}
	cfg.Metrics.Enabled = yes(p.ask("Expose prometheus metrics? (y/n)", boolStr(cfg.Metrics.Enabled)))

	cfg.TLS.Enabled = yes(p.ask("Enable Let's Encrypt TLS? (y/N)", boolStr(cfg.TLS.Enabled)))
	if cfg.TLS.Enabled {
		cfg.TLS.Domain = p.ask("  TLS domain", cfg.TLS.Domain)
		cfg.TLS.Email = p.ask("  ACME email", cfg.TLS.Email)
		cfg.TLS.CacheDir = p.ask("  ACME cache dir", cfg.TLS.CacheDir)
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	return config.Save(path, cfg)
}

type prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func (p prompter) ask(label, def string) string {
	if def == "" {
		fmt.Fprintf(p.out, "%s: ", label)
	} else {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	}
	if !p.in.Scan() {
		return def
	}
	txt := strings.TrimSpace(p.in.Text())
	if txt == "" {
		return def
	}
	return txt
}

func yes(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "y", "yes", "true":
		return true
	}
	return false
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	seen := map[string]struct{}{}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func boolStr(v bool) string {
	if v {
		return "y"
	}
	return "n"
}
