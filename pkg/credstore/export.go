package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const exportVersion = 1

var ErrUnsupportedExport = errors.New("credstore: unsupported token export")

// Export is the file format written by `tokens export`.
type Export struct {
	Version    int           `json:"version"`
	ExportedAt int64         `json:"exported_at"`
	Tokens     []TokenRecord `json:"tokens"`
}

// ExportTokens writes every pooled token to path. The file is replaced
// atomically and readable only by the owner, since it holds bearer tokens.
func (p *Pool) ExportTokens(ctx context.Context, path string) (int, error) {
	tokens, err := p.Tokens(ctx)
	if err != nil {
		return 0, err
	}
	b, err := json.MarshalIndent(Export{
		Version:    exportVersion,
		ExportedAt: p.now().UnixMilli(),
		Tokens:     tokens,
	}, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encode token export: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return 0, fmt.Errorf("create export dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return 0, fmt.Errorf("write token export: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("replace token export: %w", err)
	}
	return len(tokens), nil
}

// ImportTokens adds every token from an export file. Records keep their
// original created_at. On error the count of tokens already added is
// returned alongside it.
func (p *Pool) ImportTokens(ctx context.Context, path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read token export: %w", err)
	}
	var in Export
	if err := json.Unmarshal(b, &in); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedExport, err)
	}
	if in.Version != exportVersion {
		return 0, fmt.Errorf("%w: version %d", ErrUnsupportedExport, in.Version)
	}
	for i, rec := range in.Tokens {
		if err := p.AddToken(ctx, rec); err != nil {
			return i, fmt.Errorf("import token %d: %w", i, err)
		}
	}
	return len(in.Tokens), nil
}
