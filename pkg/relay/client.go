// Package relay calls the upstream chat-stream endpoint and re-frames its
// NDJSON output as OpenAI responses.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xingyunzhou/augment2api/pkg/config"
	"github.com/xingyunzhou/augment2api/pkg/credstore"
	"github.com/xingyunzhou/augment2api/pkg/translate"
)

// CallError is an upstream call that produced no usable stream. Status is
// zero for transport failures.
type CallError struct {
	Status int
	Err    error
}

func (e *CallError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("upstream returned status %d", e.Status)
	}
	if e.Err != nil {
		return "upstream call failed: " + e.Err.Error()
	}
	return "upstream call failed"
}

func (e *CallError) Unwrap() error { return e.Err }

type Client struct {
	HTTP       *http.Client
	UserAgents []string
	APIVersion string
	// Pick chooses an index in [0,n); rand.IntN when nil.
	Pick func(n int) int
}

func NewClient(cfg config.UpstreamConfig) *Client {
	c := &Client{
		UserAgents: append([]string(nil), cfg.UserAgents...),
		APIVersion: cfg.APIVersion,
	}
	c.HTTP = &http.Client{
		Timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
		Transport: c.wrapRoundTripper(http.DefaultTransport),
	}
	return c
}

func (c *Client) wrapRoundTripper(base http.RoundTripper) http.RoundTripper {
	return upstreamHeaderRoundTripper{Base: base, client: c}
}

type upstreamHeaderRoundTripper struct {
	Base   http.RoundTripper
	client *Client
}

// RoundTrip stamps the client identification headers on every call.
func (rt upstreamHeaderRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	base := rt.Base
	if base == nil {
		base = http.DefaultTransport
	}
	out := req.Clone(req.Context())
	out.Header = req.Header.Clone()
	if ua := rt.client.userAgent(); ua != "" {
		out.Header.Set("User-Agent", ua)
	}
	if v := strings.TrimSpace(rt.client.APIVersion); v != "" {
		out.Header.Set("x-api-version", v)
	}
	out.Header.Set("x-request-id", uuid.NewString())
	out.Header.Set("x-request-session-id", uuid.NewString())
	return base.RoundTrip(out)
}

func (c *Client) userAgent() string {
	if len(c.UserAgents) == 0 {
		return ""
	}
	pick := c.Pick
	if pick == nil {
		pick = rand.IntN
	}
	return c.UserAgents[pick(len(c.UserAgents))]
}

// ChatStream posts req to {tenant}chat-stream and returns the raw body. The
// caller closes it.
func (c *Client) ChatStream(ctx context.Context, tok credstore.TokenRecord, req translate.UpstreamRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode upstream request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, tok.TenantURL+"chat-stream", bytes.NewReader(body))
	if err != nil {
		return nil, &CallError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+tok.Token)

	hc := c.HTTP
	if hc == nil {
		hc = &http.Client{Transport: c.wrapRoundTripper(http.DefaultTransport)}
	}
	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, &CallError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		return nil, &CallError{Status: resp.StatusCode}
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, &CallError{Err: fmt.Errorf("empty response body")}
	}
	return resp.Body, nil
}
