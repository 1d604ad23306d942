package oauth

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/xingyunzhou/augment2api/pkg/credstore"
)

var (
	ErrMissingInput          = errors.New("code, state and tenant_url are required")
	ErrExpiredOrUnknownState = errors.New("oauth state expired or unknown, restart authorization")
)

// ExchangeError reports a failed call to the tenant token endpoint. Status is
// zero when no response was received.
type ExchangeError struct {
	Status  int
	Message string
	Err     error
}

func (e *ExchangeError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("token exchange failed: status %d: %s", e.Status, e.Message)
	}
	if e.Err != nil {
		return "token exchange failed: " + e.Err.Error()
	}
	return "token exchange failed: " + e.Message
}

func (e *ExchangeError) Unwrap() error { return e.Err }

type Exchanger struct {
	Pool         *credstore.Pool
	HTTPClient   *http.Client
	AuthorizeURL string
	ClientID     string
	StateTTL     time.Duration
	Rand         io.Reader
	Now          func() time.Time
	// OnResult, when set, observes every Complete outcome ("success", "error").
	OnResult func(result string)
}

func (x *Exchanger) now() time.Time {
	if x.Now != nil {
		return x.Now()
	}
	return time.Now()
}

func (x *Exchanger) client() *http.Client {
	if x.HTTPClient != nil {
		return x.HTTPClient
	}
	return http.DefaultClient
}

// Begin creates a PKCE state, stages its verifier and returns the URL the
// user must visit.
func (x *Exchanger) Begin(ctx context.Context) (string, State, error) {
	r := x.Rand
	if r == nil {
		r = rand.Reader
	}
	st, err := NewState(r, x.now())
	if err != nil {
		return "", State{}, err
	}
	authURL, err := AuthorizeURL(x.AuthorizeURL, x.ClientID, st)
	if err != nil {
		return "", State{}, err
	}
	if err := x.Pool.StageVerifier(ctx, st.State, st.CodeVerifier, x.StateTTL); err != nil {
		return "", State{}, err
	}
	return authURL, st, nil
}

// Complete trades code for an access token and stores it in the pool.
func (x *Exchanger) Complete(ctx context.Context, tenantURL, state, code string) (token string, err error) {
	defer func() {
		if x.OnResult == nil {
			return
		}
		if err != nil {
			x.OnResult("error")
		} else {
			x.OnResult("success")
		}
	}()
	tenantURL = strings.TrimSpace(tenantURL)
	state = strings.TrimSpace(state)
	code = strings.TrimSpace(code)
	if tenantURL == "" || state == "" || code == "" {
		return "", ErrMissingInput
	}
	if !strings.HasSuffix(tenantURL, "/") {
		tenantURL += "/"
	}
	if !credstore.ValidTenantURL(tenantURL) {
		return "", fmt.Errorf("%w: %q", credstore.ErrInvalidTenantURL, tenantURL)
	}

	verifier, err := x.Pool.ConsumeVerifier(ctx, state)
	if errors.Is(err, credstore.ErrUnknownState) {
		return "", ErrExpiredOrUnknownState
	}
	if err != nil {
		return "", err
	}

	token, err = x.exchange(ctx, tenantURL, verifier, code)
	if err != nil {
		slog.Warn("oauth token exchange failed", "tenant_url", tenantURL, "error", err)
		return "", err
	}
	rec := credstore.TokenRecord{Token: token, TenantURL: tenantURL, CreatedAt: x.now().UnixMilli()}
	if err := x.Pool.AddToken(ctx, rec); err != nil {
		return "", err
	}
	slog.Info("stored upstream token", "tenant_url", tenantURL)
	return token, nil
}

func (x *Exchanger) exchange(ctx context.Context, tenantURL, verifier, code string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     x.ClientID,
		"code_verifier": verifier,
		"redirect_uri":  "",
		"code":          code,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tenantURL+"token", bytes.NewReader(body))
	if err != nil {
		return "", &ExchangeError{Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := x.client().Do(req)
	if err != nil {
		return "", &ExchangeError{Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &ExchangeError{Status: resp.StatusCode, Message: "read response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &ExchangeError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	if !gjson.ValidBytes(raw) {
		return "", &ExchangeError{Status: resp.StatusCode, Message: "response is not json"}
	}
	tok := gjson.GetBytes(raw, "access_token")
	if tok.Type != gjson.String || tok.Str == "" {
		return "", &ExchangeError{Status: resp.StatusCode, Message: "response has no access_token"}
	}
	return tok.Str, nil
}
