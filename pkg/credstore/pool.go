package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	TokenKeyPrefix    = "auth_token/"
	VerifierKeyPrefix = "auth_codeVerifier_"
)

var (
	ErrEmptyPool        = errors.New("no credentials available, authorize first")
	ErrUnknownState     = errors.New("unknown or expired oauth state")
	ErrInvalidTenantURL = errors.New("tenant url must be an absolute http(s) url ending in /")
)

// TokenRecord is one upstream bearer credential.
type TokenRecord struct {
	Token     string `json:"token"`
	TenantURL string `json:"tenant_url"`
	// CreatedAt is Unix milliseconds.
	CreatedAt int64 `json:"created_at"`
}

func TokenKey(token string) string { return TokenKeyPrefix + token }

func VerifierKey(state string) string { return VerifierKeyPrefix + state }

func ValidTenantURL(raw string) bool {
	if !strings.HasSuffix(raw, "/") {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

type EventKind string

const (
	EventTokenAdded   EventKind = "token_added"
	EventTokenDeleted EventKind = "token_deleted"
)

type Event struct {
	Kind      EventKind `json:"kind"`
	Token     string    `json:"token"`
	TenantURL string    `json:"tenant_url,omitempty"`
	At        int64     `json:"at"`
}

// Pool is the credential pool. Writes serialize on mu; reads go straight to
// the store.
type Pool struct {
	store Store
	now   func() time.Time
	pick  func(n int) int

	mu sync.Mutex

	subMu  sync.Mutex
	subs   map[int]chan Event
	nextID int
}

type PoolOption func(*Pool)

func WithClock(now func() time.Time) PoolOption {
	return func(p *Pool) { p.now = now }
}

// WithPicker replaces the uniform index picker used by SelectRandomToken.
func WithPicker(pick func(n int) int) PoolOption {
	return func(p *Pool) { p.pick = pick }
}

func NewPool(store Store, opts ...PoolOption) *Pool {
	p := &Pool{
		store: store,
		now:   time.Now,
		pick:  rand.IntN,
		subs:  map[int]chan Event{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pool) Store() Store { return p.store }

func (p *Pool) AddToken(ctx context.Context, rec TokenRecord) error {
	rec.Token = strings.TrimSpace(rec.Token)
	if rec.Token == "" {
		return errors.New("token is required")
	}
	if !ValidTenantURL(rec.TenantURL) {
		return fmt.Errorf("%w: %q", ErrInvalidTenantURL, rec.TenantURL)
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = p.now().UnixMilli()
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode token record: %w", err)
	}
	p.mu.Lock()
	err = p.store.Put(ctx, TokenKey(rec.Token), b, 0)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	p.publish(Event{Kind: EventTokenAdded, Token: rec.Token, TenantURL: rec.TenantURL, At: p.now().UnixMilli()})
	return nil
}

// Tokens lists every stored token ordered by creation time.
func (p *Pool) Tokens(ctx context.Context) ([]TokenRecord, error) {
	entries, err := p.store.List(ctx, TokenKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	out := make([]TokenRecord, 0, len(entries))
	for _, e := range entries {
		var rec TokenRecord
		if err := json.Unmarshal(e.Value, &rec); err != nil {
			slog.Warn("skipping undecodable token record", "key", e.Key, "error", err)
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].Token < out[j].Token
	})
	return out, nil
}

func (p *Pool) SelectRandomToken(ctx context.Context) (TokenRecord, error) {
	tokens, err := p.Tokens(ctx)
	if err != nil {
		return TokenRecord{}, err
	}
	if len(tokens) == 0 {
		return TokenRecord{}, ErrEmptyPool
	}
	return tokens[p.pick(len(tokens))], nil
}

func (p *Pool) DeleteToken(ctx context.Context, token string) error {
	p.mu.Lock()
	err := p.store.Delete(ctx, TokenKey(token))
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	p.publish(Event{Kind: EventTokenDeleted, Token: token, At: p.now().UnixMilli()})
	return nil
}

func (p *Pool) StageVerifier(ctx context.Context, state, verifier string, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.store.Put(ctx, VerifierKey(state), []byte(verifier), ttl); err != nil {
		return fmt.Errorf("stage verifier: %w", err)
	}
	return nil
}

// ConsumeVerifier returns the staged verifier for state and removes it, so
// each state can complete at most one exchange.
func (p *Pool) ConsumeVerifier(ctx context.Context, state string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := VerifierKey(state)
	if t, ok := p.store.(Taker); ok {
		b, err := t.Take(ctx, key)
		if errors.Is(err, ErrNotFound) {
			return "", ErrUnknownState
		}
		if err != nil {
			return "", fmt.Errorf("consume verifier: %w", err)
		}
		return string(b), nil
	}
	b, err := p.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", ErrUnknownState
	}
	if err != nil {
		return "", fmt.Errorf("load verifier: %w", err)
	}
	if err := p.store.Delete(ctx, key); err != nil {
		return "", fmt.Errorf("consume verifier: %w", err)
	}
	return string(b), nil
}

// Subscribe registers a listener for token changes. Slow listeners drop
// events rather than block writers.
func (p *Pool) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	p.subMu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	p.subMu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.subMu.Lock()
			delete(p.subs, id)
			p.subMu.Unlock()
			close(ch)
		})
	}
}

func (p *Pool) publish(ev Event) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
