package credstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolTokensRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewPool(NewMemoryStore())

	tokens, err := p.Tokens(ctx)
	require.NoError(t, err)
	assert.Empty(t, tokens)

	require.NoError(t, p.AddToken(ctx, TokenRecord{Token: "t2", TenantURL: "https://t.example/", CreatedAt: 2}))
	require.NoError(t, p.AddToken(ctx, TokenRecord{Token: "t1", TenantURL: "https://t.example/", CreatedAt: 1}))

	tokens, err = p.Tokens(ctx)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "t1", tokens[0].Token)
	assert.Equal(t, "t2", tokens[1].Token)

	require.NoError(t, p.DeleteToken(ctx, "t1"))
	require.NoError(t, p.DeleteToken(ctx, "t1"))
	tokens, err = p.Tokens(ctx)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "t2", tokens[0].Token)
}

func TestPoolRejectsInvalidTenantURL(t *testing.T) {
	p := NewPool(NewMemoryStore())
	for _, raw := range []string{"", "https://t.example", "ftp://t.example/", "/relative/"} {
		err := p.AddToken(context.Background(), TokenRecord{Token: "t", TenantURL: raw})
		assert.ErrorIs(t, err, ErrInvalidTenantURL, raw)
	}
}

func TestSelectRandomToken(t *testing.T) {
	ctx := context.Background()
	var gotN int
	p := NewPool(NewMemoryStore(), WithPicker(func(n int) int { gotN = n; return n - 1 }))

	_, err := p.SelectRandomToken(ctx)
	require.ErrorIs(t, err, ErrEmptyPool)

	require.NoError(t, p.AddToken(ctx, TokenRecord{Token: "a", TenantURL: "https://a.example/", CreatedAt: 1}))
	require.NoError(t, p.AddToken(ctx, TokenRecord{Token: "b", TenantURL: "https://b.example/", CreatedAt: 2}))
	rec, err := p.SelectRandomToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, gotN)
	assert.Equal(t, "b", rec.Token)
	assert.Equal(t, "https://b.example/", rec.TenantURL)
}

// getDeleteStore hides the backend's Take so the pool falls back to
// Get followed by Delete.
type getDeleteStore struct{ Store }

func TestVerifierIsSingleUse(t *testing.T) {
	ctx := context.Background()
	for name, wrap := range map[string]func(Store) Store{
		"take":       func(s Store) Store { return s },
		"get+delete": func(s Store) Store { return getDeleteStore{s} },
	} {
		t.Run(name, func(t *testing.T) {
			store := NewMemoryStore()
			clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
			store.now = clock.Now
			p := NewPool(wrap(store))

			require.NoError(t, p.StageVerifier(ctx, "st", "ver", time.Minute))
			v, err := p.ConsumeVerifier(ctx, "st")
			require.NoError(t, err)
			assert.Equal(t, "ver", v)
			_, err = p.ConsumeVerifier(ctx, "st")
			require.ErrorIs(t, err, ErrUnknownState)

			require.NoError(t, p.StageVerifier(ctx, "late", "ver", time.Minute))
			clock.t = clock.t.Add(61 * time.Second)
			_, err = p.ConsumeVerifier(ctx, "late")
			require.ErrorIs(t, err, ErrUnknownState)
		})
	}
}

func TestSubscribeReceivesTokenEvents(t *testing.T) {
	ctx := context.Background()
	p := NewPool(NewMemoryStore())
	events, cancel := p.Subscribe()
	defer cancel()

	require.NoError(t, p.AddToken(ctx, TokenRecord{Token: "x", TenantURL: "https://x.example/"}))
	require.NoError(t, p.DeleteToken(ctx, "x"))

	ev := <-events
	assert.Equal(t, EventTokenAdded, ev.Kind)
	assert.Equal(t, "x", ev.Token)
	ev = <-events
	assert.Equal(t, EventTokenDeleted, ev.Kind)

	cancel()
	_, ok := <-events
	assert.False(t, ok)
}

func TestSchedulerRunOnceSweeps(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, "k", []byte("v"), time.Millisecond))
	s := NewScheduler(store, "@every 1m")
	s.now = func() time.Time { return time.Now().Add(time.Hour) }
	assert.Equal(t, 1, s.RunOnce(ctx))
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(NewMemoryStore(), "not a schedule")
	require.Error(t, s.Run(context.Background()))
}
