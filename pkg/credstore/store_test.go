package credstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func backends(t *testing.T, clock *fakeClock) map[string]Store {
	t.Helper()
	mem := NewMemoryStore()
	mem.now = clock.Now

	bs, err := OpenBolt(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	bs.now = clock.Now
	t.Cleanup(func() { bs.Close() })

	return map[string]Store{"memory": mem, "bolt": bs}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	for name, s := range backends(t, clock) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "missing")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Put(ctx, "a/1", []byte("one"), 0))
			require.NoError(t, s.Put(ctx, "a/2", []byte("two"), time.Minute))
			require.NoError(t, s.Put(ctx, "b/1", []byte("other"), 0))

			v, err := s.Get(ctx, "a/2")
			require.NoError(t, err)
			assert.Equal(t, "two", string(v))

			entries, err := s.List(ctx, "a/")
			require.NoError(t, err)
			require.Len(t, entries, 2)
			assert.Equal(t, "a/1", entries[0].Key)
			assert.True(t, entries[0].ExpiresAt.IsZero())
			assert.False(t, entries[1].ExpiresAt.IsZero())

			clock.t = clock.t.Add(2 * time.Minute)
			_, err = s.Get(ctx, "a/2")
			require.ErrorIs(t, err, ErrNotFound)
			entries, err = s.List(ctx, "a/")
			require.NoError(t, err)
			assert.Len(t, entries, 1)

			sw, ok := s.(Sweeper)
			require.True(t, ok)
			n, err := sw.Sweep(ctx, clock.t)
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			require.NoError(t, s.Delete(ctx, "a/1"))
			require.NoError(t, s.Delete(ctx, "a/1"))
			entries, err = s.List(ctx, "a/")
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestBoltStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.db")
	s, err := OpenBolt(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "k", []byte("v"), 0))
	require.NoError(t, s.Close())

	s, err = OpenBolt(path)
	require.NoError(t, err)
	defer s.Close()
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(v))
}

func TestStoreTakeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	for name, s := range backends(t, clock) {
		t.Run(name, func(t *testing.T) {
			tk, ok := s.(Taker)
			require.True(t, ok)

			require.NoError(t, s.Put(ctx, "v/1", []byte("verifier"), time.Minute))
			v, err := tk.Take(ctx, "v/1")
			require.NoError(t, err)
			assert.Equal(t, "verifier", string(v))
			_, err = tk.Take(ctx, "v/1")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Put(ctx, "v/2", []byte("late"), time.Second))
			clock.t = clock.t.Add(time.Minute)
			_, err = tk.Take(ctx, "v/2")
			require.ErrorIs(t, err, ErrNotFound)
			entries, err := s.List(ctx, "v/")
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestBoltOpenFailsFastWhenLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	held, err := OpenBolt(path)
	require.NoError(t, err)
	defer held.Close()

	start := time.Now()
	_, err = OpenBoltTimeout(path, 50*time.Millisecond)
	require.ErrorIs(t, err, ErrStoreLocked)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRedisStoreContract(t *testing.T) {
	url := os.Getenv("AUGMENT2API_TEST_REDIS_URL")
	if url == "" {
		t.Skip("AUGMENT2API_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	s, err := OpenRedis(ctx, url)
	require.NoError(t, err)
	defer s.Close()

	prefix := "augment2api-test/" + time.Now().Format("150405.000000") + "/"
	require.NoError(t, s.Put(ctx, prefix+"x", []byte("1"), time.Minute))
	v, err := s.Get(ctx, prefix+"x")
	require.NoError(t, err)
	assert.Equal(t, "1", string(v))
	entries, err := s.List(ctx, prefix)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NoError(t, s.Delete(ctx, prefix+"x"))
	_, err = s.Get(ctx, prefix+"x")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, prefix+"once", []byte("v"), time.Minute))
	v, err = s.Take(ctx, prefix+"once")
	require.NoError(t, err)
	assert.Equal(t, "v", string(v))
	_, err = s.Take(ctx, prefix+"once")
	require.ErrorIs(t, err, ErrNotFound)
}
