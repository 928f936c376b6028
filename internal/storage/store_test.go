package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/fintrack/internal/storage"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := storage.NewInMemoryStore()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.Set(ctx, "download_token_b", []byte("b")))
	require.NoError(t, s.Set(ctx, "download_token_a", []byte("a")))
	require.NoError(t, s.Set(ctx, "other", []byte("x")))

	v, err := s.Get(ctx, "download_token_a")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), v)

	// Returned slices are copies
	v[0] = 'z'
	v2, _ := s.Get(ctx, "download_token_a")
	assert.Equal(t, []byte("a"), v2)

	keys, err := s.Keys(ctx, "download_token_")
	require.NoError(t, err)
	assert.Equal(t, []string{"download_token_a", "download_token_b"}, keys)

	require.NoError(t, s.Delete(ctx, "download_token_a"))
	require.NoError(t, s.Delete(ctx, "download_token_a"))
	_, err = s.Get(ctx, "download_token_a")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSealedStore(t *testing.T) {
	ctx := context.Background()
	inner := storage.NewInMemoryStore()

	_, err := storage.NewSealedStore(inner, []byte("short"))
	require.Error(t, err)

	sealed, err := storage.NewSealedStore(inner, []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	require.NoError(t, sealed.Set(ctx, "fintrack_encryption_key_u1", []byte("secret")))

	raw, err := inner.Get(ctx, "fintrack_encryption_key_u1")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")

	v, err := sealed.Get(ctx, "fintrack_encryption_key_u1")
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), v)

	t.Run("value moved to another key fails to open", func(t *testing.T) {
		require.NoError(t, inner.Set(ctx, "fintrack_encryption_key_u2", raw))
		_, err := sealed.Get(ctx, "fintrack_encryption_key_u2")
		assert.ErrorIs(t, err, storage.ErrSealed)
	})

	t.Run("different master key fails to open", func(t *testing.T) {
		other, err := storage.NewSealedStore(inner, []byte("ffffffffffffffffffffffffffffffff"))
		require.NoError(t, err)
		_, err = other.Get(ctx, "fintrack_encryption_key_u1")
		assert.ErrorIs(t, err, storage.ErrSealed)
	})

	t.Run("missing key passes through", func(t *testing.T) {
		_, err := sealed.Get(ctx, "nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestInMemoryLocker(t *testing.T) {
	ctx := context.Background()
	l := storage.NewInMemoryLocker()

	token, err := l.TryLock(ctx, "tok", time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	_, err = l.TryLock(ctx, "tok", time.Minute)
	assert.ErrorIs(t, err, storage.ErrLocked)

	// Unlock with a stale token is ignored
	require.NoError(t, l.Unlock(ctx, "tok", "stale"))
	_, err = l.TryLock(ctx, "tok", time.Minute)
	assert.ErrorIs(t, err, storage.ErrLocked)

	require.NoError(t, l.Unlock(ctx, "tok", token))
	_, err = l.TryLock(ctx, "tok", time.Minute)
	assert.NoError(t, err)
}

func TestInMemoryLocker_Expires(t *testing.T) {
	ctx := context.Background()
	l := storage.NewInMemoryLocker()

	_, err := l.TryLock(ctx, "tok", time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	_, err = l.TryLock(ctx, "tok", time.Minute)
	assert.NoError(t, err)
}
