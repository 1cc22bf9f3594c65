package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGetDel(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	val, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	existed, err := s.Del(ctx, "k")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = s.Del(ctx, "k")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))

	// Avance l'horloge au-delà du TTL
	s.SetClock(func() time.Time { return now.Add(2 * time.Minute) })

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SetNX(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ok, err := s.SetNX(ctx, "k", "a", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetNX(ctx, "k", "b", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	val, _ := s.Get(ctx, "k")
	assert.Equal(t, "a", val)
}

func TestMemoryStore_CompareAndSwap(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "old", 0))

	ok, err := s.CompareAndSwap(ctx, "k", "autre", "new", 0)
	require.NoError(t, err)
	assert.False(t, ok, "CAS doit échouer si la valeur courante diffère")

	ok, err = s.CompareAndSwap(ctx, "k", "old", "new", 0)
	require.NoError(t, err)
	assert.True(t, ok)

	val, _ := s.Get(ctx, "k")
	assert.Equal(t, "new", val)
}

func TestMemoryStore_IncrWindow(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	n, _, err := s.Incr(ctx, "compteur", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, remaining, err := s.Incr(ctx, "compteur", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Greater(t, remaining, time.Duration(0))
}

func TestMemoryStore_Scan(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "checkout:session:1", "a", 0))
	require.NoError(t, s.Set(ctx, "checkout:session:2", "b", 0))
	require.NoError(t, s.Set(ctx, "autre:3", "c", 0))

	keys, err := s.Scan(ctx, "checkout:session:*")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}
