package store

import (
	"context"
	"testing"
	"time"

	"checkout_back_end/internal/apperrors"
	"checkout_back_end/internal/kv"
	"checkout_back_end/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() (*SessionStore, *kv.MemoryStore) {
	mem := kv.NewMemoryStore()
	return NewSessionStore(mem, time.Hour), mem
}

func testSession(id string) *models.CheckoutSession {
	now := time.Now()
	return &models.CheckoutSession{
		ID:       id,
		Status:   models.SessionActive,
		Currency: "eur",
		Items: []models.LineItem{
			{SKU: "TSHIRT-M", Quantity: 1, UnitPrice: 19.99, LineSubtotal: 19.99},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSessionStore_CreateAndGet(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	session := testSession("s1")
	require.NoError(t, s.Create(ctx, session))
	assert.False(t, session.ExpiresAt.IsZero(), "Create pose l'échéance")

	stored, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", stored.ID)
	assert.Equal(t, models.SessionActive, stored.Status)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "TSHIRT-M", stored.Items[0].SKU)
}

func TestSessionStore_CreateDuplicate(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, testSession("s1")))

	err := s.Create(ctx, testSession("s1"))
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
}

func TestSessionStore_GetUnknown(t *testing.T) {
	s, _ := newTestStore()

	_, err := s.Get(context.Background(), "inconnue")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestSessionStore_UpdatePreservesRemainingTTL(t *testing.T) {
	s, mem := newTestStore()
	ctx := context.Background()

	session := testSession("s1")
	require.NoError(t, s.Create(ctx, session))

	// La moitié de la durée de vie s'écoule
	base := time.Now()
	mem.SetClock(func() time.Time { return base.Add(30 * time.Minute) })

	session.Status = models.SessionCompleted
	require.NoError(t, s.Update(ctx, session))

	remaining, err := mem.TTL(ctx, SessionKeyPrefix+"s1")
	require.NoError(t, err)
	assert.LessOrEqual(t, remaining, 30*time.Minute, "la réécriture ne rallonge pas la durée de vie")
	assert.Greater(t, remaining, 29*time.Minute)

	stored, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, stored.Status)
}

func TestSessionStore_UpdateUnknown(t *testing.T) {
	s, _ := newTestStore()

	err := s.Update(context.Background(), testSession("inconnue"))
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestSessionStore_Delete(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, testSession("s1")))
	require.NoError(t, s.Delete(ctx, "s1"))

	err := s.Delete(ctx, "s1")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestSessionStore_ClaimIsExclusive(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	ok, err := s.Claim(ctx, "s1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Claim(ctx, "s1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "un seul règlement tient le verrou")

	s.ReleaseClaim(ctx, "s1")

	ok, err = s.Claim(ctx, "s1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "verrou relâché, re-prenable")
}
