package store

import (
	"context"
	"encoding/json"
	"time"

	"checkout_back_end/internal/apperrors"
	"checkout_back_end/internal/kv"
	"checkout_back_end/internal/models"
)

const (
	// SessionKeyPrefix — les sessions vivent sous checkout:session:<id>
	SessionKeyPrefix = "checkout:session:"
	claimKeyPrefix   = "checkout:claim:"
)

// SessionStore persiste les CheckoutSession en blobs JSON avec TTL,
// comme les paniers : une clé par session, expiration native du store.
type SessionStore struct {
	store kv.Store
	ttl   time.Duration
}

func NewSessionStore(store kv.Store, ttl time.Duration) *SessionStore {
	return &SessionStore{store: store, ttl: ttl}
}

func sessionKey(id string) string { return SessionKeyPrefix + id }

// Create persiste une session neuve avec le TTL configuré
func (s *SessionStore) Create(ctx context.Context, session *models.CheckoutSession) error {
	session.ExpiresAt = time.Now().Add(s.ttl)

	data, err := json.Marshal(session)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDependency, "Erreur sérialisation session", err)
	}

	ok, err := s.store.SetNX(ctx, sessionKey(session.ID), string(data), s.ttl)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDependency, "Erreur écriture session", err)
	}
	if !ok {
		return apperrors.New(apperrors.KindConflict, "Session déjà existante")
	}
	return nil
}

// Get retourne la session ou une erreur not_found (expirée = introuvable)
func (s *SessionStore) Get(ctx context.Context, id string) (*models.CheckoutSession, error) {
	data, err := s.store.Get(ctx, sessionKey(id))
	if err == kv.ErrNotFound {
		return nil, apperrors.New(apperrors.KindNotFound, "Session introuvable")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDependency, "Erreur lecture session", err)
	}

	var session models.CheckoutSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, apperrors.Wrap(apperrors.KindDependency, "Session corrompue", err)
	}
	return &session, nil
}

// Update réécrit la session en préservant le TTL restant de la clé
func (s *SessionStore) Update(ctx context.Context, session *models.CheckoutSession) error {
	key := sessionKey(session.ID)

	remaining, err := s.store.TTL(ctx, key)
	if err == kv.ErrNotFound {
		return apperrors.New(apperrors.KindNotFound, "Session introuvable")
	}
	if err != nil {
		return apperrors.Wrap(apperrors.KindDependency, "Erreur lecture TTL session", err)
	}
	if remaining <= 0 {
		remaining = s.ttl
	}

	data, err := json.Marshal(session)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDependency, "Erreur sérialisation session", err)
	}
	if err := s.store.Set(ctx, key, string(data), remaining); err != nil {
		return apperrors.Wrap(apperrors.KindDependency, "Erreur écriture session", err)
	}
	return nil
}

// Delete supprime la session ; not_found si elle n'existait plus
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	existed, err := s.store.Del(ctx, sessionKey(id))
	if err != nil {
		return apperrors.Wrap(apperrors.KindDependency, "Erreur suppression session", err)
	}
	if !existed {
		return apperrors.New(apperrors.KindNotFound, "Session introuvable")
	}
	return nil
}

// Claim pose le verrou de règlement : deux complete() concurrents sur la
// même session ne peuvent pas passer tous les deux — un seul obtient le
// claim avant l'appel au provider de paiement
func (s *SessionStore) Claim(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	ok, err := s.store.SetNX(ctx, claimKeyPrefix+id, "1", ttl)
	if err != nil {
		return false, apperrors.Wrap(apperrors.KindDependency, "Erreur pose du verrou de règlement", err)
	}
	return ok, nil
}

// ReleaseClaim libère le verrou (échec de paiement : le client peut
// retenter avec une autre carte)
func (s *SessionStore) ReleaseClaim(ctx context.Context, id string) {
	_, _ = s.store.Del(ctx, claimKeyPrefix+id)
}
