package reaper

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"checkout_back_end/internal/config"
	"checkout_back_end/internal/kv"
	"checkout_back_end/internal/models"
	"checkout_back_end/internal/store"
)

// Reaper balaie périodiquement les sessions pour trois raisons
// indépendantes : expiration dure (TTL), rétention d'audit des sessions
// terminées, abandon des sessions actives sans commande.
//
// Le balayage tolère les mutations concurrentes : une clé disparue entre
// le scan et la lecture est simplement sautée.
type Reaper struct {
	store    kv.Store
	interval time.Duration

	auditRetention time.Duration
	abandonAfter   time.Duration

	now func() time.Time
}

func New(kvStore kv.Store, settings config.Settings) *Reaper {
	return &Reaper{
		store:          kvStore,
		interval:       settings.ReaperInterval,
		auditRetention: settings.AuditRetention,
		abandonAfter:   settings.AbandonAfter,
		now:            time.Now,
	}
}

// Run boucle jusqu'à l'annulation du contexte
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Printf("🧹 Reaper démarré (intervalle %s)", r.interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("🧹 Reaper arrêté")
			return
		case <-ticker.C:
			swept := r.Sweep(ctx)
			if swept > 0 {
				log.Printf("🧹 Reaper: %d session(s) supprimée(s)", swept)
			}
		}
	}
}

// Sweep fait une passe et retourne le nombre de sessions supprimées
func (r *Reaper) Sweep(ctx context.Context) int {
	keys, err := r.store.Scan(ctx, store.SessionKeyPrefix+"*")
	if err != nil {
		log.Printf("⚠️ Reaper: scan impossible: %v", err)
		return 0
	}

	swept := 0
	for _, key := range keys {
		raw, err := r.store.Get(ctx, key)
		if err != nil {
			// Supprimée ou expirée entre le scan et la lecture
			continue
		}

		var session models.CheckoutSession
		if err := json.Unmarshal([]byte(raw), &session); err != nil {
			log.Printf("⚠️ Reaper: session corrompue %s, purge", key)
			_, _ = r.store.Del(ctx, key)
			swept++
			continue
		}

		if r.shouldReap(&session) {
			if existed, _ := r.store.Del(ctx, key); existed {
				swept++
			}
		}
	}
	return swept
}

func (r *Reaper) shouldReap(s *models.CheckoutSession) bool {
	now := r.now()

	// Expiration dure : normalement gérée par le TTL du store, le
	// balayage rattrape les retardataires
	if !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt) {
		return true
	}

	// Rétention d'audit des sessions terminées
	if (s.Status == models.SessionCompleted || s.Status == models.SessionFailed) &&
		now.Sub(s.UpdatedAt) > r.auditRetention {
		return true
	}

	// Abandon : active, jamais réglée, au-delà du délai
	if s.Status == models.SessionActive && s.OrderRef == "" &&
		now.Sub(s.UpdatedAt) > r.abandonAfter {
		return true
	}

	return false
}
