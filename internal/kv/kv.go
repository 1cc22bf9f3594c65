package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound — clé absente ou expirée
var ErrNotFound = errors.New("kv: clé introuvable")

// Store — abstraction clé/valeur avec TTL par clé, implémentée par Redis
// en production et par une map en mémoire pour les tests et le mode dev.
//
// CompareAndSwap et SetNX sont les primitives qui ferment les fenêtres
// check-then-write (garde d'idempotence, claim de règlement, transition
// attempting→sent/failed du dispatcher webhook).
type Store interface {
	// Get retourne la valeur ou ErrNotFound
	Get(ctx context.Context, key string) (string, error)

	// Set écrit la valeur avec un TTL (0 = pas d'expiration)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// SetNX n'écrit que si la clé n'existe pas ; retourne true si écrit
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)

	// CompareAndSwap remplace old par new atomiquement ; false si la
	// valeur courante n'est pas old (ou si la clé a disparu)
	CompareAndSwap(ctx context.Context, key string, old, new string, ttl time.Duration) (bool, error)

	// Del supprime la clé ; retourne true si elle existait
	Del(ctx context.Context, key string) (bool, error)

	// Incr incrémente un compteur, pose le TTL à la première écriture de
	// la fenêtre, et retourne le compte + le temps restant de la fenêtre
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)

	// Scan retourne les clés correspondant au pattern glob (style Redis SCAN)
	Scan(ctx context.Context, pattern string) ([]string, error)

	// TTL retourne le temps restant de la clé (ErrNotFound si absente)
	TTL(ctx context.Context, key string) (time.Duration, error)
}
