package pricing

import (
	"context"
	"strings"
	"sync"

	"checkout_back_end/internal/models"

	"github.com/gocql/gocql"
)

// ScyllaCouponSource lit la table coupons du keyspace commandes
type ScyllaCouponSource struct {
	session *gocql.Session
}

func NewScyllaCouponSource(session *gocql.Session) *ScyllaCouponSource {
	return &ScyllaCouponSource{session: session}
}

func (s *ScyllaCouponSource) Find(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	query := `SELECT id, code, type, value, min_amount, max_amount, expires_at, starts_at, is_active
			  FROM coupons WHERE code = ? LIMIT 1`

	err := s.session.Query(query, strings.ToUpper(code)).WithContext(ctx).Scan(
		&coupon.ID, &coupon.Code, &coupon.Type, &coupon.Value, &coupon.MinAmount,
		&coupon.MaxAmount, &coupon.ExpiresAt, &coupon.StartsAt, &coupon.IsActive,
	)
	if err == gocql.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// MemoryCouponSource — coupons en mémoire pour les tests et le mode dev
type MemoryCouponSource struct {
	mu      sync.RWMutex
	coupons map[string]models.Coupon
}

func NewMemoryCouponSource(coupons ...models.Coupon) *MemoryCouponSource {
	s := &MemoryCouponSource{coupons: make(map[string]models.Coupon)}
	for _, c := range coupons {
		s.coupons[strings.ToUpper(c.Code)] = c
	}
	return s
}

func (s *MemoryCouponSource) Find(_ context.Context, code string) (*models.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.coupons[strings.ToUpper(code)]
	if !ok {
		return nil, nil
	}
	return &c, nil
}
