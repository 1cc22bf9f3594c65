package models

import (
	"time"

	"github.com/gocql/gocql"
)

type Coupon struct {
	ID        gocql.UUID `json:"id"`
	Code      string     `json:"code"`
	Type      string     `json:"type"` // "percentage" ou "fixed"
	Value     float64    `json:"value"`
	MinAmount float64    `json:"min_amount"`
	MaxAmount *float64   `json:"max_amount,omitempty"` // Plafond de réduction (percentage)
	ExpiresAt time.Time  `json:"expires_at"`
	StartsAt  time.Time  `json:"starts_at"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
}

type CouponValidation struct {
	IsValid      bool    `json:"is_valid"`
	ErrorMessage string  `json:"error_message,omitempty"`
	Discount     float64 `json:"discount"`
	Type         string  `json:"type"`
	Code         string  `json:"code"`
}
