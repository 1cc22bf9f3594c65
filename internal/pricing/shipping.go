package pricing

import (
	"context"

	"checkout_back_end/internal/models"
)

// StaticShippingRater — barème maison : standard / express / 24h,
// livraison standard offerte au-dessus du seuil
type StaticShippingRater struct {
	FreeThreshold float64
}

func NewStaticShippingRater() *StaticShippingRater {
	return &StaticShippingRater{FreeThreshold: 50.0}
}

func (r *StaticShippingRater) Rates(_ context.Context, pkg models.PackageSpec) ([]models.ShippingOption, error) {
	currency := pkg.Currency
	if currency == "" {
		currency = "eur"
	}

	options := []models.ShippingOption{
		{
			ID:       "standard",
			Label:    "Livraison Standard (5-7 jours ouvrés)",
			Amount:   5.99,
			Currency: currency,
		},
		{
			ID:       "express",
			Label:    "Livraison Express (2-3 jours ouvrés)",
			Amount:   12.99,
			Currency: currency,
		},
		{
			ID:       "next_day",
			Label:    "Livraison 24h (lendemain avant 18h)",
			Amount:   19.99,
			Currency: currency,
		},
	}

	// Livraison standard gratuite au-dessus du seuil
	if r.FreeThreshold > 0 && pkg.Subtotal >= r.FreeThreshold {
		options[0].Amount = 0
		options[0].Label = "Livraison Standard Gratuite (5-7 jours ouvrés)"
	}

	return options, nil
}
