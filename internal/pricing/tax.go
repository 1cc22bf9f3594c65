package pricing

import (
	"context"

	"checkout_back_end/internal/models"
)

// TableTaxRater — taux par (pays, classe de taxe), avec repli sur la
// classe standard du pays puis sur le taux par défaut
type TableTaxRater struct {
	// Rates[pays][classe] = taux
	Rates       map[string]map[string]float64
	DefaultRate float64
}

// NewTableTaxRater construit le barème TVA par défaut
func NewTableTaxRater() *TableTaxRater {
	return &TableTaxRater{
		Rates: map[string]map[string]float64{
			"FR": {"standard": 0.20, "reduced": 0.055, "shipping": 0.20},
			"BE": {"standard": 0.21, "reduced": 0.06, "shipping": 0.21},
			"DE": {"standard": 0.19, "reduced": 0.07, "shipping": 0.19},
			"LU": {"standard": 0.17, "reduced": 0.08, "shipping": 0.17},
		},
		DefaultRate: 0.20,
	}
}

func (r *TableTaxRater) Rate(_ context.Context, taxClass string, addr models.Address) (float64, error) {
	country, ok := r.Rates[addr.Country]
	if !ok {
		return r.DefaultRate, nil
	}
	if rate, ok := country[taxClass]; ok {
		return rate, nil
	}
	if rate, ok := country["standard"]; ok {
		return rate, nil
	}
	return r.DefaultRate, nil
}
