package catalog

import (
	"context"

	"checkout_back_end/internal/models"
)

// Catalog — collaborateur externe de résolution produit/stock.
// Resolve fait UN seul lookup batché pour tous les SKU demandés :
// c'est ce qui permet au complete() de re-valider le stock de toute la
// session d'un coup, au plus près du paiement.
type Catalog interface {
	Resolve(ctx context.Context, skus []string) (map[string]models.Product, error)

	// All retourne le catalogue complet (flux produits public)
	All(ctx context.Context) ([]models.Product, error)
}
