package catalog

import (
	"context"
	"fmt"

	"checkout_back_end/internal/models"

	"github.com/gocql/gocql"
)

// ScyllaCatalog lit la table products du keyspace produits
type ScyllaCatalog struct {
	session *gocql.Session
}

func NewScyllaCatalog(session *gocql.Session) *ScyllaCatalog {
	return &ScyllaCatalog{session: session}
}

func (c *ScyllaCatalog) Resolve(ctx context.Context, skus []string) (map[string]models.Product, error) {
	if len(skus) == 0 {
		return map[string]models.Product{}, nil
	}

	query := `SELECT sku, product_id, name, price, currency, stock, purchasable, tax_class
			  FROM products WHERE sku IN ?`

	iter := c.session.Query(query, skus).WithContext(ctx).Iter()
	defer iter.Close()

	products := make(map[string]models.Product, len(skus))
	var p models.Product
	var productID gocql.UUID

	for iter.Scan(&p.SKU, &productID, &p.Name, &p.Price, &p.Currency, &p.Stock, &p.Purchasable, &p.TaxClass) {
		p.ProductRef = productID.String()
		products[p.SKU] = p
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("erreur lecture catalogue: %w", err)
	}

	return products, nil
}

func (c *ScyllaCatalog) All(ctx context.Context) ([]models.Product, error) {
	query := `SELECT sku, product_id, name, price, currency, stock, purchasable, tax_class
			  FROM products`

	iter := c.session.Query(query).WithContext(ctx).Iter()
	defer iter.Close()

	var products []models.Product
	var p models.Product
	var productID gocql.UUID

	for iter.Scan(&p.SKU, &productID, &p.Name, &p.Price, &p.Currency, &p.Stock, &p.Purchasable, &p.TaxClass) {
		p.ProductRef = productID.String()
		products = append(products, p)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("erreur lecture catalogue: %w", err)
	}

	return products, nil
}
