package catalog

import (
	"context"
	"sort"
	"sync"

	"checkout_back_end/internal/models"
)

// MemoryCatalog — catalogue en mémoire pour les tests et le mode dev
type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[string]models.Product
}

func NewMemoryCatalog(products ...models.Product) *MemoryCatalog {
	c := &MemoryCatalog{products: make(map[string]models.Product)}
	for _, p := range products {
		c.products[p.SKU] = p
	}
	return c
}

// SetStock modifie le stock d'un SKU (simulation de course de stock)
func (c *MemoryCatalog) SetStock(sku string, stock int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.products[sku]; ok {
		p.Stock = stock
		c.products[sku] = p
	}
}

func (c *MemoryCatalog) Resolve(_ context.Context, skus []string) (map[string]models.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]models.Product, len(skus))
	for _, sku := range skus {
		if p, ok := c.products[sku]; ok {
			out[sku] = p
		}
	}
	return out, nil
}

func (c *MemoryCatalog) All(_ context.Context) ([]models.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}
