package models

// Product — vue catalogue d'un article vendable, telle que retournée
// par le collaborateur catalogue (table products Scylla)
type Product struct {
	SKU         string  `json:"sku"`
	ProductRef  string  `json:"product_ref"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
	Stock       int     `json:"stock"`
	Purchasable bool    `json:"purchasable"`
	TaxClass    string  `json:"tax_class"`
}
