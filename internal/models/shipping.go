package models

// PackageSpec — description normalisée d'un colis envoyée au
// collaborateur de livraison : lignes + destination
type PackageSpec struct {
	Items       []LineItem `json:"items"`
	Destination Address    `json:"destination"`
	Subtotal    float64    `json:"subtotal"`
	Currency    string     `json:"currency"`
}
