package models

import "time"

// SessionStatus — cycle de vie d'une session de checkout.
// Transitions autorisées : active → completed | cancelled | failed, rien d'autre.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
	SessionFailed    SessionStatus = "failed"
)

// Terminal indique si le statut interdit toute mutation ultérieure
func (s SessionStatus) Terminal() bool {
	return s != SessionActive
}

// LineItem — une ligne du panier, SKU unique par ligne, quantité ≥ 1
type LineItem struct {
	SKU          string  `json:"sku"`
	ProductRef   string  `json:"product_ref"`
	Name         string  `json:"name"`
	Quantity     int     `json:"quantity"`
	UnitPrice    float64 `json:"unit_price"`
	LineSubtotal float64 `json:"line_subtotal"`
	TaxClass     string  `json:"tax_class,omitempty"`
}

// Address — adresse structurée (livraison ou facturation)
type Address struct {
	Name       string `json:"name,omitempty"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Region     string `json:"region,omitempty"`
	Country    string `json:"country"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// ShippingOption — option de livraison calculée pour la destination
type ShippingOption struct {
	ID       string  `json:"id"`
	Label    string  `json:"label"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// CheckoutSession — l'entité centrale : transaction en cours entre
// l'assemblage du panier et le règlement.
//
// ShippingOptions est un pointeur : nil = pas d'adresse de livraison,
// donc la clé est absente de toute sérialisation (exigence protocole,
// pas un simple "liste vide"). Les montants ne sont écrits que par le
// recalcul complet du PricingEngine, jamais à la main.
type CheckoutSession struct {
	ID    string     `json:"id"`
	Items []LineItem `json:"items"`

	ShippingAddress *Address `json:"shipping_address,omitempty"`
	BillingAddress  *Address `json:"billing_address,omitempty"`

	ShippingOptions        *[]ShippingOption `json:"shipping_options,omitempty"`
	SelectedShippingMethod string            `json:"selected_shipping_method,omitempty"`

	CouponCode     string  `json:"coupon_code,omitempty"`
	CouponDiscount float64 `json:"coupon_discount,omitempty"`

	Currency      string  `json:"currency"`
	Subtotal      float64 `json:"subtotal"`
	ShippingTotal float64 `json:"shipping_total"`
	TaxTotal      float64 `json:"tax_total"`
	Total         float64 `json:"total"`

	Status   SessionStatus `json:"status"`
	OrderRef string        `json:"order_ref,omitempty"`

	// Raison brute d'un échec de paiement, conservée pour l'audit,
	// jamais renvoyée telle quelle au client.
	FailureReason string `json:"failure_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ShippingTotalFor retourne le coût de livraison imposable : l'option
// sélectionnée si elle existe, sinon la première option proposée, sinon 0
func (s *CheckoutSession) ShippingTotalFor() float64 {
	if s.ShippingOptions == nil || len(*s.ShippingOptions) == 0 {
		return 0
	}
	opts := *s.ShippingOptions
	if s.SelectedShippingMethod != "" {
		for _, o := range opts {
			if o.ID == s.SelectedShippingMethod {
				return o.Amount
			}
		}
	}
	return opts[0].Amount
}

// Money — montant + devise pour les réponses API
type Money struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}
