package checkout

import (
	"time"

	"checkout_back_end/internal/models"
)

// ItemResponse — ligne telle qu'exposée par l'API
type ItemResponse struct {
	SKU      string       `json:"sku"`
	Name     string       `json:"name"`
	Quantity int          `json:"quantity"`
	Price    models.Money `json:"price"`
	Subtotal models.Money `json:"subtotal"`
}

// SessionResponse — forme de réponse du protocole. shipping_options est
// strictement absent (pas de clé) sans adresse de livraison.
type SessionResponse struct {
	ID                     string                   `json:"id"`
	Items                  []ItemResponse           `json:"items"`
	Subtotal               models.Money             `json:"subtotal"`
	ShippingOptions        *[]models.ShippingOption `json:"shipping_options,omitempty"`
	SelectedShippingMethod string                   `json:"selected_shipping_method,omitempty"`
	CouponCode             string                   `json:"coupon_code,omitempty"`
	Discount               *models.Money            `json:"discount,omitempty"`
	Tax                    models.Money             `json:"tax"`
	Total                  models.Money             `json:"total"`
	Status                 string                   `json:"status"`
	OrderRef               string                   `json:"order_ref,omitempty"`
	CreatedAt              time.Time                `json:"created_at"`
	UpdatedAt              time.Time                `json:"updated_at"`
	ExpiresAt              time.Time                `json:"expires_at"`
}

// FormatSession convertit l'entité interne en réponse protocole
func FormatSession(s *models.CheckoutSession) *SessionResponse {
	items := make([]ItemResponse, 0, len(s.Items))
	for _, item := range s.Items {
		items = append(items, ItemResponse{
			SKU:      item.SKU,
			Name:     item.Name,
			Quantity: item.Quantity,
			Price:    models.Money{Value: item.UnitPrice, Currency: s.Currency},
			Subtotal: models.Money{Value: item.LineSubtotal, Currency: s.Currency},
		})
	}

	resp := &SessionResponse{
		ID:                     s.ID,
		Items:                  items,
		Subtotal:               models.Money{Value: s.Subtotal, Currency: s.Currency},
		ShippingOptions:        s.ShippingOptions,
		SelectedShippingMethod: s.SelectedShippingMethod,
		CouponCode:             s.CouponCode,
		Tax:                    models.Money{Value: s.TaxTotal, Currency: s.Currency},
		Total:                  models.Money{Value: s.Total, Currency: s.Currency},
		Status:                 string(s.Status),
		OrderRef:               s.OrderRef,
		CreatedAt:              s.CreatedAt,
		UpdatedAt:              s.UpdatedAt,
		ExpiresAt:              s.ExpiresAt,
	}

	if s.CouponDiscount > 0 {
		resp.Discount = &models.Money{Value: s.CouponDiscount, Currency: s.Currency}
	}

	return resp
}
