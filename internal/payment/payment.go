package payment

import (
	"context"

	"checkout_back_end/internal/models"
)

// PaymentData — données de paiement fournies au complete()
type PaymentData struct {
	Token    string `json:"token"`
	Provider string `json:"provider"`
}

// Statuts retournés par le collaborateur de paiement
const (
	StatusCompleted      = "completed"
	StatusRequiresAction = "requires_action"
)

// Result — issue d'une tentative de règlement
type Result struct {
	Status      string
	OrderRef    string
	RedirectURL string
}

// Provider — collaborateur de règlement. Charge encaisse le total de la
// session ; le token et le 3-D Secure appartiennent au provider, pas à nous.
type Provider interface {
	Charge(ctx context.Context, session *models.CheckoutSession, data PaymentData) (Result, error)
}
