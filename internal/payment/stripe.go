package payment

import (
	"context"
	"errors"
	"log"

	"checkout_back_end/internal/apperrors"
	"checkout_back_end/internal/models"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/paymentintent"
)

// Table de messages stables renvoyés au client. La raison brute Stripe
// reste sur la session pour l'audit, jamais dans la réponse.
var declineMessages = map[string]string{
	"card_declined":          "Paiement refusé par la banque",
	"expired_card":           "Carte expirée",
	"incorrect_cvc":          "Cryptogramme incorrect",
	"insufficient_funds":     "Fonds insuffisants",
	"processing_error":       "Erreur de traitement du paiement, réessayez",
	"amount_too_small":       "Montant trop faible pour être encaissé",
	"currency_mismatch":      "Devise non supportée pour ce moyen de paiement",
	"payment_method_invalid": "Moyen de paiement invalide",
}

const defaultDeclineMessage = "Le paiement n'a pas pu être effectué"

// StripeProvider règle les sessions via un PaymentIntent confirmé
type StripeProvider struct {
	ReturnURL string
}

func NewStripeProvider(returnURL string) *StripeProvider {
	return &StripeProvider{ReturnURL: returnURL}
}

func (p *StripeProvider) Charge(ctx context.Context, session *models.CheckoutSession, data PaymentData) (Result, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(int64(session.Total*100 + 0.5)),
		Currency:      stripe.String(session.Currency),
		PaymentMethod: stripe.String(data.Token),
		Confirm:       stripe.Bool(true),
		ReturnURL:     stripe.String(p.ReturnURL),
		Metadata: map[string]string{
			"checkout_session_id": session.ID,
		},
	}
	params.Context = ctx

	intent, err := paymentintent.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			log.Printf("❌ Paiement refusé pour session %s: %s (%s)", session.ID, stripeErr.Code, stripeErr.DeclineCode)
			return Result{}, apperrors.Wrap(apperrors.KindPayment, mapDecline(stripeErr), err)
		}
		log.Printf("❌ Passerelle de paiement injoignable: %v", err)
		return Result{}, apperrors.Wrap(apperrors.KindDependency, "Service de paiement indisponible", err)
	}

	switch intent.Status {
	case stripe.PaymentIntentStatusRequiresAction:
		redirect := ""
		if intent.NextAction != nil && intent.NextAction.RedirectToURL != nil {
			redirect = intent.NextAction.RedirectToURL.URL
		}
		log.Printf("🔐 Authentification supplémentaire requise pour session %s (%s)", session.ID, intent.ID)
		return Result{Status: StatusRequiresAction, OrderRef: intent.ID, RedirectURL: redirect}, nil

	case stripe.PaymentIntentStatusSucceeded:
		log.Printf("💳 Paiement encaissé: %s (%.2f %s) pour session %s", intent.ID, session.Total, session.Currency, session.ID)
		return Result{Status: StatusCompleted, OrderRef: intent.ID}, nil

	default:
		log.Printf("❌ PaymentIntent %s dans un état inattendu: %s", intent.ID, intent.Status)
		return Result{}, apperrors.New(apperrors.KindPayment, defaultDeclineMessage)
	}
}

// mapDecline choisit le message client stable pour une erreur Stripe
func mapDecline(err *stripe.Error) string {
	if msg, ok := declineMessages[string(err.DeclineCode)]; ok {
		return msg
	}
	if msg, ok := declineMessages[string(err.Code)]; ok {
		return msg
	}
	return defaultDeclineMessage
}
