package models

import "time"

// Statuts de livraison d'une notification webhook
type DeliveryState string

const (
	DeliveryPending    DeliveryState = "pending"
	DeliveryAttempting DeliveryState = "attempting"
	DeliverySent       DeliveryState = "sent"
	DeliveryFailed     DeliveryState = "failed"
)

// DeliveryRecord — état persisté par clé (order, event, statut cible).
// Terminal=true interdit toute re-tentative (réponse 429 du destinataire) ;
// un échec non terminal reste re-tentable dans la fenêtre de grâce.
type DeliveryRecord struct {
	State     DeliveryState `json:"state"`
	WebhookID string        `json:"webhook_id"`
	Reason    string        `json:"reason,omitempty"`
	Terminal  bool          `json:"terminal,omitempty"`
	FailedAt  time.Time     `json:"failed_at,omitempty"`
	SentAt    time.Time     `json:"sent_at,omitempty"`
}

// Refund — remboursement exposé dans le payload webhook,
// montant en centimes (unités mineures entières)
type Refund struct {
	Type   string `json:"type"`
	Amount int64  `json:"amount"`
}

// WebhookOrderData — bloc data du payload
type WebhookOrderData struct {
	Type              string   `json:"type"`
	CheckoutSessionID string   `json:"checkout_session_id"`
	PermalinkURL      string   `json:"permalink_url"`
	Status            string   `json:"status"`
	Refunds           []Refund `json:"refunds"`
}

// WebhookPayload — corps signé envoyé au callback de l'agent
type WebhookPayload struct {
	Type string           `json:"type"`
	Data WebhookOrderData `json:"data"`
}
