package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"checkout_back_end/internal/config"
	"checkout_back_end/internal/kv"
	"checkout_back_end/internal/models"

	"github.com/google/uuid"
)

// Événements de cycle de vie notifiés à l'agent
const (
	EventOrderCreated = "order_created"
	EventOrderUpdated = "order_updated"
)

const (
	deliveryKeyPrefix = "webhook:delivery:"
	recordTTL         = 48 * time.Hour
)

// Dispatcher signe et livre les notifications de cycle de vie d'une
// commande au callback du marchand, avec déduplication par clé
// (order, event, statut cible) et retries bornés sous backoff.
//
// L'état de livraison vit dans le kv partagé ; les transitions
// pending→attempting→sent/failed passent par SetNX/CAS pour qu'un seul
// envoi concurrent gagne.
type Dispatcher struct {
	store  kv.Store
	client *http.Client

	url        string
	secret     string
	permalink  string
	maxTries   int
	baseDelay  time.Duration
	retryGrace time.Duration

	// Points d'injection pour les tests
	sleep func(time.Duration)
	now   func() time.Time
}

func NewDispatcher(store kv.Store, settings config.Settings) *Dispatcher {
	return &Dispatcher{
		store:      store,
		client:     &http.Client{Timeout: 10 * time.Second},
		url:        settings.WebhookURL,
		secret:     settings.WebhookSecret,
		permalink:  settings.PermalinkBase,
		maxTries:   settings.WebhookMaxTries,
		baseDelay:  settings.WebhookBaseDelay,
		retryGrace: settings.WebhookRetryGrace,
		sleep:      time.Sleep,
		now:        time.Now,
	}
}

// SetHTTPClient remplace le client HTTP (tests)
func (d *Dispatcher) SetHTTPClient(client *http.Client) { d.client = client }

// SetSleep remplace l'attente entre tentatives (tests)
func (d *Dispatcher) SetSleep(sleep func(time.Duration)) { d.sleep = sleep }

func deliveryKey(orderRef, event, status string) string {
	return fmt.Sprintf("%s%s:%s:%s", deliveryKeyPrefix, orderRef, event, status)
}

// DispatchAsync livre hors du chemin de la requête : les retries et
// leurs pauses ne bloquent jamais la réponse HTTP du checkout
func (d *Dispatcher) DispatchAsync(orderRef, event string, session *models.CheckoutSession, refunds []models.Refund) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := d.Dispatch(ctx, orderRef, event, session, refunds); err != nil {
			log.Printf("⚠️ Livraison webhook %s/%s non aboutie: %v", orderRef, event, err)
		}
	}()
}

// Dispatch livre la notification si la clé de livraison est éligible :
// jamais envoyée, ou échouée de façon re-tentable dans la fenêtre de
// grâce. Un envoi déjà parti (sent) ou en cours (attempting) est un no-op.
func (d *Dispatcher) Dispatch(ctx context.Context, orderRef, event string, session *models.CheckoutSession, refunds []models.Refund) error {
	if d.url == "" {
		return nil
	}

	key := deliveryKey(orderRef, event, string(session.Status))

	record, prev, err := d.claim(ctx, key)
	if err != nil || record == nil {
		return err
	}

	payload := models.WebhookPayload{
		Type: event,
		Data: models.WebhookOrderData{
			Type:              "order",
			CheckoutSessionID: session.ID,
			PermalinkURL:      fmt.Sprintf("%s/%s", d.permalink, orderRef),
			Status:            string(session.Status),
			Refunds:           refunds,
		},
	}
	if payload.Data.Refunds == nil {
		payload.Data.Refunds = []models.Refund{}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	// Signature sur les octets exacts du payload sérialisé
	mac := hmac.New(sha256.New, []byte(d.secret))
	mac.Write(body)
	signature := hex.EncodeToString(mac.Sum(nil))

	var lastErr error
	for attempt := 1; attempt <= d.maxTries; attempt++ {
		status, err := d.send(ctx, body, signature, record.WebhookID)
		if err == nil && status >= 200 && status < 300 {
			record.State = models.DeliverySent
			record.SentAt = d.now()
			d.finish(ctx, key, prev, record)
			log.Printf("🔔 Webhook %s livré pour %s (tentative %d)", event, orderRef, attempt)
			return nil
		}

		// Un 429 du destinataire : insister ne ferait qu'aggraver le
		// throttling — abandon immédiat et définitif pour cette clé
		if err == nil && status == http.StatusTooManyRequests {
			record.State = models.DeliveryFailed
			record.Reason = "destinataire en throttling (429)"
			record.Terminal = true
			record.FailedAt = d.now()
			d.finish(ctx, key, prev, record)
			return fmt.Errorf("webhook %s: abandon sur 429", key)
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("statut HTTP %d", status)
		}

		if attempt < d.maxTries {
			d.sleep(d.baseDelay * (1 << (attempt - 1)))
		}
	}

	record.State = models.DeliveryFailed
	record.Reason = lastErr.Error()
	record.FailedAt = d.now()
	d.finish(ctx, key, prev, record)
	return fmt.Errorf("webhook %s: %d tentatives épuisées: %w", key, d.maxTries, lastErr)
}

// claim réserve la clé de livraison (état attempting). Retourne un
// record nil quand il n'y a rien à envoyer : déjà livré, envoi
// concurrent en cours, ou échec non re-tentable.
func (d *Dispatcher) claim(ctx context.Context, key string) (*models.DeliveryRecord, string, error) {
	raw, err := d.store.Get(ctx, key)
	if err == kv.ErrNotFound {
		record := models.DeliveryRecord{
			State:     models.DeliveryAttempting,
			WebhookID: uuid.NewString(),
		}
		data, _ := json.Marshal(record)
		ok, err := d.store.SetNX(ctx, key, string(data), recordTTL)
		if err != nil {
			return nil, "", err
		}
		if !ok {
			// Quelqu'un d'autre vient de prendre la main
			return nil, "", nil
		}
		return &record, string(data), nil
	}
	if err != nil {
		return nil, "", err
	}

	var record models.DeliveryRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, "", err
	}

	switch record.State {
	case models.DeliverySent, models.DeliveryAttempting:
		return nil, "", nil
	case models.DeliveryFailed:
		if record.Terminal || d.now().Sub(record.FailedAt) > d.retryGrace {
			return nil, "", nil
		}
		// Re-tentative dans la fenêtre : nouvel identifiant de livraison
		next := models.DeliveryRecord{
			State:     models.DeliveryAttempting,
			WebhookID: uuid.NewString(),
		}
		data, _ := json.Marshal(next)
		ok, err := d.store.CompareAndSwap(ctx, key, raw, string(data), recordTTL)
		if err != nil || !ok {
			return nil, "", err
		}
		return &next, string(data), nil
	default:
		return nil, "", nil
	}
}

// finish pose l'état final ; si le CAS échoue (course perdue), l'autre
// écrivain a un état plus frais et on n'écrase rien
func (d *Dispatcher) finish(ctx context.Context, key, prev string, record *models.DeliveryRecord) {
	data, _ := json.Marshal(record)
	ok, err := d.store.CompareAndSwap(ctx, key, prev, string(data), recordTTL)
	if err != nil || !ok {
		log.Printf("⚠️ État webhook %s non mis à jour (course perdue)", key)
	}
}

func (d *Dispatcher) send(ctx context.Context, body []byte, signature, webhookID string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Merchant-Signature", signature)
	req.Header.Set("Webhook-ID", webhookID)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
