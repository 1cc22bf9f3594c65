package checkout

import (
	"context"
	"fmt"
	"log"
	"time"

	"checkout_back_end/internal/apperrors"
	"checkout_back_end/internal/catalog"
	"checkout_back_end/internal/config"
	"checkout_back_end/internal/models"
	"checkout_back_end/internal/payment"
	"checkout_back_end/internal/pricing"
	"checkout_back_end/internal/store"
	"checkout_back_end/internal/webhook"

	"github.com/google/uuid"
)

// Mailer envoie l'email de confirmation de commande (meilleur effort,
// jamais bloquant pour la réponse)
type Mailer interface {
	SendOrderConfirmation(session *models.CheckoutSession, orderRef string) error
}

// Service — la machine à états des sessions de checkout.
// Toutes les dépendances sont injectées à la construction.
type Service struct {
	sessions *store.SessionStore
	catalog  catalog.Catalog
	pricing  *pricing.Engine
	coupons  pricing.CouponSource
	payments payment.Provider
	webhooks *webhook.Dispatcher
	mailer   Mailer // optionnel
	settings config.Settings
}

func NewService(
	sessions *store.SessionStore,
	cat catalog.Catalog,
	engine *pricing.Engine,
	coupons pricing.CouponSource,
	payments payment.Provider,
	webhooks *webhook.Dispatcher,
	mailer Mailer,
	settings config.Settings,
) *Service {
	return &Service{
		sessions: sessions,
		catalog:  cat,
		pricing:  engine,
		coupons:  coupons,
		payments: payments,
		webhooks: webhooks,
		mailer:   mailer,
		settings: settings,
	}
}

// ItemInput — ligne demandée par l'agent : SKU + quantité
type ItemInput struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// CreateInput — corps de POST /checkout_sessions
type CreateInput struct {
	Items           []ItemInput     `json:"items"`
	ShippingAddress *models.Address `json:"shipping_address"`
	BillingAddress  *models.Address `json:"billing_address"`
}

// UpdateInput — corps de POST /checkout_sessions/{id} ; tout est optionnel
type UpdateInput struct {
	Items           *[]ItemInput    `json:"items"`
	ShippingAddress *models.Address `json:"shipping_address"`
	BillingAddress  *models.Address `json:"billing_address"`
	ShippingMethod  *string         `json:"shipping_method"`
	CouponCode      *string         `json:"coupon_code"`
	RemoveCoupon    bool            `json:"remove_coupon"`
}

// Buyer — coordonnées de l'acheteur fournies au complete, fusionnées
// dans l'adresse de facturation pour le provider de paiement
type Buyer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// CompleteInput — corps de POST /checkout_sessions/{id}/complete
type CompleteInput struct {
	Payment         payment.PaymentData `json:"payment"`
	Buyer           *Buyer              `json:"buyer"`
	BillingAddress  *models.Address     `json:"billing_address"`
	ShippingAddress *models.Address     `json:"shipping_address"`
}

// CompleteResult — issue du règlement
type CompleteResult struct {
	Status      string
	Session     *models.CheckoutSession
	OrderRef    string
	RedirectURL string
}

// Create valide chaque article puis persiste une session active.
// Aucune écriture n'a lieu tant que la validation n'est pas passée.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.CheckoutSession, error) {
	items, err := s.validateItems(ctx, in.Items)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &models.CheckoutSession{
		ID:              uuid.NewString(),
		Items:           items,
		ShippingAddress: in.ShippingAddress,
		BillingAddress:  in.BillingAddress,
		Currency:        s.settings.Currency,
		Status:          models.SessionActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.pricing.Recompute(ctx, session); err != nil {
		return nil, err
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	log.Printf("🛒 Session de checkout créée: %s (%d articles, total %.2f %s)",
		session.ID, len(session.Items), session.Total, session.Currency)
	return session, nil
}

// Get retourne l'état courant (lisible même après complete, pour l'audit)
func (s *Service) Get(ctx context.Context, id string) (*models.CheckoutSession, error) {
	return s.sessions.Get(ctx, id)
}

// Update applique une mutation partielle puis recalcule TOUTE la grille
// tarifaire. Refusé dès que la session n'est plus active.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*models.CheckoutSession, error) {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionActive {
		return nil, apperrors.New(apperrors.KindInvalidState,
			fmt.Sprintf("Session %s, modification impossible", session.Status))
	}

	if in.Items != nil {
		items, err := s.validateItems(ctx, *in.Items)
		if err != nil {
			return nil, err
		}
		session.Items = items
	}
	if in.ShippingAddress != nil {
		session.ShippingAddress = in.ShippingAddress
	}
	if in.BillingAddress != nil {
		session.BillingAddress = in.BillingAddress
	}
	if in.RemoveCoupon {
		session.CouponCode = ""
		session.CouponDiscount = 0
	}

	// Premier recalcul : subtotal + options de livraison à jour, pour
	// valider la méthode et le coupon contre l'état courant
	if err := s.pricing.Recompute(ctx, session); err != nil {
		return nil, err
	}

	if in.ShippingMethod != nil {
		if session.ShippingOptions == nil || !optionExists(*session.ShippingOptions, *in.ShippingMethod) {
			return nil, apperrors.New(apperrors.KindValidation, "Méthode de livraison invalide")
		}
		session.SelectedShippingMethod = *in.ShippingMethod
	}

	if in.CouponCode != nil && !in.RemoveCoupon {
		if err := s.applyCoupon(ctx, session, *in.CouponCode); err != nil {
			return nil, err
		}
	} else if session.CouponCode != "" {
		// Le subtotal a pu changer : la réduction est re-dérivée du
		// coupon, jamais conservée telle quelle
		if err := s.refreshCoupon(ctx, session); err != nil {
			return nil, err
		}
	}

	// Recalcul final : la méthode choisie et la réduction entrent dans
	// la taxe et le total
	if err := s.pricing.Recompute(ctx, session); err != nil {
		return nil, err
	}

	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}

	log.Printf("✏️ Session %s mise à jour (total %.2f %s)", session.ID, session.Total, session.Currency)
	return session, nil
}

// Cancel marque la session annulée puis supprime l'enregistrement.
// Un second appel retombe sur NotFound — idempotent dans l'effet.
func (s *Service) Cancel(ctx context.Context, id string) error {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return err
	}

	session.Status = models.SessionCancelled
	session.UpdatedAt = time.Now()

	if err := s.sessions.Delete(ctx, id); err != nil {
		return err
	}

	log.Printf("🗑️ Session %s annulée et supprimée", id)
	return nil
}

// Complete règle la session : re-validation de stock batchée au plus
// près du paiement, verrou de règlement, appel au provider, puis
// notification order_created et email de confirmation.
func (s *Service) Complete(ctx context.Context, id string, in CompleteInput) (*CompleteResult, error) {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionActive {
		return nil, apperrors.New(apperrors.KindInvalidState,
			fmt.Sprintf("Session %s, règlement impossible", session.Status))
	}

	if in.Payment.Token == "" {
		return nil, apperrors.New(apperrors.KindValidation, "Token de paiement requis")
	}

	mergeBuyerDetails(session, in)

	// Re-validation du stock en UN lookup batché : ferme la fenêtre
	// entre la création de la session et le règlement
	if err := s.recheckStock(ctx, session); err != nil {
		if apperrors.IsKind(err, apperrors.KindValidation) {
			session.Status = models.SessionFailed
			session.FailureReason = err.Error()
			session.UpdatedAt = time.Now()
			if uerr := s.sessions.Update(ctx, session); uerr != nil {
				log.Printf("⚠️ Session %s non marquée failed: %v", session.ID, uerr)
			}
		}
		return nil, err
	}

	// Verrou de règlement : deux complete() concurrents ne peuvent pas
	// atteindre le provider tous les deux
	claimed, err := s.sessions.Claim(ctx, session.ID, 2*time.Minute)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, apperrors.New(apperrors.KindConflict, "Règlement déjà en cours pour cette session")
	}

	result, err := s.payments.Charge(ctx, session, in.Payment)
	if err != nil {
		s.sessions.ReleaseClaim(ctx, session.ID)

		if apperrors.IsKind(err, apperrors.KindPayment) {
			// Échec définitif du paiement : la session devient failed,
			// la raison brute reste pour l'audit, seule la version
			// mappée sort
			session.Status = models.SessionFailed
			session.FailureReason = err.Error()
			session.UpdatedAt = time.Now()
			if uerr := s.sessions.Update(ctx, session); uerr != nil {
				log.Printf("⚠️ Session %s non marquée failed: %v", session.ID, uerr)
			}
		}
		return nil, err
	}

	if result.Status == payment.StatusRequiresAction {
		// Pas terminal : l'agent redirige l'acheteur vers le 3-D Secure
		s.sessions.ReleaseClaim(ctx, session.ID)
		return &CompleteResult{
			Status:      payment.StatusRequiresAction,
			Session:     session,
			OrderRef:    result.OrderRef,
			RedirectURL: result.RedirectURL,
		}, nil
	}

	session.Status = models.SessionCompleted
	session.OrderRef = result.OrderRef
	session.UpdatedAt = time.Now()
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}

	log.Printf("✅ Session %s réglée, commande %s", session.ID, session.OrderRef)

	if s.webhooks != nil {
		s.webhooks.DispatchAsync(session.OrderRef, webhook.EventOrderCreated, session, nil)
	}
	if s.mailer != nil {
		go func(sess models.CheckoutSession, ref string) {
			if err := s.mailer.SendOrderConfirmation(&sess, ref); err != nil {
				log.Printf("⚠️ Email de confirmation non envoyé pour %s: %v", ref, err)
			}
		}(*session, session.OrderRef)
	}

	return &CompleteResult{
		Status:   string(models.SessionCompleted),
		Session:  session,
		OrderRef: session.OrderRef,
	}, nil
}

// validateItems résout tous les SKU en un seul lookup et vérifie
// achetabilité + stock. La moindre ligne invalide rejette tout.
func (s *Service) validateItems(ctx context.Context, inputs []ItemInput) ([]models.LineItem, error) {
	if len(inputs) == 0 {
		return nil, apperrors.New(apperrors.KindValidation, "Au moins un article est requis")
	}

	skus := make([]string, 0, len(inputs))
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		if in.SKU == "" {
			return nil, apperrors.New(apperrors.KindValidation, "SKU manquant sur une ligne")
		}
		if in.Quantity < 1 {
			return nil, apperrors.New(apperrors.KindValidation,
				fmt.Sprintf("Quantité invalide pour %s", in.SKU))
		}
		if seen[in.SKU] {
			return nil, apperrors.New(apperrors.KindValidation,
				fmt.Sprintf("SKU en double: %s", in.SKU))
		}
		seen[in.SKU] = true
		skus = append(skus, in.SKU)
	}

	products, err := s.catalog.Resolve(ctx, skus)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDependency, "Catalogue indisponible", err)
	}

	items := make([]models.LineItem, 0, len(inputs))
	for _, in := range inputs {
		product, ok := products[in.SKU]
		if !ok {
			return nil, apperrors.New(apperrors.KindValidation,
				fmt.Sprintf("SKU introuvable: %s", in.SKU))
		}
		if !product.Purchasable {
			return nil, apperrors.New(apperrors.KindValidation,
				fmt.Sprintf("Article non disponible à la vente: %s", product.Name))
		}
		if product.Stock <= 0 {
			return nil, apperrors.New(apperrors.KindValidation,
				fmt.Sprintf("Rupture de stock: %s", product.Name)).
				WithFields(map[string]any{"sku": in.SKU, "available": 0, "requested": in.Quantity})
		}
		if product.Stock < in.Quantity {
			return nil, apperrors.New(apperrors.KindValidation,
				fmt.Sprintf("Stock insuffisant: %s", product.Name)).
				WithFields(map[string]any{"sku": in.SKU, "available": product.Stock, "requested": in.Quantity})
		}

		items = append(items, models.LineItem{
			SKU:          product.SKU,
			ProductRef:   product.ProductRef,
			Name:         product.Name,
			Quantity:     in.Quantity,
			UnitPrice:    product.Price,
			LineSubtotal: product.Price * float64(in.Quantity),
			TaxClass:     product.TaxClass,
		})
	}

	return items, nil
}

// recheckStock re-vérifie toutes les lignes contre le stock courant
func (s *Service) recheckStock(ctx context.Context, session *models.CheckoutSession) error {
	skus := make([]string, 0, len(session.Items))
	for _, item := range session.Items {
		skus = append(skus, item.SKU)
	}

	products, err := s.catalog.Resolve(ctx, skus)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDependency, "Catalogue indisponible", err)
	}

	for _, item := range session.Items {
		product, ok := products[item.SKU]
		if !ok {
			return apperrors.New(apperrors.KindValidation,
				fmt.Sprintf("Article retiré du catalogue: %s", item.SKU))
		}
		if !product.Purchasable {
			return apperrors.New(apperrors.KindValidation,
				fmt.Sprintf("Article non disponible à la vente: %s", product.Name))
		}
		if product.Stock <= 0 {
			return apperrors.New(apperrors.KindValidation,
				fmt.Sprintf("Rupture de stock: %s", product.Name)).
				WithFields(map[string]any{"sku": item.SKU, "available": 0, "requested": item.Quantity})
		}
		if product.Stock < item.Quantity {
			return apperrors.New(apperrors.KindValidation,
				fmt.Sprintf("Stock insuffisant: %s", product.Name)).
				WithFields(map[string]any{"sku": item.SKU, "available": product.Stock, "requested": item.Quantity})
		}
	}

	return nil
}

// applyCoupon valide un code et pose code + réduction sur la session
func (s *Service) applyCoupon(ctx context.Context, session *models.CheckoutSession, code string) error {
	coupon, err := s.coupons.Find(ctx, code)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDependency, "Vérification du coupon indisponible", err)
	}

	validation := pricing.ValidateCoupon(coupon, session.Subtotal)
	if !validation.IsValid {
		return apperrors.New(apperrors.KindValidation, validation.ErrorMessage)
	}

	session.CouponCode = validation.Code
	session.CouponDiscount = validation.Discount
	log.Printf("🎟️ Coupon appliqué sur %s: %s (-%.2f)", session.ID, validation.Code, validation.Discount)
	return nil
}

// refreshCoupon re-dérive la réduction d'un coupon déjà posé après un
// changement de subtotal ; un coupon devenu invalide est retiré
func (s *Service) refreshCoupon(ctx context.Context, session *models.CheckoutSession) error {
	coupon, err := s.coupons.Find(ctx, session.CouponCode)
	if err != nil {
		return apperrors.Wrap(apperrors.KindDependency, "Vérification du coupon indisponible", err)
	}

	validation := pricing.ValidateCoupon(coupon, session.Subtotal)
	if !validation.IsValid {
		log.Printf("⚠️ Coupon %s retiré de %s: %s", session.CouponCode, session.ID, validation.ErrorMessage)
		session.CouponCode = ""
		session.CouponDiscount = 0
		return nil
	}

	session.CouponDiscount = validation.Discount
	return nil
}

// mergeBuyerDetails fusionne les coordonnées acheteur dans l'adresse de
// facturation transmise au provider de paiement
func mergeBuyerDetails(session *models.CheckoutSession, in CompleteInput) {
	if in.ShippingAddress != nil {
		session.ShippingAddress = in.ShippingAddress
	}
	if in.BillingAddress != nil {
		session.BillingAddress = in.BillingAddress
	}
	if in.Buyer == nil {
		return
	}
	if session.BillingAddress == nil {
		session.BillingAddress = &models.Address{}
	}
	if session.BillingAddress.Name == "" {
		session.BillingAddress.Name = fmt.Sprintf("%s %s", in.Buyer.FirstName, in.Buyer.LastName)
	}
	if session.BillingAddress.Email == "" {
		session.BillingAddress.Email = in.Buyer.Email
	}
	if session.BillingAddress.Phone == "" {
		session.BillingAddress.Phone = in.Buyer.Phone
	}
}

func optionExists(options []models.ShippingOption, id string) bool {
	for _, o := range options {
		if o.ID == id {
			return true
		}
	}
	return false
}
