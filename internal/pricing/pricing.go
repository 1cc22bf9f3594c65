package pricing

import (
	"context"
	"fmt"
	"math"
	"time"

	"checkout_back_end/internal/apperrors"
	"checkout_back_end/internal/models"
)

// ShippingRater — collaborateur de calcul des options de livraison.
// Retourne zéro ou plusieurs options nommées pour le colis décrit.
type ShippingRater interface {
	Rates(ctx context.Context, pkg models.PackageSpec) ([]models.ShippingOption, error)
}

// TaxRater — collaborateur de taux de taxe : classe de taxe + adresse → taux
// (0.20 = 20%)
type TaxRater interface {
	Rate(ctx context.Context, taxClass string, addr models.Address) (float64, error)
}

// CouponSource — lookup d'un code promo
type CouponSource interface {
	Find(ctx context.Context, code string) (*models.Coupon, error)
}

// Options de l'engine
type Options struct {
	ShippingTaxEnabled bool
	// Classe de taxe appliquée au transport ; "inherit" = reprendre la
	// classe standard
	ShippingTaxClass string
	StandardTaxClass string
}

// Engine calcule subtotal, livraison, taxes, réduction et total.
// Seul écrivain des champs monétaires d'une session.
type Engine struct {
	shipping ShippingRater
	tax      TaxRater
	opts     Options
}

func NewEngine(shipping ShippingRater, tax TaxRater, opts Options) *Engine {
	if opts.StandardTaxClass == "" {
		opts.StandardTaxClass = "standard"
	}
	if opts.ShippingTaxClass == "" {
		opts.ShippingTaxClass = "inherit"
	}
	return &Engine{shipping: shipping, tax: tax, opts: opts}
}

// Subtotal = Σ(prix unitaire × quantité)
func Subtotal(items []models.LineItem) float64 {
	var total float64
	for _, item := range items {
		total += item.UnitPrice * float64(item.Quantity)
	}
	return round2(total)
}

// Recompute recalcule toute la grille tarifaire de la session :
// subtotal → options de livraison (si destination) → taxes → total.
// C'est TOUJOURS un recalcul complet, jamais une retouche partielle.
func (e *Engine) Recompute(ctx context.Context, s *models.CheckoutSession) error {
	s.Subtotal = Subtotal(s.Items)

	// Options de livraison : uniquement avec une adresse de livraison.
	// Sans destination le champ est nil, donc absent de la réponse —
	// exigence protocole, pas une liste vide.
	if s.ShippingAddress != nil {
		options, err := e.shipping.Rates(ctx, models.PackageSpec{
			Items:       s.Items,
			Destination: *s.ShippingAddress,
			Subtotal:    s.Subtotal,
			Currency:    s.Currency,
		})
		if err != nil {
			return apperrors.Wrap(apperrors.KindDependency, "Calcul de livraison indisponible", err)
		}
		if options == nil {
			options = []models.ShippingOption{}
		}
		s.ShippingOptions = &options

		// Une méthode sélectionnée qui ne correspond plus à aucune
		// option retombe à "aucune sélection"
		if s.SelectedShippingMethod != "" && !hasOption(options, s.SelectedShippingMethod) {
			s.SelectedShippingMethod = ""
		}
	} else {
		s.ShippingOptions = nil
		s.SelectedShippingMethod = ""
	}

	s.ShippingTotal = s.ShippingTotalFor()

	taxTotal, err := e.taxTotal(ctx, s)
	if err != nil {
		return err
	}
	s.TaxTotal = taxTotal

	total := s.Subtotal + s.ShippingTotal + s.TaxTotal - s.CouponDiscount
	s.Total = round2(math.Max(0, total))
	s.UpdatedAt = time.Now()

	return nil
}

// taxTotal : taxe par ligne selon la classe de taxe de l'article et
// l'adresse retenue (livraison de préférence, sinon facturation), plus
// la taxe sur le transport si activée et transport non nul
func (e *Engine) taxTotal(ctx context.Context, s *models.CheckoutSession) (float64, error) {
	addr := s.ShippingAddress
	if addr == nil {
		addr = s.BillingAddress
	}
	if addr == nil {
		return 0, nil
	}

	var total float64
	for _, item := range s.Items {
		class := item.TaxClass
		if class == "" {
			class = e.opts.StandardTaxClass
		}
		rate, err := e.tax.Rate(ctx, class, *addr)
		if err != nil {
			return 0, apperrors.Wrap(apperrors.KindDependency, "Calcul de taxe indisponible", err)
		}
		total += item.LineSubtotal * rate
	}

	if e.opts.ShippingTaxEnabled && s.ShippingTotal > 0 {
		class := e.opts.ShippingTaxClass
		if class == "inherit" {
			class = e.opts.StandardTaxClass
		}
		rate, err := e.tax.Rate(ctx, class, *addr)
		if err != nil {
			return 0, apperrors.Wrap(apperrors.KindDependency, "Calcul de taxe indisponible", err)
		}
		total += s.ShippingTotal * rate
	}

	return round2(total), nil
}

// ValidateCoupon vérifie un coupon contre le subtotal courant et
// calcule la réduction : pourcentage du subtotal (plafonné par
// max_amount), ou montant fixe min(valeur, subtotal)
func ValidateCoupon(coupon *models.Coupon, subtotal float64) models.CouponValidation {
	now := time.Now()

	if coupon == nil {
		return invalid("Code coupon invalide")
	}
	if !coupon.IsActive {
		return invalid("Ce coupon n'est plus actif")
	}
	if now.Before(coupon.StartsAt) {
		return invalid("Ce coupon n'est pas encore valide")
	}
	if !coupon.ExpiresAt.IsZero() && now.After(coupon.ExpiresAt) {
		return invalid("Ce coupon a expiré")
	}
	if subtotal < coupon.MinAmount {
		return invalid(fmt.Sprintf("Montant minimum requis: %.2f€", coupon.MinAmount))
	}

	var discount float64
	switch coupon.Type {
	case "percentage":
		discount = subtotal * (coupon.Value / 100)
		if coupon.MaxAmount != nil && discount > *coupon.MaxAmount {
			discount = *coupon.MaxAmount
		}
	case "fixed":
		discount = coupon.Value
		if discount > subtotal {
			discount = subtotal
		}
	default:
		return invalid("Type de coupon invalide")
	}

	return models.CouponValidation{
		IsValid:  true,
		Discount: round2(discount),
		Type:     coupon.Type,
		Code:     coupon.Code,
	}
}

func invalid(msg string) models.CouponValidation {
	return models.CouponValidation{IsValid: false, ErrorMessage: msg}
}

func hasOption(options []models.ShippingOption, id string) bool {
	for _, o := range options {
		if o.ID == id {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
