package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"checkout_back_end/internal/apperrors"
	"checkout_back_end/internal/catalog"
	"checkout_back_end/internal/config"
	"checkout_back_end/internal/kv"
	"checkout_back_end/internal/models"
	"checkout_back_end/internal/payment"
	"checkout_back_end/internal/pricing"
	"checkout_back_end/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockProvider simule le provider de paiement
type mockProvider struct {
	mu     sync.Mutex
	result payment.Result
	err    error
	calls  int
}

func (m *mockProvider) Charge(_ context.Context, _ *models.CheckoutSession, _ payment.PaymentData) (payment.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.result, m.err
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type testEnv struct {
	svc      *Service
	catalog  *catalog.MemoryCatalog
	sessions *store.SessionStore
	provider *mockProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cat := catalog.NewMemoryCatalog(
		models.Product{SKU: "TSHIRT-M", ProductRef: "prod-1", Name: "T-shirt M", Price: 19.99, Currency: "eur", Stock: 10, Purchasable: true, TaxClass: "standard"},
		models.Product{SKU: "MUG", ProductRef: "prod-2", Name: "Mug Cedra", Price: 12.50, Currency: "eur", Stock: 2, Purchasable: true, TaxClass: "standard"},
		models.Product{SKU: "RETIRE", ProductRef: "prod-3", Name: "Article retiré", Price: 9.99, Currency: "eur", Stock: 5, Purchasable: false, TaxClass: "standard"},
		models.Product{SKU: "EPUISE", ProductRef: "prod-4", Name: "Article épuisé", Price: 4.99, Currency: "eur", Stock: 0, Purchasable: true, TaxClass: "standard"},
	)

	coupons := pricing.NewMemoryCouponSource(
		models.Coupon{Code: "PROMO10", Type: "percentage", Value: 10, IsActive: true, StartsAt: time.Now().Add(-time.Hour), ExpiresAt: time.Now().Add(time.Hour)},
		models.Coupon{Code: "FIXE50", Type: "fixed", Value: 50, IsActive: true, StartsAt: time.Now().Add(-time.Hour), ExpiresAt: time.Now().Add(time.Hour)},
		models.Coupon{Code: "PERIME", Type: "percentage", Value: 10, IsActive: true, StartsAt: time.Now().Add(-2 * time.Hour), ExpiresAt: time.Now().Add(-time.Hour)},
	)

	sessions := store.NewSessionStore(kv.NewMemoryStore(), time.Hour)
	engine := pricing.NewEngine(
		pricing.NewStaticShippingRater(),
		pricing.NewTableTaxRater(),
		pricing.Options{ShippingTaxEnabled: true, ShippingTaxClass: "inherit"},
	)
	provider := &mockProvider{result: payment.Result{Status: payment.StatusCompleted, OrderRef: "CMD-001"}}

	settings := config.Settings{Currency: "eur", SessionTTL: time.Hour}
	svc := NewService(sessions, cat, engine, coupons, provider, nil, nil, settings)

	return &testEnv{svc: svc, catalog: cat, sessions: sessions, provider: provider}
}

func frShipping() *models.Address {
	return &models.Address{Street: "1 rue de Rivoli", City: "Paris", PostalCode: "75001", Country: "FR"}
}

func TestCreate_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		items []ItemInput
	}{
		{"aucun article", nil},
		{"sku manquant", []ItemInput{{SKU: "", Quantity: 1}}},
		{"quantité nulle", []ItemInput{{SKU: "TSHIRT-M", Quantity: 0}}},
		{"sku en double", []ItemInput{{SKU: "TSHIRT-M", Quantity: 1}, {SKU: "TSHIRT-M", Quantity: 2}}},
		{"sku introuvable", []ItemInput{{SKU: "INEXISTANT", Quantity: 1}}},
		{"non achetable", []ItemInput{{SKU: "RETIRE", Quantity: 1}}},
		{"rupture de stock", []ItemInput{{SKU: "EPUISE", Quantity: 1}}},
		{"stock insuffisant", []ItemInput{{SKU: "MUG", Quantity: 3}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.Create(ctx, CreateInput{Items: tc.items})
			require.Error(t, err)
			assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
		})
	}
}

func TestCreate_InsufficientStockFields(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Create(context.Background(), CreateInput{
		Items: []ItemInput{{SKU: "MUG", Quantity: 5}},
	})
	require.Error(t, err)

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "MUG", appErr.Fields["sku"])
	assert.Equal(t, 2, appErr.Fields["available"])
	assert.Equal(t, 5, appErr.Fields["requested"])
}

func TestCreate_PersistsActiveSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.svc.Create(ctx, CreateInput{
		Items:           []ItemInput{{SKU: "TSHIRT-M", Quantity: 2}},
		ShippingAddress: frShipping(),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, session.ID)
	assert.Equal(t, models.SessionActive, session.Status)
	assert.Equal(t, 39.98, session.Subtotal)
	require.NotNil(t, session.ShippingOptions)
	assert.NotEmpty(t, *session.ShippingOptions)
	assert.Greater(t, session.Total, session.Subtotal, "livraison et TVA s'ajoutent au subtotal")

	stored, err := env.svc.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.Total, stored.Total)
}

func TestCreate_NoAddress_NoShippingOptions(t *testing.T) {
	env := newTestEnv(t)

	session, err := env.svc.Create(context.Background(), CreateInput{
		Items: []ItemInput{{SKU: "TSHIRT-M", Quantity: 1}},
	})
	require.NoError(t, err)

	assert.Nil(t, session.ShippingOptions)
	assert.Equal(t, 0.0, session.ShippingTotal)
	assert.Equal(t, session.Subtotal, session.Total)
}

func TestGet_Unknown(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Get(context.Background(), "n-existe-pas")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestUpdate_SelectShippingMethod(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.svc.Create(ctx, CreateInput{
		Items:           []ItemInput{{SKU: "TSHIRT-M", Quantity: 1}},
		ShippingAddress: frShipping(),
	})
	require.NoError(t, err)

	method := "express"
	updated, err := env.svc.Update(ctx, session.ID, UpdateInput{ShippingMethod: &method})
	require.NoError(t, err)

	assert.Equal(t, "express", updated.SelectedShippingMethod)
	assert.Equal(t, 12.99, updated.ShippingTotal)
}

func TestUpdate_InvalidShippingMethod(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.svc.Create(ctx, CreateInput{
		Items:           []ItemInput{{SKU: "TSHIRT-M", Quantity: 1}},
		ShippingAddress: frShipping(),
	})
	require.NoError(t, err)

	method := "pigeon-voyageur"
	_, err = env.svc.Update(ctx, session.ID, UpdateInput{ShippingMethod: &method})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestUpdate_ShippingMethodWithoutAddress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.svc.Create(ctx, CreateInput{
		Items: []ItemInput{{SKU: "TSHIRT-M", Quantity: 1}},
	})
	require.NoError(t, err)

	method := "standard"
	_, err = env.svc.Update(ctx, session.ID, UpdateInput{ShippingMethod: &method})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestUpdate_ApplyAndRemoveCoupon(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.svc.Create(ctx, CreateInput{
		Items: []ItemInput{{SKU: "TSHIRT-M", Quantity: 2}},
	})
	require.NoError(t, err)

	code := "promo10"
	updated, err := env.svc.Update(ctx, session.ID, UpdateInput{CouponCode: &code})
	require.NoError(t, err)
	assert.Equal(t, "PROMO10", updated.CouponCode)
	assert.Equal(t, 4.0, updated.CouponDiscount, "dix pour cent de 39.98, arrondi")
	assert.Equal(t, 35.98, updated.Total)

	updated, err = env.svc.Update(ctx, session.ID, UpdateInput{RemoveCoupon: true})
	require.NoError(t, err)
	assert.Empty(t, updated.CouponCode)
	assert.Equal(t, 0.0, updated.CouponDiscount)
	assert.Equal(t, 39.98, updated.Total)
}

func TestUpdate_CouponRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.svc.Create(ctx, CreateInput{
		Items: []ItemInput{{SKU: "TSHIRT-M", Quantity: 1}},
	})
	require.NoError(t, err)

	for _, code := range []string{"INCONNU", "PERIME"} {
		c := code
		_, err = env.svc.Update(ctx, session.ID, UpdateInput{CouponCode: &c})
		require.Error(t, err, "coupon %s", code)
		assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	}
}

func TestUpdate_CouponRederivedAfterItemsChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Subtotal 39.98, coupon fixe de 50 plafonné au subtotal
	session, err := env.svc.Create(ctx, CreateInput{
		Items: []ItemInput{{SKU: "TSHIRT-M", Quantity: 2}},
	})
	require.NoError(t, err)

	code := "FIXE50"
	updated, err := env.svc.Update(ctx, session.ID, UpdateInput{CouponCode: &code})
	require.NoError(t, err)
	assert.Equal(t, 39.98, updated.CouponDiscount)
	assert.Equal(t, 0.0, updated.Total)

	// Le panier grossit : la réduction est re-dérivée, pas conservée
	items := []ItemInput{{SKU: "TSHIRT-M", Quantity: 4}}
	updated, err = env.svc.Update(ctx, session.ID, UpdateInput{Items: &items})
	require.NoError(t, err)
	assert.Equal(t, 50.0, updated.CouponDiscount)
	assert.Equal(t, 79.96, updated.Subtotal)
	assert.Equal(t, 29.96, updated.Total)
}

func TestUpdate_NotActive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session := completedSession(t, env)

	items := []ItemInput{{SKU: "MUG", Quantity: 1}}
	_, err := env.svc.Update(ctx, session.ID, UpdateInput{Items: &items})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidState))
}

func TestCancel_ThenGone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.svc.Create(ctx, CreateInput{
		Items: []ItemInput{{SKU: "TSHIRT-M", Quantity: 1}},
	})
	require.NoError(t, err)

	require.NoError(t, env.svc.Cancel(ctx, session.ID))

	_, err = env.svc.Get(ctx, session.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	err = env.svc.Cancel(ctx, session.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestComplete_EmptyToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.svc.Create(ctx, CreateInput{
		Items: []ItemInput{{SKU: "TSHIRT-M", Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = env.svc.Complete(ctx, session.ID, CompleteInput{})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	assert.Equal(t, 0, env.provider.callCount())
}

func TestComplete_Success(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.svc.Create(ctx, CreateInput{
		Items:           []ItemInput{{SKU: "TSHIRT-M", Quantity: 1}},
		ShippingAddress: frShipping(),
	})
	require.NoError(t, err)

	result, err := env.svc.Complete(ctx, session.ID, CompleteInput{
		Payment: payment.PaymentData{Token: "pm_card_visa"},
		Buyer:   &Buyer{FirstName: "Jean", LastName: "Dupont", Email: "jean@example.com"},
	})
	require.NoError(t, err)

	assert.Equal(t, string(models.SessionCompleted), result.Status)
	assert.Equal(t, "CMD-001", result.OrderRef)
	assert.Equal(t, 1, env.provider.callCount())

	stored, err := env.svc.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, stored.Status)
	assert.Equal(t, "CMD-001", stored.OrderRef)
	require.NotNil(t, stored.BillingAddress)
	assert.Equal(t, "Jean Dupont", stored.BillingAddress.Name)
	assert.Equal(t, "jean@example.com", stored.BillingAddress.Email)

	// Une session réglée ne se règle pas deux fois
	_, err = env.svc.Complete(ctx, session.ID, CompleteInput{
		Payment: payment.PaymentData{Token: "pm_card_visa"},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidState))
	assert.Equal(t, 1, env.provider.callCount())
}

func TestComplete_RequiresActionPassthrough(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.provider.result = payment.Result{
		Status:      payment.StatusRequiresAction,
		OrderRef:    "CMD-3DS",
		RedirectURL: "https://hooks.stripe.com/3ds",
	}

	session, err := env.svc.Create(ctx, CreateInput{
		Items: []ItemInput{{SKU: "TSHIRT-M", Quantity: 1}},
	})
	require.NoError(t, err)

	result, err := env.svc.Complete(ctx, session.ID, CompleteInput{
		Payment: payment.PaymentData{Token: "pm_card_3ds"},
	})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusRequiresAction, result.Status)
	assert.Equal(t, "https://hooks.stripe.com/3ds", result.RedirectURL)

	// Pas terminal : la session reste active et un nouveau règlement
	// passe (le verrou a été relâché)
	stored, err := env.svc.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, stored.Status)

	env.provider.result = payment.Result{Status: payment.StatusCompleted, OrderRef: "CMD-002"}
	result, err = env.svc.Complete(ctx, session.ID, CompleteInput{
		Payment: payment.PaymentData{Token: "pm_card_visa"},
	})
	require.NoError(t, err)
	assert.Equal(t, string(models.SessionCompleted), result.Status)
}

func TestComplete_PaymentDeclined(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.provider.err = apperrors.New(apperrors.KindPayment, "Votre carte a été refusée")
	env.provider.result = payment.Result{}

	session, err := env.svc.Create(ctx, CreateInput{
		Items: []ItemInput{{SKU: "TSHIRT-M", Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = env.svc.Complete(ctx, session.ID, CompleteInput{
		Payment: payment.PaymentData{Token: "pm_card_declined"},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindPayment))

	stored, err := env.svc.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionFailed, stored.Status)
	assert.NotEmpty(t, stored.FailureReason)
}

func TestComplete_DependencyErrorLeavesSessionActive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.provider.err = apperrors.New(apperrors.KindDependency, "Le paiement est momentanément indisponible")

	session, err := env.svc.Create(ctx, CreateInput{
		Items: []ItemInput{{SKU: "TSHIRT-M", Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = env.svc.Complete(ctx, session.ID, CompleteInput{
		Payment: payment.PaymentData{Token: "pm_card_visa"},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindDependency))

	// Erreur transitoire : la session reste active, l'agent peut retenter
	stored, err := env.svc.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, stored.Status)

	env.provider.err = nil
	env.provider.result = payment.Result{Status: payment.StatusCompleted, OrderRef: "CMD-004"}
	result, err := env.svc.Complete(ctx, session.ID, CompleteInput{
		Payment: payment.PaymentData{Token: "pm_card_visa"},
	})
	require.NoError(t, err)
	assert.Equal(t, "CMD-004", result.OrderRef)
}

func TestComplete_StockRaceMarksSessionFailed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.svc.Create(ctx, CreateInput{
		Items: []ItemInput{{SKU: "MUG", Quantity: 2}},
	})
	require.NoError(t, err)

	// Le stock part entre la création et le règlement
	env.catalog.SetStock("MUG", 1)

	_, err = env.svc.Complete(ctx, session.ID, CompleteInput{
		Payment: payment.PaymentData{Token: "pm_card_visa"},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	assert.Equal(t, 0, env.provider.callCount(), "le provider ne doit jamais être appelé")

	stored, err := env.svc.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionFailed, stored.Status)
	assert.NotEmpty(t, stored.FailureReason)
}

func TestComplete_ConcurrentClaim(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.svc.Create(ctx, CreateInput{
		Items: []ItemInput{{SKU: "TSHIRT-M", Quantity: 1}},
	})
	require.NoError(t, err)

	// Un autre règlement tient déjà le verrou
	claimed, err := env.sessions.Claim(ctx, session.ID, time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = env.svc.Complete(ctx, session.ID, CompleteInput{
		Payment: payment.PaymentData{Token: "pm_card_visa"},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
	assert.Equal(t, 0, env.provider.callCount())
}

// completedSession crée puis règle une session, pour les tests qui
// partent d'un état terminal
func completedSession(t *testing.T, env *testEnv) *models.CheckoutSession {
	t.Helper()
	ctx := context.Background()

	session, err := env.svc.Create(ctx, CreateInput{
		Items: []ItemInput{{SKU: "TSHIRT-M", Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = env.svc.Complete(ctx, session.ID, CompleteInput{
		Payment: payment.PaymentData{Token: "pm_card_visa"},
	})
	require.NoError(t, err)

	return session
}
