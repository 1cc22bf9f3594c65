package handlers

import (
	"net/http"

	"checkout_back_end/internal/apperrors"
	"checkout_back_end/internal/checkout"
	"checkout_back_end/internal/payment"

	"github.com/gin-gonic/gin"
)

// CheckoutHandlers relie le protocole HTTP à la machine à états
type CheckoutHandlers struct {
	svc *checkout.Service
}

func NewCheckoutHandlers(svc *checkout.Service) *CheckoutHandlers {
	return &CheckoutHandlers{svc: svc}
}

// Create — POST /checkout_sessions
func (h *CheckoutHandlers) Create(c *gin.Context) {
	var in checkout.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "details": err.Error()})
		return
	}

	session, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, checkout.FormatSession(session))
}

// Get — GET /checkout_sessions/:id
func (h *CheckoutHandlers) Get(c *gin.Context) {
	session, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, checkout.FormatSession(session))
}

// Update — POST /checkout_sessions/:id
func (h *CheckoutHandlers) Update(c *gin.Context) {
	var in checkout.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "details": err.Error()})
		return
	}

	session, err := h.svc.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, checkout.FormatSession(session))
}

// Cancel — POST /checkout_sessions/:id/cancel
func (h *CheckoutHandlers) Cancel(c *gin.Context) {
	if err := h.svc.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		apperrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// Complete — POST /checkout_sessions/:id/complete
func (h *CheckoutHandlers) Complete(c *gin.Context) {
	var in checkout.CompleteInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "details": err.Error()})
		return
	}

	result, err := h.svc.Complete(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		apperrors.Respond(c, err)
		return
	}

	if result.Status == payment.StatusRequiresAction {
		c.JSON(http.StatusOK, gin.H{
			"status":       "requires_action",
			"redirect_url": result.RedirectURL,
			"order_id":     result.OrderRef,
		})
		return
	}

	c.JSON(http.StatusCreated, checkout.FormatSession(result.Session))
}
