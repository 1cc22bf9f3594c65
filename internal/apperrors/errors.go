package apperrors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind classe une erreur métier pour le mapping HTTP
type Kind string

const (
	KindValidation   Kind = "validation"
	KindAuth         Kind = "auth"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindInvalidState Kind = "invalid_state"
	KindConflict     Kind = "conflict"
	KindRateLimited  Kind = "rate_limited"
	KindPayment      Kind = "payment"
	KindDependency   Kind = "dependency"
)

// Error porte un kind + un message destiné au client + la cause interne.
// Le message est ce qu'on renvoie ; la cause ne sort jamais telle quelle.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]any // Détails additionnels renvoyés au client (limite, stock dispo, ...)
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New construit une erreur métier sans cause interne
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attache une cause interne (loggée, jamais renvoyée)
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithFields ajoute des détails client-facing
func (e *Error) WithFields(fields map[string]any) *Error {
	e.Fields = fields
	return e
}

// HTTPStatus mappe le kind vers un code HTTP
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation, KindInvalidState:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindPayment:
		return http.StatusPaymentRequired
	case KindDependency:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Respond écrit l'erreur au format maison {"error": "..."} + champs éventuels
func Respond(c *gin.Context, err error) {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = Wrap(KindDependency, "Erreur serveur", err)
	}

	body := gin.H{"error": appErr.Message}
	for k, v := range appErr.Fields {
		body[k] = v
	}
	c.JSON(appErr.HTTPStatus(), body)
}

// IsKind teste le kind d'une erreur éventuellement enveloppée
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}
