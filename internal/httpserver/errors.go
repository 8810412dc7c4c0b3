package httpserver

import (
	"context"
	"errors"
	"net/http"

	"food-ordering/internal/domain"
	sessionsvc "food-ordering/internal/service/session"
	"github.com/gin-gonic/gin"
)

type errorBody struct {
	StatusCode int           `json:"statusCode"`
	Message    string        `json:"message"`
	Errors     []errorDetail `json:"errors"`
}

type errorDetail struct {
	Code           string `json:"code"`
	Message        string `json:"message"`
	CurrentVersion *int64 `json:"currentVersion,omitempty"`
	Current        any    `json:"current,omitempty"`
	From           string `json:"from,omitempty"`
	To             string `json:"to,omitempty"`
}

// errorMappings is checked in order; the first match wins. A deadline comes
// first: whatever else it wraps, the outcome is unknown.
var errorMappings = []struct {
	target error
	status int
	code   string
}{
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "OutcomeUnknown"},
	{domain.ErrConflict, http.StatusConflict, "ConcurrentModification"},
	{domain.ErrNotFound, http.StatusNotFound, "ResourceNotFound"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "InvalidInput"},
	{domain.ErrInvalidQuantity, http.StatusUnprocessableEntity, "InvalidQuantity"},
	{domain.ErrQuantityLimitExceeded, http.StatusUnprocessableEntity, "QuantityLimitExceeded"},
	{domain.ErrInvalidPrice, http.StatusUnprocessableEntity, "InvalidPrice"},
	{domain.ErrItemNotFound, http.StatusUnprocessableEntity, "ItemNotFound"},
	{domain.ErrEmptyCart, http.StatusUnprocessableEntity, "EmptyCart"},
	{domain.ErrPromoInvalid, http.StatusUnprocessableEntity, "PromoInvalid"},
	{domain.ErrPromoExpired, http.StatusUnprocessableEntity, "PromoExpired"},
	{domain.ErrPromoExhausted, http.StatusUnprocessableEntity, "PromoExhausted"},
	{domain.ErrPromoMinimumNotMet, http.StatusUnprocessableEntity, "PromoMinimumNotMet"},
	{domain.ErrIllegalTransition, http.StatusUnprocessableEntity, "IllegalTransition"},
	{domain.ErrPaymentFailed, http.StatusPaymentRequired, "PaymentFailed"},
	{sessionsvc.ErrInvalidSession, http.StatusUnauthorized, "InvalidSession"},
}

func (h *handlers) writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "InternalError"
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			status, code = m.status, m.code
			break
		}
	}

	detail := errorDetail{Code: code, Message: err.Error()}
	switch status {
	case http.StatusInternalServerError:
		h.logger.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		detail.Message = "internal error"
	case http.StatusGatewayTimeout:
		detail.Message = "the operation did not finish in time; its outcome is unknown, refetch before retrying"
	}

	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		current := conflict.Current
		detail.CurrentVersion = &current
		detail.Current = h.snapshotView(conflict.Snapshot)
	}
	var illegal *domain.IllegalTransitionError
	if errors.As(err, &illegal) {
		detail.From = string(illegal.From)
		detail.To = string(illegal.To)
	}

	c.AbortWithStatusJSON(status, errorBody{
		StatusCode: status,
		Message:    detail.Message,
		Errors:     []errorDetail{detail},
	})
}

func (h *handlers) snapshotView(snapshot any) any {
	switch s := snapshot.(type) {
	case *domain.Cart:
		return toCartView(s, h.deps.Currency)
	case *domain.Order:
		return toOrderView(s, h.deps.Currency)
	case domain.CartSnapshot:
		cart := &domain.Cart{SessionKey: s.SessionKey, Lines: s.Lines, Promo: s.Promo, Version: s.Version}
		return toCartView(cart, h.deps.Currency)
	default:
		return nil
	}
}
