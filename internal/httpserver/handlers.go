package httpserver

import (
	"log"
	"net/http"
	"strings"

	"food-ordering/internal/domain"
	cartsvc "food-ordering/internal/service/cart"
	checkoutsvc "food-ordering/internal/service/checkout"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type handlers struct {
	deps   Deps
	logger *log.Logger
}

type updateCartRequest struct {
	Version *int64                 `json:"version" binding:"required,min=0"`
	Actions []cartsvc.UpdateAction `json:"actions" binding:"required,min=1"`
}

type checkoutRequest struct {
	Version         *int64 `json:"version" binding:"required,min=0"`
	CustomerRef     string `json:"customerRef" binding:"required"`
	DeliveryAddress string `json:"deliveryAddress" binding:"required"`
	Notes           string `json:"notes"`
}

type transitionRequest struct {
	Version *int64 `json:"version" binding:"required,min=0"`
	Status  string `json:"status" binding:"required"`
	Actor   string `json:"actor" binding:"required"`
}

func (h *handlers) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{
			StatusCode: http.StatusBadRequest,
			Message:    err.Error(),
			Errors:     []errorDetail{{Code: "InvalidJsonInput", Message: err.Error()}},
		})
		return false
	}
	return true
}

func (h *handlers) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.Param("sessionKey"))
		if key == "" {
			h.writeError(c, domain.ErrInvalidInput)
			return
		}
		if h.deps.SessionSvc != nil {
			if err := h.deps.SessionSvc.Validate(c.Request.Context(), key); err != nil {
				h.writeError(c, err)
				return
			}
		}
		c.Next()
	}
}

func (h *handlers) issueSession(c *gin.Context) {
	if h.deps.SessionSvc == nil {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	sess, err := h.deps.SessionSvc.Issue(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"sessionKey": sess.Key,
		"expiresIn":  h.deps.SessionSvc.TTLSeconds(),
		"expiresAt":  sess.ExpiresAt,
	})
}

func (h *handlers) getCart(c *gin.Context) {
	cart, err := h.deps.CartSvc.Get(c.Request.Context(), c.Param("sessionKey"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartView(cart, h.deps.Currency))
}

func (h *handlers) updateCart(c *gin.Context) {
	var req updateCartRequest
	if !h.bindJSON(c, &req) {
		return
	}
	cart, err := h.deps.CartSvc.Update(c.Request.Context(), c.Param("sessionKey"), cartsvc.UpdateInput{
		Version: *req.Version,
		Actions: req.Actions,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartView(cart, h.deps.Currency))
}

func (h *handlers) checkout(c *gin.Context) {
	var req checkoutRequest
	if !h.bindJSON(c, &req) {
		return
	}
	order, err := h.deps.CheckoutSvc.Checkout(c.Request.Context(), c.Param("sessionKey"), checkoutsvc.Input{
		Version:         *req.Version,
		CustomerRef:     req.CustomerRef,
		DeliveryAddress: req.DeliveryAddress,
		Notes:           req.Notes,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toOrderView(order, h.deps.Currency))
}

func (h *handlers) getOrder(c *gin.Context) {
	order, err := h.deps.OrderSvc.Get(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderView(order, h.deps.Currency))
}

func (h *handlers) nextStatuses(c *gin.Context) {
	order, next, err := h.deps.OrderSvc.NextStatuses(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orderId":      order.ID,
		"version":      order.Version,
		"orderState":   order.Status,
		"terminal":     order.Status.IsTerminal(),
		"nextStatuses": next,
	})
}

func (h *handlers) transitionOrder(c *gin.Context) {
	var req transitionRequest
	if !h.bindJSON(c, &req) {
		return
	}
	order, err := h.deps.OrderSvc.Transition(c.Request.Context(), c.Param("orderId"), *req.Version, domain.OrderStatus(strings.TrimSpace(req.Status)), req.Actor)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderView(order, h.deps.Currency))
}

func (h *handlers) listCustomerOrders(c *gin.Context) {
	orders, err := h.deps.OrderSvc.ListByCustomer(c.Request.Context(), c.Param("customerRef"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	results := make([]orderView, 0, len(orders))
	for i := range orders {
		results = append(results, toOrderView(&orders[i], h.deps.Currency))
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(results),
		"total":   len(results),
		"results": results,
	})
}

// previewPromo validates a code without redeeming it, either against the
// cart of ?sessionKey= or against an explicit ?subtotal=.
func (h *handlers) previewPromo(c *gin.Context) {
	ctx := c.Request.Context()
	var subtotal decimal.Decimal
	switch {
	case c.Query("sessionKey") != "":
		cart, err := h.deps.CartSvc.Get(ctx, c.Query("sessionKey"))
		if err != nil {
			h.writeError(c, err)
			return
		}
		subtotal = cart.Subtotal()
	case c.Query("subtotal") != "":
		d, err := decimal.NewFromString(c.Query("subtotal"))
		if err != nil || d.IsNegative() {
			h.writeError(c, domain.ErrInvalidInput)
			return
		}
		subtotal = d
	default:
		h.writeError(c, domain.ErrInvalidInput)
		return
	}

	quote, err := h.deps.PromoSvc.Preview(ctx, c.Param("code"), subtotal)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":           quote.Promo.Code,
		"rule":           quote.Promo.Rule,
		"minOrderAmount": toMoney(quote.Promo.MinOrderAmount, h.deps.Currency),
		"subtotal":       toMoney(quote.Subtotal, h.deps.Currency),
		"discount":       toMoney(quote.Discount, h.deps.Currency),
		"remaining":      quote.Promo.MaxRedemptions - quote.Promo.CurrentRedemptions,
		"validTo":        optionalTime(quote.Promo.ValidTo),
	})
}
