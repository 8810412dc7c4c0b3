package httpserver

import (
	"context"
	"log"
	"time"

	"food-ordering/internal/domain"
	sessionrepo "food-ordering/internal/repository/session"
	cartsvc "food-ordering/internal/service/cart"
	checkoutsvc "food-ordering/internal/service/checkout"
	promosvc "food-ordering/internal/service/promo"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type cartService interface {
	Get(ctx context.Context, sessionKey string) (*domain.Cart, error)
	Update(ctx context.Context, sessionKey string, in cartsvc.UpdateInput) (*domain.Cart, error)
}

type checkoutService interface {
	Checkout(ctx context.Context, sessionKey string, in checkoutsvc.Input) (*domain.Order, error)
}

type orderService interface {
	Get(ctx context.Context, id string) (*domain.Order, error)
	NextStatuses(ctx context.Context, id string) (*domain.Order, []domain.OrderStatus, error)
	Transition(ctx context.Context, id string, expected int64, target domain.OrderStatus, actor string) (*domain.Order, error)
	ListByCustomer(ctx context.Context, customerRef string) ([]domain.Order, error)
}

type promoService interface {
	Preview(ctx context.Context, code string, subtotal decimal.Decimal) (*promosvc.Quote, error)
}

type sessionService interface {
	Issue(ctx context.Context) (*sessionrepo.Session, error)
	Validate(ctx context.Context, key string) error
	TTLSeconds() int
}

// Deps are the services behind the routes. SessionSvc is optional; without
// it any session key is accepted. Storage names the backing store on /readyz.
type Deps struct {
	CartSvc     cartService
	CheckoutSvc checkoutService
	OrderSvc    orderService
	PromoSvc    promoService
	SessionSvc  sessionService
	Currency    string
	CORSOrigins []string
	Storage     string
	Probes      []Probe
}

// buildRouter wires routes for the API.
func buildRouter(logger *log.Logger, deps Deps) (*gin.Engine, error) {
	if deps.Currency == "" {
		deps.Currency = "USD"
	}
	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery())
	if len(deps.CORSOrigins) > 0 {
		router.Use(cors.New(corsConfig(deps.CORSOrigins)))
	}

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(deps.Storage, deps.Probes))

	h := &handlers{deps: deps, logger: logger}
	router.POST("/sessions", h.issueSession)

	carts := router.Group("/carts/:sessionKey", h.sessionMiddleware())
	carts.GET("", h.getCart)
	carts.POST("", h.updateCart)
	carts.POST("/checkout", h.checkout)

	router.GET("/orders/:orderId", h.getOrder)
	router.GET("/orders/:orderId/next-statuses", h.nextStatuses)
	router.POST("/orders/:orderId/transitions", h.transitionOrder)
	router.GET("/customers/:customerRef/orders", h.listCustomerOrders)
	router.GET("/promos/:code", h.previewPromo)

	return router, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}
