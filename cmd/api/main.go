package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"food-ordering/internal/cache"
	"food-ordering/internal/config"
	"food-ordering/internal/db"
	"food-ordering/internal/events"
	"food-ordering/internal/httpserver"
	"food-ordering/internal/payment"
	cartrepo "food-ordering/internal/repository/cart"
	checkoutrepo "food-ordering/internal/repository/checkout"
	orderrepo "food-ordering/internal/repository/order"
	promorepo "food-ordering/internal/repository/promo"
	sessionrepo "food-ordering/internal/repository/session"
	"food-ordering/internal/seed"
	cartsvc "food-ordering/internal/service/cart"
	checkoutsvc "food-ordering/internal/service/checkout"
	ordersvc "food-ordering/internal/service/order"
	promosvc "food-ordering/internal/service/promo"
	sessionsvc "food-ordering/internal/service/session"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type stores struct {
	carts     cartrepo.Repository
	orders    orderrepo.Repository
	promos    promorepo.Repository
	sessions  sessionrepo.Repository
	committer checkoutrepo.Committer
}

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.LUTC|log.Lshortfile)

	ctx := context.Background()

	var (
		dbpool *pgxpool.Pool
		st     stores
		probes []httpserver.Probe
	)
	switch cfg.Storage {
	case config.StorageMemory:
		carts, orders, promos := cartrepo.NewMemory(), orderrepo.NewMemory(), promorepo.NewMemory()
		st = stores{
			carts:     carts,
			orders:    orders,
			promos:    promos,
			sessions:  sessionrepo.NewMemory(),
			committer: checkoutrepo.NewMemory(carts, orders),
		}
		if err := seed.Apply(ctx, promos, time.Now()); err != nil {
			logger.Fatalf("seed memory promos: %v", err)
		}
		logger.Printf("using in-memory storage with demo promo codes")
	default:
		var err error
		dbpool, err = db.Connect(ctx, cfg.DBConnString)
		if err != nil {
			logger.Fatalf("connect to db: %v", err)
		}
		defer dbpool.Close()
		st = stores{
			carts:     cartrepo.NewPostgres(dbpool),
			orders:    orderrepo.NewPostgres(dbpool, logger),
			promos:    promorepo.NewPostgres(dbpool, logger),
			sessions:  sessionrepo.NewPostgres(dbpool),
			committer: checkoutrepo.NewPostgres(dbpool, logger),
		}
		probes = append(probes, httpserver.Probe{Name: "postgres", Ping: dbpool.Ping})
	}

	var cartCache cache.CartCache = cache.Noop{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Printf("redis %s not reachable, cart cache disabled: %v", cfg.RedisAddr, err)
		} else {
			cartCache = cache.NewRedisCache(rdb, cfg.CartCacheTTL)
			logger.Printf("cart cache on redis %s", cfg.RedisAddr)
			probes = append(probes, httpserver.Probe{
				Name:     "redis",
				Optional: true,
				Ping:     func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			})
		}
	}

	publisher, closePublisher := newPublisher(cfg, logger)
	defer closePublisher()

	gateway := payment.NewBreaker(payment.NewFakeGateway(cfg.PaymentDeclineAbove), cfg.PaymentTimeout, logger)

	promoService := promosvc.New(st.promos, logger)
	cartService := cartsvc.New(st.carts, promoService, cartsvc.Options{
		Cache:            cartCache,
		Logger:           logger,
		OperationTimeout: cfg.OperationTimeout,
	})
	orderService := ordersvc.New(st.orders, publisher, logger)
	checkoutService := checkoutsvc.New(checkoutsvc.Deps{
		Carts:            cartService,
		Promos:           promoService,
		Orders:           orderService,
		Payments:         gateway,
		Committer:        st.committer,
		Logger:           logger,
		OperationTimeout: cfg.OperationTimeout,
	})
	sessionService := sessionsvc.New(st.sessions, cfg.SessionTTL)

	srv, err := httpserver.New(cfg.HTTPAddr, logger, httpserver.Deps{
		CartSvc:     cartService,
		CheckoutSvc: checkoutService,
		OrderSvc:    orderService,
		PromoSvc:    promoService,
		SessionSvc:  sessionService,
		Currency:    cfg.Currency,
		CORSOrigins: cfg.CORSAllowOrigins,
		Storage:     cfg.Storage,
		Probes:      probes,
	})
	if err != nil {
		logger.Fatalf("init server: %v", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("starting http server on %s (storage=%s)", cfg.HTTPAddr, cfg.Storage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Printf("received signal %s, shutting down", sig)
	case err := <-serverErr:
		logger.Printf("server error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	} else {
		logger.Printf("server stopped")
	}
}

// newPublisher returns the Kafka publisher when brokers are configured and
// otherwise an in-process hub whose events are written to the log.
func newPublisher(cfg config.Config, logger *log.Logger) (events.Publisher, func()) {
	if len(cfg.KafkaBrokers) > 0 {
		logger.Printf("publishing order events to kafka topic %s", cfg.KafkaTopic)
		p := events.NewKafkaPublisher(cfg.KafkaTopic, cfg.KafkaBrokers...)
		return p, func() { closeLogged(logger, "kafka publisher", p) }
	}

	hub := events.NewHub()
	ch, unsubscribe := hub.Subscribe(64)
	go func() {
		for ev := range ch {
			logger.Printf("event %s aggregate=%s id=%s", ev.Type, ev.AggregateID, ev.ID)
		}
	}()
	return hub, func() {
		unsubscribe()
		closeLogged(logger, "event hub", hub)
	}
}

func closeLogged(logger *log.Logger, name string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Printf("close %s: %v", name, err)
	}
}
