package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"chainpay/internal/chain"
	"chainpay/internal/chain/bitcoin"
	"chainpay/internal/chain/solana"
	"chainpay/internal/config"
	"chainpay/internal/metrics"
	notificationrepository "chainpay/internal/notification/repository"
	notificationhttp "chainpay/internal/notification/transport/http"
	paymentrepository "chainpay/internal/payment/repository"
	paymentservice "chainpay/internal/payment/service"
	paymenthttp "chainpay/internal/payment/transport/http"
	"chainpay/internal/pricing"
	subscriptionrepository "chainpay/internal/subscription/repository"
	subscriptionhttp "chainpay/internal/subscription/transport/http"
	"chainpay/pkg/db"
	"chainpay/pkg/logger"
	"chainpay/pkg/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Initialize(os.Getenv("APP_ENV"))
		logger.Log.Fatal("invalid configuration", zap.Error(err))
	}
	logger.Initialize(cfg.Env)
	defer logger.Sync()

	logger.Log.Info("chainpay API starting", zap.String("env", cfg.Env))

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Log.Fatal("database connection failed", zap.Error(err))
	}
	defer database.Close()
	logger.Log.Info("connected to PostgreSQL")

	if err := db.RunMigrations(database); err != nil {
		logger.Log.Fatal("migrations failed", zap.Error(err))
	}

	metrics.InitMetrics()

	registry, err := newVerifierRegistry(cfg)
	if err != nil {
		logger.Log.Fatal("chain verifiers init failed", zap.Error(err))
	}

	// --- ИНИЦИАЛИЗАЦИЯ СЛОЁВ ---
	paymentRepo := paymentrepository.NewPostgresPaymentRepository(database)
	subRepo := subscriptionrepository.NewSubscriptionRepository(database)
	notifRepo := notificationrepository.NewNotificationRepository(database)

	quoter := pricing.NewService(pricing.NewBinanceFeed(cfg.BinanceAPIURL), cfg.PlanPrices)
	paymentSvc := paymentservice.NewService(
		paymentRepo,
		paymentservice.NewTxActivator(database),
		registry,
		quoter,
		cfg.Treasuries(),
	)
	paymentSvc.IntentTTL = cfg.PaymentIntentTTL

	paymentHandler := paymenthttp.NewPaymentHandler(paymentSvc)
	subHandler := subscriptionhttp.NewSubscriptionHandler(subRepo)
	notifHandler := notificationhttp.NewNotificationHandler(notifRepo)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newRouter(cfg, database, paymentHandler, subHandler, notifHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown на сигналы ОС
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		logger.Log.Info("shutdown signal received, starting graceful shutdown")
		shutdownServer(server)
	}()

	logger.Log.Info("server running", zap.String("addr", cfg.HTTPAddr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Log.Fatal("server failed", zap.Error(err))
	}
}

func newVerifierRegistry(cfg *config.Config) (*chain.Registry, error) {
	httpClient := chain.NewHTTPClient(cfg.ChainProxyAddr, cfg.ChainQueryTimeout)

	var verifiers []chain.Verifier
	if cfg.BTCTreasuryAddress != "" {
		mempool := bitcoin.NewMempoolClient(cfg.MempoolAPIURL, httpClient, cfg.ChainQueryTimeout)
		verifiers = append(verifiers, bitcoin.NewVerifier(mempool, cfg.BTCTreasuryAddress))
	}
	if cfg.SOLTreasuryAddress != "" {
		rpcClient := solana.NewRPCClient(cfg.SolanaRPCURL, httpClient, cfg.ChainQueryTimeout)
		v, err := solana.NewVerifier(rpcClient, cfg.SOLTreasuryAddress)
		if err != nil {
			return nil, err
		}
		verifiers = append(verifiers, v)
	}
	return chain.NewRegistry(verifiers...), nil
}

func newRouter(
	cfg *config.Config,
	database *sql.DB,
	paymentHandler *paymenthttp.Handler,
	subHandler *subscriptionhttp.Handler,
	notifHandler *notificationhttp.Handler,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.MetricsMiddleware)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	limiter := middleware.NewRateLimiter(120, time.Minute)

	// 🔐 Защищённая группа маршрутов
	r.Group(func(pr chi.Router) {
		pr.Use(limiter.Middleware)
		pr.Use(middleware.JWTAuth(cfg.JWTSecret))
		pr.Use(middleware.ValidateRequest)

		pr.Post("/verify-payment", paymentHandler.VerifyPayment)
		pr.Post("/api/payment/intent", paymentHandler.CreateIntent)
		pr.Get("/api/payment/{id}", paymentHandler.GetPayment)

		pr.Get("/api/subscription", subHandler.GetSubscription)
		pr.Get("/api/notifications", notifHandler.List)
	})

	r.With(middleware.BasicAuth("metrics", cfg.MetricsUser, cfg.MetricsPassword)).
		Handle("/metrics", promhttp.Handler())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := database.PingContext(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("OK"))
	})

	return r
}

func shutdownServer(server *http.Server) {
	logger.Log.Info("starting server shutdown process")

	// Создаем контекст с таймаутом
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.Error("server shutdown failed", zap.Error(err))
	}

	logger.Log.Info("server stopped")
}
