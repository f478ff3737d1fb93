package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/engagemarket/backend/docs"
	"github.com/engagemarket/backend/internal/audit"
	"github.com/engagemarket/backend/internal/config"
	"github.com/engagemarket/backend/internal/database"
	"github.com/engagemarket/backend/internal/handlers"
	"github.com/engagemarket/backend/internal/invoice"
	"github.com/engagemarket/backend/internal/jobs"
	"github.com/engagemarket/backend/internal/logging"
	"github.com/engagemarket/backend/internal/metrics"
	mW "github.com/engagemarket/backend/internal/middleware"
	"github.com/engagemarket/backend/internal/models"
	"github.com/engagemarket/backend/internal/notify"
	"github.com/engagemarket/backend/internal/pricing"
	"github.com/engagemarket/backend/internal/services"
	"github.com/engagemarket/backend/internal/storage"
)

// @title EngageMarket API
// @version 1.0
// @description Engagement marketplace: wallets, contracts, subscriptions and invoices
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.SetConfigType("env")
	viper.AutomaticEnv() // allow environment variables to override .env
	config.BindEnv()
	viper.BindEnv("admin.email", "ADMIN_EMAIL")
	viper.BindEnv("admin.password", "ADMIN_PASSWORD")
	viper.SetDefault("cors.allowed_origins", []string{"https://*", "http://*"})

	configErr := viper.ReadInConfig()

	logging.Setup(viper.GetString("log.level"), viper.GetString("log.format"), os.Stdout)
	log := logging.For("server")
	if configErr != nil {
		log.WithError(configErr).Info("[CONFIG] .env not found, using environment and defaults")
	}

	serverCfg := config.LoadServerConfig()
	cfg, err := config.LoadMarketplaceConfig()
	if err != nil {
		log.WithError(err).Fatal("[CONFIG] invalid marketplace configuration")
	}

	docs.SwaggerInfo.Host = viper.GetString("swagger.host")
	if docs.SwaggerInfo.Host == "" {
		docs.SwaggerInfo.Host = "localhost:" + serverCfg.Port
	}

	ctx := context.Background()

	// Database
	db, err := database.InitDB(ctx)
	if err != nil {
		log.WithError(err).Fatal("[DB] connection failed")
	}
	defer db.Close()

	if err := database.MigrateUp(db); err != nil {
		log.WithError(err).Fatal("[DB] migrations failed")
	}

	// Notifications go to Redis when available, otherwise to the log only.
	redisClient := database.InitRedis(ctx)
	if redisClient != nil {
		defer redisClient.Close()
	}
	feed := notificationFeed(redisClient, cfg)
	dispatcher := notify.NewDispatcher(feed, logging.For("notify"), cfg.NotifyTimeout)

	engine, err := pricingEngine(cfg)
	if err != nil {
		log.WithError(err).Fatal("[PRICING] invalid bracket table")
	}

	proofs, err := proofStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("[STORAGE] proof store unavailable")
	}

	renderer := invoice.NewRenderer(invoice.Issuer{
		Name:      cfg.IssuerName,
		Address:   cfg.IssuerAddress,
		VATNumber: cfg.IssuerVAT,
		Website:   cfg.IssuerWebsite,
	})

	// Services
	auditLog := audit.NewAuditLogger(logging.For("audit"))
	ledger := services.NewLedgerService(db, auditLog, dispatcher)
	billing := services.NewBillingService(db)
	invoices := services.NewInvoiceService(db, renderer)
	wallet := services.NewWalletService(ledger, billing, invoices, engine, logging.For("wallet"))
	contracts := services.NewContractService(db, ledger, proofs, auditLog, cfg.Windows)
	subscriptions := services.NewSubscriptionService(db, ledger, contracts, wallet, logging.For("subscriptions"))
	authService := services.NewAuthService(db, redisClient, ledger, logging.For("auth"))
	addresses := services.NewAddressService(cfg.AddressAPIURL, cfg.AddressTimeout, logging.For("address"))

	if email := viper.GetString("admin.email"); email != "" {
		if err := authService.EnsureAdmin(ctx, email, viper.GetString("admin.password")); err != nil {
			log.WithError(err).Fatal("[AUTH] could not provision admin account")
		}
	}

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	adminHandler := handlers.NewAdminHandler(authService)
	walletHandler := handlers.NewWalletHandler(wallet)
	contractHandler := handlers.NewContractHandler(contracts, cfg.MaxProofBytes)
	billingHandler := handlers.NewBillingHandler(billing)
	invoiceHandler := handlers.NewInvoiceHandler(invoices)
	subscriptionHandler := handlers.NewSubscriptionHandler(subscriptions)
	pricingHandler := handlers.NewPricingHandler(engine)
	notificationHandler := handlers.NewNotificationHandler(feed, logging.For("ws"))
	addressHandler := handlers.NewAddressHandler(addresses)

	authenticator := mW.NewAuthenticator(authService, logging.For("auth"))
	limiter := mW.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logging.For("ratelimit"))
	stopCleanup := make(chan struct{})
	limiter.StartCleanup(10*time.Minute, stopCleanup)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(mW.SecurityHeaders)
	r.Use(metrics.InstrumentHandler)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   viper.GetStringSlice("cors.allowed_origins"),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "healthy", "database": "up", "redis": "disabled"}
		code := http.StatusOK
		if err := db.PingContext(r.Context()); err != nil {
			status["status"], status["database"] = "degraded", "down"
			code = http.StatusServiceUnavailable
		}
		if redisClient != nil {
			status["redis"] = "up"
			if err := redisClient.Ping(r.Context()).Err(); err != nil {
				status["redis"] = "down"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(status)
	})

	r.Handle("/metrics", metrics.Handler())

	// Swagger documentation
	if !serverCfg.IsProd() {
		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
	}

	// The websocket stream must not be cut by the request timeout.
	r.Group(func(r chi.Router) {
		r.Use(authenticator.Handler)
		r.Get("/ws/notifications", notificationHandler.Stream)
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(serverCfg.RequestTimeout))

		// Public endpoints (no auth required)
		r.Group(func(r chi.Router) {
			r.Use(limiter.Handler)
			r.Post("/auth/register", authHandler.Register)
			r.Post("/auth/login", authHandler.Login)
			r.Get("/pricing/suggestions", pricingHandler.Suggestions)
		})

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(authenticator.Handler)
			r.Use(limiter.Handler)

			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
			r.Put("/me", authHandler.UpdateProfile)
			r.Get("/influencers", authHandler.Influencers)

			r.Get("/wallet", walletHandler.GetBalance)
			r.Get("/wallet/history", walletHandler.GetHistory)
			r.Post("/wallet/topup", walletHandler.TopUp)
			r.Post("/wallet/withdraw", walletHandler.Withdraw)
			r.Post("/wallet/transfer", walletHandler.Transfer)
			r.Get("/wallet/withdrawals", walletHandler.ListWithdrawals)

			r.Post("/contracts", contractHandler.Checkout)
			r.Get("/contracts/orders", contractHandler.ListOrders)
			r.Get("/contracts/proposals", contractHandler.ListProposals)
			r.Get("/contracts/{id}", contractHandler.Get)
			r.Post("/contracts/{id}/accept", contractHandler.Accept)
			r.Post("/contracts/{id}/refuse", contractHandler.Refuse)
			r.Post("/contracts/{id}/deliver", contractHandler.Deliver)
			r.Post("/contracts/{id}/confirm", contractHandler.Confirm)
			r.Post("/contracts/{id}/dispute", contractHandler.Dispute)
			r.Post("/contracts/{id}/archive", contractHandler.Archive)
			r.Get("/contracts/{id}/proof", contractHandler.Proof)

			r.Get("/subscriptions", subscriptionHandler.List)
			r.Post("/subscriptions", subscriptionHandler.Create)
			r.Get("/subscriptions/{id}", subscriptionHandler.Get)
			r.Post("/subscriptions/{id}/pause", subscriptionHandler.Pause)
			r.Post("/subscriptions/{id}/resume", subscriptionHandler.Resume)
			r.Post("/subscriptions/{id}/cancel", subscriptionHandler.Cancel)
			r.Post("/subscriptions/{id}/posts", subscriptionHandler.RecordPost)

			r.Get("/billing/profiles", billingHandler.ListProfiles)
			r.Post("/billing/profiles", billingHandler.CreateProfile)
			r.Put("/billing/profiles/{id}/default", billingHandler.SetDefault(models.KindBillingProfile))
			r.Delete("/billing/profiles/{id}", billingHandler.Delete(models.KindBillingProfile))
			r.Get("/billing/payment-methods", billingHandler.ListPaymentMethods)
			r.Post("/billing/payment-methods", billingHandler.CreatePaymentMethod)
			r.Put("/billing/payment-methods/{id}/default", billingHandler.SetDefault(models.KindPaymentMethod))
			r.Delete("/billing/payment-methods/{id}", billingHandler.Delete(models.KindPaymentMethod))
			r.Get("/billing/withdraw-methods", billingHandler.ListWithdrawMethods)
			r.Post("/billing/withdraw-methods", billingHandler.CreateWithdrawMethod)
			r.Put("/billing/withdraw-methods/{id}/default", billingHandler.SetDefault(models.KindWithdrawMethod))
			r.Delete("/billing/withdraw-methods/{id}", billingHandler.Delete(models.KindWithdrawMethod))
			r.Get("/addresses/search", addressHandler.Search)

			r.Get("/invoices", invoiceHandler.List)
			r.Get("/invoices/{id}", invoiceHandler.Get)
			r.Get("/invoices/{id}/pdf", invoiceHandler.PDF)

			r.Get("/notifications", notificationHandler.List)

			// Admin endpoints
			r.Group(func(r chi.Router) {
				r.Use(mW.RequireRole(models.RoleAdmin))
				r.Post("/admin/contracts/{id}/resolve", contractHandler.Resolve)
				r.Post("/admin/users/{id}/suspend", adminHandler.SuspendUser)
				r.Post("/admin/users/{id}/reactivate", adminHandler.ReactivateUser)
				r.Post("/admin/users/{id}/delete", adminHandler.DeleteUser)
			})
		})
	})

	// Background jobs
	scheduler := jobs.NewScheduler(logging.For("jobs"), 5*time.Minute)
	if err := scheduler.Add(jobs.RenewalJob, cfg.RenewalSchedule, jobs.RenewalTask(subscriptions, logging.For("jobs"))); err != nil {
		log.WithError(err).Fatal("[JOBS] invalid renewal schedule")
	}
	if cfg.EnforceExpiry() {
		if err := scheduler.Add(jobs.ExpiryJob, cfg.ExpirySchedule, jobs.ExpiryTask(contracts, logging.For("jobs"))); err != nil {
			log.WithError(err).Fatal("[JOBS] invalid expiry schedule")
		}
	}
	scheduler.Start()

	// Start server
	server := &http.Server{
		Addr:         ":" + serverCfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: serverCfg.RequestTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.WithField("addr", server.Addr).Info("[SERVER] starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("[SERVER] failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("[SERVER] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("[SERVER] forced to shutdown")
	}
	scheduler.Stop(shutdownCtx)
	close(stopCleanup)
	dispatcher.Wait()

	log.Info("[SERVER] stopped")
}

type publishingFeed interface {
	notify.Publisher
	notify.Feed
}

// notificationFeed returns the Redis-backed publisher, or a log-only one
// when Redis is unavailable.
func notificationFeed(client *redis.Client, cfg *config.MarketplaceConfig) publishingFeed {
	if client == nil {
		return notify.NewLogPublisher(logging.For("notify"))
	}
	return notify.NewRedisPublisher(client, cfg.NotificationHistory, cfg.NotificationTTL, logging.For("notify"))
}

func pricingEngine(cfg *config.MarketplaceConfig) (*pricing.Engine, error) {
	brackets := pricing.DefaultBrackets()
	if cfg.BracketsFile != "" {
		loaded, err := pricing.LoadBrackets(cfg.BracketsFile)
		if err != nil {
			return nil, err
		}
		brackets = loaded
	}
	return pricing.NewEngine(brackets, pricing.Rates{Commission: cfg.CommissionRate, VAT: cfg.VATRate})
}

func proofStore(ctx context.Context, cfg *config.MarketplaceConfig) (storage.ProofStore, error) {
	log := logging.For("storage")
	if cfg.ProofBackend == "s3" {
		store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			EndpointURL:     cfg.S3Endpoint,
		}, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	store, err := storage.NewDiskStore(cfg.ProofDir)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"dir": cfg.ProofDir}).Info("[STORAGE] storing proofs on disk")
	return store, nil
}
