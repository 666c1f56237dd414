package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libamqp "mvpbackend/backend/libs/amqp"
	libredis "mvpbackend/backend/libs/redis"
	"mvpbackend/backend/services/billing-service/internal/auth"
	"mvpbackend/backend/services/billing-service/internal/config"
	"mvpbackend/backend/services/billing-service/internal/db"
	httpserver "mvpbackend/backend/services/billing-service/internal/http"
	"mvpbackend/backend/services/billing-service/internal/http/handlers"
	"mvpbackend/backend/services/billing-service/internal/http/middleware"
	"mvpbackend/backend/services/billing-service/internal/metrics"
	"mvpbackend/backend/services/billing-service/internal/notify"
	"mvpbackend/backend/services/billing-service/internal/payments"
	redisstore "mvpbackend/backend/services/billing-service/internal/redis"
	"mvpbackend/backend/services/billing-service/internal/repository"
	"mvpbackend/backend/services/billing-service/internal/service"
)

// App wires billing service dependencies.
type App struct {
	server     *httpserver.Server
	db         *sql.DB
	redis      *goredis.Client
	publisher  *libamqp.Publisher
	dispatcher *notify.Dispatcher
	logger     *zap.Logger
}

// New constructs application graph.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger}

	sqlDB, err := db.NewPostgres(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	a.db = sqlDB

	if cfg.Database.MigrateOnStart {
		if err := db.Migrate(sqlDB, logger); err != nil {
			a.Close()
			return nil, err
		}
	}

	store := repository.NewStore(sqlDB)
	m := metrics.NewBilling()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		m,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var (
		cache      service.ConversationCache
		redisCheck handlers.Pinger
	)
	if cfg.Redis.Addr != "" {
		client, err := libredis.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.redis = client
		conversations := redisstore.NewStore(client, cfg.Redis.TTL)
		cache = conversations
		redisCheck = conversations
	} else {
		logger.Info("redis not configured, conversation lookups go to postgres")
	}

	sender, err := a.notificationSender(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.dispatcher = notify.NewDispatcher(sender, cfg.Notify.QueueSize, cfg.Notify.Timeout,
		func(notify.Message, error) { m.Inc(metrics.NotificationsFailed) }, logger)

	var gateway service.CheckoutGateway
	if cfg.Stripe.SecretKey != "" {
		gw, err := payments.NewStripeGateway(payments.StripeConfig{
			SecretKey:  cfg.Stripe.SecretKey,
			SuccessURL: cfg.Stripe.SuccessURL,
			CancelURL:  cfg.Stripe.CancelURL,
			Currency:   cfg.Stripe.Currency,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		gateway = gw
	} else {
		logger.Warn("stripe secret key not set, checkout creation disabled")
	}

	ledger := service.NewLedgerService(store, logger)
	stripeWebhooks := service.NewStripeWebhookService(service.StripeWebhookConfig{
		WebhookSecret: cfg.Stripe.WebhookSecret,
		Currency:      cfg.Stripe.Currency,
		Tolerance:     cfg.Stripe.WebhookTolerance,
	}, store, ledger, a.dispatcher, m, logger)
	checkout := service.NewCheckoutService(store, gateway, m, logger)
	voice := service.NewVoiceBillingService(store, ledger, cache, m, cfg.Billing.CreditsPerMinute, logger)
	verifier := auth.NewTokenVerifier(cfg.JWT.Secret)

	health := map[string]handlers.Pinger{"postgres": store}
	if redisCheck != nil {
		health["redis"] = redisCheck
	}

	routes := httpserver.Routes{
		StripeWebhook: handlers.NewStripeWebhookHandler(stripeWebhooks, logger),
		VoiceMinute:   handlers.NewVoiceMinuteHandler(voice, logger),
		StartSession:  handlers.NewStartSessionHandler(voice, logger),
		EndSession:    handlers.NewEndSessionHandler(voice, logger),
		Balance:       handlers.NewBalanceHandler(ledger, logger),
		Transactions:  handlers.NewTransactionsHandler(ledger, logger),
		Packages:      handlers.NewPackagesHandler(checkout, logger),
		Checkout:      handlers.NewCheckoutHandler(checkout, logger),
		Metrics:       handlers.NewMetricsHandler(m),
		MetricsReset:  handlers.NewMetricsResetHandler(m, logger),
		Prometheus:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Health:        handlers.NewHealthHandler(health),
		ReplayEvent:   handlers.NewReplayEventHandler(stripeWebhooks, logger),
		Adjust:        handlers.NewAdjustHandler(ledger, logger),
	}
	guards := httpserver.Guards{
		Internal: middleware.InternalSecret(cfg.Internal.SharedSecret),
		Student:  middleware.StudentAuth(verifier),
	}

	router := httpserver.NewRouter(routes, guards, logger)
	a.server = httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	logger.Info("billing service configured",
		zap.Int64("credits_per_minute", voice.CreditsPerMinute()),
		zap.String("notify_driver", cfg.Notify.Driver),
		zap.Bool("checkout_enabled", gateway != nil),
	)
	return a, nil
}

func (a *App) notificationSender(cfg *config.Config) (notify.Sender, error) {
	switch cfg.Notify.Driver {
	case config.NotifyDriverSMTP:
		return notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	case config.NotifyDriverAMQP:
		publisher, err := libamqp.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return nil, err
		}
		a.publisher = publisher
		return notify.NewAMQPSender(publisher, cfg.AMQP.Prefix), nil
	default:
		return notify.NewLogSender(a.logger), nil
	}
}

// Run starts HTTP server.
func (a *App) Run(ctx context.Context) error {
	return a.server.Run(ctx)
}

// Close releases resources. Queued notifications are drained first.
func (a *App) Close() {
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("failed to close amqp publisher", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
}
