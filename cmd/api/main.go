package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/support-ticketing/internal/api/http"
	"github.com/spec-kit/support-ticketing/internal/api/http/handlers"
	"github.com/spec-kit/support-ticketing/internal/auth"
	"github.com/spec-kit/support-ticketing/internal/config"
	"github.com/spec-kit/support-ticketing/internal/events"
	"github.com/spec-kit/support-ticketing/internal/notification"
	"github.com/spec-kit/support-ticketing/internal/observability"
	"github.com/spec-kit/support-ticketing/internal/persistence"
	"github.com/spec-kit/support-ticketing/internal/repository"
	"github.com/spec-kit/support-ticketing/internal/repository/memory"
	"github.com/spec-kit/support-ticketing/internal/service"
	"github.com/spec-kit/support-ticketing/internal/worker"
)

type stores struct {
	tx       repository.Transactor
	tickets  repository.TicketRepository
	messages repository.TicketMessageRepository
	history  repository.TicketHistoryRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	st := newStores(pg)
	metrics := observability.NewMetrics()

	dispatcher := events.NewInMemoryDispatcher()
	events.SubscribeAll(dispatcher, func(_ context.Context, event events.Event) error {
		metrics.RecordEvent(string(event.Type))
		return nil
	})
	relay := newRelay(cfg.Events, redis, logger)
	if closer, ok := relay.(interface{ Close() error }); ok {
		defer closer.Close() //nolint:errcheck
	}

	var mail *worker.MailWorker
	if cfg.Notification.SMTPHost != "" {
		mail = worker.NewMailWorker(notification.NewSMTPMailer(cfg.Notification), cfg.Notification.MailQueueSize, logger)
		defer mail.Stop()
	}
	var queue service.EmailQueue
	if mail != nil {
		queue = mail
	}
	notificationService := service.NewNotificationService(dispatcher, relay, queue, logger, cfg.Notification)
	worker.StartNotificationWorker(ctx, notificationService, mail, cfg.Notification.MailWorkers)

	ticketService := service.NewTicketService(service.TicketDependencies{
		Transactor:  st.tx,
		TicketRepo:  st.tickets,
		MessageRepo: st.messages,
		HistoryRepo: st.history,
		Dispatcher:  dispatcher,
		Logger:      logger,
		System: service.SystemSender{
			Name:  cfg.Support.SystemName,
			Email: cfg.Support.SystemEmail,
		},
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		Transactor:  st.tx,
		TicketRepo:  st.tickets,
		HistoryRepo: st.history,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	deps := map[string]handlers.Pinger{}
	if pg.Enabled() {
		deps["postgres"] = pg
	}
	if redis.Enabled() {
		deps["redis"] = redis
	}

	routes := httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		Support:        handlers.NewSupportTicketsHandler(ticketService, assignmentService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	}
	if cfg.Metrics.Enabled {
		routes.Metrics = metrics.Handler()
	}
	httptransport.RegisterRoutes(app, routes)

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.Shutdown(); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func newStores(pg *persistence.Postgres) stores {
	if !pg.Enabled() {
		mem := memory.NewStore()
		return stores{tx: mem, tickets: mem.Tickets(), messages: mem.Messages(), history: mem.History()}
	}
	return stores{
		tx:       repository.NewTransactor(pg.Pool),
		tickets:  repository.NewTicketRepository(pg.Pool),
		messages: repository.NewTicketMessageRepository(pg.Pool),
		history:  repository.NewTicketHistoryRepository(pg.Pool),
	}
}

func newRelay(cfg config.EventsConfig, redis *persistence.Redis, logger *zap.Logger) service.EventRelay {
	switch cfg.Broker {
	case config.BrokerKafka:
		logger.Info("relaying events to kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
		return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	case config.BrokerRedis:
		if redis.Enabled() && cfg.Stream != "" {
			return events.NewStreamPublisher(redis.Client, cfg.Stream, cfg.MaxLength)
		}
		logger.Warn("redis unavailable; events are not relayed")
	}
	return nil
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
