// Command server runs the portal sync API: assignments, unread chat
// notifications, presence and their push stream.
//
// @title                       Portal Sync API
// @version                     1.0
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	_ "github.com/atelier-portal/portal-sync/docs"
	"github.com/atelier-portal/portal-sync/internal/api"
	"github.com/atelier-portal/portal-sync/internal/api/handler"
	"github.com/atelier-portal/portal-sync/internal/core/domain"
	"github.com/atelier-portal/portal-sync/internal/core/ports"
	"github.com/atelier-portal/portal-sync/internal/core/service"
	"github.com/atelier-portal/portal-sync/internal/infrastructure/db/memory"
	mongostore "github.com/atelier-portal/portal-sync/internal/infrastructure/db/mongo"
	redisstore "github.com/atelier-portal/portal-sync/internal/infrastructure/db/redis"
	"github.com/atelier-portal/portal-sync/internal/infrastructure/queue"
	"github.com/atelier-portal/portal-sync/internal/pkg/config"
	"github.com/atelier-portal/portal-sync/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

// stores groups the repositories chosen by STORE_BACKEND.
type stores struct {
	assignments ports.AssignmentRepository
	clients     ports.ClientRepository
	messages    ports.MessageRepository
	auth        ports.AuthRepository
}

func main() {
	cfg := config.Load()
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "portal-sync",
	})
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret"
		log.Warn().Msg("JWT_SECRET not set, using the development secret")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	readiness := map[string]handler.Pinger{}

	st, closeStore, err := openStores(ctx, cfg, log, readiness)
	if err != nil {
		return err
	}
	defer closeStore()

	// Redis is needed for cross-replica push and for presence that survives restarts.
	var rdb *goredis.Client
	if cfg.Push.Backend == config.PushRedis || cfg.Store == config.StoreMongo {
		rdb, err = redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		readiness["redis"] = redisstore.Ping(rdb)
	}

	var bus ports.PushBus
	if cfg.Push.Backend == config.PushRedis {
		bus = redisstore.NewPushBus(rdb, log)
		log.Info().Msg("push fan-out over redis pub/sub")
	} else {
		dispatcher := queue.NewDispatcher(cfg.Push.Workers, log)
		dispatcher.Start(ctx)
		defer dispatcher.Stop()
		bus = dispatcher
		log.Info().Int("workers", cfg.Push.Workers).Msg("push fan-out in process")
	}

	var presence ports.PresenceTracker
	if rdb != nil {
		presence = redisstore.NewPresenceStore(rdb, cfg.Redis.PresenceTTL)
	} else {
		presence = memory.NewPresenceStore(cfg.Redis.PresenceTTL)
	}

	assignments := service.NewAssignmentService(st.assignments, st.clients, bus, log)
	notifications := service.NewNotificationService(st.messages, bus, log)
	auth := service.NewAuthService(st.auth, cfg.JWTSecret, cfg.TokenTTL)

	if err := bootstrapAdmin(ctx, auth, cfg, log); err != nil {
		return err
	}

	if cfg.AMQP.URL != "" {
		ingest := queue.NewIngest(queue.IngestConfig{
			URL:        cfg.AMQP.URL,
			Exchange:   cfg.AMQP.Exchange,
			Queue:      cfg.AMQP.Queue,
			RoutingKey: cfg.AMQP.RoutingKey,
			Prefetch:   cfg.AMQP.Prefetch,
			Workers:    cfg.AMQP.Workers,
		}, notifications, log)
		if err := ingest.Dial(ctx); err != nil {
			return err
		}
		defer ingest.Close()
		go func() {
			if err := ingest.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("chat ingest stopped")
			}
		}()
	}

	e := api.NewRouter(api.RouterDeps{
		Auth:          auth,
		Assignments:   assignments,
		Clients:       assignments,
		Notifications: notifications,
		Presence:      presence,
		Readiness:     readiness,
		JWTSecret:     cfg.JWTSecret,
		Log:           log,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.Store).Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger, readiness map[string]handler.Pinger) (stores, func(), error) {
	if cfg.Store == config.StoreMemory {
		seed := make([]domain.ClientRecord, 0, len(cfg.SeedClients))
		for _, id := range cfg.SeedClients {
			if id = strings.TrimSpace(id); id != "" {
				seed = append(seed, domain.ClientRecord{ID: id})
			}
		}
		log.Warn().Int("clients", len(seed)).Msg("using in-memory stores, data is lost on restart")
		return stores{
			assignments: memory.NewAssignmentRepository(),
			clients:     memory.NewClientRepository(seed...),
			messages:    memory.NewMessageRepository(),
			auth:        memory.NewAuthRepository(),
		}, func() {}, nil
	}

	client, db, err := mongostore.Connect(ctx, mongostore.Config{
		URI:         cfg.Mongo.URI,
		Database:    cfg.Mongo.Database,
		MaxPoolSize: cfg.Mongo.MaxPoolSize,
	})
	if err != nil {
		return stores{}, nil, err
	}
	closeFn := func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(dctx)
	}
	readiness["mongodb"] = mongostore.Ping(client)

	assignments := mongostore.NewAssignmentRepository(db)
	messages := mongostore.NewMessageRepository(db)
	auth := mongostore.NewAuthRepository(db)
	if err := ensureIndexes(ctx, assignments, messages, auth); err != nil {
		closeFn()
		return stores{}, nil, err
	}

	return stores{
		assignments: assignments,
		clients:     mongostore.NewClientRepository(db),
		messages:    messages,
		auth:        auth,
	}, closeFn, nil
}

type indexer interface {
	EnsureIndexes(ctx context.Context) error
}

func ensureIndexes(ctx context.Context, ix ...indexer) error {
	for _, i := range ix {
		if err := i.EnsureIndexes(ctx); err != nil {
			return err
		}
	}
	return nil
}

// bootstrapAdmin creates the first admin so /auth/register, which is admin
// only, can be reached. An existing account is left untouched.
func bootstrapAdmin(ctx context.Context, auth *service.AuthService, cfg *config.Config, log zerolog.Logger) error {
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return nil
	}
	_, err := auth.Register(ctx, cfg.AdminUsername, cfg.AdminPassword, "", domain.RoleAdmin, "")
	switch {
	case err == nil:
		log.Info().Str("username", cfg.AdminUsername).Msg("bootstrap admin created")
	case errors.Is(err, domain.ErrUserExists):
	default:
		return err
	}
	return nil
}
