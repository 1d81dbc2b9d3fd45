package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/wes-board/pkg/database"
	"github.com/weiawesome/wes-board/pkg/jwt"
	pkglog "github.com/weiawesome/wes-board/pkg/log"
	"github.com/weiawesome/wes-board/pkg/middleware"
	"github.com/weiawesome/wes-board/pkg/pubsub"
	"github.com/weiawesome/wes-board/realtime-service/internal/access"
	"github.com/weiawesome/wes-board/realtime-service/internal/auth"
	"github.com/weiawesome/wes-board/realtime-service/internal/cache"
	"github.com/weiawesome/wes-board/realtime-service/internal/cluster"
	"github.com/weiawesome/wes-board/realtime-service/internal/config"
	"github.com/weiawesome/wes-board/realtime-service/internal/domain"
	"github.com/weiawesome/wes-board/realtime-service/internal/handler"
	"github.com/weiawesome/wes-board/realtime-service/internal/hub"
	"github.com/weiawesome/wes-board/realtime-service/internal/relay"
	"github.com/weiawesome/wes-board/realtime-service/internal/repository"
	"github.com/weiawesome/wes-board/realtime-service/internal/service"
)

func main() {
	// A local .env only fills variables the environment does not already set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "realtime-service",
	})
	logger := pkglog.L()

	if cfg.WatchLogLevel(func(level string) {
		pkglog.SetLevel(level)
		l := pkglog.L()
		l.Info().Str("level", level).Msg("log level reloaded")
	}) {
		logger.Info().Msg("watching config file for log level changes")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := database.New(&database.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		FilePath:        cfg.Database.FilePath,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		Verbose:         cfg.Log.Level == "debug" || cfg.Log.Level == "trace",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(db, &domain.UserModel{}, &domain.ProjectModel{}); err != nil {
			logger.Fatal().Err(err).Msg("failed to auto-migrate")
		}
		logger.Info().Msg("database migration completed")
	}

	// Identity lookup, optionally cached
	var users auth.UserStore = repository.NewGormUserRepository(db)
	if cfg.Redis.Address != "" {
		client, err := cache.Dial(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		identityCache := cache.NewRedisIdentityCache(client, cfg.Redis.CachePrefix)
		defer identityCache.Close()

		users = cache.NewCachedUserStore(repository.NewGormUserRepository(db), identityCache, cfg.Redis.CacheTTL)
		logger.Info().Dur("ttl", cfg.Redis.CacheTTL).Msg("identity cache enabled")
	}

	tokens, err := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, 0)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create token verifier")
	}
	authenticator := auth.NewAuthenticator(tokens, users)

	// Room policy
	var authorizer access.Authorizer = access.AllowAll{}
	if cfg.Rooms.AuthorizeJoin {
		authorizer = access.NewProjectMembers(repository.NewGormProjectRepository(db))
	} else {
		logger.Warn().Msg("rooms.authorize_join is off: any authenticated user can join any project room")
	}

	h := hub.NewHub()

	// Cross-node fan-out
	var fanout cluster.Fanout = cluster.Noop{}
	var bus *cluster.Bus
	if cfg.PubSub.Enabled {
		nodeID := uuid.New().String()
		psCfg := cfg.PubSubSettings()
		// Every node needs every frame, so each consumes in its own group.
		psCfg.Kafka.GroupID = fmt.Sprintf("%s-%s", psCfg.Kafka.GroupID, nodeID)

		ps, err := pubsub.NewPubSub(psCfg)
		if err != nil {
			logger.Fatal().Err(err).Str("driver", cfg.PubSub.Driver).Msg("failed to connect to pubsub")
		}
		defer ps.Close()

		bus = cluster.NewBus(ps, h, nodeID)
		fanout = bus
		logger.Info().Str(pkglog.FieldNodeID, nodeID).Str("driver", cfg.PubSub.Driver).Msg("cluster fan-out enabled")
	}

	table := relay.NewTable(relay.Options{ValidatePayloads: cfg.Relay.ValidatePayloads})
	realtimeService := service.NewRealtimeService(h, table, authorizer, fanout, service.Options{
		AuthorizeJoin: cfg.Rooms.AuthorizeJoin,
	})

	// HTTP
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger, "/health"))

	handler.NewWSHandler(h, realtimeService, authenticator, cfg.WebSocket).RegisterRoutes(r)
	handler.NewHandler(realtimeService, middleware.NewAuthMiddleware(tokens)).RegisterRoutes(r)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		h.Run(gctx)
		return nil
	})

	if bus != nil {
		g.Go(func() error {
			return bus.Run(gctx)
		})
	}

	g.Go(func() error {
		logger.Info().
			Str("addr", addr).
			Bool("authorize_join", cfg.Rooms.AuthorizeJoin).
			Bool("validate_payloads", cfg.Relay.ValidatePayloads).
			Msg("realtime-service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("realtime-service stopped with error")
	}
	logger.Info().Msg("realtime-service stopped")
}
