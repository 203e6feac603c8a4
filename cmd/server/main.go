package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	adminservice "layoutaria/internal/admin/service"
	"layoutaria/internal/audit"
	"layoutaria/internal/config"
	healthhandler "layoutaria/internal/health/handler"
	identityservice "layoutaria/internal/identity/service"
	"layoutaria/internal/layout/cache"
	layoutservice "layoutaria/internal/layout/service"
	"layoutaria/internal/logging"
	"layoutaria/internal/policy/engine"
	"layoutaria/internal/security"
	"layoutaria/internal/seed"
	"layoutaria/internal/server"
	"layoutaria/internal/store"
	"layoutaria/internal/telemetry"
	"layoutaria/internal/telemetry/otel"
	"layoutaria/internal/telemetry/producer"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server: fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otel.NewProviders(ctx, otel.Options{
		Endpoint:       cfg.OTelEndpoint,
		ServiceName:    "layoutaria",
		ServiceVersion: version,
		Insecure:       cfg.OTelInsecure,
	})
	if err != nil {
		return err
	}
	providers.SetGlobal()

	kafkaProducer := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.AuditKafkaTopic)
	sinks := []audit.Sink{
		{Name: "otel", Emitter: otel.NewEventEmitter(providers.LoggerProvider)},
		{Name: "log", Emitter: telemetry.EmitterFunc(func(ctx context.Context, ev *telemetry.Event) error {
			logger.DebugContext(ctx, "audit event",
				"action", ev.Action, "resource_type", ev.ResourceType, "resource_id", ev.ResourceID)
			return nil
		})},
	}
	if kafkaProducer != nil {
		sinks = append(sinks, audit.Sink{Name: "kafka", Emitter: kafkaProducer})
		logger.Info("audit: publishing to kafka", "topic", kafkaProducer.Topic())
	}
	publisher := audit.NewPublisher(logger, 0, sinks...)

	clock := clockwork.NewRealClock()
	st, err := store.Open(cfg.DataFile,
		store.WithClock(clock),
		store.WithLogger(logger),
		store.WithCommitHook(publisher.OnCommit),
	)
	if err != nil {
		return err
	}

	policy, err := engine.LoadPolicyFile(cfg.LayoutPolicyFile)
	if err != nil {
		return err
	}
	authz, err := engine.NewOPAAuthorizer(ctx, policy, logger)
	if err != nil {
		return err
	}

	priv, pub, ephemeral, err := security.LoadSigningKeys(cfg.JWTPrivateKey, cfg.JWTPublicKey, !cfg.IsProduction())
	if err != nil {
		return err
	}
	if ephemeral {
		logger.Warn("auth: using an ephemeral signing key; tokens will not survive a restart")
	}
	tokens := security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
	hasher := security.NewHasher(cfg.BcryptCost)

	if cfg.SeedOnStart {
		if _, err := seed.New(st, hasher, clock, logger).Run(ctx, seed.Options{
			AdminEmail:    cfg.SeedAdminEmail,
			AdminPassword: cfg.SeedAdminPassword,
		}); err != nil {
			return err
		}
	}

	auth := identityservice.NewAuthService(st, hasher, tokens, identityservice.Config{
		MaxActiveSessions: cfg.AuthMaxActiveSessions,
		RefreshTTL:        cfg.RefreshTTL(),
		Retention:         cfg.SessionRetention(),
	}, identityservice.WithClock(clock), identityservice.WithLogger(logger))
	layouts := layoutservice.NewService(st, authz, cache.New(cfg.CacheTTL(), clock),
		layoutservice.WithClock(clock), layoutservice.WithLogger(logger))
	checker := healthhandler.NewChecker(st, authz, clock)

	httpServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.NewRouter(server.Deps{
			Auth:    auth,
			Layouts: layouts,
			Admin:   adminservice.NewService(st, clock),
			Health:  checker,
			Limits: server.RateLimits{
				APIRPS:    cfg.RateLimitRPS,
				APIBurst:  cfg.RateLimitBurst,
				AuthRPS:   cfg.RateLimitAuthRPS,
				AuthBurst: cfg.RateLimitAuthBurst,
			},
			Logger: logger,
			Clock:  clock,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var (
		grpcServer *grpc.Server
		grpcLis    net.Listener
	)
	if cfg.GRPCAddr != "" {
		grpcLis, err = net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		grpcServer = server.NewGRPCServer(checker)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr, "version", version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if grpcServer != nil {
		g.Go(func() error {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			return grpcServer.Serve(grpcLis)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown", "error", err)
		}
		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
		return nil
	})
	serveErr := g.Wait()

	// The store flushes its last commit before the publisher drains, and the
	// providers go last so queued audit records are exported.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout+telemetry.ShutdownDrainDuration)
	defer cancel()
	if err := st.Close(); err != nil {
		logger.Error("store close", "error", err)
	}
	if err := publisher.Close(shutdownCtx); err != nil {
		logger.Warn("audit publisher close", "error", err)
	}
	if err := kafkaProducer.Close(); err != nil {
		logger.Warn("kafka producer close", "error", err)
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Warn("otel shutdown", "error", err)
	}
	logger.Info("server stopped")
	return serveErr
}
