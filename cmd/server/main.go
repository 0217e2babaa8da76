package main

import (
	"context"
	"database/sql"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"multidept-session-trust/backend/internal/audit"
	auditrepo "multidept-session-trust/backend/internal/audit/repository"
	"multidept-session-trust/backend/internal/config"
	"multidept-session-trust/backend/internal/db"
	devicerepo "multidept-session-trust/backend/internal/device/repository"
	deviceservice "multidept-session-trust/backend/internal/device/service"
	"multidept-session-trust/backend/internal/notify"
	"multidept-session-trust/backend/internal/permission/engine"
	"multidept-session-trust/backend/internal/permission/gate"
	permrepo "multidept-session-trust/backend/internal/permission/repository"
	"multidept-session-trust/backend/internal/platform/logging"
	"multidept-session-trust/backend/internal/security"
	"multidept-session-trust/backend/internal/seed"
	"multidept-session-trust/backend/internal/server"
	"multidept-session-trust/backend/internal/server/interceptors"
	"multidept-session-trust/backend/internal/session/detector"
	sessiondomain "multidept-session-trust/backend/internal/session/domain"
	"multidept-session-trust/backend/internal/session/lock"
	sessionrepo "multidept-session-trust/backend/internal/session/repository"
	sessionservice "multidept-session-trust/backend/internal/session/service"
	"multidept-session-trust/backend/internal/session/sweeper"
	otelsetup "multidept-session-trust/backend/internal/telemetry/otel"
	userrepo "multidept-session-trust/backend/internal/user/repository"
)

// repos are the storage backends: Postgres when DATABASE_URL is set, memory otherwise.
type repos struct {
	users    userrepo.Repository
	perms    permrepo.Repository
	sessions sessionrepo.Repository
	activity sessionrepo.ActivityRepository
	configs  sessionrepo.ConfigurationRepository
	devices  devicerepo.Repository
	audits   auditrepo.Repository
	pinger   *sql.DB
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	logging.Setup(cfg.LogLevel, !cfg.IsProduction())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otelsetup.NewProviders(ctx, otelsetup.Settings{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "deptreports-session-trust",
		Environment: cfg.Env,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("telemetry")
	}
	providers.SetGlobal()
	observer := otelsetup.Must(otelsetup.NewObserver(providers.MeterProvider, providers.LoggerProvider))

	r, closeDB := openRepos(ctx, cfg)
	defer closeDB()

	notifier := notify.NewKafkaNotifier(cfg.KafkaBrokersList(), cfg.SecurityAlertTopic)
	if notifier != nil {
		log.Info().Str("topic", cfg.SecurityAlertTopic).Msg("critical events published to kafka")
	}
	sinkOpts := audit.SinkOptions{
		Capacity:    cfg.AuditQueueCapacity,
		Workers:     cfg.AuditWorkers,
		EnqueueWait: cfg.AuditEnqueueWaitDuration(),
		MaxRetries:  uint(cfg.AuditMaxRetries),
	}
	if notifier != nil {
		sinkOpts.Notifier = notifier
	}
	sink := audit.NewSink(r.audits, observer, sinkOpts)
	events := audit.NewLogger(sink, interceptors.ClientIP, interceptors.UserAgent)

	locker, closeLocker := newLocker(ctx, cfg)
	defer closeLocker()

	devices := deviceservice.NewEngine(r.devices, events)
	defaults := sessiondomain.DefaultSessionConfiguration("")
	defaults.MaxConcurrentSessions = cfg.SessionMaxConcurrent
	defaults.SessionTimeoutMinutes = cfg.SessionTimeoutMinutes
	defaults.ExtendedSessionTimeoutMinutes = cfg.SessionExtendedTimeoutMinutes
	defaults.IdleTimeoutMinutes = cfg.SessionIdleTimeoutMinutes
	if err := defaults.Validate(); err != nil {
		log.Fatal().Err(err).Msg("session defaults")
	}
	mgr := sessionservice.NewManager(r.sessions, r.activity, r.configs, r.users, devices, locker, events,
		sessionservice.Options{
			Defaults:           defaults,
			MfaRecheckInterval: cfg.MfaRecheckInterval(),
			Thresholds: detector.Thresholds{
				IPChangeWindow:         cfg.DetectorIPChangeWindow(),
				FailedAttemptThreshold: cfg.DetectorFailedAttemptThreshold,
			},
			Observer: observer,
		})

	evaluator, err := engine.NewOPAEvaluator(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("policy engine")
	}
	g := gate.New(r.users, r.perms, evaluator, events, gate.WithFailureRecorder(mgr))

	signer, pub, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey, !cfg.IsProduction())
	if err != nil {
		log.Fatal().Err(err).Msg("jwt keys")
	}
	if cfg.JWTPrivateKey == "" {
		log.Warn().Msg("using an ephemeral signing key; tokens do not survive a restart")
	}
	tokens := security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())

	sw, err := sweeper.New(mgr, cfg.SessionCleanupCron, time.Minute)
	if err != nil {
		log.Fatal().Err(err).Msg("session sweeper")
	}
	sw.Start()

	deps := server.Deps{
		Sessions:            mgr,
		Devices:             devices,
		Gate:                g,
		AuditRepo:           r.audits,
		Events:              events,
		Tokens:              tokens,
		HealthPolicyChecker: evaluator,
	}
	if r.pinger != nil {
		deps.HealthPinger = r.pinger
	}
	s := server.NewServer(deps)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("listen")
	}
	go func() {
		log.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC server listening")
		if err := s.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("serve")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down gRPC server")
	s.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sw.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("sweeper stop")
	}
	if err := sink.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Int("pending", sink.Pending()).Msg("audit sink did not drain")
	}
	if err := notifier.Close(); err != nil {
		log.Warn().Err(err).Msg("kafka notifier close")
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("telemetry shutdown")
	}
	log.Info().Msg("gRPC server stopped")
}

func openRepos(ctx context.Context, cfg *config.Config) (repos, func()) {
	if cfg.DatabaseURL == "" {
		if cfg.IsProduction() {
			log.Fatal().Msg("DATABASE_URL is required in production")
		}
		log.Warn().Msg("DATABASE_URL not set, using in-memory storage with development users")
		users, perms := userrepo.NewMemoryRepository(), permrepo.NewMemoryRepository()
		if err := seed.Apply(ctx, users, perms, true); err != nil {
			log.Fatal().Err(err).Msg("seed")
		}
		return repos{
			users:    users,
			perms:    perms,
			sessions: sessionrepo.NewMemoryRepository(),
			activity: sessionrepo.NewMemoryActivityRepository(),
			configs:  sessionrepo.NewMemoryConfigurationRepository(),
			devices:  devicerepo.NewMemoryRepository(),
			audits:   auditrepo.NewMemoryRepository(),
		}, func() {}
	}
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database")
	}
	closeDB := func() {
		if err := conn.Close(); err != nil {
			log.Warn().Err(err).Msg("database close")
		}
	}
	return repos{
		users:    userrepo.NewPostgresRepository(conn),
		perms:    permrepo.NewPostgresRepository(conn),
		sessions: sessionrepo.NewPostgresRepository(conn),
		activity: sessionrepo.NewPostgresActivityRepository(conn),
		configs:  sessionrepo.NewPostgresConfigurationRepository(conn),
		devices:  devicerepo.NewPostgresRepository(conn),
		audits:   auditrepo.NewPostgresRepository(conn),
		pinger:   conn,
	}, closeDB
}

// newLocker returns the Redis lock when REDIS_ADDR is set so that several instances serialize
// session creation per user; a single instance uses the in-process lock.
func newLocker(ctx context.Context, cfg *config.Config) (lock.Locker, func()) {
	if cfg.RedisAddr == "" {
		return lock.NewMemoryLocker(), func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis")
	}
	locker, err := lock.NewRedisLocker(client, cfg.SessionLockTTLDuration())
	if err != nil {
		log.Fatal().Err(err).Msg("redis lock")
	}
	return locker, func() { _ = client.Close() }
}
