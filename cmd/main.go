// lifecycle-service
//
// Recruiting application lifecycle engine.
// Exposes a REST API (chi) and a gRPC API used by the Gateway to:
//   - submit applications against published jobs
//   - move applications through the hiring pipeline
//   - schedule, confirm, reschedule, cancel and complete interviews
//   - read and acknowledge notifications
//
// State changes stage events in a transactional outbox. A cron-driven relay
// moves them into a Redis queue, and notification workers fan them out to
// in-app, email, push and sms channels.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/config"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/db"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/docstore"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/grpcserver"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/httpapi"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/interview"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/jobgate"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/lifecycle"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/logger"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/notify"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/store"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/store/memstore"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/sweeper"
)

const version = "1.0.0"

// outbox is what the relay and the purge job need from the event outbox.
type outbox interface {
	notify.Outbox
	PurgeRelayed(ctx context.Context, cutoff time.Time) (int64, error)
}

// backend is the persistence layer the services run on.
type backend struct {
	jobs          jobgate.Reader
	applications  lifecycle.Repository
	interviews    interview.Repository
	notifications notify.Store
	outbox        outbox
}

func main() {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Env, cfg.LogLevel)
	boot := logger.For("main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Storage ─────────────────────────────────────────────────────────────
	var (
		be     backend
		pinger db.Pinger
	)
	switch cfg.Store {
	case "postgres":
		boot.Info().Msg("connecting to PostgreSQL")
		pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			boot.Fatal().Err(err).Msg("postgres")
		}
		defer pool.Close()
		pinger = pool

		st := store.New(pool)
		if err := st.Migrate(ctx); err != nil {
			boot.Fatal().Err(err).Msg("migrations")
		}
		be = backend{st.Jobs, st.Applications, st.Interviews, st.Notifications, st.Outbox}
		boot.Info().Msg("PostgreSQL connected")
	default:
		boot.Warn().Msg("using the in-memory store, data is lost on restart")
		st := memstore.New()
		be = backend{st.Jobs, st.Applications, st.Interviews, st.Notifications, st.Outbox}
	}

	// ── Redis ───────────────────────────────────────────────────────────────
	boot.Info().Msg("connecting to Redis")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		boot.Fatal().Err(err).Msg("redis")
	}
	defer rdb.Close()
	boot.Info().Msg("Redis connected")

	// ── Services ────────────────────────────────────────────────────────────
	policy, err := cfg.TransitionPolicy()
	if err != nil {
		boot.Fatal().Err(err).Msg("transition policy")
	}
	opts := []lifecycle.Option{
		lifecycle.WithPolicy(policy),
		lifecycle.WithBroadcaster(notify.NewBroadcaster(rdb)),
		lifecycle.WithBroadcastTimeout(cfg.Notifications.BroadcastTimeout),
		lifecycle.WithLogger(logger.For("lifecycle")),
	}
	if cfg.Documents.Bucket != "" {
		s3c, err := docstore.NewS3Client(ctx, cfg.Documents.Region, cfg.Documents.Endpoint)
		if err != nil {
			boot.Fatal().Err(err).Msg("s3 client")
		}
		opts = append(opts, lifecycle.WithVerifier(docstore.NewVerifier(s3c, cfg.Documents.Bucket)))
		boot.Info().Str("bucket", cfg.Documents.Bucket).Msg("document verification enabled")
	}
	apps := lifecycle.NewService(be.applications, be.jobs, opts...)
	sched := interview.NewScheduler(be.interviews, be.applications, apps, nil, logger.For("interview"))
	inbox := notify.NewInbox(be.notifications, nil)

	// ── Notification pipeline ───────────────────────────────────────────────
	dopts := []notify.DispatcherOption{
		notify.WithTTL(cfg.Notifications.TTL),
		notify.WithLogger(logger.For("dispatcher")),
		notify.WithTransport(notify.ChannelInApp, notify.NewInAppTransport(rdb)),
	}
	for ch, url := range cfg.Notifications.Webhooks {
		t := notify.NewWebhookTransport(notify.Channel(ch), url, cfg.Notifications.WebhookTimeout)
		dopts = append(dopts, notify.WithTransport(notify.Channel(ch),
			notify.Throttle(t, cfg.Notifications.RatePerSecond, cfg.Notifications.Burst)))
		boot.Info().Str("channel", ch).Msg("webhook transport enabled")
	}
	dispatcher := notify.NewDispatcher(be.notifications, dopts...)
	queue := notify.NewRedisQueue(rdb, cfg.Notifications.QueueVisibility)
	relay := notify.NewRelay(be.outbox, queue, 100, logger.For("relay"))

	workerCtx, stopWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	for i := range cfg.Notifications.Workers {
		w := notify.NewWorker(queue, dispatcher, time.Second, logger.For("worker").With().Int("worker", i).Logger())
		workers.Add(1)
		go func() {
			defer workers.Done()
			_ = w.Run(workerCtx)
		}()
	}
	boot.Info().Int("workers", cfg.Notifications.Workers).Msg("notification workers started")

	// ── Cron ────────────────────────────────────────────────────────────────
	sw := sweeper.New(sweeper.Specs{
		Relay:          cfg.Schedule.Relay,
		Reminders:      cfg.Schedule.Reminders,
		ReminderWindow: cfg.Schedule.ReminderWindow,
		Purge:          cfg.Schedule.Purge,
	}, sweeper.Jobs{
		Relay:    relay,
		Queue:    queue,
		Reminder: sched,
		Inbox:    inbox,
		Outbox:   be.outbox,
	}, logger.For("sweeper"))
	if err := sw.Start(ctx); err != nil {
		boot.Fatal().Err(err).Msg("sweeper")
	}

	// ── HTTP server ─────────────────────────────────────────────────────────
	health := func(ctx context.Context) error { return db.Health(ctx, pinger, rdb) }
	h := httpapi.NewHandler(apps, sched, inbox, health, logger.For("http"))
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      h.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		boot.Info().Str("version", version).Str("port", cfg.HTTPPort).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			boot.Fatal().Err(err).Msg("HTTP server")
		}
	}()

	// ── gRPC server ─────────────────────────────────────────────────────────
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		boot.Fatal().Err(err).Msg("gRPC listen")
	}
	gs := grpc.NewServer(grpc.UnaryInterceptor(grpcserver.LoggingInterceptor(logger.For("grpc"))))
	grpcserver.NewServer(apps, sched, inbox).Register(gs)
	go func() {
		boot.Info().Str("port", cfg.GRPCPort).Msg("gRPC listening")
		if err := gs.Serve(lis); err != nil {
			boot.Fatal().Err(err).Msg("gRPC server")
		}
	}()

	// ── Graceful shutdown ───────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	boot.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		boot.Error().Err(err).Msg("HTTP shutdown")
	}
	gs.GracefulStop()
	sw.Stop()
	stopWorkers()
	workers.Wait()
	boot.Info().Msg("stopped")
}
