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

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"freightdesk/internal/audit"
	"freightdesk/internal/audit/relay"
	auditpostgres "freightdesk/internal/audit/store/postgres"
	"freightdesk/internal/platform/config"
	"freightdesk/internal/platform/httpserver"
	"freightdesk/internal/platform/logger"
	"freightdesk/internal/platform/metrics"
	platformredis "freightdesk/internal/platform/redis"
	statushandler "freightdesk/internal/shipment/status/handler"
	"freightdesk/internal/shipment/status/reconcile"
	statusservice "freightdesk/internal/shipment/status/service"
	statusstore "freightdesk/internal/shipment/status/store"
	httptransport "freightdesk/internal/transport/http"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config failed", "error", err)
		os.Exit(1)
	}

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		log.Error("open database failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Error("ping database failed", "error", err)
		os.Exit(1)
	}

	rds, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis failed", "error", err)
		os.Exit(1)
	}
	if rds != nil {
		defer rds.Close()
	}

	m := metrics.New()

	store := statusstore.NewPostgres(db)
	auditPub := audit.NewPublisher(auditpostgres.New(db))
	svc, err := statusservice.New(store, newStatusPostgresTx(db, store), nil, auditPub, log, m)
	if err != nil {
		log.Error("build status service failed", "error", err)
		os.Exit(1)
	}

	var locker reconcile.Locker
	if rds != nil {
		locker = reconcile.NewRedisLocker(rds)
	}
	job := reconcile.New(svc, locker, log, m, cfg.Reconcile.BatchLimit)
	scheduler := reconcile.NewScheduler(job, cfg.Reconcile.Interval.Std(), log)

	handler := statushandler.New(svc, job, log)
	router := httptransport.NewRouter(handler, log, m)
	srv := httpserver.New(cfg.Server.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting freightdesk", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		err := scheduler.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if len(cfg.Kafka.Brokers) > 0 {
		kafkaClient, err := kgo.NewClient(
			kgo.SeedBrokers(cfg.Kafka.Brokers...),
			kgo.DefaultProduceTopic(cfg.Kafka.Topic),
		)
		if err != nil {
			log.Error("build kafka client failed", "error", err)
			os.Exit(1)
		}
		defer kafkaClient.Close()

		if err := relay.EnsureTopic(ctx, kafkaClient, cfg.Kafka.Topic); err != nil {
			log.Warn("ensure audit topic failed", "error", err)
		}

		auditRelay := relay.New(db, kafkaClient, cfg.Kafka.Topic, log)
		g.Go(func() error {
			err := auditRelay.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("shutdown with error", "error", err)
		os.Exit(1)
	}
	log.Info("freightdesk stopped")
}
