package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "cranecloud/internal/api/http"
	"cranecloud/internal/audit"
	"cranecloud/internal/config"
	"cranecloud/internal/devices"
	devicespg "cranecloud/internal/devices/postgres"
	"cranecloud/internal/eventing"
	"cranecloud/internal/ingest"
	"cranecloud/internal/observability/logging"
	"cranecloud/internal/observability/metrics"
	"cranecloud/internal/protocol"
	"cranecloud/internal/routing"
	"cranecloud/internal/status"
	statuspg "cranecloud/internal/status/postgres"
	telemetrypg "cranecloud/internal/telemetry/postgres"
	"cranecloud/internal/tickets"
	ticketspg "cranecloud/internal/tickets/postgres"
)

// backfillProxy breaks the registry/pipeline construction cycle: the
// registry needs a backfiller before the pipeline exists.
type backfillProxy struct {
	pipeline *ingest.Pipeline
}

func (b *backfillProxy) Backfill(ctx context.Context, deviceID string, evt *protocol.Event) error {
	if b.pipeline == nil {
		return nil
	}
	return b.pipeline.Backfill(ctx, deviceID, evt)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal("db ping failed", zap.Error(err))
	}

	metrics.Init()

	bus := eventing.NewInMemoryBus()
	backfiller := &backfillProxy{}
	registry, err := devices.NewRegistry(devicespg.NewDeviceRepository(db), bus, devices.WithBackfiller(backfiller))
	if err != nil {
		logger.Fatal("registry init failed", zap.Error(err))
	}

	ticketService, err := tickets.NewService(ticketspg.NewRepository(db), bus, logger, cfg.TicketActor,
		tickets.WithDedupWindow(cfg.DedupWindow))
	if err != nil {
		logger.Fatal("ticket service init failed", zap.Error(err))
	}

	router := routing.NewRouter(routing.StaticHardwareResolver(cfg.HardwareTenants))
	engine := status.NewEngine(cfg.UtilizationCeiling)
	recordRepo := telemetrypg.NewRepository(db)
	snapshotRepo := statuspg.NewSnapshotRepository(db)

	pipeline, err := ingest.NewPipeline(router, registry, recordRepo, snapshotRepo, engine, logger,
		ingest.WithTickets(ticketService),
		ingest.WithBus(bus),
		ingest.WithPersistTimeout(cfg.PersistTimeout))
	if err != nil {
		logger.Fatal("pipeline init failed", zap.Error(err))
	}
	backfiller.pipeline = pipeline

	consumer, err := ingest.NewConsumer(ingest.ConsumerConfig{
		BrokerURL:    cfg.BrokerURL,
		Username:     cfg.BrokerUser,
		Password:     cfg.BrokerPass,
		ClientID:     cfg.ClientID,
		TopicFilters: cfg.TopicFilters,
	}, pipeline, logger)
	if err != nil {
		logger.Fatal("consumer init failed", zap.Error(err))
	}
	if err := consumer.Start(); err != nil {
		logger.Fatal("broker connect failed", zap.Error(err))
	}

	broker := apihttp.NewSSEBroker()
	broker.Attach(bus)

	auditRepo := audit.NewRepository(db)
	devicesHandler, err := apihttp.NewDevicesHandler(registry, auditRepo)
	if err != nil {
		logger.Fatal("devices handler init failed", zap.Error(err))
	}
	cranesHandler, err := apihttp.NewCranesHandler(snapshotRepo, recordRepo, ticketService)
	if err != nil {
		logger.Fatal("cranes handler init failed", zap.Error(err))
	}
	ticketsHandler, err := apihttp.NewTicketsHandler(ticketService, auditRepo)
	if err != nil {
		logger.Fatal("tickets handler init failed", zap.Error(err))
	}
	reportsHandler, err := apihttp.NewReportsHandler(snapshotRepo)
	if err != nil {
		logger.Fatal("reports handler init failed", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/stream", apihttp.NewStreamHandler(broker))
	mux.Handle("/api/v1/devices/pending", devicesHandler)
	mux.Handle("/api/v1/devices/pending/", devicesHandler)
	mux.Handle("/api/v1/cranes/", cranesHandler)
	mux.Handle("/api/v1/tickets/", ticketsHandler)
	mux.Handle("/api/v1/reports/fleet", reportsHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	sweepDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := registry.SweepExpired(cfg.PendingTTL); removed > 0 {
					logger.Info("expired pending devices swept", zap.Int("count", removed))
				}
			case <-sweepDone:
				return
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	close(sweepDone)
	consumer.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
}
