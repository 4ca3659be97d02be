package app

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	libdb "gridcast/backend/libs/db"
	"gridcast/backend/services/energy-service/internal/appendlog"
	"gridcast/backend/services/energy-service/internal/config"
	httpserver "gridcast/backend/services/energy-service/internal/http"
	"gridcast/backend/services/energy-service/internal/http/handlers"
	"gridcast/backend/services/energy-service/internal/metrics"
	"gridcast/backend/services/energy-service/internal/partition"
	"gridcast/backend/services/energy-service/internal/publisher"
	"gridcast/backend/services/energy-service/internal/repository"
	"gridcast/backend/services/energy-service/internal/scheduler"
	"gridcast/backend/services/energy-service/internal/service"
	"gridcast/backend/services/energy-service/internal/source"
)

// nextPartitionAt is when tomorrow's partitions are created.
const nextPartitionAt = "23:55"

// Acquisition wires the acquisition loop dependencies.
type Acquisition struct {
	service   *service.IngestionService
	source    source.Source
	publisher publisher.Publisher
	scheduler *scheduler.Scheduler
	metrics   *httpserver.Server
	session   *libdb.Session
	logger    *zap.Logger
}

// NewAcquisition constructs application components. The staging store may be
// unreachable at startup; ticks then record staging failures and keep logging.
func NewAcquisition(cfg *config.Config, logger *zap.Logger) (*Acquisition, error) {
	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID), zap.String("station", cfg.Station))

	sqlDB, err := libdb.Open(cfg.DSN())
	if err != nil {
		return nil, err
	}
	warnIfUnreachable(sqlDB, logger)
	session := libdb.NewSession(sqlDB, logger)

	readingLog, err := appendlog.New(cfg.DataDir)
	if err != nil {
		session.Close()
		return nil, err
	}

	src, err := source.New(cfg.Source.Mode, source.SerialConfig{
		Port:        cfg.Source.SerialPort,
		BaudRate:    cfg.Source.BaudRate,
		Station:     cfg.Station,
		ReadTimeout: cfg.Source.ReadTimeout,
	}, cfg.Source.MockInterval, logger)
	if err != nil {
		session.Close()
		return nil, err
	}

	pub, err := publisher.New(publisher.Config{
		Backend:      cfg.Publish.Backend,
		MQTTBroker:   cfg.Publish.MQTTBroker,
		MQTTClientID: cfg.Publish.MQTTClientID,
		KafkaBrokers: cfg.Publish.KafkaBrokers,
		KafkaTopic:   cfg.Publish.KafkaTopic,
	}, runID, logger)
	if err != nil {
		src.Close()
		session.Close()
		return nil, err
	}

	m := metrics.New()
	staging := repository.NewStagingRepository(session)
	ingestion := service.NewIngestionService(src, readingLog, staging, pub, m, logger)

	sched := scheduler.New(time.Local, time.Minute, logger)
	if _, err := sched.Daily(nextPartitionAt, "next-partition", func(ctx context.Context) error {
		return ingestion.PrepareNext(ctx, partition.For(time.Now()), cfg.Station)
	}); err != nil {
		src.Close()
		session.Close()
		return nil, err
	}

	var metricsServer *httpserver.Server
	if addr := cfg.MetricsAddress(); addr != "" {
		router := httpserver.NewRouter(httpserver.Routes{
			Health:  handlers.NewHealthHandler(session),
			Metrics: m.Handler(),
		}, httpserver.Options{Logger: logger})
		metricsServer = httpserver.NewServer(addr, router, logger)
	}

	return &Acquisition{
		service:   ingestion,
		source:    src,
		publisher: pub,
		scheduler: sched,
		metrics:   metricsServer,
		session:   session,
		logger:    logger,
	}, nil
}

// Run drives the acquisition loop until ctx is cancelled.
func (a *Acquisition) Run(ctx context.Context) error {
	a.scheduler.Start()

	if a.metrics != nil {
		go func() {
			if err := a.metrics.Run(ctx); err != nil {
				a.logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	err := a.service.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases resources.
func (a *Acquisition) Close() {
	a.scheduler.Stop()
	if err := a.source.Close(); err != nil {
		a.logger.Warn("failed to close source", zap.Error(err))
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("failed to close publisher", zap.Error(err))
		}
	}
	if err := a.session.Close(); err != nil {
		a.logger.Warn("failed to close db", zap.Error(err))
	}
}

func warnIfUnreachable(db *sql.DB, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		logger.Warn("database unreachable at startup", zap.Error(err))
	}
}
