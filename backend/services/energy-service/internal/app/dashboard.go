package app

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libdb "gridcast/backend/libs/db"
	libredis "gridcast/backend/libs/redis"
	"gridcast/backend/services/energy-service/internal/cache"
	"gridcast/backend/services/energy-service/internal/config"
	"gridcast/backend/services/energy-service/internal/forecast"
	httpserver "gridcast/backend/services/energy-service/internal/http"
	"gridcast/backend/services/energy-service/internal/http/handlers"
	"gridcast/backend/services/energy-service/internal/http/middleware"
	"gridcast/backend/services/energy-service/internal/metrics"
	"gridcast/backend/services/energy-service/internal/password"
	"gridcast/backend/services/energy-service/internal/repository"
	"gridcast/backend/services/energy-service/internal/scheduler"
	"gridcast/backend/services/energy-service/internal/service"
	"gridcast/backend/services/energy-service/internal/ws"
)

const defaultStation = "Overall"

// Dashboard wires the dashboard API dependencies.
type Dashboard struct {
	server    *httpserver.Server
	live      *ws.Server
	scheduler *scheduler.Scheduler
	session   *libdb.Session
	redis     *redis.Client
	logger    *zap.Logger
}

// NewDashboard constructs application components.
func NewDashboard(cfg *config.Config, logger *zap.Logger) (*Dashboard, error) {
	model, err := forecast.LoadModel(cfg.Forecast.ModelPath)
	if err != nil {
		return nil, err
	}

	sqlDB, err := libdb.Open(cfg.DSN())
	if err != nil {
		return nil, err
	}
	warnIfUnreachable(sqlDB, logger)
	session := libdb.NewSession(sqlDB, logger)

	m := metrics.New()
	opts := []service.DashboardOption{
		service.WithObserver(m),
		service.WithWindow(cfg.Forecast.Window),
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = libredis.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("forecast cache disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		} else {
			opts = append(opts, service.WithForecastCache(cache.NewForecastCache(redisClient, cfg.Forecast.CacheTTL)))
		}
	}

	dashboard := service.NewDashboardService(
		repository.NewStagingRepository(session),
		repository.NewHistoricalRepository(session),
		model,
		logger,
		opts...,
	)

	snapshot := func(ctx context.Context, station string) ([]byte, error) {
		snap, err := dashboard.RealTime(ctx, station)
		if err != nil {
			return nil, err
		}
		return json.Marshal(snap)
	}

	hub := ws.NewHub()
	live := ws.NewServer(hub, snapshot, defaultStation, 0, logger)
	dashHandlers := handlers.NewDashboardHandlers(dashboard, logger)

	routes := httpserver.Routes{
		Health:     handlers.NewHealthHandler(session),
		Metrics:    m.Handler(),
		Stations:   dashHandlers.Stations,
		RealTime:   dashHandlers.RealTime,
		Historical: dashHandlers.Historical,
		Forecast:   dashHandlers.Forecast,
		Live:       live.HandleWS,
	}
	routerOpts := httpserver.Options{
		Metrics:        m,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Logger:         logger,
	}
	if cfg.Auth.JWTSecret != "" {
		tokens := service.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		hasher := password.NewBcryptHasher(cfg.Auth.BcryptCost)
		if cfg.Auth.OperatorPasswordHash != "" && hasher.Weak(cfg.Auth.OperatorPasswordHash) {
			logger.Warn("operator password hash is below the configured bcrypt cost", zap.Int("cost", hasher.Cost()))
		}
		auth := service.NewAuthService(cfg.Auth.OperatorUser, cfg.Auth.OperatorPasswordHash, hasher, tokens, logger)
		routes.Token = handlers.NewTokenHandler(auth)
		routerOpts.Auth = middleware.AuthMiddleware(tokens)
	} else {
		logger.Warn("JWT_SECRET not set, dashboard API is unauthenticated")
	}

	sched := scheduler.New(nil, cfg.Forecast.RefreshInterval, logger)
	if _, err := sched.Every(cfg.Forecast.RefreshInterval, "live-refresh", func(ctx context.Context) error {
		for _, station := range hub.Stations() {
			payload, err := snapshot(ctx, station)
			if err != nil {
				logger.Warn("live snapshot failed", zap.String("station", station), zap.Error(err))
				continue
			}
			hub.Broadcast(station, payload)
		}
		return nil
	}); err != nil {
		session.Close()
		return nil, err
	}

	router := httpserver.NewRouter(routes, routerOpts)
	server := httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return &Dashboard{
		server:    server,
		live:      live,
		scheduler: sched,
		session:   session,
		redis:     redisClient,
		logger:    logger,
	}, nil
}

// Run serves HTTP and pushes live snapshots until ctx is cancelled.
func (d *Dashboard) Run(ctx context.Context) error {
	d.scheduler.Start()
	return d.server.Run(ctx)
}

// Close releases resources.
func (d *Dashboard) Close() {
	d.scheduler.Stop()
	d.live.Close()
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			d.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if err := d.session.Close(); err != nil {
		d.logger.Warn("failed to close db", zap.Error(err))
	}
}
