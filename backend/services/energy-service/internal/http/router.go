package httpserver

import (
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"go.uber.org/zap"

	"gridcast/backend/services/energy-service/internal/http/middleware"
	"gridcast/backend/services/energy-service/internal/metrics"
)

// Routes groups handlers.
type Routes struct {
	Health     http.HandlerFunc
	Metrics    http.Handler
	Token      http.HandlerFunc
	Stations   http.HandlerFunc
	RealTime   http.HandlerFunc
	Historical http.HandlerFunc
	Forecast   http.HandlerFunc
	Live       http.HandlerFunc
}

// Options configures cross-cutting middleware.
type Options struct {
	// Auth guards /api/v1/* except the token endpoint; nil leaves the API open.
	Auth           func(http.Handler) http.Handler
	Metrics        *metrics.Metrics
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter registers endpoints.
func NewRouter(routes Routes, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()

	handle := func(path, verb string, h http.Handler, protected bool) {
		if h == nil {
			return
		}
		if protected {
			h = middleware.Chain(h, opts.Auth)
		}
		mux.Handle(path, opts.Metrics.WrapHandler(path, method(verb, h)))
	}

	if routes.Health != nil {
		handle("/health", http.MethodGet, routes.Health, false)
	}
	if routes.Metrics != nil {
		mux.Handle("/metrics", method(http.MethodGet, routes.Metrics))
	}
	if routes.Token != nil {
		handle("/api/v1/auth/token", http.MethodPost, routes.Token, false)
	}
	if routes.Stations != nil {
		handle("/api/v1/stations", http.MethodGet, routes.Stations, true)
	}
	if routes.RealTime != nil {
		handle("/api/v1/realtime", http.MethodGet, routes.RealTime, true)
	}
	if routes.Historical != nil {
		handle("/api/v1/historical", http.MethodGet, routes.Historical, true)
	}
	if routes.Forecast != nil {
		handle("/api/v1/forecast", http.MethodGet, routes.Forecast, true)
	}
	if routes.Live != nil {
		handle("/api/v1/live", http.MethodGet, routes.Live, true)
	}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger}),
		handlers.PrintRecoveryStack(false),
	)
	access := zap.NewStdLog(logger.Named("access")).Writer()

	return handlers.CombinedLoggingHandler(access, recovery(cors(mux)))
}

func method(expected string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

type recoveryLogger struct {
	logger *zap.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("handler panic recovered", zap.String("panic", fmt.Sprint(v...)))
}
