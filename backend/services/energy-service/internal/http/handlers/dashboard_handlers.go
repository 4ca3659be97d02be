package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"gridcast/backend/services/energy-service/internal/forecast"
	"gridcast/backend/services/energy-service/internal/repository"
	"gridcast/backend/services/energy-service/internal/service"
)

const dateLayout = "2006-01-02"

// Dashboard is the read path the handlers serve.
type Dashboard interface {
	Stations(ctx context.Context) []string
	RealTime(ctx context.Context, station string) (service.Snapshot, error)
	Historical(ctx context.Context, station string, start, end time.Time) (service.Snapshot, error)
	Forecast(ctx context.Context, station string) ([]forecast.Point, error)
}

// DashboardHandlers serves the /api/v1 read endpoints.
type DashboardHandlers struct {
	dashboard Dashboard
	logger    *zap.Logger
}

// NewDashboardHandlers returns handler struct.
func NewDashboardHandlers(dashboard Dashboard, logger *zap.Logger) *DashboardHandlers {
	return &DashboardHandlers{dashboard: dashboard, logger: logger}
}

// Stations handles GET /api/v1/stations.
func (h *DashboardHandlers) Stations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"stations": h.dashboard.Stations(r.Context())})
}

// RealTime handles GET /api/v1/realtime?station=.
func (h *DashboardHandlers) RealTime(w http.ResponseWriter, r *http.Request) {
	station := stationParam(r)
	snap, err := h.dashboard.RealTime(r.Context(), station)
	if err != nil {
		h.logger.Error("realtime snapshot failed", zap.String("station", station), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to build snapshot")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Historical handles GET /api/v1/historical?station=&start=&end=.
func (h *DashboardHandlers) Historical(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := time.ParseInLocation(dateLayout, q.Get("start"), time.Local)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start must be YYYY-MM-DD")
		return
	}
	end, err := time.ParseInLocation(dateLayout, q.Get("end"), time.Local)
	if err != nil {
		writeError(w, http.StatusBadRequest, "end must be YYYY-MM-DD")
		return
	}

	station := stationParam(r)
	snap, err := h.dashboard.Historical(r.Context(), station, start, end)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRange) {
			writeError(w, http.StatusBadRequest, "start date must be before end date")
			return
		}
		h.logger.Error("historical snapshot failed", zap.String("station", station), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to build snapshot")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Forecast handles GET /api/v1/forecast?station=.
func (h *DashboardHandlers) Forecast(w http.ResponseWriter, r *http.Request) {
	station := stationParam(r)
	points, err := h.dashboard.Forecast(r.Context(), station)
	if err != nil {
		h.logger.Error("forecast failed", zap.String("station", station), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to forecast")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"station":  station,
		"forecast": points,
	})
}

func stationParam(r *http.Request) string {
	station := strings.TrimSpace(r.URL.Query().Get("station"))
	if station == "" {
		return repository.AllStations
	}
	return station
}
