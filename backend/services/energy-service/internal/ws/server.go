package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SnapshotFunc renders the current snapshot of a station.
type SnapshotFunc func(ctx context.Context, station string) ([]byte, error)

// Server upgrades HTTP connections to websockets for live snapshots.
type Server struct {
	hub          *Hub
	initial      SnapshotFunc
	defaultID    string
	logger       *zap.Logger
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewServer builds ws server. initial may be nil; defaultStation is used when the
// request names none.
func NewServer(hub *Hub, initial SnapshotFunc, defaultStation string, writeTimeout time.Duration, logger *zap.Logger) *Server {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		ctx:          ctx,
		cancel:       cancel,
		hub:          hub,
		initial:      initial,
		defaultID:    defaultStation,
		logger:       logger,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWS is HTTP handler for /api/v1/live?station=.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	station := strings.TrimSpace(r.URL.Query().Get("station"))
	if station == "" {
		station = s.defaultID
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	id := uuid.NewString()
	connection := NewConnection(id, station, conn, s.writeTimeout, s.logger, func(id string) {
		s.hub.Remove(id)
		cancel()
	})
	s.hub.Add(connection)

	if s.initial != nil {
		if payload, err := s.initial(r.Context(), station); err != nil {
			s.logger.Warn("initial live snapshot failed", zap.String("station", station), zap.Error(err))
		} else {
			connection.Send(payload)
		}
	}

	go connection.Start(ctx)
	s.logger.Info("live client connected", zap.String("client_id", id), zap.String("station", station))
}

// Close disconnects every live client with a going-away frame. Connections accepted
// afterwards are closed right away.
func (s *Server) Close() {
	s.cancel()
}
