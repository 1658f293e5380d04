package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/berfenger/batteryopt2mqtt/internal/config"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

type Server struct {
	port        uint
	httpLog     bool
	corsOrigins []string
	rootContext *actor.RootContext
	masterActor *actor.PID
	hub         *Hub
	logger      *zap.Logger
}

func newServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID,
	eventStream *eventstream.EventStream, logger *zap.Logger) *Server {
	hub := NewHub(logger.With(zap.String("component", "ws")))
	if eventStream != nil {
		hub.Subscribe(eventStream)
	}
	return &Server{
		port:        cfg.Port,
		rootContext: rootContext,
		masterActor: masterActor,
		httpLog:     cfg.HttpLog,
		corsOrigins: cfg.HttpCORSOrigins,
		hub:         hub,
		logger:      logger.With(zap.String("component", "http")),
	}
}

func NewServer(cfg config.Config, rootContext *actor.RootContext, masterActor *actor.PID,
	eventStream *eventstream.EventStream, logger *zap.Logger) *http.Server {
	NewServer := newServer(cfg, rootContext, masterActor, eventStream, logger)

	// Declare Server config
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", NewServer.port),
		Handler:      NewServer.Handler(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}

// Handler is the echo router, behind a CORS layer when origins are
// configured.
func (s *Server) Handler() http.Handler {
	h := s.RegisterRoutes()
	if len(s.corsOrigins) == 0 {
		return h
	}
	return cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(h)
}
