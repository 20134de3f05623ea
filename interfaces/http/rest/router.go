// Package rest exposes diagram persistence, invitations and exports over
// HTTP, and mounts the websocket endpoint next to them.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"dclass/application/services"
	"dclass/pkg/observability"
)

// maxBodyBytes bounds JSON request bodies; a saved model carries every node
const maxBodyBytes = 8 << 20

// RouterConfig holds HTTP surface settings
type RouterConfig struct {
	AllowedOrigins []string
	ExportBaseURL  string
	EnableMetrics  bool
	EnableTracing  bool
}

// Router creates and configures the HTTP router
type Router struct {
	diagrams    *services.DiagramService
	broadcaster DiagramBroadcaster
	websocket   http.HandlerFunc
	metrics     *observability.Collector
	config      RouterConfig
	logger      *zap.Logger
}

// NewRouter creates a new router instance. broadcaster and websocket may be
// nil where no realtime hub runs, as on Lambda.
func NewRouter(
	diagrams *services.DiagramService,
	broadcaster DiagramBroadcaster,
	websocket http.HandlerFunc,
	metrics *observability.Collector,
	config RouterConfig,
	logger *zap.Logger,
) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}
	return &Router{
		diagrams:    diagrams,
		broadcaster: broadcaster,
		websocket:   websocket,
		metrics:     metrics,
		config:      config,
		logger:      logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() (http.Handler, error) {
	exportHandler, err := NewExportHandler(rt.diagrams, rt.config.ExportBaseURL, rt.logger)
	if err != nil {
		return nil, err
	}

	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(rt.logger))
	if rt.config.EnableTracing {
		router.Use(tracingMiddleware("dclass/interfaces/http/rest"))
	}
	if rt.metrics != nil {
		router.Use(metricsMiddleware(rt.metrics))
	}

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", SocketIDHeader},
		ExposedHeaders:   []string{"X-Request-ID", "Location"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", rt.healthCheck)
	if rt.metrics != nil && rt.config.EnableMetrics {
		router.Handle("/metrics", rt.metrics.Handler())
	}
	if rt.websocket != nil {
		router.Get("/ws", rt.websocket)
	}

	router.Route("/api/v1", func(r chi.Router) {
		diagramHandler := NewDiagramHandler(rt.diagrams, rt.broadcaster, rt.logger)
		invitationHandler := NewInvitationHandler(rt.diagrams, rt.logger)

		r.Route("/diagrams", func(r chi.Router) {
			r.Get("/", diagramHandler.ListDiagrams)
			r.Post("/", diagramHandler.CreateDiagram)
			r.Post("/bulk-delete", diagramHandler.BulkDeleteDiagrams)
			r.Get("/{diagramID}", diagramHandler.GetDiagram)
			r.Patch("/{diagramID}", diagramHandler.UpdateDiagram)
			r.Delete("/{diagramID}", diagramHandler.DeleteDiagram)
			r.Put("/{diagramID}/model", diagramHandler.SaveModel)
			r.Post("/{diagramID}/invitations", invitationHandler.IssueInvitation)
		})

		r.Get("/invitations/{token}", invitationHandler.ResolveInvitation)
		r.Get("/export/generate-{kind}/{diagramID}", exportHandler.Export)
	})

	return router, nil
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}
