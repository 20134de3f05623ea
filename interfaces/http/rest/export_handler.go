package rest

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"dclass/application/ports"
	"dclass/application/services"
	"dclass/domain/core/valueobjects"
	pkgerrors "dclass/pkg/errors"
)

// ExportHandler forwards export requests to the code generation service
type ExportHandler struct {
	diagrams *services.DiagramService
	proxy    *httputil.ReverseProxy
	logger   *zap.Logger
}

// NewExportHandler creates an export handler proxying to baseURL. An empty
// baseURL disables exports.
func NewExportHandler(diagrams *services.DiagramService, baseURL string, logger *zap.Logger) (*ExportHandler, error) {
	h := &ExportHandler{diagrams: diagrams, logger: logger}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return h, nil
	}

	target, err := url.Parse(baseURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, pkgerrors.NewValidation("invalid export base url " + baseURL)
	}
	h.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			respondError(w, r, logger, pkgerrors.NewRemote("export service unavailable", err))
		},
	}
	return h, nil
}

// Export handles GET /export/generate-{kind}/{diagramID}
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	if h.proxy == nil {
		respondJSON(w, h.logger, http.StatusNotImplemented, errorResponse{
			Error: "export is not configured on this server",
			Code:  "NOT_IMPLEMENTED",
		})
		return
	}

	kind, err := ports.ParseExportKind(chi.URLParam(r, "kind"))
	if err != nil {
		respondError(w, r, h.logger, pkgerrors.NewValidationCause(err.Error(), err))
		return
	}
	id, err := valueobjects.ParseDiagramID(chi.URLParam(r, "diagramID"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if _, err := h.diagrams.Get(r.Context(), id); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	h.logger.Info("Forwarding export",
		zap.String("kind", string(kind)),
		zap.String("diagramID", id.String()),
	)
	out := r.Clone(r.Context())
	out.URL.Path = "/" + kind.Path(id.String())
	out.URL.RawPath = ""
	h.proxy.ServeHTTP(w, out)
}
