package rest

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"dclass/application/ports"
	"dclass/application/services"
	"dclass/domain/core/aggregates"
	"dclass/domain/core/valueobjects"
	pkgerrors "dclass/pkg/errors"
)

// SocketIDHeader names the realtime connection that issued a REST save; that
// connection is skipped when the update is broadcast
const SocketIDHeader = "X-Socket-Id"

// DiagramBroadcaster pushes saved models to a diagram's collaborators
type DiagramBroadcaster interface {
	BroadcastDiagram(diagramID string, model aggregates.Model, except string)
}

// DiagramHandler handles diagram-related HTTP requests
type DiagramHandler struct {
	diagrams    *services.DiagramService
	broadcaster DiagramBroadcaster
	logger      *zap.Logger
}

// NewDiagramHandler creates a new diagram handler. broadcaster may be nil.
func NewDiagramHandler(diagrams *services.DiagramService, broadcaster DiagramBroadcaster, logger *zap.Logger) *DiagramHandler {
	return &DiagramHandler{
		diagrams:    diagrams,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// ListDiagramsResponse is the body of GET /diagrams
type ListDiagramsResponse struct {
	Diagrams []*aggregates.Diagram `json:"diagrams"`
}

// BulkDeleteRequest is the body of POST /diagrams/bulk-delete
type BulkDeleteRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=100,dive,required"`
}

// ListDiagrams handles GET /diagrams?ownerId=
func (h *DiagramHandler) ListDiagrams(w http.ResponseWriter, r *http.Request) {
	ownerID := strings.TrimSpace(r.URL.Query().Get("ownerId"))
	if ownerID == "" {
		respondError(w, r, h.logger, pkgerrors.NewValidation("ownerId is required"))
		return
	}
	diagrams, err := h.diagrams.ListByOwner(r.Context(), ownerID)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if diagrams == nil {
		diagrams = []*aggregates.Diagram{}
	}
	respondJSON(w, h.logger, http.StatusOK, ListDiagramsResponse{Diagrams: diagrams})
}

// CreateDiagram handles POST /diagrams
func (h *DiagramHandler) CreateDiagram(w http.ResponseWriter, r *http.Request) {
	var req ports.CreateDiagramRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := validateStruct(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	diagram, err := h.diagrams.Create(r.Context(), req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Location", "/api/v1/diagrams/"+diagram.ID.String())
	respondJSON(w, h.logger, http.StatusCreated, diagram)
}

// GetDiagram handles GET /diagrams/{diagramID}
func (h *DiagramHandler) GetDiagram(w http.ResponseWriter, r *http.Request) {
	id, ok := h.diagramID(w, r)
	if !ok {
		return
	}
	diagram, err := h.diagrams.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, diagram)
}

// UpdateDiagram handles PATCH /diagrams/{diagramID}
func (h *DiagramHandler) UpdateDiagram(w http.ResponseWriter, r *http.Request) {
	id, ok := h.diagramID(w, r)
	if !ok {
		return
	}
	var req ports.UpdateDiagramRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := validateStruct(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	diagram, err := h.diagrams.Update(r.Context(), id, req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, diagram)
}

// DeleteDiagram handles DELETE /diagrams/{diagramID}
func (h *DiagramHandler) DeleteDiagram(w http.ResponseWriter, r *http.Request) {
	id, ok := h.diagramID(w, r)
	if !ok {
		return
	}
	if err := h.diagrams.Delete(r.Context(), id); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BulkDeleteDiagrams handles POST /diagrams/bulk-delete
func (h *DiagramHandler) BulkDeleteDiagrams(w http.ResponseWriter, r *http.Request) {
	var req BulkDeleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := validateStruct(req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	ids := make([]valueobjects.DiagramID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := valueobjects.ParseDiagramID(raw)
		if err != nil {
			respondError(w, r, h.logger, pkgerrors.NewValidationCause("invalid diagram id "+raw, err))
			return
		}
		ids = append(ids, id)
	}

	if err := h.diagrams.BulkDelete(r.Context(), ids); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SaveModel handles PUT /diagrams/{diagramID}/model. The stored model is
// pushed to the diagram's room, skipping the saving connection.
func (h *DiagramHandler) SaveModel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.diagramID(w, r)
	if !ok {
		return
	}
	var model aggregates.Model
	if err := decodeJSON(w, r, &model); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	stored, err := h.diagrams.SaveModel(r.Context(), id, model)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if h.broadcaster != nil {
		h.broadcaster.BroadcastDiagram(id.String(), stored, r.Header.Get(SocketIDHeader))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DiagramHandler) diagramID(w http.ResponseWriter, r *http.Request) (valueobjects.DiagramID, bool) {
	id, err := valueobjects.ParseDiagramID(chi.URLParam(r, "diagramID"))
	if err != nil {
		respondError(w, r, h.logger, pkgerrors.NewValidationCause("invalid diagram id", err))
		return "", false
	}
	return id, true
}
