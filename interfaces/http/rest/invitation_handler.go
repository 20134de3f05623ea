package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"dclass/application/services"
	"dclass/domain/core/valueobjects"
	pkgerrors "dclass/pkg/errors"
)

// IssueInvitationResponse is the body of POST /diagrams/{diagramID}/invitations
type IssueInvitationResponse struct {
	Token string `json:"token"`
}

// InvitationHandler resolves invitation tokens
type InvitationHandler struct {
	diagrams *services.DiagramService
	logger   *zap.Logger
}

// NewInvitationHandler creates a new invitation handler
func NewInvitationHandler(diagrams *services.DiagramService, logger *zap.Logger) *InvitationHandler {
	return &InvitationHandler{diagrams: diagrams, logger: logger}
}

// ResolveInvitation handles GET /invitations/{token}
func (h *InvitationHandler) ResolveInvitation(w http.ResponseWriter, r *http.Request) {
	target, err := h.diagrams.ResolveInvitation(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, target)
}

// IssueInvitation handles POST /diagrams/{diagramID}/invitations
func (h *InvitationHandler) IssueInvitation(w http.ResponseWriter, r *http.Request) {
	id, err := valueobjects.ParseDiagramID(chi.URLParam(r, "diagramID"))
	if err != nil {
		respondError(w, r, h.logger, pkgerrors.NewValidationCause("invalid diagram id", err))
		return
	}
	token, err := h.diagrams.IssueInvite(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, h.logger, http.StatusCreated, IssueInvitationResponse{Token: token})
}
