package services

import (
	"context"

	"go.uber.org/zap"

	"dclass/application/ports"
	"dclass/domain/core/valueobjects"
	pkgerrors "dclass/pkg/errors"
)

// CollaboratorAccess is what a guest obtains by presenting an invitation token
type CollaboratorAccess struct {
	Token     string                 `json:"token"`
	DiagramID valueobjects.DiagramID `json:"diagramId"`
	Name      string                 `json:"name,omitempty"`
}

// InvitationService exchanges invitation tokens for diagram access
type InvitationService struct {
	api    ports.InvitationAPI
	logger *zap.Logger
}

// NewInvitationService creates a new invitation service
func NewInvitationService(api ports.InvitationAPI, logger *zap.Logger) *InvitationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvitationService{api: api, logger: logger}
}

// Join validates the token locally, then resolves it. A token that looks like
// a URL is rejected without any network call.
func (s *InvitationService) Join(ctx context.Context, rawToken string) (*CollaboratorAccess, error) {
	token, err := valueobjects.NewInviteToken(rawToken)
	if err != nil {
		return nil, err
	}

	target, err := s.api.ResolveInvitationToken(ctx, token.String())
	if err != nil {
		s.logger.Warn("Invitation token rejected", zap.Error(err))
		if pkgerrors.IsNotFound(err) || pkgerrors.IsValidation(err) {
			return nil, err
		}
		return nil, pkgerrors.NewRemote("resolve invitation", err)
	}
	if target == nil || target.ID.IsZero() {
		return nil, pkgerrors.NewNotFound("invitation does not grant access to any diagram")
	}

	s.logger.Info("Joined diagram by invitation", zap.String("diagramID", target.ID.String()))
	return &CollaboratorAccess{
		Token:     token.String(),
		DiagramID: target.ID,
		Name:      target.Name,
	}, nil
}
