package services

import (
	"context"

	"go.uber.org/zap"

	"dclass/application/ports"
	"dclass/domain/core/aggregates"
	"dclass/domain/core/valueobjects"
	"dclass/domain/events"
	pkgerrors "dclass/pkg/errors"
)

// DiagramService is the server-side diagram use-case layer behind the REST API
// and the collaboration hub
type DiagramService struct {
	repo      ports.DiagramRepository
	publisher ports.EventPublisher
	issuer    ports.InviteIssuer
	logger    *zap.Logger
}

// NewDiagramService creates a new diagram service
func NewDiagramService(
	repo ports.DiagramRepository,
	publisher ports.EventPublisher,
	issuer ports.InviteIssuer,
	logger *zap.Logger,
) *DiagramService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiagramService{
		repo:      repo,
		publisher: publisher,
		issuer:    issuer,
		logger:    logger,
	}
}

// Create creates and stores a diagram
func (s *DiagramService) Create(ctx context.Context, req ports.CreateDiagramRequest) (*aggregates.Diagram, error) {
	diagram, err := aggregates.NewDiagram(req.OwnerID, req.Name, req.Description, req.Model)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, diagram); err != nil {
		return nil, pkgerrors.Wrap(err, "create diagram")
	}
	s.publish(ctx, diagram)

	s.logger.Info("Diagram created",
		zap.String("diagramID", diagram.ID.String()),
		zap.String("ownerID", diagram.OwnerID),
	)
	return diagram, nil
}

// Get loads a diagram
func (s *DiagramService) Get(ctx context.Context, id valueobjects.DiagramID) (*aggregates.Diagram, error) {
	return s.repo.Get(ctx, id)
}

// ListByOwner lists a user's diagrams
func (s *DiagramService) ListByOwner(ctx context.Context, ownerID string) ([]*aggregates.Diagram, error) {
	if ownerID == "" {
		return nil, pkgerrors.NewValidation("ownerId is required")
	}
	return s.repo.ListByOwner(ctx, ownerID)
}

// Update changes name and description
func (s *DiagramService) Update(ctx context.Context, id valueobjects.DiagramID, req ports.UpdateDiagramRequest) (*aggregates.Diagram, error) {
	diagram, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := diagram.UpdateDetails(req.Name, req.Description); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, diagram); err != nil {
		return nil, pkgerrors.Wrap(err, "update diagram")
	}
	s.publish(ctx, diagram)
	return diagram, nil
}

// Delete removes a diagram
func (s *DiagramService) Delete(ctx context.Context, id valueobjects.DiagramID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.publishEvents(ctx, events.NewDiagramDeleted(id.String(), 0))
	return nil
}

// BulkDelete removes several diagrams
func (s *DiagramService) BulkDelete(ctx context.Context, ids []valueobjects.DiagramID) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.repo.DeleteBatch(ctx, ids); err != nil {
		return err
	}
	evts := make([]events.DomainEvent, 0, len(ids))
	for _, id := range ids {
		evts = append(evts, events.NewDiagramDeleted(id.String(), 0))
	}
	s.publishEvents(ctx, evts...)
	return nil
}

// SaveModel overwrites the stored model of a diagram and returns the model
// as stored, without dangling edges
func (s *DiagramService) SaveModel(ctx context.Context, id valueobjects.DiagramID, model aggregates.Model) (aggregates.Model, error) {
	model, dropped := aggregates.NewModel().Replace(model).Normalize().DropDanglingEdges()
	if dropped > 0 {
		s.logger.Warn("Dropping saved edges with unknown endpoints",
			zap.String("diagramID", id.String()),
			zap.Int("count", dropped),
		)
	}
	if err := s.repo.SaveModel(ctx, id, model); err != nil {
		return aggregates.Model{}, err
	}
	s.publishEvents(ctx, events.NewDiagramSaved(id.String(), model.NodeCount(), model.EdgeCount(), 0))
	return model, nil
}

// ApplyGenerated stores a generation result as the diagram's model
func (s *DiagramService) ApplyGenerated(ctx context.Context, id valueobjects.DiagramID, model aggregates.Model, origin string) error {
	diagram, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	diagram.ApplyGenerated(model, origin)
	if err := s.repo.SaveModel(ctx, id, diagram.Model); err != nil {
		return err
	}
	s.publish(ctx, diagram)
	return nil
}

// IssueInvite creates an invitation token for an existing diagram
func (s *DiagramService) IssueInvite(ctx context.Context, id valueobjects.DiagramID) (string, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return "", err
	}
	return s.issuer.Issue(ctx, id)
}

// ResolveInvitation returns the diagram an invitation token grants access to
func (s *DiagramService) ResolveInvitation(ctx context.Context, rawToken string) (*ports.InvitationTarget, error) {
	token, err := valueobjects.NewInviteToken(rawToken)
	if err != nil {
		return nil, err
	}
	id, err := s.issuer.Resolve(ctx, token.String())
	if err != nil {
		return nil, err
	}
	diagram, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ports.InvitationTarget{ID: diagram.ID, Name: diagram.Name, OwnerID: diagram.OwnerID}, nil
}

// publish sends the aggregate's pending events; failures are logged, not returned
func (s *DiagramService) publish(ctx context.Context, diagram *aggregates.Diagram) {
	s.publishEvents(ctx, diagram.GetUncommittedEvents()...)
	diagram.MarkEventsAsCommitted()
}

func (s *DiagramService) publishEvents(ctx context.Context, evts ...events.DomainEvent) {
	if s.publisher == nil || len(evts) == 0 {
		return
	}
	if err := s.publisher.PublishBatch(ctx, evts); err != nil {
		s.logger.Warn("Failed to publish diagram events",
			zap.Int("count", len(evts)),
			zap.Error(err),
		)
	}
}
