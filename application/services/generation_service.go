package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"dclass/application/ports"
	"dclass/domain/core/aggregates"
	"dclass/domain/core/valueobjects"
	"dclass/domain/events"
	pkgerrors "dclass/pkg/errors"
)

// GenerationService runs AI generation requests and stores diagram results
type GenerationService struct {
	generator ports.DiagramGenerator
	diagrams  *DiagramService
	logger    *zap.Logger
}

// NewGenerationService creates a new generation service
func NewGenerationService(generator ports.DiagramGenerator, diagrams *DiagramService, logger *zap.Logger) *GenerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationService{generator: generator, diagrams: diagrams, logger: logger}
}

// GenerateFromPrompt produces a full model from a natural-language request and,
// when id is set, stores it as the diagram's model
func (s *GenerationService) GenerateFromPrompt(ctx context.Context, id valueobjects.DiagramID, prompt string) (aggregates.Model, error) {
	if strings.TrimSpace(prompt) == "" {
		return aggregates.Model{}, pkgerrors.NewValidation("prompt is required")
	}
	model, err := s.generator.GenerateFromPrompt(ctx, prompt)
	if err != nil {
		return aggregates.Model{}, s.generationError("prompt", err)
	}
	return s.store(ctx, id, model, events.OriginPrompt)
}

// GenerateFromImage reads a diagram from an image and stores it like a prompt result
func (s *GenerationService) GenerateFromImage(ctx context.Context, id valueobjects.DiagramID, dataURL, fileName string) (aggregates.Model, error) {
	if !strings.HasPrefix(dataURL, "data:image/") {
		return aggregates.Model{}, pkgerrors.NewValidation("image must be a data:image/ URL")
	}
	model, err := s.generator.GenerateFromImage(ctx, dataURL, fileName)
	if err != nil {
		return aggregates.Model{}, s.generationError("image", err)
	}
	return s.store(ctx, id, model, events.OriginImage)
}

// Converse returns a chat reply; it never touches any diagram
func (s *GenerationService) Converse(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", pkgerrors.NewValidation("prompt is required")
	}
	text, err := s.generator.Converse(ctx, prompt)
	if err != nil {
		return "", s.generationError("conversation", err)
	}
	return text, nil
}

// store normalizes a generated model and persists it.
// Generated edges pointing at nodes the model does not contain are dropped.
func (s *GenerationService) store(ctx context.Context, id valueobjects.DiagramID, model aggregates.Model, origin string) (aggregates.Model, error) {
	model, dropped := aggregates.NewModel().Replace(model).Normalize().DropDanglingEdges()
	if dropped > 0 {
		s.logger.Warn("Dropping generated edges with unknown endpoints",
			zap.String("diagramID", id.String()),
			zap.Int("count", dropped),
		)
	}

	if id.IsZero() || s.diagrams == nil {
		return model, nil
	}
	if err := s.diagrams.ApplyGenerated(ctx, id, model, origin); err != nil {
		return aggregates.Model{}, pkgerrors.Wrap(err, "store generated diagram")
	}
	s.logger.Info("Generated diagram stored",
		zap.String("diagramID", id.String()),
		zap.String("origin", origin),
		zap.Int("nodes", model.NodeCount()),
		zap.Int("edges", model.EdgeCount()),
	)
	return model, nil
}

func (s *GenerationService) generationError(kind string, err error) error {
	s.logger.Warn("Generation failed", zap.String("kind", kind), zap.Error(err))
	if pkgerrors.IsGeneration(err) || pkgerrors.IsValidation(err) {
		return err
	}
	return &pkgerrors.AppError{Type: pkgerrors.ErrorTypeGeneration, Message: kind + " generation failed", Err: err}
}
