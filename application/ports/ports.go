package ports

import (
	"context"
	"io"

	"dclass/domain/core/aggregates"
	"dclass/domain/core/valueobjects"
	"dclass/domain/events"
)

// CreateDiagramRequest is the payload for creating a diagram
type CreateDiagramRequest struct {
	Name        string           `json:"name" validate:"required,max=200"`
	Description string           `json:"description" validate:"max=2000"`
	OwnerID     string           `json:"ownerId" validate:"required"`
	Model       aggregates.Model `json:"model"`
}

// UpdateDiagramRequest changes diagram metadata; nil fields are left unchanged
type UpdateDiagramRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
}

// InvitationTarget is what an invitation token resolves to
type InvitationTarget struct {
	ID      valueobjects.DiagramID `json:"id"`
	Name    string                 `json:"name,omitempty"`
	OwnerID string                 `json:"ownerId,omitempty"`
}

// DiagramAPI is the external persistence API consumed by the editor
type DiagramAPI interface {
	// LoadDiagramsByOwner lists the diagrams owned by a user
	LoadDiagramsByOwner(ctx context.Context, ownerID string) ([]*aggregates.Diagram, error)

	// GetDiagram loads one diagram with its model
	GetDiagram(ctx context.Context, id valueobjects.DiagramID) (*aggregates.Diagram, error)

	// CreateDiagram creates a diagram
	CreateDiagram(ctx context.Context, req CreateDiagramRequest) (*aggregates.Diagram, error)

	// UpdateDiagram changes name and description
	UpdateDiagram(ctx context.Context, id valueobjects.DiagramID, req UpdateDiagramRequest) (*aggregates.Diagram, error)

	// DeleteDiagram removes a diagram
	DeleteDiagram(ctx context.Context, id valueobjects.DiagramID) error

	// BulkDeleteDiagrams removes several diagrams
	BulkDeleteDiagrams(ctx context.Context, ids []valueobjects.DiagramID) error

	// SaveDiagram overwrites the stored model
	SaveDiagram(ctx context.Context, id valueobjects.DiagramID, model aggregates.Model) error
}

// InvitationAPI resolves invitation tokens
type InvitationAPI interface {
	ResolveInvitationToken(ctx context.Context, token string) (*InvitationTarget, error)
}

// ExportAPI produces generated artifacts for a diagram. The caller closes the reader.
type ExportAPI interface {
	Export(ctx context.Context, kind ExportKind, id valueobjects.DiagramID) (io.ReadCloser, error)
}

// DiagramRepository persists diagrams on the server side
type DiagramRepository interface {
	// Save creates or overwrites a diagram
	Save(ctx context.Context, diagram *aggregates.Diagram) error

	// Get returns a NotFound error when the diagram does not exist
	Get(ctx context.Context, id valueobjects.DiagramID) (*aggregates.Diagram, error)

	// ListByOwner returns the owner's diagrams, newest first
	ListByOwner(ctx context.Context, ownerID string) ([]*aggregates.Diagram, error)

	// SaveModel overwrites only the model of an existing diagram
	SaveModel(ctx context.Context, id valueobjects.DiagramID, model aggregates.Model) error

	// Delete removes a diagram
	Delete(ctx context.Context, id valueobjects.DiagramID) error

	// DeleteBatch removes several diagrams; missing ids are ignored
	DeleteBatch(ctx context.Context, ids []valueobjects.DiagramID) error
}

// EventPublisher publishes domain events
type EventPublisher interface {
	Publish(ctx context.Context, event events.DomainEvent) error
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}

// DiagramGenerator produces diagrams and replies from natural language or images
type DiagramGenerator interface {
	// GenerateFromPrompt returns a complete model for the request
	GenerateFromPrompt(ctx context.Context, prompt string) (aggregates.Model, error)

	// Converse returns a plain chat reply
	Converse(ctx context.Context, prompt string) (string, error)

	// GenerateFromImage reads a diagram from a data URL encoded image
	GenerateFromImage(ctx context.Context, dataURL, fileName string) (aggregates.Model, error)
}

// InviteIssuer issues and verifies invitation tokens
type InviteIssuer interface {
	Issue(ctx context.Context, id valueobjects.DiagramID) (string, error)
	Resolve(ctx context.Context, token string) (valueobjects.DiagramID, error)
}
