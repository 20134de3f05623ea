package events

import (
	"time"

	"github.com/google/uuid"
)

// Event sources
const (
	// SourceCollab is the collaboration server
	SourceCollab = "dclass.collab"

	// SourceAPI is the REST API (server or Lambda)
	SourceAPI = "dclass.api"
)

// Event types
const (
	TypeDiagramCreated   = "diagram.created"
	TypeDiagramUpdated   = "diagram.updated"
	TypeDiagramSaved     = "diagram.saved"
	TypeDiagramDeleted   = "diagram.deleted"
	TypeDiagramGenerated = "diagram.generated"
)

// Generation origins carried by DiagramGenerated
const (
	OriginPrompt = "prompt"
	OriginImage  = "image"
)

// DomainEvent is an occurrence published to other systems
type DomainEvent interface {
	GetEventID() string
	GetEventType() string
	GetAggregateID() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent carries the fields shared by every event
type BaseEvent struct {
	EventID     string    `json:"eventId"`
	EventType   string    `json:"eventType"`
	AggregateID string    `json:"aggregateId"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func newBase(eventType, aggregateID string, version int) BaseEvent {
	return BaseEvent{
		EventID:     uuid.New().String(),
		EventType:   eventType,
		AggregateID: aggregateID,
		Timestamp:   time.Now().UTC(),
		Version:     version,
	}
}

// GetEventID returns the event id
func (e BaseEvent) GetEventID() string { return e.EventID }

// GetEventType returns the event type
func (e BaseEvent) GetEventType() string { return e.EventType }

// GetAggregateID returns the aggregate ID
func (e BaseEvent) GetAggregateID() string { return e.AggregateID }

// GetTimestamp returns the event timestamp
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }

// GetVersion returns the event version
func (e BaseEvent) GetVersion() int { return e.Version }

// DiagramCreated is emitted when a diagram is created
type DiagramCreated struct {
	BaseEvent
	OwnerID string `json:"ownerId"`
	Name    string `json:"name"`
}

// NewDiagramCreated creates a DiagramCreated event
func NewDiagramCreated(diagramID, ownerID, name string, version int) *DiagramCreated {
	return &DiagramCreated{
		BaseEvent: newBase(TypeDiagramCreated, diagramID, version),
		OwnerID:   ownerID,
		Name:      name,
	}
}

// DiagramUpdated is emitted when name or description change
type DiagramUpdated struct {
	BaseEvent
	Name        string `json:"name"`
	Description string `json:"description"`
}

// NewDiagramUpdated creates a DiagramUpdated event
func NewDiagramUpdated(diagramID, name, description string, version int) *DiagramUpdated {
	return &DiagramUpdated{
		BaseEvent:   newBase(TypeDiagramUpdated, diagramID, version),
		Name:        name,
		Description: description,
	}
}

// DiagramSaved is emitted when a model snapshot is persisted
type DiagramSaved struct {
	BaseEvent
	NodeCount int `json:"nodeCount"`
	EdgeCount int `json:"edgeCount"`
}

// NewDiagramSaved creates a DiagramSaved event
func NewDiagramSaved(diagramID string, nodes, edges, version int) *DiagramSaved {
	return &DiagramSaved{
		BaseEvent: newBase(TypeDiagramSaved, diagramID, version),
		NodeCount: nodes,
		EdgeCount: edges,
	}
}

// DiagramDeleted is emitted when a diagram is removed
type DiagramDeleted struct {
	BaseEvent
}

// NewDiagramDeleted creates a DiagramDeleted event
func NewDiagramDeleted(diagramID string, version int) *DiagramDeleted {
	return &DiagramDeleted{BaseEvent: newBase(TypeDiagramDeleted, diagramID, version)}
}

// DiagramGenerated is emitted when a generation result replaces a diagram model
type DiagramGenerated struct {
	BaseEvent
	Origin    string `json:"origin"`
	NodeCount int    `json:"nodeCount"`
	EdgeCount int    `json:"edgeCount"`
}

// NewDiagramGenerated creates a DiagramGenerated event
func NewDiagramGenerated(diagramID, origin string, nodes, edges, version int) *DiagramGenerated {
	return &DiagramGenerated{
		BaseEvent: newBase(TypeDiagramGenerated, diagramID, version),
		Origin:    origin,
		NodeCount: nodes,
		EdgeCount: edges,
	}
}
