package aggregates

import (
	"strings"
	"time"

	"dclass/domain/core/valueobjects"
	"dclass/domain/events"
	pkgerrors "dclass/pkg/errors"
)

const defaultDiagramName = "Untitled diagram"

// Diagram is the aggregate root: diagram metadata plus its model
type Diagram struct {
	ID          valueobjects.DiagramID `json:"id"`
	OwnerID     string                 `json:"ownerId"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Model       Model                  `json:"model"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
	Version     int                    `json:"version"`

	events []events.DomainEvent
}

// NewDiagram creates a diagram owned by ownerID with an empty or supplied model
func NewDiagram(ownerID, name, description string, model Model) (*Diagram, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, pkgerrors.NewValidation("ownerId is required")
	}
	if strings.TrimSpace(name) == "" {
		name = defaultDiagramName
	}
	if model.Nodes == nil && model.Edges == nil {
		model = NewModel()
	}

	now := time.Now().UTC()
	d := &Diagram{
		ID:          valueobjects.NewDiagramID(),
		OwnerID:     ownerID,
		Name:        name,
		Description: description,
		Model:       snapshot(model),
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
	d.addEvent(events.NewDiagramCreated(d.ID.String(), ownerID, name, d.Version))
	return d, nil
}

// UpdateDetails changes name and/or description; nil leaves a field unchanged
func (d *Diagram) UpdateDetails(name, description *string) error {
	if name != nil {
		if strings.TrimSpace(*name) == "" {
			return pkgerrors.NewValidation("name cannot be empty")
		}
		d.Name = *name
	}
	if description != nil {
		d.Description = *description
	}
	d.touch()
	d.addEvent(events.NewDiagramUpdated(d.ID.String(), d.Name, d.Description, d.Version))
	return nil
}

// ReplaceModel overwrites the model with a full snapshot (last writer wins)
func (d *Diagram) ReplaceModel(m Model) {
	d.Model = snapshot(m)
	d.touch()
	d.addEvent(events.NewDiagramSaved(d.ID.String(), d.Model.NodeCount(), d.Model.EdgeCount(), d.Version))
}

// ApplyGenerated overwrites the model with a generation result
func (d *Diagram) ApplyGenerated(m Model, origin string) {
	d.Model = snapshot(m)
	d.touch()
	d.addEvent(events.NewDiagramGenerated(d.ID.String(), origin, d.Model.NodeCount(), d.Model.EdgeCount(), d.Version))
}

// snapshot is m normalized and without edges whose endpoints are missing
func snapshot(m Model) Model {
	out, _ := NewModel().Replace(m).Normalize().DropDanglingEdges()
	return out
}

// MarkDeleted records the deletion event
func (d *Diagram) MarkDeleted() {
	d.addEvent(events.NewDiagramDeleted(d.ID.String(), d.Version))
}

// GetUncommittedEvents returns events raised since the last commit
func (d *Diagram) GetUncommittedEvents() []events.DomainEvent {
	out := make([]events.DomainEvent, len(d.events))
	copy(out, d.events)
	return out
}

// MarkEventsAsCommitted clears the uncommitted events
func (d *Diagram) MarkEventsAsCommitted() {
	d.events = nil
}

func (d *Diagram) touch() {
	d.UpdatedAt = time.Now().UTC()
	d.Version++
}

func (d *Diagram) addEvent(event events.DomainEvent) {
	d.events = append(d.events, event)
}
