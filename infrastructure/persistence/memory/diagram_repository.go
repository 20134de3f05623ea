// Package memory provides an in-process DiagramRepository for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"dclass/application/ports"
	"dclass/domain/core/aggregates"
	"dclass/domain/core/valueobjects"
	pkgerrors "dclass/pkg/errors"
)

// DiagramRepository keeps diagrams in a map guarded by a RWMutex
type DiagramRepository struct {
	mu       sync.RWMutex
	diagrams map[valueobjects.DiagramID]*aggregates.Diagram
}

var _ ports.DiagramRepository = (*DiagramRepository)(nil)

// NewDiagramRepository creates an empty repository
func NewDiagramRepository() *DiagramRepository {
	return &DiagramRepository{diagrams: make(map[valueobjects.DiagramID]*aggregates.Diagram)}
}

// Save creates or overwrites a diagram
func (r *DiagramRepository) Save(_ context.Context, diagram *aggregates.Diagram) error {
	if diagram == nil || diagram.ID.IsZero() {
		return pkgerrors.NewValidation("diagram id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diagrams[diagram.ID] = copyDiagram(diagram)
	return nil
}

// Get returns a copy of the stored diagram
func (r *DiagramRepository) Get(_ context.Context, id valueobjects.DiagramID) (*aggregates.Diagram, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.diagrams[id]
	if !ok {
		return nil, pkgerrors.NewNotFound("diagram " + id.String() + " not found")
	}
	return copyDiagram(d), nil
}

// ListByOwner returns the owner's diagrams, most recently updated first
func (r *DiagramRepository) ListByOwner(_ context.Context, ownerID string) ([]*aggregates.Diagram, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*aggregates.Diagram, 0)
	for _, d := range r.diagrams {
		if d.OwnerID == ownerID {
			out = append(out, copyDiagram(d))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// SaveModel overwrites the model of an existing diagram
func (r *DiagramRepository) SaveModel(_ context.Context, id valueobjects.DiagramID, model aggregates.Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.diagrams[id]
	if !ok {
		return pkgerrors.NewNotFound("diagram " + id.String() + " not found")
	}
	d.Model = aggregates.NewModel().Replace(model)
	d.UpdatedAt = time.Now().UTC()
	d.Version++
	return nil
}

// Delete removes a diagram
func (r *DiagramRepository) Delete(_ context.Context, id valueobjects.DiagramID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.diagrams[id]; !ok {
		return pkgerrors.NewNotFound("diagram " + id.String() + " not found")
	}
	delete(r.diagrams, id)
	return nil
}

// DeleteBatch removes several diagrams; missing ids are ignored
func (r *DiagramRepository) DeleteBatch(_ context.Context, ids []valueobjects.DiagramID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		delete(r.diagrams, id)
	}
	return nil
}

// Len returns the number of stored diagrams
func (r *DiagramRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.diagrams)
}

func copyDiagram(d *aggregates.Diagram) *aggregates.Diagram {
	return &aggregates.Diagram{
		ID:          d.ID,
		OwnerID:     d.OwnerID,
		Name:        d.Name,
		Description: d.Description,
		Model:       d.Model.Clone(),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		Version:     d.Version,
	}
}
