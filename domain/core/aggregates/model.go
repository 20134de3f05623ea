package aggregates

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"dclass/domain/core/entities"
	pkgerrors "dclass/pkg/errors"
)

var (
	// ErrEndpointMissing is returned when an edge references a node that is not in the model
	ErrEndpointMissing = errors.New("edge endpoint does not exist")

	// ErrSelfLoopNotAllowed is returned for a self-loop on a non-association relation
	ErrSelfLoopNotAllowed = errors.New("self-loop is only allowed for association relations")

	// ErrInvalidRelation is returned for an unknown relation type
	ErrInvalidRelation = errors.New("unknown relation type")
)

// Model is the node and edge content of a diagram.
// Every operation returns a new Model and leaves the receiver untouched.
type Model struct {
	Nodes []entities.Node `json:"nodes"`
	Edges []entities.Edge `json:"edges"`
}

// NewModel returns an empty model whose collections serialize as []
func NewModel() Model {
	return Model{Nodes: []entities.Node{}, Edges: []entities.Edge{}}
}

// NodeDataPatch is a partial update of NodeData; nil fields are left unchanged
type NodeDataPatch struct {
	Label      *string
	Attributes *[]entities.Attribute
	Methods    *[]entities.Method
	Content    *string
}

// apply merges the patch into d
func (p NodeDataPatch) apply(d entities.NodeData) entities.NodeData {
	if p.Label != nil {
		d.Label = *p.Label
	}
	if p.Content != nil {
		d.Content = *p.Content
	}
	if p.Attributes != nil {
		d.Attributes = entities.EnsureAttributeIDs(append([]entities.Attribute{}, *p.Attributes...))
	}
	if p.Methods != nil {
		d.Methods = entities.EnsureMethodIDs(append([]entities.Method{}, *p.Methods...))
	}
	return d
}

// Clone returns a deep copy of the model
func (m Model) Clone() Model {
	out := Model{
		Nodes: make([]entities.Node, len(m.Nodes)),
		Edges: make([]entities.Edge, len(m.Edges)),
	}
	for i, n := range m.Nodes {
		out.Nodes[i] = n.Clone()
	}
	for i, e := range m.Edges {
		out.Edges[i] = e.Clone()
	}
	return out
}

// NodeCount returns the number of nodes
func (m Model) NodeCount() int { return len(m.Nodes) }

// EdgeCount returns the number of edges
func (m Model) EdgeCount() int { return len(m.Edges) }

// FindNode returns the node with the given id
func (m Model) FindNode(id string) (entities.Node, bool) {
	for _, n := range m.Nodes {
		if n.ID == id {
			return n.Clone(), true
		}
	}
	return entities.Node{}, false
}

// HasNode reports whether the node id exists
func (m Model) HasNode(id string) bool {
	for _, n := range m.Nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}

// FindEdge returns the edge with the given id
func (m Model) FindEdge(id string) (entities.Edge, bool) {
	for _, e := range m.Edges {
		if e.ID == id {
			return e.Clone(), true
		}
	}
	return entities.Edge{}, false
}

// AddNode appends a node of the given kind with default data
func (m Model) AddNode(kind entities.NodeKind) (Model, entities.Node, error) {
	node, err := entities.NewNode(kind)
	if err != nil {
		return m, entities.Node{}, pkgerrors.NewValidation(err.Error())
	}
	next := m.shallow()
	next.Nodes = append(next.Nodes, node)
	return next, node.Clone(), nil
}

// UpdateNode merges patch into the node's current data.
// A missing id is not an error: the node may have been removed by a collaborator.
func (m Model) UpdateNode(id string, patch NodeDataPatch) (Model, bool) {
	for i, n := range m.Nodes {
		if n.ID != id {
			continue
		}
		next := m.shallow()
		updated := n.Clone()
		updated.Data = patch.apply(updated.Data)
		next.Nodes[i] = updated
		return next, true
	}
	return m, false
}

// RemoveNode removes the node and every edge touching it
func (m Model) RemoveNode(id string) (Model, bool) {
	if !m.HasNode(id) {
		return m, false
	}
	next := Model{
		Nodes: make([]entities.Node, 0, len(m.Nodes)-1),
		Edges: make([]entities.Edge, 0, len(m.Edges)),
	}
	for _, n := range m.Nodes {
		if n.ID != id {
			next.Nodes = append(next.Nodes, n)
		}
	}
	for _, e := range m.Edges {
		if !e.Touches(id) {
			next.Edges = append(next.Edges, e)
		}
	}
	return next, true
}

// AddEdge appends an edge between two existing nodes
func (m Model) AddEdge(sourceID, targetID string, rel entities.RelationType, data map[string]any) (Model, entities.Edge, error) {
	if !rel.IsValid() {
		return m, entities.Edge{}, pkgerrors.NewValidationCause(fmt.Sprintf("relation %q", rel), ErrInvalidRelation)
	}
	if !m.HasNode(sourceID) {
		return m, entities.Edge{}, pkgerrors.NewValidationCause(fmt.Sprintf("source node %q", sourceID), ErrEndpointMissing)
	}
	if !m.HasNode(targetID) {
		return m, entities.Edge{}, pkgerrors.NewValidationCause(fmt.Sprintf("target node %q", targetID), ErrEndpointMissing)
	}
	if sourceID == targetID && !rel.AllowsSelfLoop() {
		return m, entities.Edge{}, pkgerrors.NewValidationCause(fmt.Sprintf("relation %q on %q", rel, sourceID), ErrSelfLoopNotAllowed)
	}

	edge := entities.NewEdge(sourceID, targetID, rel, data).Clone()
	next := m.shallow()
	next.Edges = append(next.Edges, edge)
	return next, edge.Clone(), nil
}

// RemoveEdge removes the edge with the given id
func (m Model) RemoveEdge(id string) (Model, bool) {
	for i, e := range m.Edges {
		if e.ID != id {
			continue
		}
		next := m.shallow()
		next.Edges = append(next.Edges[:i:i], next.Edges[i+1:]...)
		return next, true
	}
	return m, false
}

// SetNodes replaces the node collection wholesale. Edges are not touched.
func (m Model) SetNodes(nodes []entities.Node) Model {
	next := m.shallow()
	next.Nodes = make([]entities.Node, len(nodes))
	for i, n := range nodes {
		next.Nodes[i] = n.Clone()
	}
	return next
}

// SetEdges replaces the edge collection wholesale. Edges are not filtered.
func (m Model) SetEdges(edges []entities.Edge) Model {
	next := m.shallow()
	next.Edges = make([]entities.Edge, len(edges))
	for i, e := range edges {
		next.Edges[i] = e.Clone()
	}
	return next
}

// Replace swaps both collections for those of other
func (m Model) Replace(other Model) Model {
	return m.SetNodes(other.Nodes).SetEdges(other.Edges)
}

// DanglingEdges returns edges whose source or target is not a current node
func (m Model) DanglingEdges() []entities.Edge {
	ids := m.nodeIDs()
	var out []entities.Edge
	for _, e := range m.Edges {
		if !ids[e.Source] || !ids[e.Target] {
			out = append(out, e.Clone())
		}
	}
	return out
}

// DropDanglingEdges removes every edge whose source or target is not a
// current node and reports how many were removed
func (m Model) DropDanglingEdges() (Model, int) {
	ids := m.nodeIDs()
	next := m.shallow()
	next.Edges = next.Edges[:0]
	for _, e := range m.Edges {
		if ids[e.Source] && ids[e.Target] {
			next.Edges = append(next.Edges, e)
		}
	}
	return next, len(m.Edges) - len(next.Edges)
}

// Normalize assigns missing member ids and defaults on every class node.
// Edges with an empty or repeated id get a fresh one.
func (m Model) Normalize() Model {
	next := m.Clone()
	for i := range next.Nodes {
		d := &next.Nodes[i].Data
		d.Attributes = entities.EnsureAttributeIDs(d.Attributes)
		d.Methods = entities.EnsureMethodIDs(d.Methods)
	}
	seen := make(map[string]bool, len(next.Edges))
	for i := range next.Edges {
		e := &next.Edges[i]
		if e.ID == "" || seen[e.ID] {
			e.ID = uuid.New().String()
		}
		seen[e.ID] = true
	}
	return next
}

// shallow copies the outer slices so appends and index writes do not alias m
func (m Model) shallow() Model {
	return Model{
		Nodes: append(make([]entities.Node, 0, len(m.Nodes)+1), m.Nodes...),
		Edges: append(make([]entities.Edge, 0, len(m.Edges)+1), m.Edges...),
	}
}

func (m Model) nodeIDs() map[string]bool {
	ids := make(map[string]bool, len(m.Nodes))
	for _, n := range m.Nodes {
		ids[n.ID] = true
	}
	return ids
}
