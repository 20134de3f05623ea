// Package connection holds the state machine that turns node clicks into a
// typed relationship edge.
//
//	Idle ──selectRelationshipTool(T)──▶ ToolArmed(T)
//	ToolArmed(T) ──clickNode(n) / startConnection(n, T)──▶ SourceSelected(T, n)
//	SourceSelected(T, s) ──clickNode(n): addEdge(s, n, T)──▶ Idle
//	any ──selectPointerTool / Cancel──▶ Idle
//
// startConnection is accepted from any state so a node's context menu can
// begin a relation without arming the toolbar first.
package connection

import (
	"fmt"

	"dclass/domain/core/entities"
)

// State is the phase of the connection interaction
type State int

const (
	Idle State = iota
	ToolArmed
	SourceSelected
)

// String returns the state name
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ToolArmed:
		return "tool-armed"
	case SourceSelected:
		return "source-selected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is a snapshot of the in-progress connection.
// RelationType and SourceNodeID are empty when unset.
type Session struct {
	RelationType entities.RelationType `json:"relationType,omitempty"`
	SourceNodeID string                `json:"sourceNodeId,omitempty"`
	IsConnecting bool                  `json:"isConnecting"`
}

// EdgeAdder creates an edge in the owning model
type EdgeAdder func(sourceID, targetID string, rel entities.RelationType) (entities.Edge, error)

// Outcome describes what a click did
type Outcome int

const (
	// OutcomeIgnored means the click had no connection meaning
	OutcomeIgnored Outcome = iota
	// OutcomeSourceSelected means the click picked the first endpoint
	OutcomeSourceSelected
	// OutcomeEdgeRequested means the click named the second endpoint and addEdge was invoked
	OutcomeEdgeRequested
)

// Machine is the connection-mode state machine.
// It is not safe for concurrent use; the owning store serializes access.
type Machine struct {
	state    State
	relation entities.RelationType
	source   string
}

// NewMachine returns a machine in Idle
func NewMachine() *Machine {
	return &Machine{}
}

// State returns the current state
func (m *Machine) State() State {
	return m.state
}

// Session returns a snapshot of the connection session
func (m *Machine) Session() Session {
	return Session{
		RelationType: m.relation,
		SourceNodeID: m.source,
		IsConnecting: m.state == SourceSelected,
	}
}

// ConnectionMode returns the armed relation type, empty in Idle
func (m *Machine) ConnectionMode() entities.RelationType {
	return m.relation
}

// IsConnecting reports whether a source node has been chosen
func (m *Machine) IsConnecting() bool {
	return m.state == SourceSelected
}

// SelectedNode returns the chosen source node id, empty when none
func (m *Machine) SelectedNode() string {
	return m.source
}

// SelectRelationshipTool arms the given relation type, discarding any chosen source
func (m *Machine) SelectRelationshipTool(rel entities.RelationType) error {
	if !rel.IsValid() {
		return fmt.Errorf("unknown relation type %q", rel)
	}
	m.state = ToolArmed
	m.relation = rel
	m.source = ""
	return nil
}

// StartConnection selects nodeID as the source of a relation of type rel
func (m *Machine) StartConnection(nodeID string, rel entities.RelationType) error {
	if !rel.IsValid() {
		return fmt.Errorf("unknown relation type %q", rel)
	}
	if nodeID == "" {
		return fmt.Errorf("source node id is required")
	}
	m.state = SourceSelected
	m.relation = rel
	m.source = nodeID
	return nil
}

// ClickNode routes a node click. In ToolArmed it selects the source, in
// SourceSelected it calls add and returns to Idle whether or not add succeeded.
// Self-loops are passed through; add decides whether they are valid.
func (m *Machine) ClickNode(nodeID string, add EdgeAdder) (Outcome, entities.Edge, error) {
	switch m.state {
	case ToolArmed:
		if err := m.StartConnection(nodeID, m.relation); err != nil {
			return OutcomeIgnored, entities.Edge{}, err
		}
		return OutcomeSourceSelected, entities.Edge{}, nil
	case SourceSelected:
		source, rel := m.source, m.relation
		m.Reset()
		edge, err := add(source, nodeID, rel)
		return OutcomeEdgeRequested, edge, err
	default:
		return OutcomeIgnored, entities.Edge{}, nil
	}
}

// SelectPointerTool returns to Idle without side effects
func (m *Machine) SelectPointerTool() {
	m.Reset()
}

// Cancel is the escape action; it returns to Idle without side effects
func (m *Machine) Cancel() {
	m.Reset()
}

// Reset returns the machine to Idle
func (m *Machine) Reset() {
	m.state = Idle
	m.relation = ""
	m.source = ""
}
