package services

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"dclass/application/ports"
	"dclass/domain/connection"
	"dclass/domain/core/aggregates"
	"dclass/domain/core/entities"
	"dclass/domain/core/valueobjects"
	pkgerrors "dclass/pkg/errors"
)

var (
	// ErrNoDiagram is returned when an operation needs a loaded diagram
	ErrNoDiagram = errors.New("no diagram is open")

	// ErrNodeNotFound is returned by member editing when the node is gone
	ErrNodeNotFound = errors.New("node not found")

	// ErrMemberNotFound is returned when an attribute or method id is unknown
	ErrMemberNotFound = errors.New("member not found")
)

// SaveStatus is the outcome of the last save
type SaveStatus int

const (
	SaveIdle SaveStatus = iota
	SaveInProgress
	SaveSucceeded
	SaveFailed
)

// String returns the status name
func (s SaveStatus) String() string {
	switch s {
	case SaveInProgress:
		return "saving"
	case SaveSucceeded:
		return "saved"
	case SaveFailed:
		return "failed"
	default:
		return "idle"
	}
}

// StoreSnapshot is an immutable view of the store handed to observers
type StoreSnapshot struct {
	DiagramID  valueobjects.DiagramID
	Model      aggregates.Model
	Connection connection.Session
	Dirty      bool
	SaveStatus SaveStatus
	SaveError  error
	Revision   uint64
}

// Observer receives a snapshot after every state change. Snapshots arrive in
// change order and an observer may call back into the store.
type Observer func(StoreSnapshot)

// DiagramStore owns the diagram being edited. It is the single writer of the
// in-memory model; UI handlers and the realtime client both go through it.
type DiagramStore struct {
	api    ports.DiagramAPI
	logger *zap.Logger
	tracer trace.Tracer

	mu         sync.Mutex
	diagramID  valueobjects.DiagramID
	model      aggregates.Model
	machine    *connection.Machine
	dirty      bool
	revision   uint64
	saveStatus SaveStatus
	saveErr    error

	// snapshots waiting for delivery, in mutation order; guarded by mu
	pending  []StoreSnapshot
	draining bool

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int
}

// NewDiagramStore creates an empty store
func NewDiagramStore(api ports.DiagramAPI, logger *zap.Logger) *DiagramStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiagramStore{
		api:       api,
		logger:    logger,
		tracer:    otel.Tracer("dclass/application/services"),
		model:     aggregates.NewModel(),
		machine:   connection.NewMachine(),
		observers: make(map[int]Observer),
	}
}

// Subscribe registers an observer and returns its cancel func
func (s *DiagramStore) Subscribe(obs Observer) func() {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = obs
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// Open starts an empty editing session for id, discarding the previous one
func (s *DiagramStore) Open(id valueobjects.DiagramID) {
	s.update(func() {
		s.reset()
		s.diagramID = id
	})
}

// Load fetches a diagram and replaces the whole session with it
func (s *DiagramStore) Load(ctx context.Context, id valueobjects.DiagramID) error {
	if s.api == nil {
		return pkgerrors.NewInternal("diagram api not configured", nil)
	}
	ctx, span := s.tracer.Start(ctx, "DiagramStore.Load",
		trace.WithAttributes(attribute.String("diagram.id", id.String())))
	defer span.End()

	diagram, err := s.api.GetDiagram(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return pkgerrors.NewRemote("load diagram", err)
	}

	s.update(func() {
		s.reset()
		s.diagramID = id
		s.model = aggregates.NewModel().Replace(diagram.Model).Normalize()
		s.dropDangling()
	})
	s.logger.Info("Diagram loaded",
		zap.String("diagramID", id.String()),
		zap.Int("nodes", diagram.Model.NodeCount()),
		zap.Int("edges", diagram.Model.EdgeCount()),
	)
	return nil
}

// Clear tears the session down
func (s *DiagramStore) Clear() {
	s.update(s.reset)
}

// DiagramID returns the open diagram id
func (s *DiagramStore) DiagramID() valueobjects.DiagramID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.diagramID
}

// Snapshot returns a copy of the current state
func (s *DiagramStore) Snapshot() StoreSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Nodes returns a copy of the nodes
func (s *DiagramStore) Nodes() []entities.Node {
	return s.Snapshot().Model.Nodes
}

// Edges returns a copy of the edges
func (s *DiagramStore) Edges() []entities.Edge {
	return s.Snapshot().Model.Edges
}

// IsDirty reports unsaved local changes
func (s *DiagramStore) IsDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// AddNode adds a node of the given kind
func (s *DiagramStore) AddNode(kind entities.NodeKind) (entities.Node, error) {
	var node entities.Node
	var err error
	s.mutate(func() bool {
		var next aggregates.Model
		next, node, err = s.model.AddNode(kind)
		if err != nil {
			return false
		}
		s.model = next
		return true
	})
	return node, err
}

// UpdateNode merges patch into the node's current data; false when the node is gone
func (s *DiagramStore) UpdateNode(id string, patch aggregates.NodeDataPatch) bool {
	var ok bool
	s.mutate(func() bool {
		s.model, ok = s.model.UpdateNode(id, patch)
		return ok
	})
	if !ok {
		s.logger.Debug("Update for missing node ignored", zap.String("nodeID", id))
	}
	return ok
}

// RemoveNode removes a node and its edges
func (s *DiagramStore) RemoveNode(id string) bool {
	var ok bool
	s.mutate(func() bool {
		s.model, ok = s.model.RemoveNode(id)
		if ok && s.machine.SelectedNode() == id {
			s.machine.Reset()
		}
		return ok
	})
	return ok
}

// AddEdge connects two existing nodes
func (s *DiagramStore) AddEdge(sourceID, targetID string, rel entities.RelationType) (entities.Edge, error) {
	return s.AddEdgeWithData(sourceID, targetID, rel, nil)
}

// AddEdgeWithData connects two existing nodes carrying relation metadata
func (s *DiagramStore) AddEdgeWithData(sourceID, targetID string, rel entities.RelationType, data map[string]any) (entities.Edge, error) {
	var edge entities.Edge
	var err error
	s.mutate(func() bool {
		edge, err = s.addEdgeLocked(sourceID, targetID, rel, data)
		return err == nil
	})
	return edge, err
}

// RemoveEdge removes an edge
func (s *DiagramStore) RemoveEdge(id string) bool {
	var ok bool
	s.mutate(func() bool {
		s.model, ok = s.model.RemoveEdge(id)
		return ok
	})
	return ok
}

// SetNodes replaces all nodes
func (s *DiagramStore) SetNodes(nodes []entities.Node) {
	s.mutate(func() bool {
		s.model = s.model.SetNodes(nodes)
		return true
	})
}

// SetEdges replaces all edges
func (s *DiagramStore) SetEdges(edges []entities.Edge) {
	s.mutate(func() bool {
		s.model = s.model.SetEdges(edges)
		s.warnDangling()
		return true
	})
}

// ApplyDiagram overwrites nodes and edges with a complete snapshot.
// Local edits made since the snapshot was requested are discarded.
func (s *DiagramStore) ApplyDiagram(m aggregates.Model) {
	s.mutate(func() bool {
		s.model = s.model.Replace(m).Normalize()
		if s.machine.IsConnecting() && !s.model.HasNode(s.machine.SelectedNode()) {
			s.machine.Reset()
		}
		s.dropDangling()
		return true
	})
}

// SaveDiagramToAPI pushes the current model to the persistence API.
// On failure local state is kept and the error is returned.
func (s *DiagramStore) SaveDiagramToAPI(ctx context.Context, id valueobjects.DiagramID) error {
	if s.api == nil {
		return pkgerrors.NewInternal("diagram api not configured", nil)
	}

	s.mu.Lock()
	if id.IsZero() {
		id = s.diagramID
	}
	if id.IsZero() {
		s.mu.Unlock()
		return pkgerrors.NewValidationCause("save", ErrNoDiagram)
	}
	model := s.model.Clone()
	rev := s.revision
	s.saveStatus = SaveInProgress
	s.saveErr = nil
	drain := s.queueSnapshotLocked()
	s.mu.Unlock()
	s.flush(drain)

	ctx, span := s.tracer.Start(ctx, "DiagramStore.SaveDiagramToAPI",
		trace.WithAttributes(
			attribute.String("diagram.id", id.String()),
			attribute.Int("diagram.nodes", model.NodeCount()),
			attribute.Int("diagram.edges", model.EdgeCount()),
		))
	defer span.End()

	err := s.api.SaveDiagram(ctx, id, model)

	s.mu.Lock()
	if err != nil {
		s.saveStatus = SaveFailed
		s.saveErr = err
	} else {
		s.saveStatus = SaveSucceeded
		if s.revision == rev {
			s.dirty = false
		}
	}
	drain = s.queueSnapshotLocked()
	s.mu.Unlock()
	s.flush(drain)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		s.logger.Warn("Diagram save failed",
			zap.String("diagramID", id.String()),
			zap.Error(err),
		)
		return pkgerrors.NewRemote("save diagram", err)
	}

	s.logger.Debug("Diagram saved",
		zap.String("diagramID", id.String()),
		zap.Int("nodes", model.NodeCount()),
		zap.Int("edges", model.EdgeCount()),
	)
	return nil
}

// Connection pass-throughs

// ConnectionMode returns the armed relation type
func (s *DiagramStore) ConnectionMode() entities.RelationType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.ConnectionMode()
}

// IsConnecting reports whether a source node is selected
func (s *DiagramStore) IsConnecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.IsConnecting()
}

// SelectedNodeForConnection returns the selected source node id
func (s *DiagramStore) SelectedNodeForConnection() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.SelectedNode()
}

// SelectRelationshipTool arms a relation type
func (s *DiagramStore) SelectRelationshipTool(rel entities.RelationType) error {
	var err error
	s.update(func() {
		err = s.machine.SelectRelationshipTool(rel)
	})
	return err
}

// StartConnection selects the source node of a relation
func (s *DiagramStore) StartConnection(nodeID string, rel entities.RelationType) error {
	var err error
	s.update(func() {
		if !s.model.HasNode(nodeID) {
			err = pkgerrors.NewValidationCause("start connection", aggregates.ErrEndpointMissing)
			return
		}
		err = s.machine.StartConnection(nodeID, rel)
	})
	return err
}

// ClickNode routes a node click through the connection machine. A click
// that would select a node no longer in the model is rejected.
func (s *DiagramStore) ClickNode(nodeID string) (connection.Outcome, entities.Edge, error) {
	var (
		out  connection.Outcome
		edge entities.Edge
		err  error
	)
	s.mutate(func() bool {
		if s.machine.State() == connection.ToolArmed && !s.model.HasNode(nodeID) {
			out, err = connection.OutcomeIgnored, pkgerrors.NewValidationCause("start connection", aggregates.ErrEndpointMissing)
			return false
		}
		out, edge, err = s.machine.ClickNode(nodeID, func(src, tgt string, rel entities.RelationType) (entities.Edge, error) {
			return s.addEdgeLocked(src, tgt, rel, nil)
		})
		return out == connection.OutcomeEdgeRequested && err == nil
	})
	return out, edge, err
}

// SelectPointerTool disarms the relation tool
func (s *DiagramStore) SelectPointerTool() {
	s.update(s.machine.SelectPointerTool)
}

// ResetConnection cancels any in-progress connection
func (s *DiagramStore) ResetConnection() {
	s.update(s.machine.Cancel)
}

// internals

func (s *DiagramStore) addEdgeLocked(sourceID, targetID string, rel entities.RelationType, data map[string]any) (entities.Edge, error) {
	next, edge, err := s.model.AddEdge(sourceID, targetID, rel, data)
	if err != nil {
		return entities.Edge{}, err
	}
	s.model = next
	return edge, nil
}

func (s *DiagramStore) reset() {
	s.diagramID = ""
	s.model = aggregates.NewModel()
	s.machine.Reset()
	s.dirty = false
	s.revision++
	s.saveStatus = SaveIdle
	s.saveErr = nil
}

func (s *DiagramStore) warnDangling() {
	if dangling := s.model.DanglingEdges(); len(dangling) > 0 {
		s.logger.Warn("Diagram contains edges with missing endpoints",
			zap.String("diagramID", s.diagramID.String()),
			zap.Int("count", len(dangling)),
		)
	}
}

// dropDangling removes edges a full snapshot delivered without their endpoints
func (s *DiagramStore) dropDangling() {
	model, dropped := s.model.DropDanglingEdges()
	if dropped == 0 {
		return
	}
	s.model = model
	s.logger.Warn("Dropped edges with missing endpoints",
		zap.String("diagramID", s.diagramID.String()),
		zap.Int("count", dropped),
	)
}

// mutate runs fn under the lock; when fn reports a change the store is marked dirty
func (s *DiagramStore) mutate(fn func() bool) {
	s.mu.Lock()
	changed := fn()
	if changed {
		s.dirty = true
		s.revision++
	}
	drain := s.queueSnapshotLocked()
	s.mu.Unlock()
	s.flush(drain)
}

// update runs fn under the lock without touching the dirty flag
func (s *DiagramStore) update(fn func()) {
	s.mu.Lock()
	fn()
	drain := s.queueSnapshotLocked()
	s.mu.Unlock()
	s.flush(drain)
}

func (s *DiagramStore) snapshotLocked() StoreSnapshot {
	return StoreSnapshot{
		DiagramID:  s.diagramID,
		Model:      s.model.Clone(),
		Connection: s.machine.Session(),
		Dirty:      s.dirty,
		SaveStatus: s.saveStatus,
		SaveError:  s.saveErr,
		Revision:   s.revision,
	}
}

// queueSnapshotLocked records the current state for observers and reports
// whether the caller must flush the queue. The caller holds s.mu.
func (s *DiagramStore) queueSnapshotLocked() bool {
	s.pending = append(s.pending, s.snapshotLocked())
	if s.draining {
		return false
	}
	s.draining = true
	return true
}

// flush delivers queued snapshots one at a time. Only one goroutine drains,
// so observers see snapshots in the order the changes were made; a change
// made from inside an observer is delivered after that observer returns.
func (s *DiagramStore) flush(drain bool) {
	if !drain {
		return
	}
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		snap := s.pending[0]
		s.pending[0] = StoreSnapshot{}
		s.pending = s.pending[1:]
		s.mu.Unlock()

		s.notify(snap)
	}
}

func (s *DiagramStore) notify(snap StoreSnapshot) {
	s.obsMu.Lock()
	obs := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		obs = append(obs, o)
	}
	s.obsMu.Unlock()

	for _, o := range obs {
		o(snap)
	}
}
