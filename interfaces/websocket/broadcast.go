package websocket

import (
	"go.uber.org/zap"

	"dclass/domain/core/aggregates"
	"dclass/pkg/realtime"
)

// Broadcaster pushes changes made outside the realtime channel, such as a
// REST save, to the collaborators of a diagram
type Broadcaster struct {
	hub    *Hub
	logger *zap.Logger
}

// NewBroadcaster creates a new broadcaster
func NewBroadcaster(hub *Hub, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{hub: hub, logger: logger}
}

// BroadcastDiagram sends diagram-updated with the full model to the room,
// skipping the connection with socket id except (may be empty)
func (b *Broadcaster) BroadcastDiagram(diagramID string, model aggregates.Model, except string) {
	if diagramID == "" {
		b.logger.Warn("Cannot broadcast to empty diagram ID")
		return
	}
	err := b.hub.BroadcastToRoom(diagramID, except, realtime.EventDiagramUpdated, realtime.DiagramUpdated{Diagram: model})
	if err != nil {
		b.logger.Error("Failed to broadcast diagram",
			zap.String("diagramID", diagramID),
			zap.Error(err),
		)
		return
	}
	b.logger.Debug("Diagram broadcasted",
		zap.String("diagramID", diagramID),
		zap.Int("nodes", model.NodeCount()),
	)
}

// Participants returns the roster of a diagram's room
func (b *Broadcaster) Participants(diagramID string) []realtime.Participant {
	return b.hub.Participants(diagramID)
}
