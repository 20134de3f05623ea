package websocket

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"dclass/application/services"
	"dclass/domain/core/aggregates"
	"dclass/domain/core/valueobjects"
	pkgerrors "dclass/pkg/errors"
	"dclass/pkg/observability"
	"dclass/pkg/realtime"
)

// DefaultRequestTimeout bounds one invite or generation request
const DefaultRequestTimeout = 2 * time.Minute

// Dispatcher routes inbound envelopes. Presence is handled inline;
// invites and generation run on their own goroutine and answer the
// requester with the echoed correlation id.
type Dispatcher struct {
	hub        *Hub
	diagrams   *services.DiagramService
	generation *services.GenerationService
	metrics    *observability.Collector
	timeout    time.Duration
	logger     *zap.Logger

	inflight sync.WaitGroup
}

// NewDispatcher creates a dispatcher
func NewDispatcher(
	hub *Hub,
	diagrams *services.DiagramService,
	generation *services.GenerationService,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		hub:        hub,
		diagrams:   diagrams,
		generation: generation,
		metrics:    hub.metrics,
		timeout:    DefaultRequestTimeout,
		logger:     logger,
	}
}

// Dispatch handles one envelope received from c
func (d *Dispatcher) Dispatch(c *Client, env realtime.Envelope) {
	d.metrics.MessagesReceived.WithLabelValues(env.Event).Inc()

	switch env.Event {
	case realtime.EventGetParticipants:
		id, ok := d.diagramID(c, env)
		if !ok {
			return
		}
		if !d.hub.Join(c, id) {
			d.hub.SendRoster(c, env.CorrelationID)
		}

	case realtime.EventHeartbeat:
		if id, ok := d.diagramID(c, env); ok {
			d.hub.Touch(c, id)
		}

	case realtime.EventGenerateInvite:
		id, ok := d.diagramID(c, env)
		if !ok {
			return
		}
		d.async(c, func(ctx context.Context) { d.generateInvite(ctx, c, env.CorrelationID, id) })

	case realtime.EventGenerateDiagram:
		var req realtime.GenerateDiagramRequest
		if !d.decode(c, env, &req) {
			return
		}
		if req.DiagramID == "" {
			req.DiagramID = c.diagramID
		}
		d.async(c, func(ctx context.Context) { d.generateDiagram(ctx, c, env.CorrelationID, req) })

	case realtime.EventGenerateAgent:
		var req realtime.GenerateAgentRequest
		if !d.decode(c, env, &req) {
			return
		}
		d.async(c, func(ctx context.Context) { d.converse(ctx, c, env.CorrelationID, req) })

	case realtime.EventProcessDiagramImage:
		var req realtime.ProcessDiagramImage
		if !d.decode(c, env, &req) {
			return
		}
		if req.DiagramID == "" {
			req.DiagramID = c.diagramID
		}
		d.async(c, func(ctx context.Context) { d.processImage(ctx, c, env.CorrelationID, req) })

	default:
		d.reject(c, env.CorrelationID, "unsupported event: "+env.Event)
	}
}

// Wait blocks until every in-flight request has finished
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

func (d *Dispatcher) async(c *Client, fn func(ctx context.Context)) {
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		ctx, cancel := context.WithTimeout(c.ctx, d.timeout)
		defer cancel()
		fn(ctx)
	}()
}

func (d *Dispatcher) generateInvite(ctx context.Context, c *Client, corrID, diagramID string) {
	token, err := d.diagrams.IssueInvite(ctx, valueobjects.DiagramID(diagramID))
	if err != nil {
		d.logger.Warn("Invite generation failed", zap.String("diagramID", diagramID), zap.Error(err))
		d.reject(c, corrID, errorMessage(err))
		return
	}
	d.hub.SendTo(c, realtime.EventInviteCreated, corrID, realtime.InviteCreated{Token: token})
}

func (d *Dispatcher) generateDiagram(ctx context.Context, c *Client, corrID string, req realtime.GenerateDiagramRequest) {
	start := time.Now()
	model, err := d.generation.GenerateFromPrompt(ctx, valueobjects.DiagramID(req.DiagramID), req.Prompt)
	d.metrics.RecordGeneration("prompt", time.Since(start).Seconds(), err)
	if err != nil {
		d.hub.SendTo(c, realtime.EventDiagramGenerated, corrID, realtime.DiagramGenerated{
			Success: false,
			Error:   errorMessage(err),
		})
		return
	}
	d.hub.SendTo(c, realtime.EventDiagramGenerated, corrID, realtime.DiagramGenerated{
		Success: true,
		Diagram: &model,
		Message: "Diagrama generado",
	})
	d.shareResult(c, req.DiagramID, model)
}

func (d *Dispatcher) converse(ctx context.Context, c *Client, corrID string, req realtime.GenerateAgentRequest) {
	start := time.Now()
	text, err := d.generation.Converse(ctx, req.Prompt)
	d.metrics.RecordGeneration("conversation", time.Since(start).Seconds(), err)
	if err != nil {
		d.reject(c, corrID, errorMessage(err))
		return
	}
	d.hub.SendTo(c, realtime.EventAgentGenerated, corrID, realtime.AgentGenerated{Text: text})
}

func (d *Dispatcher) processImage(ctx context.Context, c *Client, corrID string, req realtime.ProcessDiagramImage) {
	start := time.Now()
	model, err := d.generation.GenerateFromImage(ctx, valueobjects.DiagramID(req.DiagramID), req.Image, req.FileName)
	d.metrics.RecordGeneration("image", time.Since(start).Seconds(), err)
	if err != nil {
		d.hub.SendTo(c, realtime.EventDiagramImageProcessed, corrID, realtime.DiagramImageProcessed{
			Success: false,
			Error:   errorMessage(err),
		})
		return
	}
	d.hub.SendTo(c, realtime.EventDiagramImageProcessed, corrID, realtime.DiagramImageProcessed{
		Success: true,
		Diagram: &model,
	})
	d.shareResult(c, req.DiagramID, model)
}

// shareResult pushes a stored generation result to the rest of the room
func (d *Dispatcher) shareResult(c *Client, diagramID string, model aggregates.Model) {
	if diagramID == "" {
		return
	}
	err := d.hub.BroadcastToRoom(diagramID, c.id, realtime.EventDiagramUpdated, realtime.DiagramUpdated{Diagram: model})
	if err != nil {
		d.logger.Warn("Failed to share generated diagram", zap.String("diagramID", diagramID), zap.Error(err))
	}
}

// diagramID reads the diagram a presence or invite request refers to,
// falling back to the one declared on upgrade
func (d *Dispatcher) diagramID(c *Client, env realtime.Envelope) (string, bool) {
	var ref realtime.DiagramRef
	if len(env.Data) > 0 {
		if err := env.Decode(&ref); err != nil {
			d.reject(c, env.CorrelationID, "invalid "+env.Event+" payload")
			return "", false
		}
	}
	id := strings.TrimSpace(ref.DiagramID)
	if id == "" {
		id = c.diagramID
	}
	if id == "" {
		d.reject(c, env.CorrelationID, "diagramId is required")
		return "", false
	}
	return id, true
}

func (d *Dispatcher) decode(c *Client, env realtime.Envelope, v any) bool {
	if err := env.Decode(v); err != nil {
		d.reject(c, env.CorrelationID, "invalid "+env.Event+" payload")
		return false
	}
	return true
}

func (d *Dispatcher) reject(c *Client, corrID, message string) {
	d.hub.SendTo(c, realtime.EventError, corrID, realtime.ErrorPayload{Error: message})
}

// errorMessage is the text shown to the requester; internal causes stay in the log
func errorMessage(err error) string {
	var appErr *pkgerrors.AppError
	if errors.As(err, &appErr) && appErr.Type != pkgerrors.ErrorTypeInternal {
		return appErr.Message
	}
	return "internal error"
}
