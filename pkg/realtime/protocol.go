// Package realtime implements the collaboration channel between an editor and
// the collaboration server: the wire protocol, the intent classifier and the
// sync client that keeps a DiagramStore in step with the room.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"dclass/domain/core/aggregates"
)

// Event names on the wire
const (
	EventGetParticipants       = "get-participants"
	EventParticipantsUpdated   = "participants-updated"
	EventHeartbeat             = "heartbeat"
	EventGenerateInvite        = "generate-invite"
	EventInviteCreated         = "invite-created"
	EventGenerateDiagram       = "generate-diagram"
	EventGenerateAgent         = "generate-agent"
	EventDiagramGenerated      = "diagram-generated"
	EventAgentGenerated        = "agent-generated"
	EventProcessDiagramImage   = "process-diagram-image"
	EventDiagramImageProcessed = "diagram-image-processed"
	EventDiagramUpdated        = "diagram-updated"
	EventError                 = "error"
)

// HeartbeatInterval is how often a connected client signals presence
const HeartbeatInterval = 30 * time.Second

// responseEvents maps each request event to its single terminal response
var responseEvents = map[string]string{
	EventGenerateInvite:      EventInviteCreated,
	EventGenerateDiagram:     EventDiagramGenerated,
	EventGenerateAgent:       EventAgentGenerated,
	EventProcessDiagramImage: EventDiagramImageProcessed,
}

// ResponseEvent returns the terminal response event for a request event
func ResponseEvent(request string) (string, bool) {
	ev, ok := responseEvents[request]
	return ev, ok
}

// IsResponseEvent reports whether ev terminates a request
func IsResponseEvent(ev string) bool {
	for _, r := range responseEvents {
		if r == ev {
			return true
		}
	}
	return false
}

// Envelope is one message on the channel
type Envelope struct {
	Event         string          `json:"event"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes payload into an envelope
func NewEnvelope(event, correlationID string, payload any) (Envelope, error) {
	env := Envelope{Event: event, CorrelationID: correlationID}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("encode %s: %w", event, err)
		}
		env.Data = data
	}
	return env, nil
}

// Decode unmarshals the envelope data into v
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: empty payload", e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", e.Event, err)
	}
	return nil
}

// DiagramRef addresses a diagram (get-participants, heartbeat, generate-invite)
type DiagramRef struct {
	DiagramID string `json:"diagramId"`
}

// ParticipantsUpdated carries the full room roster
type ParticipantsUpdated struct {
	Participants []Participant `json:"participants"`
}

// InviteCreated carries a freshly issued invitation token
type InviteCreated struct {
	Token string `json:"token"`
}

// GenerateDiagramRequest asks for a diagram built from a prompt
type GenerateDiagramRequest struct {
	Prompt    string `json:"prompt"`
	DiagramID string `json:"diagramId"`
}

// GenerateAgentRequest asks for a conversational reply
type GenerateAgentRequest struct {
	Prompt string `json:"prompt"`
}

// DiagramGenerated is the result of generate-diagram
type DiagramGenerated struct {
	Success bool              `json:"success"`
	Diagram *aggregates.Model `json:"diagram,omitempty"`
	Message string            `json:"message,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// AgentGenerated is the result of generate-agent
type AgentGenerated struct {
	Text string `json:"text"`
}

// ProcessDiagramImage asks for a diagram read from an image
type ProcessDiagramImage struct {
	Image     string `json:"image"`
	DiagramID string `json:"diagramId"`
	FileName  string `json:"fileName"`
}

// DiagramImageProcessed is the result of process-diagram-image
type DiagramImageProcessed struct {
	Success bool              `json:"success"`
	Diagram *aggregates.Model `json:"diagram,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// DiagramUpdated pushes a full replacement made by another collaborator
type DiagramUpdated struct {
	Diagram aggregates.Model `json:"diagram"`
}

// ErrorPayload reports a rejected request
type ErrorPayload struct {
	Error string `json:"error"`
}
