package realtime

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"

	"dclass/domain/core/aggregates"
	pkgerrors "dclass/pkg/errors"
)

var (
	// ErrNotConnected is returned when a request is made while the channel is down
	ErrNotConnected = errors.New("realtime: not connected")
	// ErrDisconnected fails requests still pending when the channel drops
	ErrDisconnected = errors.New("realtime: connection lost")
	// ErrSuperseded fails a request replaced by a newer one of the same kind
	ErrSuperseded = errors.New("realtime: request superseded")
	// ErrUnsupportedImage rejects files that are not jpg or png
	ErrUnsupportedImage = errors.New("realtime: unsupported image type")
)

// DefaultRequestTimeout bounds how long a request waits for its terminal response
const DefaultRequestTimeout = 2 * time.Minute

var imageMimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// DiagramApplier receives full diagram replacements
type DiagramApplier interface {
	ApplyDiagram(model aggregates.Model)
}

// Config holds sync client settings
type Config struct {
	Identity          Identity
	HeartbeatInterval time.Duration
	RequestTimeout    time.Duration
}

// ChatReply is the outcome of SendChat
type ChatReply struct {
	Intent  Intent
	Text    string
	Diagram *aggregates.Model
}

// Client keeps one persistent channel to the collaboration server open,
// tracks presence and turns request/response pairs into blocking calls.
type Client struct {
	dialer     Dialer
	store      DiagramApplier
	cfg        Config
	logger     *zap.Logger
	newBackOff func() backoff.BackOff

	mu           sync.Mutex
	conn         Conn
	ready        chan struct{}
	participants []Participant
	pending      map[string]*pendingRequest
	seq          uint64
	generating   int

	obsMu     sync.Mutex
	observers map[int]func([]Participant)
	nextObs   int
}

type pendingRequest struct {
	id       string
	response string
	seq      uint64
	done     chan requestResult
}

type requestResult struct {
	env Envelope
	err error
}

// NewClient creates a sync client; store may be nil when no diagram is open
func NewClient(dialer Dialer, store DiagramApplier, cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = HeartbeatInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &Client{
		dialer: dialer,
		store:  store,
		cfg:    cfg,
		logger: logger.With(zap.String("diagramID", cfg.Identity.DiagramID)),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxInterval = 30 * time.Second
			return b
		},
		ready:     make(chan struct{}),
		pending:   make(map[string]*pendingRequest),
		observers: make(map[int]func([]Participant)),
	}
}

// DiagramID returns the diagram this client is attached to
func (c *Client) DiagramID() string {
	return c.cfg.Identity.DiagramID
}

// Run dials the server and keeps the channel open until ctx is cancelled,
// reconnecting with exponential backoff after every failure.
func (c *Client) Run(ctx context.Context) error {
	bo := c.newBackOff()
	for {
		conn, err := c.dialer.Dial(ctx, c.cfg.Identity)
		if err == nil {
			bo.Reset()
			c.serve(ctx, conn)
		} else {
			c.logger.Warn("Failed to connect to collaboration server", zap.Error(err))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return pkgerrors.NewTransport("giving up on collaboration server", err)
		}
		c.logger.Debug("Reconnecting", zap.Duration("in", wait))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// WaitConnected blocks until the channel is up or ctx ends
func (c *Client) WaitConnected(ctx context.Context) error {
	c.mu.Lock()
	ready := c.ready
	c.mu.Unlock()
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connected reports whether the channel is currently up
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) serve(ctx context.Context, conn Conn) {
	c.attach(conn)
	done := make(chan struct{})
	defer c.detach(conn)
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	// the roster is re-requested on every (re)connect
	if err := c.emit(EventGetParticipants, DiagramRef{DiagramID: c.DiagramID()}); err != nil {
		c.logger.Warn("Failed to request participants", zap.Error(err))
	}
	go c.heartbeat(conn, done)

	for {
		env, err := conn.ReadEnvelope()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("Collaboration channel closed", zap.Error(err))
			}
			conn.Close()
			return
		}
		c.dispatch(env)
	}
}

func (c *Client) heartbeat(conn Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			env, _ := NewEnvelope(EventHeartbeat, "", DiagramRef{DiagramID: c.DiagramID()})
			if err := conn.WriteEnvelope(env); err != nil {
				c.logger.Debug("Heartbeat failed", zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) attach(conn Conn) {
	c.mu.Lock()
	c.conn = conn
	close(c.ready)
	c.mu.Unlock()
	c.logger.Info("Connected to collaboration server")
}

// detach clears presence state and fails every pending request
func (c *Client) detach(conn Conn) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.ready = make(chan struct{})
	c.participants = nil
	pending := c.pending
	c.pending = make(map[string]*pendingRequest)
	c.mu.Unlock()

	for _, p := range pending {
		p.done <- requestResult{err: pkgerrors.NewTransport("request interrupted", ErrDisconnected)}
	}
	c.notify(nil)
	c.logger.Info("Disconnected from collaboration server", zap.Int("failedRequests", len(pending)))
}

func (c *Client) dispatch(env Envelope) {
	switch env.Event {
	case EventParticipantsUpdated:
		var payload ParticipantsUpdated
		if err := env.Decode(&payload); err != nil {
			c.logger.Warn("Malformed roster", zap.Error(err))
			return
		}
		roster := append([]Participant(nil), payload.Participants...)
		c.mu.Lock()
		c.participants = roster
		c.mu.Unlock()
		c.notify(roster)

	case EventDiagramUpdated:
		var payload DiagramUpdated
		if err := env.Decode(&payload); err != nil {
			c.logger.Warn("Malformed diagram update", zap.Error(err))
			return
		}
		if c.store != nil {
			c.store.ApplyDiagram(payload.Diagram)
		}

	case EventError:
		var payload ErrorPayload
		_ = env.Decode(&payload)
		p := c.take(env.CorrelationID, "")
		if p == nil {
			c.logger.Warn("Server reported an error", zap.String("error", payload.Error))
			return
		}
		p.done <- requestResult{err: pkgerrors.NewRemote(payload.Error, nil)}

	default:
		if !IsResponseEvent(env.Event) {
			c.logger.Debug("Ignoring unknown event", zap.String("event", env.Event))
			return
		}
		p := c.take(env.CorrelationID, env.Event)
		if p == nil {
			c.logger.Debug("Dropping stale response",
				zap.String("event", env.Event),
				zap.String("correlationID", env.CorrelationID),
			)
			return
		}
		p.done <- requestResult{env: env}
	}
}

// take removes and returns the pending request a response belongs to.
// Responses without a correlation id go to the newest request awaiting that event.
func (c *Client) take(correlationID, event string) *pendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if correlationID != "" {
		p, ok := c.pending[correlationID]
		if !ok {
			return nil
		}
		delete(c.pending, correlationID)
		return p
	}
	if event == "" {
		return nil
	}
	var latest *pendingRequest
	for _, p := range c.pending {
		if p.response == event && (latest == nil || p.seq > latest.seq) {
			latest = p
		}
	}
	if latest != nil {
		delete(c.pending, latest.id)
	}
	return latest
}

func (c *Client) emit(event string, payload any) error {
	env, err := NewEnvelope(event, "", payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return pkgerrors.NewTransport(event, ErrNotConnected)
	}
	if err := conn.WriteEnvelope(env); err != nil {
		return pkgerrors.NewTransport("send "+event, err)
	}
	return nil
}

// send registers a pending request and writes it
func (c *Client) send(event string, payload any) (*pendingRequest, error) {
	response, ok := ResponseEvent(event)
	if !ok {
		return nil, fmt.Errorf("%s has no response event", event)
	}
	id, err := gonanoid.New()
	if err != nil {
		return nil, pkgerrors.NewInternal("correlation id", err)
	}
	env, err := NewEnvelope(event, id, payload)
	if err != nil {
		return nil, pkgerrors.NewInternal("encode request", err)
	}

	p := &pendingRequest{id: id, response: response, done: make(chan requestResult, 1)}
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, pkgerrors.NewTransport(event, ErrNotConnected)
	}
	c.seq++
	p.seq = c.seq
	c.pending[id] = p
	c.mu.Unlock()

	if err := conn.WriteEnvelope(env); err != nil {
		c.take(id, "")
		return nil, pkgerrors.NewTransport("send "+event, err)
	}
	return p, nil
}

func (c *Client) await(ctx context.Context, p *pendingRequest) (Envelope, error) {
	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()
	select {
	case res := <-p.done:
		return res.env, res.err
	case <-ctx.Done():
		c.take(p.id, "")
		return Envelope{}, ctx.Err()
	case <-timer.C:
		c.take(p.id, "")
		return Envelope{}, pkgerrors.NewTransport("no response to request", context.DeadlineExceeded)
	}
}

// cancel fails a pending request with err; a request already answered is left alone
func (c *Client) cancel(id string, err error) {
	if p := c.take(id, ""); p != nil {
		p.done <- requestResult{err: err}
	}
}

func (c *Client) request(ctx context.Context, event string, payload any) (Envelope, error) {
	p, err := c.send(event, payload)
	if err != nil {
		return Envelope{}, err
	}
	return c.await(ctx, p)
}

// PendingRequests returns the number of requests awaiting a response
func (c *Client) PendingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Participants returns the current room roster
func (c *Client) Participants() []Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Participant(nil), c.participants...)
}

// OnParticipants registers fn for roster changes; the returned func removes it
func (c *Client) OnParticipants(fn func([]Participant)) func() {
	c.obsMu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.obsMu.Unlock()
	return func() {
		c.obsMu.Lock()
		delete(c.observers, id)
		c.obsMu.Unlock()
	}
}

func (c *Client) notify(roster []Participant) {
	c.obsMu.Lock()
	fns := make([]func([]Participant), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.obsMu.Unlock()
	for _, fn := range fns {
		fn(roster)
	}
}

// Generating returns the number of prompt and image generations in flight
func (c *Client) Generating() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generating
}

func (c *Client) trackGeneration() func() {
	c.mu.Lock()
	c.generating++
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		c.generating--
		c.mu.Unlock()
	}
}

// SendChat routes a chat message: generation requests for the open diagram
// replace it on success, anything else gets a conversational reply.
func (c *Client) SendChat(ctx context.Context, text string) (ChatReply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatReply{}, pkgerrors.NewValidation("message is required")
	}

	if ClassifyIntent(text) == IntentGenerate && c.DiagramID() != "" {
		return c.generateDiagram(ctx, text)
	}

	env, err := c.request(ctx, EventGenerateAgent, GenerateAgentRequest{Prompt: text})
	if err != nil {
		return ChatReply{}, err
	}
	var reply AgentGenerated
	if err := env.Decode(&reply); err != nil {
		return ChatReply{}, pkgerrors.NewRemote("malformed agent reply", err)
	}
	return ChatReply{Intent: IntentConverse, Text: reply.Text}, nil
}

func (c *Client) generateDiagram(ctx context.Context, prompt string) (ChatReply, error) {
	defer c.trackGeneration()()

	env, err := c.request(ctx, EventGenerateDiagram, GenerateDiagramRequest{Prompt: prompt, DiagramID: c.DiagramID()})
	if err != nil {
		return ChatReply{}, err
	}
	var result DiagramGenerated
	if err := env.Decode(&result); err != nil {
		return ChatReply{}, pkgerrors.NewRemote("malformed generation result", err)
	}
	if !result.Success {
		return ChatReply{}, generationFailure(result.Error, result.Message)
	}

	reply := ChatReply{Intent: IntentGenerate, Text: result.Message}
	if result.Diagram != nil {
		c.apply(*result.Diagram)
		reply.Diagram = result.Diagram
	}
	if reply.Text == "" {
		reply.Text = "Diagrama generado"
	}
	return reply, nil
}

// ProcessImageFile reads a jpg or png from disk and sends it for diagram extraction
func (c *Client) ProcessImageFile(ctx context.Context, path string) (aggregates.Model, error) {
	if _, err := imageMime(path); err != nil {
		return aggregates.Model{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return aggregates.Model{}, pkgerrors.NewValidationCause("cannot read image", err)
	}
	return c.ProcessImage(ctx, filepath.Base(path), data)
}

// ProcessImage sends image bytes as a data URL; a successful result replaces
// the open diagram, a failure leaves it untouched.
func (c *Client) ProcessImage(ctx context.Context, fileName string, data []byte) (aggregates.Model, error) {
	mime, err := imageMime(fileName)
	if err != nil {
		return aggregates.Model{}, err
	}
	if len(data) == 0 {
		return aggregates.Model{}, pkgerrors.NewValidation("image is empty")
	}
	defer c.trackGeneration()()

	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
	env, err := c.request(ctx, EventProcessDiagramImage, ProcessDiagramImage{
		Image:     dataURL,
		DiagramID: c.DiagramID(),
		FileName:  fileName,
	})
	if err != nil {
		return aggregates.Model{}, err
	}
	var result DiagramImageProcessed
	if err := env.Decode(&result); err != nil {
		return aggregates.Model{}, pkgerrors.NewRemote("malformed image result", err)
	}
	if !result.Success || result.Diagram == nil {
		return aggregates.Model{}, generationFailure(result.Error, "")
	}
	c.apply(*result.Diagram)
	return *result.Diagram, nil
}

func (c *Client) apply(model aggregates.Model) {
	if c.store == nil {
		return
	}
	c.store.ApplyDiagram(model)
}

func imageMime(name string) (string, error) {
	mime, ok := imageMimeTypes[strings.ToLower(filepath.Ext(name))]
	if !ok {
		return "", pkgerrors.NewValidationCause("only .jpg, .jpeg and .png images are accepted", ErrUnsupportedImage)
	}
	return mime, nil
}

func generationFailure(reason, fallback string) error {
	if reason == "" {
		reason = fallback
	}
	if reason == "" {
		reason = "generation failed"
	}
	return pkgerrors.NewGeneration(reason)
}
