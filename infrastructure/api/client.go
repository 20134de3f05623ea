// Package api adapts the dclass REST API to the editor's DiagramAPI,
// InvitationAPI and ExportAPI ports.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"dclass/application/ports"
	"dclass/domain/core/aggregates"
	"dclass/domain/core/valueobjects"
	pkgerrors "dclass/pkg/errors"
)

const apiPrefix = "api/v1/"

// BreakerConfig controls when the client stops calling a failing API
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the breaker settings used by NewClient
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithExportBaseURL sends export requests to a separate service
func WithExportBaseURL(raw string) Option {
	return func(c *Client) { c.exportRaw = raw }
}

// WithBreaker overrides the circuit breaker settings
func WithBreaker(cfg BreakerConfig) Option {
	return func(c *Client) { c.breakerCfg = cfg }
}

// Client calls the dclass REST API
type Client struct {
	base       *url.URL
	exportBase *url.URL
	exportRaw  string
	http       *http.Client
	breaker    *gobreaker.CircuitBreaker
	breakerCfg BreakerConfig
	tracer     trace.Tracer
	logger     *zap.Logger
}

var (
	_ ports.DiagramAPI    = (*Client)(nil)
	_ ports.InvitationAPI = (*Client)(nil)
	_ ports.ExportAPI     = (*Client)(nil)
)

// NewClient creates a client for the API rooted at baseURL
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	base, err := parseBase(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		base:       base,
		http:       &http.Client{Timeout: 2 * time.Minute},
		breakerCfg: DefaultBreakerConfig(),
		tracer:     otel.Tracer("dclass/infrastructure/api"),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.exportBase = c.base.JoinPath(apiPrefix)
	if c.exportRaw != "" {
		if c.exportBase, err = parseBase(c.exportRaw); err != nil {
			return nil, err
		}
	}

	cfg := c.breakerCfg
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "dclass-api",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// client errors say nothing about the API's health
		IsSuccessful: func(err error) bool {
			return err == nil || pkgerrors.IsValidation(err) || pkgerrors.IsNotFound(err) || pkgerrors.IsConflict(err)
		},
	})
	return c, nil
}

func parseBase(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, pkgerrors.NewValidation(fmt.Sprintf("invalid API url %q", raw))
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}

// LoadDiagramsByOwner lists the diagrams owned by a user
func (c *Client) LoadDiagramsByOwner(ctx context.Context, ownerID string) ([]*aggregates.Diagram, error) {
	var out struct {
		Diagrams []*aggregates.Diagram `json:"diagrams"`
	}
	q := url.Values{"ownerId": {ownerID}}
	if err := c.doJSON(ctx, "ListDiagrams", http.MethodGet, c.apiURL(q, "diagrams"), nil, &out); err != nil {
		return nil, err
	}
	return out.Diagrams, nil
}

// GetDiagram loads one diagram with its model
func (c *Client) GetDiagram(ctx context.Context, id valueobjects.DiagramID) (*aggregates.Diagram, error) {
	var d aggregates.Diagram
	if err := c.doJSON(ctx, "GetDiagram", http.MethodGet, c.apiURL(nil, "diagrams", id.String()), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateDiagram creates a diagram
func (c *Client) CreateDiagram(ctx context.Context, req ports.CreateDiagramRequest) (*aggregates.Diagram, error) {
	var d aggregates.Diagram
	if err := c.doJSON(ctx, "CreateDiagram", http.MethodPost, c.apiURL(nil, "diagrams"), req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// UpdateDiagram changes name and description
func (c *Client) UpdateDiagram(ctx context.Context, id valueobjects.DiagramID, req ports.UpdateDiagramRequest) (*aggregates.Diagram, error) {
	var d aggregates.Diagram
	if err := c.doJSON(ctx, "UpdateDiagram", http.MethodPatch, c.apiURL(nil, "diagrams", id.String()), req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// DeleteDiagram removes a diagram
func (c *Client) DeleteDiagram(ctx context.Context, id valueobjects.DiagramID) error {
	return c.doJSON(ctx, "DeleteDiagram", http.MethodDelete, c.apiURL(nil, "diagrams", id.String()), nil, nil)
}

// BulkDeleteDiagrams removes several diagrams
func (c *Client) BulkDeleteDiagrams(ctx context.Context, ids []valueobjects.DiagramID) error {
	body := struct {
		IDs []valueobjects.DiagramID `json:"ids"`
	}{IDs: ids}
	return c.doJSON(ctx, "BulkDeleteDiagrams", http.MethodPost, c.apiURL(nil, "diagrams", "bulk-delete"), body, nil)
}

// SaveDiagram overwrites the stored model
func (c *Client) SaveDiagram(ctx context.Context, id valueobjects.DiagramID, model aggregates.Model) error {
	return c.doJSON(ctx, "SaveDiagram", http.MethodPut, c.apiURL(nil, "diagrams", id.String(), "model"), model, nil)
}

// ResolveInvitationToken exchanges a token for the diagram it grants access to
func (c *Client) ResolveInvitationToken(ctx context.Context, token string) (*ports.InvitationTarget, error) {
	var target ports.InvitationTarget
	if err := c.doJSON(ctx, "ResolveInvitation", http.MethodGet, c.apiURL(nil, "invitations", token), nil, &target); err != nil {
		return nil, err
	}
	return &target, nil
}

// Export streams a generated artifact; the caller closes the reader
func (c *Client) Export(ctx context.Context, kind ports.ExportKind, id valueobjects.DiagramID) (io.ReadCloser, error) {
	target := c.exportBase.JoinPath(kind.Path(id.String())).String()
	resp, span, err := c.do(ctx, "Export", http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	span.End()
	return resp.Body, nil
}

func (c *Client) apiURL(q url.Values, segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u := c.base.JoinPath(apiPrefix + strings.Join(escaped, "/"))
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// doJSON sends body as JSON and decodes a JSON response into out when set
func (c *Client) doJSON(ctx context.Context, op, method, target string, body, out any) error {
	resp, span, err := c.do(ctx, op, method, target, body)
	if err != nil {
		return err
	}
	defer span.End()
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		span.RecordError(err)
		return pkgerrors.NewRemote(op+": malformed response", err)
	}
	return nil
}

// do runs one request through the breaker. On success the caller owns the
// response body and must end the span.
func (c *Client) do(ctx context.Context, op, method, target string, body any) (*http.Response, trace.Span, error) {
	ctx, span := c.tracer.Start(ctx, "api."+op, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.url", target),
	))

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			span.End()
			return nil, nil, pkgerrors.NewInternal("encode request", err)
		}
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.roundTrip(ctx, method, target, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = pkgerrors.NewRemote("API temporarily unavailable", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		c.logger.Debug("API request failed", zap.String("op", op), zap.Error(err))
		return nil, nil, err
	}
	resp := res.(*http.Response)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp, span, nil
}

func (c *Client) roundTrip(ctx context.Context, method, target string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, pkgerrors.NewInternal("build request", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, pkgerrors.NewRemote(method+" "+req.URL.Path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, statusError(resp)
}

// statusError maps an API error response onto the AppError taxonomy
func statusError(resp *http.Response) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil {
		if body.Error != "" {
			msg = body.Error
		} else if body.Message != "" {
			msg = body.Message
		}
	}
	if msg == "" {
		msg = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return pkgerrors.NewValidation(msg)
	case http.StatusNotFound:
		return pkgerrors.NewNotFound(msg)
	case http.StatusConflict:
		return pkgerrors.NewConflict(msg)
	default:
		return pkgerrors.NewRemote(msg, fmt.Errorf("status %d", resp.StatusCode))
	}
}
