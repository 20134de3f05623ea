package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dclass/application/ports"
	"dclass/application/services"
	"dclass/domain/core/aggregates"
	"dclass/domain/core/entities"
	"dclass/domain/core/valueobjects"
	"dclass/infrastructure/api"
	"dclass/infrastructure/invitation"
	"dclass/infrastructure/persistence/memory"
	ws "dclass/interfaces/websocket"
	pkgerrors "dclass/pkg/errors"
	"dclass/pkg/observability"
)

type broadcast struct {
	diagramID string
	model     aggregates.Model
	except    string
}

type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []broadcast
}

func (b *recordingBroadcaster) BroadcastDiagram(diagramID string, model aggregates.Model, except string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, broadcast{diagramID: diagramID, model: model, except: except})
}

func (b *recordingBroadcaster) all() []broadcast {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]broadcast(nil), b.sent...)
}

type testServer struct {
	url         string
	client      *api.Client
	diagrams    *services.DiagramService
	broadcaster *recordingBroadcaster
	metrics     *observability.Collector
}

func newTestServer(t *testing.T, cfg RouterConfig) *testServer {
	t.Helper()
	issuer, err := invitation.NewJWTIssuer("secret", "dclass", time.Hour, nil)
	require.NoError(t, err)
	diagrams := services.NewDiagramService(memory.NewDiagramRepository(), nil, issuer, nil)
	broadcaster := &recordingBroadcaster{}
	metrics := observability.NewCollector("test")
	cfg.EnableMetrics = true

	handler, err := NewRouter(diagrams, broadcaster, nil, metrics, cfg, nil).Setup()
	require.NoError(t, err)
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	client, err := api.NewClient(ts.URL)
	require.NoError(t, err)

	return &testServer{
		url:         ts.URL,
		client:      client,
		diagrams:    diagrams,
		broadcaster: broadcaster,
		metrics:     metrics,
	}
}

func (s *testServer) create(t *testing.T, name string) *aggregates.Diagram {
	t.Helper()
	d, err := s.client.CreateDiagram(context.Background(), ports.CreateDiagramRequest{Name: name, OwnerID: "owner-1"})
	require.NoError(t, err)
	return d
}

func decodeError(t *testing.T, resp *http.Response) errorResponse {
	t.Helper()
	defer resp.Body.Close()
	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func twoClassModel(t *testing.T) aggregates.Model {
	t.Helper()
	m := aggregates.NewModel()
	var ids []string
	for _, label := range []string{"Order", "Customer"} {
		n, err := entities.NewNode(entities.NodeKindClass)
		require.NoError(t, err)
		n.Data.Label = label
		m.Nodes = append(m.Nodes, n)
		ids = append(ids, n.ID)
	}
	m.Edges = append(m.Edges,
		entities.NewEdge(ids[0], ids[1], entities.RelationAssociation, nil),
		entities.NewEdge(ids[0], "ghost", entities.RelationDependency, nil),
	)
	return m
}

func TestDiagramLifecycle(t *testing.T) {
	// Arrange
	srv := newTestServer(t, RouterConfig{})
	ctx := context.Background()

	// Act
	created := srv.create(t, "Shop")
	listed, err := srv.client.LoadDiagramsByOwner(ctx, "owner-1")
	require.NoError(t, err)
	name := "Shop v2"
	updated, err := srv.client.UpdateDiagram(ctx, created.ID, ports.UpdateDiagramRequest{Name: &name})
	require.NoError(t, err)
	require.NoError(t, srv.client.SaveDiagram(ctx, created.ID, twoClassModel(t)))
	fetched, err := srv.client.GetDiagram(ctx, created.ID)
	require.NoError(t, err)
	require.NoError(t, srv.client.DeleteDiagram(ctx, created.ID))
	_, getErr := srv.client.GetDiagram(ctx, created.ID)

	// Assert
	assert.False(t, created.ID.IsZero())
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)
	assert.Equal(t, "Shop v2", updated.Name)
	assert.Equal(t, 2, fetched.Model.NodeCount())
	assert.Equal(t, 1, fetched.Model.EdgeCount(), "dangling edge dropped on save")
	assert.True(t, pkgerrors.IsNotFound(getErr))
}

func TestListDiagrams_EmptyOwnerListIsArray(t *testing.T) {
	// Arrange
	srv := newTestServer(t, RouterConfig{})

	// Act
	resp, err := http.Get(srv.url + "/api/v1/diagrams?ownerId=nobody")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	// Assert
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"diagrams":[]}`, string(raw))
}

func TestDiagramRequests_Rejected(t *testing.T) {
	srv := newTestServer(t, RouterConfig{})

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantCode   string
		wantError  string
	}{
		{
			name:       "missing owner on list",
			method:     http.MethodGet,
			path:       "/api/v1/diagrams",
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION",
			wantError:  "ownerId is required",
		},
		{
			name:       "missing name on create",
			method:     http.MethodPost,
			path:       "/api/v1/diagrams",
			body:       `{"ownerId":"owner-1"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION",
			wantError:  "name is required",
		},
		{
			name:       "malformed body",
			method:     http.MethodPost,
			path:       "/api/v1/diagrams",
			body:       `{"name":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION",
			wantError:  "invalid request body",
		},
		{
			name:       "empty bulk delete",
			method:     http.MethodPost,
			path:       "/api/v1/diagrams/bulk-delete",
			body:       `{"ids":[]}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION",
		},
		{
			name:       "unknown diagram",
			method:     http.MethodGet,
			path:       "/api/v1/diagrams/missing",
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "save to unknown diagram",
			method:     http.MethodPut,
			path:       "/api/v1/diagrams/missing/model",
			body:       `{"nodes":[],"edges":[]}`,
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			req, err := http.NewRequest(tt.method, srv.url+tt.path, strings.NewReader(tt.body))
			require.NoError(t, err)
			req.Header.Set("Content-Type", "application/json")

			// Act
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			body := decodeError(t, resp)

			// Assert
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCode, body.Code)
			if tt.wantError != "" {
				assert.Contains(t, body.Error, tt.wantError)
			}
		})
	}
}

func TestBulkDeleteDiagrams(t *testing.T) {
	// Arrange
	srv := newTestServer(t, RouterConfig{})
	ctx := context.Background()
	a := srv.create(t, "A")
	b := srv.create(t, "B")
	keep := srv.create(t, "C")

	// Act
	err := srv.client.BulkDeleteDiagrams(ctx, []valueobjects.DiagramID{a.ID, b.ID})

	// Assert
	require.NoError(t, err)
	left, err := srv.client.LoadDiagramsByOwner(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, keep.ID, left[0].ID)
}

func TestSaveModel_BroadcastsStoredModel(t *testing.T) {
	// Arrange
	srv := newTestServer(t, RouterConfig{})
	d := srv.create(t, "Shop")
	payload, err := json.Marshal(twoClassModel(t))
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPut, srv.url+"/api/v1/diagrams/"+d.ID.String()+"/model", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set(SocketIDHeader, "socket-7")

	// Act
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	// Assert
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	sent := srv.broadcaster.all()
	require.Len(t, sent, 1)
	assert.Equal(t, d.ID.String(), sent[0].diagramID)
	assert.Equal(t, "socket-7", sent[0].except)
	assert.Equal(t, 1, sent[0].model.EdgeCount())
}

func TestInvitations(t *testing.T) {
	// Arrange
	srv := newTestServer(t, RouterConfig{})
	d := srv.create(t, "Shop")

	// Act
	resp, err := http.Post(srv.url+"/api/v1/diagrams/"+d.ID.String()+"/invitations", "application/json", nil)
	require.NoError(t, err)
	var issued IssueInvitationResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&issued))
	resp.Body.Close()
	target, err := srv.client.ResolveInvitationToken(context.Background(), issued.Token)
	_, badErr := srv.client.ResolveInvitationToken(context.Background(), "not-a-token")

	// Assert
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NoError(t, err)
	assert.Equal(t, d.ID, target.ID)
	assert.Equal(t, "Shop", target.Name)
	assert.True(t, pkgerrors.IsNotFound(badErr))
}

func TestIssueInvitation_UnknownDiagram(t *testing.T) {
	// Arrange
	srv := newTestServer(t, RouterConfig{})

	// Act
	resp, err := http.Post(srv.url+"/api/v1/diagrams/missing/invitations", "application/json", nil)
	require.NoError(t, err)
	body := decodeError(t, resp)

	// Assert
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", body.Code)
}

func TestExport_NotConfigured(t *testing.T) {
	// Arrange
	srv := newTestServer(t, RouterConfig{})
	d := srv.create(t, "Shop")

	// Act
	resp, err := http.Get(srv.url + "/api/v1/export/generate-spring/" + d.ID.String())
	require.NoError(t, err)
	body := decodeError(t, resp)

	// Assert
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	assert.Equal(t, "NOT_IMPLEMENTED", body.Code)
}

func TestExport_Proxied(t *testing.T) {
	// Arrange
	var gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/zip")
		w.Write([]byte("PK-archive"))
	}))
	defer upstream.Close()
	srv := newTestServer(t, RouterConfig{ExportBaseURL: upstream.URL + "/codegen"})
	d := srv.create(t, "Shop")

	// Act
	rc, err := srv.client.Export(context.Background(), ports.ExportSpringBoot, d.ID)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, "PK-archive", string(data))
	assert.Equal(t, "/codegen/export/generate-spring/"+d.ID.String(), gotPath)
}

func TestExport_Rejected(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("upstream must not be called, got %s", r.URL.Path)
	}))
	defer upstream.Close()
	srv := newTestServer(t, RouterConfig{ExportBaseURL: upstream.URL})
	d := srv.create(t, "Shop")

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{name: "unknown kind", path: "/api/v1/export/generate-cobol/" + d.ID.String(), wantStatus: http.StatusBadRequest},
		{name: "unknown diagram", path: "/api/v1/export/generate-postman/missing", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			resp, err := http.Get(srv.url + tt.path)
			require.NoError(t, err)
			resp.Body.Close()

			// Assert
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestNewExportHandler_InvalidBaseURL(t *testing.T) {
	// Act
	_, err := NewExportHandler(nil, "not a url", nil)

	// Assert
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestHealthAndMetrics(t *testing.T) {
	// Arrange
	srv := newTestServer(t, RouterConfig{})

	// Act
	resp, err := http.Get(srv.url + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	metricsResp, err := http.Get(srv.url + "/metrics")
	require.NoError(t, err)
	raw, _ := io.ReadAll(metricsResp.Body)
	metricsResp.Body.Close()

	// Assert
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1.0, testutil.ToFloat64(srv.metrics.HTTPRequests.WithLabelValues("GET", "/health", "200")))
	assert.Contains(t, string(raw), "test_http_requests_total")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: pkgerrors.NewValidation("bad"), want: http.StatusBadRequest},
		{name: "not found", err: pkgerrors.NewNotFound("gone"), want: http.StatusNotFound},
		{name: "conflict", err: pkgerrors.NewConflict("stale"), want: http.StatusConflict},
		{name: "remote", err: pkgerrors.NewRemote("upstream", errors.New("503")), want: http.StatusBadGateway},
		{name: "generation", err: pkgerrors.NewGeneration("no classes"), want: http.StatusBadGateway},
		{name: "foreign", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestRespondError_HidesInternalCause(t *testing.T) {
	// Arrange
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/diagrams/x", nil)

	// Act
	respondError(rec, req, zap.NewNop(), pkgerrors.NewInternal("query table", errors.New("credentials expired")))

	// Assert
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error","code":"INTERNAL"}`, rec.Body.String())
}

func TestWebSocket_UpgradesThroughMiddleware(t *testing.T) {
	// Arrange
	metrics := observability.NewCollector("test")
	hub := ws.NewHub(ws.DefaultHubConfig(), metrics, nil)
	go hub.Run()
	defer hub.Stop()
	issuer, err := invitation.NewJWTIssuer("secret", "dclass", time.Hour, nil)
	require.NoError(t, err)
	diagrams := services.NewDiagramService(memory.NewDiagramRepository(), nil, issuer, nil)
	dispatcher := ws.NewDispatcher(hub, diagrams, nil, nil)
	server := ws.NewServer(hub, dispatcher, nil, nil)
	var broadcaster DiagramBroadcaster = ws.NewBroadcaster(hub, nil)

	handler, err := NewRouter(diagrams, broadcaster, server.HandleWebSocket, metrics,
		RouterConfig{EnableTracing: true}, nil).Setup()
	require.NoError(t, err)
	ts := httptest.NewServer(handler)
	defer ts.Close()

	// Act
	conn, _, err := gws.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws?diagramId=d-1&username=ana", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(map[string]any{"event": "get-participants", "data": map[string]any{}}))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var env struct {
		Event string `json:"event"`
	}
	require.NoError(t, conn.ReadJSON(&env))

	// Assert
	assert.Equal(t, "participants-updated", env.Event)
	assert.Eventually(t, func() bool { return hub.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)
}
