package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dclass/application/ports"
	"dclass/domain/core/aggregates"
	"dclass/domain/core/entities"
	"dclass/domain/core/valueobjects"
	pkgerrors "dclass/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	_, err := NewClient("localhost:8080")
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestClient_GetDiagram(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/diagrams/42", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":42,"ownerId":"u1","name":"Tienda","model":{"nodes":[
			{"id":"n1","type":"class","position":{"x":1,"y":2},"data":{"label":"Usuario"}}],"edges":[]}}`)
	})

	d, err := c.GetDiagram(context.Background(), "42")

	require.NoError(t, err)
	assert.Equal(t, valueobjects.DiagramID("42"), d.ID)
	require.Len(t, d.Model.Nodes, 1)
	assert.Equal(t, "Usuario", d.Model.Nodes[0].Data.Label)
}

func TestClient_SaveDiagram(t *testing.T) {
	var got aggregates.Model
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/diagrams/42/model", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	})

	model, _, err := aggregates.NewModel().AddNode(entities.NodeKindClass)
	require.NoError(t, err)

	require.NoError(t, c.SaveDiagram(context.Background(), "42", model))
	assert.Len(t, got.Nodes, 1)
}

func TestClient_ListAndBulkDelete(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/diagrams":
			assert.Equal(t, "u 1", r.URL.Query().Get("ownerId"))
			io.WriteString(w, `{"diagrams":[{"id":"a","name":"A"},{"id":"b","name":"B"}]}`)
		case "/api/v1/diagrams/bulk-delete":
			var body struct {
				IDs []string `json:"ids"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, []string{"a", "b"}, body.IDs)
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	list, err := c.LoadDiagramsByOwner(context.Background(), "u 1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	assert.NoError(t, c.BulkDeleteDiagrams(context.Background(), []valueobjects.DiagramID{"a", "b"}))
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
		errMsg string
	}{
		{"bad request", http.StatusBadRequest, `{"error":"name is required"}`, pkgerrors.IsValidation, "name is required"},
		{"not found", http.StatusNotFound, `{"error":"diagram 9 not found"}`, pkgerrors.IsNotFound, "diagram 9"},
		{"conflict", http.StatusConflict, `{"message":"version mismatch"}`, pkgerrors.IsConflict, "version mismatch"},
		{"server error", http.StatusBadGateway, `upstream down`, pkgerrors.IsRemote, "upstream down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			_, err := c.GetDiagram(context.Background(), "9")

			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestClient_ResolveInvitationToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/invitations/tok-1", r.URL.Path)
		io.WriteString(w, `{"id":"42","name":"Tienda"}`)
	})

	target, err := c.ResolveInvitationToken(context.Background(), "tok-1")

	require.NoError(t, err)
	assert.Equal(t, valueobjects.DiagramID("42"), target.ID)
}

func TestClient_ExportUsesExportBase(t *testing.T) {
	exportSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gen/export/generate-postman/42", r.URL.Path)
		io.WriteString(w, `{"info":{}}`)
	}))
	defer exportSrv.Close()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("export must not hit the diagram API")
	}, WithExportBaseURL(exportSrv.URL+"/gen"))

	body, err := c.Export(context.Background(), ports.ExportPostman, "42")
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, `{"info":{}}`, string(data))
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}, WithBreaker(BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, FailureThreshold: 0.5, MinRequests: 2}))

	for i := 0; i < 2; i++ {
		_, err := c.GetDiagram(context.Background(), "1")
		require.Error(t, err)
	}
	_, err := c.GetDiagram(context.Background(), "1")

	assert.True(t, pkgerrors.IsRemote(err))
	assert.Contains(t, err.Error(), "temporarily unavailable")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_NotFoundDoesNotTripBreaker(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}, WithBreaker(BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, FailureThreshold: 0.5, MinRequests: 2}))

	for i := 0; i < 4; i++ {
		_, err := c.GetDiagram(context.Background(), "1")
		assert.True(t, pkgerrors.IsNotFound(err))
	}
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}
