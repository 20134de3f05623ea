package services

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dclass/application/ports"
	"dclass/application/ports/mocks"
	"dclass/domain/core/aggregates"
	"dclass/domain/core/entities"
	"dclass/domain/core/valueobjects"
	"dclass/domain/events"
	pkgerrors "dclass/pkg/errors"
)

func TestInvitationService_Join(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		token    string
		setup    func(api *mocks.MockInvitationAPI)
		wantID   valueobjects.DiagramID
		wantErr  func(error) bool
		wantCall bool
	}{
		{
			name:  "bare token is forwarded",
			token: "tok-123",
			setup: func(api *mocks.MockInvitationAPI) {
				api.On("ResolveInvitationToken", ctx, "tok-123").Return(&ports.InvitationTarget{ID: "42", Name: "Tienda"}, nil)
			},
			wantID:   "42",
			wantCall: true,
		},
		{
			name:    "https url rejected locally",
			token:   "https://app.example.com/invitation/tok-123",
			wantErr: pkgerrors.IsValidation,
		},
		{
			name:    "http url rejected locally",
			token:   "http://localhost:3000/?token=tok",
			wantErr: pkgerrors.IsValidation,
		},
		{
			name:  "server failure is remote",
			token: "tok-9",
			setup: func(api *mocks.MockInvitationAPI) {
				api.On("ResolveInvitationToken", ctx, "tok-9").Return(nil, errors.New("502"))
			},
			wantErr:  pkgerrors.IsRemote,
			wantCall: true,
		},
		{
			name:  "unknown token",
			token: "tok-0",
			setup: func(api *mocks.MockInvitationAPI) {
				api.On("ResolveInvitationToken", ctx, "tok-0").Return(nil, pkgerrors.NewNotFound("invitation"))
			},
			wantErr:  pkgerrors.IsNotFound,
			wantCall: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(mocks.MockInvitationAPI)
			if tt.setup != nil {
				tt.setup(api)
			}
			svc := NewInvitationService(api, nil)

			access, err := svc.Join(ctx, tt.token)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, tt.wantErr(err), err.Error())
				assert.Nil(t, access)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantID, access.DiagramID)
				assert.Equal(t, tt.token, access.Token)
			}
			if !tt.wantCall {
				api.AssertNotCalled(t, "ResolveInvitationToken", mock.Anything, mock.Anything)
			}
			api.AssertExpectations(t)
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestExportService_Download(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	api := new(mocks.MockExportAPI)
	api.On("Export", ctx, ports.ExportSpringBoot, valueobjects.DiagramID("42")).
		Return(io.NopCloser(strings.NewReader("PK\x03\x04zip")), nil)
	api.On("Export", ctx, ports.ExportPostman, valueobjects.DiagramID("42")).
		Return(io.NopCloser(failingReader{}), nil)
	api.On("Export", ctx, ports.ExportFlutter, valueobjects.DiagramID("42")).
		Return(nil, errors.New("404"))

	svc := NewExportService(api, nil)

	path, err := svc.Download(ctx, ports.ExportSpringBoot, "42", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "springboot_project.zip"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "PK\x03\x04zip", string(data))

	_, err = svc.Download(ctx, ports.ExportPostman, "42", dir)
	assert.True(t, pkgerrors.IsRemote(err))
	_, statErr := os.Stat(filepath.Join(dir, "postman_project.json"))
	assert.True(t, os.IsNotExist(statErr))

	_, err = svc.Download(ctx, ports.ExportFlutter, "42", dir)
	assert.True(t, pkgerrors.IsRemote(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are removed")

	_, err = svc.Download(ctx, "pdf", "42", dir)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestDiagramService_CreateAndPublish(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := new(mocks.MockDiagramRepository)
	pub := new(mocks.MockEventPublisher)
	repo.On("Save", ctx, mock.AnythingOfType("*aggregates.Diagram")).Return(nil)
	pub.On("PublishBatch", ctx, mock.MatchedBy(func(evts []events.DomainEvent) bool {
		return len(evts) == 1 && evts[0].GetEventType() == events.TypeDiagramCreated
	})).Return(nil)

	svc := NewDiagramService(repo, pub, new(mocks.MockInviteIssuer), nil)

	// Act
	d, err := svc.Create(ctx, ports.CreateDiagramRequest{Name: "Tienda", OwnerID: "u1"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Tienda", d.Name)
	assert.Empty(t, d.GetUncommittedEvents())
	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestDiagramService_PublishFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	repo := new(mocks.MockDiagramRepository)
	pub := new(mocks.MockEventPublisher)
	repo.On("SaveModel", ctx, valueobjects.DiagramID("42"), mock.Anything).Return(nil)
	pub.On("PublishBatch", ctx, mock.Anything).Return(errors.New("throttled"))

	svc := NewDiagramService(repo, pub, nil, nil)
	_, err := svc.SaveModel(ctx, "42", aggregates.NewModel())
	assert.NoError(t, err)
}

func TestDiagramService_ResolveInvitation(t *testing.T) {
	ctx := context.Background()
	repo := new(mocks.MockDiagramRepository)
	issuer := new(mocks.MockInviteIssuer)
	diagram := &aggregates.Diagram{ID: "42", Name: "Tienda", OwnerID: "u1"}

	issuer.On("Resolve", ctx, "tok").Return(valueobjects.DiagramID("42"), nil)
	repo.On("Get", ctx, valueobjects.DiagramID("42")).Return(diagram, nil)

	svc := NewDiagramService(repo, nil, issuer, nil)
	target, err := svc.ResolveInvitation(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, valueobjects.DiagramID("42"), target.ID)

	_, err = svc.ResolveInvitation(ctx, "https://x/tok")
	assert.True(t, pkgerrors.IsValidation(err))
	issuer.AssertNumberOfCalls(t, "Resolve", 1)
}

func TestDiagramService_IssueInviteRequiresDiagram(t *testing.T) {
	ctx := context.Background()
	repo := new(mocks.MockDiagramRepository)
	issuer := new(mocks.MockInviteIssuer)
	repo.On("Get", ctx, valueobjects.DiagramID("9")).Return(nil, pkgerrors.NewNotFound("diagram 9"))

	svc := NewDiagramService(repo, nil, issuer, nil)
	_, err := svc.IssueInvite(ctx, "9")

	assert.True(t, pkgerrors.IsNotFound(err))
	issuer.AssertNotCalled(t, "Issue", mock.Anything, mock.Anything)
}

func TestGenerationService_GenerateFromPrompt(t *testing.T) {
	ctx := context.Background()
	gen := new(mocks.MockDiagramGenerator)
	repo := new(mocks.MockDiagramRepository)

	generated := aggregates.Model{
		Nodes: []entities.Node{
			{ID: "u", Kind: entities.NodeKindClass, Data: entities.NodeData{Label: "Usuario"}},
			{ID: "p", Kind: entities.NodeKindClass, Data: entities.NodeData{Label: "Pedido"}},
		},
		Edges: []entities.Edge{
			{ID: "e1", Source: "u", Target: "p", RelationType: entities.RelationAssociation},
			{ID: "e2", Source: "u", Target: "ghost", RelationType: entities.RelationDependency},
		},
	}
	gen.On("GenerateFromPrompt", ctx, "usuarios y pedidos").Return(generated, nil)
	repo.On("Get", ctx, valueobjects.DiagramID("42")).Return(&aggregates.Diagram{ID: "42", Version: 1}, nil)
	repo.On("SaveModel", ctx, valueobjects.DiagramID("42"), mock.MatchedBy(func(m aggregates.Model) bool {
		return m.NodeCount() == 2 && m.EdgeCount() == 1
	})).Return(nil)

	svc := NewGenerationService(gen, NewDiagramService(repo, nil, nil, nil), nil)
	model, err := svc.GenerateFromPrompt(ctx, "42", "usuarios y pedidos")

	require.NoError(t, err)
	require.Len(t, model.Edges, 1)
	assert.Equal(t, "e1", model.Edges[0].ID)
	repo.AssertExpectations(t)
}

func TestGenerationService_DropsDanglingEdgesWithoutIDs(t *testing.T) {
	// Arrange
	gen := new(mocks.MockDiagramGenerator)
	generated := aggregates.Model{
		Nodes: []entities.Node{
			{ID: "A", Kind: entities.NodeKindClass, Data: entities.NodeData{Label: "A"}},
			{ID: "B", Kind: entities.NodeKindClass, Data: entities.NodeData{Label: "B"}},
		},
		Edges: []entities.Edge{
			{Source: "A", Target: "B", RelationType: entities.RelationAssociation},
			{Source: "A", Target: "ZZZ", RelationType: entities.RelationAssociation},
		},
	}
	gen.On("GenerateFromPrompt", mock.Anything, "a y b").Return(generated, nil)
	svc := NewGenerationService(gen, nil, nil)

	// Act
	model, err := svc.GenerateFromPrompt(context.Background(), "", "a y b")

	// Assert
	require.NoError(t, err)
	require.Len(t, model.Edges, 1)
	assert.Equal(t, "A", model.Edges[0].Source)
	assert.Equal(t, "B", model.Edges[0].Target)
	assert.NotEmpty(t, model.Edges[0].ID)
}

func TestGenerationService_Errors(t *testing.T) {
	ctx := context.Background()
	gen := new(mocks.MockDiagramGenerator)
	gen.On("Converse", ctx, "hola").Return("", errors.New("rate limited"))
	gen.On("GenerateFromImage", ctx, "data:image/png;base64,AAAA", "d.png").Return(aggregates.Model{}, errors.New("unreadable"))

	svc := NewGenerationService(gen, nil, nil)

	_, err := svc.Converse(ctx, "hola")
	assert.True(t, pkgerrors.IsGeneration(err))

	_, err = svc.GenerateFromImage(ctx, "", "data:image/png;base64,AAAA", "d.png")
	assert.True(t, pkgerrors.IsGeneration(err))

	_, err = svc.GenerateFromImage(ctx, "", "not-a-data-url", "d.png")
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = svc.GenerateFromPrompt(ctx, "", "   ")
	assert.True(t, pkgerrors.IsValidation(err))
}
