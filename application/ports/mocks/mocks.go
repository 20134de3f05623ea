// Package mocks provides testify mocks of the application ports.
package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"dclass/application/ports"
	"dclass/domain/core/aggregates"
	"dclass/domain/core/valueobjects"
	"dclass/domain/events"
)

// MockDiagramAPI mocks ports.DiagramAPI
type MockDiagramAPI struct {
	mock.Mock
}

func (m *MockDiagramAPI) LoadDiagramsByOwner(ctx context.Context, ownerID string) ([]*aggregates.Diagram, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*aggregates.Diagram), args.Error(1)
}

func (m *MockDiagramAPI) GetDiagram(ctx context.Context, id valueobjects.DiagramID) (*aggregates.Diagram, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*aggregates.Diagram), args.Error(1)
}

func (m *MockDiagramAPI) CreateDiagram(ctx context.Context, req ports.CreateDiagramRequest) (*aggregates.Diagram, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*aggregates.Diagram), args.Error(1)
}

func (m *MockDiagramAPI) UpdateDiagram(ctx context.Context, id valueobjects.DiagramID, req ports.UpdateDiagramRequest) (*aggregates.Diagram, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*aggregates.Diagram), args.Error(1)
}

func (m *MockDiagramAPI) DeleteDiagram(ctx context.Context, id valueobjects.DiagramID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockDiagramAPI) BulkDeleteDiagrams(ctx context.Context, ids []valueobjects.DiagramID) error {
	return m.Called(ctx, ids).Error(0)
}

func (m *MockDiagramAPI) SaveDiagram(ctx context.Context, id valueobjects.DiagramID, model aggregates.Model) error {
	return m.Called(ctx, id, model).Error(0)
}

// MockInvitationAPI mocks ports.InvitationAPI
type MockInvitationAPI struct {
	mock.Mock
}

func (m *MockInvitationAPI) ResolveInvitationToken(ctx context.Context, token string) (*ports.InvitationTarget, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.InvitationTarget), args.Error(1)
}

// MockExportAPI mocks ports.ExportAPI
type MockExportAPI struct {
	mock.Mock
}

func (m *MockExportAPI) Export(ctx context.Context, kind ports.ExportKind, id valueobjects.DiagramID) (io.ReadCloser, error) {
	args := m.Called(ctx, kind, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

// MockDiagramRepository mocks ports.DiagramRepository
type MockDiagramRepository struct {
	mock.Mock
}

func (m *MockDiagramRepository) Save(ctx context.Context, diagram *aggregates.Diagram) error {
	return m.Called(ctx, diagram).Error(0)
}

func (m *MockDiagramRepository) Get(ctx context.Context, id valueobjects.DiagramID) (*aggregates.Diagram, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*aggregates.Diagram), args.Error(1)
}

func (m *MockDiagramRepository) ListByOwner(ctx context.Context, ownerID string) ([]*aggregates.Diagram, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*aggregates.Diagram), args.Error(1)
}

func (m *MockDiagramRepository) SaveModel(ctx context.Context, id valueobjects.DiagramID, model aggregates.Model) error {
	return m.Called(ctx, id, model).Error(0)
}

func (m *MockDiagramRepository) Delete(ctx context.Context, id valueobjects.DiagramID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockDiagramRepository) DeleteBatch(ctx context.Context, ids []valueobjects.DiagramID) error {
	return m.Called(ctx, ids).Error(0)
}

// MockEventPublisher mocks ports.EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockEventPublisher) PublishBatch(ctx context.Context, evts []events.DomainEvent) error {
	return m.Called(ctx, evts).Error(0)
}

// MockDiagramGenerator mocks ports.DiagramGenerator
type MockDiagramGenerator struct {
	mock.Mock
}

func (m *MockDiagramGenerator) GenerateFromPrompt(ctx context.Context, prompt string) (aggregates.Model, error) {
	args := m.Called(ctx, prompt)
	return args.Get(0).(aggregates.Model), args.Error(1)
}

func (m *MockDiagramGenerator) Converse(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func (m *MockDiagramGenerator) GenerateFromImage(ctx context.Context, dataURL, fileName string) (aggregates.Model, error) {
	args := m.Called(ctx, dataURL, fileName)
	return args.Get(0).(aggregates.Model), args.Error(1)
}

// MockInviteIssuer mocks ports.InviteIssuer
type MockInviteIssuer struct {
	mock.Mock
}

func (m *MockInviteIssuer) Issue(ctx context.Context, id valueobjects.DiagramID) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func (m *MockInviteIssuer) Resolve(ctx context.Context, token string) (valueobjects.DiagramID, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(valueobjects.DiagramID), args.Error(1)
}

var (
	_ ports.DiagramAPI        = (*MockDiagramAPI)(nil)
	_ ports.InvitationAPI     = (*MockInvitationAPI)(nil)
	_ ports.ExportAPI         = (*MockExportAPI)(nil)
	_ ports.DiagramRepository = (*MockDiagramRepository)(nil)
	_ ports.EventPublisher    = (*MockEventPublisher)(nil)
	_ ports.DiagramGenerator  = (*MockDiagramGenerator)(nil)
	_ ports.InviteIssuer      = (*MockInviteIssuer)(nil)
)
