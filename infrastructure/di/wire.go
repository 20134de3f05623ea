//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"dclass/application/services"
	"dclass/infrastructure/config"
	ws "dclass/interfaces/websocket"
)

// CoreSet provides configuration, logging and the diagram service
var CoreSet = wire.NewSet(
	ProvideLogger,
	ProvideZapLogger,
	ProvideMetrics,
	ProvideAWSConfig,
	ProvideDiagramRepository,
	ProvideEventPublisher,
	ProvideInviteIssuer,
	ProvideRouterConfig,
	services.NewDiagramService,
)

// RealtimeSet provides generation and the websocket hub
var RealtimeSet = wire.NewSet(
	ProvideDiagramGenerator,
	services.NewGenerationService,
	ProvideHubConfig,
	ws.NewHub,
	ws.NewDispatcher,
	ProvideServerConfig,
	ws.NewServer,
	ws.NewBroadcaster,
)

// InitializeContainer creates a fully wired collaboration server
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(
		CoreSet,
		RealtimeSet,
		ProvideHTTPHandler,
		wire.Struct(new(Container), "*"),
	)
	return nil, nil
}

// InitializeAPIContainer creates the REST-only API
func InitializeAPIContainer(ctx context.Context, cfg *config.Config) (*APIContainer, error) {
	wire.Build(
		CoreSet,
		ProvideAPIHandler,
		wire.Struct(new(APIContainer), "*"),
	)
	return nil, nil
}
