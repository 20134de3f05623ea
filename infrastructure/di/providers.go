// Package di wires the collaboration server with Google Wire.
package di

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"

	"dclass/application/ports"
	"dclass/application/services"
	"dclass/infrastructure/ai/openai"
	"dclass/infrastructure/config"
	"dclass/infrastructure/invitation"
	"dclass/infrastructure/messaging/eventbridge"
	"dclass/infrastructure/persistence/dynamodb"
	"dclass/infrastructure/persistence/memory"
	"dclass/interfaces/http/rest"
	ws "dclass/interfaces/websocket"
	"dclass/pkg/observability"
)

// Container holds the collaboration server's dependencies
type Container struct {
	Config     *config.Config
	Logger     *observability.Logger
	Metrics    *observability.Collector
	Repository ports.DiagramRepository
	Diagrams   *services.DiagramService
	Generation *services.GenerationService
	Hub        *ws.Hub
	Dispatcher *ws.Dispatcher
	Handler    http.Handler
}

// APIContainer holds the REST-only dependencies used on Lambda, where no
// realtime hub runs
type APIContainer struct {
	Config  *config.Config
	Logger  *observability.Logger
	Handler http.Handler
}

// ProvideLogger builds the root logger from the configured environment and level
func ProvideLogger(cfg *config.Config) (*observability.Logger, error) {
	return observability.NewLogger(cfg.Environment, cfg.LogLevel)
}

// ProvideZapLogger exposes the zap logger components depend on
func ProvideZapLogger(logger *observability.Logger) *zap.Logger {
	return logger.Logger
}

// ProvideMetrics creates the metrics collector
func ProvideMetrics() *observability.Collector {
	return observability.NewCollector("dclass")
}

// ProvideAWSConfig loads the default AWS configuration for the configured region
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(loadCtx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// ProvideDiagramRepository selects the storage backend
func ProvideDiagramRepository(cfg *config.Config, awsCfg aws.Config, logger *zap.Logger) ports.DiagramRepository {
	if cfg.Storage != config.StorageDynamoDB {
		logger.Info("Using in-memory diagram storage")
		return memory.NewDiagramRepository()
	}

	client := awsdynamodb.NewFromConfig(awsCfg, func(o *awsdynamodb.Options) {
		timeout := 15 * time.Second
		if cfg.IsDevelopment() {
			timeout = 30 * time.Second
		}
		o.HTTPClient = &http.Client{Timeout: timeout}
	})
	logger.Info("Using DynamoDB diagram storage",
		zap.String("table", cfg.DynamoDBTable),
		zap.String("index", cfg.IndexName),
	)
	return dynamodb.NewDiagramRepository(client, cfg.DynamoDBTable, cfg.IndexName, logger)
}

// ProvideEventPublisher publishes to EventBridge when a bus is configured and
// logs events otherwise
func ProvideEventPublisher(cfg *config.Config, awsCfg aws.Config, logger *zap.Logger) ports.EventPublisher {
	if cfg.EventBusName == "" {
		return eventbridge.NewLoggingPublisher(logger)
	}
	client := awseventbridge.NewFromConfig(awsCfg, func(o *awseventbridge.Options) {
		o.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	})
	return eventbridge.NewPublisher(client, cfg.EventBusName, "", logger)
}

// ProvideInviteIssuer creates the JWT invitation issuer
func ProvideInviteIssuer(cfg *config.Config, logger *zap.Logger) (ports.InviteIssuer, error) {
	return invitation.NewJWTIssuer(cfg.InviteSecret, cfg.InviteIssuer, cfg.InviteTTL, logger)
}

// ProvideDiagramGenerator talks to OpenAI when a key is configured; without
// one every generation request fails with a generation error
func ProvideDiagramGenerator(cfg *config.Config, logger *zap.Logger) (ports.DiagramGenerator, error) {
	if cfg.OpenAIAPIKey == "" {
		logger.Warn("OPENAI_API_KEY not set, diagram generation disabled")
		return openai.Disabled{}, nil
	}
	return openai.NewGenerator(openai.Config{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.OpenAIModel,
		VisionModel: cfg.VisionModel,
	}, logger)
}

// ProvideHubConfig derives heartbeat settings
func ProvideHubConfig(cfg *config.Config) ws.HubConfig {
	return ws.HubConfig{
		HeartbeatInterval: cfg.HeartbeatInterval,
		EvictAfter:        cfg.EvictAfter(),
	}
}

// ProvideServerConfig derives websocket upgrade settings
func ProvideServerConfig(cfg *config.Config) *ws.ServerConfig {
	serverCfg := ws.DefaultServerConfig()
	serverCfg.AllowedOrigins = cfg.AllowedOrigins
	serverCfg.MaxConnections = cfg.MaxConnections
	return serverCfg
}

// ProvideRouterConfig derives the HTTP surface settings
func ProvideRouterConfig(cfg *config.Config) rest.RouterConfig {
	return rest.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		ExportBaseURL:  cfg.ExportBaseURL,
		EnableMetrics:  cfg.EnableMetrics,
		EnableTracing:  cfg.EnableTracing,
	}
}

// ProvideHTTPHandler builds the router with the websocket endpoint mounted
func ProvideHTTPHandler(
	diagrams *services.DiagramService,
	broadcaster *ws.Broadcaster,
	server *ws.Server,
	metrics *observability.Collector,
	routerCfg rest.RouterConfig,
	logger *zap.Logger,
) (http.Handler, error) {
	return rest.NewRouter(diagrams, broadcaster, server.HandleWebSocket, metrics, routerCfg, logger).Setup()
}

// ProvideAPIHandler builds the router without realtime endpoints
func ProvideAPIHandler(
	diagrams *services.DiagramService,
	metrics *observability.Collector,
	routerCfg rest.RouterConfig,
	logger *zap.Logger,
) (http.Handler, error) {
	return rest.NewRouter(diagrams, nil, nil, metrics, routerCfg, logger).Setup()
}
