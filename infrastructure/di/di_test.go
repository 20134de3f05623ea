package di

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dclass/infrastructure/ai/openai"
	"dclass/infrastructure/config"
	"dclass/infrastructure/messaging/eventbridge"
	"dclass/infrastructure/persistence/memory"
	pkgerrors "dclass/pkg/errors"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.LogLevel = "error"
	cfg.InviteSecret = "test-secret"
	cfg.HeartbeatInterval = time.Second
	return cfg
}

func TestInitializeContainer_MemoryDefaults(t *testing.T) {
	// Arrange
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg := testConfig()

	// Act
	c, err := InitializeContainer(context.Background(), cfg)
	require.NoError(t, err)
	go c.Hub.Run()
	defer c.Hub.Stop()

	rec := httptest.NewRecorder()
	c.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	// Assert
	assert.IsType(t, &memory.DiagramRepository{}, c.Repository)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Same(t, cfg, c.Config)
}

func TestInitializeAPIContainer_HasNoWebSocket(t *testing.T) {
	// Arrange
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	// Act
	c, err := InitializeAPIContainer(context.Background(), testConfig())
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	c.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	// Assert
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProvideDiagramGenerator(t *testing.T) {
	tests := []struct {
		name     string
		apiKey   string
		disabled bool
	}{
		{name: "no key disables generation", apiKey: "", disabled: true},
		{name: "key enables OpenAI", apiKey: "sk-test", disabled: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			cfg := testConfig()
			cfg.OpenAIAPIKey = tt.apiKey

			// Act
			gen, err := ProvideDiagramGenerator(cfg, testLogger(t))

			// Assert
			require.NoError(t, err)
			_, isDisabled := gen.(openai.Disabled)
			assert.Equal(t, tt.disabled, isDisabled)
		})
	}
}

func TestProvideEventPublisher_LogsWithoutBus(t *testing.T) {
	// Arrange
	cfg := testConfig()
	cfg.EventBusName = ""

	// Act
	pub := ProvideEventPublisher(cfg, awsConfigForTest(), testLogger(t))

	// Assert
	assert.IsType(t, &eventbridge.LoggingPublisher{}, pub)
}

func TestProvideEventPublisher_EventBridgeWithBus(t *testing.T) {
	// Arrange
	cfg := testConfig()
	cfg.EventBusName = "dclass-bus"

	// Act
	pub := ProvideEventPublisher(cfg, awsConfigForTest(), testLogger(t))

	// Assert
	assert.IsType(t, &eventbridge.Publisher{}, pub)
}

func TestProvideInviteIssuer_RoundTrip(t *testing.T) {
	// Arrange
	issuer, err := ProvideInviteIssuer(testConfig(), testLogger(t))
	require.NoError(t, err)

	// Act
	token, err := issuer.Issue(context.Background(), "d-1")
	require.NoError(t, err)
	id, err := issuer.Resolve(context.Background(), token)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "d-1", id.String())
	_, err = issuer.Resolve(context.Background(), token+"x")
	assert.True(t, pkgerrors.IsNotFound(err))
}
