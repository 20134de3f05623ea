package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zap.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zap.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zap.ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, zap.InfoLevel, ParseLevel("verbose"))
}

func TestLogger_SetLevel(t *testing.T) {
	logger, err := NewLogger("development", "info")
	require.NoError(t, err)

	assert.False(t, logger.SetLevel("info"))
	assert.True(t, logger.SetLevel("debug"))
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	child := logger.With(zap.String("component", "hub"))
	logger.SetLevel("error")
	assert.False(t, child.Core().Enabled(zap.WarnLevel))
}

func TestCollector_RecordGeneration(t *testing.T) {
	c := NewCollector("dclass_test")

	c.RecordGeneration("prompt", 1.2, nil)
	c.RecordGeneration("prompt", 0.4, errors.New("rate limited"))
	c.RecordGeneration("image", 3, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Generations.WithLabelValues("prompt", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Generations.WithLabelValues("prompt", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Generations.WithLabelValues("image", "success")))

	// separate registries do not collide
	assert.NotPanics(t, func() { NewCollector("dclass_test") })
}
