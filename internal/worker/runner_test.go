package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigWithDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{}.WithDefaults()

	assert.Equal(t, defaultConcurrency, cfg.Concurrency)
	assert.NotEmpty(t, cfg.Name)
	assert.Equal(t, defaultDrainTimeout, cfg.DrainTimeout)

	custom := Config{Concurrency: 8, Name: "w1", DrainTimeout: time.Second}.WithDefaults()
	assert.Equal(t, 8, custom.Concurrency)
	assert.Equal(t, "w1", custom.Name)
	assert.Equal(t, time.Second, custom.DrainTimeout)
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "draining", StateDraining.String())
	assert.Equal(t, "unknown", State(42).String())
}
