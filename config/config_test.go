package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	c := FromEnv()
	assert.Equal(t, 5, c.MaxFreeRuns)
	assert.False(t, c.DevMode)
	assert.Equal(t, 300*time.Second, c.AgentTimeout)
	assert.Equal(t, 1800*time.Second, c.RunTimeout)
	assert.Equal(t, 7*24*time.Hour, c.SessionTTL)
	assert.Equal(t, 400, c.InsightFlushChars)
	assert.Equal(t, time.Second, c.InsightFlushInterval)
}

func TestModelForPrecedence(t *testing.T) {
	c := &Config{
		DefaultModel:  "anthropic::claude-sonnet-4-5",
		PerAgentModel: map[AgentIndex]string{AgentValidator: "openai::gpt-5"},
	}
	assert.Equal(t, "anthropic::claude-opus-4-5", c.ModelFor(AgentValidator, "anthropic::claude-opus-4-5"))
	assert.Equal(t, "openai::gpt-5", c.ModelFor(AgentValidator, ""))
	assert.Equal(t, "anthropic::claude-sonnet-4-5", c.ModelFor(AgentBuilder, ""))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MAX_FREE_RUNS", "2")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("INSIGHT_FLUSH_SECONDS", "0.5")
	c := FromEnv()
	assert.Equal(t, 2, c.MaxFreeRuns)
	assert.True(t, c.DevMode)
	assert.Equal(t, 500*time.Millisecond, c.InsightFlushInterval)
}
