// Package config loads the process-wide configuration recognized by the
// optimization core (spec.md §6 Configuration table). It follows the
// teacher's convention of small typed Options structs (see
// recovery/mongo.Options) rather than a generic untyped map.
package config

import (
	"os"
	"strconv"
	"time"
)

// AgentIndex identifies one of the five fixed pipeline stages.
type AgentIndex int

const (
	AgentAnalyzer AgentIndex = iota
	AgentStrategy
	AgentBuilder
	AgentValidator
	AgentPolisher
)

// Config holds every recognized environment-driven setting.
type Config struct {
	// DefaultModel is the fallback model id for any agent lacking a specific override.
	DefaultModel string
	// PerAgentModel holds ANALYZER_MODEL, OPTIMIZER_MODEL, IMPLEMENTER_MODEL,
	// VALIDATOR_MODEL, POLISH_MODEL keyed by AgentIndex.
	PerAgentModel map[AgentIndex]string
	// ProfileModel is PROFILE_MODEL, used by the optional Profile Enrichment collaborator.
	ProfileModel string
	// InsightModel is INSIGHT_MODEL, the cheap/fast model used by the insight tap.
	InsightModel string

	// MaxFreeRuns is the per-client quota cap (default 5).
	MaxFreeRuns int
	// DevMode disables quota checks when true.
	DevMode bool

	// AgentTimeout is the per-agent wall-clock deadline (default 300s).
	AgentTimeout time.Duration
	// RunTimeout is the whole-run wall-clock deadline (default 1800s).
	RunTimeout time.Duration

	// InsightFlushChars / InsightFlushInterval configure the insight tap batching.
	InsightFlushChars    int
	InsightFlushInterval time.Duration

	// SessionTTL is the recovery session expiry window (default 7 days).
	SessionTTL time.Duration
}

// FromEnv loads a Config from process environment variables, applying the
// spec.md §6 defaults for any key that is unset or unparsable.
func FromEnv() *Config {
	c := &Config{
		DefaultModel:         getString("DEFAULT_MODEL", "anthropic::claude-sonnet-4-5"),
		PerAgentModel:        map[AgentIndex]string{},
		ProfileModel:         getString("PROFILE_MODEL", ""),
		InsightModel:         getString("INSIGHT_MODEL", "anthropic::claude-haiku-4-5"),
		MaxFreeRuns:          getInt("MAX_FREE_RUNS", 5),
		DevMode:              getBool("DEV_MODE", false),
		AgentTimeout:         getSeconds("AGENT_TIMEOUT_SECONDS", 300),
		RunTimeout:           getSeconds("RUN_TIMEOUT_SECONDS", 1800),
		InsightFlushChars:    getInt("INSIGHT_FLUSH_CHARS", 400),
		InsightFlushInterval: getSecondsFloat("INSIGHT_FLUSH_SECONDS", 1.0),
		SessionTTL:           getDays("SESSION_TTL_DAYS", 7),
	}
	c.PerAgentModel[AgentAnalyzer] = getString("ANALYZER_MODEL", "")
	c.PerAgentModel[AgentStrategy] = getString("OPTIMIZER_MODEL", "")
	c.PerAgentModel[AgentBuilder] = getString("IMPLEMENTER_MODEL", "")
	c.PerAgentModel[AgentValidator] = getString("VALIDATOR_MODEL", "")
	c.PerAgentModel[AgentPolisher] = getString("POLISH_MODEL", "")
	return c
}

// ModelFor resolves the effective model id for an agent: an explicit
// per-request override wins, then the per-agent env override, then
// DefaultModel.
func (c *Config) ModelFor(idx AgentIndex, requestOverride string) string {
	if requestOverride != "" {
		return requestOverride
	}
	if m := c.PerAgentModel[idx]; m != "" {
		return m
	}
	return c.DefaultModel
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getSeconds(key string, defSeconds int) time.Duration {
	return time.Duration(getInt(key, defSeconds)) * time.Second
}

func getSecondsFloat(key string, defSeconds float64) time.Duration {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(f * float64(time.Second))
		}
	}
	return time.Duration(defSeconds * float64(time.Second))
}

func getDays(key string, defDays int) time.Duration {
	return time.Duration(getInt(key, defDays)) * 24 * time.Hour
}
