// Package coreerrors defines the error taxonomy shared by every component of
// the optimization core (model façade, agent runners, orchestrator, API
// surface). Errors cross package boundaries as typed values so the
// Orchestrator's retry policy can be a pure function of the returned Category,
// mirroring the provider-error pattern in goa-ai's model package.
package coreerrors

import (
	"errors"
	"fmt"
)

// Category is the coarse-grained retry classification from spec.md §7.
type Category string

const (
	// Transient errors are retried in-place with exponential backoff.
	Transient Category = "TRANSIENT"
	// Recoverable errors get a single retry, optionally with a fallback model.
	Recoverable Category = "RECOVERABLE"
	// Permanent errors are not retried.
	Permanent Category = "PERMANENT"
)

// Type enumerates the specific error kinds referenced throughout spec.md.
type Type string

const (
	TypeRateLimited         Type = "RATE_LIMITED"
	TypeContextLength       Type = "CONTEXT_LENGTH_EXCEEDED"
	TypeUpstream5xx         Type = "UPSTREAM_5XX"
	TypeNetwork             Type = "NETWORK"
	TypeAuth                Type = "AUTH"
	TypeBadRequest          Type = "BAD_REQUEST"
	TypeTimeout             Type = "TIMEOUT"
	TypeAgentParse          Type = "AGENT_PARSE"
	TypeValidatorScoreMiss  Type = "VALIDATOR_SCORE_MISSING"
	TypeQuotaExceeded       Type = "QUOTA_EXCEEDED"
	TypeJobFetchFailed      Type = "JOB_FETCH_FAILED"
	TypeRendererSyntax      Type = "RENDERER_SYNTAX"
	TypeInternal            Type = "INTERNAL"
	TypeSessionNotFound     Type = "SESSION_NOT_FOUND"
	TypeRetryExhausted      Type = "RETRY_EXHAUSTED"
	TypeSlowConsumer        Type = "SLOW_CONSUMER"
)

// categoryByType is the canonical mapping from Type to Category, used when
// callers construct a CoreError from a Type without an explicit Category.
var categoryByType = map[Type]Category{
	TypeRateLimited:        Transient,
	TypeUpstream5xx:        Transient,
	TypeNetwork:            Transient,
	TypeTimeout:            Transient,
	TypeAgentParse:         Recoverable,
	TypeContextLength:      Recoverable,
	TypeValidatorScoreMiss: Recoverable,
	TypeAuth:               Permanent,
	TypeBadRequest:         Permanent,
	TypeQuotaExceeded:      Permanent,
	TypeJobFetchFailed:     Permanent,
	TypeRendererSyntax:     Permanent,
	TypeInternal:           Permanent,
	TypeSessionNotFound:    Permanent,
	TypeRetryExhausted:     Permanent,
	TypeSlowConsumer:       Transient,
}

// CoreError is the typed error returned across component boundaries. It
// carries enough structure for the Orchestrator to decide whether and how to
// retry without inspecting error strings.
type CoreError struct {
	Category Category
	Kind     Type
	RunID    string
	// Message is a short, already-sanitized, user-facing description.
	Message string
	cause   error
}

// New constructs a CoreError, deriving Category from Kind's canonical mapping
// when cat is empty.
func New(cat Category, kind Type, runID, message string, cause error) *CoreError {
	if cat == "" {
		cat = categoryByType[kind]
		if cat == "" {
			cat = Permanent
		}
	}
	return &CoreError{Category: cat, Kind: kind, RunID: runID, Message: message, cause: cause}
}

func (e *CoreError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Category, e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s/%s: %s", e.Category, e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause so errors.Is/As traverse into it.
func (e *CoreError) Unwrap() error { return e.cause }

// As reports whether err's chain contains a *CoreError and returns it.
func As(err error) (*CoreError, bool) {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Retryable reports whether the error's category permits any form of
// automatic retry (Transient or Recoverable).
func (e *CoreError) Retryable() bool {
	return e.Category == Transient || e.Category == Recoverable
}
