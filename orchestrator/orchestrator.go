// Package orchestrator implements the Pipeline Orchestrator (spec.md §4.7,
// C7): admission, sequencing of the five fixed agents, checkpoint-skip on
// resume, retry escalation, and run completion. It is grounded on the
// teacher's runtime/agent/runtime workflow loop
// (workflow_loop.go/workflow_policy.go) — kept as a plain Go goroutine driven
// by the Recovery Store rather than a Temporal workflow, per this module's
// single-process durability model (see DESIGN.md).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/resumeforge/tailorcore/agents"
	"github.com/resumeforge/tailorcore/agents/analyzer"
	"github.com/resumeforge/tailorcore/agents/builder"
	"github.com/resumeforge/tailorcore/agents/polisher"
	"github.com/resumeforge/tailorcore/agents/strategy"
	"github.com/resumeforge/tailorcore/agents/validator"
	"github.com/resumeforge/tailorcore/config"
	"github.com/resumeforge/tailorcore/coreerrors"
	"github.com/resumeforge/tailorcore/eventbus"
	"github.com/resumeforge/tailorcore/insight"
	"github.com/resumeforge/tailorcore/model"
	"github.com/resumeforge/tailorcore/recovery"
	"github.com/resumeforge/tailorcore/registry"
)

// agentNames is the fixed 0..4 agent ordering (spec.md §2).
var agentNames = [5]string{"analyzer", "strategy", "builder", "validator", "polisher"}

// Logger is the narrow logging surface the Orchestrator needs; a
// telemetry.ClueLogger satisfies it structurally.
type Logger interface {
	Info(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

type noopLogger struct{}

func (noopLogger) Info(ctx context.Context, msg string, keyvals ...any)  {}
func (noopLogger) Error(ctx context.Context, msg string, keyvals ...any) {}

// RunRequest is the admission input (spec.md §3 RunRequest, §4.7 admission).
type RunRequest struct {
	ClientID       string
	ResumeText     string
	JobText        string
	JobURL         string
	LinkedInURL    string
	GithubUsername string
	// ModelOverrides carries a per-request model id override per agent,
	// keyed by config.AgentIndex; an empty value means "use the configured
	// default for this agent".
	ModelOverrides map[config.AgentIndex]string
}

// validate enforces spec.md §4.7 admission step 1.
func (r RunRequest) validate() error {
	if r.ResumeText == "" {
		return coreerrors.New(coreerrors.Permanent, coreerrors.TypeBadRequest, "", "resume_text is required", nil)
	}
	hasText, hasURL := r.JobText != "", r.JobURL != ""
	if hasText == hasURL {
		return coreerrors.New(coreerrors.Permanent, coreerrors.TypeBadRequest, "", "exactly one of job_text or job_url is required", nil)
	}
	return nil
}

// Orchestrator wires the Model Registry, Provider Façade, Event Bus, Recovery
// Store, and Insight Extractor into the spec.md §4.7 admission/sequencing/
// retry/completion pipeline.
type Orchestrator struct {
	Registry        *registry.Registry
	Store           recovery.Store
	Bus             *eventbus.Bus
	Insight         *insight.Extractor
	Config          *config.Config
	Client          model.Client
	JobFetcher      JobFetcher
	ProfileEnricher ProfileEnricher
	Logger          Logger
}

// New constructs an Orchestrator. JobFetcher/ProfileEnricher are set to the
// built-in HTTPJobFetcher/NoopProfileEnricher and Logger to a no-op; callers
// may replace these fields after construction.
func New(reg *registry.Registry, store recovery.Store, bus *eventbus.Bus, ins *insight.Extractor, cfg *config.Config, client model.Client) *Orchestrator {
	return &Orchestrator{
		Registry:        reg,
		Store:           store,
		Bus:             bus,
		Insight:         ins,
		Config:          cfg,
		Client:          client,
		JobFetcher:      NewHTTPJobFetcher(),
		ProfileEnricher: NoopProfileEnricher{},
		Logger:          noopLogger{},
	}
}

// StartRun performs admission (spec.md §4.7) synchronously and, on success,
// launches sequencing in a background goroutine. It returns the accepted
// run_id immediately; the caller observes progress via the Event Bus.
func (o *Orchestrator) StartRun(ctx context.Context, req RunRequest) (runID string, err error) {
	if err := req.validate(); err != nil {
		return "", err
	}

	jobText := req.JobText
	jobSource := "text"
	if req.JobURL != "" {
		jobSource = "url"
		fetchCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		text, ferr := o.JobFetcher.Fetch(fetchCtx, req.JobURL)
		cancel()
		if ferr != nil {
			return "", coreerrors.New(coreerrors.Permanent, coreerrors.TypeJobFetchFailed, "", "could not fetch job posting: "+ferr.Error(), ferr)
		}
		jobText = text
	}

	allowed, remaining, qerr := o.Store.IncrementAndCheckQuota(ctx, req.ClientID, o.Config.MaxFreeRuns)
	if qerr != nil {
		return "", coreerrors.New(coreerrors.Permanent, coreerrors.TypeInternal, "", "quota check failed", qerr)
	}
	if !allowed && !o.Config.DevMode {
		return "", coreerrors.New(coreerrors.Permanent, coreerrors.TypeQuotaExceeded, "", fmt.Sprintf("client %s has exhausted its free run quota", req.ClientID), nil)
	}
	if !allowed && o.Config.DevMode {
		o.Logger.Info(ctx, "dev_mode quota bypass", "client_id", req.ClientID, "remaining", remaining)
	}

	runID = uuid.NewString()
	sess := recovery.RecoverySession{
		RunID:  runID,
		Status: recovery.StatusPending,
		FormData: map[string]any{
			"client_id":       req.ClientID,
			"resume_text":     req.ResumeText,
			"job_text":        jobText,
			"job_source":      jobSource,
			"linkedin_url":    req.LinkedInURL,
			"github_username": req.GithubUsername,
			"model_overrides": overridesToMap(req.ModelOverrides),
		},
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(o.Config.SessionTTL),
	}
	if err := o.Store.CreateSession(ctx, sess); err != nil {
		return "", coreerrors.New(coreerrors.Permanent, coreerrors.TypeInternal, runID, "could not create recovery session", err)
	}

	go o.run(context.WithoutCancel(ctx), runID, req.ClientID, req.ResumeText, jobText, jobSource, req.LinkedInURL, req.GithubUsername, req.ModelOverrides)
	return runID, nil
}

func overridesToMap(m map[config.AgentIndex]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[fmt.Sprint(int(k))] = v
	}
	return out
}

// run executes the sequencing phase (spec.md §4.7) to completion or terminal
// failure. It is the body of the goroutine StartRun launches.
func (o *Orchestrator) run(ctx context.Context, runID, clientID, resumeText, jobText, jobSource, linkedInURL, githubUsername string, overrides map[config.AgentIndex]string) {
	runCtx, cancel := context.WithTimeout(ctx, o.Config.RunTimeout)
	defer cancel()

	if err := o.Store.UpdateSession(runCtx, runID, func(s *recovery.RecoverySession) {
		s.Status = recovery.StatusRunning
	}); err != nil {
		o.Logger.Error(runCtx, "failed to mark session running", "run_id", runID, "err", err)
		return
	}

	profileIndex := ""
	if linkedInURL != "" || githubUsername != "" {
		if p, perr := o.ProfileEnricher.Enrich(runCtx, linkedInURL, githubUsername); perr == nil {
			profileIndex = p
		} else {
			o.Logger.Error(runCtx, "profile enrichment failed, continuing without it", "run_id", runID, "err", perr)
		}
	}

	modelsByAgent := map[string]string{}
	for i, name := range agentNames {
		modelsByAgent[name] = o.Registry.DefaultModelFor(config.AgentIndex(i), overrides[config.AgentIndex(i)])
	}
	_, _ = o.Bus.Publish(runCtx, runID, eventbus.EventJobStarted, eventbus.JobStartedPayload{
		ResumeLength:  len(resumeText),
		JobSource:     jobSource,
		ModelsByAgent: modelsByAgent,
	})

	existing, err := o.Store.GetCheckpoints(runCtx, runID)
	if err != nil {
		o.failRun(runCtx, runID, coreerrors.New(coreerrors.Permanent, coreerrors.TypeInternal, runID, "could not load checkpoints", err))
		return
	}
	state := newPipelineState(existing)

	for idx := 0; idx < 5; idx++ {
		if cp, ok := state.checkpoint(idx); ok {
			state.loadFromCheckpoint(idx, cp)
			_, _ = o.Bus.Publish(runCtx, runID, eventbus.EventAgentStep, eventbus.AgentStepPayload{
				AgentIndex: idx, AgentName: agentNames[idx], Status: "completed",
				TokensIn: cp.TokensIn, TokensOut: cp.TokensOut, ThinkingTokens: cp.ThinkingTokens,
				CostMicroUSD: cp.CostMicroUSD, DurationMS: cp.DurationMS, FromCheckpoint: true,
			})
			continue
		}

		modelID := o.Registry.DefaultModelFor(config.AgentIndex(idx), overrides[config.AgentIndex(idx)])
		out, runErr := o.runAgentWithRetry(runCtx, runID, idx, modelID, resumeText, jobText, profileIndex, &state)
		if runErr != nil {
			o.failRun(runCtx, runID, runErr)
			return
		}

		cp := recovery.AgentCheckpoint{
			RunID: runID, AgentIndex: idx, OutputJSON: out.OutputJSON, RawText: out.RawText,
			TokensIn: out.TokensIn, TokensOut: out.TokensOut, ThinkingTokens: out.ThinkingTokens,
			CostMicroUSD: out.CostMicroUSD, ModelID: out.ModelID, DurationMS: out.DurationMS,
			CreatedAt: time.Now().UTC(),
		}
		if err := o.Store.SaveCheckpoint(runCtx, cp); err != nil {
			o.failRun(runCtx, runID, coreerrors.New(coreerrors.Permanent, coreerrors.TypeInternal, runID, "could not save checkpoint", err))
			return
		}
		if err := o.Store.UpdateSession(runCtx, runID, func(s *recovery.RecoverySession) {
			s.CompletedAgents = append(s.CompletedAgents, idx)
		}); err != nil {
			o.Logger.Error(runCtx, "failed to record completed agent", "run_id", runID, "agent_index", idx, "err", err)
		}
	}

	o.complete(runCtx, runID)
}

// runAgentWithRetry executes one agent applying spec.md §4.7's retry policy:
// TRANSIENT errors retry in-place up to 3 times with 2/4/8s backoff;
// RECOVERABLE errors retry once against the registry's configured fallback
// model, if any; PERMANENT errors fail immediately.
func (o *Orchestrator) runAgentWithRetry(ctx context.Context, runID string, idx int, modelID, resumeText, jobText, profileIndex string, state *pipelineState) (agents.AgentOutput, error) {
	_, _ = o.Bus.Publish(ctx, runID, eventbus.EventAgentStep, eventbus.AgentStepPayload{
		AgentIndex: idx, AgentName: agentNames[idx], Status: "started",
	})

	attemptModel := modelID
	var lastErr error
	transientAttempts := 0
	usedFallback := false

	for {
		out, err := o.runAgentOnce(ctx, runID, idx, attemptModel, resumeText, jobText, profileIndex, state)
		if err == nil {
			return out, nil
		}
		lastErr = err

		ce, ok := coreerrors.As(err)
		if !ok {
			return agents.AgentOutput{}, err
		}
		o.logAndRecordError(ctx, runID, ce)
		_, _ = o.Bus.Publish(ctx, runID, eventbus.EventAgentStep, eventbus.AgentStepPayload{
			AgentIndex: idx, AgentName: agentNames[idx], Status: "failed",
		})

		switch ce.Category {
		case coreerrors.Transient:
			if transientAttempts >= 3 {
				return agents.AgentOutput{}, lastErr
			}
			backoff := time.Duration(1<<uint(transientAttempts+1)) * time.Second
			transientAttempts++
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return agents.AgentOutput{}, ctx.Err()
			}
			continue
		case coreerrors.Recoverable:
			if usedFallback {
				return agents.AgentOutput{}, lastErr
			}
			info, lerr := o.Registry.Lookup(modelID)
			if lerr != nil || info.FallbackModelID == "" {
				return agents.AgentOutput{}, lastErr
			}
			attemptModel = info.FallbackModelID
			usedFallback = true
			continue
		default: // Permanent
			return agents.AgentOutput{}, lastErr
		}
	}
}

func (o *Orchestrator) runAgentOnce(ctx context.Context, runID string, idx int, modelID, resumeText, jobText, profileIndex string, state *pipelineState) (agents.AgentOutput, error) {
	agentCtx, cancel := context.WithTimeout(ctx, o.Config.AgentTimeout)
	defer cancel()

	var tap *insight.Tap
	if o.Insight != nil && isInsightProducing(idx) {
		tap = o.Insight.NewTap(agentCtx, runID, idx, idx)
		defer tap.Close()
	}

	rc := agents.RunContext{RunID: runID, ModelID: modelID, Client: o.Client, Pricer: o.Registry, Bus: o.Bus}
	if tap != nil {
		rc.Insight = tap
	}

	switch idx {
	case 0:
		raw, out, err := analyzer.Run(agentCtx, rc, analyzer.Inputs{JobText: jobText, ProfileIndex: profileIndex})
		if err != nil {
			return agents.AgentOutput{}, err
		}
		state.analyzer = out
		state.analyzerRaw = raw.OutputJSON
		return raw, nil
	case 1:
		raw, out, err := strategy.Run(agentCtx, rc, strategy.Inputs{ResumeText: resumeText, JobAnalysis: state.analyzerRaw})
		if err != nil {
			return agents.AgentOutput{}, err
		}
		state.strategy = out
		state.strategyRaw = raw.OutputJSON
		return raw, nil
	case 2:
		raw, out, err := builder.Run(agentCtx, rc, builder.Inputs{OriginalResume: resumeText, Strategy: state.strategyRaw, JobAnalysis: state.analyzerRaw})
		if err != nil {
			return agents.AgentOutput{}, err
		}
		state.builder = out
		state.builderRaw = raw.OutputJSON
		return raw, nil
	case 3:
		raw, out, err := validator.Run(agentCtx, rc, validator.Inputs{OriginalResume: resumeText, OptimizedResumeText: state.builder.OptimizedResumeText, JobAnalysis: state.analyzerRaw})
		if err != nil {
			return agents.AgentOutput{}, err
		}
		state.validator = out
		state.validatorRaw = raw.OutputJSON
		return raw, nil
	case 4:
		raw, out, err := polisher.Run(agentCtx, rc, polisher.Inputs{OptimizedResumeText: state.builder.OptimizedResumeText, Validation: state.validatorRaw})
		if err != nil {
			return agents.AgentOutput{}, err
		}
		state.polisher = out
		return raw, nil
	default:
		return agents.AgentOutput{}, fmt.Errorf("orchestrator: invalid agent index %d", idx)
	}
}

// isInsightProducing reports whether agentIndex is one of agents 1, 2, 3, 5
// (0-indexed: 0, 1, 2, 4) that produce user-visible text, per spec.md §4.5.
func isInsightProducing(agentIndex int) bool {
	return agentIndex != 3
}

func (o *Orchestrator) logAndRecordError(ctx context.Context, runID string, ce *coreerrors.CoreError) {
	errorID := uuid.NewString()
	sanitized := coreerrors.Sanitize(ce.Message)
	rec := recovery.ErrorRecord{
		ErrorID: errorID, RunID: runID, Category: string(ce.Category), Type: string(ce.Kind),
		Message: sanitized, StackTrace: ce.Error(), CreatedAt: time.Now().UTC(),
	}
	if err := o.Store.LogError(ctx, rec); err != nil {
		o.Logger.Error(ctx, "failed to persist error record", "run_id", runID, "err", err)
	}
	_, _ = o.Bus.Publish(ctx, runID, eventbus.EventError, eventbus.ErrorPayload{
		ErrorID: errorID, Category: string(ce.Category), Type: string(ce.Kind), Message: sanitized,
	})
}

// failRun marks the session failed and emits the terminal done event with a
// failed overall_status (spec.md §4.7 keeps the session for user retry; the
// Bus still needs exactly one terminal event per run).
func (o *Orchestrator) failRun(ctx context.Context, runID string, err error) {
	ce, ok := coreerrors.As(err)
	if !ok {
		ce = coreerrors.New(coreerrors.Permanent, coreerrors.TypeInternal, runID, err.Error(), err)
	}
	o.logAndRecordError(ctx, runID, ce)

	if uerr := o.Store.UpdateSession(ctx, runID, func(s *recovery.RecoverySession) {
		s.Status = recovery.StatusFailed
	}); uerr != nil {
		o.Logger.Error(ctx, "failed to mark session failed", "run_id", runID, "err", uerr)
	}

	checkpoints, _ := o.Store.GetCheckpoints(ctx, runID)
	_, _ = o.Bus.Publish(ctx, runID, eventbus.EventDone, eventbus.DonePayload{
		OverallStatus:   "failed",
		TotalCostMicro:  totalCost(checkpoints),
		CheckpointCount: len(checkpoints),
	})
}

// complete emits the run-cost metric and the terminal done event with
// succeeded status, then marks the session completed (spec.md §4.7
// completion), so a completed session always has a folded done snapshot.
func (o *Orchestrator) complete(ctx context.Context, runID string) {
	checkpoints, err := o.Store.GetCheckpoints(ctx, runID)
	if err != nil {
		o.Logger.Error(ctx, "failed to load checkpoints at completion", "run_id", runID, "err", err)
	}
	cost := totalCost(checkpoints)

	_, _ = o.Bus.Publish(ctx, runID, eventbus.EventMetric, eventbus.MetricPayload{
		Name: "run_total_cost_micro_usd", Value: float64(cost), Unit: "micro_usd",
	})
	_, _ = o.Bus.Publish(ctx, runID, eventbus.EventDone, eventbus.DonePayload{
		OverallStatus:   "succeeded",
		TotalCostMicro:  cost,
		CheckpointCount: len(checkpoints),
	})

	if uerr := o.Store.UpdateSession(ctx, runID, func(s *recovery.RecoverySession) {
		s.Status = recovery.StatusCompleted
	}); uerr != nil {
		o.Logger.Error(ctx, "failed to mark session completed", "run_id", runID, "err", uerr)
	}
}

func totalCost(checkpoints []recovery.AgentCheckpoint) int64 {
	var total int64
	for _, cp := range checkpoints {
		total += cp.CostMicroUSD
	}
	return total
}

// ErrMaxRetriesExceeded is returned by Retry when a session has exhausted
// spec.md §6's POST /optimize-retry max_retries budget.
var ErrMaxRetriesExceeded = errors.New("orchestrator: session has exceeded its retry budget")
