package orchestrator

import (
	"context"
	"fmt"
	"reflect"

	"github.com/resumeforge/tailorcore/config"
	"github.com/resumeforge/tailorcore/coreerrors"
	"github.com/resumeforge/tailorcore/recovery"
)

// MaxUserRetries bounds spec.md §6's POST /optimize-retry: a session that has
// already been retried this many times is no longer eligible and the
// endpoint returns 409.
const MaxUserRetries = 3

// Retry resumes a failed RecoverySession from its last completed checkpoint
// (spec.md §6 POST /optimize-retry). It re-enters sequencing exactly as a
// fresh run would, except every agent with an existing checkpoint is skipped
// (spec.md §4.7, §8 resume-correctness property).
func (o *Orchestrator) Retry(ctx context.Context, runID string) error {
	sess, err := o.Store.GetSession(ctx, runID)
	if err != nil {
		return err
	}
	if sess.Status == recovery.StatusCompleted {
		return coreerrors.New(coreerrors.Permanent, coreerrors.TypeBadRequest, runID, "run already completed", nil)
	}
	if sess.RetryCount >= MaxUserRetries {
		return ErrMaxRetriesExceeded
	}
	if sess.Status != recovery.StatusFailed {
		return coreerrors.New(coreerrors.Permanent, coreerrors.TypeBadRequest, runID, "run has not failed", nil)
	}

	if err := o.Store.UpdateSession(ctx, runID, func(s *recovery.RecoverySession) {
		s.RetryCount++
		s.Status = recovery.StatusPending
	}); err != nil {
		return err
	}

	clientID, _ := sess.FormData["client_id"].(string)
	resumeText, _ := sess.FormData["resume_text"].(string)
	jobText, _ := sess.FormData["job_text"].(string)
	jobSource, _ := sess.FormData["job_source"].(string)
	linkedInURL, _ := sess.FormData["linkedin_url"].(string)
	githubUsername, _ := sess.FormData["github_username"].(string)
	overrides := decodeOverrides(sess.FormData["model_overrides"])

	go o.run(context.WithoutCancel(ctx), runID, clientID, resumeText, jobText, jobSource, linkedInURL, githubUsername, overrides)
	return nil
}

// decodeOverrides tolerates both the map[string]string StartRun stores
// in-process and the named map type (e.g. bson.M) a round trip through a
// document store (recovery/mongo) produces instead: it walks v by
// reflection rather than asserting a single concrete map type, so this
// package stays independent of any particular recovery.Store backend.
func decodeOverrides(v any) map[config.AgentIndex]string {
	out := make(map[config.AgentIndex]string)
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Map {
		return out
	}
	for _, key := range rv.MapKeys() {
		k, ok := key.Interface().(string)
		if !ok {
			continue
		}
		val, ok := rv.MapIndex(key).Interface().(string)
		if !ok {
			continue
		}
		addOverride(out, k, val)
	}
	return out
}

func addOverride(out map[config.AgentIndex]string, key, val string) {
	var idx int
	if _, err := fmt.Sscanf(key, "%d", &idx); err == nil {
		out[config.AgentIndex(idx)] = val
	}
}
