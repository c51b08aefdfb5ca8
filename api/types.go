package api

// startRunRequest is POST /pipeline/start's body (spec.md §6).
type startRunRequest struct {
	ResumeText     string            `json:"resume_text"`
	JobText        string            `json:"job_text"`
	JobURL         string            `json:"job_url"`
	LinkedInURL    string            `json:"linkedin_url"`
	GithubUsername string            `json:"github_username"`
	Models         *modelOverrideSet `json:"models"`
}

// modelOverrideSet is startRunRequest.models, one optional override per
// agent keyed by its public name (spec.md §6).
type modelOverrideSet struct {
	Analyzer    string `json:"analyzer"`
	Optimizer   string `json:"optimizer"`
	Implementer string `json:"implementer"`
	Validator   string `json:"validator"`
	Polish      string `json:"polish"`
}

// startRunResponse is POST /pipeline/start's 202 body.
type startRunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// retryRequest is POST /optimize-retry's body (spec.md §6).
type retryRequest struct {
	SessionID    string `json:"session_id"`
	CheckpointID string `json:"checkpoint_id"`
}

// retryResponse is POST /optimize-retry's 202 body.
type retryResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// sessionResponse is GET /recovery-session/{id}'s body.
type sessionResponse struct {
	RunID           string   `json:"run_id"`
	Status          string   `json:"status"`
	CompletedAgents []int    `json:"completed_agents"`
	RetryCount      int      `json:"retry_count"`
	ErrorMessage    string   `json:"error_message,omitempty"`
	ErrorType       string   `json:"error_type,omitempty"`
}

// snapshotResponse is GET /jobs/{run_id}/snapshot's body, built from
// eventbus.Snapshot's folded view (spec.md C3.snapshot). The Snapshot's
// Insights are not included in this body.
type snapshotResponse struct {
	RunID          string             `json:"run_id"`
	Status         string             `json:"status"`
	CurrentStep    int                `json:"current_step"`
	CompletedSteps []int              `json:"completed_steps"`
	Metrics        map[string]float64 `json:"metrics"`
	LastEventID    int64              `json:"last_event_id"`
}

// errorResponse is the JSON body for every non-2xx response.
type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
