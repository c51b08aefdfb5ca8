package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumeforge/tailorcore/api"
	"github.com/resumeforge/tailorcore/config"
	"github.com/resumeforge/tailorcore/eventbus"
	"github.com/resumeforge/tailorcore/model"
	"github.com/resumeforge/tailorcore/orchestrator"
	"github.com/resumeforge/tailorcore/recovery"
	"github.com/resumeforge/tailorcore/recovery/inmem"
	"github.com/resumeforge/tailorcore/registry"
)

var agentPayloads = []string{
	`{"job_title":"Senior Python Engineer","company":"Acme","requirements":{"must_have":["python"],"nice_to_have":["aws"]},"keywords":["python","aws"],"role_signals":{"seniority":"senior","tech_stack":["python"]}}`,
	`{"strategy":{"sections_to_modify":["summary"],"keyword_plan":["python"],"experience_mapping":["highlight backend work"],"highlights":["led migration"]},"rationale":"align with job requirements"}`,
	`{"optimized_resume_text":"Jane Doe - Senior Python Engineer with AWS experience.","changes":[{"section":"summary","reason":"added keywords"}]}`,
	"Here is my assessment.\nBEGIN_VALIDATION_SCORES_JSON\n" +
		`{"scores": {"requirements_match": 80, "ats_optimization": 70, "cultural_fit": 90, "presentation_quality": 60, "competitive_positioning": 100}, "red_flags": [], "recommendations": ["tighten summary"]}` +
		"\nEND_VALIDATION_SCORES_JSON\n",
	`{"polished_resume_text":"Jane Doe - Senior Python Engineer with AWS experience, polished.","export_artifact":{"template":"default","sections":[{"heading":"Summary","body":"Senior Python Engineer."}],"style":{"font":"Arial","accent_color":"#1a1a1a"}}}`,
}

var promptMarkers = []string{
	"analysis specialist",
	"optimization strategist",
	"You are a resume writer",
	"quality validator",
	"final-pass",
}

type fakeStreamer struct {
	text string
	idx  int
}

func (f *fakeStreamer) Recv() (model.Chunk, error) {
	switch f.idx {
	case 0:
		f.idx++
		return model.Chunk{Type: model.ChunkDeltaText, DeltaText: f.text}, nil
	case 1:
		f.idx++
		return model.Chunk{Type: model.ChunkUsageUpdate, Usage: &model.TokenUsage{InputTokens: 500, OutputTokens: 200}}, nil
	case 2:
		f.idx++
		return model.Chunk{Type: model.ChunkFinishReason, FinishReason: "stop"}, nil
	default:
		return model.Chunk{}, io.EOF
	}
}

func (f *fakeStreamer) Close() error { return nil }

type fakeClient struct{}

func (fakeClient) GenerateStream(ctx context.Context, req model.Request) (model.Streamer, error) {
	for i, marker := range promptMarkers {
		if strings.Contains(req.SystemInstruction, marker) {
			return &fakeStreamer{text: agentPayloads[i]}, nil
		}
	}
	return &fakeStreamer{text: agentPayloads[0]}, nil
}

func newTestServer(t *testing.T) (*api.Server, *inmem.Store) {
	t.Helper()
	cfg := &config.Config{
		DefaultModel: "test::model",
		MaxFreeRuns:  5,
		AgentTimeout: 5 * time.Second,
		RunTimeout:   10 * time.Second,
		SessionTTL:   time.Hour,
	}
	reg := registry.New(cfg)
	reg.Register(registry.ModelInfo{Provider: "test", ModelName: "model", InputPricePerMillion: 1, OutputPricePerMillion: 1})
	store := inmem.New()
	bus := eventbus.New(store, 0, 0)
	orch := orchestrator.New(reg, store, bus, nil, cfg, fakeClient{})
	return api.NewServer(orch, bus, store, nil, nil), store
}

func waitTerminal(t *testing.T, store recovery.Store, runID string) recovery.RecoverySession {
	t.Helper()
	var sess recovery.RecoverySession
	require.Eventually(t, func() bool {
		s, err := store.GetSession(context.Background(), runID)
		if err != nil {
			return false
		}
		sess = s
		return s.Status.Terminal()
	}, 3*time.Second, 5*time.Millisecond, "run never reached a terminal status")
	return sess
}

func TestStartRunRequiresClientIDHeader(t *testing.T) {
	srv, _ := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"resume_text": "resume", "job_text": "job"})
	req := httptest.NewRequest(http.MethodPost, "/pipeline/start", bytes.NewReader(body))
	w := httptest.NewRecorder()

	srv.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartRunHappyPathReturnsRunIDAndCompletes(t *testing.T) {
	srv, store := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"resume_text": "resume text", "job_text": "job description"})
	req := httptest.NewRequest(http.MethodPost, "/pipeline/start", bytes.NewReader(body))
	req.Header.Set(api.ClientIDHeader, "client-1")
	w := httptest.NewRecorder()

	srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		RunID  string `json:"run_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, "pending", resp.Status)

	sess := waitTerminal(t, store, resp.RunID)
	assert.Equal(t, recovery.StatusCompleted, sess.Status)

	snapReq := httptest.NewRequest(http.MethodGet, "/jobs/"+resp.RunID+"/snapshot", nil)
	snapW := httptest.NewRecorder()
	srv.ServeHTTP(snapW, snapReq)
	require.Equal(t, http.StatusOK, snapW.Code)

	var snap struct {
		Status         string `json:"status"`
		CompletedSteps []int  `json:"completed_steps"`
	}
	require.NoError(t, json.Unmarshal(snapW.Body.Bytes(), &snap))
	assert.Equal(t, "succeeded", snap.Status)
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4}, snap.CompletedSteps)
}

func TestStartRunRejectsQuotaExhaustion(t *testing.T) {
	srv, _ := newTestServer(t)
	for i := 0; i < 5; i++ {
		body, _ := json.Marshal(map[string]string{"resume_text": "resume", "job_text": "job"})
		req := httptest.NewRequest(http.MethodPost, "/pipeline/start", bytes.NewReader(body))
		req.Header.Set(api.ClientIDHeader, "client-quota")
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)
		require.Equal(t, http.StatusAccepted, w.Code)
	}

	body, _ := json.Marshal(map[string]string{"resume_text": "resume", "job_text": "job"})
	req := httptest.NewRequest(http.MethodPost, "/pipeline/start", bytes.NewReader(body))
	req.Header.Set(api.ClientIDHeader, "client-quota")
	w := httptest.NewRecorder()

	srv.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3600", w.Header().Get("Retry-After"))
}

func TestGetAndDeleteRecoverySession(t *testing.T) {
	srv, store := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"resume_text": "resume", "job_text": "job"})
	startReq := httptest.NewRequest(http.MethodPost, "/pipeline/start", bytes.NewReader(body))
	startReq.Header.Set(api.ClientIDHeader, "client-2")
	startW := httptest.NewRecorder()
	srv.ServeHTTP(startW, startReq)
	require.Equal(t, http.StatusAccepted, startW.Code)

	var started struct {
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal(startW.Body.Bytes(), &started))
	waitTerminal(t, store, started.RunID)

	getReq := httptest.NewRequest(http.MethodGet, "/recovery-session/"+started.RunID, nil)
	getW := httptest.NewRecorder()
	srv.ServeHTTP(getW, getReq)
	require.Equal(t, http.StatusOK, getW.Code)

	delReq := httptest.NewRequest(http.MethodDelete, "/recovery-session/"+started.RunID, nil)
	delW := httptest.NewRecorder()
	srv.ServeHTTP(delW, delReq)
	assert.Equal(t, http.StatusNoContent, delW.Code)

	getAgainReq := httptest.NewRequest(http.MethodGet, "/recovery-session/"+started.RunID, nil)
	getAgainW := httptest.NewRecorder()
	srv.ServeHTTP(getAgainW, getAgainReq)
	assert.Equal(t, http.StatusNotFound, getAgainW.Code)
}

func TestExportWithoutRendererReturnsBadGateway(t *testing.T) {
	srv, store := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"resume_text": "resume", "job_text": "job"})
	startReq := httptest.NewRequest(http.MethodPost, "/pipeline/start", bytes.NewReader(body))
	startReq.Header.Set(api.ClientIDHeader, "client-3")
	startW := httptest.NewRecorder()
	srv.ServeHTTP(startW, startReq)
	require.Equal(t, http.StatusAccepted, startW.Code)

	var started struct {
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal(startW.Body.Bytes(), &started))
	waitTerminal(t, store, started.RunID)

	exportReq := httptest.NewRequest(http.MethodGet, "/export/"+started.RunID+"?format=docx", nil)
	exportW := httptest.NewRecorder()
	srv.ServeHTTP(exportW, exportReq)

	assert.Equal(t, http.StatusBadGateway, exportW.Code)
}
