package orchestrator

import (
	"encoding/json"

	"github.com/resumeforge/tailorcore/agents/analyzer"
	"github.com/resumeforge/tailorcore/agents/builder"
	"github.com/resumeforge/tailorcore/agents/polisher"
	"github.com/resumeforge/tailorcore/agents/strategy"
	"github.com/resumeforge/tailorcore/agents/validator"
	"github.com/resumeforge/tailorcore/recovery"
)

// pipelineState threads each agent's typed output into the next agent's
// typed inputs (spec.md §4.6's per-agent input contracts), and is
// reconstructed from stored checkpoints on resume rather than recomputed,
// per spec.md §8's resume-correctness property ("outputs are byte-identical
// to the first attempt").
type pipelineState struct {
	existing map[int]recovery.AgentCheckpoint

	analyzer    analyzer.Output
	analyzerRaw json.RawMessage

	strategy    strategy.Output
	strategyRaw json.RawMessage

	builder    builder.Output
	builderRaw json.RawMessage

	validator    validator.Output
	validatorRaw json.RawMessage

	polisher polisher.Output
}

func newPipelineState(existing []recovery.AgentCheckpoint) pipelineState {
	m := make(map[int]recovery.AgentCheckpoint, len(existing))
	for _, cp := range existing {
		m[cp.AgentIndex] = cp
	}
	return pipelineState{existing: m}
}

func (s *pipelineState) checkpoint(idx int) (recovery.AgentCheckpoint, bool) {
	cp, ok := s.existing[idx]
	return cp, ok
}

// loadFromCheckpoint unmarshals a previously persisted checkpoint's output
// back into the typed field the next agent's Inputs are built from, so a
// resumed run never re-executes an agent whose checkpoint already exists
// (spec.md §4.7 sequencing, "skip execution").
func (s *pipelineState) loadFromCheckpoint(idx int, cp recovery.AgentCheckpoint) {
	switch idx {
	case 0:
		_ = json.Unmarshal(cp.OutputJSON, &s.analyzer)
		s.analyzerRaw = cp.OutputJSON
	case 1:
		_ = json.Unmarshal(cp.OutputJSON, &s.strategy)
		s.strategyRaw = cp.OutputJSON
	case 2:
		_ = json.Unmarshal(cp.OutputJSON, &s.builder)
		s.builderRaw = cp.OutputJSON
	case 3:
		_ = json.Unmarshal(cp.OutputJSON, &s.validator)
		s.validatorRaw = cp.OutputJSON
	case 4:
		_ = json.Unmarshal(cp.OutputJSON, &s.polisher)
	}
}
