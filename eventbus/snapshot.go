package eventbus

import "encoding/json"

// Snapshot is the Bus's derived view of a run, folded from its event
// sequence (spec.md §4.3). The Bus is the single source of truth; Snapshot is
// always reconstructible by replaying the journal from event_id 0.
type Snapshot struct {
	RunID          string
	Status         string
	CurrentStep    int
	CompletedSteps []int
	Metrics        map[string]float64
	Insights       []InsightPayload
	LastEventID    int64
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.CompletedSteps = append([]int(nil), s.CompletedSteps...)
	out.Insights = append([]InsightPayload(nil), s.Insights...)
	out.Metrics = make(map[string]float64, len(s.Metrics))
	for k, v := range s.Metrics {
		out.Metrics[k] = v
	}
	return out
}

// applyToSnapshot folds one event into the running Snapshot. Unknown or
// malformed payloads are ignored: the Bus never fails a Publish because a
// snapshot projection couldn't parse its own just-marshaled payload.
func applyToSnapshot(s *Snapshot, ev Event) {
	s.LastEventID = ev.EventID
	if s.Metrics == nil {
		s.Metrics = make(map[string]float64)
	}
	switch ev.Type {
	case EventJobStarted:
		s.Status = "running"
	case EventAgentStep:
		var p AgentStepPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return
		}
		s.CurrentStep = p.AgentIndex
		if p.Status == "completed" {
			s.CompletedSteps = append(s.CompletedSteps, p.AgentIndex)
		}
	case EventInsight:
		var p InsightPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return
		}
		s.Insights = append(s.Insights, p)
	case EventMetric:
		var p MetricPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return
		}
		s.Metrics[p.Name] = p.Value
	case EventDone:
		var p DonePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return
		}
		s.Status = p.OverallStatus
	case EventError:
		s.Status = "failed"
	}
}
