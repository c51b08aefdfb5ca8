// Package inmem provides an in-memory recovery.Store, grounded on the
// teacher's clients/mongo/inmem fakes (session/mongo/clients/mongo/inmem):
// a mutex-protected map standing in for a real backend, exercising the same
// interface so tests never need a live MongoDB.
package inmem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/resumeforge/tailorcore/coreerrors"
	"github.com/resumeforge/tailorcore/eventbus"
	"github.com/resumeforge/tailorcore/recovery"
)

// Store is an in-memory recovery.Store implementation.
type Store struct {
	mu sync.Mutex

	sessions    map[string]recovery.RecoverySession
	checkpoints map[string][]recovery.AgentCheckpoint // runID -> ordered by AgentIndex
	errors      map[string][]recovery.ErrorRecord
	events      map[string][]eventbus.Event
	quota       map[string]int
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		sessions:    make(map[string]recovery.RecoverySession),
		checkpoints: make(map[string][]recovery.AgentCheckpoint),
		errors:      make(map[string][]recovery.ErrorRecord),
		events:      make(map[string][]eventbus.Event),
		quota:       make(map[string]int),
	}
}

func (s *Store) CreateSession(ctx context.Context, sess recovery.RecoverySession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.RunID] = sess
	return nil
}

func (s *Store) GetSession(ctx context.Context, runID string) (recovery.RecoverySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[runID]
	if !ok {
		return recovery.RecoverySession{}, recovery.ErrNotFound
	}
	return sess, nil
}

func (s *Store) UpdateSession(ctx context.Context, runID string, mutate func(*recovery.RecoverySession)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[runID]
	if !ok {
		return recovery.ErrNotFound
	}
	mutate(&sess)
	s.sessions[runID] = sess
	return nil
}

func (s *Store) SaveCheckpoint(ctx context.Context, cp recovery.AgentCheckpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[cp.RunID]
	if !ok {
		return recovery.ErrNotFound
	}

	existing := s.checkpoints[cp.RunID]
	idx := -1
	for i, e := range existing {
		if e.AgentIndex == cp.AgentIndex {
			idx = i
			break
		}
	}
	if idx >= 0 {
		if sess.Status == recovery.StatusCompleted {
			return coreerrors.New(coreerrors.Permanent, coreerrors.TypeInternal, cp.RunID, "cannot replace checkpoint on a completed run", nil)
		}
		existing[idx] = cp
		s.checkpoints[cp.RunID] = existing
		return nil
	}

	if cp.AgentIndex != len(existing) {
		return coreerrors.New(coreerrors.Permanent, coreerrors.TypeInternal, cp.RunID, "checkpoint ordering violation: preceding agent checkpoints are missing", nil)
	}
	s.checkpoints[cp.RunID] = append(existing, cp)
	return nil
}

func (s *Store) GetCheckpoints(ctx context.Context, runID string) ([]recovery.AgentCheckpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]recovery.AgentCheckpoint, len(s.checkpoints[runID]))
	copy(out, s.checkpoints[runID])
	sort.Slice(out, func(i, j int) bool { return out[i].AgentIndex < out[j].AgentIndex })
	return out, nil
}

func (s *Store) LogError(ctx context.Context, rec recovery.ErrorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors[rec.RunID] = append(s.errors[rec.RunID], rec)
	return nil
}

func (s *Store) DeleteSession(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[runID]; !ok {
		return recovery.ErrNotFound
	}
	delete(s.sessions, runID)
	delete(s.checkpoints, runID)
	delete(s.errors, runID)
	delete(s.events, runID)
	return nil
}

func (s *Store) CleanupExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for runID, sess := range s.sessions {
		if sess.Status.Terminal() && now.After(sess.ExpiresAt) {
			delete(s.sessions, runID)
			delete(s.checkpoints, runID)
			delete(s.errors, runID)
			delete(s.events, runID)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) IncrementAndCheckQuota(ctx context.Context, clientID string, cap int) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.quota[clientID]
	if current >= cap {
		return false, 0, nil
	}
	current++
	s.quota[clientID] = current
	return true, cap - current, nil
}

// RecordEvent implements eventbus.Journal.
func (s *Store) RecordEvent(ctx context.Context, ev eventbus.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.RunID] = append(s.events[ev.RunID], ev)
	return nil
}

// ReadEventsAfter implements eventbus.Journal.
func (s *Store) ReadEventsAfter(ctx context.Context, runID string, afterEventID int64) ([]eventbus.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []eventbus.Event
	for _, ev := range s.events[runID] {
		if ev.EventID > afterEventID {
			out = append(out, ev)
		}
	}
	return out, nil
}

var _ recovery.Store = (*Store)(nil)
