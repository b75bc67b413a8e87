package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"armlog/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	history     map[string][]float64
	traces      map[string][]model.ChannelTrace
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.history = make(map[string][]float64)
	s.traces = make(map[string][]model.ChannelTrace)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	run.EpisodeNumbers = append([]int(nil), run.EpisodeNumbers...)
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	run.EpisodeNumbers = append([]int(nil), run.EpisodeNumbers...)
	return run, true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		run.EpisodeNumbers = append([]int(nil), run.EpisodeNumbers...)
		runs = append(runs, run)
	}
	sortRuns(runs)
	return runs, nil
}

func (s *MemoryStore) DeleteRun(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, id)
	delete(s.history, id)
	delete(s.traces, id)
	return nil
}

func (s *MemoryStore) SaveFitnessHistory(_ context.Context, runID string, history []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	copied := append([]float64(nil), history...)
	s.history[runID] = copied
	return nil
}

func (s *MemoryStore) GetFitnessHistory(_ context.Context, runID string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	copied := append([]float64(nil), history...)
	return copied, true, nil
}

func (s *MemoryStore) SaveTraces(_ context.Context, runID string, traces []model.ChannelTrace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.traces[runID] = cloneTraces(traces)
	return nil
}

func (s *MemoryStore) GetTraces(_ context.Context, runID string) ([]model.ChannelTrace, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	traces, ok := s.traces[runID]
	if !ok {
		return nil, false, nil
	}
	return cloneTraces(traces), true, nil
}

func cloneTraces(traces []model.ChannelTrace) []model.ChannelTrace {
	copied := make([]model.ChannelTrace, 0, len(traces))
	for _, trace := range traces {
		copied = append(copied, model.ChannelTrace{
			ChannelID: trace.ChannelID,
			Values:    append([]float64(nil), trace.Values...),
		})
	}
	return copied
}

// sortRuns orders runs newest first; equal timestamps fall back to id.
func sortRuns(runs []model.RunRecord) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAtUTC == runs[j].CreatedAtUTC {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAtUTC > runs[j].CreatedAtUTC
	})
}
