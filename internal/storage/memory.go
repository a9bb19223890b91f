package storage

import (
	"context"
	"sync"

	"dgdinfer/internal/model"
)

type MemoryStore struct {
	mu              sync.RWMutex
	initialized     bool
	models          map[string]model.ModelRecord
	runs            map[string]model.RunRecord
	representations map[string]map[string]model.RepresentationRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.models = make(map[string]model.ModelRecord)
	s.runs = make(map[string]model.RunRecord)
	s.representations = make(map[string]map[string]model.RepresentationRecord)
	return nil
}

func (s *MemoryStore) SaveModel(_ context.Context, record model.ModelRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.models[record.ID] = record
	return nil
}

func (s *MemoryStore) GetModel(_ context.Context, id string) (model.ModelRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.models[id]
	return record, ok, nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	return cloneRun(run), true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, cloneRun(run))
	}
	sortRuns(runs)
	return runs, nil
}

func (s *MemoryStore) DeleteRun(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, id)
	delete(s.representations, id)
	return nil
}

func (s *MemoryStore) SaveRepresentation(_ context.Context, rep model.RepresentationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bySpace, ok := s.representations[rep.RunID]
	if !ok {
		bySpace = make(map[string]model.RepresentationRecord)
		s.representations[rep.RunID] = bySpace
	}
	rep.Values = cloneRows(rep.Values)
	bySpace[rep.Space] = rep
	return nil
}

func (s *MemoryStore) GetRepresentation(_ context.Context, runID, space string) (model.RepresentationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rep, ok := s.representations[runID][space]
	if !ok {
		return model.RepresentationRecord{}, false, nil
	}
	rep.Values = cloneRows(rep.Values)
	return rep, true, nil
}
