package repository

import (
	"context"
	"sort"
	"sync"

	"FinFolio/internal/domain/models"
	domrepo "FinFolio/internal/domain/repository"
)

// MemoryAnalysisLog is the in-process AnalysisLog used when ClickHouse is
// disabled and in tests.
type MemoryAnalysisLog struct {
	mu       sync.RWMutex
	requests map[string]models.AnalysisRequest
	records  []models.AnalysisRecord
}

func NewMemoryAnalysisLog() *MemoryAnalysisLog {
	return &MemoryAnalysisLog{requests: make(map[string]models.AnalysisRequest)}
}

func (m *MemoryAnalysisLog) SaveRequest(_ context.Context, req *models.AnalysisRequest) error {
	m.mu.Lock()
	m.requests[req.ID] = *req
	m.mu.Unlock()
	return nil
}

func (m *MemoryAnalysisLog) GetRequest(_ context.Context, id string) (*models.AnalysisRequest, error) {
	m.mu.RLock()
	r, ok := m.requests[id]
	m.mu.RUnlock()
	if !ok {
		return nil, domrepo.ErrRequestNotFound
	}
	return &r, nil
}

func (m *MemoryAnalysisLog) AppendRecord(_ context.Context, rec *models.AnalysisRecord) error {
	m.mu.Lock()
	m.records = append(m.records, *rec)
	m.mu.Unlock()
	return nil
}

func (m *MemoryAnalysisLog) History(_ context.Context, f domrepo.HistoryFilter) ([]models.AnalysisRecord, error) {
	m.mu.RLock()
	out := make([]models.AnalysisRecord, 0, len(m.records))
	for _, r := range m.records {
		if f.Kind != "" && r.Scope.Kind != f.Kind {
			continue
		}
		if f.ID != "" && r.Scope.ID != f.ID {
			continue
		}
		out = append(out, r)
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].GeneratedAt.After(out[j].GeneratedAt) })
	if n := historyLimit(f.Limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}
