package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"FinFolio/internal/domain/models"
	domrepo "FinFolio/internal/domain/repository"
)

// MemoryPortfolioStore keeps portfolio states in process. Update runs fn on a
// copy and swaps it in only on success, so readers never see partial state.
type MemoryPortfolioStore struct {
	mu     sync.RWMutex
	states map[string]*models.PortfolioState

	// commitHook runs after fn and before the swap; a non-nil error aborts the commit.
	commitHook func(*models.PortfolioState) error
}

func NewMemoryPortfolioStore() *MemoryPortfolioStore {
	return &MemoryPortfolioStore{states: make(map[string]*models.PortfolioState)}
}

func (s *MemoryPortfolioStore) Create(_ context.Context, state *models.PortfolioState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[state.Portfolio.ID]; ok {
		return domrepo.ErrPortfolioExists
	}
	s.states[state.Portfolio.ID] = state.Clone()
	return nil
}

func (s *MemoryPortfolioStore) Get(_ context.Context, id string) (*models.PortfolioState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[id]
	if !ok {
		return nil, domrepo.ErrPortfolioNotFound
	}
	return st.Clone(), nil
}

func (s *MemoryPortfolioStore) List(_ context.Context) ([]models.Portfolio, error) {
	s.mu.RLock()
	out := make([]models.Portfolio, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, st.Portfolio)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryPortfolioStore) Update(_ context.Context, id string, fn func(*models.PortfolioState) error) (*models.PortfolioState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.states[id]
	if !ok {
		return nil, domrepo.ErrPortfolioNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if s.commitHook != nil {
		if err := s.commitHook(next); err != nil {
			return nil, err
		}
	}
	s.states[id] = next
	return next.Clone(), nil
}

func (s *MemoryPortfolioStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[id]; !ok {
		return domrepo.ErrPortfolioNotFound
	}
	delete(s.states, id)
	return nil
}

func (s *MemoryPortfolioStore) Holders(_ context.Context, symbol string) ([]string, error) {
	symbol = strings.ToUpper(symbol)
	s.mu.RLock()
	var ids []string
	for id, st := range s.states {
		if st.Holds(symbol) {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}
