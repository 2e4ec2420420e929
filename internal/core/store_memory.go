package core

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is a SelectionStore kept in process memory. It backs tests
// and callers embedding the service.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[uuid.UUID]*ProjectState
	events   map[uuid.UUID][]SelectionEvent
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[uuid.UUID]*ProjectState),
		events:   make(map[uuid.UUID][]SelectionEvent),
	}
}

func (m *MemoryStore) project(projectID uuid.UUID) *ProjectState {
	p, ok := m.projects[projectID]
	if !ok {
		p = &ProjectState{Layers: make(map[string]SelectionMap)}
		m.projects[projectID] = p
	}
	return p
}

func (m *MemoryStore) LoadProject(ctx context.Context, projectID uuid.UUID) (ProjectState, error) {
	if err := ctx.Err(); err != nil {
		return ProjectState{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.projects[projectID]
	if !ok {
		return ProjectState{Layers: make(map[string]SelectionMap)}, nil
	}
	state := ProjectState{
		Sectors: slices.Clone(p.Sectors),
		Layers:  make(map[string]SelectionMap, len(p.Layers)),
	}
	for layer, sel := range p.Layers {
		state.Layers[layer] = cloneSelectionMap(sel)
	}
	return state, nil
}

func (m *MemoryStore) SaveSectors(ctx context.Context, projectID uuid.UUID, sectorIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.project(projectID).Sectors = slices.Clone(sectorIDs)
	return nil
}

func (m *MemoryStore) SaveSelection(ctx context.Context, projectID uuid.UUID, layer string, selection SelectionMap) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.project(projectID).Layers[layer] = cloneSelectionMap(selection)
	return nil
}

func (m *MemoryStore) RecordEvent(ctx context.Context, event SelectionEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.ProjectID] = append(m.events[event.ProjectID], event)
	return nil
}

// ListEvents returns up to limit events, newest first.
func (m *MemoryStore) ListEvents(ctx context.Context, projectID uuid.UUID, limit int) ([]SelectionEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.events[projectID]
	out := make([]SelectionEvent, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func cloneSelectionMap(sel SelectionMap) SelectionMap {
	out := make(SelectionMap, len(sel))
	for sectorID, ids := range sel {
		out[sectorID] = slices.Clone(ids)
	}
	return out
}

var (
	_ SelectionStore = (*MemoryStore)(nil)
	_ SelectionStore = (*PostgresStore)(nil)
)
