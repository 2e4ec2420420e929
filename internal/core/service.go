package core

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/indicators/internal/filter"
	"github.com/JonMunkholm/indicators/internal/indicator"
)

// DefaultEventLimit is the page size of Events when the caller passes none.
const DefaultEventLimit = 50

// Options configures a Service.
type Options struct {
	Limits     Limits
	EventLimit int
	// Filters compiles query expressions. Defaults to a new compiler.
	Filters *filter.Compiler
	Logger  *slog.Logger
	// Now stamps selection events. Defaults to time.Now.
	Now func() time.Time
}

// Service provides project selection operations on top of the indicator
// engine. Projects are loaded from the store on every call; writes to one
// project are serialized within the process.
type Service struct {
	catalog    *indicator.Catalog
	store      SelectionStore
	filters    *filter.Compiler
	limits     Limits
	eventLimit int
	logger     *slog.Logger
	now        func() time.Time

	locks sync.Map // uuid.UUID -> *sync.Mutex
}

// NewService creates a new Service instance.
func NewService(catalog *indicator.Catalog, store SelectionStore, opts Options) (*Service, error) {
	if catalog == nil {
		return nil, fmt.Errorf("new service: catalog is required")
	}
	if store == nil {
		return nil, fmt.Errorf("new service: store is required")
	}
	if LayerCount() == 0 {
		return nil, fmt.Errorf("new service: no layers registered")
	}

	s := &Service{
		catalog:    catalog,
		store:      store,
		filters:    opts.Filters,
		limits:     opts.Limits,
		eventLimit: opts.EventLimit,
		logger:     opts.Logger,
		now:        opts.Now,
	}
	if s.filters == nil {
		compiler, err := filter.NewCompiler()
		if err != nil {
			return nil, fmt.Errorf("new service: %w", err)
		}
		s.filters = compiler
	}
	if s.eventLimit <= 0 {
		s.eventLimit = DefaultEventLimit
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Catalog returns the unrestricted catalog the service was built with.
func (s *Service) Catalog() *indicator.Catalog {
	return s.catalog
}

// Layers returns the registered layers, supersets first.
func (s *Service) Layers() []LayerDefinition {
	return All()
}

// Project is a loaded project: one engine per layer, each restricted by
// its superset's current selection.
type Project struct {
	ID      uuid.UUID
	Sectors []indicator.Sector
	engines map[string]*indicator.Engine
}

// Engine returns the engine of a layer.
func (p *Project) Engine(layer string) (*indicator.Engine, error) {
	e, ok := p.engines[layer]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLayer, layer)
	}
	return e, nil
}

// HasSector reports whether sectorID is in the project's scope.
func (p *Project) HasSector(sectorID string) bool {
	return slices.ContainsFunc(p.Sectors, func(s indicator.Sector) bool { return s.ID == sectorID })
}

// Load reads a project and builds its layer engines in dependency order.
func (s *Service) Load(ctx context.Context, projectID uuid.UUID) (*Project, error) {
	state, err := s.store.LoadProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", projectID, err)
	}

	p := &Project{ID: projectID, engines: make(map[string]*indicator.Engine)}
	if len(state.Sectors) == 0 {
		p.Sectors = s.catalog.Sectors()
	} else {
		for _, id := range state.Sectors {
			sector, ok := s.catalog.Sector(id)
			if !ok {
				s.logger.Warn("project sector not in catalog, ignored", "project_id", projectID, "sector", id)
				continue
			}
			p.Sectors = append(p.Sectors, sector)
		}
	}

	for _, def := range All() {
		base := s.catalog
		if def.SuperSet != "" {
			base = s.catalog.WithSuperSet(p.engines[def.SuperSet])
		}
		p.engines[def.Key] = indicator.NewEngine(base, indicator.NewSelection(state.Layers[def.Key]))
	}
	return p, nil
}

// lock serializes writes to one project.
func (s *Service) lock(projectID uuid.UUID) func() {
	mu, _ := s.locks.LoadOrStore(projectID, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// checkSector verifies sectorID exists and belongs to the project.
func (s *Service) checkSector(p *Project, sectorID string) error {
	if _, ok := s.catalog.Sector(sectorID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSector, sectorID)
	}
	if !p.HasSector(sectorID) {
		return fmt.Errorf("%w: %s", ErrSectorNotInProject, sectorID)
	}
	return nil
}

// checkIndicators verifies ids are offered by the layer in sectorID and may
// be selected by the caller. A narrower layer only offers what its superset
// selected. Ids already selected in sectorID may stay selected.
func (s *Service) checkIndicators(ctx context.Context, e *indicator.Engine, sectorID string, ids []string) error {
	privileged := IsPrivileged(ctx)
	for _, id := range ids {
		ind, ok := s.catalog.Indicator(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownIndicator, id)
		}
		kept := e.Selection().Has(sectorID, id)
		if !kept && !e.Catalog().Lists(sectorID, id) {
			return fmt.Errorf("%w: %s is not offered in sector %s", ErrUnknownIndicator, id, sectorID)
		}
		if !ind.Selectable && !privileged && !kept {
			return fmt.Errorf("%w: %s", ErrNotSelectable, id)
		}
	}
	return nil
}

// syncDependents re-restricts every layer below layer and reports the
// selections that fell out of their catalogs.
func (p *Project) syncDependents(layer string) ([]string, map[string]SelectionMap) {
	var synced []string
	orphans := make(map[string]SelectionMap)
	for _, dep := range Dependents(layer) {
		next := p.engines[dep.Key].UpdateSuperSet(p.engines[dep.SuperSet])
		p.engines[dep.Key] = next
		synced = append(synced, dep.Key)
		if lost := next.SelectedNotInCatalog(); len(lost) > 0 {
			orphans[dep.Key] = lost
		}
	}
	return synced, orphans
}

// Select replaces the selection of one sector of a layer, resolving
// relations, and re-restricts the layers that depend on it.
func (s *Service) Select(ctx context.Context, projectID uuid.UUID, layer, sectorID string, ids []string) (*SelectResult, error) {
	unlock := s.lock(projectID)
	defer unlock()

	p, err := s.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	engine, err := p.Engine(layer)
	if err != nil {
		return nil, err
	}
	if err := s.checkSector(p, sectorID); err != nil {
		return nil, err
	}
	if err := s.checkIndicators(ctx, engine, sectorID, ids); err != nil {
		return nil, err
	}

	next, info := engine.UpdateSelectedWithRelations(sectorID, ids)
	p.engines[layer] = next
	synced, orphans := p.syncDependents(layer)

	selection := next.Selection().Map()
	if err := s.store.SaveSelection(ctx, projectID, layer, selection); err != nil {
		return nil, fmt.Errorf("save selection: %w", err)
	}

	eventID := s.recordEvent(ctx, eventParams{
		ProjectID: projectID,
		Layer:     layer,
		Action:    ActionSelect,
		SectorID:  sectorID,
		Requested: ids,
		Result:    selection,
		Messages:  info.Messages,
	})

	s.logger.Info("selection updated",
		"project_id", projectID,
		"layer", layer,
		"sector", sectorID,
		"requested", len(ids),
		"auto_selected", len(info.Selected),
		"unselectable", len(info.Unselectable),
		"synced_layers", len(synced),
	)

	return &SelectResult{
		Layer:     layer,
		Selection: selection,
		Info:      info,
		Synced:    synced,
		Orphans:   orphans,
		EventID:   eventID,
	}, nil
}

// Replace merges patch into a layer without resolving relations. Each
// sector in patch replaces that sector's selection.
func (s *Service) Replace(ctx context.Context, projectID uuid.UUID, layer string, patch SelectionMap) (*SelectResult, error) {
	unlock := s.lock(projectID)
	defer unlock()

	p, err := s.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	engine, err := p.Engine(layer)
	if err != nil {
		return nil, err
	}
	for sectorID, ids := range patch {
		if err := s.checkSector(p, sectorID); err != nil {
			return nil, err
		}
		if err := s.checkIndicators(ctx, engine, sectorID, ids); err != nil {
			return nil, err
		}
	}

	next := engine.UpdateSelected(patch)
	p.engines[layer] = next
	synced, orphans := p.syncDependents(layer)

	selection := next.Selection().Map()
	if err := s.store.SaveSelection(ctx, projectID, layer, selection); err != nil {
		return nil, fmt.Errorf("save selection: %w", err)
	}

	eventID := s.recordEvent(ctx, eventParams{
		ProjectID: projectID,
		Layer:     layer,
		Action:    ActionReplace,
		Result:    selection,
	})

	return &SelectResult{
		Layer:     layer,
		Selection: selection,
		Synced:    synced,
		Orphans:   orphans,
		EventID:   eventID,
	}, nil
}

// SetSectors sets the project's sectors and drops every layer's selection
// outside them. An empty list puts every catalog sector in scope.
func (s *Service) SetSectors(ctx context.Context, projectID uuid.UUID, sectorIDs []string) error {
	for _, id := range sectorIDs {
		if _, ok := s.catalog.Sector(id); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownSector, id)
		}
	}
	keep := sectorIDs
	if len(keep) == 0 {
		for _, sector := range s.catalog.Sectors() {
			keep = append(keep, sector.ID)
		}
	}

	unlock := s.lock(projectID)
	defer unlock()

	p, err := s.Load(ctx, projectID)
	if err != nil {
		return err
	}

	// Selections are trimmed before the scope is stored, so a failure
	// leaves the old scope in place and a retry finishes the trim.
	for _, def := range All() {
		next := p.engines[def.Key].KeepSelectionInSectors(keep)
		if next.Selection().Equal(p.engines[def.Key].Selection()) {
			continue
		}
		if err := s.store.SaveSelection(ctx, projectID, def.Key, next.Selection().Map()); err != nil {
			return fmt.Errorf("save selection: %w", err)
		}
	}
	if err := s.store.SaveSectors(ctx, projectID, sectorIDs); err != nil {
		return fmt.Errorf("save sectors: %w", err)
	}

	s.recordEvent(ctx, eventParams{
		ProjectID: projectID,
		Action:    ActionSetSectors,
		Requested: sectorIDs,
	})
	s.logger.Info("project sectors updated", "project_id", projectID, "sectors", len(sectorIDs))
	return nil
}

// Query lists the indicators of a layer within the project's sectors.
// Restricted indicators are only listed for privileged callers or when
// already selected.
func (s *Service) Query(ctx context.Context, projectID uuid.UUID, layer string, req QueryRequest) ([]indicator.SectorIndicator, error) {
	p, err := s.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, p, layer, req)
}

func (s *Service) query(ctx context.Context, p *Project, layer string, req QueryRequest) ([]indicator.SectorIndicator, error) {
	engine, err := p.Engine(layer)
	if err != nil {
		return nil, err
	}
	if req.SectorID != "" {
		if err := s.checkSector(p, req.SectorID); err != nil {
			return nil, err
		}
	}

	preds := []func(indicator.SectorIndicator) bool{
		func(si indicator.SectorIndicator) bool { return p.HasSector(si.Sector.ID) },
	}
	if !IsPrivileged(ctx) {
		sel := engine.Selection()
		preds = append(preds, func(si indicator.SectorIndicator) bool {
			return si.Selectable || sel.Has(si.Sector.ID, si.ID)
		})
	}
	if req.Where != nil {
		preds = append(preds, req.Where)
	}
	if req.Expr != "" {
		where, err := s.filters.Compile(req.Expr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
		preds = append(preds, where)
	}

	opts := req.QueryOptions
	opts.Where = func(si indicator.SectorIndicator) bool {
		for _, pred := range preds {
			if !pred(si) {
				return false
			}
		}
		return true
	}

	if req.SortByKey {
		return engine.GetSorted(opts), nil
	}
	return engine.Get(opts), nil
}

// Validate runs the layer's rules over the project's sectors.
func (s *Service) Validate(ctx context.Context, projectID uuid.UUID, layer string) (*ValidationReport, error) {
	p, err := s.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.validate(p, layer)
}

func (s *Service) validate(p *Project, layer string) (*ValidationReport, error) {
	def, ok := Get(layer)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLayer, layer)
	}
	engine, err := p.Engine(layer)
	if err != nil {
		return nil, err
	}

	messages := runRules(def.Validate, engine.Selection(), p.Sectors, s.limits)
	return &ValidationReport{
		Layer:    layer,
		Valid:    len(messages) == 0,
		Messages: messages,
		Checked:  s.now().UTC(),
	}, nil
}

// LayerOverview is one read of a layer: the queried rows, the selection
// they were listed against and the validation report.
type LayerOverview struct {
	Rows      []indicator.SectorIndicator
	Selection indicator.Selection
	Report    *ValidationReport
}

// Overview queries and validates a layer from a single project load.
func (s *Service) Overview(ctx context.Context, projectID uuid.UUID, layer string, req QueryRequest) (*LayerOverview, error) {
	p, err := s.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, p, layer, req)
	if err != nil {
		return nil, err
	}
	report, err := s.validate(p, layer)
	if err != nil {
		return nil, err
	}
	engine, err := p.Engine(layer)
	if err != nil {
		return nil, err
	}
	return &LayerOverview{Rows: rows, Selection: engine.Selection(), Report: report}, nil
}

// Orphans returns the selections of a layer its catalog no longer lists,
// for example after its superset dropped them.
func (s *Service) Orphans(ctx context.Context, projectID uuid.UUID, layer string) (SelectionMap, error) {
	p, err := s.Load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	engine, err := p.Engine(layer)
	if err != nil {
		return nil, err
	}
	return engine.SelectedNotInCatalog(), nil
}
