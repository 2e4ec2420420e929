package indicator

import (
	"fmt"
	"slices"
)

// Engine pairs a catalog with a selection. Engines are values: every
// mutation returns a new *Engine and leaves the receiver untouched, so any
// holder of an older engine keeps a consistent snapshot.
type Engine struct {
	catalog   *Catalog
	selection Selection
}

// NewEngine wraps catalog with an initial selection.
func NewEngine(catalog *Catalog, selection Selection) *Engine {
	if selection.bySector == nil {
		selection = NewSelection(nil)
	}
	return &Engine{catalog: catalog, selection: selection}
}

// Catalog returns the (possibly restricted) catalog of the engine.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Selection returns the current selection.
func (e *Engine) Selection() Selection {
	return e.selection
}

// UpdateOptions tunes UpdateSelectedWithOptions.
type UpdateOptions struct {
	// AllowCrossSector keeps an indicator selected in other sectors when it
	// is selected in the target sector too.
	AllowCrossSector bool
	// Filter is passed to the relation resolver.
	Filter func(SectorIndicator) bool
}

// UpdateSelected merges patch into the selection without resolving
// relations. Use it when the caller already knows the final legal set.
func (e *Engine) UpdateSelected(patch map[string][]string) *Engine {
	return &Engine{catalog: e.catalog, selection: e.selection.With(patch)}
}

// UpdateSelectedWithRelations replaces the selection of sectorID with ids,
// adding the globals they imply, keeping globals that cannot be dropped and
// removing ids from any other sector they were selected in.
func (e *Engine) UpdateSelectedWithRelations(sectorID string, ids []string) (*Engine, SelectionInfo) {
	return e.UpdateSelectedWithOptions(sectorID, ids, UpdateOptions{})
}

// UpdateSelectedWithOptions is UpdateSelectedWithRelations with options.
func (e *Engine) UpdateSelectedWithOptions(sectorID string, ids []string, opts UpdateOptions) (*Engine, SelectionInfo) {
	info := e.SelectionInfo(sectorID, ids, RelationOptions{Filter: opts.Filter})

	patch := make(map[string][]string)
	current := func(s string) []string {
		if ids, ok := patch[s]; ok {
			return ids
		}
		return e.selection.IDs(s)
	}

	if !opts.AllowCrossSector {
		for _, id := range dedupe(ids) {
			for _, other := range e.selection.SectorsOf(id) {
				if other == sectorID {
					continue
				}
				patch[other] = slices.DeleteFunc(slices.Clone(current(other)), func(x string) bool { return x == id })
				info.Messages = append(info.Messages, e.crossSectorMessage(id, other, sectorID))
			}
		}
	}

	target := slices.Clone(ids)
	for _, g := range info.Unselectable {
		target = append(target, g.ID)
	}
	for _, g := range info.Selected {
		if g.Sector.ID == sectorID {
			target = append(target, g.ID)
			continue
		}
		patch[g.Sector.ID] = append(slices.Clone(current(g.Sector.ID)), g.ID)
	}
	patch[sectorID] = dedupe(target)

	return &Engine{catalog: e.catalog, selection: e.selection.With(patch)}, info
}

func (e *Engine) crossSectorMessage(id, fromSector, toSector string) string {
	label := id
	if ind, ok := e.catalog.Indicator(id); ok {
		label = fmt.Sprintf("[%s] %s", ind.Code, ind.Name)
	}
	return fmt.Sprintf("%s cannot be selected because it is selected in another sector (%s); it was unselected there and kept in %s",
		label, e.catalog.SectorName(fromSector), e.catalog.SectorName(toSector))
}

// KeepSelectionInSectors drops the selection of every sector not listed.
func (e *Engine) KeepSelectionInSectors(sectorIDs []string) *Engine {
	return &Engine{catalog: e.catalog, selection: e.selection.Keep(sectorIDs)}
}

// UpdateSuperSet re-restricts the catalog to the current selection of
// super. The engine's own selection is kept as is; ids that are no longer
// reachable stop showing in Get and are reported by SelectedNotInCatalog.
func (e *Engine) UpdateSuperSet(super *Engine) *Engine {
	return &Engine{catalog: e.catalog.WithSuperSet(super), selection: e.selection}
}

// SelectedNotInCatalog returns, per sector, the selected ids the catalog
// does not list (for example after the superset dropped them).
func (e *Engine) SelectedNotInCatalog() map[string][]string {
	out := make(map[string][]string)
	for _, sectorID := range e.selection.Sectors() {
		for _, id := range e.selection.IDs(sectorID) {
			if _, ok := e.catalog.listed(sectorID, id); !ok {
				out[sectorID] = append(out[sectorID], id)
			}
		}
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(idSet, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen.has(id) {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
