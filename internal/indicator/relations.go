package indicator

import (
	"errors"
	"fmt"
)

const (
	autoSelectedHeader  = "The following related indicators have been automatically selected:"
	unselectableWarning = "Global indicators with selected sub-indicators cannot be unselected"
)

// RelationOptions tunes SelectionInfo.
type RelationOptions struct {
	// Filter limits which previously selected indicators are taken into
	// account. Nil keeps all of them.
	Filter func(SectorIndicator) bool
}

// SelectionInfo is the outcome of resolving relations for a proposed
// selection change.
type SelectionInfo struct {
	// Selected holds globals that must be added; Sector is where they go.
	Selected []SectorIndicator
	// Unselectable holds globals the caller tried to drop while their
	// sub-indicators stay selected.
	Unselectable []SectorIndicator
	Messages     []string
}

// SelectionInfo computes which global indicators a new selection of
// candidateIDs in sectorID implies. Implications are evaluated against the
// final candidate set, so dropping a global together with its last
// selected child in one call does not pin the global.
func (e *Engine) SelectionInfo(sectorID string, candidateIDs []string, opts RelationOptions) SelectionInfo {
	candidates := newIDSet(candidateIDs)
	previousAll := e.previouslySelected("", opts.Filter)
	previousInSector := e.previouslySelected(sectorID, opts.Filter)

	implied := e.impliedGlobals(sectorID, candidateIDs)

	var info SelectionInfo
	pinned := make(idSet)
	for _, g := range implied {
		// A global selected in sectorID stays there while it is implied,
		// wherever a fresh auto-selection would place it.
		if previousInSector.has(g.ID) && !candidates.has(g.ID) {
			if !pinned.has(g.ID) {
				pinned[g.ID] = struct{}{}
				info.Unselectable = append(info.Unselectable, e.placedIn(sectorID, g))
			}
			continue
		}
		if !previousAll.has(g.ID) && !candidates.has(g.ID) {
			info.Selected = append(info.Selected, g)
		}
	}

	if len(info.Selected) > 0 {
		info.Messages = append(info.Messages, autoSelectedHeader)
		for _, g := range info.Selected {
			info.Messages = append(info.Messages,
				fmt.Sprintf("%s: [%s] %s (%s)", g.Sector.Name, g.Code, g.Name, g.Level))
		}
	}
	if len(info.Unselectable) > 0 {
		info.Messages = append(info.Messages, unselectableWarning)
	}
	return info
}

// placedIn returns g as listed in sectorID, or g unchanged when sectorID
// does not list it.
func (e *Engine) placedIn(sectorID string, g SectorIndicator) SectorIndicator {
	if row, ok := e.catalog.item(sectorID, g.ID); ok {
		return row
	}
	return g
}

// previouslySelected returns the ids currently selected in sectorID, or in
// every sector when sectorID is empty.
func (e *Engine) previouslySelected(sectorID string, filter func(SectorIndicator) bool) idSet {
	sectors := e.selection.Sectors()
	if sectorID != "" {
		sectors = []string{sectorID}
	}
	out := make(idSet)
	for _, s := range sectors {
		for id := range e.selection.set(s) {
			if filter != nil {
				si, ok := e.catalog.listed(s, id)
				if !ok || !filter(si) {
					continue
				}
			}
			out[id] = struct{}{}
		}
	}
	return out
}

// impliedGlobals walks the candidate membership of every sector and returns
// the globals it requires, in catalog order and without duplicates.
func (e *Engine) impliedGlobals(sectorID string, candidateIDs []string) []SectorIndicator {
	type placed struct{ sector, id string }
	seen := make(map[placed]bool)
	missing := make(map[RelationKey]bool)
	var out []SectorIndicator

	for _, sector := range e.catalog.sectors {
		ids := e.selection.IDs(sector.ID)
		if sector.ID == sectorID {
			ids = candidateIDs
		}
		for _, id := range ids {
			si, ok := e.catalog.listed(sector.ID, id)
			if !ok {
				continue
			}
			for _, x := range append([]SectorIndicator{si}, si.Paired...) {
				g, err := e.globalFor(x)
				if err != nil {
					var notFound *RelationNotFoundError
					if errors.As(err, &notFound) && !missing[notFound.Key] {
						missing[notFound.Key] = true
						e.catalog.logger.Warn("global indicator not in catalog, relation skipped",
							"indicator", notFound.IndicatorID,
							"key", notFound.Key.String(),
						)
					}
					continue
				}
				if g.ID == "" {
					continue
				}
				k := placed{g.Sector.ID, g.ID}
				if !seen[k] {
					seen[k] = true
					out = append(out, g)
				}
			}
		}
	}
	return out
}

// globalFor returns the global indicator x requires, projected into the
// sector it has to be selected in. A zero value with a nil error means x
// needs no global.
func (e *Engine) globalFor(x SectorIndicator) (SectorIndicator, error) {
	if x.Level == LevelGlobal {
		return SectorIndicator{}, nil
	}

	mainRoot, mainOK := rootSeries(x.SeriesIn(x.MainSectorID))
	localRoot, localOK := rootSeries(x.SectorSeries)

	var keys []RelationKey
	if mainOK {
		keys = append(keys, RelationKey{SectorID: x.MainSectorID, Level: LevelGlobal, Series: mainRoot})
	}
	if localOK && x.Sector.ID != x.MainSectorID {
		keys = append(keys, RelationKey{SectorID: x.Sector.ID, Level: LevelGlobal, Series: localRoot})
	}
	if len(keys) == 0 {
		return SectorIndicator{}, nil
	}

	for _, key := range keys {
		g, ok := e.catalog.Relation(key)
		if !ok {
			continue
		}
		target := key.SectorID
		if _, ok := e.catalog.Sector(g.MainSectorID); ok {
			target = g.MainSectorID
		}
		if row, ok := e.catalog.listed(target, g.ID); ok {
			return row, nil
		}
		if row, ok := e.catalog.listed(key.SectorID, g.ID); ok {
			return row, nil
		}
	}
	return SectorIndicator{}, &RelationNotFoundError{IndicatorID: x.ID, Key: keys[0]}
}
