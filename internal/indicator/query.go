package indicator

import (
	"cmp"
	"slices"
	"strings"
)

// QueryOptions filters Get results. All set fields combine with AND.
type QueryOptions struct {
	SectorID        string
	Series          string
	Level           HierarchyLevel
	PeopleOrBenefit PeopleOrBenefit
	// ExternalTag is a funder key, or InternalTag for indicators without
	// any funder tag.
	ExternalTag   string
	OnlySelected  bool
	IncludePaired bool
	// Text matches a normalized substring of SearchText.
	Text string
	// Where is an extra predicate applied after the field filters.
	Where func(SectorIndicator) bool
}

// Get lists catalog indicators matching opts, ordered by code within each
// sector and by catalog order across sectors.
func (e *Engine) Get(opts QueryOptions) []SectorIndicator {
	var out []SectorIndicator
	for _, sectorID := range e.scope(opts.SectorID) {
		rows := e.sectorRows(sectorID, opts)
		slices.SortStableFunc(rows, func(a, b SectorIndicator) int {
			return cmp.Or(cmp.Compare(a.Code, b.Code), cmp.Compare(a.ID, b.ID))
		})
		out = append(out, rows...)
	}
	return out
}

// GetSorted is Get ordered by SortKey within each sector instead of code.
func (e *Engine) GetSorted(opts QueryOptions) []SectorIndicator {
	var out []SectorIndicator
	for _, sectorID := range e.scope(opts.SectorID) {
		rows := e.sectorRows(sectorID, opts)
		slices.SortStableFunc(rows, func(a, b SectorIndicator) int {
			switch {
			case a.SortKey.Less(b.SortKey):
				return -1
			case b.SortKey.Less(a.SortKey):
				return 1
			}
			return cmp.Compare(a.Code, b.Code)
		})
		out = append(out, rows...)
	}
	return out
}

// IDs returns the ids of Get(opts), keeping duplicates across sectors.
func (e *Engine) IDs(opts QueryOptions) []string {
	rows := e.Get(opts)
	ids := make([]string, len(rows))
	for i, si := range rows {
		ids[i] = si.ID
	}
	return ids
}

func (e *Engine) scope(sectorID string) []string {
	if sectorID != "" {
		if _, ok := e.catalog.Sector(sectorID); !ok {
			return nil
		}
		return []string{sectorID}
	}
	ids := make([]string, len(e.catalog.sectors))
	for i, s := range e.catalog.sectors {
		ids[i] = s.ID
	}
	return ids
}

func (e *Engine) sectorRows(sectorID string, opts QueryOptions) []SectorIndicator {
	listing := e.catalog.bySector[sectorID]
	if opts.OnlySelected {
		selected := e.selection.set(sectorID)
		var kept []SectorIndicator
		for _, si := range listing {
			if selected.has(si.ID) {
				kept = append(kept, si)
			}
		}
		listing = kept
	}

	if opts.IncludePaired {
		seen := make(idSet, len(listing))
		var expanded []SectorIndicator
		push := func(si SectorIndicator) {
			if seen.has(si.ID) {
				return
			}
			seen[si.ID] = struct{}{}
			expanded = append(expanded, si)
		}
		for _, si := range listing {
			push(si)
			for _, p := range e.partners(sectorID, si) {
				push(p)
			}
		}
		listing = expanded
	}

	text := NormalizeSearch(opts.Text)
	var rows []SectorIndicator
	for _, si := range listing {
		if matches(si, opts, text) {
			rows = append(rows, si)
		}
	}
	return rows
}

// partners returns the paired indicators shown next to si. Grouped rows
// carry their own partners; ungrouped rows resolve them from the catalog.
func (e *Engine) partners(sectorID string, si SectorIndicator) []SectorIndicator {
	if len(si.Paired) > 0 || e.catalog.groupPaired {
		return si.Paired
	}
	return e.catalog.pairedOf(sectorID, si.ID)
}

func matches(si SectorIndicator, opts QueryOptions, text string) bool {
	if opts.Series != "" && si.SectorSeries != opts.Series {
		return false
	}
	if opts.Level != "" && si.Level != opts.Level {
		return false
	}
	if opts.PeopleOrBenefit != "" && si.PeopleOrBenefit != opts.PeopleOrBenefit {
		return false
	}
	switch opts.ExternalTag {
	case "":
	case InternalTag:
		if len(si.External) > 0 {
			return false
		}
	default:
		if _, ok := si.External[opts.ExternalTag]; !ok {
			return false
		}
	}
	if text != "" && !strings.Contains(si.SearchText, text) {
		return false
	}
	if opts.Where != nil && !opts.Where(si) {
		return false
	}
	return true
}
