package indicator

import "sort"

type idSet map[string]struct{}

func newIDSet(ids []string) idSet {
	s := make(idSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s idSet) has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s idSet) sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Selection maps sector ids to the indicator ids selected in them.
// Values are never modified after construction; every method that changes
// the selection returns a new Selection.
type Selection struct {
	bySector map[string]idSet
}

// NewSelection builds a Selection from a sector -> ids mapping.
func NewSelection(m map[string][]string) Selection {
	bySector := make(map[string]idSet, len(m))
	for sectorID, ids := range m {
		bySector[sectorID] = newIDSet(ids)
	}
	return Selection{bySector: bySector}
}

// IDs returns the ids selected in sectorID in ascending order.
func (s Selection) IDs(sectorID string) []string {
	return s.bySector[sectorID].sorted()
}

// Has reports whether id is selected in sectorID.
func (s Selection) Has(sectorID, id string) bool {
	return s.bySector[sectorID].has(id)
}

// Count returns the number of ids selected in sectorID.
func (s Selection) Count(sectorID string) int {
	return len(s.bySector[sectorID])
}

// Sectors returns the sector keys present in the selection, sorted.
func (s Selection) Sectors() []string {
	out := make([]string, 0, len(s.bySector))
	for sectorID := range s.bySector {
		out = append(out, sectorID)
	}
	sort.Strings(out)
	return out
}

// SectorsOf returns every sector where id is selected, sorted.
func (s Selection) SectorsOf(id string) []string {
	var out []string
	for sectorID, ids := range s.bySector {
		if ids.has(id) {
			out = append(out, sectorID)
		}
	}
	sort.Strings(out)
	return out
}

// Map returns a copy of the selection as sector -> sorted ids. Sectors with
// an empty set are kept so callers can persist explicit clears.
func (s Selection) Map() map[string][]string {
	out := make(map[string][]string, len(s.bySector))
	for sectorID, ids := range s.bySector {
		out[sectorID] = ids.sorted()
	}
	return out
}

// With shallow-merges patch: each sector in patch replaces that sector's set.
func (s Selection) With(patch map[string][]string) Selection {
	next := s.clone()
	for sectorID, ids := range patch {
		next.bySector[sectorID] = newIDSet(ids)
	}
	return next
}

// Keep drops every sector not listed in sectorIDs.
func (s Selection) Keep(sectorIDs []string) Selection {
	keep := newIDSet(sectorIDs)
	next := Selection{bySector: make(map[string]idSet, len(sectorIDs))}
	for sectorID, ids := range s.bySector {
		if keep.has(sectorID) {
			next.bySector[sectorID] = ids
		}
	}
	return next
}

// Equal reports whether both selections hold the same non-empty sectors.
func (s Selection) Equal(o Selection) bool {
	for _, pair := range [][2]Selection{{s, o}, {o, s}} {
		for sectorID, ids := range pair[0].bySector {
			other := pair[1].bySector[sectorID]
			if len(ids) != len(other) {
				return false
			}
			for id := range ids {
				if !other.has(id) {
					return false
				}
			}
		}
	}
	return true
}

// clone copies the outer map only; sets are shared because they are never
// mutated once stored.
func (s Selection) clone() Selection {
	next := Selection{bySector: make(map[string]idSet, len(s.bySector))}
	for sectorID, ids := range s.bySector {
		next.bySector[sectorID] = ids
	}
	return next
}

func (s Selection) set(sectorID string) idSet {
	return s.bySector[sectorID]
}
