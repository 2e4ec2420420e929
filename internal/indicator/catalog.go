package indicator

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"sort"
)

// BuildOptions controls catalog construction.
type BuildOptions struct {
	// GroupPaired folds paired indicators into their main indicator so they
	// are listed and selected as one row.
	GroupPaired bool

	// SuperSet restricts every sector listing to the indicators selected in
	// this broader engine.
	SuperSet *Engine

	// Logger receives relation warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// Catalog is the immutable, per-sector index of the indicator catalog.
// A restricted catalog (see WithSuperSet) shares every index with the
// catalog it was derived from and only replaces the sector listings.
type Catalog struct {
	sectors     []Sector
	sectorIndex map[string]int
	byID        map[string]Indicator
	groupPaired bool
	logger      *slog.Logger

	allBySector   map[string][]SectorIndicator
	byRelationKey map[RelationKey]SectorIndicator
	pairs         map[string]map[string][]SectorIndicator
	pairedTo      map[string]map[string]string

	bySector   map[string][]SectorIndicator
	positionOf map[string]map[string]int
}

// Build indexes indicators per sector. Sectors are kept in the given order,
// which is also the order Get concatenates them in.
func Build(indicators []Indicator, sectors []Sector, opts BuildOptions) (*Catalog, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Catalog{
		sectors:       slices.Clone(sectors),
		sectorIndex:   make(map[string]int, len(sectors)),
		byID:          make(map[string]Indicator, len(indicators)),
		groupPaired:   opts.GroupPaired,
		logger:        logger,
		allBySector:   make(map[string][]SectorIndicator, len(sectors)),
		byRelationKey: make(map[RelationKey]SectorIndicator),
		pairs:         make(map[string]map[string][]SectorIndicator, len(sectors)),
		pairedTo:      make(map[string]map[string]string, len(sectors)),
	}
	for i, s := range sectors {
		if _, dup := c.sectorIndex[s.ID]; dup {
			return nil, &CatalogIntegrityError{Reason: fmt.Sprintf("duplicate sector %s", s.ID)}
		}
		c.sectorIndex[s.ID] = i
	}

	for _, ind := range indicators {
		if err := ind.Validate(); err != nil {
			return nil, &CatalogIntegrityError{Reason: err.Error(), IndicatorIDs: []string{ind.ID}}
		}
		if _, dup := c.byID[ind.ID]; dup {
			return nil, &CatalogIntegrityError{Reason: "duplicate indicator id", IndicatorIDs: []string{ind.ID}}
		}
		c.byID[ind.ID] = ind
	}

	// Code order makes main/paired resolution independent of input order.
	ordered := slices.Clone(indicators)
	slices.SortStableFunc(ordered, func(a, b Indicator) int {
		return cmp.Or(cmp.Compare(a.Code, b.Code), cmp.Compare(a.ID, b.ID))
	})

	for _, sector := range c.sectors {
		projected := c.projectSector(sector, ordered)
		if err := c.indexRelations(projected); err != nil {
			return nil, err
		}
		c.allBySector[sector.ID] = projected
	}

	c.bySector = c.allBySector
	c.positionOf = positions(c.allBySector)

	if opts.SuperSet != nil {
		return c.WithSuperSet(opts.SuperSet), nil
	}
	return c, nil
}

// projectSector builds the listing of one sector, resolving pairs.
func (c *Catalog) projectSector(sector Sector, ordered []Indicator) []SectorIndicator {
	var members []SectorIndicator
	byID := make(map[string]SectorIndicator)
	for _, ind := range ordered {
		if !memberOf(ind, sector.ID) {
			continue
		}
		si := project(ind, sector)
		members = append(members, si)
		byID[ind.ID] = si
	}

	pairs := make(map[string][]SectorIndicator)
	for _, si := range members {
		for _, ref := range si.PairedRefs {
			if p, ok := byID[ref.ID]; ok && ref.ID != si.ID {
				pairs[si.ID] = append(pairs[si.ID], p)
			}
		}
	}
	c.pairs[sector.ID] = pairs

	if !c.groupPaired {
		out := make([]SectorIndicator, len(members))
		for i, si := range members {
			si.SearchText = buildSearchText(withPaired(si, pairs[si.ID]))
			out[i] = si
		}
		return out
	}

	referenced := make(idSet)
	for _, si := range members {
		for _, p := range pairs[si.ID] {
			referenced[p.ID] = struct{}{}
		}
	}

	// Unreferenced indicators claim their partners first; indicators that
	// only appear in pairing cycles are resolved afterwards in code order.
	claimed := make(map[string]string)
	mains := make(idSet)
	claim := func(si SectorIndicator) {
		mains[si.ID] = struct{}{}
		for _, p := range pairs[si.ID] {
			if _, taken := claimed[p.ID]; taken || mains.has(p.ID) {
				continue
			}
			claimed[p.ID] = si.ID
		}
	}
	for _, si := range members {
		if !referenced.has(si.ID) {
			claim(si)
		}
	}
	for _, si := range members {
		if _, taken := claimed[si.ID]; !taken && !mains.has(si.ID) {
			claim(si)
		}
	}

	pairedTo := make(map[string]string, len(claimed))
	out := make([]SectorIndicator, 0, len(mains))
	for _, si := range members {
		if !mains.has(si.ID) {
			continue
		}
		var own []SectorIndicator
		for _, p := range pairs[si.ID] {
			if claimed[p.ID] == si.ID {
				own = append(own, p)
				pairedTo[p.ID] = si.ID
			}
		}
		si = withPaired(si, own)
		si.SearchText = buildSearchText(si)
		out = append(out, si)
	}
	c.pairedTo[sector.ID] = pairedTo
	return out
}

func memberOf(ind Indicator, sectorID string) bool {
	for _, m := range ind.Memberships {
		if m.SectorID == sectorID {
			return true
		}
	}
	return false
}

func project(ind Indicator, sector Sector) SectorIndicator {
	series := ind.SeriesIn(sector.ID)
	si := SectorIndicator{
		Indicator:    ind,
		Sector:       SectorRef{ID: sector.ID, Name: sector.Name},
		IsMainSector: ind.MainSectorID == sector.ID,
		SectorSeries: series,
		SortKey: SortKey{
			CrossSectoral: ind.IsCrossSectoral(),
			Custom:        ind.Level == LevelCustom,
			Series:        padSeries(series),
		},
	}
	si.SearchText = buildSearchText(si)
	return si
}

func withPaired(si SectorIndicator, paired []SectorIndicator) SectorIndicator {
	if len(paired) == 0 {
		si.Paired = nil
		return si
	}
	si.Paired = make([]SectorIndicator, len(paired))
	for i, p := range paired {
		p.Paired = nil
		si.Paired[i] = p
	}
	return si
}

// indexRelations keys every projection of a sector, nested pairs included.
func (c *Catalog) indexRelations(listing []SectorIndicator) error {
	add := func(si SectorIndicator) error {
		if si.SectorSeries == "" {
			return nil
		}
		key := RelationKey{SectorID: si.Sector.ID, Level: si.Level, Series: si.SectorSeries}
		if prev, exists := c.byRelationKey[key]; exists && prev.ID != si.ID {
			return &CatalogIntegrityError{
				Reason:       "ambiguous relation key",
				Key:          &key,
				IndicatorIDs: []string{prev.ID, si.ID},
			}
		}
		c.byRelationKey[key] = si
		return nil
	}
	for _, si := range listing {
		if err := add(si); err != nil {
			return err
		}
		for _, p := range si.Paired {
			if err := add(p); err != nil {
				return err
			}
		}
	}
	return nil
}

func positions(bySector map[string][]SectorIndicator) map[string]map[string]int {
	out := make(map[string]map[string]int, len(bySector))
	for sectorID, listing := range bySector {
		pos := make(map[string]int, len(listing))
		for i, si := range listing {
			pos[si.ID] = i
		}
		out[sectorID] = pos
	}
	return out
}

// WithSuperSet returns a catalog whose sector listings only contain the
// indicators selected in super. The unrestricted listings of c are used as
// the source, so a catalog can be re-restricted any number of times. A nil
// super lifts the restriction.
func (c *Catalog) WithSuperSet(super *Engine) *Catalog {
	if super == nil {
		return c.restrict(nil)
	}
	allowed := make(map[string]idSet, len(c.sectors))
	for _, sector := range c.sectors {
		ids := make(idSet)
		for _, si := range super.Get(QueryOptions{SectorID: sector.ID, OnlySelected: true, IncludePaired: true}) {
			ids[si.ID] = struct{}{}
		}
		allowed[sector.ID] = ids
	}
	return c.restrict(allowed)
}

// restrict is the pure layering step: the result lists, per sector, the
// unrestricted entries whose id is in allowed[sector].
func (c *Catalog) restrict(allowed map[string]idSet) *Catalog {
	next := *c
	if allowed == nil {
		next.bySector = c.allBySector
		next.positionOf = positions(c.allBySector)
		return &next
	}
	next.bySector = make(map[string][]SectorIndicator, len(c.allBySector))
	for sectorID, listing := range c.allBySector {
		ids := allowed[sectorID]
		var kept []SectorIndicator
		for _, si := range listing {
			if ids.has(si.ID) {
				kept = append(kept, si)
			}
		}
		next.bySector[sectorID] = kept
	}
	next.positionOf = positions(next.bySector)
	return &next
}

// Sectors returns the catalog sectors in catalog order.
func (c *Catalog) Sectors() []Sector {
	return slices.Clone(c.sectors)
}

// Sector returns the sector with the given id.
func (c *Catalog) Sector(id string) (Sector, bool) {
	i, ok := c.sectorIndex[id]
	if !ok {
		return Sector{}, false
	}
	return c.sectors[i], true
}

// SectorName returns the display name of a sector, or its id if unknown.
func (c *Catalog) SectorName(id string) string {
	if s, ok := c.Sector(id); ok && s.Name != "" {
		return s.Name
	}
	return id
}

// GroupPaired reports the selection mode the catalog was built with.
func (c *Catalog) GroupPaired() bool {
	return c.groupPaired
}

// Indicator returns a base indicator by id.
func (c *Catalog) Indicator(id string) (Indicator, bool) {
	ind, ok := c.byID[id]
	return ind, ok
}

// Len returns the number of base indicators.
func (c *Catalog) Len() int {
	return len(c.byID)
}

// Listing returns the (possibly restricted) listing of a sector.
func (c *Catalog) Listing(sectorID string) []SectorIndicator {
	return slices.Clone(c.bySector[sectorID])
}

// Lists reports whether the (possibly restricted) listing of sectorID
// carries id, as a row of its own or as a grouped pair.
func (c *Catalog) Lists(sectorID, id string) bool {
	_, ok := c.listed(sectorID, id)
	return ok
}

// Relation looks up an indicator by relation key in the unrestricted catalog.
func (c *Catalog) Relation(key RelationKey) (SectorIndicator, bool) {
	si, ok := c.byRelationKey[key]
	return si, ok
}

// item finds id in the restricted listing of sectorID.
func (c *Catalog) item(sectorID, id string) (SectorIndicator, bool) {
	i, ok := c.positionOf[sectorID][id]
	if !ok {
		return SectorIndicator{}, false
	}
	return c.bySector[sectorID][i], true
}

// listed resolves id to the row that carries it in sectorID: the indicator
// itself, or in grouped mode the main indicator it is paired to.
func (c *Catalog) listed(sectorID, id string) (SectorIndicator, bool) {
	if si, ok := c.item(sectorID, id); ok {
		return si, true
	}
	if mainID, ok := c.pairedTo[sectorID][id]; ok {
		return c.item(sectorID, mainID)
	}
	return SectorIndicator{}, false
}

func (c *Catalog) pairedOf(sectorID, id string) []SectorIndicator {
	return c.pairs[sectorID][id]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
