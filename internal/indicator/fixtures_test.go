package indicator

import (
	"reflect"
	"sort"
	"testing"
)

var (
	agri   = Sector{ID: "agri", Code: "AGR", Name: "Agriculture"}
	health = Sector{ID: "health", Code: "HLT", Name: "Health"}
	wash   = Sector{ID: "wash", Code: "WSH", Name: "WASH"}
)

// ind builds an indicator whose first sector is its main sector. Every
// membership uses the base series.
func ind(id string, level HierarchyLevel, series string, sectors ...string) Indicator {
	memberships := make([]Membership, len(sectors))
	for i, s := range sectors {
		memberships[i] = Membership{SectorID: s, Series: series}
	}
	return Indicator{
		ID:              id,
		Code:            "C" + id,
		Name:            "Indicator " + id,
		Level:           level,
		PeopleOrBenefit: Benefit,
		Series:          series,
		MainSectorID:    sectors[0],
		Memberships:     memberships,
		Selectable:      true,
	}
}

func mustBuild(t *testing.T, indicators []Indicator, sectors []Sector, opts BuildOptions) *Catalog {
	t.Helper()
	c, err := Build(indicators, sectors, opts)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return c
}

// simpleCatalog is the single-sector catalog used by the worked examples:
// one global G and its sub-indicator S1.
func simpleCatalog(t *testing.T) *Catalog {
	t.Helper()
	return mustBuild(t, []Indicator{
		ind("G", LevelGlobal, "00", "agri"),
		ind("S1", LevelSub, "01", "agri"),
	}, []Sector{agri}, BuildOptions{})
}

func ids(rows []SectorIndicator) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func assertSelection(t *testing.T, got Selection, want map[string][]string) {
	t.Helper()
	gotMap := got.Map()
	for sectorID, list := range gotMap {
		if len(list) == 0 {
			delete(gotMap, sectorID)
		}
	}
	normalized := make(map[string][]string)
	for sectorID, list := range want {
		if len(list) == 0 {
			continue
		}
		cp := append([]string(nil), list...)
		sort.Strings(cp)
		normalized[sectorID] = cp
	}
	if !reflect.DeepEqual(gotMap, normalized) {
		t.Errorf("selection = %v, want %v", gotMap, normalized)
	}
}
