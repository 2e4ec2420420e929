package indicator

import (
	"fmt"
	"strings"
)

// HierarchyLevel classifies an indicator within its series.
type HierarchyLevel string

const (
	LevelGlobal        HierarchyLevel = "global"
	LevelSub           HierarchyLevel = "sub"
	LevelReportableSub HierarchyLevel = "reportableSub"
	LevelCustom        HierarchyLevel = "custom"
)

// Valid reports whether l is one of the known hierarchy levels.
func (l HierarchyLevel) Valid() bool {
	switch l {
	case LevelGlobal, LevelSub, LevelReportableSub, LevelCustom:
		return true
	}
	return false
}

// PeopleOrBenefit is the axis an indicator counts on.
type PeopleOrBenefit string

const (
	People  PeopleOrBenefit = "people"
	Benefit PeopleOrBenefit = "benefit"
)

// InternalTag is the ExternalTag query value matching indicators without
// any funder tag.
const InternalTag = "internal"

// Sector is a thematic grouping of indicators.
type Sector struct {
	ID   string `json:"id" yaml:"id"`
	Code string `json:"code" yaml:"code"`
	Name string `json:"name" yaml:"name"`
}

// SectorRef is the sector context attached to a SectorIndicator.
type SectorRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Membership places an indicator in a sector with a sector-specific series.
type Membership struct {
	SectorID string `json:"sectorId" yaml:"sectorId"`
	Series   string `json:"series,omitempty" yaml:"series,omitempty"`
}

// IndicatorRef identifies a paired indicator.
type IndicatorRef struct {
	ID   string `json:"id" yaml:"id"`
	Code string `json:"code" yaml:"code"`
	Name string `json:"name" yaml:"name"`
}

// ExternalInfo describes an indicator as reported to one funder.
type ExternalInfo struct {
	Name string `json:"name" yaml:"name"`
	Code string `json:"code,omitempty" yaml:"code,omitempty"`
}

// Indicator is a base catalog entry, before sector projection.
type Indicator struct {
	ID              string                  `json:"id"`
	Code            string                  `json:"code"`
	Name            string                  `json:"name"`
	Level           HierarchyLevel          `json:"hierarchyLevel"`
	PeopleOrBenefit PeopleOrBenefit         `json:"peopleOrBenefit"`
	Series          string                  `json:"series,omitempty"`
	MainSectorID    string                  `json:"mainSectorId"`
	Memberships     []Membership            `json:"sectorMemberships"`
	PairedRefs      []IndicatorRef          `json:"pairedIndicators,omitempty"`
	External        map[string]ExternalInfo `json:"externals,omitempty"`
	Selectable      bool                    `json:"selectable"`
}

// IsCrossSectoral reports whether the indicator belongs to several sectors.
func (i Indicator) IsCrossSectoral() bool {
	return len(i.Memberships) > 1
}

// SeriesIn returns the indicator's series within sectorID, falling back to
// the base series when the membership does not override it.
func (i Indicator) SeriesIn(sectorID string) string {
	for _, m := range i.Memberships {
		if m.SectorID == sectorID && m.Series != "" {
			return m.Series
		}
	}
	return i.Series
}

// Validate checks the structural invariants of a base indicator.
func (i Indicator) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return fmt.Errorf("indicator %q: missing id", i.Code)
	}
	if !i.Level.Valid() {
		return fmt.Errorf("indicator %s: invalid hierarchy level %q", i.ID, i.Level)
	}
	if len(i.Memberships) == 0 {
		return fmt.Errorf("indicator %s: no sector memberships", i.ID)
	}
	main := 0
	for _, m := range i.Memberships {
		if m.SectorID == i.MainSectorID {
			main++
		}
	}
	if main != 1 {
		return fmt.Errorf("indicator %s: expected one membership for main sector %s, found %d", i.ID, i.MainSectorID, main)
	}
	return nil
}

// SortKey is the default row order of a SectorIndicator.
type SortKey struct {
	CrossSectoral bool
	Custom        bool
	Series        string
}

// Less orders cross-sectoral and custom indicators after the others.
func (k SortKey) Less(o SortKey) bool {
	if k.CrossSectoral != o.CrossSectoral {
		return !k.CrossSectoral
	}
	if k.Custom != o.Custom {
		return !k.Custom
	}
	return k.Series < o.Series
}

// SectorIndicator is an Indicator projected into one sector.
type SectorIndicator struct {
	Indicator
	Sector       SectorRef         `json:"sector"`
	IsMainSector bool              `json:"isMainSector"`
	SectorSeries string            `json:"sectorSeries,omitempty"`
	Paired       []SectorIndicator `json:"pairedDataElements,omitempty"`
	SearchText   string            `json:"-"`
	SortKey      SortKey           `json:"-"`
}

// seriesPadWidth is wide enough for every series code in use.
const seriesPadWidth = 8

func padSeries(series string) string {
	if len(series) >= seriesPadWidth {
		return series
	}
	return strings.Repeat("0", seriesPadWidth-len(series)) + series
}

// RelationKey addresses an indicator for parent/child lookups.
type RelationKey struct {
	SectorID string
	Level    HierarchyLevel
	Series   string
}

func (k RelationKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.SectorID, k.Level, k.Series)
}

// rootSeries maps a series to its global summary series ("5002" -> "5000").
// ok is false for empty series, series shorter than two characters and
// series that already end in "00".
func rootSeries(series string) (string, bool) {
	if len(series) < 2 || strings.HasSuffix(series, "00") {
		return "", false
	}
	return series[:len(series)-2] + "00", true
}
