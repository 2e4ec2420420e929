package indicator

import (
	"errors"
	"reflect"
	"testing"
)

func TestBuild_ProjectsEveryMembership(t *testing.T) {
	x := ind("X", LevelSub, "", "agri", "health")
	c := mustBuild(t, []Indicator{x}, []Sector{agri, health}, BuildOptions{})

	for _, tt := range []struct {
		sector   string
		wantMain bool
	}{
		{"agri", true},
		{"health", false},
	} {
		listing := c.Listing(tt.sector)
		if len(listing) != 1 {
			t.Fatalf("Listing(%s) len = %d, want 1", tt.sector, len(listing))
		}
		got := listing[0]
		if got.Sector.ID != tt.sector {
			t.Errorf("Sector.ID = %q, want %q", got.Sector.ID, tt.sector)
		}
		if got.IsMainSector != tt.wantMain {
			t.Errorf("%s IsMainSector = %v, want %v", tt.sector, got.IsMainSector, tt.wantMain)
		}
		if !got.IsCrossSectoral() || !got.SortKey.CrossSectoral {
			t.Errorf("%s expected cross-sectoral projection", tt.sector)
		}
	}
}

func TestBuild_SectorSeriesOverridesBase(t *testing.T) {
	x := ind("X", LevelSub, "5002", "agri", "health")
	x.Memberships[1].Series = "7002"
	c := mustBuild(t, []Indicator{x}, []Sector{agri, health}, BuildOptions{})

	if got := c.Listing("health")[0].SectorSeries; got != "7002" {
		t.Errorf("health SectorSeries = %q, want %q", got, "7002")
	}
	if got := c.Listing("agri")[0].SortKey.Series; got != "00005002" {
		t.Errorf("agri SortKey.Series = %q, want %q", got, "00005002")
	}
	if _, ok := c.Relation(RelationKey{SectorID: "health", Level: LevelSub, Series: "7002"}); !ok {
		t.Error("expected relation key for health series 7002")
	}
}

func TestBuild_GroupPaired(t *testing.T) {
	main := ind("P1", LevelSub, "", "agri")
	main.PairedRefs = []IndicatorRef{{ID: "P2", Code: "CP2", Name: "Indicator P2"}}
	twin := ind("P2", LevelSub, "", "agri")
	twin.PeopleOrBenefit = People
	twin.PairedRefs = []IndicatorRef{{ID: "P1"}}
	solo := ind("Z", LevelSub, "", "agri")

	c := mustBuild(t, []Indicator{twin, solo, main}, []Sector{agri}, BuildOptions{GroupPaired: true})

	listing := c.Listing("agri")
	if got, want := ids(listing), []string{"P1", "Z"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("listing = %v, want %v", got, want)
	}
	if len(listing[0].Paired) != 1 || listing[0].Paired[0].ID != "P2" {
		t.Fatalf("P1.Paired = %v, want [P2]", ids(listing[0].Paired))
	}
	if len(listing[0].Paired[0].Paired) != 0 {
		t.Error("nested pairing must be stripped")
	}
	if len(listing[1].Paired) != 0 {
		t.Errorf("Z.Paired = %v, want none", ids(listing[1].Paired))
	}
}

func TestBuild_GroupPairedNeverListsTwice(t *testing.T) {
	a := ind("A", LevelSub, "", "agri")
	a.PairedRefs = []IndicatorRef{{ID: "B"}}
	b := ind("B", LevelSub, "", "agri")
	b.PairedRefs = []IndicatorRef{{ID: "C"}}
	cc := ind("C", LevelSub, "", "agri")

	c := mustBuild(t, []Indicator{a, b, cc}, []Sector{agri}, BuildOptions{GroupPaired: true})

	seen := map[string]int{}
	for _, row := range c.Listing("agri") {
		seen[row.ID]++
		for _, p := range row.Paired {
			seen[p.ID]++
		}
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("%s appears %d times, want 1", id, n)
		}
	}
}

func TestBuild_UngroupedListsPairsIndividually(t *testing.T) {
	main := ind("P1", LevelSub, "", "agri")
	main.PairedRefs = []IndicatorRef{{ID: "P2"}}
	twin := ind("P2", LevelSub, "", "agri")

	c := mustBuild(t, []Indicator{main, twin}, []Sector{agri}, BuildOptions{})

	listing := c.Listing("agri")
	if got, want := ids(listing), []string{"P1", "P2"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("listing = %v, want %v", got, want)
	}
	if len(listing[0].Paired) != 0 {
		t.Error("ungrouped rows must not carry pairs")
	}
}

func TestBuild_RelationKeyCollision(t *testing.T) {
	_, err := Build([]Indicator{
		ind("G1", LevelGlobal, "5000", "agri"),
		ind("G2", LevelGlobal, "5000", "agri"),
	}, []Sector{agri}, BuildOptions{})

	var integrity *CatalogIntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("Build() error = %v, want CatalogIntegrityError", err)
	}
	if integrity.Key == nil || integrity.Key.Series != "5000" {
		t.Errorf("Key = %v, want series 5000", integrity.Key)
	}
	if !reflect.DeepEqual(integrity.IndicatorIDs, []string{"G1", "G2"}) {
		t.Errorf("IndicatorIDs = %v, want [G1 G2]", integrity.IndicatorIDs)
	}
}

func TestBuild_InvalidIndicators(t *testing.T) {
	noMain := ind("X", LevelSub, "", "agri")
	noMain.MainSectorID = "health"

	badLevel := ind("Y", LevelSub, "", "agri")
	badLevel.Level = "chapter"

	noSectors := ind("Z", LevelSub, "", "agri")
	noSectors.Memberships = nil

	tests := []struct {
		name string
		in   []Indicator
	}{
		{"main sector not a membership", []Indicator{noMain}},
		{"unknown hierarchy level", []Indicator{badLevel}},
		{"no memberships", []Indicator{noSectors}},
		{"duplicate id", []Indicator{ind("D", LevelSub, "", "agri"), ind("D", LevelSub, "", "agri")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.in, []Sector{agri, health}, BuildOptions{})
			var integrity *CatalogIntegrityError
			if !errors.As(err, &integrity) {
				t.Errorf("Build() error = %v, want CatalogIntegrityError", err)
			}
		})
	}
}

func TestBuild_SuperSetRestrictsListing(t *testing.T) {
	base := simpleCatalog(t)
	project := NewEngine(base, NewSelection(map[string][]string{"agri": {"S1"}}))

	c := mustBuild(t, []Indicator{
		ind("G", LevelGlobal, "00", "agri"),
		ind("S1", LevelSub, "01", "agri"),
	}, []Sector{agri}, BuildOptions{SuperSet: project})

	if got, want := ids(c.Listing("agri")), []string{"S1"}; !reflect.DeepEqual(got, want) {
		t.Errorf("restricted listing = %v, want %v", got, want)
	}

	unrestricted := c.WithSuperSet(nil)
	if got := len(unrestricted.Listing("agri")); got != 2 {
		t.Errorf("unrestricted listing len = %d, want 2", got)
	}
}

func TestRootSeries(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"5002", "5000", true},
		{"01", "00", true},
		{"5000", "", false},
		{"", "", false},
		{"7", "", false},
	}
	for _, tt := range tests {
		got, ok := rootSeries(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("rootSeries(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
