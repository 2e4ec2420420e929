package indicator

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// propertyCatalog spans three sectors with globals in each and one
// sub-indicator that has no global. G1 is listed in health too, so generated
// selections can pick a global outside its main sector.
func propertyCatalog(t *testing.T) *Catalog {
	t.Helper()
	return mustBuild(t, []Indicator{
		ind("G1", LevelGlobal, "5000", "agri", "health"),
		ind("A", LevelSub, "5001", "agri", "health"),
		ind("B", LevelSub, "5002", "agri"),
		ind("GH", LevelGlobal, "6000", "health"),
		ind("C", LevelSub, "6001", "health", "wash"),
		ind("D", LevelCustom, "6002", "health"),
		ind("GW", LevelGlobal, "7000", "wash"),
		ind("W", LevelSub, "7101", "wash"),
	}, []Sector{agri, health, wash}, BuildOptions{})
}

type selectOp struct {
	sector string
	ids    []string
}

// ops turns generated indexes into selections of listed indicators.
func ops(c *Catalog, sectorPicks []int, picks [][]int) []selectOp {
	sectors := c.Sectors()
	var out []selectOp
	for i := 0; i < len(sectorPicks) && i < len(picks); i++ {
		sector := sectors[sectorPicks[i]%len(sectors)]
		listing := c.Listing(sector.ID)
		ids := make([]string, 0, len(picks[i]))
		for _, p := range picks[i] {
			ids = append(ids, listing[p%len(listing)].ID)
		}
		out = append(out, selectOp{sector: sector.ID, ids: ids})
	}
	return out
}

func run(e *Engine, sequence []selectOp) *Engine {
	for _, op := range sequence {
		e, _ = e.UpdateSelectedWithRelations(op.sector, op.ids)
	}
	return e
}

func exclusive(e *Engine) bool {
	seen := make(map[string]bool)
	for _, sectorID := range e.Selection().Sectors() {
		for _, id := range e.Selection().IDs(sectorID) {
			if seen[id] {
				return false
			}
			seen[id] = true
		}
	}
	return true
}

// closed reports whether every implied global is selected in some sector.
// A global picked by hand may sit outside the sector auto-selection uses.
func closed(e *Engine) bool {
	sel := e.Selection()
	for _, sectorID := range sel.Sectors() {
		for _, id := range sel.IDs(sectorID) {
			si, ok := e.catalog.listed(sectorID, id)
			if !ok {
				continue
			}
			g, err := e.globalFor(si)
			if err != nil || g.ID == "" {
				continue
			}
			if len(sel.SectorsOf(g.ID)) == 0 {
				return false
			}
		}
	}
	return true
}

func TestSelectionProperties(t *testing.T) {
	c := propertyCatalog(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	sectorGen := gen.SliceOf(gen.IntRange(0, 2))
	picksGen := gen.SliceOf(gen.SliceOf(gen.IntRange(0, 8)))

	properties.Property("an indicator is selected in at most one sector", prop.ForAll(
		func(sectorPicks []int, picks [][]int) bool {
			return exclusive(run(NewEngine(c, NewSelection(nil)), ops(c, sectorPicks, picks)))
		},
		sectorGen, picksGen,
	))

	properties.Property("selected sub-indicators keep their global selected", prop.ForAll(
		func(sectorPicks []int, picks [][]int) bool {
			return closed(run(NewEngine(c, NewSelection(nil)), ops(c, sectorPicks, picks)))
		},
		sectorGen, picksGen,
	))

	properties.Property("repeating the last selection changes nothing", prop.ForAll(
		func(sectorPicks []int, picks [][]int) bool {
			sequence := ops(c, sectorPicks, picks)
			if len(sequence) == 0 {
				return true
			}
			once := run(NewEngine(c, NewSelection(nil)), sequence)
			last := sequence[len(sequence)-1]
			twice, _ := once.UpdateSelectedWithRelations(last.sector, last.ids)
			return once.Selection().Equal(twice.Selection())
		},
		sectorGen, picksGen,
	))

	properties.TestingRun(t)
}
