package filter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/indicators/internal/indicator"
)

func row(id string, level indicator.HierarchyLevel, sectors ...string) indicator.SectorIndicator {
	var memberships []indicator.Membership
	for _, s := range sectors {
		memberships = append(memberships, indicator.Membership{SectorID: s})
	}
	return indicator.SectorIndicator{
		Indicator: indicator.Indicator{
			ID:              id,
			Code:            "C" + id,
			Name:            "Indicator " + id,
			Level:           level,
			PeopleOrBenefit: indicator.Benefit,
			MainSectorID:    sectors[0],
			Memberships:     memberships,
			Selectable:      true,
		},
		Sector:       indicator.SectorRef{ID: sectors[0]},
		IsMainSector: true,
		SectorSeries: "5002",
	}
}

func TestCompile(t *testing.T) {
	c, err := NewCompiler()
	require.NoError(t, err)

	cross := row("X", indicator.LevelSub, "agri", "health")
	cross.External = map[string]indicator.ExternalInfo{"usaid": {Name: "Farmers"}}
	global := row("G", indicator.LevelGlobal, "agri")

	tests := []struct {
		expr string
		want map[string]bool
	}{
		{`level == "sub"`, map[string]bool{"X": true, "G": false}},
		{`crossSectoral && mainSector`, map[string]bool{"X": true, "G": false}},
		{`"usaid" in funders`, map[string]bool{"X": true, "G": false}},
		{`size(funders) == 0`, map[string]bool{"X": false, "G": true}},
		{`series.startsWith("50") && paired == 0`, map[string]bool{"X": true, "G": true}},
		{`code.matches("^C[GX]$") && selectable`, map[string]bool{"X": true, "G": true}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			pred, err := c.Compile(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want["X"], pred(cross), "X")
			assert.Equal(t, tt.want["G"], pred(global), "G")
		})
	}
}

func TestCompile_Rejects(t *testing.T) {
	c, err := NewCompiler()
	require.NoError(t, err)

	for _, expr := range []string{
		`level ==`,
		`unknownVar == 1`,
		`code + "x"`,
	} {
		_, err := c.Compile(expr)
		assert.Error(t, err, expr)
	}
}

func TestCompile_CachesPrograms(t *testing.T) {
	c, err := NewCompiler()
	require.NoError(t, err)

	_, err = c.Compile(`mainSector`)
	require.NoError(t, err)
	_, err = c.Compile(`mainSector`)
	require.NoError(t, err)

	assert.Equal(t, 1, c.programs.Len())
}

func TestCompile_CacheIsBounded(t *testing.T) {
	c, err := NewCompiler()
	require.NoError(t, err)

	for i := 0; i < maxPrograms+50; i++ {
		_, err := c.Compile(fmt.Sprintf("paired == %d", i))
		require.NoError(t, err)
	}
	assert.Equal(t, maxPrograms, c.programs.Len())

	// The oldest expressions were evicted and still compile on demand.
	assert.False(t, c.programs.Contains("paired == 0"))
	_, err = c.Compile("paired == 0")
	require.NoError(t, err)
	assert.True(t, c.programs.Contains("paired == 0"))
}

func TestCompile_WithEngineQuery(t *testing.T) {
	c, err := NewCompiler()
	require.NoError(t, err)

	catalog, err := indicator.Build([]indicator.Indicator{
		row("G", indicator.LevelGlobal, "agri").Indicator,
		row("S", indicator.LevelSub, "agri").Indicator,
	}, []indicator.Sector{{ID: "agri", Name: "Agriculture"}}, indicator.BuildOptions{})
	require.NoError(t, err)

	where, err := c.Compile(`level == "global"`)
	require.NoError(t, err)

	rows := indicator.NewEngine(catalog, indicator.NewSelection(nil)).Get(indicator.QueryOptions{Where: where})
	require.Len(t, rows, 1)
	assert.Equal(t, "G", rows[0].ID)
}
