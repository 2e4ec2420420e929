package filestore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/indicators/internal/indicator"
)

func testCatalog(t *testing.T) *indicator.Catalog {
	t.Helper()
	agri := indicator.Sector{ID: "agri", Code: "AGR", Name: "Agriculture"}
	mk := func(id string, level indicator.HierarchyLevel) indicator.Indicator {
		return indicator.Indicator{
			ID:           id,
			Code:         "C" + id,
			Name:         "Indicator " + id,
			Level:        level,
			Series:       id,
			MainSectorID: "agri",
			Memberships:  []indicator.Membership{{SectorID: "agri"}},
			Selectable:   true,
		}
	}
	c, err := indicator.Build([]indicator.Indicator{
		mk("5000", indicator.LevelGlobal),
		mk("5001", indicator.LevelSub),
	}, []indicator.Sector{agri}, indicator.BuildOptions{})
	require.NoError(t, err)
	return c
}
