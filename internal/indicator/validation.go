package indicator

// validation.go holds the selection checks used by form validation.
//
// Every rule is a pure function of a Selection and the sectors to check. A
// rule returns "" when it passes and a single user-facing message when it
// fails; rules never modify the selection.

import (
	"fmt"
	"strings"
)

// AtLeastOneSelectedPerSector fails when any sector has no selection.
func AtLeastOneSelectedPerSector(sel Selection, sectors []Sector) string {
	var empty []string
	for _, s := range sectors {
		if sel.Count(s.ID) == 0 {
			empty = append(empty, sectorLabel(s))
		}
	}
	if len(empty) == 0 {
		return ""
	}
	return fmt.Sprintf("Select at least one indicator in each sector: %s", strings.Join(empty, ", "))
}

// TotalSelectedCount fails when the number of selected indicators across
// sectors is outside [min, max]. A non-positive max disables the upper bound.
func TotalSelectedCount(sel Selection, sectors []Sector, min, max int) string {
	total := 0
	for _, s := range sectors {
		total += sel.Count(s.ID)
	}
	switch {
	case total < min:
		return fmt.Sprintf("Select at least %d indicators (%d selected)", min, total)
	case max > 0 && total > max:
		return fmt.Sprintf("Select at most %d indicators (%d selected)", max, total)
	}
	return ""
}

// MaxSelectedPerSector fails when any sector has more than maxCount
// selected indicators.
func MaxSelectedPerSector(sel Selection, sectors []Sector, maxCount int) string {
	var over []string
	for _, s := range sectors {
		if n := sel.Count(s.ID); n > maxCount {
			over = append(over, fmt.Sprintf("%s (%d)", sectorLabel(s), n))
		}
	}
	if len(over) == 0 {
		return ""
	}
	return fmt.Sprintf("Select at most %d indicators per sector: %s", maxCount, strings.Join(over, ", "))
}

// MaxSectorsWithSelections fails when more than maxCount sectors have any
// selected indicator.
func MaxSectorsWithSelections(sel Selection, sectors []Sector, maxCount int) string {
	n := 0
	for _, s := range sectors {
		if sel.Count(s.ID) > 0 {
			n++
		}
	}
	if n <= maxCount {
		return ""
	}
	return fmt.Sprintf("Select indicators in at most %d sectors (%d have selections)", maxCount, n)
}

func sectorLabel(s Sector) string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}
