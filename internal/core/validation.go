package core

// validation.go applies the indicator selection rules a layer registers.
//
// Each rule maps to one pure check in the indicator package. Rules whose
// limit is disabled in Limits pass without running.

import "github.com/JonMunkholm/indicators/internal/indicator"

// Rule names a selection check.
type Rule string

const (
	RuleOnePerSector Rule = "one_per_sector"
	RuleTotal        Rule = "total"
	RuleMaxPerSector Rule = "max_per_sector"
	RuleMaxSectors   Rule = "max_sectors"
)

// AllRules is the rule set of layers that validate everything.
var AllRules = []Rule{RuleOnePerSector, RuleTotal, RuleMaxPerSector, RuleMaxSectors}

// check runs one rule and returns its message, or "" when it passes.
func (r Rule) check(sel indicator.Selection, sectors []indicator.Sector, limits Limits) string {
	switch r {
	case RuleOnePerSector:
		return indicator.AtLeastOneSelectedPerSector(sel, sectors)
	case RuleTotal:
		if limits.MinTotal <= 0 && limits.MaxTotal <= 0 {
			return ""
		}
		return indicator.TotalSelectedCount(sel, sectors, limits.MinTotal, limits.MaxTotal)
	case RuleMaxPerSector:
		if limits.MaxPerSector <= 0 {
			return ""
		}
		return indicator.MaxSelectedPerSector(sel, sectors, limits.MaxPerSector)
	case RuleMaxSectors:
		if limits.MaxSectors <= 0 {
			return ""
		}
		return indicator.MaxSectorsWithSelections(sel, sectors, limits.MaxSectors)
	}
	return ""
}

// runRules returns the messages of every failing rule, in rule order.
func runRules(rules []Rule, sel indicator.Selection, sectors []indicator.Sector, limits Limits) []string {
	var messages []string
	for _, r := range rules {
		if msg := r.check(sel, sectors, limits); msg != "" {
			messages = append(messages, msg)
		}
	}
	return messages
}
