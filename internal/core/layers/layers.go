// Package layers registers the selection layers of a project with the core
// registry. Import this package to ensure all layers are registered.
package layers

import "github.com/JonMunkholm/indicators/internal/core"

// Layer keys.
const (
	Project     = "project"
	Reporting   = "reporting"
	Beneficiary = "beneficiary"
)

func init() {
	registerLayers()
}

func registerLayers() {
	core.Register(core.LayerDefinition{
		Key:      Project,
		Label:    "Project indicators",
		Order:    0,
		Validate: core.AllRules,
	})

	// Reporting and beneficiary selections are drawn from the project's.
	core.Register(core.LayerDefinition{
		Key:      Reporting,
		Label:    "Reporting indicators",
		SuperSet: Project,
		Order:    1,
		Validate: []core.Rule{core.RuleOnePerSector},
	})
	core.Register(core.LayerDefinition{
		Key:      Beneficiary,
		Label:    "Unique beneficiary indicators",
		SuperSet: Project,
		Order:    1,
	})
}
