// Package core provides the project selection service built on the
// indicator engine.
//
// The package holds the domain logic shared by the HTTP server and the
// indicatorctl CLI. It knows nothing about transport; persistence is
// reached through the [SelectionStore] interface.
//
// # Architecture
//
//   - Layer Registry: selection layers are registered at init time via
//     [Register]. A layer may name a superset layer whose selection
//     restricts what it offers.
//   - Service: the entry point for selecting, replacing, querying and
//     validating a project's indicators.
//   - Stores: [MemoryStore] for tests and development, [PostgresStore]
//     for the server. The filestore package adds a YAML-on-disk store.
//   - Events: every change is recorded as a [SelectionEvent].
//
// # Layer Registry
//
//	core.Register(LayerDefinition{
//	    Key:      "reporting",
//	    Label:    "Reporting",
//	    SuperSet: "project",
//	    Order:    1,
//	    Validate: []Rule{RuleOnePerSector},
//	})
//
// # Selection Flow
//
//  1. [Service.Select] loads the project and builds one engine per layer,
//     supersets first
//  2. The requested ids are checked against the catalog and project sectors
//  3. The engine resolves relations and returns the new selection
//  4. Dependent layers are re-restricted and their orphans reported
//  5. The selection is saved and an event recorded
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - CAT001-CAT003: Catalog errors (integrity, schema, version)
//   - SEL001-SEL004: Selection errors (unknown, restricted, filter)
//   - PRJ001-PRJ004: Project errors (sectors, ids, locks)
//   - DB001-DB004: Database errors
//
// # Event Severity
//
//   - Low: Selections in layers nothing depends on
//   - Medium: Replacements and selections that re-restrict other layers
//   - High: Project sector changes
package core
