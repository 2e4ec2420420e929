// Package indicator implements the indicator catalog and its selection
// engine.
//
// The package is pure: it performs no I/O and never mutates a value after
// handing it out. Hosting code loads base indicators, builds a [Catalog]
// once, wraps it in an [Engine] with a [Selection], and keeps the latest
// engine returned by each mutation.
//
// # Catalog
//
// [Build] projects every base indicator into each sector it belongs to. In
// grouped mode paired indicators are folded into the row of their main
// indicator and selected with it. Every projection is indexed by
// [RelationKey] (sector, hierarchy level, series) for parent lookups; two
// indicators with one key fail the build with a [CatalogIntegrityError].
//
// # Relations
//
// Selecting any non-global indicator of a series selects the global
// indicator of the series root ("5002" requires "5000") in the global's
// main sector. A global stays selected while any of its sub-indicators is
// selected. An indicator is selected in at most one sector: selecting it in
// a new sector unselects it from the old one.
//
// # Layers
//
// A catalog can be restricted by a broader engine (its superset) with
// [Catalog.WithSuperSet]. The restriction is recomputed only when
// [Engine.UpdateSuperSet] is called.
package indicator
