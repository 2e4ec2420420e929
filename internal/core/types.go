package core

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/indicators/internal/indicator"
)

// Sentinel errors returned by the service. Their texts are matched by
// MapError, so keep them in sync with errorPatterns.
var (
	ErrUnknownLayer       = errors.New("unknown layer")
	ErrUnknownSector      = errors.New("unknown sector")
	ErrSectorNotInProject = errors.New("sector not in project")
	ErrUnknownIndicator   = errors.New("unknown indicator")
	ErrNotSelectable      = errors.New("indicator not selectable")
	ErrInvalidFilter      = errors.New("invalid filter expression")
)

// SelectionMap is the persisted form of one layer's selection:
// sector id -> indicator ids.
type SelectionMap = map[string][]string

// ProjectState is everything stored for one project.
type ProjectState struct {
	// Sectors limits the project to these sectors. Empty means every
	// catalog sector.
	Sectors []string
	// Layers maps a layer key to its selection.
	Layers map[string]SelectionMap
}

// SelectionStore persists project selections and their history.
type SelectionStore interface {
	// LoadProject returns the stored state, or an empty state for a
	// project that was never saved.
	LoadProject(ctx context.Context, projectID uuid.UUID) (ProjectState, error)
	SaveSectors(ctx context.Context, projectID uuid.UUID, sectorIDs []string) error
	SaveSelection(ctx context.Context, projectID uuid.UUID, layer string, selection SelectionMap) error
	RecordEvent(ctx context.Context, event SelectionEvent) error
	ListEvents(ctx context.Context, projectID uuid.UUID, limit int) ([]SelectionEvent, error)
}

// Limits are the thresholds of the selection rules. A zero maximum
// disables that rule.
type Limits struct {
	MaxPerSector int
	MaxSectors   int
	MinTotal     int
	MaxTotal     int
}

// SelectResult is the outcome of Service.Select.
type SelectResult struct {
	Layer     string
	Selection SelectionMap
	Info      indicator.SelectionInfo
	// Synced lists the dependent layers re-restricted by this change.
	Synced []string
	// Orphans lists, per synced layer, selections that left its catalog.
	Orphans map[string]SelectionMap
	EventID uuid.UUID
}

// QueryRequest is a query against one layer.
type QueryRequest struct {
	indicator.QueryOptions
	// Expr is a CEL expression combined with the field filters.
	Expr string
	// SortByKey orders rows by SortKey instead of code.
	SortByKey bool
}

// ValidationReport holds the failed rule messages of a layer.
type ValidationReport struct {
	Layer    string    `json:"layer"`
	Valid    bool      `json:"valid"`
	Messages []string  `json:"messages"`
	Checked  time.Time `json:"checkedAt"`
}
