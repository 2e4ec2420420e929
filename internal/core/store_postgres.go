package core

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaSQL creates the tables PostgresStore reads and writes.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS indicator_project_sectors (
	project_id UUID NOT NULL,
	position   INT  NOT NULL,
	sector_id  TEXT NOT NULL,
	PRIMARY KEY (project_id, sector_id)
);

CREATE TABLE IF NOT EXISTS indicator_selections (
	project_id   UUID NOT NULL,
	layer        TEXT NOT NULL,
	sector_id    TEXT NOT NULL,
	indicator_id TEXT NOT NULL,
	PRIMARY KEY (project_id, layer, sector_id, indicator_id)
);

CREATE TABLE IF NOT EXISTS indicator_selection_events (
	id         UUID PRIMARY KEY,
	project_id UUID NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS indicator_selection_events_project_idx
	ON indicator_selection_events (project_id, created_at DESC);
`

// PostgresStore is a SelectionStore backed by PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store on an open pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the store's tables if they do not exist.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *PostgresStore) LoadProject(ctx context.Context, projectID uuid.UUID) (ProjectState, error) {
	state := ProjectState{Layers: make(map[string]SelectionMap)}

	rows, err := p.pool.Query(ctx,
		`SELECT sector_id FROM indicator_project_sectors WHERE project_id = $1 ORDER BY position`,
		projectID)
	if err != nil {
		return state, fmt.Errorf("query sectors: %w", err)
	}
	sectors, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return state, fmt.Errorf("scan sectors: %w", err)
	}
	state.Sectors = sectors

	rows, err = p.pool.Query(ctx,
		`SELECT layer, sector_id, indicator_id FROM indicator_selections
		 WHERE project_id = $1 ORDER BY layer, sector_id, indicator_id`,
		projectID)
	if err != nil {
		return state, fmt.Errorf("query selections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var layer, sectorID, indicatorID string
		if err := rows.Scan(&layer, &sectorID, &indicatorID); err != nil {
			return state, fmt.Errorf("scan selection: %w", err)
		}
		sel, ok := state.Layers[layer]
		if !ok {
			sel = make(SelectionMap)
			state.Layers[layer] = sel
		}
		sel[sectorID] = append(sel[sectorID], indicatorID)
	}
	if err := rows.Err(); err != nil {
		return state, fmt.Errorf("read selections: %w", err)
	}
	return state, nil
}

func (p *PostgresStore) SaveSectors(ctx context.Context, projectID uuid.UUID, sectorIDs []string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM indicator_project_sectors WHERE project_id = $1`, projectID); err != nil {
		return fmt.Errorf("clear sectors: %w", err)
	}
	rows := make([][]any, len(sectorIDs))
	for i, id := range sectorIDs {
		rows[i] = []any{projectID, i, id}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"indicator_project_sectors"},
		[]string{"project_id", "position", "sector_id"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("copy sectors: %w", err)
	}
	return tx.Commit(ctx)
}

// SaveSelection replaces the stored selection of one layer in a single
// transaction.
func (p *PostgresStore) SaveSelection(ctx context.Context, projectID uuid.UUID, layer string, selection SelectionMap) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`DELETE FROM indicator_selections WHERE project_id = $1 AND layer = $2`,
		projectID, layer); err != nil {
		return fmt.Errorf("clear selection: %w", err)
	}

	var rows [][]any
	for sectorID, ids := range selection {
		for _, id := range ids {
			rows = append(rows, []any{projectID, layer, sectorID, id})
		}
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"indicator_selections"},
		[]string{"project_id", "layer", "sector_id", "indicator_id"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return fmt.Errorf("copy selection: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *PostgresStore) RecordEvent(ctx context.Context, event SelectionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO indicator_selection_events (id, project_id, payload, created_at) VALUES ($1, $2, $3, $4)`,
		event.ID, event.ProjectID, payload, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListEvents(ctx context.Context, projectID uuid.UUID, limit int) ([]SelectionEvent, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT payload FROM indicator_selection_events
		 WHERE project_id = $1 ORDER BY created_at DESC LIMIT $2`,
		projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	payloads, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}

	events := make([]SelectionEvent, 0, len(payloads))
	for _, payload := range payloads {
		var event SelectionEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}
