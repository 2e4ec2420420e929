package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/indicators/internal/indicator"
)

var (
	testAgri   = indicator.Sector{ID: "agri", Code: "AGR", Name: "Agriculture"}
	testHealth = indicator.Sector{ID: "health", Code: "HLT", Name: "Health"}
)

func testIndicator(id string, level indicator.HierarchyLevel, sector string, selectable bool) indicator.Indicator {
	return indicator.Indicator{
		ID:              id,
		Code:            "C" + id,
		Name:            "Indicator " + id,
		Level:           level,
		PeopleOrBenefit: indicator.Benefit,
		Series:          id,
		MainSectorID:    sector,
		Memberships:     []indicator.Membership{{SectorID: sector}},
		Selectable:      selectable,
	}
}

// registerTestLayers registers a project layer with two narrower layers.
func registerTestLayers(t *testing.T) {
	t.Helper()
	Clear()
	t.Cleanup(Clear)
	Register(LayerDefinition{Key: "project", Label: "Project", Order: 0, Validate: AllRules})
	Register(LayerDefinition{Key: "reporting", Label: "Reporting", SuperSet: "project", Order: 1, Validate: []Rule{RuleOnePerSector}})
	Register(LayerDefinition{Key: "beneficiary", Label: "Beneficiary", SuperSet: "project", Order: 1})
}

func newTestService(t *testing.T, limits Limits) (*Service, *MemoryStore) {
	t.Helper()
	registerTestLayers(t)

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	catalog, err := indicator.Build([]indicator.Indicator{
		testIndicator("5000", indicator.LevelGlobal, "agri", true),
		testIndicator("5001", indicator.LevelSub, "agri", true),
		testIndicator("5002", indicator.LevelSub, "agri", false),
		testIndicator("7000", indicator.LevelGlobal, "health", true),
		testIndicator("7001", indicator.LevelSub, "health", true),
	}, []indicator.Sector{testAgri, testHealth}, indicator.BuildOptions{Logger: quiet})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	store := NewMemoryStore()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc, err := NewService(catalog, store, Options{
		Limits: limits,
		Logger: quiet,
		Now:    func() time.Time { return fixed },
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc, store
}

func rowIDs(rows []indicator.SectorIndicator) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Sector.ID + "/" + r.ID
	}
	sort.Strings(out)
	return out
}

func TestNewService_RequiresLayers(t *testing.T) {
	Clear()
	t.Cleanup(Clear)

	catalog, err := indicator.Build(nil, []indicator.Sector{testAgri}, indicator.BuildOptions{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if _, err := NewService(catalog, NewMemoryStore(), Options{}); err == nil {
		t.Error("NewService() expected error with no layers registered")
	}
	if _, err := NewService(nil, NewMemoryStore(), Options{}); err == nil {
		t.Error("NewService() expected error with nil catalog")
	}
}

func TestServiceSelect_ResolvesRelationsAndRecordsEvent(t *testing.T) {
	svc, _ := newTestService(t, Limits{})
	projectID := uuid.New()
	ctx := ContextWithIPAddress(context.Background(), "10.0.0.1")

	res, err := svc.Select(ctx, projectID, "project", "agri", []string{"5001"})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	want := SelectionMap{"agri": {"5000", "5001"}}
	if !reflect.DeepEqual(res.Selection, want) {
		t.Errorf("Selection = %v, want %v", res.Selection, want)
	}
	if len(res.Info.Selected) != 1 || res.Info.Selected[0].ID != "5000" {
		t.Errorf("Info.Selected = %v, want [5000]", res.Info.Selected)
	}
	if res.EventID == uuid.Nil {
		t.Error("EventID is nil")
	}

	events, err := svc.Events(context.Background(), projectID, 0)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.Action != ActionSelect || ev.IPAddress != "10.0.0.1" || ev.Layer != "project" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Severity != SeverityMedium {
		t.Errorf("Severity = %q, want medium for a layer with dependents", ev.Severity)
	}
}

func TestServiceSelect_PersistsAcrossLoads(t *testing.T) {
	svc, _ := newTestService(t, Limits{})
	projectID := uuid.New()
	ctx := context.Background()

	if _, err := svc.Select(ctx, projectID, "project", "health", []string{"7001"}); err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	p, err := svc.Load(ctx, projectID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	e, err := p.Engine("project")
	if err != nil {
		t.Fatalf("Engine() error = %v", err)
	}
	if got := e.Selection().IDs("health"); !reflect.DeepEqual(got, []string{"7000", "7001"}) {
		t.Errorf("health selection = %v, want [7000 7001]", got)
	}
	if len(p.Sectors) != 2 {
		t.Errorf("len(Sectors) = %d, want every catalog sector", len(p.Sectors))
	}
}

func TestServiceSelect_SyncsDependentLayers(t *testing.T) {
	svc, _ := newTestService(t, Limits{})
	projectID := uuid.New()
	ctx := context.Background()

	if _, err := svc.Select(ctx, projectID, "project", "agri", []string{"5001"}); err != nil {
		t.Fatalf("Select(project) error = %v", err)
	}
	res, err := svc.Select(ctx, projectID, "reporting", "agri", []string{"5001"})
	if err != nil {
		t.Fatalf("Select(reporting) error = %v", err)
	}
	if want := (SelectionMap{"agri": {"5000", "5001"}}); !reflect.DeepEqual(res.Selection, want) {
		t.Errorf("reporting selection = %v, want %v", res.Selection, want)
	}

	res, err = svc.Select(ctx, projectID, "project", "agri", nil)
	if err != nil {
		t.Fatalf("Select(project, empty) error = %v", err)
	}
	if want := []string{"beneficiary", "reporting"}; !reflect.DeepEqual(res.Synced, want) {
		t.Errorf("Synced = %v, want %v", res.Synced, want)
	}
	wantOrphans := map[string]SelectionMap{"reporting": {"agri": {"5000", "5001"}}}
	if !reflect.DeepEqual(res.Orphans, wantOrphans) {
		t.Errorf("Orphans = %v, want %v", res.Orphans, wantOrphans)
	}

	orphans, err := svc.Orphans(ctx, projectID, "reporting")
	if err != nil {
		t.Fatalf("Orphans() error = %v", err)
	}
	if !reflect.DeepEqual(orphans, wantOrphans["reporting"]) {
		t.Errorf("Orphans(reporting) = %v", orphans)
	}
}

func TestServiceSelect_Errors(t *testing.T) {
	svc, _ := newTestService(t, Limits{})
	projectID := uuid.New()
	ctx := context.Background()
	if err := svc.SetSectors(ctx, projectID, []string{"agri"}); err != nil {
		t.Fatalf("SetSectors() error = %v", err)
	}

	tests := []struct {
		name    string
		ctx     context.Context
		layer   string
		sector  string
		ids     []string
		wantErr error
	}{
		{"unknown layer", ctx, "budget", "agri", []string{"5001"}, ErrUnknownLayer},
		{"unknown sector", ctx, "project", "space", []string{"5001"}, ErrUnknownSector},
		{"sector outside project", ctx, "project", "health", []string{"7001"}, ErrSectorNotInProject},
		{"unknown indicator", ctx, "project", "agri", []string{"9999"}, ErrUnknownIndicator},
		{"indicator of another sector", ctx, "project", "agri", []string{"7001"}, ErrUnknownIndicator},
		{"outside the superset", ctx, "reporting", "agri", []string{"5001"}, ErrUnknownIndicator},
		{"restricted indicator", ctx, "project", "agri", []string{"5002"}, ErrNotSelectable},
		{"restricted indicator, privileged", ContextWithPrivileged(ctx), "project", "agri", []string{"5002"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Select(tt.ctx, projectID, tt.layer, tt.sector, tt.ids)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Select() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Select() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestServiceSelect_KeepsAlreadySelectedRestricted(t *testing.T) {
	svc, _ := newTestService(t, Limits{})
	projectID := uuid.New()
	ctx := context.Background()

	if _, err := svc.Select(ContextWithPrivileged(ctx), projectID, "project", "agri", []string{"5002"}); err != nil {
		t.Fatalf("privileged Select() error = %v", err)
	}
	res, err := svc.Select(ctx, projectID, "project", "agri", []string{"5002", "5001"})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if want := (SelectionMap{"agri": {"5000", "5001", "5002"}}); !reflect.DeepEqual(res.Selection, want) {
		t.Errorf("Selection = %v, want %v", res.Selection, want)
	}
}

func TestServiceSelect_NarrowerLayerStaysInsideSuperSet(t *testing.T) {
	svc, _ := newTestService(t, Limits{})
	projectID := uuid.New()
	ctx := context.Background()

	if _, err := svc.Select(ctx, projectID, "reporting", "agri", []string{"5001"}); !errors.Is(err, ErrUnknownIndicator) {
		t.Fatalf("Select(reporting) before project error = %v, want ErrUnknownIndicator", err)
	}
	if _, err := svc.Replace(ctx, projectID, "beneficiary", SelectionMap{"agri": {"5001"}}); !errors.Is(err, ErrUnknownIndicator) {
		t.Fatalf("Replace(beneficiary) before project error = %v, want ErrUnknownIndicator", err)
	}

	if _, err := svc.Select(ctx, projectID, "project", "agri", []string{"5001"}); err != nil {
		t.Fatalf("Select(project) error = %v", err)
	}
	res, err := svc.Select(ctx, projectID, "reporting", "agri", []string{"5001"})
	if err != nil {
		t.Fatalf("Select(reporting) error = %v", err)
	}
	if want := (SelectionMap{"agri": {"5000", "5001"}}); !reflect.DeepEqual(res.Selection, want) {
		t.Errorf("reporting selection = %v, want %v", res.Selection, want)
	}

	// 7000 exists but the project never selected it.
	if _, err := svc.Replace(ctx, projectID, "reporting", SelectionMap{"health": {"7000"}}); !errors.Is(err, ErrUnknownIndicator) {
		t.Errorf("Replace(reporting) error = %v, want ErrUnknownIndicator", err)
	}
}

func TestServiceReplace(t *testing.T) {
	svc, _ := newTestService(t, Limits{})
	projectID := uuid.New()
	ctx := context.Background()

	if _, err := svc.Select(ctx, projectID, "project", "agri", []string{"5001"}); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	res, err := svc.Replace(ctx, projectID, "project", SelectionMap{"health": {"7001"}})
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	// Replace merges without resolving relations.
	want := SelectionMap{"agri": {"5000", "5001"}, "health": {"7001"}}
	if !reflect.DeepEqual(res.Selection, want) {
		t.Errorf("Selection = %v, want %v", res.Selection, want)
	}

	if _, err := svc.Replace(ctx, projectID, "project", SelectionMap{"agri": {"nope"}}); !errors.Is(err, ErrUnknownIndicator) {
		t.Errorf("Replace() error = %v, want ErrUnknownIndicator", err)
	}
}

func TestServiceSetSectors(t *testing.T) {
	svc, _ := newTestService(t, Limits{})
	projectID := uuid.New()
	ctx := context.Background()

	if _, err := svc.Select(ctx, projectID, "project", "health", []string{"7001"}); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if _, err := svc.Select(ctx, projectID, "project", "agri", []string{"5001"}); err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	if err := svc.SetSectors(ctx, projectID, []string{"agri"}); err != nil {
		t.Fatalf("SetSectors() error = %v", err)
	}

	p, err := svc.Load(ctx, projectID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(p.Sectors) != 1 || p.Sectors[0].ID != "agri" {
		t.Errorf("Sectors = %v, want [agri]", p.Sectors)
	}
	e, _ := p.Engine("project")
	if want := map[string][]string{"agri": {"5000", "5001"}}; !reflect.DeepEqual(e.Selection().Map(), want) {
		t.Errorf("selection = %v, want %v", e.Selection().Map(), want)
	}

	events, err := svc.Events(ctx, projectID, 1)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(events) != 1 || events[0].Action != ActionSetSectors || events[0].Severity != SeverityHigh {
		t.Errorf("latest event = %+v, want high severity set_sectors", events)
	}

	if err := svc.SetSectors(ctx, projectID, []string{"space"}); !errors.Is(err, ErrUnknownSector) {
		t.Errorf("SetSectors() error = %v, want ErrUnknownSector", err)
	}
}

func TestServiceQuery(t *testing.T) {
	svc, _ := newTestService(t, Limits{})
	projectID := uuid.New()
	ctx := context.Background()

	tests := []struct {
		name string
		ctx  context.Context
		req  QueryRequest
		want []string
	}{
		{
			name: "restricted indicators hidden",
			ctx:  ctx,
			want: []string{"agri/5000", "agri/5001", "health/7000", "health/7001"},
		},
		{
			name: "privileged callers see restricted indicators",
			ctx:  ContextWithPrivileged(ctx),
			req:  QueryRequest{QueryOptions: indicator.QueryOptions{SectorID: "agri"}},
			want: []string{"agri/5000", "agri/5001", "agri/5002"},
		},
		{
			name: "expression filter",
			ctx:  ctx,
			req:  QueryRequest{Expr: `level == "global"`},
			want: []string{"agri/5000", "health/7000"},
		},
		{
			name: "field filter and expression combine",
			ctx:  ctx,
			req: QueryRequest{
				QueryOptions: indicator.QueryOptions{SectorID: "health"},
				Expr:         `level == "sub"`,
			},
			want: []string{"health/7001"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := svc.Query(tt.ctx, projectID, "project", tt.req)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if got := rowIDs(rows); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Query() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServiceQuery_Errors(t *testing.T) {
	svc, _ := newTestService(t, Limits{})
	projectID := uuid.New()
	ctx := context.Background()

	if _, err := svc.Query(ctx, projectID, "project", QueryRequest{Expr: "level +"}); !errors.Is(err, ErrInvalidFilter) {
		t.Errorf("Query() error = %v, want ErrInvalidFilter", err)
	}
	if _, err := svc.Query(ctx, projectID, "nope", QueryRequest{}); !errors.Is(err, ErrUnknownLayer) {
		t.Errorf("Query() error = %v, want ErrUnknownLayer", err)
	}
}

func TestServiceQuery_ReportingOffersProjectSelection(t *testing.T) {
	svc, _ := newTestService(t, Limits{})
	projectID := uuid.New()
	ctx := context.Background()

	if _, err := svc.Select(ctx, projectID, "project", "agri", []string{"5001"}); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	rows, err := svc.Query(ctx, projectID, "reporting", QueryRequest{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if got, want := rowIDs(rows), []string{"agri/5000", "agri/5001"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Query(reporting) = %v, want %v", got, want)
	}
}

func TestServiceValidate(t *testing.T) {
	svc, _ := newTestService(t, Limits{MinTotal: 1, MaxPerSector: 1})
	projectID := uuid.New()
	ctx := context.Background()

	report, err := svc.Validate(ctx, projectID, "project")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if report.Valid {
		t.Error("empty project should not be valid")
	}
	if !report.Checked.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("Checked = %v", report.Checked)
	}

	if _, err := svc.Select(ctx, projectID, "project", "agri", []string{"5001"}); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if err := svc.SetSectors(ctx, projectID, []string{"agri"}); err != nil {
		t.Fatalf("SetSectors() error = %v", err)
	}

	// agri holds 5000 and 5001, above the per-sector maximum.
	report, err = svc.Validate(ctx, projectID, "project")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if report.Valid || len(report.Messages) != 1 {
		t.Errorf("Validate() = %+v, want one max-per-sector message", report)
	}

	// The beneficiary layer registers no rules.
	report, err = svc.Validate(ctx, projectID, "beneficiary")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !report.Valid {
		t.Errorf("Validate(beneficiary) = %+v, want valid", report)
	}
}

type failingEventStore struct {
	*MemoryStore
}

func (failingEventStore) RecordEvent(context.Context, SelectionEvent) error {
	return errors.New("connection refused")
}

func TestServiceSelect_EventFailureKeepsSelection(t *testing.T) {
	svc, store := newTestService(t, Limits{})
	svc.store = failingEventStore{store}
	projectID := uuid.New()
	ctx := context.Background()

	res, err := svc.Select(ctx, projectID, "project", "agri", []string{"5001"})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if res.EventID != uuid.Nil {
		t.Errorf("EventID = %v, want nil when recording fails", res.EventID)
	}
	state, _ := store.LoadProject(ctx, projectID)
	if len(state.Layers["project"]["agri"]) != 2 {
		t.Errorf("stored selection = %v", state.Layers["project"])
	}
}

func TestMemoryStore_ListEventsNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	projectID := uuid.New()
	ctx := context.Background()

	for i := range 3 {
		ev := SelectionEvent{ID: uuid.New(), ProjectID: projectID, Layer: string(rune('a' + i))}
		if err := store.RecordEvent(ctx, ev); err != nil {
			t.Fatalf("RecordEvent() error = %v", err)
		}
	}
	events, err := store.ListEvents(ctx, projectID, 2)
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 2 || events[0].Layer != "c" || events[1].Layer != "b" {
		t.Errorf("ListEvents() = %+v, want c then b", events)
	}
}

// failingLayerStore fails every save of one layer.
type failingLayerStore struct {
	*MemoryStore
	layer string
}

func (f failingLayerStore) SaveSelection(ctx context.Context, projectID uuid.UUID, layer string, selection SelectionMap) error {
	if layer == f.layer {
		return errors.New("connection reset")
	}
	return f.MemoryStore.SaveSelection(ctx, projectID, layer, selection)
}

func TestServiceSetSectors_RetryAfterFailedSave(t *testing.T) {
	svc, store := newTestService(t, Limits{})
	projectID := uuid.New()
	ctx := context.Background()

	if _, err := svc.Select(ctx, projectID, "project", "health", []string{"7001"}); err != nil {
		t.Fatalf("Select(project) error = %v", err)
	}
	if _, err := svc.Select(ctx, projectID, "reporting", "health", []string{"7001"}); err != nil {
		t.Fatalf("Select(reporting) error = %v", err)
	}

	svc.store = failingLayerStore{MemoryStore: store, layer: "reporting"}
	if err := svc.SetSectors(ctx, projectID, []string{"agri"}); err == nil {
		t.Fatal("SetSectors() error = nil, want save failure")
	}
	state, _ := store.LoadProject(ctx, projectID)
	if len(state.Sectors) != 0 {
		t.Errorf("Sectors = %v, want the old scope after a failed save", state.Sectors)
	}

	svc.store = store
	if err := svc.SetSectors(ctx, projectID, []string{"agri"}); err != nil {
		t.Fatalf("SetSectors() retry error = %v", err)
	}
	state, _ = store.LoadProject(ctx, projectID)
	if want := []string{"agri"}; !reflect.DeepEqual(state.Sectors, want) {
		t.Errorf("Sectors = %v, want %v", state.Sectors, want)
	}
	for layer, sel := range state.Layers {
		if len(sel["health"]) != 0 {
			t.Errorf("%s still selects %v in health", layer, sel["health"])
		}
	}
}

// countingStore counts project loads.
type countingStore struct {
	*MemoryStore
	loads int
}

func (c *countingStore) LoadProject(ctx context.Context, projectID uuid.UUID) (ProjectState, error) {
	c.loads++
	return c.MemoryStore.LoadProject(ctx, projectID)
}

func TestServiceOverview_LoadsOnce(t *testing.T) {
	svc, store := newTestService(t, Limits{MinTotal: 1})
	projectID := uuid.New()
	ctx := context.Background()

	if _, err := svc.Select(ctx, projectID, "project", "agri", []string{"5001"}); err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	counting := &countingStore{MemoryStore: store}
	svc.store = counting
	overview, err := svc.Overview(ctx, projectID, "project", QueryRequest{SortByKey: true})
	if err != nil {
		t.Fatalf("Overview() error = %v", err)
	}
	if counting.loads != 1 {
		t.Errorf("loads = %d, want 1", counting.loads)
	}

	if want := []string{"agri/5000", "agri/5001", "health/7000", "health/7001"}; !reflect.DeepEqual(rowIDs(overview.Rows), want) {
		t.Errorf("Rows = %v, want %v", rowIDs(overview.Rows), want)
	}
	if !overview.Selection.Has("agri", "5001") {
		t.Errorf("Selection = %v, want agri/5001 selected", overview.Selection.Map())
	}
	// Health has no selection, so the per-sector rule fails.
	if overview.Report.Valid {
		t.Errorf("Report = %+v, want invalid", overview.Report)
	}

	if _, err := svc.Overview(ctx, projectID, "budget", QueryRequest{}); !errors.Is(err, ErrUnknownLayer) {
		t.Errorf("Overview(budget) error = %v, want ErrUnknownLayer", err)
	}
}
