package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonMunkholm/indicators/internal/core"
	"github.com/JonMunkholm/indicators/internal/indicator"
	"github.com/JonMunkholm/indicators/internal/web/views"
)

// layerInfo is the JSON form of a layer definition.
type layerInfo struct {
	Key      string      `json:"key"`
	Label    string      `json:"label"`
	SuperSet string      `json:"superSet,omitempty"`
	Rules    []core.Rule `json:"rules,omitempty"`
}

type queryResponse struct {
	Indicators []indicator.SectorIndicator `json:"indicators"`
	Count      int                         `json:"count"`
}

type selectRequest struct {
	IDs []string `json:"ids"`
}

type replaceRequest struct {
	Selection core.SelectionMap `json:"selection"`
}

type sectorsRequest struct {
	Sectors []string `json:"sectors"`
}

type selectResponse struct {
	Layer        string                       `json:"layer"`
	Selection    core.SelectionMap            `json:"selection"`
	AutoSelected []indicator.SectorIndicator  `json:"autoSelected,omitempty"`
	Unselectable []indicator.SectorIndicator  `json:"unselectable,omitempty"`
	Messages     []string                     `json:"messages,omitempty"`
	Synced       []string                     `json:"synced,omitempty"`
	Orphans      map[string]core.SelectionMap `json:"orphans,omitempty"`
	EventID      uuid.UUID                    `json:"eventId"`
}

func newSelectResponse(res *core.SelectResult) selectResponse {
	return selectResponse{
		Layer:        res.Layer,
		Selection:    res.Selection,
		AutoSelected: res.Info.Selected,
		Unselectable: res.Info.Unselectable,
		Messages:     res.Info.Messages,
		Synced:       res.Synced,
		Orphans:      res.Orphans,
		EventID:      res.EventID,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":     "ok",
		"indicators": s.service.Catalog().Len(),
	})
}

func (s *Server) handleListSectors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.service.Catalog().Sectors())
}

func (s *Server) handleListLayers(w http.ResponseWriter, r *http.Request) {
	defs := s.service.Layers()
	out := make([]layerInfo, len(defs))
	for i, def := range defs {
		out[i] = layerInfo{Key: def.Key, Label: def.Label, SuperSet: def.SuperSet, Rules: def.Validate}
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseProjectID(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	req, err := parseQuery(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	rows, err := s.service.Query(r.Context(), projectID, chi.URLParam(r, "layer"), req)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	if rows == nil {
		rows = []indicator.SectorIndicator{}
	}
	writeJSON(w, r, http.StatusOK, queryResponse{Indicators: rows, Count: len(rows)})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseProjectID(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	var body selectRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.service.Select(ctx, projectID, chi.URLParam(r, "layer"), chi.URLParam(r, "sectorID"), body.IDs)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, r, http.StatusOK, newSelectResponse(res))
}

func (s *Server) handleReplace(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseProjectID(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	var body replaceRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	res, err := s.service.Replace(ctx, projectID, chi.URLParam(r, "layer"), body.Selection)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, r, http.StatusOK, newSelectResponse(res))
}

func (s *Server) handleSetSectors(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseProjectID(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	var body sectorsRequest
	if err := decodeBody(w, r, &body); err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	if err := s.service.SetSectors(ctx, projectID, body.Sectors); err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseProjectID(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	report, err := s.service.Validate(r.Context(), projectID, chi.URLParam(r, "layer"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	if report.Messages == nil {
		report.Messages = []string{}
	}
	writeJSON(w, r, http.StatusOK, report)
}

func (s *Server) handleOrphans(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseProjectID(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	orphans, err := s.service.Orphans(r.Context(), projectID, chi.URLParam(r, "layer"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, r, http.StatusOK, orphans)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseProjectID(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	events, err := s.service.Events(r.Context(), projectID, parseIntParam(r, "limit", 0))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, r, http.StatusOK, events)
}

// handleLayerPage renders a project layer as HTML.
func (s *Server) handleLayerPage(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseProjectID(r)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	layer := chi.URLParam(r, "layer")
	def, ok := core.Get(layer)
	if !ok {
		err := fmt.Errorf("%w: %s", core.ErrUnknownLayer, layer)
		s.respondError(w, r, err, statusFor(err))
		return
	}

	ctx := r.Context()
	overview, err := s.service.Overview(ctx, projectID, layer, core.QueryRequest{SortByKey: true})
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	page := views.LayerPage{
		ProjectID:  projectID.String(),
		LayerLabel: def.Label,
		Problems:   overview.Report.Messages,
	}
	for _, si := range overview.Rows {
		n := len(page.Sectors)
		if n == 0 || page.Sectors[n-1].Name != si.Sector.Name {
			page.Sectors = append(page.Sectors, views.SectorSection{Name: si.Sector.Name})
			n++
		}
		page.Sectors[n-1].Rows = append(page.Sectors[n-1].Rows, views.Row{
			Code:       si.Code,
			Name:       si.Name,
			Level:      string(si.Level),
			Selected:   overview.Selection.Has(si.Sector.ID, si.ID),
			Restricted: !si.Selectable,
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.Layer(page).Render(ctx, w); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
	}
}

// parseProjectID reads the projectID URL parameter.
func parseProjectID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "projectID")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %q", errInvalidProject, raw)
	}
	return id, nil
}

// decodeBody decodes a JSON body into v, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// parseQuery maps query parameters onto a QueryRequest.
//
//	sector, series, level, peopleOrBenefit, external, q  field filters
//	onlySelected, includePaired                          booleans
//	where                                                CEL expression
//	sort=key                                             order by SortKey
func parseQuery(r *http.Request) (core.QueryRequest, error) {
	q := r.URL.Query()
	req := core.QueryRequest{
		QueryOptions: indicator.QueryOptions{
			SectorID:        q.Get("sector"),
			Series:          q.Get("series"),
			Level:           indicator.HierarchyLevel(q.Get("level")),
			PeopleOrBenefit: indicator.PeopleOrBenefit(q.Get("peopleOrBenefit")),
			ExternalTag:     q.Get("external"),
			Text:            q.Get("q"),
		},
		Expr:      q.Get("where"),
		SortByKey: q.Get("sort") == "key",
	}
	if req.Level != "" && !req.Level.Valid() {
		return req, fmt.Errorf("%w: unknown level %q", errBadRequest, req.Level)
	}

	var err error
	if req.OnlySelected, err = parseBoolParam(r, "onlySelected"); err != nil {
		return req, err
	}
	if req.IncludePaired, err = parseBoolParam(r, "includePaired"); err != nil {
		return req, err
	}
	return req, nil
}

func parseBoolParam(r *http.Request, name string) (bool, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", errBadRequest, name)
	}
	return b, nil
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
