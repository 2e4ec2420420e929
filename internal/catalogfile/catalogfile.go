// Package catalogfile reads the indicator catalog document.
//
// A catalog document is YAML. It is checked against an embedded JSON Schema,
// gated on its semantic version and converted to the base indicators and
// sectors that indicator.Build consumes.
package catalogfile

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/indicators/internal/indicator"
)

//go:embed schema.json
var schemaJSON string

const schemaURL = "https://indicators.local/schemas/catalog.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// ErrUnsupportedVersion is returned when a document is older than the
// configured minimum version.
var ErrUnsupportedVersion = errors.New("unsupported catalog version")

// Options controls document loading.
type Options struct {
	// MinVersion is the oldest accepted document version. Empty accepts all.
	MinVersion string
}

// Document is a parsed catalog.
type Document struct {
	Version    *semver.Version
	Sectors    []indicator.Sector
	Indicators []indicator.Indicator
}

// Build indexes the document with indicator.Build.
func (d *Document) Build(opts indicator.BuildOptions) (*indicator.Catalog, error) {
	return indicator.Build(d.Indicators, d.Sectors, opts)
}

type rawDocument struct {
	Version    string         `yaml:"version"`
	Sectors    []rawSector    `yaml:"sectors"`
	Indicators []rawIndicator `yaml:"indicators"`
}

type rawSector struct {
	ID   string `yaml:"id"`
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

type rawIndicator struct {
	ID              string                 `yaml:"id"`
	Code            string                 `yaml:"code"`
	Name            string                 `yaml:"name"`
	Level           string                 `yaml:"level"`
	PeopleOrBenefit string                 `yaml:"peopleOrBenefit"`
	Series          string                 `yaml:"series"`
	MainSector      string                 `yaml:"mainSector"`
	Selectable      *bool                  `yaml:"selectable"`
	Sectors         []rawMembership        `yaml:"sectors"`
	Paired          []string               `yaml:"paired"`
	External        map[string]rawExternal `yaml:"external"`
}

type rawMembership struct {
	Sector string `yaml:"sector"`
	Series string `yaml:"series"`
}

type rawExternal struct {
	Name string `yaml:"name"`
	Code string `yaml:"code"`
}

// LoadFile reads and parses the catalog document at path.
func LoadFile(path string, opts Options) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	doc, err := Parse(data, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse validates and converts a YAML catalog document.
func Parse(data []byte, opts Options) (*Document, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	version, err := semver.NewVersion(raw.Version)
	if err != nil {
		return nil, fmt.Errorf("catalog version %q: %w", raw.Version, err)
	}
	if opts.MinVersion != "" {
		min, err := semver.NewVersion(opts.MinVersion)
		if err != nil {
			return nil, fmt.Errorf("minimum catalog version %q: %w", opts.MinVersion, err)
		}
		if version.LessThan(min) {
			return nil, fmt.Errorf("%w: %s is older than %s", ErrUnsupportedVersion, version, min)
		}
	}

	doc := &Document{Version: version}
	sectorIDs := make(map[string]bool, len(raw.Sectors))
	for _, s := range raw.Sectors {
		doc.Sectors = append(doc.Sectors, indicator.Sector{ID: s.ID, Code: s.Code, Name: s.Name})
		sectorIDs[s.ID] = true
	}

	refs := make(map[string]indicator.IndicatorRef, len(raw.Indicators))
	for _, ri := range raw.Indicators {
		refs[ri.ID] = indicator.IndicatorRef{ID: ri.ID, Code: ri.Code, Name: ri.Name}
	}

	var problems []string
	for _, ri := range raw.Indicators {
		ind, errs := convert(ri, refs, sectorIDs)
		problems = append(problems, errs...)
		doc.Indicators = append(doc.Indicators, ind)
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid catalog:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return doc, nil
}

func convert(ri rawIndicator, refs map[string]indicator.IndicatorRef, sectorIDs map[string]bool) (indicator.Indicator, []string) {
	var problems []string

	ind := indicator.Indicator{
		ID:              ri.ID,
		Code:            ri.Code,
		Name:            ri.Name,
		Level:           indicator.HierarchyLevel(ri.Level),
		PeopleOrBenefit: indicator.PeopleOrBenefit(ri.PeopleOrBenefit),
		Series:          ri.Series,
		MainSectorID:    ri.MainSector,
		Selectable:      ri.Selectable == nil || *ri.Selectable,
	}
	if ind.PeopleOrBenefit == "" {
		ind.PeopleOrBenefit = indicator.Benefit
	}

	for _, m := range ri.Sectors {
		if !sectorIDs[m.Sector] {
			problems = append(problems, fmt.Sprintf("indicator %s: unknown sector %q", ri.ID, m.Sector))
		}
		ind.Memberships = append(ind.Memberships, indicator.Membership{SectorID: m.Sector, Series: m.Series})
	}

	for _, id := range ri.Paired {
		ref, ok := refs[id]
		if !ok {
			problems = append(problems, fmt.Sprintf("indicator %s: unknown paired indicator %q", ri.ID, id))
			continue
		}
		ind.PairedRefs = append(ind.PairedRefs, ref)
	}

	if len(ri.External) > 0 {
		ind.External = make(map[string]indicator.ExternalInfo, len(ri.External))
		for key, ext := range ri.External {
			ind.External[key] = indicator.ExternalInfo{Name: ext.Name, Code: ext.Code}
		}
	}

	if err := ind.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	return ind, problems
}

// validateSchema checks the generic YAML tree against the embedded schema.
// The tree is passed through JSON so numbers reach the validator as
// json.Number.
func validateSchema(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}

	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("decode catalog: %w", err)
	}
	encoded, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("decode catalog: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(encoded))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode catalog: %w", err)
	}

	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("catalog schema validation failed: %w", err)
	}
	return nil
}

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("catalog schema load failed: %w", err)
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("catalog schema compile failed: %w", schemaErr)
		}
	})
	return schema, schemaErr
}
