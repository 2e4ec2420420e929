// Package filter compiles CEL expressions into indicator query predicates.
//
// Expressions see one sector row at a time through these variables:
//
//	id, code, name, level, series, sector, peopleOrBenefit  string
//	mainSector, crossSectoral, selectable                   bool
//	funders                                                  list(string)
//	paired                                                   int
//
// Example: level == "sub" && crossSectoral && "usaid" in funders
package filter

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/cel-go/cel"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/JonMunkholm/indicators/internal/indicator"
)

// maxPrograms bounds the compiled-program cache; expressions arrive from
// request parameters.
const maxPrograms = 256

// Compiler turns expressions into predicates, caching the most recently
// used compiled programs.
type Compiler struct {
	env      *cel.Env
	programs *lru.Cache[string, cel.Program]
}

// NewCompiler creates a compiler with the indicator variables declared.
func NewCompiler() (*Compiler, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("code", cel.StringType),
		cel.Variable("name", cel.StringType),
		cel.Variable("level", cel.StringType),
		cel.Variable("series", cel.StringType),
		cel.Variable("sector", cel.StringType),
		cel.Variable("peopleOrBenefit", cel.StringType),
		cel.Variable("mainSector", cel.BoolType),
		cel.Variable("crossSectoral", cel.BoolType),
		cel.Variable("selectable", cel.BoolType),
		cel.Variable("funders", cel.ListType(cel.StringType)),
		cel.Variable("paired", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	programs, err := lru.New[string, cel.Program](maxPrograms)
	if err != nil {
		return nil, fmt.Errorf("failed to create program cache: %w", err)
	}
	return &Compiler{env: env, programs: programs}, nil
}

// Compile returns a predicate for expr. The expression must be boolean.
// A row whose evaluation fails does not match.
func (c *Compiler) Compile(expr string) (func(indicator.SectorIndicator) bool, error) {
	prg, err := c.program(expr)
	if err != nil {
		return nil, err
	}
	return func(si indicator.SectorIndicator) bool {
		out, _, err := prg.Eval(activation(si))
		if err != nil {
			slog.Debug("filter evaluation failed", "expr", expr, "indicator", si.ID, "error", err)
			return false
		}
		ok, _ := out.Value().(bool)
		return ok
	}, nil
}

func (c *Compiler) program(expr string) (cel.Program, error) {
	if prg, hit := c.programs.Get(expr); hit {
		return prg, nil
	}

	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("filter %q: %w", expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter %q: result must be bool, got %s", expr, ast.OutputType())
	}
	prg, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("filter %q: %w", expr, err)
	}
	c.programs.Add(expr, prg)
	return prg, nil
}

func activation(si indicator.SectorIndicator) map[string]any {
	funders := make([]string, 0, len(si.External))
	for key := range si.External {
		funders = append(funders, key)
	}
	sort.Strings(funders)

	return map[string]any{
		"id":              si.ID,
		"code":            si.Code,
		"name":            si.Name,
		"level":           string(si.Level),
		"series":          si.SectorSeries,
		"sector":          si.Sector.ID,
		"peopleOrBenefit": string(si.PeopleOrBenefit),
		"mainSector":      si.IsMainSector,
		"crossSectoral":   si.IsCrossSectoral(),
		"selectable":      si.Selectable,
		"funders":         funders,
		"paired":          int64(len(si.Paired)),
	}
}
