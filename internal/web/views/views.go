// Package views renders the HTML pages of the indicator service as templ
// components.
package views

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

// Row is one indicator line of a layer page.
type Row struct {
	Code       string
	Name       string
	Level      string
	Selected   bool
	Restricted bool
}

// SectorSection groups the rows of one sector.
type SectorSection struct {
	Name string
	Rows []Row
}

// LayerPage is the data of the layer overview page.
type LayerPage struct {
	ProjectID  string
	LayerLabel string
	Sectors    []SectorSection
	// Problems are the failed validation messages of the layer.
	Problems []string
}

// Layer renders the indicators of one project layer, selected rows marked.
func Layer(page LayerPage) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		e := templ.EscapeString[string]
		p := &printer{w: w}

		p.printf(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>%s</title></head><body>`, e(page.LayerLabel))
		p.printf(`<h1>%s</h1><p class="project">Project %s</p>`, e(page.LayerLabel), e(page.ProjectID))

		if len(page.Problems) > 0 {
			p.printf(`<ul class="problems">`)
			for _, msg := range page.Problems {
				p.printf(`<li>%s</li>`, e(msg))
			}
			p.printf(`</ul>`)
		}

		for _, sector := range page.Sectors {
			p.printf(`<section><h2>%s</h2><table><thead><tr><th></th><th>Code</th><th>Name</th><th>Level</th></tr></thead><tbody>`, e(sector.Name))
			for _, row := range sector.Rows {
				mark := ""
				if row.Selected {
					mark = "&#10003;"
				}
				class := ""
				if row.Restricted {
					class = ` class="restricted"`
				}
				p.printf(`<tr%s><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
					class, mark, e(row.Code), e(row.Name), e(row.Level))
			}
			p.printf(`</tbody></table></section>`)
		}

		p.printf(`</body></html>`)
		return p.err
	})
}

// ErrorAlert renders a user-facing error with its support code.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		e := templ.EscapeString[string]
		p := &printer{w: w}
		p.printf(`<div class="alert alert-error" role="alert"><p>%s</p>`, e(message))
		if action != "" {
			p.printf(`<p class="action">%s</p>`, e(action))
		}
		p.printf(`<p class="code">Code: %s</p></div>`, e(code))
		return p.err
	})
}

// printer keeps the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
