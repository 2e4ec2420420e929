package main

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/indicators/internal/core"
	"github.com/JonMunkholm/indicators/internal/indicator"
)

// errInvalidSelection makes validate exit non-zero after printing problems.
var errInvalidSelection = errors.New("selection is not valid")

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate a catalog document and print a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, catalog, err := opts.loadCatalog()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "  ✓  %s (version %s)\n", opts.catalogPath, doc.Version)
			fmt.Fprintf(out, "     %d indicators in %d sectors\n", catalog.Len(), len(catalog.Sectors()))

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, s := range catalog.Sectors() {
				fmt.Fprintf(tw, "     %s\t%s\t%d\n", s.Code, s.Name, len(catalog.Listing(s.ID)))
			}
			return tw.Flush()
		},
	}
}

func newQueryCmd(opts *options) *cobra.Command {
	var (
		layer string
		req   core.QueryRequest
		level string
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "List the indicators of a layer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.service()
			if err != nil {
				return err
			}
			req.Level = indicator.HierarchyLevel(level)
			ctx := opts.context(cmd)

			overview, err := svc.Overview(ctx, opts.projectID(), layer, req)
			if err != nil {
				return userError(err)
			}
			return printRows(cmd.OutOrStdout(), overview.Rows, overview.Selection)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&layer, "layer", "l", "project", "layer to query")
	f.StringVarP(&req.SectorID, "sector", "s", "", "sector id")
	f.StringVar(&req.Series, "series", "", "sector series")
	f.StringVar(&level, "level", "", "hierarchy level")
	f.StringVar(&req.ExternalTag, "external", "", "funder key, or \"internal\"")
	f.StringVarP(&req.Text, "text", "t", "", "search text")
	f.StringVarP(&req.Expr, "where", "w", "", "CEL filter expression")
	f.BoolVar(&req.OnlySelected, "selected", false, "only selected indicators")
	f.BoolVar(&req.IncludePaired, "paired", false, "include paired indicators")
	f.BoolVar(&req.SortByKey, "sort-key", false, "order by series instead of code")
	return cmd
}

func newSelectCmd(opts *options) *cobra.Command {
	var layer string
	cmd := &cobra.Command{
		Use:   "select <sector> [indicator ids...]",
		Short: "Replace the selection of a sector, adding implied globals",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.service()
			if err != nil {
				return err
			}
			res, err := svc.Select(opts.context(cmd), opts.projectID(), layer, args[0], args[1:])
			if err != nil {
				return userError(err)
			}

			out := cmd.OutOrStdout()
			for _, msg := range res.Info.Messages {
				fmt.Fprintf(out, "  ~  %s\n", msg)
			}
			for _, sectorID := range sortedSectors(res.Selection) {
				fmt.Fprintf(out, "  ✓  %s: %s\n", sectorID, strings.Join(res.Selection[sectorID], ", "))
			}
			for _, dep := range res.Synced {
				for sectorID, ids := range res.Orphans[dep] {
					fmt.Fprintf(out, "  ⚠  [%s] no longer offered in %s: %s\n", dep, sectorID, strings.Join(ids, ", "))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&layer, "layer", "l", "project", "layer to edit")
	return cmd
}

func newSectorsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sectors [sector ids...]",
		Short: "Set the project's sectors; no ids puts every sector in scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.service()
			if err != nil {
				return err
			}
			if err := svc.SetSectors(opts.context(cmd), opts.projectID(), args); err != nil {
				return userError(err)
			}
			scope := "all sectors"
			if len(args) > 0 {
				scope = strings.Join(args, ", ")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  ✓  project scope: %s\n", scope)
			return nil
		},
	}
}

func newValidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [layer]",
		Short: "Check a layer against the selection rules",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layer := "project"
			if len(args) == 1 {
				layer = args[0]
			}
			svc, err := opts.service()
			if err != nil {
				return err
			}
			report, err := svc.Validate(opts.context(cmd), opts.projectID(), layer)
			if err != nil {
				return userError(err)
			}

			out := cmd.OutOrStdout()
			if report.Valid {
				fmt.Fprintf(out, "  ✓  %s selection is valid\n", layer)
				return nil
			}
			for _, msg := range report.Messages {
				fmt.Fprintf(out, "  ✗  %s\n", msg)
			}
			return errInvalidSelection
		},
	}
}

func newEventsCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the project's selection history, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.service()
			if err != nil {
				return err
			}
			events, err := svc.Events(opts.context(cmd), opts.projectID(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tACTION\tSEVERITY\tLAYER\tSECTOR\tREQUESTED")
			for _, ev := range events {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					ev.CreatedAt.Format("2006-01-02 15:04:05"), ev.Action, ev.Severity,
					ev.Layer, ev.SectorID, strings.Join(ev.Requested, ","))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", core.DefaultEventLimit, "number of events")
	return cmd
}

func printRows(w io.Writer, rows []indicator.SectorIndicator, sel indicator.Selection) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SECTOR\tCODE\tNAME\tLEVEL\tSELECTED")
	for _, si := range rows {
		mark := ""
		if sel.Has(si.Sector.ID, si.ID) {
			mark = "✓"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", si.Sector.ID, si.Code, si.Name, si.Level, mark)
	}
	return tw.Flush()
}

// userError adds the support code of known errors.
func userError(err error) error {
	if !core.IsUserFacing(err) {
		return err
	}
	return fmt.Errorf("%s: %w", core.FormatUserError(err), err)
}

func sortedSectors(m core.SelectionMap) []string {
	keys := make([]string, 0, len(m))
	for k, ids := range m {
		if len(ids) > 0 {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}
