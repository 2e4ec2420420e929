// Command indicatorctl checks catalog documents and edits project
// selections stored in local YAML state files.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/indicators/internal/catalogfile"
	"github.com/JonMunkholm/indicators/internal/core"
	_ "github.com/JonMunkholm/indicators/internal/core/layers" // Register all layers
	"github.com/JonMunkholm/indicators/internal/filestore"
	"github.com/JonMunkholm/indicators/internal/indicator"
	"github.com/JonMunkholm/indicators/internal/logging"
)

// options holds the persistent flags shared by every command.
type options struct {
	catalogPath string
	minVersion  string
	groupPaired bool
	stateDir    string
	project     string
	admin       bool
	lockTimeout time.Duration
	logLevel    string
	limits      core.Limits
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "indicatorctl",
		Short:         "Inspect indicator catalogs and edit project selections",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(logging.New(cmd.ErrOrStderr(), opts.logLevel, "text"))
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	f := root.PersistentFlags()
	f.StringVar(&opts.catalogPath, "catalog", os.Getenv("CATALOG_PATH"), "catalog document (default $CATALOG_PATH)")
	f.StringVar(&opts.minVersion, "min-version", "1.0.0", "oldest accepted catalog version")
	f.BoolVar(&opts.groupPaired, "group-paired", true, "list paired indicators as one row")
	f.StringVar(&opts.stateDir, "state-dir", ".indicators", "directory of project state files")
	f.StringVarP(&opts.project, "project", "p", "default", "project name or UUID")
	f.BoolVar(&opts.admin, "admin", false, "allow restricted indicators")
	f.DurationVar(&opts.lockTimeout, "lock-timeout", filestore.DefaultLockTimeout, "how long to wait for the state file lock")
	f.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	f.IntVar(&opts.limits.MaxPerSector, "max-per-sector", 0, "validation: max indicators per sector (0 = off)")
	f.IntVar(&opts.limits.MaxSectors, "max-sectors", 0, "validation: max sectors with selections (0 = off)")
	f.IntVar(&opts.limits.MinTotal, "min-total", 1, "validation: min selected indicators")
	f.IntVar(&opts.limits.MaxTotal, "max-total", 0, "validation: max selected indicators (0 = off)")

	root.AddCommand(
		newCheckCmd(opts),
		newQueryCmd(opts),
		newSelectCmd(opts),
		newSectorsCmd(opts),
		newValidateCmd(opts),
		newEventsCmd(opts),
	)
	return root
}

// projectID accepts a UUID or derives a stable one from a project name.
func (o *options) projectID() uuid.UUID {
	if id, err := uuid.Parse(o.project); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("indicators:project:"+o.project))
}

func (o *options) loadCatalog() (*catalogfile.Document, *indicator.Catalog, error) {
	if o.catalogPath == "" {
		return nil, nil, fmt.Errorf("no catalog: pass --catalog or set CATALOG_PATH")
	}
	doc, err := catalogfile.LoadFile(o.catalogPath, catalogfile.Options{MinVersion: o.minVersion})
	if err != nil {
		return nil, nil, err
	}
	catalog, err := doc.Build(indicator.BuildOptions{GroupPaired: o.groupPaired})
	if err != nil {
		return nil, nil, err
	}
	return doc, catalog, nil
}

// service opens the catalog and the state directory.
func (o *options) service() (*core.Service, error) {
	_, catalog, err := o.loadCatalog()
	if err != nil {
		return nil, err
	}
	store, err := filestore.New(o.stateDir, o.lockTimeout)
	if err != nil {
		return nil, err
	}
	return core.NewService(catalog, store, core.Options{Limits: o.limits})
}

// context returns the command context, privileged when --admin is set.
func (o *options) context(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = core.ContextWithUserAgent(ctx, "indicatorctl")
	if o.admin {
		ctx = core.ContextWithPrivileged(ctx)
	}
	return ctx
}
