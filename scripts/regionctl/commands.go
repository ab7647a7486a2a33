package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"world-study/pkg/config"
	"world-study/pkg/database"
	"world-study/pkg/logger"
	"world-study/pkg/regionsource"
	"world-study/pkg/snapshot"
	"world-study/pkg/worlddata"
	"world-study/public_html/regions"
)

// inputs names the record sources a command reads.
type inputs struct {
	Regions  string
	Snapshot string
	Catalog  string
	Extras   string
	GeoJSON  string
	SVG      string
}

func (in *inputs) bind(cmd *cobra.Command, full bool) {
	f := cmd.Flags()
	f.StringVar(&in.Regions, "regions", "", "Region JSON file")
	f.StringVar(&in.Snapshot, "snapshot", "", "Region snapshot")
	if !full {
		return
	}
	f.StringVar(&in.Catalog, "catalog", "", "Country catalog JSON (name, cca2, region, area, population, tld)")
	f.StringVar(&in.Extras, "extras", "", "Hjson extras file with enclaves and capitals")
	f.StringVar(&in.GeoJSON, "geojson", "", "GeoJSON FeatureCollection with country boundaries")
	f.StringVar(&in.SVG, "svg", "", "SVG world map with one path per region")
}

// load reads every configured source and merges them: catalog metadata
// first, then geometry from the boundary sources. Without any source the
// embedded sample is used.
func (in *inputs) load() (string, []worlddata.Record, error) {
	var (
		base    []worlddata.Record
		shapes  []worlddata.Record
		sources []string
	)
	read := func(path, name string, fn func(io.Reader) error) error {
		if path == "" {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := fn(f); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		sources = append(sources, name)
		return nil
	}

	steps := []struct {
		path, name string
		fn         func(io.Reader) error
	}{
		{in.Snapshot, "snapshot", func(r io.Reader) error {
			snap, err := snapshot.Read(r)
			if err == nil {
				base = append(base, snap.Records...)
			}
			return err
		}},
		{in.Regions, "json", func(r io.Reader) error {
			recs, err := regionsource.ReadJSON(r)
			base = append(base, recs...)
			return err
		}},
		{in.Catalog, "catalog", func(r io.Reader) error {
			recs, err := regionsource.ReadCatalog(r)
			base = append(base, recs...)
			return err
		}},
		{in.GeoJSON, "geojson", func(r io.Reader) error {
			recs, skipped, err := regionsource.ReadGeoJSON(r, regionsource.DefaultGeoJSONOptions())
			if skipped > 0 {
				log.Infof("geojson: %d features without a usable id or polygon skipped", skipped)
			}
			shapes = append(shapes, recs...)
			return err
		}},
		{in.SVG, "svg", func(r io.Reader) error {
			recs, skipped, err := regionsource.ReadSVGMap(r)
			if skipped > 0 {
				log.Infof("svg: %d paths without an id skipped", skipped)
			}
			shapes = append(shapes, recs...)
			return err
		}},
	}
	for _, s := range steps {
		if err := read(s.path, s.name, s.fn); err != nil {
			return "", nil, err
		}
	}

	if len(sources) == 0 {
		recs, err := regionsource.ReadJSON(bytes.NewReader(regions.Sample))
		return "sample", recs, err
	}
	records := regionsource.MergeGeometry(base, shapes)
	if in.Extras != "" {
		f, err := os.Open(in.Extras)
		if err != nil {
			return "", nil, err
		}
		ex, err := regionsource.ReadExtras(f)
		f.Close()
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", in.Extras, err)
		}
		ex.Apply(records)
		sources = append(sources, "extras")
	}
	return strings.Join(sources, "+"), records, nil
}

func openDB(ctx context.Context) (*database.Database, error) {
	if opts.DB.DBType == "" {
		return nil, errors.New("--db-type is required")
	}
	db, err := database.NewDatabase(opts.DB, log.Debugf)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// buildRegistry runs a full registry build over records and logs the
// contained failures.
func buildRegistry(records []worlddata.Record, overrides string) (*worlddata.Data, *worlddata.Report, error) {
	opt := worlddata.DefaultOptions()
	if overrides != "" {
		o, err := config.LoadOverrides(overrides)
		if err != nil {
			return nil, nil, err
		}
		if opt, err = o.Apply(opt); err != nil {
			return nil, nil, err
		}
	}
	opt.Logf = log.Debugf
	opt.Log = logger.New(log.StandardLogger())
	data, rep := worlddata.Build(records, opt)
	opt.Log.Sync()
	for _, f := range rep.Failures {
		log.WithField("region", f.RegionID).Warnf("%s stage: %v", f.Stage, f.Err)
	}
	return data, rep, nil
}

// writeRecords writes JSON for a .json path and a snapshot otherwise.
func writeRecords(path, source string, records []worlddata.Record) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := regionsource.WriteJSON(f, records); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
	return snapshot.WriteFile(path, source, records)
}

var buildIn inputs
var buildOut, buildOverrides string
var buildCheck bool

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Merge sources into a region JSON file or snapshot",
	Example: `  regionctl build --catalog countries.json --extras extras.hjson --geojson ne_110m.geojson --out regions.snap
  regionctl build --svg world.svg --regions meta.json --out regions.json --check`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if buildOut == "" {
			return errors.New("--out is required")
		}
		source, records, err := buildIn.load()
		if err != nil {
			return err
		}
		if buildCheck {
			_, rep, err := buildRegistry(records, buildOverrides)
			if err != nil {
				return err
			}
			log.Infof("check: %d regions, %d polygons, %d failures in %s",
				rep.Regions, rep.Polygons, len(rep.Failures), rep.Duration)
			if len(rep.Failures) > 0 {
				return fmt.Errorf("%d regions failed: %s", len(rep.FailedRegions()), strings.Join(rep.FailedRegions(), ", "))
			}
		}
		if err := writeRecords(buildOut, source, records); err != nil {
			return err
		}
		log.Infof("wrote %d records from %s to %s", len(records), source, buildOut)
		return nil
	},
}

var importIn inputs
var importOverrides string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Replace the database regions with the given sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		source, records, err := importIn.load()
		if err != nil {
			return err
		}
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.ReplaceRegions(ctx, records); err != nil {
			return err
		}
		_, rep, err := buildRegistry(records, importOverrides)
		if err != nil {
			return err
		}
		if err := db.RecordBuildRun(ctx, database.RunFromReport("import:"+source, rep)); err != nil {
			return err
		}
		log.Infof("imported %d records into %s (build %s, %d failures)", len(records), db.Driver, rep.BuildID, len(rep.Failures))
		return nil
	},
}

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the database regions to a JSON file or snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportOut == "" {
			return errors.New("--out is required")
		}
		ctx := cmd.Context()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()
		records, err := db.LoadRegions(ctx)
		if err != nil {
			return err
		}
		if err := writeRecords(exportOut, "db:"+db.Driver, records); err != nil {
			return err
		}
		log.Infof("exported %d records to %s", len(records), exportOut)
		return nil
	},
}

var locateIn inputs
var locateOverrides string
var locateExplain bool

var locateCmd = &cobra.Command{
	Use:   "locate X Y [X Y ...]",
	Short: "Print the region under each point",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 || len(args)%2 != 0 {
			return errors.New("expected pairs of coordinates")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		points, err := parsePoints(args)
		if err != nil {
			return err
		}
		_, records, err := locateIn.load()
		if err != nil {
			return err
		}
		data, _, err := buildRegistry(records, locateOverrides)
		if err != nil {
			return err
		}
		return printLocations(cmd.OutOrStdout(), data, points, locateExplain)
	},
}

var runsLimit int
var runsJSON bool

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent registry builds recorded in the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()
		runs, err := db.RecentBuildRuns(ctx, runsLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if runsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(runs)
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSOURCE\tSTARTED\tDURATION\tREGIONS\tPOLYGONS\tFAILURES")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n", r.ID, r.Source, r.StartedAt.Format("2006-01-02 15:04:05"),
				r.Duration, r.Regions, r.Polygons, r.Failures)
		}
		return tw.Flush()
	},
}

func init() {
	buildIn.bind(buildCmd, true)
	buildCmd.Flags().StringVarP(&buildOut, "out", "o", "", "Output file (.json for region JSON, anything else for a snapshot)")
	buildCmd.Flags().StringVar(&buildOverrides, "overrides", "", "Hjson override file used by --check")
	buildCmd.Flags().BoolVar(&buildCheck, "check", false, "Build the registry and fail on any contained failure")

	importIn.bind(importCmd, true)
	importCmd.Flags().StringVar(&importOverrides, "overrides", "", "Hjson override file for the recorded build")

	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (.json for region JSON, anything else for a snapshot)")

	locateIn.bind(locateCmd, false)
	locateCmd.Flags().StringVar(&locateOverrides, "overrides", "", "Hjson override file")
	locateCmd.Flags().BoolVar(&locateExplain, "explain", false, "Print index statistics for each lookup")

	runsCmd.Flags().IntVar(&runsLimit, "limit", 10, "Number of runs to list")
	runsCmd.Flags().BoolVar(&runsJSON, "json", false, "Print JSON instead of a table")
}

type point struct{ X, Y float64 }

func parsePoints(args []string) ([]point, error) {
	out := make([]point, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		x, err := strconv.ParseFloat(args[i], 64)
		if err != nil {
			return nil, fmt.Errorf("x %q: %w", args[i], err)
		}
		y, err := strconv.ParseFloat(args[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("y %q: %w", args[i+1], err)
		}
		out = append(out, point{x, y})
	}
	return out, nil
}

func printLocations(w io.Writer, data *worlddata.Data, points []point, explain bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, p := range points {
		id, ok, st := data.Explain(p.X, p.Y)
		name := "-"
		if reg, found := data.Region(id); ok && found {
			name = reg.Name
		} else {
			id = "-"
		}
		if explain {
			fmt.Fprintf(tw, "%g\t%g\t%s\t%s\tnodes=%d candidates=%d matches=%d\n",
				p.X, p.Y, id, name, st.NodesVisited, st.Candidates, st.Matches)
			continue
		}
		fmt.Fprintf(tw, "%g\t%g\t%s\t%s\n", p.X, p.Y, id, name)
	}
	return tw.Flush()
}
