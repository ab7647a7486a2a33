package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"world-study/pkg/api"
	"world-study/pkg/config"
	"world-study/pkg/database"
	"world-study/pkg/logger"
	"world-study/pkg/metrics"
	"world-study/pkg/regionsource"
	"world-study/pkg/snapshot"
	"world-study/pkg/worlddata"
	"world-study/public_html/regions"
)

// settings carries the environment defaults (.env, WORLD_STUDY_*) that the
// flags below start from.
var settings = loadSettings()

var domain = flag.String("domain", settings.Domain, "Use 80 and 443 ports. Automatic HTTPS cert via Let's Encrypt.")
var port = flag.Int("port", settings.Port, "Port for running the server")
var logLevel = flag.String("log-level", settings.LogLevel, "Log level: debug, info, warn, error")
var regionsFile = flag.String("regions", settings.Regions, "Region JSON file (object keyed by id or array)")
var snapshotFile = flag.String("snapshot", settings.Snapshot, "Region snapshot written by regionctl build")
var overridesFile = flag.String("overrides", settings.Overrides, "Hjson file overriding scale, exclusions and tolerance")
var publicURL = flag.String("public-url", settings.PublicURL, "Base URL embedded in share QR codes")
var dbType = flag.String("db-type", settings.DBType, "Load regions from a database: sqlite, chai, genji, duckdb or pgx (postgresql)")
var dbPath = flag.String("db-path", settings.DBPath, "Path to the database file (defaults to the current folder, embedded drivers only)")
var dbConn = flag.String("db-conn", settings.DBConn, "Full PostgreSQL connection URL (pgx driver)")
var dbHost = flag.String("db-host", settings.DBHost, "Database host (pgx driver)")
var dbPort = flag.Int("db-port", settings.DBPort, "Database port (pgx driver)")
var dbUser = flag.String("db-user", settings.DBUser, "Database user (pgx driver)")
var dbPass = flag.String("db-pass", settings.DBPass, "Database password (pgx driver)")
var dbName = flag.String("db-name", settings.DBName, "Database name (pgx driver)")
var pgSSLMode = flag.String("pg-ssl-mode", settings.PGSSLMode, "PostgreSQL SSL mode: disable, allow, prefer, require, verify-ca, or verify-full")
var version = flag.Bool("version", false, "Show the application version")

var CompileVersion = "dev"

func loadSettings() config.Settings {
	s, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "environment: %v\n", err)
		os.Exit(2)
	}
	return s
}

func setupLogging(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("unknown log level %q, using info", level)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func main() {
	flag.Parse()
	if *version {
		fmt.Printf("world-study version %s\n", CompileVersion)
		return
	}
	setupLogging(*logLevel)

	if *domain != "" && runtime.GOOS != "windows" && os.Geteuid() != 0 {
		log.Warn("binding to :80 / :443 requires super-user rights; run with sudo or as root")
	}

	if err := run(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

// run wires storage, registry and routes, then serves until a signal
// arrives or a listener fails. Deferred cleanup always runs.
func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Database (optional)
	var db *database.Database
	if *dbType != "" {
		var err error
		db, err = database.NewDatabase(database.Config{
			DBType:    *dbType,
			DBPath:    *dbPath,
			DBConn:    *dbConn,
			DBHost:    *dbHost,
			DBPort:    *dbPort,
			DBUser:    *dbUser,
			DBPass:    *dbPass,
			DBName:    *dbName,
			PGSSLMode: *pgSSLMode,
			Port:      *port,
		}, log.Infof)
		if err != nil {
			return fmt.Errorf("DB init: %w", err)
		}
		defer db.Close()
		if err := db.InitSchema(ctx); err != nil {
			return fmt.Errorf("DB schema: %w", err)
		}
	}

	// 2. Records and build options
	source, records, err := loadRecords(ctx, db)
	if err != nil {
		return fmt.Errorf("load regions: %w", err)
	}
	opt, err := buildOptions(*overridesFile)
	if err != nil {
		return fmt.Errorf("overrides: %w", err)
	}

	// 3. Registry
	data, rep := worlddata.Build(records, opt)
	opt.Log.Sync()
	log.WithFields(log.Fields{
		"build":    rep.BuildID,
		"source":   source,
		"regions":  rep.Regions,
		"polygons": rep.Polygons,
		"skipped":  rep.Skipped,
		"failures": len(rep.Failures),
		"took":     rep.Duration.Round(time.Millisecond),
	}).Info("registry ready")
	for _, f := range rep.Failures {
		log.WithField("region", f.RegionID).Warnf("%s stage: %v", f.Stage, f.Err)
	}

	m, err := metrics.New(nil)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	m.ObserveBuild(rep)

	if db != nil {
		if err := db.RecordBuildRun(ctx, database.RunFromReport(source, rep)); err != nil {
			log.Warnf("record build run: %v", err)
		}
	}

	// 4. Routes
	h, err := api.NewHandler(data, m, *publicURL, log.Errorf)
	if err != nil {
		return fmt.Errorf("api: %w", err)
	}
	defer h.Close()
	if db != nil {
		h.BuildRuns = func(ctx context.Context, limit int) (any, error) {
			return db.RecentBuildRuns(ctx, limit)
		}
	}
	if *domain != "" {
		h.OriginPatterns = []string{*domain, "www." + *domain}
	}

	mux := http.NewServeMux()
	h.Register(mux)
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "ok %s %d regions\n", rep.BuildID, data.Len())
	})
	rootHandler := withServerHeader(mux)

	// 5. HTTP/HTTPS servers
	if *domain != "" {
		return serveWithDomain(ctx, *domain, rootHandler)
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           rootHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Infof("HTTP server ➜ http://localhost%s", srv.Addr)
	return serveUntilDone(ctx, listener{srv: srv, listen: srv.ListenAndServe})
}

// loadRecords picks the first configured source: snapshot, region file,
// database, then the embedded sample.
func loadRecords(ctx context.Context, db *database.Database) (string, []worlddata.Record, error) {
	switch {
	case *snapshotFile != "":
		snap, err := snapshot.ReadFile(*snapshotFile)
		if err != nil {
			return "", nil, err
		}
		log.Infof("snapshot %s from %s (%s)", *snapshotFile, snap.Source, snap.Created().Format(time.RFC3339))
		return "snapshot", snap.Records, nil
	case *regionsFile != "":
		f, err := os.Open(*regionsFile)
		if err != nil {
			return "", nil, err
		}
		defer f.Close()
		recs, err := regionsource.ReadJSON(f)
		return "json", recs, err
	case db != nil:
		recs, err := db.LoadRegions(ctx)
		if err != nil {
			return "", nil, err
		}
		if len(recs) == 0 {
			log.Warnf("database has no regions; falling back to the embedded sample (import with regionctl import)")
			break
		}
		return "db:" + strings.ToLower(*dbType), recs, nil
	}
	recs, err := regionsource.ReadJSON(bytes.NewReader(regions.Sample))
	return "sample", recs, err
}

// buildOptions applies the override file to the defaults and hooks the
// build up to logrus.
func buildOptions(path string) (worlddata.Options, error) {
	opt := worlddata.DefaultOptions()
	if path != "" {
		o, err := config.LoadOverrides(path)
		if err != nil {
			return opt, err
		}
		if opt, err = o.Apply(opt); err != nil {
			return opt, err
		}
	}
	opt.Logf = log.Debugf
	opt.Log = logger.New(log.StandardLogger())
	return opt, nil
}
