// regionctl prepares region data offline and answers point lookups from
// the shell.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/profile"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"world-study/pkg/config"
	"world-study/pkg/database"
	_ "world-study/pkg/database/drivers"
)

// opts holds the persistent flags shared by every command.
var opts struct {
	LogLevel string
	Profile  string
	DB       database.Config
}

var rootCmd = &cobra.Command{
	Use:           "regionctl",
	Short:         "Build, import and query world-study region data",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		lvl, err := log.ParseLevel(opts.LogLevel)
		if err != nil {
			return err
		}
		log.SetLevel(lvl)
		return nil
	},
}

func init() {
	settings, err := config.Load()
	if err != nil {
		log.Warnf("environment: %v", err)
	}
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})

	rootCmd.AddCommand(buildCmd, importCmd, exportCmd, locateCmd, runsCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.LogLevel, "log-level", orDefault(settings.LogLevel, "info"), "Log level: debug, info, warn, error")
	pf.StringVar(&opts.Profile, "profile", "", "Write a profile to the current folder: cpu, mem, block or trace")
	pf.StringVar(&opts.DB.DBType, "db-type", settings.DBType, "Database driver: sqlite, chai, genji, duckdb or pgx")
	pf.StringVar(&opts.DB.DBPath, "db-path", settings.DBPath, "Database file for embedded drivers")
	pf.StringVar(&opts.DB.DBConn, "db-conn", settings.DBConn, "Full PostgreSQL connection URL")
	pf.StringVar(&opts.DB.DBHost, "db-host", orDefault(settings.DBHost, "127.0.0.1"), "Database host (pgx)")
	pf.IntVar(&opts.DB.DBPort, "db-port", settings.DBPort, "Database port (pgx)")
	pf.StringVar(&opts.DB.DBUser, "db-user", settings.DBUser, "Database user (pgx)")
	pf.StringVar(&opts.DB.DBPass, "db-pass", settings.DBPass, "Database password (pgx)")
	pf.StringVar(&opts.DB.DBName, "db-name", settings.DBName, "Database name (pgx)")
	pf.StringVar(&opts.DB.PGSSLMode, "pg-ssl-mode", orDefault(settings.PGSSLMode, "prefer"), "PostgreSQL SSL mode")
	opts.DB.Port = settings.Port
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// startProfile begins the profile named by --profile. The returned stop
// func is never nil.
func startProfile(kind string) func() {
	var mode func(*profile.Profile)
	switch strings.ToLower(kind) {
	case "":
		return func() {}
	case "cpu":
		mode = profile.CPUProfile
	case "mem":
		mode = profile.MemProfile
	case "block":
		mode = profile.BlockProfile
	case "trace":
		mode = profile.TraceProfile
	default:
		log.Warnf("unknown profile %q ignored", kind)
		return func() {}
	}
	return profile.Start(mode, profile.ProfilePath("."), profile.NoShutdownHook, profile.Quiet).Stop
}

func main() {
	// --profile must be known before cobra runs the command.
	for i, arg := range os.Args {
		if v, ok := strings.CutPrefix(arg, "--profile="); ok {
			opts.Profile = v
		} else if arg == "--profile" && i+1 < len(os.Args) {
			opts.Profile = os.Args[i+1]
		}
	}
	stop := startProfile(opts.Profile)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	stop()
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
