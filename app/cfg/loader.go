package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// SPARQL endpoints
	SourceEndpoint  string `long:"source-sparql-endpoint" env:"SOURCE_SPARQL_ENDPOINT" default:"http://kaleidos:8890/sparql" description:"SPARQL endpoint of the source (Kaleidos) store, read-only"`
	WorkingEndpoint string `long:"working-sparql-endpoint" env:"WORKING_SPARQL_ENDPOINT" default:"http://database:8890/sparql" description:"SPARQL endpoint of the working store (scratch, export and job graphs)"`

	// Graphs
	SourceGraph string `long:"source-graph" env:"SOURCE_GRAPH" default:"http://mu.semte.ch/graphs/organizations/kanselarij" description:"Graph in the source store holding the meeting records"`
	PublicGraph string `long:"public-graph" env:"PUBLIC_GRAPH" default:"http://mu.semte.ch/graphs/public" description:"Target graph recorded in .graph sidecar files for downstream loading"`

	// Export configuration
	ExportDir            string `long:"export-dir" env:"EXPORT_DIR" default:"/data/exports/" description:"Directory the Turtle export files are written to"`
	ExportBatchSize      int    `long:"export-batch-size" env:"EXPORT_BATCH_SIZE" default:"1000" description:"Number of triples per CONSTRUCT page when serializing a graph to file"`
	CleanupFailedExports bool   `long:"cleanup-failed-exports" env:"CLEANUP_FAILED_EXPORTS" description:"Remove files already written by a job when that job fails"`

	// Application configuration
	Port            string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	JobPollInterval int    `long:"job-poll-interval" env:"JOB_POLL_INTERVAL" default:"60" description:"Idle interval in seconds between job queue polls"`
	UserAgent       string `long:"user-agent" env:"USER_AGENT" default:"public-export-service/1.0" description:"User agent string for SPARQL requests"`
	Timezone        string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, Europe/Brussels)"`
	Debug           bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		SourceEndpoint:       raw.SourceEndpoint,
		WorkingEndpoint:      raw.WorkingEndpoint,
		SourceGraph:          raw.SourceGraph,
		PublicGraph:          raw.PublicGraph,
		ExportDir:            raw.ExportDir,
		ExportBatchSize:      raw.ExportBatchSize,
		CleanupFailedExports: raw.CleanupFailedExports,
		Port:                 raw.Port,
		JobPollInterval:      raw.JobPollInterval,
		UserAgent:            raw.UserAgent,
		Timezone:             raw.Timezone,
		Debug:                raw.Debug,
		Version:              GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
