// qbyte is the command line companion to qbyted: it runs generation
// sessions, analyses existing trial logs and manages the run catalog schema.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/qbyte.report/internal/chart"
	"github.com/banshee-data/qbyte.report/internal/reg"
	"github.com/banshee-data/qbyte.report/internal/regdb"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: qbyte <command> [flags]

Commands:
  run       run a generation session and print its summary
  analyse   analyse an existing trial log file
  migrate   manage the run catalog schema (up | down | status)

Run 'qbyte <command> -h' for command flags.
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runCommand(os.Args[2:])
	case "analyse", "analyze":
		analyseCommand(os.Args[2:])
	case "migrate":
		migrateCommand(os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func runCommand(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var (
		iterations = fs.Int("iterations", 60, "Number of trials to run (0 with -continuous)")
		continuous = fs.Bool("continuous", false, "Run until interrupted")
		dataDir    = fs.String("data-dir", "data", "Directory for trial log files")
		remarks    = fs.String("remarks", "CLI", "Run label, part of the log file name")
		colorZ     = fs.Float64("color-z", reg.DefaultColorZ, "Color event z threshold")
		rotZ       = fs.Float64("rot-z", reg.DefaultRotZ, "Rotation event z threshold")
		width      = fs.Int("width", reg.DefaultSampleWidth, "Bytes sampled per trial")
		turbo      = fs.Bool("turbo", false, "Mark trials as turbo mode")
		delay      = fs.Duration("delay", reg.DefaultTrialDelay, "Pause between trials")
		serial     = fs.String("serial", "", "Serial device path for a TrueRNG entropy source")
	)
	fs.Parse(args)

	params := reg.DefaultParams()
	params.ColorZ = *colorZ
	params.RotZ = *rotZ
	params.SampleWidth = *width
	params.Turbo = *turbo
	params.UseTrueRNG = *serial != ""

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		log.Fatalf("failed to create data directory: %v", err)
	}

	cfg := reg.SessionConfig{
		Params:    params,
		OutputDir: *dataDir,
		Remarks:   *remarks,
		Delay:     *delay,
	}
	if *serial != "" {
		sampler, err := reg.OpenSerialSampler(*serial)
		if err != nil {
			log.Fatalf("failed to open entropy source: %v", err)
		}
		defer sampler.Close()
		cfg.Sampler = sampler
	}

	session, err := reg.NewSession(cfg)
	if err != nil {
		log.Fatalf("failed to start session: %v", err)
	}
	defer session.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *continuous {
		log.Printf("streaming to %s, interrupt to stop", session.LogPath())
		for res := range session.Stream(ctx) {
			for _, e := range res.Events {
				log.Printf("trial %d: %s event (bit sum %d)", res.Iteration, e.Kind, res.BitSum)
			}
		}
		printSummary(session.Summary())
		return
	}

	summary, err := session.RunBounded(ctx, *iterations)
	if err != nil {
		if ctx.Err() != nil {
			log.Printf("interrupted after %d trials", session.Counts().Trials)
			printSummary(session.Summary())
			return
		}
		log.Fatalf("run failed: %v", err)
	}
	printSummary(summary)
}

func analyseCommand(args []string) {
	fs := flag.NewFlagSet("analyse", flag.ExitOnError)
	var (
		limit   = fs.Int("limit", reg.DefaultAnalysisLimit, "Trial limit for the series, 0 for all")
		asJSON  = fs.Bool("json", false, "Emit the full summary as JSON")
		pngPath = fs.String("png", "", "Also write a PNG visualisation to this path")
	)
	fs.Parse(args)

	if fs.NArg() != 1 {
		log.Fatal("Usage: qbyte analyse [flags] <log file>")
	}
	path := fs.Arg(0)

	summary, err := reg.AnalyzeFile(path, *limit)
	if err != nil {
		log.Fatalf("analysis failed: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			log.Fatalf("failed to encode summary: %v", err)
		}
	} else {
		printSummary(summary)
	}

	if *pngPath != "" {
		f, err := os.Create(*pngPath)
		if err != nil {
			log.Fatalf("failed to create %s: %v", *pngPath, err)
		}
		defer f.Close()
		if err := chart.WritePNG(summary, "Qbyte Data Analysis: "+path, f); err != nil {
			log.Fatalf("failed to render plot: %v", err)
		}
		log.Printf("wrote %s", *pngPath)
	}
}

func printSummary(s *reg.Summary) {
	fmt.Printf("parameters: colorZ=%g rotZ=%g width=%d trueRNG=%v turbo=%v\n",
		s.Params.ColorZ, s.Params.RotZ, s.Params.SampleWidth, s.Params.UseTrueRNG, s.Params.Turbo)
	fmt.Printf("thresholds: %s\n", s.Stats)
	fmt.Printf("trials=%d colorEvents=%d rotationEvents=%d\n",
		s.Events.Trials, s.Events.Color, s.Events.Rotation)
	if n := len(s.CumulativeDeviation); n > 0 {
		fmt.Printf("final deviation %.1f against a ±%.1f envelope over %d trials\n",
			s.CumulativeDeviation[n-1], s.ConfidenceEnvelope[n-1], n)
	}
}

func migrateCommand(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dbPath := fs.String("db", "qbyte.db", "Path to the run catalog database")
	fs.Parse(args)

	if fs.NArg() < 1 {
		log.Fatal("Usage: qbyte migrate [flags] <up|down|status>")
	}

	db, err := regdb.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open run catalog: %v", err)
	}
	defer db.Close()

	start := time.Now()
	switch fs.Arg(0) {
	case "up":
		if err := db.Migrate(); err != nil {
			log.Fatalf("migration up failed: %v", err)
		}
		log.Printf("migrations applied in %v", time.Since(start).Round(time.Millisecond))
	case "down":
		if err := db.MigrateDown(); err != nil {
			log.Fatalf("migration down failed: %v", err)
		}
		log.Println("rolled back one migration")
	case "status":
		version, dirty, err := db.MigrateVersion()
		if err != nil {
			log.Fatalf("failed to read migration status: %v", err)
		}
		fmt.Printf("version=%d dirty=%v\n", version, dirty)
	default:
		log.Fatalf("unknown migrate action %q", fs.Arg(0))
	}
}
