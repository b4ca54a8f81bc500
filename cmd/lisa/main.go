// Package main implements the lisa binary: one-shot trace inspection
// (summary, event dump, squash) and the serve mode exposing a loaded
// trace over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/vdonnefort/lisa/internal/app"
	"github.com/vdonnefort/lisa/internal/config"
	"github.com/vdonnefort/lisa/internal/storage"
	"github.com/vdonnefort/lisa/internal/trace"
	"github.com/vdonnefort/lisa/internal/tracedb"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile   string
		envFile      string
		dataDir      string
		addr         string
		bundleDir    string
		traceID      string
		platformFile string
		eventsFlag   string
		windowFlag   string
		absolute     bool
		serveMode    bool
		dumpEvent    string
		whereExpr    string
		limit        int
		squashSpec   string
		debug        bool
		showVersion  bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&envFile, "env", "", "Path to dotenv file (default .env)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for all data files")
	flag.StringVar(&addr, "addr", "", "HTTP address for serve mode")
	flag.StringVar(&bundleDir, "bundle", "", "Local trace bundle directory")
	flag.StringVar(&traceID, "trace-id", "", "Archived trace bundle to fetch")
	flag.StringVar(&platformFile, "platform", "", "Platform description file (YAML or JSON)")
	flag.StringVar(&eventsFlag, "events", "", "Comma-separated events to load (default all)")
	flag.StringVar(&windowFlag, "window", "", "Restrict the trace to start:end seconds")
	flag.BoolVar(&absolute, "absolute", false, "Keep absolute timestamps instead of rebasing to zero")
	flag.BoolVar(&serveMode, "serve", false, "Serve the trace over HTTP")
	flag.StringVar(&dumpEvent, "dump", "", "Print one event table")
	flag.StringVar(&whereExpr, "where", "", "Row filter expression for -dump")
	flag.IntVar(&limit, "limit", 0, "Row limit for -dump (0 prints everything)")
	flag.StringVar(&squashSpec, "squash", "", "Squash an event over a window: event:start:end")
	flag.BoolVar(&debug, "debug", false, "Enable verbose logging")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "lisa - kernel trace inspection and serving\n\n")
		fmt.Fprintf(os.Stderr, "Usage: lisa [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  lisa -bundle ./trace.bundle\n")
		fmt.Fprintf(os.Stderr, "  lisa -bundle ./trace.bundle -dump sched_switch -where 'next_pid == 1234'\n")
		fmt.Fprintf(os.Stderr, "  lisa -bundle ./trace.bundle -squash sched_overutilized:1.0:2.0\n")
		fmt.Fprintf(os.Stderr, "  lisa -trace-id tr-9f2 -platform juno.yaml -serve -addr :8080\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  LISA_DATA_DIR       Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  LISA_HTTP_ADDR      HTTP address for serve mode\n")
		fmt.Fprintf(os.Stderr, "  LISA_STORAGE_TYPE   Storage type (local, s3)\n")
		fmt.Fprintf(os.Stderr, "  LISA_S3_BUCKET      Bucket holding archived bundles\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("lisa version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(configFile, envFile, dataDir, addr, eventsFlag, absolute, debug)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	var platform *config.Platform
	if platformFile != "" {
		platform, err = config.LoadPlatform(platformFile)
		if err != nil {
			log.Fatalf("Failed to load platform description: %v", err)
		}
	}

	if serveMode {
		runServe(cfg, app.ServeSpec{
			TraceID:   traceID,
			BundleDir: bundleDir,
			Platform:  platform,
		})
		return
	}

	tr, traceName, cleanup, err := loadTraceOnce(cfg, bundleDir, traceID, platform, windowFlag)
	if err != nil {
		log.Fatalf("Failed to load trace: %v", err)
	}
	defer cleanup()

	switch {
	case dumpEvent != "":
		err = runDump(tr, dumpEvent, whereExpr, limit)
	case squashSpec != "":
		err = runSquash(tr, squashSpec)
	default:
		runSummary(tr, traceName)
	}
	if err != nil {
		cleanup()
		log.Fatalf("%v", err)
	}
}

// loadConfig layers the configuration sources: file, then environment,
// then command line flags.
func loadConfig(configFile, envFile, dataDir, addr, eventsFlag string, absolute, debug bool) (*config.Config, error) {
	config.LoadEnvFile(envFile)

	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if addr != "" {
		cfg.HTTP.Addr = addr
	}
	if eventsFlag != "" {
		cfg.Load.Events = splitEvents(eventsFlag)
	}
	if absolute {
		cfg.Load.NormalizeTime = false
	}
	if debug {
		cfg.Debug = true
	}

	cfg.Resolve()
	return cfg, nil
}

// runServe starts the API server and blocks until a shutdown signal.
func runServe(cfg *config.Config, spec app.ServeSpec) {
	application, err := app.New(cfg, spec)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	if err := application.WaitForShutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}

	if err := application.Stop(context.Background()); err != nil {
		log.Printf("Shutdown error: %v", err)
		os.Exit(1)
	}
}

// loadTraceOnce loads a trace for a one-shot command, either from a
// local bundle directory or by fetching an archived bundle.
func loadTraceOnce(cfg *config.Config, bundleDir, traceID string, platform *config.Platform, windowFlag string) (*trace.Trace, string, func(), error) {
	if bundleDir == "" && traceID == "" {
		return nil, "", nil, fmt.Errorf("need a bundle directory (-bundle) or a trace ID (-trace-id)")
	}

	ctx := context.Background()

	dir := bundleDir
	if dir == "" {
		archive, err := newArchive(cfg)
		if err != nil {
			return nil, "", nil, err
		}
		dir, err = archive.Fetch(ctx, traceID)
		if err != nil {
			return nil, "", nil, fmt.Errorf("failed to fetch bundle %s: %w", traceID, err)
		}
	}

	pool := tracedb.NewConnectionPool(tracedb.PoolConfig{
		MaxBundles:     cfg.Load.PoolSize,
		ConnsPerBundle: cfg.Load.Concurrency,
	})

	bundle, err := tracedb.Open(ctx, dir, pool)
	if err != nil {
		pool.Close()
		return nil, "", nil, err
	}
	cleanup := func() {
		bundle.Close()
		pool.Close()
	}

	in, err := bundle.Load(ctx, tracedb.LoadSpec{
		Events:      cfg.Load.Events,
		Concurrency: cfg.Load.Concurrency,
		Platform:    platform,
	})
	if err != nil {
		cleanup()
		return nil, "", nil, err
	}

	opts := []trace.Option{
		trace.WithNormalizedTime(cfg.Load.NormalizeTime),
		trace.WithDebug(cfg.Debug),
	}
	if windowFlag != "" {
		start, end, err := parseWindow(windowFlag)
		if err != nil {
			cleanup()
			return nil, "", nil, err
		}
		opts = append(opts, trace.WithWindow(start, end))
	}

	tr, err := trace.New(in, opts...)
	if err != nil {
		cleanup()
		return nil, "", nil, err
	}

	name := bundle.Metadata().TraceID
	if name == "" {
		name = traceID
	}
	return tr, name, cleanup, nil
}

// newArchive builds the bundle archive from the storage configuration.
func newArchive(cfg *config.Config) (*storage.BundleArchive, error) {
	var store storage.ObjectStorage
	var err error

	switch cfg.Storage.Type {
	case "local":
		store, err = storage.NewLocalStorage(cfg.Storage.Path)
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		if cfg.Storage.S3.Region != "" {
			s3Cfg.Region = cfg.Storage.S3.Region
		}
		if cfg.Storage.S3.Endpoint != "" {
			s3Cfg.Endpoint = cfg.Storage.S3.Endpoint
			s3Cfg.UsePathStyle = true
		}
		store, err = storage.NewS3Storage(context.Background(), cfg.Storage.S3.Bucket, s3Cfg)
	default:
		err = fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
	if err != nil {
		return nil, err
	}

	cacheBytes := int64(cfg.Storage.CacheSizeMB) * 1024 * 1024
	return storage.NewBundleArchive(store, cfg.Storage.DownloadDir, cacheBytes), nil
}

// runSummary prints the trace overview.
func runSummary(tr *trace.Trace, traceName string) {
	if traceName == "" {
		traceName = "(unnamed)"
	}
	fmt.Printf("Trace:         %s (%s)\n", traceName, tr.Format())
	fmt.Printf("Span:          %.6fs .. %.6fs (%.6fs)\n", tr.StartTime(), tr.EndTime(), tr.TimeRange())
	if n := tr.CPUCount(); n > 0 {
		fmt.Printf("CPUs:          %d\n", n)
	}
	fmt.Printf("Events:        %d\n", len(tr.Available()))
	fmt.Printf("Tasks:         %d\n", len(tr.Tasks()))
	fmt.Printf("Overutilized:  %.6fs (%.1f%%)\n", tr.OverutilizedTime(), tr.OverutilizedPct())
	if tr.FreqCoherent() {
		fmt.Printf("Frequency:     coherent\n")
	} else {
		f := tr.FreqIncoherency()
		fmt.Printf("Frequency:     incoherent (domain %v at %.6fs)\n", f.Domain, f.Timestamp)
	}
	if tr.HasFunctionStats() {
		fmt.Printf("Function rows: %d\n", len(tr.FunctionStats()))
	}

	fmt.Printf("\nAvailable events:\n")
	for _, name := range tr.Available() {
		t, err := tr.Get(name)
		if err != nil {
			continue
		}
		fmt.Printf("  %-40s %d records\n", name, t.Len())
	}
}

// runDump prints one event table, filtered and truncated per the flags.
func runDump(tr *trace.Trace, event, whereExpr string, limit int) error {
	t, err := tr.Get(event)
	if err != nil {
		return err
	}
	if whereExpr != "" {
		t, err = trace.Filter(t, whereExpr)
		if err != nil {
			return err
		}
	}
	if limit > 0 && limit < t.Len() {
		t = t.Slice(0, limit)
	}
	printTable(t)
	return nil
}

// runSquash squashes an event over a window given as event:start:end.
func runSquash(tr *trace.Trace, spec string) error {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return fmt.Errorf("squash spec must be event:start:end, got %q", spec)
	}
	start, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return fmt.Errorf("bad squash start %q: %w", parts[1], err)
	}
	end, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return fmt.Errorf("bad squash end %q: %w", parts[2], err)
	}

	out, err := tr.SquashEvent(parts[0], start, end, "delta")
	if err != nil {
		return err
	}
	printTable(out)
	return nil
}

// printTable writes a table to stdout, one record per line.
func printTable(t *trace.Table) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	cols := t.Columns()
	header := make([]string, 0, len(cols)+1)
	header = append(header, "ts")
	for _, col := range cols {
		header = append(header, col.Name())
	}
	fmt.Fprintln(w, strings.Join(header, "\t"))

	for i := 0; i < t.Len(); i++ {
		parts := make([]string, 0, len(cols)+1)
		parts = append(parts, strconv.FormatFloat(t.Time(i), 'f', 6, 64))
		for _, col := range cols {
			parts = append(parts, fmt.Sprintf("%v", col.Value(i)))
		}
		fmt.Fprintln(w, strings.Join(parts, "\t"))
	}
	w.Flush()
}

// parseWindow parses a start:end window; an empty end keeps everything
// from start onwards.
func parseWindow(raw string) (float64, float64, error) {
	startStr, endStr, ok := strings.Cut(raw, ":")
	if !ok {
		return 0, 0, fmt.Errorf("window must be start:end, got %q", raw)
	}
	start, err := strconv.ParseFloat(startStr, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad window start %q: %w", startStr, err)
	}
	end := -1.0
	if endStr != "" {
		end, err = strconv.ParseFloat(endStr, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("bad window end %q: %w", endStr, err)
		}
	}
	return start, end, nil
}

// splitEvents splits a comma-separated event list, dropping empty names.
func splitEvents(raw string) []string {
	var out []string
	for _, e := range strings.Split(raw, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}
