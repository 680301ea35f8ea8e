package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/wbrown/janus-aql/aql/annotations"
	"github.com/wbrown/janus-aql/aql/engine"
	"github.com/wbrown/janus-aql/aql/storage"
)

// listFlag collects a repeatable flag.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	var (
		dbPath     string
		configPath string
		format     string
		output     string
		logLevel   string
		verbose    bool
		loads      listFlag
		plans      listFlag
	)

	flag.StringVar(&dbPath, "db", "", "database path")
	flag.StringVar(&configPath, "config", "", "engine config file (YAML)")
	flag.StringVar(&format, "format", "table", "output format: table, json or jsonz")
	flag.StringVar(&output, "o", "", "write results to this file instead of stdout")
	flag.StringVar(&logLevel, "log-level", "", "log level (overrides the config)")
	flag.BoolVar(&verbose, "verbose", false, "verbose mode (show execution annotations)")
	flag.Var(&loads, "load", "load JSON lines into a collection, as collection=path (repeatable)")
	flag.Var(&plans, "plan", "plan file to run (repeatable; several plans run in parallel)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Runs AQL execution plans against a document store.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -db data.db -load users=users.jsonl       # Load documents\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -db data.db -plan adults.yaml             # Run a plan\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -plan a.yaml -plan b.yaml -format json    # Run plans in parallel\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -verbose -plan a.yaml                     # Show annotations\n", os.Args[0])
	}
	flag.Parse()

	if len(loads) == 0 && len(plans) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := engine.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = engine.LoadConfig(configPath); err != nil {
			logrus.Fatalf("Failed to load config: %v", err)
		}
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if verbose {
		cfg.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid config: %v", err)
	}
	log := cfg.NewLogger()

	var store *storage.Store
	if dbPath != "" {
		var err error
		if store, err = storage.Open(dbPath); err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer store.Close()
	}

	for _, spec := range loads {
		collection, path, ok := strings.Cut(spec, "=")
		if !ok || collection == "" || path == "" {
			log.Fatalf("Invalid -load %q, expected collection=path", spec)
		}
		if store == nil {
			log.Fatalf("-load needs -db")
		}
		n, err := loadFile(store, collection, path)
		if err != nil {
			log.Fatalf("Failed to load %s: %v", path, err)
		}
		log.WithFields(logrus.Fields{"collection": collection, "documents": n}).Info("loaded")
	}
	if len(plans) == 0 {
		return
	}

	parsed := make([]*engine.Plan, len(plans))
	for i, path := range plans {
		p, err := engine.LoadPlan(path)
		if err != nil {
			log.Fatalf("%v", err)
		}
		if p.Name == "" {
			p.Name = path
		}
		parsed[i] = p
	}

	runner := engine.NewRunner(cfg, store)
	runner.SetLogger(log)
	if cfg.Verbose {
		formatter := annotations.NewOutputFormatter(os.Stderr)
		runner.SetAnnotationHandler(formatter.Handle)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var (
		results []*engine.Result
		err     error
	)
	if len(parsed) == 1 {
		var res *engine.Result
		res, err = runner.Run(ctx, parsed[0])
		results = []*engine.Result{res}
	} else {
		results, err = runner.RunParallel(ctx, parsed)
	}
	if err != nil {
		log.Fatalf("Execution error: %v", err)
	}

	out := os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			log.Fatalf("Failed to create %s: %v", output, err)
		}
		defer f.Close()
		out = f
	}
	for i, res := range results {
		if err := writeResult(out, format, parsed[i].Name, res, len(results) > 1); err != nil {
			log.Fatalf("Failed to write results: %v", err)
		}
		log.WithFields(logrus.Fields{
			"plan":     parsed[i].Name,
			"rows":     len(res.Rows),
			"waits":    res.Waits,
			"duration": res.Duration,
			"peak":     res.PeakMemory,
		}).Info("query finished")
	}
}

func loadFile(store *storage.Store, collection, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return store.LoadJSONLines(collection, f)
}

func writeResult(out *os.File, format, name string, res *engine.Result, titled bool) error {
	switch format {
	case "table":
		if titled {
			fmt.Fprintf(out, "### %s\n\n", name)
		}
		_, err := fmt.Fprintln(out, engine.NewTableFormatter().FormatResult(res))
		return err
	case "json":
		return engine.WriteJSONLines(out, res)
	case "jsonz":
		return engine.WriteCompressedJSONLines(out, res)
	}
	return fmt.Errorf("unknown format %q", format)
}
