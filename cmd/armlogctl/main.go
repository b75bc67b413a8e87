package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"armlog/internal/config"
	"armlog/internal/explog"
	"armlog/internal/logging"
	"armlog/internal/metrics"
	"armlog/internal/server"
	"armlog/internal/watch"
	"armlog/pkg/armlog"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "parse":
		return runParse(ctx, args[1:])
	case "data":
		return runData(ctx, args[1:])
	case "import":
		return runImport(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "show":
		return runShow(ctx, args[1:])
	case "fitness":
		return runFitness(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "delete":
		return runDelete(ctx, args[1:])
	case "serve":
		return runServe(ctx, args[1:])
	case "watch":
		return runWatch(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runParse(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("parse", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	file := fs.String("file", "", "experiment log to parse")
	jsonOut := fs.Bool("json", false, "emit the episode summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("parse requires --file")
	}

	env, err := common.open(fs)
	if err != nil {
		return err
	}
	defer env.close()

	inspection, err := env.client.Inspect(ctx, armlog.ImportRequest{Path: *file})
	if err != nil {
		return err
	}
	exp := inspection.Experiment

	type episodeItem struct {
		Number      int      `json:"number"`
		Kind        string   `json:"kind"`
		Steps       int      `json:"steps"`
		Channels    []int    `json:"channels"`
		Networks    int      `json:"networks,omitempty"`
		BestFitness *float64 `json:"best_fitness,omitempty"`
	}
	items := make([]episodeItem, 0, exp.EpisodeCount())
	for _, ep := range exp.Episodes() {
		item := episodeItem{
			Number:   ep.Number(),
			Kind:     ep.Kind().String(),
			Steps:    ep.Steps(),
			Channels: ep.ChannelIDs(),
			Networks: ep.NetworkCount(),
		}
		if ep.Kind() == explog.KindGenetic {
			best := ep.HighestFitness()
			item.BestFitness = &best
		}
		items = append(items, item)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"kind":     exp.Kind().String(),
			"episodes": items,
		})
	}

	fmt.Println(exp.String())
	for _, item := range items {
		line := fmt.Sprintf("episode=%d kind=%s steps=%d channels=%s", item.Number, item.Kind, item.Steps, formatInts(item.Channels))
		if item.BestFitness != nil {
			line += fmt.Sprintf(" networks=%d best_fitness=%.6f", item.Networks, *item.BestFitness)
		}
		fmt.Println(line)
	}
	return nil
}

func runData(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("data", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	file := fs.String("file", "", "experiment log to materialize")
	jsonOut := fs.Bool("json", false, "emit the materialized arrays as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("data requires --file")
	}

	env, err := common.open(fs)
	if err != nil {
		return err
	}
	defer env.close()

	inspection, err := env.client.Inspect(ctx, armlog.ImportRequest{Path: *file})
	if err != nil {
		return err
	}
	data := inspection.Data

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		switch {
		case data.Random != nil:
			return enc.Encode(map[string]any{"kind": "random", "shape": data.Random.Shape(), "channel_ids": data.Random.ChannelIDs, "values": data.Random.Values})
		case data.Genetic != nil:
			return enc.Encode(map[string]any{"kind": "genetic", "shape": data.Genetic.Shape(), "channel_ids": data.Genetic.ChannelIDs, "best_fitness": data.Genetic.BestFitness, "rankings": data.Genetic.Rankings, "values": data.Genetic.Values})
		default:
			return enc.Encode(map[string]any{"kind": "none"})
		}
	}

	switch {
	case data.Random != nil:
		d := data.Random
		fmt.Printf("kind=random shape=%v\n", d.Shape())
		for c, id := range d.ChannelIDs {
			fmt.Printf("servo=%d values=%s\n", id, formatFloats(d.Row(c)))
		}
	case data.Genetic != nil:
		d := data.Genetic
		fmt.Printf("kind=genetic shape=%v\n", d.Shape())
		for g, ranking := range d.Rankings {
			fmt.Printf("generation=%d episode=%d best_fitness=%.6f ranking=%s\n", g+1, ranking.Episode, d.BestFitness[g], formatInts(ranking.NetworkIndexes))
		}
	default:
		fmt.Println("no episodes found")
	}
	return nil
}

func runImport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	file := fs.String("file", "", "experiment log to import")
	runID := fs.String("run-id", "", "run id (default: random uuid)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("import requires --file")
	}
	info, err := os.Stat(*file)
	if err != nil {
		return err
	}

	env, err := common.open(fs)
	if err != nil {
		return err
	}
	defer env.close()

	summary, err := env.client.Import(ctx, armlog.ImportRequest{Path: *file, RunID: *runID})
	if err != nil {
		return err
	}
	printImportSummary(summary, info.Size())
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	env, err := common.open(fs)
	if err != nil {
		return err
	}
	defer env.close()

	runs, err := env.client.Runs(ctx, armlog.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	if *jsonOut {
		type runsItem struct {
			RunID           string  `json:"run_id"`
			CreatedAtUTC    string  `json:"created_at_utc"`
			Source          string  `json:"source,omitempty"`
			Kind            string  `json:"kind"`
			EpisodeCount    int     `json:"episode_count"`
			ChannelCount    int     `json:"channel_count"`
			StepsPerEpisode int     `json:"steps_per_episode"`
			NetworkCount    int     `json:"network_count,omitempty"`
			BestFitness     float64 `json:"best_fitness,omitempty"`
		}
		items := make([]runsItem, 0, len(runs))
		for _, r := range runs {
			items = append(items, runsItem(r))
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	for _, r := range runs {
		fmt.Printf("run_id=%s created=%s kind=%s episodes=%d servos=%d steps=%d networks=%d best_fitness=%.6f source=%s\n",
			r.RunID,
			humanizeCreated(r.CreatedAtUTC),
			r.Kind,
			r.EpisodeCount,
			r.ChannelCount,
			r.StepsPerEpisode,
			r.NetworkCount,
			r.BestFitness,
			r.Source,
		)
	}
	return nil
}

func runShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show the most recent run from run index")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkRunSelector("show", *runID, *latest); err != nil {
		return err
	}

	env, err := common.open(fs)
	if err != nil {
		return err
	}
	defer env.close()

	record, err := env.client.Run(ctx, armlog.RunRequest{RunID: *runID, Latest: *latest})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(record)
}

func runFitness(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fitness", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show fitness history for the most recent run from run index")
	limit := fs.Int("limit", 50, "max generations to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit fitness history as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkRunSelector("fitness", *runID, *latest); err != nil {
		return err
	}
	if *limit < 0 {
		*limit = 0
	}

	env, err := common.open(fs)
	if err != nil {
		return err
	}
	defer env.close()

	history, err := env.client.FitnessHistory(ctx, armlog.FitnessHistoryRequest{
		RunID:  *runID,
		Latest: *latest,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Println("no fitness history")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(history)
	}

	for i, best := range history {
		fmt.Printf("generation=%d best_fitness=%.6f\n", i+1, best)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", "", "export output directory (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkRunSelector("export", *runID, *latest); err != nil {
		return err
	}

	env, err := common.open(fs)
	if err != nil {
		return err
	}
	defer env.close()

	exported, err := env.client.Export(ctx, armlog.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Printf("exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
	return nil
}

func runDelete(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	runID := fs.String("run-id", "", "run id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID == "" {
		return errors.New("delete requires --run-id")
	}

	env, err := common.open(fs)
	if err != nil {
		return err
	}
	defer env.close()

	if err := env.client.Delete(ctx, *runID); err != nil {
		return err
	}
	fmt.Printf("deleted run_id=%s\n", *runID)
	return nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	addr := fs.String("addr", "", "listen address (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := common.open(fs)
	if err != nil {
		return err
	}
	defer env.close()

	listen := env.cfg.Server.Addr
	if *addr != "" {
		listen = *addr
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(env.client, server.Options{
		Logger:         env.logger,
		Metrics:        env.metrics,
		MaxBodyBytes:   env.cfg.Server.MaxBodyBytes,
		AllowedOrigins: env.cfg.Server.AllowedOrigins,
		ReadTimeout:    env.cfg.Server.ReadTimeout,
		WriteTimeout:   env.cfg.Server.WriteTimeout,
	})
	return srv.ListenAndServe(ctx, listen)
}

func runWatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	common := registerCommonFlags(fs)
	file := fs.String("file", "", "experiment log to follow")
	runID := fs.String("run-id", "", "run id to re-import under (default: file name)")
	debounce := fs.Duration("debounce", 0, "quiet period before re-import (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("watch requires --file")
	}

	env, err := common.open(fs)
	if err != nil {
		return err
	}
	defer env.close()

	id := *runID
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(*file), filepath.Ext(*file))
	}
	wait := env.cfg.Watch.Debounce
	if *debounce > 0 {
		wait = *debounce
	}

	w, err := watch.New(*file, watch.Options{Debounce: wait, Initial: true, Logger: env.logger})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return w.Run(ctx, func(ctx context.Context) error {
		info, err := os.Stat(w.Path())
		if err != nil {
			return err
		}
		summary, err := env.client.Import(ctx, armlog.ImportRequest{Path: w.Path(), RunID: id, Source: *file})
		if err != nil {
			return err
		}
		printImportSummary(summary, info.Size())
		return nil
	})
}

type commonFlags struct {
	configPath *string
	storeKind  *string
	dbPath     *string
	artifacts  *string
	exports    *string
	workers    *int
	logLevel   *string
}

func registerCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath: fs.String("config", "", "YAML config file"),
		storeKind:  fs.String("store", "", "store backend: memory|sqlite"),
		dbPath:     fs.String("db-path", "", "sqlite database path"),
		artifacts:  fs.String("artifacts", "", "run artifacts directory"),
		exports:    fs.String("exports", "", "default export directory"),
		workers:    fs.Int("workers", 0, "episodes parsed in parallel"),
		logLevel:   fs.String("log-level", "", "debug|info|warn|error|development"),
	}
}

type cliEnv struct {
	cfg     config.Config
	client  *armlog.Client
	logger  *zap.Logger
	metrics *metrics.Collector
}

// open loads the config file and lets explicitly set flags override it.
func (f commonFlags) open(fs *flag.FlagSet) (*cliEnv, error) {
	cfg, err := config.Load(*f.configPath)
	if err != nil {
		return nil, err
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "store":
			cfg.Store.Kind = *f.storeKind
		case "db-path":
			cfg.Store.DBPath = *f.dbPath
		case "artifacts":
			cfg.ArtifactsDir = *f.artifacts
		case "exports":
			cfg.ExportsDir = *f.exports
		case "workers":
			cfg.Workers = *f.workers
		case "log-level":
			cfg.LogLevel = *f.logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	collector := metrics.NewCollector()
	client, err := armlog.New(armlog.Options{
		StoreKind:    cfg.Store.Kind,
		DBPath:       cfg.Store.DBPath,
		ArtifactsDir: cfg.ArtifactsDir,
		ExportsDir:   cfg.ExportsDir,
		Workers:      cfg.Workers,
		Logger:       logger,
		Metrics:      collector,
	})
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return &cliEnv{cfg: cfg, client: client, logger: logger, metrics: collector}, nil
}

func (e *cliEnv) close() {
	_ = e.client.Close()
	_ = e.logger.Sync()
}

func checkRunSelector(command, runID string, latest bool) error {
	if runID != "" && latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if runID == "" && !latest {
		return fmt.Errorf("%s requires --run-id or --latest", command)
	}
	return nil
}

func printImportSummary(s armlog.ImportSummary, size int64) {
	fmt.Printf("imported run_id=%s kind=%s episodes=%d servos=%d steps=%d networks=%d best_fitness=%.6f read=%s artifacts=%s\n",
		s.RunID,
		s.Kind,
		s.EpisodeCount,
		s.ChannelCount,
		s.StepsPerEpisode,
		s.NetworkCount,
		s.BestFitness,
		humanize.Bytes(uint64(size)),
		s.ArtifactsDir,
	)
}

func humanizeCreated(createdAt string) string {
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return createdAt
	}
	return humanize.Time(ts)
}

func formatInts(values []int) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, ",")
}

func formatFloats(values []float64) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, fmt.Sprintf("%g", v))
	}
	return strings.Join(parts, ",")
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: armlogctl <parse|data|import|runs|show|fitness|export|delete|serve|watch> [flags]", msg)
}
