package armlog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"armlog/internal/explog"
	"armlog/internal/materialize"
	"armlog/internal/metrics"
	"armlog/internal/model"
	"armlog/internal/stats"
	"armlog/internal/storage"
)

const (
	defaultArtifactsDir = "runs"
	defaultExportsDir   = "exports"
	defaultDBPath       = "armlog.db"
)

var (
	ErrRunNotFound  = errors.New("run not found")
	ErrNoRuns       = errors.New("no runs available")
	ErrNoEpisodes   = errors.New("log contains no episodes")
	ErrMissingInput = errors.New("import requires a path or log lines")
	ErrInvalidRunID = errors.New("invalid run id")
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
	Workers      int
	Logger       *zap.Logger
	Metrics      *metrics.Collector
	// Now stamps imported runs; defaults to time.Now.
	Now func() time.Time
}

type Client struct {
	store storage.Store

	initMu      sync.Mutex
	initialized bool

	artifactsDir string
	exportsDir   string
	workers      int
	logger       *zap.Logger
	metrics      *metrics.Collector
	now          func() time.Time
}

type ImportRequest struct {
	Path  string
	Lines []string
	RunID string
	// Source labels the run; defaults to Path.
	Source string
}

type ImportSummary struct {
	RunID           string
	Kind            string
	Description     string
	EpisodeCount    int
	ChannelCount    int
	StepsPerEpisode int
	NetworkCount    int
	BestFitness     float64
	ArtifactsDir    string
}

// Inspection is a parsed log that has not been stored.
type Inspection struct {
	Experiment *explog.Experiment
	Data       materialize.Result
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID           string
	CreatedAtUTC    string
	Source          string
	Kind            string
	EpisodeCount    int
	ChannelCount    int
	StepsPerEpisode int
	NetworkCount    int
	BestFitness     float64
}

type RunRequest struct {
	RunID  string
	Latest bool
}

type FitnessHistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
		workers:      workers,
		logger:       logger,
		metrics:      opts.Metrics,
		now:          now,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) ArtifactsDir() string { return c.artifactsDir }

// Inspect parses and materializes a log without storing anything.
func (c *Client) Inspect(ctx context.Context, req ImportRequest) (Inspection, error) {
	lines, _, err := readRequest(req)
	if err != nil {
		return Inspection{}, err
	}
	return c.inspect(ctx, lines)
}

func (c *Client) inspect(ctx context.Context, lines []string) (Inspection, error) {
	if err := ctx.Err(); err != nil {
		return Inspection{}, err
	}
	start := time.Now()
	exp, err := explog.ParseExperiment(lines,
		explog.WithLogger(c.logger),
		explog.WithWorkers(c.workers),
	)
	kind := explog.KindNone.String()
	if exp != nil {
		kind = exp.Kind().String()
	}
	var data materialize.Result
	if err == nil {
		data, err = materialize.Materialize(exp)
	}
	episodes := 0
	if exp != nil {
		episodes = exp.EpisodeCount()
	}
	c.metrics.ObserveParse(kind, episodes, time.Since(start), err)
	if err != nil {
		return Inspection{}, err
	}
	return Inspection{Experiment: exp, Data: data}, nil
}

// Import parses a log and persists its summary, fitness history, channel
// traces and artifact directory under a run id.
func (c *Client) Import(ctx context.Context, req ImportRequest) (ImportSummary, error) {
	lines, source, err := readRequest(req)
	if err != nil {
		return ImportSummary{}, err
	}
	inspection, err := c.inspect(ctx, lines)
	if err != nil {
		return ImportSummary{}, err
	}
	exp := inspection.Experiment
	if exp.Empty() {
		return ImportSummary{}, ErrNoEpisodes
	}
	if err := c.ensureStore(ctx); err != nil {
		return ImportSummary{}, err
	}

	runID := strings.TrimSpace(req.RunID)
	if runID == "" {
		runID = uuid.NewString()
	}
	if err := checkRunID(runID); err != nil {
		return ImportSummary{}, err
	}

	artifacts := buildArtifacts(exp, inspection.Data)
	artifacts.Run.ID = runID
	artifacts.Run.Source = source
	artifacts.Run.CreatedAtUTC = c.now().UTC().Format(time.RFC3339Nano)

	if err := c.store.SaveRun(ctx, artifacts.Run); err != nil {
		return ImportSummary{}, fmt.Errorf("save run %s: %w", runID, err)
	}
	if err := c.store.SaveFitnessHistory(ctx, runID, artifacts.FitnessHistory); err != nil {
		return ImportSummary{}, fmt.Errorf("save fitness history %s: %w", runID, err)
	}
	if err := c.store.SaveTraces(ctx, runID, artifacts.Traces); err != nil {
		return ImportSummary{}, fmt.Errorf("save traces %s: %w", runID, err)
	}

	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, artifacts)
	if err != nil {
		return ImportSummary{}, err
	}
	if err := stats.AppendRunIndex(c.artifactsDir, stats.IndexEntryFor(artifacts.Run)); err != nil {
		return ImportSummary{}, err
	}

	c.logger.Info("imported experiment log",
		zap.String("run_id", runID),
		zap.String("kind", artifacts.Run.Kind),
		zap.Int("episodes", artifacts.Run.EpisodeCount),
		zap.String("source", source),
	)

	run := artifacts.Run
	return ImportSummary{
		RunID:           runID,
		Kind:            run.Kind,
		Description:     exp.String(),
		EpisodeCount:    run.EpisodeCount,
		ChannelCount:    run.ChannelCount,
		StepsPerEpisode: run.StepsPerEpisode,
		NetworkCount:    run.NetworkCount,
		BestFitness:     run.BestFitness,
		ArtifactsDir:    filepath.Clean(runDir),
	}, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:           e.RunID,
			CreatedAtUTC:    e.CreatedAtUTC,
			Source:          e.Source,
			Kind:            e.Kind,
			EpisodeCount:    e.EpisodeCount,
			ChannelCount:    e.ChannelCount,
			StepsPerEpisode: e.StepsPerEpisode,
			NetworkCount:    e.NetworkCount,
			BestFitness:     e.BestFitness,
		})
	}
	return out, nil
}

// Run looks a run up in the store, then in the artifacts directory, so runs
// imported by an earlier process stay visible with the memory backend.
func (c *Client) Run(ctx context.Context, req RunRequest) (model.RunRecord, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return model.RunRecord{}, err
	}
	if err := c.ensureStore(ctx); err != nil {
		return model.RunRecord{}, err
	}
	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return model.RunRecord{}, err
	}
	if ok {
		return run, nil
	}
	run, ok, err = stats.ReadRunSummary(c.artifactsDir, runID)
	if err != nil {
		return model.RunRecord{}, err
	}
	if !ok {
		return model.RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, nil
}

func (c *Client) FitnessHistory(ctx context.Context, req FitnessHistoryRequest) ([]float64, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}

	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		history, ok, err = stats.ReadFitnessSeries(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: fitness history for %s", ErrRunNotFound, runID)
		}
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return append([]float64(nil), history...), nil
}

func (c *Client) Traces(ctx context.Context, req RunRequest) ([]model.ChannelTrace, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}

	traces, ok, err := c.store.GetTraces(ctx, runID)
	if err != nil {
		return nil, err
	}
	if ok {
		return traces, nil
	}
	traces, ok, err = stats.ReadTraces(c.artifactsDir, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: traces for %s", ErrRunNotFound, runID)
	}
	return traces, nil
}

// Rankings returns per-generation network rankings. Random runs have none.
func (c *Client) Rankings(_ context.Context, req RunRequest) ([]materialize.Ranking, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	rankings, ok, err := stats.ReadRankings(c.artifactsDir, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []materialize.Ranking{}, nil
	}
	return rankings, nil
}

func (c *Client) Delete(ctx context.Context, runID string) error {
	if strings.TrimSpace(runID) == "" {
		return errors.New("delete requires run id")
	}
	if err := checkRunID(runID); err != nil {
		return err
	}
	if err := c.ensureStore(ctx); err != nil {
		return err
	}
	if err := c.store.DeleteRun(ctx, runID); err != nil {
		return err
	}
	return stats.RemoveRunIndex(c.artifactsDir, runID)
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}

	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ExportSummary{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) resolveRunID(runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if runID != "" {
		if err := checkRunID(runID); err != nil {
			return "", err
		}
		return runID, nil
	}
	if !latest {
		return "", errors.New("run id or latest is required")
	}
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", ErrNoRuns
	}
	return entries[0].RunID, nil
}

// checkRunID accepts only ids that name a single directory directly under
// the artifacts dir.
func checkRunID(runID string) error {
	if runID == "." || strings.ContainsAny(runID, `/\`) || !filepath.IsLocal(runID) {
		return fmt.Errorf("%w: %q", ErrInvalidRunID, runID)
	}
	return nil
}

func (c *Client) ensureStore(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	c.initialized = true
	return nil
}

func readRequest(req ImportRequest) ([]string, string, error) {
	source := req.Source
	if req.Lines != nil {
		return req.Lines, source, nil
	}
	if req.Path == "" {
		return nil, "", ErrMissingInput
	}
	if source == "" {
		source = req.Path
	}
	f, err := os.Open(req.Path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	lines, err := explog.ReadLines(f)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", req.Path, err)
	}
	return lines, source, nil
}

// buildArtifacts flattens a parsed experiment into the stored run shape.
// Random runs carry no fitness; genetic runs plot the best network of each
// generation.
func buildArtifacts(exp *explog.Experiment, data materialize.Result) stats.RunArtifacts {
	numbers := make([]int, 0, exp.EpisodeCount())
	for _, ep := range exp.Episodes() {
		numbers = append(numbers, ep.Number())
	}
	artifacts := stats.RunArtifacts{
		Run: model.RunRecord{
			VersionedRecord: storage.Versioned(),
			Kind:            exp.Kind().String(),
			EpisodeCount:    exp.EpisodeCount(),
			ChannelCount:    exp.ChannelCount(),
			StepsPerEpisode: exp.StepsPerEpisode(),
			NetworkCount:    exp.NetworkCount(),
			EpisodeNumbers:  numbers,
		},
	}

	switch {
	case data.Random != nil:
		artifacts.FitnessHistory = []float64{}
		artifacts.Traces = tracesFor(data.Random.ChannelIDs, func(c int) []float64 {
			return append([]float64(nil), data.Random.Row(c)...)
		})
	case data.Genetic != nil:
		best := materialize.BestNetworkTrace(data.Genetic)
		artifacts.FitnessHistory = append([]float64(nil), data.Genetic.BestFitness...)
		artifacts.Traces = tracesFor(data.Genetic.ChannelIDs, func(c int) []float64 { return best[c] })
		artifacts.Rankings = data.Genetic.Rankings
		if len(artifacts.FitnessHistory) > 0 {
			artifacts.Run.BestFitness = slices.Max(artifacts.FitnessHistory)
		}
	}
	return artifacts
}

func tracesFor(ids []int, row func(int) []float64) []model.ChannelTrace {
	traces := make([]model.ChannelTrace, 0, len(ids))
	for c, id := range ids {
		traces = append(traces, model.ChannelTrace{ChannelID: id, Values: row(c)})
	}
	return traces
}
