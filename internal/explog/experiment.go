package explog

import (
	"fmt"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Experiment is the reconstructed log: an ordered list of episodes that all
// share one kind. An experiment without episodes has KindNone.
type Experiment struct {
	kind     EpisodeKind
	episodes []*Episode
}

func (x *Experiment) Kind() EpisodeKind { return x.kind }
func (x *Experiment) EpisodeCount() int { return len(x.episodes) }
func (x *Experiment) Empty() bool       { return len(x.episodes) == 0 }

// Episodes returns the episodes in log order.
func (x *Experiment) Episodes() []*Episode {
	return slices.Clone(x.episodes)
}

func (x *Experiment) Episode(i int) *Episode {
	return x.episodes[i]
}

// ChannelCount, StepsPerEpisode and NetworkCount describe the first episode;
// they are zero for an empty experiment.
func (x *Experiment) ChannelCount() int {
	if x.Empty() {
		return 0
	}
	return x.episodes[0].ChannelCount()
}

func (x *Experiment) StepsPerEpisode() int {
	if x.Empty() {
		return 0
	}
	return x.episodes[0].Steps()
}

func (x *Experiment) NetworkCount() int {
	if x.kind != KindGenetic {
		return 0
	}
	return x.episodes[0].NetworkCount()
}

func (x *Experiment) String() string {
	return fmt.Sprintf("experiment is of kind %s and consists of %d episodes", x.kind, len(x.episodes))
}

type parseConfig struct {
	logger  *zap.Logger
	workers int
}

type Option func(*parseConfig)

// WithLogger sets the logger that receives one debug entry per parsed episode.
func WithLogger(logger *zap.Logger) Option {
	return func(c *parseConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithWorkers builds episodes on up to n goroutines. The result, including
// which error is reported, is the same as for a serial parse.
func WithWorkers(n int) Option {
	return func(c *parseConfig) {
		c.workers = n
	}
}

// ParseExperiment reconstructs an experiment from the lines of a log. Lines
// before the first episode marker are ignored. Every malformed record or
// broken invariant fails the whole parse with a *ParseError.
func ParseExperiment(lines []string, opts ...Option) (*Experiment, error) {
	cfg := parseConfig{logger: zap.NewNop(), workers: 1}
	for _, opt := range opts {
		opt(&cfg)
	}

	segments := Segments(lines, IsEpisodeMarker)
	episodes, err := buildEpisodes(segments, cfg.workers)
	if err != nil {
		return nil, err
	}

	x := &Experiment{episodes: episodes}
	if len(episodes) == 0 {
		cfg.logger.Debug("no episodes found in log", zap.Int("lines", len(lines)))
		return x, nil
	}

	x.kind = episodes[0].kind
	for _, ep := range episodes {
		if ep.kind != x.kind {
			perr := violation("mixed episode variants: episode is %s but the experiment is %s", ep.kind, x.kind)
			perr.Episode = ep.number
			return nil, perr
		}
		logEpisode(cfg.logger, ep)
	}
	return x, nil
}

func buildEpisodes(segments []Segment, workers int) ([]*Episode, error) {
	episodes := make([]*Episode, len(segments))
	if workers <= 1 || len(segments) < 2 {
		for i, seg := range segments {
			ep, err := buildEpisode(seg)
			if err != nil {
				return nil, err
			}
			episodes[i] = ep
		}
		return episodes, nil
	}

	errs := make([]error, len(segments))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, seg := range segments {
		i, seg := i, seg
		g.Go(func() error {
			episodes[i], errs[i] = buildEpisode(seg)
			return nil
		})
	}
	_ = g.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return episodes, nil
}

func logEpisode(logger *zap.Logger, ep *Episode) {
	switch ep.kind {
	case KindGenetic:
		logger.Debug("parsed genetic episode",
			zap.Int("episode", ep.number),
			zap.Int("networks", ep.NetworkCount()),
			zap.Int("steps", ep.steps),
			zap.Float64("highest_fitness", ep.HighestFitness()),
		)
	default:
		logger.Debug("parsed random episode",
			zap.Int("episode", ep.number),
			zap.Int("servos", ep.ChannelCount()),
			zap.Int("steps", ep.steps),
		)
	}
}
