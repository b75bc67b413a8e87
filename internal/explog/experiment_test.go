package explog

import (
	"errors"
	"reflect"
	"slices"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func splitLog(text string) []string {
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

func mustParse(t *testing.T, text string, opts ...Option) *Experiment {
	t.Helper()
	x, err := ParseExperiment(splitLog(text), opts...)
	if err != nil {
		t.Fatalf("parse experiment: %v", err)
	}
	return x
}

func TestParseRandomEpisode(t *testing.T) {
	x := mustParse(t, "episode 0\nservo 0 1.0\nservo 1 2.0\nservo 0 1.5\nservo 1 2.5\n")
	if x.Kind() != KindRandom || x.EpisodeCount() != 1 {
		t.Fatalf("unexpected experiment: %s", x)
	}
	if x.ChannelCount() != 2 || x.StepsPerEpisode() != 2 || x.NetworkCount() != 0 {
		t.Fatalf("unexpected shape channels=%d steps=%d networks=%d", x.ChannelCount(), x.StepsPerEpisode(), x.NetworkCount())
	}
	ep := x.Episode(0)
	s0, _ := ep.Channels().Series(0)
	s1, _ := ep.Channels().Series(1)
	if !slices.Equal(s0, []float64{1.0, 1.5}) || !slices.Equal(s1, []float64{2.0, 2.5}) {
		t.Fatalf("unexpected series: %v %v", s0, s1)
	}
}

func TestParseGeneticEpisode(t *testing.T) {
	x := mustParse(t, strings.Join([]string{
		"episode 0",
		"servo 0 90",
		"network 0",
		"servo 0 1.0",
		"fitness 5.0",
		"network 1",
		"servo 0 2.0",
		"fitness 9.0",
	}, "\n"))
	if x.Kind() != KindGenetic {
		t.Fatalf("expected genetic experiment, got %s", x.Kind())
	}
	ep := x.Episode(0)
	if ep.NetworkCount() != 2 || x.NetworkCount() != 2 {
		t.Fatalf("expected 2 networks, got %d", ep.NetworkCount())
	}
	if ep.HighestFitness() != 9.0 {
		t.Fatalf("unexpected highest fitness %f", ep.HighestFitness())
	}
	if got := ep.FitnessByIndex(); !reflect.DeepEqual(got, map[int]float64{0: 5.0, 1: 9.0}) {
		t.Fatalf("unexpected fitness map %v", got)
	}
	net, ok := ep.Network(0)
	if !ok {
		t.Fatal("expected network 0")
	}
	if s, _ := net.Series(0); !slices.Equal(s, []float64{1.0}) {
		t.Fatalf("starting values leaked into network 0: %v", s)
	}
}

func TestParseWriterStyleGeneticLog(t *testing.T) {
	x := mustParse(t, strings.Join([]string{
		"Experiment Results",
		"episode 0",
		"servo 0 90",
		"servo 1 10",
		"network 0",
		"servo 0 91",
		"servo 1 11",
		"servo 0 92",
		"servo 1 12",
		"Fitness for network 0 0.25",
		"servo 0 90",
		"servo 1 10",
		"network 1",
		"servo 0 88",
		"servo 1 9",
		"servo 0 87",
		"servo 1 8",
		"Fitness for network 1 0.5",
		"servo 0 90",
		"servo 1 10",
		"Executed episode 0",
		"Script executed successfully.",
	}, "\n"))
	ep := x.Episode(0)
	if ep.Steps() != 2 || ep.ChannelCount() != 2 {
		t.Fatalf("reset moves after fitness must be ignored: steps=%d channels=%d", ep.Steps(), ep.ChannelCount())
	}
	if ep.HighestFitness() != 0.5 {
		t.Fatalf("unexpected highest fitness %f", ep.HighestFitness())
	}
}

func TestParseEmptyExperiment(t *testing.T) {
	x, err := ParseExperiment([]string{"nothing", "to see", ""})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !x.Empty() || x.Kind() != KindNone {
		t.Fatalf("expected empty experiment, got %s", x)
	}
	if x.ChannelCount() != 0 || x.StepsPerEpisode() != 0 || x.NetworkCount() != 0 {
		t.Fatal("expected zero derived counts for empty experiment")
	}
}

func TestParseSingleEpisodeRunsToEnd(t *testing.T) {
	x := mustParse(t, "episode 7\nservo 0 1\nservo 0 2\nservo 0 3")
	if x.EpisodeCount() != 1 || x.Episode(0).Number() != 7 || x.StepsPerEpisode() != 3 {
		t.Fatalf("unexpected experiment: count=%d steps=%d", x.EpisodeCount(), x.StepsPerEpisode())
	}
}

func TestParseNonContiguousEpisodeNumbers(t *testing.T) {
	x := mustParse(t, "episode 4\nservo 0 1\nepisode 2\nservo 0 2\n")
	if x.Episode(0).Number() != 4 || x.Episode(1).Number() != 2 {
		t.Fatal("episode numbers must be taken from the markers")
	}
}

func TestParseRejectsEpisodeWithoutSamples(t *testing.T) {
	_, err := ParseExperiment(splitLog("episode 0\nservo 0 1\nepisode 1\nnote\n"))
	requireViolation(t, err, "episode 1", "servo samples")
}

func TestParseRejectsMissingFitness(t *testing.T) {
	_, err := ParseExperiment(splitLog("episode 0\nnetwork 0\nservo 0 1.0\n"))
	requireViolation(t, err, "network 0", "fitness")
}

func TestParseRejectsMixedVariants(t *testing.T) {
	_, err := ParseExperiment(splitLog("episode 0\nservo 0 1\nepisode 1\nnetwork 0\nservo 0 2\nfitness 1\n"))
	requireViolation(t, err, "episode 1", "mixed episode variants")
}

func TestParseRejectsUnevenServoRecordings(t *testing.T) {
	_, err := ParseExperiment(splitLog("episode 3\nservo 0 1\nservo 0 2\nservo 1 1\n"))
	requireViolation(t, err, "episode 3", "servo 1 has 1, expected 2")
}

func TestParseRejectsUnevenNetworkSteps(t *testing.T) {
	_, err := ParseExperiment(splitLog(strings.Join([]string{
		"episode 0",
		"network 0", "servo 0 1", "servo 0 2", "fitness 1",
		"network 1", "servo 0 1", "fitness 2",
	}, "\n")))
	requireViolation(t, err, "network 1", "has 1 but should have 2")
}

func TestParseRejectsDisjointChannelSets(t *testing.T) {
	_, err := ParseExperiment(splitLog(strings.Join([]string{
		"episode 0",
		"network 0", "servo 0 1", "fitness 1",
		"network 1", "servo 5 1", "fitness 2",
	}, "\n")))
	requireViolation(t, err, "network 1", "same servos")
}

func TestParseRejectsDuplicateNetworkIndex(t *testing.T) {
	_, err := ParseExperiment(splitLog(strings.Join([]string{
		"episode 0",
		"network 0", "servo 0 1", "fitness 1",
		"network 0", "servo 0 1", "fitness 2",
	}, "\n")))
	requireViolation(t, err, "network 0", "appears twice")
}

func TestParseRejectsGeneticEpisodeWithoutNetworks(t *testing.T) {
	_, err := ParseExperiment(splitLog("episode 0\nservo 0 1\nFitness for network 0 1.0\n"))
	requireViolation(t, err, "episode 0", "any networks")
}

func TestBuildNetworkRejectsSecondMarker(t *testing.T) {
	_, err := buildNetwork(Segment{Offset: 10, Lines: []string{"network 1", "servo 0 1", "network 2", "fitness 1"}})
	requireViolation(t, err, "line 13", "duplicate network index")
}

func TestParseMalformedRecordCitesLine(t *testing.T) {
	_, err := ParseExperiment(splitLog("episode 0\nservo 0 1\nservo 0 oops\n"))
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected malformed record, got %v", err)
	}
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if perr.Line != 3 || perr.Episode != 0 {
		t.Fatalf("unexpected location line=%d episode=%d", perr.Line, perr.Episode)
	}
	if !strings.Contains(err.Error(), "line 3") {
		t.Fatalf("expected line in message: %v", err)
	}
}

func TestParseMalformedPreludeSample(t *testing.T) {
	_, err := ParseExperiment(splitLog("episode 0\nservo x 1\nnetwork 0\nservo 0 1\nfitness 1\n"))
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected malformed prelude sample to fail, got %v", err)
	}
}

func TestParseIsDeterministic(t *testing.T) {
	log := splitLog(strings.Join([]string{
		"episode 0", "network 0", "servo 0 1", "servo 1 2", "fitness 1",
		"network 1", "servo 0 3", "servo 1 4", "fitness 3",
		"episode 1", "network 0", "servo 0 5", "servo 1 6", "fitness 2",
		"network 1", "servo 0 7", "servo 1 8", "fitness 0",
	}, "\n"))
	first, err := ParseExperiment(log)
	if err != nil {
		t.Fatalf("first parse: %v", err)
	}
	second, err := ParseExperiment(log)
	if err != nil {
		t.Fatalf("second parse: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("expected identical experiments for identical input")
	}
	parallel, err := ParseExperiment(log, WithWorkers(4))
	if err != nil {
		t.Fatalf("parallel parse: %v", err)
	}
	if !reflect.DeepEqual(first, parallel) {
		t.Fatal("expected parallel parse to match serial parse")
	}
}

func TestParallelParseReportsFirstError(t *testing.T) {
	log := splitLog("episode 0\nservo 0 1\nepisode 1\nservo 0 x\nepisode 2\nnote\n")
	serialErr := func() error { _, err := ParseExperiment(log); return err }()
	parallelErr := func() error { _, err := ParseExperiment(log, WithWorkers(3)); return err }()
	if serialErr == nil || parallelErr == nil {
		t.Fatal("expected both parses to fail")
	}
	if serialErr.Error() != parallelErr.Error() {
		t.Fatalf("serial and parallel errors differ: %q vs %q", serialErr, parallelErr)
	}
}

func TestParseLogsEpisodes(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	mustParse(t, "episode 0\nservo 0 1\nepisode 1\nservo 0 2\n", WithLogger(zap.New(core)))
	entries := logs.FilterMessage("parsed random episode").All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 episode log entries, got %d", len(entries))
	}
}

func requireViolation(t *testing.T, err error, fragments ...string) {
	t.Helper()
	if err == nil {
		t.Fatal("expected structural violation")
	}
	if !errors.Is(err, ErrStructuralViolation) {
		t.Fatalf("expected ErrStructuralViolation, got %v", err)
	}
	for _, fragment := range fragments {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected %q in error: %v", fragment, err)
		}
	}
}

func TestParseTabSeparatedGeneticLog(t *testing.T) {
	x := mustParse(t, "episode\t0\nnetwork\t0\nservo\t0\t0.1\nfitness\t0.5\nnetwork\t1\nservo\t0\t0.2\nfitness\t0.25\n")
	if x.Kind() != KindGenetic || x.NetworkCount() != 2 {
		t.Fatalf("expected genetic experiment with 2 networks, got kind=%s networks=%d", x.Kind(), x.NetworkCount())
	}
}
