// Package materialize turns a parsed experiment into dense row-major arrays
// that plotting and analysis code can index directly.
package materialize

import (
	"cmp"
	"fmt"
	"slices"

	"armlog/internal/explog"
)

// Result holds exactly one of Random or Genetic, selected by Kind. Both are
// nil for an empty experiment.
type Result struct {
	Kind    explog.EpisodeKind
	Random  *RandomData
	Genetic *GeneticData
}

// Materialize converts exp into dense arrays according to its kind. It only
// reads exp.
func Materialize(exp *explog.Experiment) (Result, error) {
	switch exp.Kind() {
	case explog.KindRandom:
		data, err := Random(exp)
		if err != nil {
			return Result{}, err
		}
		return Result{Kind: explog.KindRandom, Random: data}, nil
	case explog.KindGenetic:
		data, err := Genetic(exp)
		if err != nil {
			return Result{}, err
		}
		return Result{Kind: explog.KindGenetic, Genetic: data}, nil
	default:
		return Result{Kind: explog.KindNone}, nil
	}
}

func mismatch(format string, args ...any) error {
	return fmt.Errorf("%w: %s", explog.ErrStructuralViolation, fmt.Sprintf(format, args...))
}

// checkEpisodeShape verifies that ep matches the channel ids and step count
// of the first episode.
func checkEpisodeShape(ep *explog.Episode, ids []int, steps int) error {
	got := ep.ChannelIDs()
	if len(got) != len(ids) {
		return mismatch("episode %d records %d servos, expected %d", ep.Number(), len(got), len(ids))
	}
	if !slices.Equal(got, ids) {
		return mismatch("episode %d records servos %v, expected %v", ep.Number(), got, ids)
	}
	if ep.Steps() != steps {
		return mismatch("episode %d has %d steps, expected %d", ep.Number(), ep.Steps(), steps)
	}
	return nil
}

// rankNetworks orders networks by descending fitness; equal fitness keeps
// ascending network index.
func rankNetworks(networks []*explog.Network) []*explog.Network {
	ranked := slices.Clone(networks)
	slices.SortStableFunc(ranked, func(a, b *explog.Network) int {
		if c := cmp.Compare(b.Fitness(), a.Fitness()); c != 0 {
			return c
		}
		return cmp.Compare(a.Index(), b.Index())
	})
	return ranked
}
