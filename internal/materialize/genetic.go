package materialize

import (
	"errors"

	"armlog/internal/explog"
)

// Ranking lists one generation's networks from most to least fit.
type Ranking struct {
	Episode        int       `json:"episode"`
	NetworkIndexes []int     `json:"network_indexes"`
	Fitness        []float64 `json:"fitness"`
}

// GeneticData is a (channels, steps, networks, generations) array whose third
// axis is fitness rank: rank 0 is the best network of that generation.
type GeneticData struct {
	BestFitness []float64
	ChannelIDs  []int
	Steps       int
	Networks    int
	Generations int
	Rankings    []Ranking
	Values      []float64
}

func (d *GeneticData) Shape() [4]int {
	return [4]int{len(d.ChannelIDs), d.Steps, d.Networks, d.Generations}
}

func (d *GeneticData) offset(channel, step, rank, generation int) int {
	return ((channel*d.Steps+step)*d.Networks+rank)*d.Generations + generation
}

func (d *GeneticData) At(channel, step, rank, generation int) float64 {
	return d.Values[d.offset(channel, step, rank, generation)]
}

// Genetic materializes a genetic experiment.
func Genetic(exp *explog.Experiment) (*GeneticData, error) {
	if exp.Kind() != explog.KindGenetic {
		return nil, errors.New("genetic materialization requires a genetic experiment")
	}

	first := exp.Episode(0)
	data := &GeneticData{
		ChannelIDs:  first.ChannelIDs(),
		Steps:       first.Steps(),
		Networks:    first.NetworkCount(),
		Generations: exp.EpisodeCount(),
		BestFitness: make([]float64, 0, exp.EpisodeCount()),
		Rankings:    make([]Ranking, 0, exp.EpisodeCount()),
	}
	data.Values = make([]float64, len(data.ChannelIDs)*data.Steps*data.Networks*data.Generations)

	for g, ep := range exp.Episodes() {
		if ep.NetworkCount() != data.Networks {
			return nil, mismatch("episode %d has %d networks, expected %d", ep.Number(), ep.NetworkCount(), data.Networks)
		}
		if err := checkEpisodeShape(ep, data.ChannelIDs, data.Steps); err != nil {
			return nil, err
		}

		ranked := rankNetworks(ep.Networks())
		ranking := Ranking{
			Episode:        ep.Number(),
			NetworkIndexes: make([]int, 0, len(ranked)),
			Fitness:        make([]float64, 0, len(ranked)),
		}
		for rank, net := range ranked {
			ranking.NetworkIndexes = append(ranking.NetworkIndexes, net.Index())
			ranking.Fitness = append(ranking.Fitness, net.Fitness())
			for c, id := range data.ChannelIDs {
				series, _ := net.Series(id)
				for s, v := range series {
					data.Values[data.offset(c, s, rank, g)] = v
				}
			}
		}
		data.Rankings = append(data.Rankings, ranking)
		data.BestFitness = append(data.BestFitness, ep.HighestFitness())
	}
	return data, nil
}

// BestNetworkTrace returns, per channel row, the rank-0 network's samples of
// every generation laid end to end: steps*generations values per channel.
func BestNetworkTrace(d *GeneticData) [][]float64 {
	out := make([][]float64, len(d.ChannelIDs))
	for c := range d.ChannelIDs {
		trace := make([]float64, 0, d.Steps*d.Generations)
		for g := 0; g < d.Generations; g++ {
			for s := 0; s < d.Steps; s++ {
				trace = append(trace, d.At(c, s, 0, g))
			}
		}
		out[c] = trace
	}
	return out
}
