package materialize

import (
	"errors"

	"armlog/internal/explog"
)

// RandomData is a (channels, steps*episodes) array. Episodes follow each
// other on the time axis in log order; rows follow ascending channel id.
type RandomData struct {
	ChannelIDs []int
	Steps      int
	Episodes   int
	Values     []float64
}

func (d *RandomData) Shape() [2]int {
	return [2]int{len(d.ChannelIDs), d.Steps * d.Episodes}
}

func (d *RandomData) At(channel, t int) float64 {
	return d.Values[channel*d.Steps*d.Episodes+t]
}

// Row returns the full time series of one channel row. The slice aliases
// Values.
func (d *RandomData) Row(channel int) []float64 {
	width := d.Steps * d.Episodes
	return d.Values[channel*width : (channel+1)*width : (channel+1)*width]
}

// Random materializes a random experiment.
func Random(exp *explog.Experiment) (*RandomData, error) {
	if exp.Kind() != explog.KindRandom {
		return nil, errors.New("random materialization requires a random experiment")
	}

	first := exp.Episode(0)
	data := &RandomData{
		ChannelIDs: first.ChannelIDs(),
		Steps:      first.Steps(),
		Episodes:   exp.EpisodeCount(),
	}
	width := data.Steps * data.Episodes
	data.Values = make([]float64, len(data.ChannelIDs)*width)

	for e, ep := range exp.Episodes() {
		if err := checkEpisodeShape(ep, data.ChannelIDs, data.Steps); err != nil {
			return nil, err
		}
		for c, id := range data.ChannelIDs {
			series, _ := ep.Channels().Series(id)
			copy(data.Values[c*width+e*data.Steps:], series)
		}
	}
	return data, nil
}
