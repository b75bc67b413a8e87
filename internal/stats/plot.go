package stats

import "armlog/internal/model"

type PlotPoint struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}

// ChannelPlot is the plot line for one servo channel.
type ChannelPlot struct {
	ChannelID int         `json:"channel_id"`
	Points    []PlotPoint `json:"points"`
}

// BuildFitnessPlot places one point per generation. A non-positive step
// defaults to 1.
func BuildFitnessPlot(bestByGeneration []float64, startIndex, step int) []PlotPoint {
	return buildSeriesPlot(bestByGeneration, startIndex, step)
}

func BuildTracePlot(traces []model.ChannelTrace, startIndex, step int) []ChannelPlot {
	plots := make([]ChannelPlot, 0, len(traces))
	for _, trace := range traces {
		plots = append(plots, ChannelPlot{
			ChannelID: trace.ChannelID,
			Points:    buildSeriesPlot(trace.Values, startIndex, step),
		})
	}
	return plots
}

// BuildAverageTracePlot averages all channels at each step. Channels that
// run out of samples drop out of the average.
func BuildAverageTracePlot(traces []model.ChannelTrace, startIndex, step int) []PlotPoint {
	if step <= 0 {
		step = 1
	}
	points := make([]PlotPoint, 0, 128)
	for i := 0; ; i++ {
		sum, n := 0.0, 0
		for _, trace := range traces {
			if i < len(trace.Values) {
				sum += trace.Values[i]
				n++
			}
		}
		if n == 0 {
			break
		}
		points = append(points, PlotPoint{Index: startIndex + i*step, Value: sum / float64(n)})
	}
	return points
}

func buildSeriesPlot(values []float64, startIndex, step int) []PlotPoint {
	if step <= 0 {
		step = 1
	}
	points := make([]PlotPoint, 0, len(values))
	for i, v := range values {
		points = append(points, PlotPoint{Index: startIndex + i*step, Value: v})
	}
	return points
}
