package explog

// Network is one evaluated candidate inside a genetic episode.
type Network struct {
	index    int
	fitness  float64
	steps    int
	channels *Channels
}

func (n *Network) Index() int          { return n.index }
func (n *Network) Fitness() float64    { return n.fitness }
func (n *Network) Steps() int          { return n.steps }
func (n *Network) ChannelCount() int   { return n.channels.Len() }
func (n *Network) ChannelIDs() []int   { return n.channels.SortedIDs() }
func (n *Network) Channels() *Channels { return n.channels }

// Series returns the samples recorded for one channel of this network.
func (n *Network) Series(id int) ([]float64, bool) {
	return n.channels.Series(id)
}

// buildNetwork consumes one network segment. seg.Offset is absolute within
// the log. The first fitness record ends the network; whatever follows it in
// the segment (the arm's reset moves) is not read.
func buildNetwork(seg Segment) (*Network, error) {
	net := &Network{index: -1, channels: newChannels()}
	haveFitness := false

scan:
	for i, line := range seg.Lines {
		lineNo := seg.Offset + i + 1
		rec, err := ClassifyLine(line)
		if err != nil {
			return nil, withNetwork(atLine(err, lineNo), net.index)
		}
		switch rec.Kind {
		case NetworkMarker:
			if net.index >= 0 {
				perr := violation("duplicate network index in segment (found network %d)", rec.Number)
				perr.Line = lineNo
				perr.Network = net.index
				return nil, perr
			}
			net.index = rec.Number
		case ChannelSample:
			net.channels.appendSample(rec.Channel, rec.Value)
		case FitnessValue:
			net.fitness = rec.Value
			haveFitness = true
			break scan
		}
	}

	if net.index < 0 {
		return nil, violation("could not find an index for network segment starting at line %d", seg.Offset+1)
	}
	if !haveFitness {
		return nil, withNetwork(violation("could not find a fitness value"), net.index)
	}
	if net.channels.Len() == 0 {
		return nil, withNetwork(violation("could not find any servo samples"), net.index)
	}
	steps, badID, ok := net.channels.uniformSteps()
	if !ok {
		got, _ := net.channels.Series(badID)
		return nil, withNetwork(violation("number of recordings is not the same for all servos: servo %d has %d, expected %d", badID, len(got), steps), net.index)
	}
	net.steps = steps
	return net, nil
}
