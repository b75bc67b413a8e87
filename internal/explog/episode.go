package explog

import (
	"slices"
)

type EpisodeKind int

const (
	KindNone EpisodeKind = iota
	KindRandom
	KindGenetic
)

func (k EpisodeKind) String() string {
	switch k {
	case KindRandom:
		return "random"
	case KindGenetic:
		return "genetic"
	default:
		return "none"
	}
}

// Episode is either a random trial (channels sampled directly) or a genetic
// generation (a set of evaluated networks). Kind is fixed at construction.
type Episode struct {
	number   int
	kind     EpisodeKind
	steps    int
	channels *Channels
	networks []*Network
}

func (e *Episode) Number() int       { return e.number }
func (e *Episode) Kind() EpisodeKind { return e.kind }
func (e *Episode) Steps() int        { return e.steps }

func (e *Episode) ChannelCount() int {
	if e.kind == KindGenetic {
		return e.networks[0].ChannelCount()
	}
	return e.channels.Len()
}

// ChannelIDs returns the episode's channel ids in ascending order.
func (e *Episode) ChannelIDs() []int {
	if e.kind == KindGenetic {
		return e.networks[0].ChannelIDs()
	}
	return e.channels.SortedIDs()
}

// Channels returns the sample streams of a random episode, nil for genetic ones.
func (e *Episode) Channels() *Channels {
	return e.channels
}

// Networks returns the networks of a genetic episode in log order.
func (e *Episode) Networks() []*Network {
	return slices.Clone(e.networks)
}

func (e *Episode) NetworkCount() int {
	return len(e.networks)
}

func (e *Episode) Network(index int) (*Network, bool) {
	for _, n := range e.networks {
		if n.index == index {
			return n, true
		}
	}
	return nil, false
}

// HighestFitness is the best fitness among the episode's networks; zero for
// random episodes.
func (e *Episode) HighestFitness() float64 {
	if len(e.networks) == 0 {
		return 0
	}
	best := e.networks[0].fitness
	for _, n := range e.networks[1:] {
		if n.fitness > best {
			best = n.fitness
		}
	}
	return best
}

func (e *Episode) FitnessByIndex() map[int]float64 {
	out := make(map[int]float64, len(e.networks))
	for _, n := range e.networks {
		out[n.index] = n.fitness
	}
	return out
}

// detectKind decides the episode variant before anything is built: any line
// mentioning "network" makes the episode genetic.
func detectKind(lines []string) EpisodeKind {
	for _, line := range lines {
		if mentionsNetwork(line) {
			return KindGenetic
		}
	}
	return KindRandom
}

// buildEpisode consumes one episode segment whose first line is the episode
// marker. seg.Offset is absolute within the log.
func buildEpisode(seg Segment) (*Episode, error) {
	head, err := ClassifyLine(seg.Lines[0])
	if err != nil {
		return nil, atLine(err, seg.Offset+1)
	}
	if head.Kind != EpisodeMarker {
		perr := violation("episode segment does not start with an episode marker")
		perr.Line = seg.Offset + 1
		return nil, perr
	}

	ep := &Episode{number: head.Number, kind: detectKind(seg.Lines)}
	body := Segment{Offset: seg.Offset + 1, Lines: seg.Lines[1:]}
	switch ep.kind {
	case KindGenetic:
		err = ep.buildGenetic(body)
	default:
		err = ep.buildRandom(body)
	}
	if err != nil {
		return nil, inEpisode(err, ep.number)
	}
	return ep, nil
}

func (e *Episode) buildRandom(body Segment) error {
	e.channels = newChannels()
	for i, line := range body.Lines {
		rec, err := ClassifyLine(line)
		if err != nil {
			return atLine(err, body.Offset+i+1)
		}
		if rec.Kind == ChannelSample {
			e.channels.appendSample(rec.Channel, rec.Value)
		}
	}

	if e.channels.Len() == 0 {
		return violation("could not find any servo samples in random episode")
	}
	steps, badID, ok := e.channels.uniformSteps()
	if !ok {
		got, _ := e.channels.Series(badID)
		return violation("number of recordings is not the same for all servos in random episode: servo %d has %d, expected %d", badID, len(got), steps)
	}
	e.steps = steps
	return nil
}

func (e *Episode) buildGenetic(body Segment) error {
	// Starting values precede the first network. They are validated but not
	// kept.
	for i, line := range body.Lines {
		if IsNetworkMarker(line) {
			break
		}
		if _, err := ClassifyLine(line); err != nil {
			return atLine(err, body.Offset+i+1)
		}
	}

	seen := make(map[int]int)
	for _, seg := range Segments(body.Lines, IsNetworkMarker) {
		seg.Offset += body.Offset
		net, err := buildNetwork(seg)
		if err != nil {
			return err
		}
		if line, dup := seen[net.index]; dup {
			perr := violation("network index %d appears twice (first at line %d)", net.index, line)
			perr.Line = seg.Offset + 1
			perr.Network = net.index
			return perr
		}
		seen[net.index] = seg.Offset + 1
		e.networks = append(e.networks, net)
	}

	if len(e.networks) == 0 {
		return violation("could not find any networks in genetic episode")
	}
	first := e.networks[0]
	for _, net := range e.networks[1:] {
		if net.steps != first.steps {
			return withNetwork(violation("not all networks have the same number of steps: network %d has %d but should have %d", net.index, net.steps, first.steps), net.index)
		}
		if net.ChannelCount() != first.ChannelCount() {
			return withNetwork(violation("not all networks record the same number of servos: network %d has %d but should have %d", net.index, net.ChannelCount(), first.ChannelCount()), net.index)
		}
		if !sameIDs(net.channels, first.channels) {
			return withNetwork(violation("not all networks record the same servos: network %d has %v but should have %v", net.index, net.ChannelIDs(), first.ChannelIDs()), net.index)
		}
	}
	e.steps = first.steps
	return nil
}
