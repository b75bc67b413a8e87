package explog

import (
	"math"
	"strconv"
	"strings"
)

type RecordKind int

const (
	Unrecognized RecordKind = iota
	EpisodeMarker
	NetworkMarker
	FitnessValue
	ChannelSample
)

func (k RecordKind) String() string {
	switch k {
	case EpisodeMarker:
		return "episode"
	case NetworkMarker:
		return "network"
	case FitnessValue:
		return "fitness"
	case ChannelSample:
		return "servo"
	default:
		return "unrecognized"
	}
}

const (
	keywordEpisode = "episode"
	keywordNetwork = "network"
	keywordFitness = "fitness"
	keywordServo   = "servo"
)

// Record is one classified log line. Number holds the episode number or the
// network index; Channel and Value hold a servo sample; Value also holds a
// fitness.
type Record struct {
	Kind    RecordKind
	Number  int
	Channel int
	Value   float64
}

// ClassifyLine maps one log line to its record kind. The result depends on the
// line alone. Keywords are matched case-insensitively at the start of the line
// and must be followed by a space; anything else is Unrecognized.
func ClassifyLine(line string) (Record, error) {
	switch {
	case hasKeyword(line, keywordEpisode):
		n, err := trailingIndex(line, keywordEpisode)
		if err != nil {
			return Record{}, err
		}
		return Record{Kind: EpisodeMarker, Number: n}, nil
	case hasKeyword(line, keywordNetwork):
		n, err := trailingIndex(line, keywordNetwork)
		if err != nil {
			return Record{}, err
		}
		return Record{Kind: NetworkMarker, Number: n}, nil
	case hasKeyword(line, keywordFitness):
		v, err := trailingFitness(line)
		if err != nil {
			return Record{}, err
		}
		return Record{Kind: FitnessValue, Value: v}, nil
	case hasKeyword(line, keywordServo):
		return parseServo(line)
	default:
		return Record{Kind: Unrecognized}, nil
	}
}

// IsEpisodeMarker reports whether line opens an episode segment.
func IsEpisodeMarker(line string) bool {
	return hasKeyword(line, keywordEpisode)
}

// IsNetworkMarker reports whether line opens a network segment.
func IsNetworkMarker(line string) bool {
	return hasKeyword(line, keywordNetwork)
}

// mentionsNetwork is the genetic-episode probe: an unanchored,
// case-insensitive search for "network".
func mentionsNetwork(line string) bool {
	return strings.Contains(strings.ToLower(line), keywordNetwork)
}

func normalizeLine(line string) string {
	return strings.TrimLeft(strings.TrimRight(line, "\r\n"), " \t")
}

func hasKeyword(line, keyword string) bool {
	l := normalizeLine(line)
	n := len(keyword)
	if len(l) <= n || !isBlank(l[n]) {
		return false
	}
	return strings.EqualFold(l[:n], keyword)
}

func isBlank(b byte) bool {
	switch b {
	case ' ', '\t', '\v', '\f':
		return true
	}
	return false
}

func trailingToken(line, keyword string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", malformed(0, "%s record is missing its value", keyword)
	}
	return fields[len(fields)-1], nil
}

func trailingIndex(line, keyword string) (int, error) {
	token, err := trailingToken(line, keyword)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(token)
	if err != nil {
		return 0, malformed(0, "%s number %q is not an integer", keyword, token)
	}
	if n < 0 {
		return 0, malformed(0, "%s number %d is negative", keyword, n)
	}
	return n, nil
}

func trailingFitness(line string) (float64, error) {
	token, err := trailingToken(line, keywordFitness)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, malformed(0, "fitness %q is not a number", token)
	}
	if math.IsNaN(v) {
		return 0, malformed(0, "fitness is NaN")
	}
	return v, nil
}

func parseServo(line string) (Record, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return Record{}, malformed(0, "servo record needs a channel id and a value, got %d fields", len(fields))
	}
	id, err := strconv.Atoi(fields[1])
	if err != nil {
		return Record{}, malformed(0, "servo channel id %q is not an integer", fields[1])
	}
	if id < 0 {
		return Record{}, malformed(0, "servo channel id %d is negative", id)
	}
	v, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return Record{}, malformed(0, "servo %d value %q is not a number", id, fields[2])
	}
	return Record{Kind: ChannelSample, Channel: id, Value: v}, nil
}
