package explog

import (
	"slices"
	"testing"
)

func TestSegmentsSplitsOnMarkers(t *testing.T) {
	lines := []string{"header", "episode 0", "a", "b", "episode 1", "c", "episode 2"}
	segs := Segments(lines, IsEpisodeMarker)
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segs))
	}
	want := [][]string{
		{"episode 0", "a", "b"},
		{"episode 1", "c"},
		{"episode 2"},
	}
	offsets := []int{1, 4, 6}
	for i, seg := range segs {
		if !slices.Equal(seg.Lines, want[i]) {
			t.Fatalf("segment %d: got %v want %v", i, seg.Lines, want[i])
		}
		if seg.Offset != offsets[i] {
			t.Fatalf("segment %d: offset %d want %d", i, seg.Offset, offsets[i])
		}
	}
}

func TestSegmentsWithoutMarker(t *testing.T) {
	if segs := Segments([]string{"servo 0 1", "fitness 2"}, IsEpisodeMarker); len(segs) != 0 {
		t.Fatalf("expected no segments, got %d", len(segs))
	}
	if segs := Segments(nil, IsEpisodeMarker); len(segs) != 0 {
		t.Fatalf("expected no segments for empty input, got %d", len(segs))
	}
}

func TestNextSegmentSingleMarkerRunsToEnd(t *testing.T) {
	lines := []string{"noise", "episode 5", "servo 0 1", "servo 0 2"}
	seg, rest, ok := NextSegment(lines, IsEpisodeMarker)
	if !ok {
		t.Fatal("expected a segment")
	}
	if len(seg.Lines) != 3 || seg.Offset != 1 {
		t.Fatalf("unexpected segment: %+v", seg)
	}
	if len(rest) != 0 {
		t.Fatalf("expected empty remainder, got %v", rest)
	}
}

func TestSegmentsDoNotMutateInput(t *testing.T) {
	lines := []string{"episode 0", "x", "episode 1", "y"}
	original := slices.Clone(lines)
	segs := Segments(lines, IsEpisodeMarker)
	grown := append(segs[0].Lines, "appended")
	if len(grown) != 3 {
		t.Fatalf("unexpected append result: %v", grown)
	}
	if !slices.Equal(lines, original) {
		t.Fatalf("input mutated: %v", lines)
	}
	if &segs[0].Lines[0] != &lines[0] {
		t.Fatal("expected segment to share memory with the input")
	}
}
