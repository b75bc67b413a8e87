package explog

// Segment is a contiguous run of lines that starts with a marker line and
// ends just before the next marker or at the end of input. Offset is the
// position of the first line within the slice the segment was cut from.
type Segment struct {
	Offset int
	Lines  []string
}

// NextSegment cuts the first segment out of lines. rest begins at the next
// marker (or is empty). ok is false when lines contain no marker at all,
// which callers treat as "construct not present".
//
// Segment.Lines and rest share memory with lines; the segment is
// capacity-limited so appending to it never touches the remainder.
func NextSegment(lines []string, isMarker func(string) bool) (seg Segment, rest []string, ok bool) {
	start := -1
	for i, line := range lines {
		if isMarker(line) {
			start = i
			break
		}
	}
	if start < 0 {
		return Segment{}, nil, false
	}

	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		if isMarker(lines[i]) {
			end = i
			break
		}
	}
	return Segment{Offset: start, Lines: lines[start:end:end]}, lines[end:], true
}

// Segments applies NextSegment until no marker remains. Offsets are relative
// to lines.
func Segments(lines []string, isMarker func(string) bool) []Segment {
	var out []Segment
	consumed := 0
	rest := lines
	for {
		seg, next, ok := NextSegment(rest, isMarker)
		if !ok {
			return out
		}
		seg.Offset += consumed
		consumed += len(rest) - len(next)
		out = append(out, seg)
		rest = next
	}
}
