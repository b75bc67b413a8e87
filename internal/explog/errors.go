package explog

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedRecord marks a line that matches a keyword but whose payload
	// does not parse.
	ErrMalformedRecord = errors.New("malformed record")
	// ErrStructuralViolation marks a broken segment, episode or experiment invariant.
	ErrStructuralViolation = errors.New("structural violation")
)

// ParseError carries the failure kind plus enough location to find the
// offending record in the log. Line is 1-based; Line, Episode and Network are
// -1 when unknown.
type ParseError struct {
	Kind    error
	Line    int
	Episode int
	Network int
	Detail  string
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Line > 0 {
		fmt.Fprintf(&b, " at line %d", e.Line)
	}
	if e.Episode >= 0 {
		fmt.Fprintf(&b, ": episode %d", e.Episode)
	}
	if e.Network >= 0 {
		fmt.Fprintf(&b, ": network %d", e.Network)
	}
	b.WriteString(": ")
	b.WriteString(e.Detail)
	return b.String()
}

func (e *ParseError) Unwrap() error {
	return e.Kind
}

func malformed(line int, format string, args ...any) *ParseError {
	return &ParseError{
		Kind:    ErrMalformedRecord,
		Line:    line,
		Episode: -1,
		Network: -1,
		Detail:  fmt.Sprintf(format, args...),
	}
}

func violation(format string, args ...any) *ParseError {
	return &ParseError{
		Kind:    ErrStructuralViolation,
		Line:    -1,
		Episode: -1,
		Network: -1,
		Detail:  fmt.Sprintf(format, args...),
	}
}

// inEpisode fills in the episode number when the error does not carry one yet.
func inEpisode(err error, number int) error {
	var perr *ParseError
	if errors.As(err, &perr) && perr.Episode < 0 {
		perr.Episode = number
	}
	return err
}

func atLine(err error, line int) error {
	var perr *ParseError
	if errors.As(err, &perr) && perr.Line <= 0 {
		perr.Line = line
	}
	return err
}

func withNetwork(err error, index int) error {
	var perr *ParseError
	if errors.As(err, &perr) && perr.Network < 0 && index >= 0 {
		perr.Network = index
	}
	return err
}
