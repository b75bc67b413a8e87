package explog

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

const maxLineBytes = 1 << 20

// ReadLines splits a log into lines without their terminators.
func ReadLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lines := make([]string, 0, 1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log line %d: %w", len(lines)+1, err)
	}
	return lines, nil
}

// ParseFile reads and parses the log at path.
func ParseFile(path string, opts ...Option) (*Experiment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	lines, err := ReadLines(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	x, err := ParseExperiment(lines, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return x, nil
}
