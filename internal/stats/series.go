package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"armlog/internal/model"
)

const traceColumnPrefix = "servo_"

// WriteFitnessSeries writes one row per generation, numbered from 1.
func WriteFitnessSeries(runDir string, bestByGeneration []float64) error {
	file, err := os.Create(filepath.Join(runDir, fitnessSeriesFile))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"generation", "best_fitness"}); err != nil {
		return err
	}
	for i, best := range bestByGeneration {
		if err := writer.Write([]string{
			strconv.Itoa(i + 1),
			formatFloat(best),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadFitnessSeries(baseDir, runID string) ([]float64, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, fitnessSeriesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 2 {
		return nil, false, fmt.Errorf("fitness series header must have at least 2 columns")
	}

	series := make([]float64, 0, 64)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, false, err
		}
		series = append(series, value)
	}
	return series, true, nil
}

// WriteTraces writes a step column followed by one column per channel.
// Shorter traces leave their trailing cells empty.
func WriteTraces(runDir string, traces []model.ChannelTrace) error {
	file, err := os.Create(filepath.Join(runDir, tracesFile))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := make([]string, 0, len(traces)+1)
	header = append(header, "step")
	steps := 0
	for _, trace := range traces {
		header = append(header, traceColumnPrefix+strconv.Itoa(trace.ChannelID))
		steps = max(steps, len(trace.Values))
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for step := 0; step < steps; step++ {
		row[0] = strconv.Itoa(step)
		for i, trace := range traces {
			row[i+1] = ""
			if step < len(trace.Values) {
				row[i+1] = formatFloat(trace.Values[step])
			}
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadTraces(baseDir, runID string) ([]model.ChannelTrace, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, tracesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []model.ChannelTrace{}, true, nil
		}
		return nil, false, err
	}

	traces := make([]model.ChannelTrace, 0, len(header))
	for _, column := range header[1:] {
		id, err := strconv.Atoi(strings.TrimPrefix(column, traceColumnPrefix))
		if err != nil {
			return nil, false, fmt.Errorf("traces column %q: %w", column, err)
		}
		traces = append(traces, model.ChannelTrace{ChannelID: id, Values: []float64{}})
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		for i := 1; i < len(record) && i <= len(traces); i++ {
			if record[i] == "" {
				continue
			}
			value, err := strconv.ParseFloat(record[i], 64)
			if err != nil {
				return nil, false, err
			}
			traces[i-1].Values = append(traces[i-1].Values, value)
		}
	}
	return traces, true, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
