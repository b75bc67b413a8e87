package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"armlog/internal/materialize"
	"armlog/internal/model"
)

const (
	runIndexFile       = "run_index.json"
	summaryFile        = "summary.json"
	fitnessHistoryFile = "fitness_history.json"
	fitnessSeriesFile  = "fitness_series.csv"
	tracesFile         = "traces.csv"
	rankingFile        = "ranking.json"
)

// RunArtifacts is everything written to a run directory after an import.
// Rankings is empty for random experiments.
type RunArtifacts struct {
	Run            model.RunRecord
	FitnessHistory []float64
	Traces         []model.ChannelTrace
	Rankings       []materialize.Ranking
}

type RunIndexEntry struct {
	RunID           string  `json:"run_id"`
	Source          string  `json:"source,omitempty"`
	Kind            string  `json:"kind"`
	EpisodeCount    int     `json:"episode_count"`
	ChannelCount    int     `json:"channel_count"`
	StepsPerEpisode int     `json:"steps_per_episode"`
	NetworkCount    int     `json:"network_count,omitempty"`
	BestFitness     float64 `json:"best_fitness,omitempty"`
	CreatedAtUTC    string  `json:"created_at_utc"`
}

// IndexEntryFor derives the run index line for a stored run.
func IndexEntryFor(run model.RunRecord) RunIndexEntry {
	return RunIndexEntry{
		RunID:           run.ID,
		Source:          run.Source,
		Kind:            run.Kind,
		EpisodeCount:    run.EpisodeCount,
		ChannelCount:    run.ChannelCount,
		StepsPerEpisode: run.StepsPerEpisode,
		NetworkCount:    run.NetworkCount,
		BestFitness:     run.BestFitness,
		CreatedAtUTC:    run.CreatedAtUTC,
	}
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if strings.TrimSpace(artifacts.Run.ID) == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Run.ID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, summaryFile), artifacts.Run); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, fitnessHistoryFile), map[string]any{
		"best_by_generation": nonNil(artifacts.FitnessHistory),
		"best_fitness":       artifacts.Run.BestFitness,
	}); err != nil {
		return "", err
	}
	if err := WriteFitnessSeries(runDir, artifacts.FitnessHistory); err != nil {
		return "", err
	}
	if err := WriteTraces(runDir, artifacts.Traces); err != nil {
		return "", err
	}
	if len(artifacts.Rankings) > 0 {
		if err := writeJSON(filepath.Join(runDir, rankingFile), artifacts.Rankings); err != nil {
			return "", err
		}
	} else if err := os.Remove(filepath.Join(runDir, rankingFile)); err != nil && !os.IsNotExist(err) {
		return "", err
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns index entries newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAtUTC > entries[j].CreatedAtUTC
	})
	return entries, nil
}

// RemoveRunIndex drops a run from the index and deletes its directory.
func RemoveRunIndex(baseDir, runID string) error {
	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}
	kept := index[:0]
	for _, entry := range index {
		if entry.RunID != runID {
			kept = append(kept, entry)
		}
	}
	if len(kept) != len(index) {
		if err := writeJSON(filepath.Join(baseDir, runIndexFile), kept); err != nil {
			return err
		}
	}
	return os.RemoveAll(filepath.Join(baseDir, runID))
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{summaryFile, fitnessHistoryFile, fitnessSeriesFile, tracesFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	rankingPath := filepath.Join(src, rankingFile)
	if _, err := os.Stat(rankingPath); err == nil {
		if err := copyFile(rankingPath, filepath.Join(dst, rankingFile)); err != nil {
			return "", err
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}

	return dst, nil
}

func ReadRunSummary(baseDir, runID string) (model.RunRecord, bool, error) {
	var run model.RunRecord
	ok, err := readJSON(filepath.Join(baseDir, runID, summaryFile), &run)
	if err != nil || !ok {
		return model.RunRecord{}, ok, err
	}
	return run, true, nil
}

func ReadRankings(baseDir, runID string) ([]materialize.Ranking, bool, error) {
	var rankings []materialize.Ranking
	ok, err := readJSON(filepath.Join(baseDir, runID, rankingFile), &rankings)
	if err != nil || !ok {
		return nil, ok, err
	}
	return rankings, true, nil
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func nonNil(values []float64) []float64 {
	if values == nil {
		return []float64{}
	}
	return values
}
