package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"armlog/internal/explog"
	"armlog/internal/stats"
	"armlog/pkg/armlog"
)

const latestRunID = "latest"

type runResponse struct {
	RunID           string  `json:"run_id"`
	Source          string  `json:"source,omitempty"`
	Kind            string  `json:"kind"`
	EpisodeCount    int     `json:"episode_count"`
	ChannelCount    int     `json:"channel_count"`
	StepsPerEpisode int     `json:"steps_per_episode"`
	NetworkCount    int     `json:"network_count,omitempty"`
	EpisodeNumbers  []int   `json:"episode_numbers,omitempty"`
	BestFitness     float64 `json:"best_fitness,omitempty"`
	CreatedAtUTC    string  `json:"created_at_utc,omitempty"`
}

type importResponse struct {
	runResponse
	Description  string `json:"description"`
	ArtifactsDir string `json:"artifacts_dir"`
}

type plotResponse struct {
	RunID   string              `json:"run_id"`
	Fitness []stats.PlotPoint   `json:"fitness"`
	Average []stats.PlotPoint   `json:"average"`
	Traces  []stats.ChannelPlot `json:"traces"`
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	runs, err := s.client.Runs(r.Context(), armlog.RunsRequest{Limit: limit})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, runResponse{
			RunID:           run.RunID,
			Source:          run.Source,
			Kind:            run.Kind,
			EpisodeCount:    run.EpisodeCount,
			ChannelCount:    run.ChannelCount,
			StepsPerEpisode: run.StepsPerEpisode,
			NetworkCount:    run.NetworkCount,
			BestFitness:     run.BestFitness,
			CreatedAtUTC:    run.CreatedAtUTC,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// importRun takes the raw log as the request body.
func (s *Server) importRun(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	lines, err := explog.ReadLines(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	source := r.URL.Query().Get("source")
	if source == "" {
		source = "http"
	}
	summary, err := s.client.Import(r.Context(), armlog.ImportRequest{
		Lines:  lines,
		RunID:  r.URL.Query().Get("run_id"),
		Source: source,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, importResponse{
		runResponse: runResponse{
			RunID:           summary.RunID,
			Source:          source,
			Kind:            summary.Kind,
			EpisodeCount:    summary.EpisodeCount,
			ChannelCount:    summary.ChannelCount,
			StepsPerEpisode: summary.StepsPerEpisode,
			NetworkCount:    summary.NetworkCount,
			BestFitness:     summary.BestFitness,
		},
		Description:  summary.Description,
		ArtifactsDir: summary.ArtifactsDir,
	})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.client.Run(r.Context(), runRequest(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runResponse{
		RunID:           run.ID,
		Source:          run.Source,
		Kind:            run.Kind,
		EpisodeCount:    run.EpisodeCount,
		ChannelCount:    run.ChannelCount,
		StepsPerEpisode: run.StepsPerEpisode,
		NetworkCount:    run.NetworkCount,
		EpisodeNumbers:  run.EpisodeNumbers,
		BestFitness:     run.BestFitness,
		CreatedAtUTC:    run.CreatedAtUTC,
	})
}

func (s *Server) deleteRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == latestRunID {
		writeError(w, http.StatusBadRequest, errors.New("delete requires an explicit run id"))
		return
	}
	if _, err := s.client.Run(r.Context(), armlog.RunRequest{RunID: runID}); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.client.Delete(r.Context(), runID); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getFitness(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req := runRequest(r)
	history, err := s.client.FitnessHistory(r.Context(), armlog.FitnessHistoryRequest{
		RunID:  req.RunID,
		Latest: req.Latest,
		Limit:  limit,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"best_by_generation": history})
}

func (s *Server) getTraces(w http.ResponseWriter, r *http.Request) {
	traces, err := s.client.Traces(r.Context(), runRequest(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, traces)
}

func (s *Server) getRanking(w http.ResponseWriter, r *http.Request) {
	rankings, err := s.client.Rankings(r.Context(), runRequest(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rankings)
}

func (s *Server) getPlot(w http.ResponseWriter, r *http.Request) {
	step, err := queryInt(r, "step")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req := runRequest(r)
	run, err := s.client.Run(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	req = armlog.RunRequest{RunID: run.ID}
	history, err := s.client.FitnessHistory(r.Context(), armlog.FitnessHistoryRequest{RunID: run.ID})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	traces, err := s.client.Traces(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plotResponse{
		RunID:   run.ID,
		Fitness: stats.BuildFitnessPlot(history, 1, 1),
		Average: stats.BuildAverageTracePlot(traces, 0, step),
		Traces:  stats.BuildTracePlot(traces, 0, step),
	})
}

// fail maps client errors to status codes. Parse failures are the caller's
// fault and come back as 422 with the parser's message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, armlog.ErrInvalidRunID):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, armlog.ErrRunNotFound), errors.Is(err, armlog.ErrNoRuns):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, explog.ErrMalformedRecord),
		errors.Is(err, explog.ErrStructuralViolation),
		errors.Is(err, armlog.ErrNoEpisodes):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func runRequest(r *http.Request) armlog.RunRequest {
	runID := chi.URLParam(r, "runID")
	if runID == latestRunID {
		return armlog.RunRequest{Latest: true}
	}
	return armlog.RunRequest{RunID: runID}
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}
