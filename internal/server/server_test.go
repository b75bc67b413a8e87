package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"armlog/internal/metrics"
	"armlog/internal/model"
	"armlog/pkg/armlog"
)

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	client, err := armlog.New(armlog.Options{
		ArtifactsDir: t.TempDir(),
		ExportsDir:   t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	ts := httptest.NewServer(New(client, opts).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func readLog(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "testdata", "logs", name))
	require.NoError(t, err)
	return string(data)
}

func postLog(t *testing.T, ts *httptest.Server, query, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/runs"+query, "text/plain", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string, out any) int {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, Options{})
	var body map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, ts, "/health", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestImportAndQueryGeneticRun(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp := postLog(t, ts, "?run_id=gen-1", readLog(t, "genetic.log"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created importResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, "gen-1", created.RunID)
	assert.Equal(t, "genetic", created.Kind)
	assert.Equal(t, 2, created.NetworkCount)

	var runs []runResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts, "/api/runs", &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "gen-1", runs[0].RunID)

	var run runResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts, "/api/runs/latest", &run))
	assert.Equal(t, []int{0, 1}, run.EpisodeNumbers)
	assert.Equal(t, "http", run.Source)

	var fitness map[string][]float64
	require.Equal(t, http.StatusOK, getJSON(t, ts, "/api/runs/gen-1/fitness", &fitness))
	assert.Equal(t, []float64{0.5, 0.75}, fitness["best_by_generation"])

	var traces []model.ChannelTrace
	require.Equal(t, http.StatusOK, getJSON(t, ts, "/api/runs/gen-1/traces", &traces))
	require.Len(t, traces, 2)
	assert.Len(t, traces[0].Values, 4)

	var plot plotResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts, "/api/runs/gen-1/plot?step=10", &plot))
	assert.Len(t, plot.Fitness, 2)
	assert.Equal(t, 30, plot.Average[3].Index)

	var ranking []map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, ts, "/api/runs/gen-1/ranking", &ranking))
	assert.Len(t, ranking, 2)
}

func TestImportMalformedLogIsUnprocessable(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp := postLog(t, ts, "", "episode 0\nnetwork 0\nservo 0 1\nfitness high\n")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.Error, "line 4")
}

func TestImportStructuralViolationIsUnprocessable(t *testing.T) {
	ts := newTestServer(t, Options{})
	resp := postLog(t, ts, "", "episode 0\nservo 0 1\nservo 0 2\nservo 1 1\n")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestImportTooLarge(t *testing.T) {
	ts := newTestServer(t, Options{MaxBodyBytes: 16})
	resp := postLog(t, ts, "", readLog(t, "random.log"))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestMissingRunIsNotFound(t *testing.T) {
	ts := newTestServer(t, Options{})
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts, "/api/runs/nope", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts, "/api/runs/latest/traces", nil))
}

func TestDeleteRun(t *testing.T) {
	ts := newTestServer(t, Options{})
	require.Equal(t, http.StatusCreated, postLog(t, ts, "?run_id=r1", readLog(t, "random.log")).StatusCode)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/runs/r1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts, "/api/runs/r1", nil))
}

func TestImportRejectsRunIDEscapingArtifactsDir(t *testing.T) {
	root := t.TempDir()
	client, err := armlog.New(armlog.Options{
		ArtifactsDir: filepath.Join(root, "runs"),
		ExportsDir:   filepath.Join(root, "exports"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	ts := httptest.NewServer(New(client, Options{}).Handler())
	t.Cleanup(ts.Close)

	resp := postLog(t, ts, "?run_id=../escaped", readLog(t, "random.log"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_, err = os.Stat(filepath.Join(root, "escaped"))
	assert.True(t, os.IsNotExist(err), "artifacts must stay under the artifacts dir")
}

func TestBadQueryParameter(t *testing.T) {
	ts := newTestServer(t, Options{})
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts, "/api/runs?limit=-3", nil))
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	collector := metrics.NewCollector()
	ts := newTestServer(t, Options{Metrics: collector})

	require.Equal(t, http.StatusCreated, postLog(t, ts, "", readLog(t, "random.log")).StatusCode)
	getJSON(t, ts, "/health", nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `armlog_http_requests_total{method="GET",route="/health",status="200"} 1`)
	assert.Contains(t, string(body), `method="POST",route="/api/runs`)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, Options{AllowedOrigins: []string{"http://localhost:3000"}})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/runs", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}
