package storage

import (
	"context"
	"testing"

	"armlog/internal/model"
)

func newTestRun(id, createdAt string) model.RunRecord {
	return model.RunRecord{
		VersionedRecord: Versioned(),
		ID:              id,
		Source:          "arm.log",
		Kind:            "random",
		EpisodeCount:    2,
		ChannelCount:    3,
		StepsPerEpisode: 10,
		EpisodeNumbers:  []int{0, 1},
		CreatedAtUTC:    createdAt,
	}
}

func TestMemoryStoreRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := newTestRun("run-1", "2026-01-01T00:00:00Z")
	if err := store.SaveRun(ctx, input); err != nil {
		t.Fatalf("save run: %v", err)
	}
	input.EpisodeNumbers[0] = 99

	output, ok, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted run")
	}
	if output.ID != "run-1" || output.EpisodeCount != 2 || output.EpisodeNumbers[0] != 0 {
		t.Fatalf("unexpected run: %+v", output)
	}

	if _, ok, err := store.GetRun(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing run, ok=%t err=%v", ok, err)
	}
}

func TestMemoryStoreListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	for _, run := range []model.RunRecord{
		newTestRun("old", "2026-01-01T00:00:00Z"),
		newTestRun("new", "2026-03-01T00:00:00Z"),
		newTestRun("mid", "2026-02-01T00:00:00Z"),
	} {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run %s: %v", run.ID, err)
		}
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 3 || runs[0].ID != "new" || runs[1].ID != "mid" || runs[2].ID != "old" {
		t.Fatalf("unexpected run order: %+v", runs)
	}
}

func TestMemoryStoreFitnessHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := []float64{0.1, 0.2, 0.3}
	if err := store.SaveFitnessHistory(ctx, "run-1", input); err != nil {
		t.Fatalf("save history: %v", err)
	}
	input[0] = 9
	output, ok, err := store.GetFitnessHistory(ctx, "run-1")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted history")
	}
	if len(output) != 3 || output[0] != 0.1 {
		t.Fatalf("unexpected history: %+v", output)
	}
}

func TestMemoryStoreTracesAreCopied(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	input := []model.ChannelTrace{{ChannelID: 4, Values: []float64{1, 2}}}
	if err := store.SaveTraces(ctx, "run-1", input); err != nil {
		t.Fatalf("save traces: %v", err)
	}
	input[0].Values[0] = 100

	output, ok, err := store.GetTraces(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("get traces: ok=%t err=%v", ok, err)
	}
	output[0].Values[1] = 200

	again, _, _ := store.GetTraces(ctx, "run-1")
	if again[0].ChannelID != 4 || again[0].Values[0] != 1 || again[0].Values[1] != 2 {
		t.Fatalf("stored traces were aliased: %+v", again)
	}
}

func TestMemoryStoreDeleteRunRemovesArtifacts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := store.SaveRun(ctx, newTestRun("run-1", "2026-01-01T00:00:00Z")); err != nil {
		t.Fatalf("save run: %v", err)
	}
	if err := store.SaveFitnessHistory(ctx, "run-1", []float64{1}); err != nil {
		t.Fatalf("save history: %v", err)
	}
	if err := store.DeleteRun(ctx, "run-1"); err != nil {
		t.Fatalf("delete run: %v", err)
	}
	if _, ok, _ := store.GetRun(ctx, "run-1"); ok {
		t.Fatal("expected run to be deleted")
	}
	if _, ok, _ := store.GetFitnessHistory(ctx, "run-1"); ok {
		t.Fatal("expected history to be deleted")
	}
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	if err := store.SaveRun(context.Background(), newTestRun("run-1", "")); err == nil {
		t.Fatal("expected error before init")
	}
}
