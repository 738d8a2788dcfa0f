package consolidate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rflorenc/pan-deduper/internal/models"
)

func consolidationPlan(t *testing.T, snap []models.Object, dups models.DuplicateRecord) *Plan {
	t.Helper()
	plan, err := BuildPlan(PlanInput{
		Kinds:        []models.Kind{models.KindAddress},
		Duplicates:   map[models.Kind]models.DuplicateRecord{models.KindAddress: dups},
		Snapshot:     snapshotOf(snap...),
		Destinations: []string{"All"},
	})
	require.NoError(t, err)
	return plan
}

func collect() (func(string), func() []string) {
	var mu sync.Mutex
	var lines []string
	return func(s string) {
			mu.Lock()
			defer mu.Unlock()
			lines = append(lines, s)
		}, func() []string {
			mu.Lock()
			defer mu.Unlock()
			return append([]string(nil), lines...)
		}
}

func TestExecute_MovesObjects(t *testing.T) {
	objs := []models.Object{
		addr("obj1", "dg1", "1.1.1.1/32"),
		addr("obj1", "dg2", "1.1.1.1/32"),
		addr("obj1", "dg3", "1.1.1.1/32"),
	}
	mem := newMem(objs...)
	plan := consolidationPlan(t, objs, models.DuplicateRecord{"obj1": {"dg1", "dg2", "dg3"}})

	progress, lines := collect()
	ex := &Executor{Pusher: mem, Source: mem, MaxConcurrency: 2, Log: zap.NewNop(), Progress: progress}
	report, err := ex.Execute(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Count(StatusOK))
	assert.Empty(t, report.Failed())
	assert.True(t, mem.has(models.KindAddress, "All", "obj1"))
	for _, dg := range []string{"dg1", "dg2", "dg3"} {
		assert.False(t, mem.has(models.KindAddress, dg, "obj1"), dg)
	}
	assert.Contains(t, lines(), "  CREATED: address 'obj1' in All")
	assert.Contains(t, lines(), "  DELETED: address 'obj1' in dg2")
	assert.Equal(t, "Consolidation complete: 4 succeeded, 0 already present, 0 failed, 0 skipped", lines()[len(lines())-1])
}

func TestExecute_IdenticalObjectAlreadyAtDestination(t *testing.T) {
	objs := []models.Object{
		addr("obj1", "dg1", "1.1.1.1/32"),
		addr("obj1", "dg2", "1.1.1.1/32"),
	}
	mem := newMem(append(objs, addr("obj1", "All", "1.1.1.1/32"))...)
	plan := consolidationPlan(t, objs, models.DuplicateRecord{"obj1": {"dg1", "dg2"}})

	ex := &Executor{Pusher: mem, Source: mem, MaxConcurrency: 1}
	report, err := ex.Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count(StatusExists))
	assert.Equal(t, 2, report.Count(StatusOK))
}

func TestExecute_FailedCreateDoesNotStopRun(t *testing.T) {
	objs := []models.Object{
		addr("obj1", "dg1", "1.1.1.1/32"),
		addr("obj1", "dg2", "1.1.1.1/32"),
	}
	mem := newMem(append(objs, addr("obj1", "All", "9.9.9.9/32"))...)
	plan := consolidationPlan(t, objs, models.DuplicateRecord{"obj1": {"dg1", "dg2"}})

	ex := &Executor{Pusher: mem, Source: mem, MaxConcurrency: 1}
	report, err := ex.Execute(context.Background(), plan)
	require.NoError(t, err)

	failed := report.Failed()
	require.Len(t, failed, 1)
	var stepErr *models.StepError
	require.True(t, errors.As(failed[0].Err(), &stepErr))
	assert.Equal(t, "5", stepErr.Code)
	assert.Equal(t, "create address 'obj1' in All: code 5: Object Not Unique", failed[0].Error)

	// deletes still ran
	assert.Equal(t, 2, report.Count(StatusOK))
	assert.False(t, mem.has(models.KindAddress, "dg1", "obj1"))
}

func TestExecute_GuardDeletes(t *testing.T) {
	objs := []models.Object{
		addr("obj1", "dg1", "1.1.1.1/32"),
		addr("obj1", "dg2", "1.1.1.1/32"),
		addr("obj2", "dg1", "2.2.2.2/32"),
		addr("obj2", "dg2", "2.2.2.2/32"),
	}
	mem := newMem(objs...)
	mem.failCreate["address/obj1"] = true
	plan := consolidationPlan(t, objs, models.DuplicateRecord{"obj1": {"dg1", "dg2"}, "obj2": {"dg1", "dg2"}})

	progress, lines := collect()
	ex := &Executor{Pusher: mem, Source: mem, MaxConcurrency: 4, GuardDeletes: true, Progress: progress}
	report, err := ex.Execute(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Count(StatusFailed))
	assert.Equal(t, 2, report.Count(StatusSkipped))
	assert.True(t, mem.has(models.KindAddress, "dg1", "obj1"))
	assert.False(t, mem.has(models.KindAddress, "dg1", "obj2"))
	assert.Contains(t, lines(), "  SKIP (create failed): address 'obj1' in dg1")
}

func TestExecute_CheckpointDeclined(t *testing.T) {
	mem := newMem(addr("obj1", models.SharedUnit, "1.1.1.1/32"))
	plan := &Plan{}
	plan.Add(SharedCleanupPhase(map[models.Kind][]string{models.KindAddress: {"obj1"}}))

	var asked string
	ex := &Executor{Pusher: mem, Confirm: func(q string) bool { asked = q; return false }}
	report, err := ex.Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.True(t, report.Halted)
	assert.Equal(t, PhaseSharedCleanup, report.HaltedAt)
	assert.Equal(t, "Delete 1 consolidated objects from shared?", asked)
	assert.True(t, mem.has(models.KindAddress, models.SharedUnit, "obj1"))
}

func TestExecute_Cancelled(t *testing.T) {
	objs := []models.Object{addr("obj1", "dg1", "1.1.1.1/32"), addr("obj1", "dg2", "1.1.1.1/32")}
	mem := newMem(objs...)
	plan := consolidationPlan(t, objs, models.DuplicateRecord{"obj1": {"dg1", "dg2"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	progress, lines := collect()
	ex := &Executor{Pusher: mem, Progress: progress}
	_, err := ex.Execute(ctx, plan)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"Consolidation cancelled by user"}, lines())
	assert.Empty(t, mem.calls)
}

func TestExecute_RefreshReplacesBatchesAfterCheckpoint(t *testing.T) {
	mem := newMem(addr("obj1", models.SharedUnit, "1.1.1.1/32"))
	var asked bool
	plan := &Plan{}
	plan.Add(Phase{
		Name:       PhaseSharedCleanup,
		Checkpoint: "Delete 1 consolidated objects from shared?",
		Batches:    [][]Step{{{Op: OpDelete, Kind: models.KindAddress, Name: "stale", Unit: models.SharedUnit}}},
		Refresh: func(ctx context.Context) ([][]Step, error) {
			assert.True(t, asked, "refreshed before the checkpoint")
			return [][]Step{{{Op: OpDelete, Kind: models.KindAddress, Name: "obj1", Unit: models.SharedUnit}}}, nil
		},
	})

	ex := &Executor{Pusher: mem, Source: mem, MaxConcurrency: 1, Confirm: func(string) bool {
		asked = true
		return true
	}}
	report, err := ex.Execute(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "obj1", report.Results[0].Step.Name)
	assert.Equal(t, StatusOK, report.Results[0].Status)
	assert.False(t, mem.has(models.KindAddress, models.SharedUnit, "obj1"))
}

func TestExecute_RefreshError(t *testing.T) {
	plan := &Plan{}
	plan.Add(Phase{
		Name:    PhaseSharedCleanup,
		Batches: [][]Step{{{Op: OpDelete, Kind: models.KindAddress, Name: "obj1", Unit: models.SharedUnit}}},
		Refresh: func(ctx context.Context) ([][]Step, error) {
			return nil, errors.New("shared unavailable")
		},
	})
	mem := newMem()
	_, err := (&Executor{Pusher: mem, Source: mem}).Execute(context.Background(), plan)
	assert.ErrorContains(t, err, "shared unavailable")
}
