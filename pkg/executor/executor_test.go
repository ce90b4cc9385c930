package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benthamhq/bentham/pkg/costs"
	"github.com/benthamhq/bentham/pkg/recovery"
	"github.com/benthamhq/bentham/pkg/sessions"
	"github.com/benthamhq/bentham/pkg/storage"
	"github.com/benthamhq/bentham/pkg/surface"
	"github.com/benthamhq/bentham/pkg/types"
)

func testManifest() types.Manifest {
	return types.Manifest{
		Name:    "executor test",
		Queries: []types.Query{{Text: "best database for time series"}, {Text: "top static site hosts"}},
		Surfaces: []types.SurfaceRef{
			{SurfaceID: "echo-a", Required: true},
		},
		Locations: []types.Location{{ID: "us-east"}},
		Completion: types.CompletionCriteria{
			RequiredSurfaces:  []string{"echo-a"},
			CoverageThreshold: 0.95,
			MaxRetriesPerCell: 1,
		},
		QualityGates:     types.QualityGates{MinResponseLength: 10, RequireActualContent: true},
		Deadline:         time.Now().Add(time.Hour),
		SessionIsolation: types.SessionPerTenant,
	}
}

// seedStudy persists an executing study plus its emitted matrix
func seedStudy(t *testing.T, store storage.Store, manifest types.Manifest) *types.Study {
	t.Helper()

	study := &types.Study{
		ID:        "study-1",
		TenantID:  "T1",
		Manifest:  manifest,
		Status:    types.StudyStatusExecuting,
		CreatedAt: time.Now(),
		StartedAt: time.Now(),
	}

	var jobs []*types.Job
	seq := 0
	for qi := range manifest.Queries {
		for _, ref := range manifest.Surfaces {
			for _, loc := range manifest.Locations {
				jobs = append(jobs, &types.Job{
					ID:         types.JobID(study.ID, qi, ref.SurfaceID, loc.ID),
					StudyID:    study.ID,
					Seq:        seq,
					QueryIndex: qi,
					SurfaceID:  ref.SurfaceID,
					LocationID: loc.ID,
					Status:     types.JobStatusPending,
					CreatedAt:  time.Now(),
				})
				seq++
			}
		}
	}
	study.TotalCells = len(jobs)

	require.NoError(t, store.CreateStudy(study))
	require.NoError(t, store.CreateJobs(jobs))
	return study
}

func newTestExecutor(t *testing.T, store storage.Store, defs []surface.Definition) *Executor {
	t.Helper()

	registry, err := surface.NewRegistry(defs)
	require.NoError(t, err)

	rec := recovery.NewManager(recovery.Config{
		MaxRetries:   1,
		BaseDelay:    time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Threshold:    100, // Keep circuits out of the way unless a test wants them
		ResetTimeout: time.Minute,
	}, nil)

	return New(store, registry, rec, sessions.NewRegistry(time.Minute), nil, Config{Workers: 2})
}

func echoDefs() []surface.Definition {
	return []surface.Definition{
		{ID: "echo-a", Kind: surface.KindEcho, Pricing: costs.Pricing{PerQuery: 0.01}},
		{ID: "echo-b", Kind: surface.KindEcho},
	}
}

func TestExecutorDrainsStudyToCompletion(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()
	study := seedStudy(t, store, testManifest())

	exec := newTestExecutor(t, store, echoDefs())
	defer exec.Stop()

	exec.Launch(study)
	exec.Wait(study.ID)

	got, err := store.GetStudy(study.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StudyStatusCompleted, got.Status)
	assert.Equal(t, 2, got.CompletedCells)
	assert.Equal(t, 0, got.FailedCells)
	assert.False(t, got.CompletedAt.IsZero())
	assert.InDelta(t, 0.02, got.Cost.Total, 0.001)

	jobs, err := store.ListJobsByStudy(study.ID)
	require.NoError(t, err)
	for _, job := range jobs {
		assert.Equal(t, types.JobStatusSucceeded, job.Status)
		require.NotNil(t, job.Result)
		assert.True(t, job.Result.Success)
		assert.Equal(t, recovery.StrategyPrimary, job.Result.Strategy)
		assert.True(t, job.Result.Validation.GatesPassed)
		assert.NotEmpty(t, job.Result.Session.SessionID)
		assert.GreaterOrEqual(t, job.Attempts, 1)
	}
}

func TestExecutorSurfaceUnavailable(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()

	manifest := testManifest()
	manifest.Surfaces = []types.SurfaceRef{{SurfaceID: "missing", Required: true}}
	manifest.Completion.RequiredSurfaces = []string{"missing"}
	study := seedStudy(t, store, manifest)

	exec := newTestExecutor(t, store, echoDefs())
	defer exec.Stop()

	exec.Launch(study)
	exec.Wait(study.ID)

	got, _ := store.GetStudy(study.ID)
	assert.Equal(t, types.StudyStatusFailed, got.Status)
	assert.Contains(t, got.FailureCause, CauseCoverageNotMet)
	assert.Equal(t, 2, got.FailedCells)

	jobs, _ := store.ListJobsByStudy(study.ID)
	for _, job := range jobs {
		assert.Equal(t, types.JobStatusFailed, job.Status)
		assert.Equal(t, string(types.ErrCodeSurfaceUnavailable), job.LastError)
		assert.Equal(t, 0, job.Attempts, "missing surfaces must not consume retries")
	}
}

func TestExecutorCountersStayWithinTotal(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()

	manifest := testManifest()
	manifest.Queries = []types.Query{{Text: "a"}, {Text: "b"}, {Text: "c"}, {Text: "d"}}
	study := seedStudy(t, store, manifest)

	exec := newTestExecutor(t, store, echoDefs())
	defer exec.Stop()

	exec.Launch(study)
	exec.Wait(study.ID)

	got, _ := store.GetStudy(study.ID)
	assert.LessOrEqual(t, got.CompletedCells+got.FailedCells, got.TotalCells)
	assert.Equal(t, got.TotalCells, got.CompletedCells+got.FailedCells)
}

func TestExecutorPauseStopsClaiming(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()

	manifest := testManifest()
	manifest.Queries = []types.Query{{Text: "a"}, {Text: "b"}, {Text: "c"}, {Text: "d"}}
	manifest.MaxConcurrency = 1
	for i := range manifest.Surfaces {
		manifest.Surfaces[i].Options = map[string]interface{}{"delayMs": float64(30)}
	}
	study := seedStudy(t, store, manifest)

	exec := newTestExecutor(t, store, echoDefs())
	defer exec.Stop()

	exec.Launch(study)
	time.Sleep(5 * time.Millisecond) // First cell is in flight
	exec.Pause(study.ID)
	time.Sleep(80 * time.Millisecond) // In-flight cell finishes, claiming has stopped

	pending, err := store.ListPendingJobs(study.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, pending, "paused study must stop claiming jobs")

	// Resuming is a relaunch; the run picks up where it left off
	exec.Launch(study)
	exec.Wait(study.ID)

	got, _ := store.GetStudy(study.ID)
	assert.Equal(t, types.StudyStatusCompleted, got.Status)
	assert.Equal(t, 4, got.CompletedCells)
}

func TestExecutorCancelAbortsInFlight(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()

	manifest := testManifest()
	manifest.Queries = []types.Query{{Text: "a"}, {Text: "b"}, {Text: "c"}, {Text: "d"}}
	manifest.MaxConcurrency = 1
	for i := range manifest.Surfaces {
		manifest.Surfaces[i].Options = map[string]interface{}{"delayMs": float64(5000)}
	}
	study := seedStudy(t, store, manifest)

	exec := newTestExecutor(t, store, echoDefs())
	defer exec.Stop()

	exec.Launch(study)
	time.Sleep(20 * time.Millisecond) // Let the first cell start

	start := time.Now()
	exec.Cancel(study.ID)
	exec.Wait(study.ID)
	assert.Less(t, time.Since(start), 2*time.Second, "cancel must abort the in-flight adapter call")

	jobs, _ := store.ListJobsByStudy(study.ID)
	for _, job := range jobs {
		assert.NotEqual(t, types.JobStatusSucceeded, job.Status)
	}
}

func TestExecutorDeadlinePassed(t *testing.T) {
	store := storage.NewMemoryStore()
	defer store.Close()

	manifest := testManifest()
	manifest.Deadline = time.Now().Add(20 * time.Millisecond)
	manifest.Queries = []types.Query{{Text: "a"}, {Text: "b"}, {Text: "c"}}
	manifest.MaxConcurrency = 1
	for i := range manifest.Surfaces {
		manifest.Surfaces[i].Options = map[string]interface{}{"delayMs": float64(40)}
	}
	study := seedStudy(t, store, manifest)

	exec := newTestExecutor(t, store, echoDefs())
	defer exec.Stop()

	exec.Launch(study)
	exec.Wait(study.ID)

	got, _ := store.GetStudy(study.ID)
	assert.Equal(t, types.StudyStatusFailed, got.Status)
	assert.Equal(t, string(types.ErrCodeDeadlineExceeded), got.FailureCause)
}

func TestEvaluateCompletion(t *testing.T) {
	manifest := testManifest()
	manifest.Completion.CoverageThreshold = 0.95

	job := func(surfaceID string, status types.JobStatus) *types.Job {
		return &types.Job{SurfaceID: surfaceID, Status: status}
	}

	tests := []struct {
		name       string
		jobs       []*types.Job
		wantDone   bool
		wantStatus types.StudyStatus
	}{
		{
			"pending cells keep the study open",
			[]*types.Job{job("echo-a", types.JobStatusSucceeded), job("echo-a", types.JobStatusPending)},
			false, "",
		},
		{
			"full coverage completes",
			[]*types.Job{job("echo-a", types.JobStatusSucceeded), job("echo-a", types.JobStatusSucceeded)},
			true, types.StudyStatusCompleted,
		},
		{
			"half coverage below threshold fails",
			[]*types.Job{job("echo-a", types.JobStatusSucceeded), job("echo-a", types.JobStatusFailed)},
			true, types.StudyStatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := EvaluateCompletion(&manifest, tt.jobs)
			assert.Equal(t, tt.wantDone, outcome.Done)
			if tt.wantDone {
				assert.Equal(t, tt.wantStatus, outcome.Status)
			}
			if outcome.Status == types.StudyStatusFailed {
				assert.Contains(t, outcome.Cause, CauseCoverageNotMet)
			}
		})
	}
}

func TestEvaluateCompletionOptionalSurfacesDoNotGate(t *testing.T) {
	manifest := testManifest()
	manifest.Surfaces = []types.SurfaceRef{
		{SurfaceID: "echo-a", Required: true},
		{SurfaceID: "echo-b"},
	}
	manifest.Completion.RequiredSurfaces = nil // Fall back to the Required flags

	jobs := []*types.Job{
		{SurfaceID: "echo-a", Status: types.JobStatusSucceeded},
		{SurfaceID: "echo-b", Status: types.JobStatusFailed},
	}

	outcome := EvaluateCompletion(&manifest, jobs)
	require.True(t, outcome.Done)
	assert.Equal(t, types.StudyStatusCompleted, outcome.Status)
}

func TestCoverageBySurface(t *testing.T) {
	manifest := testManifest()
	manifest.Surfaces = []types.SurfaceRef{{SurfaceID: "echo-a"}, {SurfaceID: "echo-b"}}

	jobs := []*types.Job{
		{SurfaceID: "echo-a", Status: types.JobStatusSucceeded},
		{SurfaceID: "echo-a", Status: types.JobStatusFailed},
		{SurfaceID: "echo-b", Status: types.JobStatusPending},
	}

	coverage := CoverageBySurface(&manifest, jobs)
	require.Len(t, coverage, 2)
	assert.Equal(t, SurfaceCoverage{SurfaceID: "echo-a", Scheduled: 2, Succeeded: 1, Failed: 1, Coverage: 0.5}, coverage[0])
	assert.Equal(t, SurfaceCoverage{SurfaceID: "echo-b", Scheduled: 1, Pending: 1}, coverage[1])
}

func TestEvaluateGates(t *testing.T) {
	tests := []struct {
		name        string
		gates       types.QualityGates
		text        string
		wantPassed  bool
		wantContent bool
	}{
		{"passes both gates", types.QualityGates{MinResponseLength: 5, RequireActualContent: true}, "a real answer", true, true},
		{"too short", types.QualityGates{MinResponseLength: 100}, "short", false, true},
		{"whitespace only", types.QualityGates{RequireActualContent: true}, "   \n\t ", false, false},
		{"no gates", types.QualityGates{}, "", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary := evaluateGates(tt.gates, tt.text)
			assert.Equal(t, tt.wantPassed, summary.GatesPassed)
			assert.Equal(t, tt.wantContent, summary.IsActualContent)
			assert.Equal(t, len(tt.text), summary.ResponseLength)
		})
	}
}
