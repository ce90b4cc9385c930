package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benthamhq/bentham/pkg/types"
	"github.com/benthamhq/bentham/test/framework"
)

func echoManifest(mutate func(*types.Manifest)) *types.Manifest {
	m := &types.Manifest{
		Name:      "lifecycle study",
		Queries:   []types.Query{{Text: "best project management tool"}, {Text: "best crm for startups"}},
		Surfaces:  []types.SurfaceRef{{SurfaceID: "echo", Required: true}},
		Locations: []types.Location{{ID: "us-east"}, {ID: "eu-west"}},
		Completion: types.CompletionCriteria{
			CoverageThreshold: 0.95,
			MaxRetriesPerCell: 1,
		},
		Deadline:         time.Now().Add(time.Hour),
		SessionIsolation: types.SessionPerQuery,
	}
	if mutate != nil {
		mutate(m)
	}
	return m
}

func TestStudyGoldenPath(t *testing.T) {
	h := framework.New(t, nil)
	c := h.Client(h.MintKey(t, "T1"))
	ctx := context.Background()

	receipt, err := c.CreateStudy(ctx, echoManifest(nil))
	require.NoError(t, err)
	assert.Equal(t, "validating", receipt.Status)

	status, err := framework.DefaultWaiter().WaitForStudyTerminal(ctx, c, receipt.StudyID)
	require.NoError(t, err)
	assert.Equal(t, "completed", status)

	view, err := c.GetStudy(ctx, receipt.StudyID)
	require.NoError(t, err)
	assert.Equal(t, 4, view.Progress.Total)
	assert.Equal(t, 4, view.Progress.Completed)
	assert.Equal(t, 0, view.Progress.Failed)
	assert.Equal(t, 100, view.Progress.CompletionPercentage)
	require.NotNil(t, view.StartedAt)
	require.NotNil(t, view.CompletedAt)

	results, err := c.GetResults(ctx, receipt.StudyID)
	require.NoError(t, err)
	require.Len(t, results.Cells, 4)
	assert.Equal(t, 4, results.Summary.SuccessfulQueries)
	for _, cell := range results.Cells {
		require.NotNil(t, cell.Result, cell.JobID)
		assert.True(t, cell.Result.Success)
		assert.NotEmpty(t, cell.Result.Response.Text)
	}
}

func TestStudyPauseResumeCancel(t *testing.T) {
	h := framework.New(t, nil)
	c := h.Client(h.MintKey(t, "T1"))
	ctx := context.Background()

	slow := echoManifest(func(m *types.Manifest) {
		m.Queries = []types.Query{{Text: "a"}, {Text: "b"}, {Text: "c"}, {Text: "d"}}
		m.Locations = m.Locations[:1]
		m.Surfaces[0].Options = map[string]interface{}{"delayMs": float64(50)}
		m.MaxConcurrency = 1
	})

	receipt, err := c.CreateStudy(ctx, slow)
	require.NoError(t, err)

	require.NoError(t, c.PauseStudy(ctx, receipt.StudyID))

	view, err := c.GetStudy(ctx, receipt.StudyID)
	require.NoError(t, err)
	assert.Equal(t, "paused", view.Status)

	// Let the cell claimed before the pause drain, then verify the
	// pending count holds steady
	time.Sleep(100 * time.Millisecond)
	before, err := c.GetStudy(ctx, receipt.StudyID)
	require.NoError(t, err)
	time.Sleep(150 * time.Millisecond)
	after, err := c.GetStudy(ctx, receipt.StudyID)
	require.NoError(t, err)
	assert.Equal(t, before.Progress.Pending, after.Progress.Pending)
	assert.NotZero(t, after.Progress.Pending)

	require.NoError(t, c.ResumeStudy(ctx, receipt.StudyID))

	view, err = c.GetStudy(ctx, receipt.StudyID)
	require.NoError(t, err)
	assert.Equal(t, "running", view.Status)

	require.NoError(t, c.CancelStudy(ctx, receipt.StudyID))

	status, err := framework.DefaultWaiter().WaitForStudyTerminal(ctx, c, receipt.StudyID)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", status)

	// Every cell is closed out, none left pending
	waiter := framework.DefaultWaiter()
	require.NoError(t, waiter.WaitFor(ctx, func() bool {
		view, err := c.GetStudy(ctx, receipt.StudyID)
		return err == nil && view.Progress.Pending == 0
	}, "cancelled study to close out all cells"))

	// Cancelled is terminal: resume must be rejected
	err = c.ResumeStudy(ctx, receipt.StudyID)
	require.Error(t, err)
}

func TestStudyDeadlineExceeded(t *testing.T) {
	h := framework.New(t, nil)
	c := h.Client(h.MintKey(t, "T1"))
	ctx := context.Background()

	tight := echoManifest(func(m *types.Manifest) {
		m.Queries = []types.Query{{Text: "a"}, {Text: "b"}, {Text: "c"}}
		m.Locations = m.Locations[:1]
		m.Surfaces[0].Options = map[string]interface{}{"delayMs": float64(250)}
		m.MaxConcurrency = 1
		m.Deadline = time.Now().Add(400 * time.Millisecond)
	})

	receipt, err := c.CreateStudy(ctx, tight)
	require.NoError(t, err)

	status, err := framework.DefaultWaiter().WaitForStudyTerminal(ctx, c, receipt.StudyID)
	require.NoError(t, err)
	assert.Equal(t, "failed", status)

	view, err := c.GetStudy(ctx, receipt.StudyID)
	require.NoError(t, err)
	assert.Equal(t, string(types.ErrCodeDeadlineExceeded), view.FailureCause)
	assert.Zero(t, view.Progress.Pending)
}
