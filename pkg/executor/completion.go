package executor

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/benthamhq/bentham/pkg/types"
)

// CauseCoverageNotMet is recorded on studies whose required surfaces
// finished below the coverage threshold
const CauseCoverageNotMet = "COVERAGE_NOT_MET"

// Outcome is the result of evaluating a study's completion criteria
type Outcome struct {
	Done   bool
	Status types.StudyStatus // completed or failed, when Done
	Cause  string            // Failure cause, when failed
}

// SurfaceCoverage summarizes one surface's cells within a study
type SurfaceCoverage struct {
	SurfaceID string  `json:"surfaceId"`
	Scheduled int     `json:"scheduled"`
	Succeeded int     `json:"succeeded"`
	Failed    int     `json:"failed"`
	Pending   int     `json:"pending"`
	Coverage  float64 `json:"coverage"` // Succeeded / Scheduled
}

// CoverageBySurface computes per-surface cell tallies in manifest
// surface order
func CoverageBySurface(m *types.Manifest, jobs []*types.Job) []SurfaceCoverage {
	grouped := lo.GroupBy(jobs, func(j *types.Job) string { return j.SurfaceID })

	out := make([]SurfaceCoverage, 0, len(m.Surfaces))
	for _, ref := range m.Surfaces {
		cells := grouped[ref.SurfaceID]
		cov := SurfaceCoverage{
			SurfaceID: ref.SurfaceID,
			Scheduled: len(cells),
		}
		for _, j := range cells {
			switch j.Status {
			case types.JobStatusSucceeded:
				cov.Succeeded++
			case types.JobStatusFailed:
				cov.Failed++
			default:
				cov.Pending++
			}
		}
		if cov.Scheduled > 0 {
			cov.Coverage = float64(cov.Succeeded) / float64(cov.Scheduled)
		}
		out = append(out, cov)
	}
	return out
}

// EvaluateCompletion decides whether a study is done and how it ended.
// A study completes when every cell is terminal and every required
// surface's succeeded/scheduled ratio meets the coverage threshold;
// otherwise, once all cells are terminal, it fails with
// COVERAGE_NOT_MET naming the surfaces that fell short.
func EvaluateCompletion(m *types.Manifest, jobs []*types.Job) Outcome {
	for _, j := range jobs {
		if !j.Status.IsTerminal() {
			return Outcome{}
		}
	}

	coverage := CoverageBySurface(m, jobs)
	byID := lo.KeyBy(coverage, func(c SurfaceCoverage) string { return c.SurfaceID })

	var short []string
	for _, id := range requiredSurfaces(m) {
		cov, ok := byID[id]
		if !ok || cov.Coverage < m.Completion.CoverageThreshold {
			short = append(short, id)
		}
	}

	if len(short) > 0 {
		return Outcome{
			Done:   true,
			Status: types.StudyStatusFailed,
			Cause:  fmt.Sprintf("%s: %v below threshold %.2f", CauseCoverageNotMet, short, m.Completion.CoverageThreshold),
		}
	}
	return Outcome{Done: true, Status: types.StudyStatusCompleted}
}

// requiredSurfaces resolves which surfaces gate completion: the
// explicit required-surfaces set when given, otherwise the surface
// references flagged required in the manifest.
func requiredSurfaces(m *types.Manifest) []string {
	if len(m.Completion.RequiredSurfaces) > 0 {
		return m.Completion.RequiredSurfaces
	}
	required := lo.Filter(m.Surfaces, func(ref types.SurfaceRef, _ int) bool { return ref.Required })
	return lo.Map(required, func(ref types.SurfaceRef, _ int) string { return ref.SurfaceID })
}
