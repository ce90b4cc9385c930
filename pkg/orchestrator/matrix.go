package orchestrator

import (
	"time"

	"github.com/benthamhq/bentham/pkg/types"
)

// EmitMatrix expands a study's manifest into its job matrix: one cell
// per (query, surface, location) triple, in lexicographic emission
// order. Ids are deterministic, so re-emitting the same matrix yields
// the same cells; the order is only observable as the initial pending
// layout.
func EmitMatrix(study *types.Study) []*types.Job {
	m := &study.Manifest
	now := time.Now()

	jobs := make([]*types.Job, 0, len(m.Queries)*len(m.Surfaces)*len(m.Locations))
	seq := 0
	for qi := range m.Queries {
		for _, ref := range m.Surfaces {
			for _, loc := range m.Locations {
				jobs = append(jobs, &types.Job{
					ID:         types.JobID(study.ID, qi, ref.SurfaceID, loc.ID),
					StudyID:    study.ID,
					Seq:        seq,
					QueryIndex: qi,
					SurfaceID:  ref.SurfaceID,
					LocationID: loc.ID,
					Status:     types.JobStatusPending,
					CreatedAt:  now,
					UpdatedAt:  now,
				})
				seq++
			}
		}
	}
	return jobs
}
