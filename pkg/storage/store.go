package storage

import (
	"errors"

	"github.com/benthamhq/bentham/pkg/types"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a compare-and-swap loses, a transition
	// is illegal, or a unique constraint is violated
	ErrConflict = errors.New("conflict")
)

// ProgressDelta is one job outcome folded into its study: strictly
// additive counters plus the accrued cost attributed to a surface.
type ProgressDelta struct {
	Completed int
	Failed    int
	Cost      float64
	SurfaceID string
}

// Store defines the interface for study, job, and API key state.
// Implemented by BoltStore (bbolt) and MemoryStore.
//
// Mutations that race are expressed as atomic operations here rather than
// read-modify-write at call sites: status moves are compare-and-swap
// against the lifecycle DAG and counters are strictly additive.
type Store interface {
	// Studies
	CreateStudy(study *types.Study) error
	GetStudy(id string) (*types.Study, error)
	// GetTenantStudy rejects reads across tenants: a study owned by a
	// different tenant is reported as ErrNotFound, never as a distinct
	// error, so existence cannot be probed.
	GetTenantStudy(tenantID, id string) (*types.Study, error)
	ListStudiesByTenant(tenantID string) ([]*types.Study, error)
	ListStudiesByStatus(statuses ...types.StudyStatus) ([]*types.Study, error)
	// TransitionStudy compare-and-swaps the status from one specific state
	// to another, checking DAG legality and stamping lifecycle timestamps.
	// Returns ErrConflict when the current status differs from from or the
	// edge is illegal.
	TransitionStudy(id string, from, to types.StudyStatus) (*types.Study, error)
	// TerminateStudy moves any non-terminal study to the given terminal
	// status with a cause. Returns ErrConflict when already terminal.
	TerminateStudy(id string, to types.StudyStatus, cause string) (*types.Study, error)
	// AddStudyProgress folds a job outcome into the study counters and
	// cost. Counters only ever grow.
	AddStudyProgress(id string, delta ProgressDelta) (*types.Study, error)

	// Jobs
	CreateJobs(jobs []*types.Job) error
	GetJob(id string) (*types.Job, error)
	// ListJobsByStudy returns the study's jobs in matrix emission order.
	ListJobsByStudy(studyID string) ([]*types.Job, error)
	ListPendingJobs(studyID string) ([]*types.Job, error)
	// ClaimJob compare-and-swaps the job status. Returns false without
	// error when the claim loses the race.
	ClaimJob(id string, from, to types.JobStatus) (bool, error)
	// FinishJob writes a terminal outcome. A succeeded job is immutable:
	// finishing it again returns ErrConflict.
	FinishJob(job *types.Job) error
	// FailPendingJobs marks every still-pending job of a study failed with
	// the given classification and returns how many were closed out.
	FailPendingJobs(studyID string, code types.ErrorCode) (int, error)

	// API keys
	CreateAPIKey(key *types.APIKey) error
	GetAPIKeyByHash(hash string) (*types.APIKey, error)
	ListAPIKeys() ([]*types.APIKey, error)
	ListAPIKeysByTenant(tenantID string) ([]*types.APIKey, error)
	DeleteAPIKey(id string) error

	// Utility
	Close() error
}
