package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benthamhq/bentham/pkg/types"
)

// MemoryStore implements Store with in-process maps. It backs tests and
// dev mode; semantics match BoltStore exactly, including copy-on-read so
// callers can never mutate stored state through a returned pointer.
type MemoryStore struct {
	mu         sync.RWMutex
	studies    map[string]*types.Study
	jobs       map[string]*types.Job
	keys       map[string]*types.APIKey
	keysByHash map[string]string // hash -> key ID
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		studies:    make(map[string]*types.Study),
		jobs:       make(map[string]*types.Job),
		keys:       make(map[string]*types.APIKey),
		keysByHash: make(map[string]string),
	}
}

// Close releases nothing but satisfies Store
func (s *MemoryStore) Close() error {
	return nil
}

// cloneStudy returns an independent copy of a study
func cloneStudy(study *types.Study) *types.Study {
	out := *study
	out.Manifest = cloneManifest(study.Manifest)
	if study.Cost.Breakdown != nil {
		out.Cost.Breakdown = make(map[string]float64, len(study.Cost.Breakdown))
		for k, v := range study.Cost.Breakdown {
			out.Cost.Breakdown[k] = v
		}
	}
	return &out
}

// cloneManifest copies the slices and maps a manifest carries
func cloneManifest(m types.Manifest) types.Manifest {
	out := m
	out.Queries = append([]types.Query(nil), m.Queries...)
	out.Surfaces = make([]types.SurfaceRef, len(m.Surfaces))
	for i, ref := range m.Surfaces {
		out.Surfaces[i] = ref
		if ref.Options != nil {
			opts := make(map[string]interface{}, len(ref.Options))
			for k, v := range ref.Options {
				opts[k] = v
			}
			out.Surfaces[i].Options = opts
		}
	}
	out.Locations = append([]types.Location(nil), m.Locations...)
	out.Completion.RequiredSurfaces = append([]string(nil), m.Completion.RequiredSurfaces...)
	return out
}

// cloneJob returns an independent copy of a job
func cloneJob(job *types.Job) *types.Job {
	out := *job
	if job.Result != nil {
		result := *job.Result
		result.Response.Citations = append([]types.Citation(nil), job.Result.Response.Citations...)
		result.Response.FollowUps = append([]string(nil), job.Result.Response.FollowUps...)
		out.Result = &result
	}
	return &out
}

// cloneKey returns an independent copy of an API key
func cloneKey(key *types.APIKey) *types.APIKey {
	out := *key
	out.Permissions = append([]string(nil), key.Permissions...)
	if key.ExpiresAt != nil {
		expires := *key.ExpiresAt
		out.ExpiresAt = &expires
	}
	return &out
}

// Study operations

func (s *MemoryStore) CreateStudy(study *types.Study) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.studies[study.ID]; exists {
		return fmt.Errorf("study %s already exists: %w", study.ID, ErrConflict)
	}
	s.studies[study.ID] = cloneStudy(study)
	return nil
}

func (s *MemoryStore) GetStudy(id string) (*types.Study, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	study, ok := s.studies[id]
	if !ok {
		return nil, fmt.Errorf("study %s: %w", id, ErrNotFound)
	}
	return cloneStudy(study), nil
}

func (s *MemoryStore) GetTenantStudy(tenantID, id string) (*types.Study, error) {
	study, err := s.GetStudy(id)
	if err != nil {
		return nil, err
	}
	// A foreign study is indistinguishable from a missing one
	if study.TenantID != tenantID {
		return nil, fmt.Errorf("study %s: %w", id, ErrNotFound)
	}
	return study, nil
}

func (s *MemoryStore) ListStudiesByTenant(tenantID string) ([]*types.Study, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var studies []*types.Study
	for _, study := range s.studies {
		if study.TenantID == tenantID {
			studies = append(studies, cloneStudy(study))
		}
	}
	sort.Slice(studies, func(i, j int) bool {
		return studies[i].CreatedAt.Before(studies[j].CreatedAt)
	})
	return studies, nil
}

func (s *MemoryStore) ListStudiesByStatus(statuses ...types.StudyStatus) ([]*types.Study, error) {
	want := make(map[types.StudyStatus]bool, len(statuses))
	for _, status := range statuses {
		want[status] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var studies []*types.Study
	for _, study := range s.studies {
		if want[study.Status] {
			studies = append(studies, cloneStudy(study))
		}
	}
	return studies, nil
}

func (s *MemoryStore) TransitionStudy(id string, from, to types.StudyStatus) (*types.Study, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	study, ok := s.studies[id]
	if !ok {
		return nil, fmt.Errorf("study %s: %w", id, ErrNotFound)
	}
	if study.Status != from {
		return nil, fmt.Errorf("study %s is %s, not %s: %w", id, study.Status, from, ErrConflict)
	}
	if !from.CanTransition(to) {
		return nil, fmt.Errorf("study %s cannot move %s -> %s: %w", id, from, to, ErrConflict)
	}
	stampStudy(study, to, "")
	return cloneStudy(study), nil
}

func (s *MemoryStore) TerminateStudy(id string, to types.StudyStatus, cause string) (*types.Study, error) {
	if !to.IsTerminal() {
		return nil, fmt.Errorf("status %s is not terminal: %w", to, ErrConflict)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	study, ok := s.studies[id]
	if !ok {
		return nil, fmt.Errorf("study %s: %w", id, ErrNotFound)
	}
	if study.Status.IsTerminal() {
		return nil, fmt.Errorf("study %s already %s: %w", id, study.Status, ErrConflict)
	}
	if !study.Status.CanTransition(to) {
		return nil, fmt.Errorf("study %s cannot move %s -> %s: %w", id, study.Status, to, ErrConflict)
	}
	stampStudy(study, to, cause)
	return cloneStudy(study), nil
}

func (s *MemoryStore) AddStudyProgress(id string, delta ProgressDelta) (*types.Study, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	study, ok := s.studies[id]
	if !ok {
		return nil, fmt.Errorf("study %s: %w", id, ErrNotFound)
	}
	applyProgress(study, delta)
	return cloneStudy(study), nil
}

// Job operations

func (s *MemoryStore) CreateJobs(jobs []*types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range jobs {
		// Deterministic IDs make re-emission an upsert, not a duplicate
		s.jobs[job.ID] = cloneJob(job)
	}
	return nil
}

func (s *MemoryStore) GetJob(id string) (*types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return cloneJob(job), nil
}

func (s *MemoryStore) ListJobsByStudy(studyID string) ([]*types.Job, error) {
	return s.listStudyJobs(studyID, nil), nil
}

func (s *MemoryStore) ListPendingJobs(studyID string) ([]*types.Job, error) {
	pending := types.JobStatusPending
	return s.listStudyJobs(studyID, &pending), nil
}

func (s *MemoryStore) listStudyJobs(studyID string, status *types.JobStatus) []*types.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var jobs []*types.Job
	for _, job := range s.jobs {
		if job.StudyID != studyID {
			continue
		}
		if status != nil && job.Status != *status {
			continue
		}
		jobs = append(jobs, cloneJob(job))
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Seq < jobs[j].Seq })
	return jobs
}

func (s *MemoryStore) ClaimJob(id string, from, to types.JobStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return false, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if job.Status != from {
		return false, nil
	}
	job.Status = to
	job.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemoryStore) FinishJob(job *types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[job.ID]
	if !ok {
		return fmt.Errorf("job %s: %w", job.ID, ErrNotFound)
	}
	// A succeeded cell never re-runs and its result never changes
	if current.Status == types.JobStatusSucceeded {
		return fmt.Errorf("job %s already succeeded: %w", job.ID, ErrConflict)
	}
	finished := cloneJob(job)
	finished.UpdatedAt = time.Now()
	s.jobs[job.ID] = finished
	return nil
}

func (s *MemoryStore) FailPendingJobs(studyID string, code types.ErrorCode) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	now := time.Now()
	for _, job := range s.jobs {
		if job.StudyID == studyID && job.Status == types.JobStatusPending {
			job.Status = types.JobStatusFailed
			job.LastError = string(code)
			job.UpdatedAt = now
			count++
		}
	}
	return count, nil
}

// API key operations

func (s *MemoryStore) CreateAPIKey(key *types.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keysByHash[key.KeyHash]; exists {
		return fmt.Errorf("api key hash already registered: %w", ErrConflict)
	}
	s.keys[key.ID] = cloneKey(key)
	s.keysByHash[key.KeyHash] = key.ID
	return nil
}

func (s *MemoryStore) GetAPIKeyByHash(hash string) (*types.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.keysByHash[hash]
	if !ok {
		return nil, fmt.Errorf("api key: %w", ErrNotFound)
	}
	return cloneKey(s.keys[id]), nil
}

func (s *MemoryStore) ListAPIKeys() ([]*types.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []*types.APIKey
	for _, key := range s.keys {
		keys = append(keys, cloneKey(key))
	}
	return keys, nil
}

func (s *MemoryStore) ListAPIKeysByTenant(tenantID string) ([]*types.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []*types.APIKey
	for _, key := range s.keys {
		if key.TenantID == tenantID {
			keys = append(keys, cloneKey(key))
		}
	}
	return keys, nil
}

func (s *MemoryStore) DeleteAPIKey(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key, ok := s.keys[id]; ok {
		delete(s.keysByHash, key.KeyHash)
		delete(s.keys, id)
	}
	return nil
}
