package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/benthamhq/bentham/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketStudies = []byte("studies")
	bucketJobs    = []byte("jobs")
	bucketAPIKeys = []byte("apikeys")
)

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "bentham.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketStudies,
			bucketJobs,
			bucketAPIKeys,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// getStudy reads and decodes a study inside a transaction
func getStudy(tx *bolt.Tx, id string) (*types.Study, error) {
	data := tx.Bucket(bucketStudies).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("study %s: %w", id, ErrNotFound)
	}
	var study types.Study
	if err := json.Unmarshal(data, &study); err != nil {
		return nil, fmt.Errorf("failed to decode study %s: %w", id, err)
	}
	return &study, nil
}

// putStudy encodes and writes a study inside a transaction
func putStudy(tx *bolt.Tx, study *types.Study) error {
	data, err := json.Marshal(study)
	if err != nil {
		return fmt.Errorf("failed to encode study %s: %w", study.ID, err)
	}
	return tx.Bucket(bucketStudies).Put([]byte(study.ID), data)
}

// getJob reads and decodes a job inside a transaction
func getJob(tx *bolt.Tx, id string) (*types.Job, error) {
	data := tx.Bucket(bucketJobs).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	var job types.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", id, err)
	}
	return &job, nil
}

// putJob encodes and writes a job inside a transaction
func putJob(tx *bolt.Tx, job *types.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}
	return tx.Bucket(bucketJobs).Put([]byte(job.ID), data)
}

// Study operations

func (s *BoltStore) CreateStudy(study *types.Study) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketStudies).Get([]byte(study.ID)) != nil {
			return fmt.Errorf("study %s already exists: %w", study.ID, ErrConflict)
		}
		return putStudy(tx, study)
	})
}

func (s *BoltStore) GetStudy(id string) (*types.Study, error) {
	var study *types.Study
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		study, err = getStudy(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return study, nil
}

func (s *BoltStore) GetTenantStudy(tenantID, id string) (*types.Study, error) {
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

func (s *BoltStore) ListStudiesByTenant(tenantID string) ([]*types.Study, error) {
	var studies []*types.Study
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStudies).ForEach(func(k, v []byte) error {
			var study types.Study
			if err := json.Unmarshal(v, &study); err != nil {
				return err
			}
			if study.TenantID == tenantID {
				studies = append(studies, &study)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(studies, func(i, j int) bool {
		return studies[i].CreatedAt.Before(studies[j].CreatedAt)
	})
	return studies, nil
}

func (s *BoltStore) ListStudiesByStatus(statuses ...types.StudyStatus) ([]*types.Study, error) {
	want := make(map[types.StudyStatus]bool, len(statuses))
	for _, status := range statuses {
		want[status] = true
	}

	var studies []*types.Study
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStudies).ForEach(func(k, v []byte) error {
			var study types.Study
			if err := json.Unmarshal(v, &study); err != nil {
				return err
			}
			if want[study.Status] {
				studies = append(studies, &study)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return studies, nil
}

func (s *BoltStore) TransitionStudy(id string, from, to types.StudyStatus) (*types.Study, error) {
	var study *types.Study
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		study, err = getStudy(tx, id)
		if err != nil {
			return err
		}
		if study.Status != from {
			return fmt.Errorf("study %s is %s, not %s: %w", id, study.Status, from, ErrConflict)
		}
		if !from.CanTransition(to) {
			return fmt.Errorf("study %s cannot move %s -> %s: %w", id, from, to, ErrConflict)
		}
		stampStudy(study, to, "")
		return putStudy(tx, study)
	})
	if err != nil {
		return nil, err
	}
	return study, nil
}

func (s *BoltStore) TerminateStudy(id string, to types.StudyStatus, cause string) (*types.Study, error) {
	if !to.IsTerminal() {
		return nil, fmt.Errorf("status %s is not terminal: %w", to, ErrConflict)
	}
	var study *types.Study
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		study, err = getStudy(tx, id)
		if err != nil {
			return err
		}
		if study.Status.IsTerminal() {
			return fmt.Errorf("study %s already %s: %w", id, study.Status, ErrConflict)
		}
		if !study.Status.CanTransition(to) {
			return fmt.Errorf("study %s cannot move %s -> %s: %w", id, study.Status, to, ErrConflict)
		}
		stampStudy(study, to, cause)
		return putStudy(tx, study)
	})
	if err != nil {
		return nil, err
	}
	return study, nil
}

func (s *BoltStore) AddStudyProgress(id string, delta ProgressDelta) (*types.Study, error) {
	var study *types.Study
	err := s.db.Update(func(tx *bolt.Tx) error {
		var err error
		study, err = getStudy(tx, id)
		if err != nil {
			return err
		}
		applyProgress(study, delta)
		return putStudy(tx, study)
	})
	if err != nil {
		return nil, err
	}
	return study, nil
}

// stampStudy applies a status move and its lifecycle timestamps
func stampStudy(study *types.Study, to types.StudyStatus, cause string) {
	now := time.Now()
	study.Status = to
	if to == types.StudyStatusExecuting && study.StartedAt.IsZero() {
		study.StartedAt = now
	}
	if to.IsTerminal() {
		study.CompletedAt = now
	}
	if cause != "" {
		study.FailureCause = cause
	}
}

// applyProgress folds additive counters and cost into a study
func applyProgress(study *types.Study, delta ProgressDelta) {
	study.CompletedCells += delta.Completed
	study.FailedCells += delta.Failed
	if delta.Cost > 0 {
		study.Cost.Total += delta.Cost
		if delta.SurfaceID != "" {
			if study.Cost.Breakdown == nil {
				study.Cost.Breakdown = make(map[string]float64)
			}
			study.Cost.Breakdown[delta.SurfaceID] += delta.Cost
		}
	}
}

// Job operations

func (s *BoltStore) CreateJobs(jobs []*types.Job) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, job := range jobs {
			// Deterministic IDs make re-emission an upsert, not a duplicate
			if err := putJob(tx, job); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) GetJob(id string) (*types.Job, error) {
	var job *types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		job, err = getJob(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *BoltStore) ListJobsByStudy(studyID string) ([]*types.Job, error) {
	jobs, err := s.listStudyJobs(studyID, nil)
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *BoltStore) ListPendingJobs(studyID string) ([]*types.Job, error) {
	pending := types.JobStatusPending
	return s.listStudyJobs(studyID, &pending)
}

func (s *BoltStore) listStudyJobs(studyID string, status *types.JobStatus) ([]*types.Job, error) {
	var jobs []*types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).ForEach(func(k, v []byte) error {
			var job types.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			if job.StudyID != studyID {
				return nil
			}
			if status != nil && job.Status != *status {
				return nil
			}
			jobs = append(jobs, &job)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Seq < jobs[j].Seq })
	return jobs, nil
}

func (s *BoltStore) ClaimJob(id string, from, to types.JobStatus) (bool, error) {
	claimed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		job, err := getJob(tx, id)
		if err != nil {
			return err
		}
		if job.Status != from {
			return nil
		}
		job.Status = to
		job.UpdatedAt = time.Now()
		if err := putJob(tx, job); err != nil {
			return err
		}
		claimed = true
		return nil
	})
	return claimed, err
}

func (s *BoltStore) FinishJob(job *types.Job) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		current, err := getJob(tx, job.ID)
		if err != nil {
			return err
		}
		// A succeeded cell never re-runs and its result never changes
		if current.Status == types.JobStatusSucceeded {
			return fmt.Errorf("job %s already succeeded: %w", job.ID, ErrConflict)
		}
		job.UpdatedAt = time.Now()
		return putJob(tx, job)
	})
}

func (s *BoltStore) FailPendingJobs(studyID string, code types.ErrorCode) (int, error) {
	count := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		var pending []*types.Job
		err := b.ForEach(func(k, v []byte) error {
			var job types.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			if job.StudyID == studyID && job.Status == types.JobStatusPending {
				pending = append(pending, &job)
			}
			return nil
		})
		if err != nil {
			return err
		}

		now := time.Now()
		for _, job := range pending {
			job.Status = types.JobStatusFailed
			job.LastError = string(code)
			job.UpdatedAt = now
			if err := putJob(tx, job); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// API key operations

func (s *BoltStore) CreateAPIKey(key *types.APIKey) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAPIKeys)

		// Key hashes are unique across all tenants
		err := b.ForEach(func(k, v []byte) error {
			var existing types.APIKey
			if err := json.Unmarshal(v, &existing); err != nil {
				return err
			}
			if existing.KeyHash == key.KeyHash {
				return fmt.Errorf("api key hash already registered: %w", ErrConflict)
			}
			return nil
		})
		if err != nil {
			return err
		}

		data, err := json.Marshal(key)
		if err != nil {
			return fmt.Errorf("failed to encode api key %s: %w", key.ID, err)
		}
		return b.Put([]byte(key.ID), data)
	})
}

func (s *BoltStore) GetAPIKeyByHash(hash string) (*types.APIKey, error) {
	var found *types.APIKey
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAPIKeys).ForEach(func(k, v []byte) error {
			var key types.APIKey
			if err := json.Unmarshal(v, &key); err != nil {
				return err
			}
			if key.KeyHash == hash {
				found = &key
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("api key: %w", ErrNotFound)
	}
	return found, nil
}

func (s *BoltStore) ListAPIKeys() ([]*types.APIKey, error) {
	var keys []*types.APIKey
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAPIKeys).ForEach(func(k, v []byte) error {
			var key types.APIKey
			if err := json.Unmarshal(v, &key); err != nil {
				return err
			}
			keys = append(keys, &key)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *BoltStore) ListAPIKeysByTenant(tenantID string) ([]*types.APIKey, error) {
	keys, err := s.ListAPIKeys()
	if err != nil {
		return nil, err
	}

	var filtered []*types.APIKey
	for _, key := range keys {
		if key.TenantID == tenantID {
			filtered = append(filtered, key)
		}
	}
	return filtered, nil
}

func (s *BoltStore) DeleteAPIKey(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAPIKeys).Delete([]byte(id))
	})
}
