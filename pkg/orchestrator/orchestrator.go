package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/benthamhq/bentham/pkg/costs"
	"github.com/benthamhq/bentham/pkg/events"
	"github.com/benthamhq/bentham/pkg/executor"
	"github.com/benthamhq/bentham/pkg/log"
	"github.com/benthamhq/bentham/pkg/metrics"
	"github.com/benthamhq/bentham/pkg/storage"
	"github.com/benthamhq/bentham/pkg/types"
	"github.com/benthamhq/bentham/pkg/validator"
)

// ValidationError carries the validator's findings for a rejected
// manifest. Nothing is persisted when admission fails.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "manifest validation failed: " + strings.Join(e.Errors, "; ")
}

// Orchestrator coordinates study admission and lifecycle
type Orchestrator struct {
	store     storage.Store
	validator *validator.Validator
	executor  *executor.Executor
	broker    *events.Broker
	pricing   costs.Table
	logger    zerolog.Logger
}

// New creates an orchestrator. broker may be nil.
func New(store storage.Store, v *validator.Validator, exec *executor.Executor, broker *events.Broker, pricing costs.Table) *Orchestrator {
	return &Orchestrator{
		store:     store,
		validator: v,
		executor:  exec,
		broker:    broker,
		pricing:   pricing,
		logger:    log.WithComponent("orchestrator"),
	}
}

// CreateResult is the admission receipt for a new study
type CreateResult struct {
	StudyID   string    `json:"studyId"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateStudy validates, persists, and starts a study for a tenant.
// The receipt reports the admission status; execution begins
// asynchronously and progress is observable through GetStudyStatus.
func (o *Orchestrator) CreateStudy(ctx context.Context, tenantID string, manifest *types.Manifest) (*CreateResult, error) {
	if res := o.validator.Validate(manifest); !res.OK {
		return nil, &ValidationError{Errors: res.Errors}
	}

	study := &types.Study{
		ID:        "study_" + uuid.New().String(),
		TenantID:  tenantID,
		Manifest:  *manifest,
		Status:    types.StudyStatusValidating,
		Cost:      costs.Estimate(o.pricing, manifest),
		CreatedAt: time.Now(),
	}

	jobs := EmitMatrix(study)
	study.TotalCells = len(jobs)

	if err := o.store.CreateStudy(study); err != nil {
		return nil, fmt.Errorf("failed to persist study: %w", err)
	}
	if err := o.store.CreateJobs(jobs); err != nil {
		return nil, fmt.Errorf("failed to emit job matrix: %w", err)
	}

	receipt := &CreateResult{
		StudyID:   study.ID,
		Status:    string(types.StudyStatusValidating),
		CreatedAt: study.CreatedAt,
	}

	if _, err := o.store.TransitionStudy(study.ID, types.StudyStatusValidating, types.StudyStatusQueued); err != nil {
		return nil, fmt.Errorf("failed to queue study: %w", err)
	}
	o.publish(events.EventStudyCreated, study, "study admitted with "+fmt.Sprint(study.TotalCells)+" cells")
	metrics.StudiesAdmitted.Inc()

	o.start(study)
	return receipt, nil
}

// start moves a queued study into execution and hands it to the
// executor pool
func (o *Orchestrator) start(study *types.Study) {
	updated, err := o.store.TransitionStudy(study.ID, types.StudyStatusQueued, types.StudyStatusExecuting)
	if err != nil {
		o.logger.Error().Str("study_id", study.ID).Err(err).Msg("Failed to start study")
		return
	}
	o.publish(events.EventStudyStarted, updated, "execution started")
	o.executor.Launch(updated)
}

// Progress summarizes a study's cell counts
type Progress struct {
	Total                int `json:"total"`
	Completed            int `json:"completed"`
	Failed               int `json:"failed"`
	Pending              int `json:"pending"`
	CompletionPercentage int `json:"completionPercentage"`
}

// StatusView is the tenant-facing study status
type StatusView struct {
	StudyID      string                     `json:"studyId"`
	Status       string                     `json:"status"`
	FailureCause string                     `json:"failureCause,omitempty"`
	Progress     Progress                   `json:"progress"`
	Surfaces     []executor.SurfaceCoverage `json:"surfaces"`
	CreatedAt    time.Time                  `json:"createdAt"`
	StartedAt    *time.Time                 `json:"startedAt,omitempty"`
	CompletedAt  *time.Time                 `json:"completedAt,omitempty"`
}

// GetStudyStatus assembles the status view for an owned study.
// Unknown and unowned studies are indistinguishable: both return
// storage.ErrNotFound.
func (o *Orchestrator) GetStudyStatus(ctx context.Context, tenantID, studyID string) (*StatusView, error) {
	study, err := o.store.GetTenantStudy(tenantID, studyID)
	if err != nil {
		return nil, err
	}

	jobs, err := o.store.ListJobsByStudy(studyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list study jobs: %w", err)
	}

	view := &StatusView{
		StudyID:      study.ID,
		Status:       study.Status.External(),
		FailureCause: study.FailureCause,
		Progress:     progressOf(study),
		Surfaces:     executor.CoverageBySurface(&study.Manifest, jobs),
		CreatedAt:    study.CreatedAt,
		StartedAt:    optionalTime(study.StartedAt),
		CompletedAt:  optionalTime(study.CompletedAt),
	}
	return view, nil
}

// CellResult is one cell's record in a results view
type CellResult struct {
	JobID      string           `json:"jobId"`
	QueryText  string           `json:"queryText"`
	SurfaceID  string           `json:"surfaceId"`
	LocationID string           `json:"locationId"`
	Attempts   int              `json:"attempts"`
	Result     *types.JobResult `json:"result"`
}

// Summary aggregates a study's outcomes
type Summary struct {
	TotalCells        int   `json:"totalCells"`
	SuccessfulQueries int   `json:"successfulQueries"`
	FailedQueries     int   `json:"failedQueries"`
	AvgResponseMs     int64 `json:"avgResponseMs"`
}

// ResultsView is the tenant-facing per-cell results payload
type ResultsView struct {
	StudyID string       `json:"studyId"`
	Status  string       `json:"status"`
	Cells   []CellResult `json:"cells"`
	Summary Summary      `json:"summary"`
}

// GetStudyResults returns per-cell records in emission order plus an
// outcome summary
func (o *Orchestrator) GetStudyResults(ctx context.Context, tenantID, studyID string) (*ResultsView, error) {
	study, err := o.store.GetTenantStudy(tenantID, studyID)
	if err != nil {
		return nil, err
	}

	jobs, err := o.store.ListJobsByStudy(studyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list study jobs: %w", err)
	}

	view := &ResultsView{
		StudyID: study.ID,
		Status:  study.Status.External(),
		Cells:   make([]CellResult, 0, len(jobs)),
		Summary: Summary{TotalCells: len(jobs)},
	}

	var totalMs, succeeded int64
	for _, job := range jobs {
		view.Cells = append(view.Cells, CellResult{
			JobID:      job.ID,
			QueryText:  study.Manifest.Queries[job.QueryIndex].Text,
			SurfaceID:  job.SurfaceID,
			LocationID: job.LocationID,
			Attempts:   job.Attempts,
			Result:     job.Result,
		})

		switch job.Status {
		case types.JobStatusSucceeded:
			view.Summary.SuccessfulQueries++
			if job.Result != nil {
				totalMs += job.Result.TotalMs
				succeeded++
			}
		case types.JobStatusFailed:
			view.Summary.FailedQueries++
		}
	}
	if succeeded > 0 {
		view.Summary.AvgResponseMs = totalMs / succeeded
	}
	return view, nil
}

// GetStudyCosts returns the study's estimate band and accrued spend
func (o *Orchestrator) GetStudyCosts(ctx context.Context, tenantID, studyID string) (*types.CostReport, error) {
	study, err := o.store.GetTenantStudy(tenantID, studyID)
	if err != nil {
		return nil, err
	}
	report := study.Cost
	return &report, nil
}

// ListStudies returns the tenant's studies, newest first
func (o *Orchestrator) ListStudies(ctx context.Context, tenantID string) ([]*StatusView, error) {
	studies, err := o.store.ListStudiesByTenant(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list studies: %w", err)
	}

	views := lo.Map(studies, func(s *types.Study, _ int) *StatusView {
		return &StatusView{
			StudyID:      s.ID,
			Status:       s.Status.External(),
			FailureCause: s.FailureCause,
			Progress:     progressOf(s),
			CreatedAt:    s.CreatedAt,
			StartedAt:    optionalTime(s.StartedAt),
			CompletedAt:  optionalTime(s.CompletedAt),
		}
	})
	return views, nil
}

// PauseStudy stops an executing study from claiming new cells.
// Returns storage.ErrNotFound for unknown or unowned studies and
// storage.ErrConflict for illegal transitions.
func (o *Orchestrator) PauseStudy(ctx context.Context, tenantID, studyID string) error {
	study, err := o.store.GetTenantStudy(tenantID, studyID)
	if err != nil {
		return err
	}

	if _, err := o.store.TransitionStudy(study.ID, types.StudyStatusExecuting, types.StudyStatusPaused); err != nil {
		return err
	}
	o.executor.Pause(study.ID)
	o.publish(events.EventStudyPaused, study, "study paused")
	return nil
}

// ResumeStudy lets a paused study claim cells again
func (o *Orchestrator) ResumeStudy(ctx context.Context, tenantID, studyID string) error {
	study, err := o.store.GetTenantStudy(tenantID, studyID)
	if err != nil {
		return err
	}

	updated, err := o.store.TransitionStudy(study.ID, types.StudyStatusPaused, types.StudyStatusExecuting)
	if err != nil {
		return err
	}
	o.executor.Launch(updated)
	o.publish(events.EventStudyResumed, updated, "study resumed")
	return nil
}

// CancelStudy aborts a study from any non-terminal state. In-flight
// cells are asked to abort; remaining pending cells fail with
// CANCELLED.
func (o *Orchestrator) CancelStudy(ctx context.Context, tenantID, studyID string) error {
	study, err := o.store.GetTenantStudy(tenantID, studyID)
	if err != nil {
		return err
	}

	if _, err := o.store.TerminateStudy(study.ID, types.StudyStatusCancelled, string(types.ErrCodeCancelled)); err != nil {
		return err
	}

	o.executor.Cancel(study.ID)
	if n, err := o.store.FailPendingJobs(study.ID, types.ErrCodeCancelled); err == nil && n > 0 {
		if _, err := o.store.AddStudyProgress(study.ID, storage.ProgressDelta{Failed: n}); err != nil {
			o.logger.Error().Str("study_id", study.ID).Err(err).Msg("Failed to close out cancelled cells")
		}
	}
	o.publish(events.EventStudyCancelled, study, "study cancelled")
	return nil
}

// IsNotFound reports whether an operation failed because the study is
// unknown or unowned
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}

// IsConflict reports whether an operation failed on an illegal
// lifecycle transition
func IsConflict(err error) bool {
	return errors.Is(err, storage.ErrConflict)
}

func (o *Orchestrator) publish(eventType events.EventType, study *types.Study, msg string) {
	if o.broker == nil {
		return
	}
	o.broker.Publish(&events.Event{
		Type:     eventType,
		TenantID: study.TenantID,
		StudyID:  study.ID,
		Message:  msg,
	})
}

func progressOf(s *types.Study) Progress {
	p := Progress{
		Total:     s.TotalCells,
		Completed: s.CompletedCells,
		Failed:    s.FailedCells,
		Pending:   s.PendingCells(),
	}
	if p.Total > 0 {
		p.CompletionPercentage = int(math.Round(float64(p.Completed+p.Failed) / float64(p.Total) * 100))
	}
	return p
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
