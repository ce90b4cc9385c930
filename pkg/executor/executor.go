package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/benthamhq/bentham/pkg/costs"
	"github.com/benthamhq/bentham/pkg/events"
	"github.com/benthamhq/bentham/pkg/log"
	"github.com/benthamhq/bentham/pkg/metrics"
	"github.com/benthamhq/bentham/pkg/recovery"
	"github.com/benthamhq/bentham/pkg/sessions"
	"github.com/benthamhq/bentham/pkg/storage"
	"github.com/benthamhq/bentham/pkg/surface"
	"github.com/benthamhq/bentham/pkg/types"
)

// Config tunes the per-study worker pool
type Config struct {
	// Workers is the upper bound on parallel workers per study. A
	// manifest's maxConcurrency can lower it, never raise it.
	Workers int
}

// DefaultConfig returns production executor settings
func DefaultConfig() Config {
	return Config{Workers: 4}
}

// Executor runs admitted studies. One dispatch goroutine exists per
// launched study; it survives pause and resume and exits when the
// study's cells are drained or the study is cancelled.
type Executor struct {
	store    storage.Store
	registry *surface.Registry
	recovery *recovery.Manager
	sessions *sessions.Registry
	broker   *events.Broker
	pricing  costs.Table
	cfg      Config

	runs   map[string]*studyRun
	mu     sync.Mutex
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// New creates an executor. broker may be nil.
func New(store storage.Store, registry *surface.Registry, rec *recovery.Manager, sess *sessions.Registry, broker *events.Broker, cfg Config) *Executor {
	if cfg.Workers < 1 {
		cfg.Workers = DefaultConfig().Workers
	}
	return &Executor{
		store:    store,
		registry: registry,
		recovery: rec,
		sessions: sess,
		broker:   broker,
		pricing:  registry.Pricing(),
		cfg:      cfg,
		runs:     make(map[string]*studyRun),
		logger:   log.WithComponent("executor"),
	}
}

// studyRun is the control handle for one study's dispatch loop
type studyRun struct {
	cancel   context.CancelFunc
	mu       sync.Mutex
	resumeCh chan struct{} // Non-nil while paused
	done     chan struct{}
}

func (r *studyRun) pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resumeCh == nil {
		r.resumeCh = make(chan struct{})
	}
}

func (r *studyRun) resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resumeCh != nil {
		close(r.resumeCh)
		r.resumeCh = nil
	}
}

func (r *studyRun) gate() chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resumeCh
}

// waitClaimable blocks while the study is paused. Returns the context
// error when the run is cancelled.
func (r *studyRun) waitClaimable(ctx context.Context) error {
	for {
		ch := r.gate()
		if ch == nil {
			return ctx.Err()
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Launch starts draining the study's pending jobs. Launching an
// already running study resumes claiming instead; claims are CAS so a
// duplicate launch never double-executes a cell.
func (e *Executor) Launch(study *types.Study) {
	e.mu.Lock()
	if run, ok := e.runs[study.ID]; ok {
		e.mu.Unlock()
		run.resume()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &studyRun{cancel: cancel, done: make(chan struct{})}
	e.runs[study.ID] = run
	e.wg.Add(1)
	e.mu.Unlock()

	go e.drain(ctx, run, study)
}

// Pause stops the study's workers from claiming new jobs. In-flight
// jobs finish normally.
func (e *Executor) Pause(studyID string) {
	e.mu.Lock()
	run, ok := e.runs[studyID]
	e.mu.Unlock()
	if ok {
		run.pause()
	}
}

// Cancel aborts the study's run: in-flight adapter calls and recovery
// sleeps observe the cancellation immediately.
func (e *Executor) Cancel(studyID string) {
	e.mu.Lock()
	run, ok := e.runs[studyID]
	e.mu.Unlock()
	if ok {
		run.resume() // Unblock a paused dispatch loop so it can exit
		run.cancel()
	}
}

// Wait blocks until the study's dispatch loop exits. Used by tests and
// the monitor; studies that were never launched return immediately.
func (e *Executor) Wait(studyID string) {
	e.mu.Lock()
	run, ok := e.runs[studyID]
	e.mu.Unlock()
	if ok {
		<-run.done
	}
}

// Stop cancels every run and waits for all dispatch loops to exit
func (e *Executor) Stop() {
	e.mu.Lock()
	for _, run := range e.runs {
		run.resume()
		run.cancel()
	}
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Executor) remove(studyID string, run *studyRun) {
	e.mu.Lock()
	if e.runs[studyID] == run {
		delete(e.runs, studyID)
	}
	e.mu.Unlock()
	run.cancel()
	close(run.done)
	e.wg.Done()
}

// drain feeds the study's pending jobs through the bounded pool
func (e *Executor) drain(ctx context.Context, run *studyRun, study *types.Study) {
	defer e.remove(study.ID, run)

	logger := e.logger.With().Str("study_id", study.ID).Logger()

	pending, err := e.store.ListPendingJobs(study.ID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list pending jobs")
		return
	}

	workers := e.cfg.Workers
	if mc := study.Manifest.MaxConcurrency; mc > 0 && mc < workers {
		workers = mc
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, job := range pending {
		job := job
		if err := run.waitClaimable(gctx); err != nil {
			break
		}
		g.Go(func() error {
			if err := run.waitClaimable(gctx); err != nil {
				return nil
			}
			e.executeJob(gctx, study, job)
			return nil
		})
	}

	g.Wait()
	e.evaluate(study.ID)
	logger.Debug().Msg("Dispatch loop drained")
}

// executeJob runs one cell end to end: claim, execute through the
// recovery manager, persist the outcome, fold progress, evaluate.
func (e *Executor) executeJob(ctx context.Context, study *types.Study, job *types.Job) {
	claimed, err := e.store.ClaimJob(job.ID, types.JobStatusPending, types.JobStatusRunning)
	if err != nil || !claimed {
		return
	}

	logger := e.logger.With().Str("study_id", study.ID).Str("job_id", job.ID).Logger()
	e.publish(events.EventJobStarted, study, job, "cell execution started")

	manifest := &study.Manifest
	timer := metrics.NewTimer()

	adapter, err := e.registry.Adapter(job.SurfaceID)
	if err != nil {
		// No retries are consumed when the surface itself is missing
		logger.Warn().Err(err).Msg("Surface unavailable")
		e.finish(study, job, &recovery.Result{LastCode: types.ErrCodeSurfaceUnavailable}, types.SessionContext{})
		return
	}

	session := e.sessions.Acquire(manifest.SessionIsolation, study.TenantID, job.SurfaceID)
	req := e.buildRequest(manifest, job, session)

	jobCtx, cancel := e.jobContext(ctx, manifest, job.SurfaceID)
	defer cancel()

	res := e.recovery.Execute(jobCtx, recovery.Invocation{
		SurfaceID:  job.SurfaceID,
		Request:    req,
		Primary:    adapter,
		Alternates: e.alternates(manifest, job.SurfaceID),
		MaxRetries: maxAttempts(manifest),
	})

	if res.LastCode.BreaksSession() {
		e.sessions.Invalidate(study.TenantID, job.SurfaceID)
	}

	e.finish(study, job, res, session)
	timer.ObserveDuration(metrics.JobDuration)
}

// jobContext bounds a cell by the study deadline and the surface's
// per-call ceiling, whichever ends first
func (e *Executor) jobContext(ctx context.Context, m *types.Manifest, surfaceID string) (context.Context, context.CancelFunc) {
	jobCtx, cancel := context.WithDeadline(ctx, m.Deadline)
	if ceiling := e.registry.Ceiling(surfaceID); ceiling > 0 {
		inner, innerCancel := context.WithTimeout(jobCtx, ceiling)
		return inner, func() { innerCancel(); cancel() }
	}
	return jobCtx, cancel
}

func (e *Executor) buildRequest(m *types.Manifest, job *types.Job, session types.SessionContext) *surface.Request {
	req := &surface.Request{
		Query:     m.Queries[job.QueryIndex].Text,
		Evidence:  m.Evidence,
		SessionID: session.SessionID,
		UserAgent: session.UserAgent,
	}

	for _, ref := range m.Surfaces {
		if ref.SurfaceID == job.SurfaceID {
			req.Options = ref.Options
			break
		}
	}
	for i := range m.Locations {
		if m.Locations[i].ID == job.LocationID {
			req.Location = &m.Locations[i]
			break
		}
	}
	return req
}

// alternates derives the failover targets for a cell: the manifest's
// optional surfaces, in declaration order, excluding the cell's own.
// Required surfaces are never borrowed as substitutes since their own
// coverage gates completion.
func (e *Executor) alternates(m *types.Manifest, surfaceID string) []recovery.Alternate {
	var alts []recovery.Alternate
	for _, ref := range m.Surfaces {
		if ref.SurfaceID == surfaceID || ref.Required {
			continue
		}
		adapter, err := e.registry.Adapter(ref.SurfaceID)
		if err != nil {
			continue
		}
		alts = append(alts, recovery.Alternate{SurfaceID: ref.SurfaceID, Adapter: adapter})
	}
	return alts
}

// maxAttempts maps the manifest's retry budget to attempts against the
// primary adapter. Zero retries still allows the single first attempt.
func maxAttempts(m *types.Manifest) int {
	if m.Completion.MaxRetriesPerCell < 1 {
		return 1
	}
	return m.Completion.MaxRetriesPerCell
}

// finish writes the immutable outcome, folds study progress, publishes
// the job event, and evaluates completion
func (e *Executor) finish(study *types.Study, job *types.Job, res *recovery.Result, session types.SessionContext) {
	result := buildResult(&study.Manifest, e.pricing, job.SurfaceID, res, session)

	job.Attempts += res.Attempts
	job.Result = result
	if res.Success {
		job.Status = types.JobStatusSucceeded
		job.LastError = ""
	} else {
		job.Status = types.JobStatusFailed
		job.LastError = string(res.LastCode)
	}

	if err := e.store.FinishJob(job); err != nil {
		// A lost race against cancellation sweep; the winner already
		// recorded a terminal outcome for this cell
		if !errors.Is(err, storage.ErrConflict) {
			e.logger.Error().Str("job_id", job.ID).Err(err).Msg("Failed to persist job outcome")
		}
		return
	}

	delta := storage.ProgressDelta{SurfaceID: job.SurfaceID, Cost: result.Usage.CostEstimate}
	outcome := "failed"
	if res.Success {
		delta.Completed = 1
		outcome = "succeeded"
	} else {
		delta.Failed = 1
	}
	if _, err := e.store.AddStudyProgress(study.ID, delta); err != nil {
		e.logger.Error().Str("study_id", study.ID).Err(err).Msg("Failed to fold study progress")
	}

	metrics.JobsExecuted.WithLabelValues(job.SurfaceID, outcome).Inc()
	if res.Success {
		e.publish(events.EventJobSucceeded, study, job, "cell succeeded via "+res.Strategy)
	} else {
		e.publish(events.EventJobFailed, study, job, "cell failed: "+string(res.LastCode))
	}

	e.evaluate(study.ID)
}

// buildResult assembles the immutable JobResult for one executed cell
func buildResult(m *types.Manifest, pricing costs.Table, surfaceID string, res *recovery.Result, session types.SessionContext) *types.JobResult {
	result := &types.JobResult{
		Success:    res.Success,
		TotalMs:    res.ElapsedMs,
		Session:    session,
		Strategy:   res.Strategy,
		CapturedAt: time.Now(),
	}

	if !res.Success {
		result.Error = string(res.LastCode)
		return result
	}

	resp := res.Response
	result.Response = types.ResponseContent{Text: resp.Text, Citations: resp.Citations}
	result.TTFBMs = resp.TTFBMs
	result.Usage = types.TokenUsage{
		InputTokens:  resp.TokensIn,
		OutputTokens: resp.TokensOut,
		TotalTokens:  resp.TokensIn + resp.TokensOut,
	}
	result.Usage.CostEstimate = costs.CallCost(pricing, surfaceID, result.Usage)
	result.Validation = evaluateGates(m.QualityGates, resp.Text)
	return result
}

// evaluateGates applies the manifest's quality gates to a response.
// Gate failures are recorded, never retried: response quality judgment
// beyond these checks is the tenant's business.
func evaluateGates(gates types.QualityGates, text string) types.ValidationSummary {
	trimmed := strings.TrimSpace(text)
	summary := types.ValidationSummary{
		IsActualContent: len(trimmed) > 0,
		ResponseLength:  len(text),
	}

	summary.GatesPassed = len(text) >= gates.MinResponseLength
	if gates.RequireActualContent && !summary.IsActualContent {
		summary.GatesPassed = false
	}
	return summary
}

// evaluate applies the completion criteria and the deadline to an
// executing study. Concurrent evaluations race benignly: status moves
// are CAS and only one caller wins the transition.
func (e *Executor) evaluate(studyID string) {
	study, err := e.store.GetStudy(studyID)
	if err != nil || study.Status != types.StudyStatusExecuting {
		return
	}

	if time.Now().After(study.Manifest.Deadline) {
		e.expire(study)
		return
	}

	jobs, err := e.store.ListJobsByStudy(studyID)
	if err != nil {
		return
	}

	outcome := EvaluateCompletion(&study.Manifest, jobs)
	if !outcome.Done {
		return
	}

	if outcome.Status == types.StudyStatusCompleted {
		if _, err := e.store.TransitionStudy(studyID, types.StudyStatusExecuting, types.StudyStatusCompleted); err == nil {
			e.publish(events.EventStudyCompleted, study, nil, "completion criteria satisfied")
		}
		return
	}

	if _, err := e.store.TerminateStudy(studyID, types.StudyStatusFailed, outcome.Cause); err == nil {
		e.publish(events.EventStudyFailed, study, nil, outcome.Cause)
	}
}

// expire fails a study whose deadline passed, closing out whatever
// cells are still pending
func (e *Executor) expire(study *types.Study) {
	if _, err := e.store.TerminateStudy(study.ID, types.StudyStatusFailed, string(types.ErrCodeDeadlineExceeded)); err != nil {
		return
	}

	e.Cancel(study.ID)
	if n, err := e.store.FailPendingJobs(study.ID, types.ErrCodeDeadlineExceeded); err == nil && n > 0 {
		e.store.AddStudyProgress(study.ID, storage.ProgressDelta{Failed: n})
	}
	e.publish(events.EventStudyFailed, study, nil, string(types.ErrCodeDeadlineExceeded))
}

func (e *Executor) publish(eventType events.EventType, study *types.Study, job *types.Job, msg string) {
	if e.broker == nil {
		return
	}
	event := &events.Event{
		Type:     eventType,
		TenantID: study.TenantID,
		StudyID:  study.ID,
		Message:  msg,
	}
	if job != nil {
		event.JobID = job.ID
		event.SurfaceID = job.SurfaceID
	}
	e.broker.Publish(event)
}
