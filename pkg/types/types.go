package types

import (
	"fmt"
	"time"
)

// Tenant represents an isolated customer of the service
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Query is a single prompt to execute across the study's surfaces
type Query struct {
	Text string   `json:"text" validate:"required,min=1"`
	Tags []string `json:"tags,omitempty"`
}

// SurfaceRef declares a target AI surface in a manifest
type SurfaceRef struct {
	SurfaceID string                 `json:"surfaceId" validate:"required,min=1"`
	Required  bool                   `json:"required"`
	Options   map[string]interface{} `json:"options,omitempty"` // Adapter-specific, carried opaque
}

// Location describes the geographic vantage a query is issued from
type Location struct {
	ID        string `json:"id" validate:"required,min=1"`
	ProxyType string `json:"proxyType,omitempty" validate:"omitempty,oneof=residential datacenter"`
	Sticky    bool   `json:"sticky,omitempty"` // Reuse the same egress for the session
}

// CompletionCriteria defines when a study counts as done
type CompletionCriteria struct {
	RequiredSurfaces  []string `json:"requiredSurfaces,omitempty"`
	CoverageThreshold float64  `json:"coverageThreshold" validate:"gte=0,lte=1"`
	MaxRetriesPerCell int      `json:"maxRetriesPerCell" validate:"gte=0"`
}

// QualityGates defines per-response acceptance rules
type QualityGates struct {
	MinResponseLength    int  `json:"minResponseLength" validate:"gte=0"`
	RequireActualContent bool `json:"requireActualContent"`
}

// EvidenceLevel controls how much provenance is captured per response
type EvidenceLevel string

const (
	EvidenceMetadata    EvidenceLevel = "metadata"
	EvidenceScreenshots EvidenceLevel = "screenshots"
	EvidenceFull        EvidenceLevel = "full"
)

// SessionIsolation controls how sessions are shared between queries
type SessionIsolation string

const (
	SessionShared    SessionIsolation = "shared"
	SessionPerTenant SessionIsolation = "per-tenant"
	SessionPerQuery  SessionIsolation = "per-query"
)

// Manifest is the declarative study submission
type Manifest struct {
	Name             string             `json:"name" validate:"required,min=1,max=200"`
	Queries          []Query            `json:"queries" validate:"required,min=1,dive"`
	Surfaces         []SurfaceRef       `json:"surfaces" validate:"required,min=1,dive"`
	Locations        []Location         `json:"locations" validate:"required,min=1,dive"`
	Completion       CompletionCriteria `json:"completion"`
	QualityGates     QualityGates       `json:"qualityGates"`
	Evidence         EvidenceLevel      `json:"evidence,omitempty" validate:"omitempty,oneof=metadata screenshots full"`
	LegalHold        bool               `json:"legalHold,omitempty"`
	Deadline         time.Time          `json:"deadline" validate:"required"`
	SessionIsolation SessionIsolation   `json:"sessionIsolation,omitempty" validate:"omitempty,oneof=shared per-tenant per-query"`
	MaxConcurrency   int                `json:"maxConcurrency,omitempty" validate:"gte=0"`
}

// StudyStatus represents the lifecycle state of a study
type StudyStatus string

const (
	StudyStatusValidating StudyStatus = "validating"
	StudyStatusQueued     StudyStatus = "queued"
	StudyStatusExecuting  StudyStatus = "executing"
	StudyStatusPaused     StudyStatus = "paused"
	StudyStatusCompleted  StudyStatus = "completed"
	StudyStatusFailed     StudyStatus = "failed"
	StudyStatusCancelled  StudyStatus = "cancelled"
)

// ValidStudyTransitions is the study lifecycle DAG. Terminal states have
// no outgoing edges and every transition is checked against this map.
var ValidStudyTransitions = map[StudyStatus][]StudyStatus{
	StudyStatusValidating: {StudyStatusQueued, StudyStatusFailed, StudyStatusCancelled},
	StudyStatusQueued:     {StudyStatusExecuting, StudyStatusFailed, StudyStatusCancelled},
	StudyStatusExecuting:  {StudyStatusPaused, StudyStatusCompleted, StudyStatusFailed, StudyStatusCancelled},
	StudyStatusPaused:     {StudyStatusExecuting, StudyStatusFailed, StudyStatusCancelled},
	StudyStatusCompleted:  {},
	StudyStatusFailed:     {},
	StudyStatusCancelled:  {},
}

// CanTransition reports whether moving from s to target is a legal edge
func (s StudyStatus) CanTransition(target StudyStatus) bool {
	for _, next := range ValidStudyTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status has no outgoing transitions
func (s StudyStatus) IsTerminal() bool {
	return len(ValidStudyTransitions[s]) == 0
}

// IsValid reports whether the status is a known lifecycle state
func (s StudyStatus) IsValid() bool {
	_, ok := ValidStudyTransitions[s]
	return ok
}

// External returns the status name surfaced over the API. The executor
// state "executing" is reported as "running" to clients.
func (s StudyStatus) External() string {
	if s == StudyStatusExecuting {
		return "running"
	}
	return string(s)
}

// CostReport tracks estimated and accrued spend for a study
type CostReport struct {
	EstimatedMin float64            `json:"estimatedMin"`
	EstimatedMax float64            `json:"estimatedMax"`
	Total        float64            `json:"total"`
	Currency     string             `json:"currency"`
	Breakdown    map[string]float64 `json:"breakdown,omitempty"` // Per surface
}

// Study is an accepted manifest plus its execution state
type Study struct {
	ID             string      `json:"id"`
	TenantID       string      `json:"tenantId"`
	Manifest       Manifest    `json:"manifest"`
	Status         StudyStatus `json:"status"`
	TotalCells     int         `json:"totalCells"`
	CompletedCells int         `json:"completedCells"`
	FailedCells    int         `json:"failedCells"`
	FailureCause   string      `json:"failureCause,omitempty"`
	Cost           CostReport  `json:"cost"`
	CreatedAt      time.Time   `json:"createdAt"`
	StartedAt      time.Time   `json:"startedAt,omitempty"`
	CompletedAt    time.Time   `json:"completedAt,omitempty"`
}

// PendingCells returns the number of cells not yet terminal
func (s *Study) PendingCells() int {
	return s.TotalCells - s.CompletedCells - s.FailedCells
}

// JobStatus represents the state of a single matrix cell
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether the job has finished for good
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// Job is one cell of the study matrix: (query, surface, location).
// Its identity is the idempotency key for execution.
type Job struct {
	ID         string     `json:"id"`
	StudyID    string     `json:"studyId"`
	Seq        int        `json:"seq"` // Position in matrix emission order
	QueryIndex int        `json:"queryIndex"`
	SurfaceID  string     `json:"surfaceId"`
	LocationID string     `json:"locationId"`
	Status     JobStatus  `json:"status"`
	Attempts   int        `json:"attempts"`
	LastError  string     `json:"lastError,omitempty"` // Error code classification
	Result     *JobResult `json:"result,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// JobID derives the deterministic cell identifier. Re-emitting the same
// matrix always yields the same IDs, so duplicate emission is harmless.
func JobID(studyID string, queryIndex int, surfaceID, locationID string) string {
	return fmt.Sprintf("%s.q%d.%s.%s", studyID, queryIndex, surfaceID, locationID)
}

// Citation is one source reference extracted from a response
type Citation struct {
	Title    string `json:"title,omitempty"`
	URL      string `json:"url"`
	Position int    `json:"position,omitempty"`
}

// ResponseContent is the captured answer text with provenance
type ResponseContent struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations,omitempty"`
	FollowUps []string   `json:"followUps,omitempty"`
}

// TokenUsage records token counts and the derived spend for one call
type TokenUsage struct {
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	TotalTokens  int     `json:"totalTokens"`
	CostEstimate float64 `json:"costEstimate"`
}

// ValidationSummary records quality gate outcomes for one response
type ValidationSummary struct {
	GatesPassed     bool `json:"gatesPassed"`
	IsActualContent bool `json:"isActualContent"`
	ResponseLength  int  `json:"responseLength"`
}

// SessionContext identifies the session a response was captured under
type SessionContext struct {
	SessionID string `json:"sessionId"`
	UserAgent string `json:"userAgent,omitempty"`
}

// JobResult is the immutable outcome of one executed cell
type JobResult struct {
	Success    bool              `json:"success"`
	Response   ResponseContent   `json:"response"`
	TotalMs    int64             `json:"totalMs"`
	TTFBMs     int64             `json:"ttfbMs,omitempty"`
	Usage      TokenUsage        `json:"usage"`
	Validation ValidationSummary `json:"validation"`
	Session    SessionContext    `json:"session"`
	Strategy   string            `json:"strategy,omitempty"` // Recovery path that produced it
	Error      string            `json:"error,omitempty"`    // Error code when Success is false
	CapturedAt time.Time         `json:"capturedAt"`
}

// APIKey is a stored credential. Only the SHA-256 hash of the secret is
// kept; the raw secret is shown once at creation and never persisted.
type APIKey struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenantId"`
	KeyHash     string     `json:"keyHash"`
	Name        string     `json:"name"`
	Permissions []string   `json:"permissions,omitempty"`
	RateLimit   int        `json:"rateLimit"` // Requests per window
	WindowMs    int64      `json:"windowMs"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the key is past its expiry, if it has one
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// Allows reports whether the key grants the named permission. Keys with
// an empty permission set grant everything.
func (k *APIKey) Allows(permission string) bool {
	if len(k.Permissions) == 0 {
		return true
	}
	for _, p := range k.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// CircuitState represents the breaker state for a surface
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half-open"
)

// SurfaceHealth is the recovery manager's view of one surface
type SurfaceHealth struct {
	SurfaceID    string       `json:"surfaceId"`
	State        CircuitState `json:"state"`
	FailureCount int          `json:"failureCount"`
	LastSuccess  time.Time    `json:"lastSuccess,omitempty"`
	LastFailure  time.Time    `json:"lastFailure,omitempty"`
	LastError    string       `json:"lastError,omitempty"`
}
