package validator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benthamhq/bentham/pkg/types"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestValidator() *Validator {
	v := New()
	v.now = func() time.Time { return testNow }
	return v
}

func validManifest() *types.Manifest {
	return &types.Manifest{
		Name: "brand visibility sweep",
		Queries: []types.Query{
			{Text: "best project management tools"},
			{Text: "top crm software", Tags: []string{"crm"}},
		},
		Surfaces: []types.SurfaceRef{
			{SurfaceID: "chatgpt-web", Required: true},
			{SurfaceID: "perplexity", Options: map[string]interface{}{"model": "sonar"}},
		},
		Locations: []types.Location{
			{ID: "us-east", ProxyType: "residential"},
			{ID: "eu-west"},
		},
		Completion: types.CompletionCriteria{
			RequiredSurfaces:  []string{"chatgpt-web"},
			CoverageThreshold: 0.8,
			MaxRetriesPerCell: 3,
		},
		QualityGates: types.QualityGates{
			MinResponseLength:    50,
			RequireActualContent: true,
		},
		Evidence:         types.EvidenceMetadata,
		Deadline:         testNow.Add(24 * time.Hour),
		SessionIsolation: types.SessionPerQuery,
		MaxConcurrency:   4,
	}
}

func TestValidateAcceptsWellFormedManifest(t *testing.T) {
	v := newTestValidator()

	result := v.Validate(validManifest())

	assert.True(t, result.OK)
	assert.Empty(t, result.Errors)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(m *types.Manifest)
		wantErr string
	}{
		{
			name:    "missing name",
			mutate:  func(m *types.Manifest) { m.Name = "" },
			wantErr: "name: required",
		},
		{
			name:    "no queries",
			mutate:  func(m *types.Manifest) { m.Queries = nil },
			wantErr: "queries: required",
		},
		{
			name:    "empty query text",
			mutate:  func(m *types.Manifest) { m.Queries[0].Text = "" },
			wantErr: "queries[0].text: required",
		},
		{
			name:    "no surfaces",
			mutate:  func(m *types.Manifest) { m.Surfaces = []types.SurfaceRef{} },
			wantErr: "surfaces: below minimum 1",
		},
		{
			name:    "no locations",
			mutate:  func(m *types.Manifest) { m.Locations = []types.Location{} },
			wantErr: "locations: below minimum 1",
		},
		{
			name:    "threshold above one",
			mutate:  func(m *types.Manifest) { m.Completion.CoverageThreshold = 1.2 },
			wantErr: "completion.coverageThreshold: must be <= 1",
		},
		{
			name:    "threshold below zero",
			mutate:  func(m *types.Manifest) { m.Completion.CoverageThreshold = -0.1 },
			wantErr: "completion.coverageThreshold: must be >= 0",
		},
		{
			name:    "negative retries",
			mutate:  func(m *types.Manifest) { m.Completion.MaxRetriesPerCell = -1 },
			wantErr: "completion.maxRetriesPerCell: must be >= 0",
		},
		{
			name:    "zero deadline",
			mutate:  func(m *types.Manifest) { m.Deadline = time.Time{} },
			wantErr: "deadline: required",
		},
		{
			name:    "deadline in the past",
			mutate:  func(m *types.Manifest) { m.Deadline = testNow.Add(-time.Hour) },
			wantErr: "deadline: must be strictly in the future",
		},
		{
			name:    "deadline exactly now",
			mutate:  func(m *types.Manifest) { m.Deadline = testNow },
			wantErr: "deadline: must be strictly in the future",
		},
		{
			name:    "unknown evidence level",
			mutate:  func(m *types.Manifest) { m.Evidence = "verbose" },
			wantErr: "evidence: must be one of [metadata screenshots full]",
		},
		{
			name:    "unknown session isolation",
			mutate:  func(m *types.Manifest) { m.SessionIsolation = "per-region" },
			wantErr: "sessionIsolation: must be one of [shared per-tenant per-query]",
		},
		{
			name:    "unknown proxy type",
			mutate:  func(m *types.Manifest) { m.Locations[0].ProxyType = "satellite" },
			wantErr: "locations[0].proxyType: must be one of [residential datacenter]",
		},
		{
			name: "duplicate surface",
			mutate: func(m *types.Manifest) {
				m.Surfaces = append(m.Surfaces, types.SurfaceRef{SurfaceID: "chatgpt-web"})
			},
			wantErr: `surfaces[2].surfaceId: duplicate surface "chatgpt-web"`,
		},
		{
			name: "duplicate location",
			mutate: func(m *types.Manifest) {
				m.Locations = append(m.Locations, types.Location{ID: "us-east"})
			},
			wantErr: `locations[2].id: duplicate location "us-east"`,
		},
		{
			name: "required surface not declared",
			mutate: func(m *types.Manifest) {
				m.Completion.RequiredSurfaces = []string{"gemini-web"}
			},
			wantErr: `completion.requiredSurfaces: "gemini-web" is not a declared surface`,
		},
		{
			name: "duplicate required surface",
			mutate: func(m *types.Manifest) {
				m.Completion.RequiredSurfaces = []string{"chatgpt-web", "chatgpt-web"}
			},
			wantErr: `completion.requiredSurfaces: duplicate entry "chatgpt-web"`,
		},
		{
			name: "empty option key",
			mutate: func(m *types.Manifest) {
				m.Surfaces[1].Options = map[string]interface{}{"": "x"}
			},
			wantErr: "surfaces[1].options: option keys must be non-empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestValidator()
			m := validManifest()
			tt.mutate(m)

			result := v.Validate(m)

			assert.False(t, result.OK)
			assert.Contains(t, result.Errors, tt.wantErr)
		})
	}
}

func TestValidateNilManifest(t *testing.T) {
	v := newTestValidator()

	result := v.Validate(nil)

	assert.False(t, result.OK)
	assert.Equal(t, []string{"manifest: required"}, result.Errors)
}

func TestValidateCollectsAllViolations(t *testing.T) {
	v := newTestValidator()
	m := validManifest()
	m.Name = ""
	m.Queries = nil
	m.Deadline = testNow.Add(-time.Minute)

	result := v.Validate(m)

	require.False(t, result.OK)
	assert.GreaterOrEqual(t, len(result.Errors), 3)
}

func TestValidateIsDeterministic(t *testing.T) {
	v := newTestValidator()
	m := validManifest()
	m.Name = ""
	m.Queries[1].Text = ""
	m.Completion.RequiredSurfaces = []string{"gemini-web", "gemini-web"}
	m.Deadline = testNow.Add(-time.Hour)

	first := v.Validate(m)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, v.Validate(m))
	}
}
