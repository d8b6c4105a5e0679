package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/copytrade/fleet/internal/domain"
	"github.com/copytrade/fleet/internal/work"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSessions is a canned SessionSource.
type fakeSessions struct {
	sessions []domain.Session
}

func (f *fakeSessions) All() []domain.Session { return f.sessions }
func (f *fakeSessions) Get(id string) (domain.Session, bool) {
	for _, s := range f.sessions {
		if s.AccountID == id {
			return s, true
		}
	}
	return domain.Session{}, false
}
func (f *fakeSessions) Eligible() []string {
	var out []string
	for _, s := range f.sessions {
		if domain.Eligible(s.Phase, s.Health) {
			out = append(out, s.AccountID)
		}
	}
	return out
}

func TestSystemHandlers_StatusVerdicts(t *testing.T) {
	tests := []struct {
		name     string
		sessions []domain.Session
		expected string
	}{
		{"no sessions", nil, "idle"},
		{
			"all eligible",
			[]domain.Session{
				{AccountID: "alice", Phase: domain.PhaseReady, Health: domain.HealthHealthy},
				{AccountID: "bob", Phase: domain.PhaseReady, Health: domain.HealthHealthy},
			},
			"healthy",
		},
		{
			"one degraded",
			[]domain.Session{
				{AccountID: "alice", Phase: domain.PhaseReady, Health: domain.HealthHealthy},
				{AccountID: "bob", Phase: domain.PhaseReady, Health: domain.HealthDegraded},
			},
			"degraded",
		},
		{
			"none eligible",
			[]domain.Session{
				{AccountID: "alice", Phase: domain.PhaseCrashed, Health: domain.HealthFailed},
			},
			"down",
		},
		{
			"retired sessions excluded from expectation",
			[]domain.Session{
				{AccountID: "alice", Phase: domain.PhaseReady, Health: domain.HealthHealthy},
				{AccountID: "bob", Phase: domain.PhaseRetired, Health: domain.HealthFailed},
			},
			"healthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSystemHandlers(&fakeSessions{sessions: tt.sessions}, nil, nil, zerolog.Nop())
			snapshot, err := h.GetSystemStatusSnapshot()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, snapshot.Status)
		})
	}
}

func TestSystemHandlers_HandleJobsStatus(t *testing.T) {
	tests := []struct {
		name          string
		setupRegistry func() *work.Registry
		expectedCount int
		validate      func(t *testing.T, response JobsStatusResponse)
	}{
		{
			name: "returns all work types from registry",
			setupRegistry: func() *work.Registry {
				registry := work.NewRegistry()

				registry.Register(&work.WorkType{
					ID:           "backup:r2",
					MarketTiming: work.AnyTime,
					Interval:     5 * time.Minute,
					DependsOn:    []string{},
					FindSubjects: func() []string {
						return []string{""}
					},
					Execute: func(ctx context.Context, subject string, progress *work.ProgressReporter) error {
						return nil
					},
				})

				registry.Register(&work.WorkType{
					ID:           "reconcile:sweep",
					MarketTiming: work.AnyTime,
					Interval:     0, // Every tick
					DependsOn:    []string{},
					FindSubjects: func() []string {
						return []string{""}
					},
					Execute: func(ctx context.Context, subject string, progress *work.ProgressReporter) error {
						return nil
					},
				})

				return registry
			},
			expectedCount: 2,
			validate: func(t *testing.T, response JobsStatusResponse) {
				assert.Len(t, response.WorkTypes, 2)
				// Should be ordered by registration order (FIFO)
				assert.Equal(t, "backup:r2", response.WorkTypes[0].ID)
				assert.Equal(t, "reconcile:sweep", response.WorkTypes[1].ID)
				assert.Equal(t, "5m", response.WorkTypes[0].Interval)
				assert.Equal(t, "0", response.WorkTypes[1].Interval)
			},
		},
		{
			name:          "works with empty registry",
			setupRegistry: work.NewRegistry,
			expectedCount: 0,
			validate: func(t *testing.T, response JobsStatusResponse) {
				assert.Len(t, response.WorkTypes, 0)
			},
		},
		{
			name: "includes all work type metadata",
			setupRegistry: func() *work.Registry {
				registry := work.NewRegistry()

				registry.Register(&work.WorkType{
					ID:           "backup:rotate",
					MarketTiming: work.AfterMarketClose,
					Interval:     10 * time.Minute,
					DependsOn:    []string{"backup:r2"},
					FindSubjects: func() []string {
						return []string{""}
					},
					Execute: func(ctx context.Context, subject string, progress *work.ProgressReporter) error {
						return nil
					},
				})

				return registry
			},
			expectedCount: 1,
			validate: func(t *testing.T, response JobsStatusResponse) {
				require.Len(t, response.WorkTypes, 1)
				wt := response.WorkTypes[0]
				assert.Equal(t, "backup:rotate", wt.ID)
				assert.Equal(t, "AfterMarketClose", wt.MarketTiming)
				assert.Equal(t, "10m", wt.Interval)
				assert.Equal(t, []string{"backup:r2"}, wt.DependsOn)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlers := NewSystemHandlers(nil, nil, tt.setupRegistry(), zerolog.Nop())

			req := httptest.NewRequest(http.MethodGet, "/api/system/jobs", nil)
			rec := httptest.NewRecorder()

			handlers.HandleJobsStatus(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var response JobsStatusResponse
			err := json.Unmarshal(rec.Body.Bytes(), &response)
			require.NoError(t, err)

			assert.Len(t, response.WorkTypes, tt.expectedCount)
			tt.validate(t, response)
		})
	}
}
