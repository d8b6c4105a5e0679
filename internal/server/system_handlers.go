package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/copytrade/fleet/internal/domain"
	"github.com/copytrade/fleet/internal/work"
	"github.com/rs/zerolog"
)

// SystemStatusResponse is the aggregate fleet verdict the dashboard's
// header renders and the status monitor diffs against.
type SystemStatusResponse struct {
	Status        string `json:"status"`
	SessionCount  int    `json:"session_count"`
	ReadyCount    int    `json:"ready_count"`
	HealthyCount  int    `json:"healthy_count"`
	EligibleCount int    `json:"eligible_count"`
	RetiredCount  int    `json:"retired_count"`
	OpenOrders    int    `json:"open_orders"`
	LastCheck     string `json:"last_check"`
}

// OrderCounter reports how many OrderRecords are currently open.
type OrderCounter interface {
	NonTerminal(cutoff time.Time) []domain.OrderRecord
}

// SystemHandlers serves system-level status endpoints.
type SystemHandlers struct {
	sessions     SessionSource
	orders       OrderCounter
	workRegistry *work.Registry
	log          zerolog.Logger
}

// NewSystemHandlers creates the system status handlers.
func NewSystemHandlers(sessions SessionSource, orders OrderCounter, workRegistry *work.Registry, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		sessions:     sessions,
		orders:       orders,
		workRegistry: workRegistry,
		log:          log.With().Str("handler", "system").Logger(),
	}
}

// GetSystemStatusSnapshot computes the current aggregate status.
func (h *SystemHandlers) GetSystemStatusSnapshot() (SystemStatusResponse, error) {
	resp := SystemStatusResponse{
		LastCheck: time.Now().UTC().Format("2006-01-02 15:04"),
	}

	if h.sessions != nil {
		for _, s := range h.sessions.All() {
			resp.SessionCount++
			if s.Phase == domain.PhaseReady {
				resp.ReadyCount++
			}
			if s.Health == domain.HealthHealthy {
				resp.HealthyCount++
			}
			if s.Phase == domain.PhaseRetired {
				resp.RetiredCount++
			}
		}
		resp.EligibleCount = len(h.sessions.Eligible())
	}

	if h.orders != nil {
		resp.OpenOrders = len(h.orders.NonTerminal(time.Now()))
	}

	switch {
	case resp.SessionCount == 0:
		resp.Status = "idle"
	case resp.EligibleCount == resp.SessionCount-resp.RetiredCount && resp.EligibleCount > 0:
		resp.Status = "healthy"
	case resp.EligibleCount > 0:
		resp.Status = "degraded"
	default:
		resp.Status = "down"
	}

	return resp, nil
}

// HandleSystemStatus returns the aggregate fleet status.
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := h.GetSystemStatusSnapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// WorkTypeStatus is one registered work type's metadata for the
// dashboard's maintenance view.
type WorkTypeStatus struct {
	ID           string   `json:"id"`
	MarketTiming string   `json:"market_timing"`
	Interval     string   `json:"interval"`
	DependsOn    []string `json:"depends_on"`
}

// JobsStatusResponse lists every registered work type in registration
// order.
type JobsStatusResponse struct {
	WorkTypes []WorkTypeStatus `json:"work_types"`
}

// HandleJobsStatus returns the registered background work types.
// GET /api/system/jobs
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	resp := JobsStatusResponse{WorkTypes: []WorkTypeStatus{}}
	if h.workRegistry != nil {
		for _, wt := range h.workRegistry.All() {
			status := WorkTypeStatus{
				ID:           wt.ID,
				MarketTiming: marketTimingName(wt.MarketTiming),
				Interval:     intervalString(wt.Interval),
				DependsOn:    wt.DependsOn,
			}
			resp.WorkTypes = append(resp.WorkTypes, status)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func marketTimingName(mt work.MarketTiming) string {
	switch mt {
	case work.MarketHoursOnly:
		return "MarketHoursOnly"
	case work.AfterMarketClose:
		return "AfterMarketClose"
	default:
		return "AnyTime"
	}
}

func intervalString(d time.Duration) string {
	if d <= 0 {
		return "0"
	}
	if d%time.Minute == 0 {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return d.String()
}
