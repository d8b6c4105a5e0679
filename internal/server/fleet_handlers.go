package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/copytrade/fleet/internal/auditlog"
	"github.com/copytrade/fleet/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// SessionSource is the handlers' read-only view of the fleet registry.
type SessionSource interface {
	All() []domain.Session
	Get(accountID string) (domain.Session, bool)
	Eligible() []string
}

// AuditSource serves per-account history; nil when the audit database
// is not wired (tests).
type AuditSource interface {
	RecentForAccount(ctx context.Context, accountID string, limit int) ([]auditlog.Entry, error)
}

// FleetHandlers serves the dashboard's fleet views.
type FleetHandlers struct {
	sessions SessionSource
	audit    AuditSource
	log      zerolog.Logger
}

// NewFleetHandlers creates the fleet view handlers.
func NewFleetHandlers(sessions SessionSource, audit AuditSource, log zerolog.Logger) *FleetHandlers {
	return &FleetHandlers{
		sessions: sessions,
		audit:    audit,
		log:      log.With().Str("handler", "fleet").Logger(),
	}
}

// sessionView is the wire shape of one Session. Internal handles
// (PID, profile path) are included: this is an operator dashboard,
// not a public API.
type sessionView struct {
	AccountID    string    `json:"account_id"`
	DebugPort    int       `json:"debug_port"`
	BackupPort   int       `json:"backup_port"`
	PID          int       `json:"pid"`
	ProfileDir   string    `json:"profile_dir"`
	Phase        string    `json:"phase"`
	Health       string    `json:"health"`
	Symbol       string    `json:"symbol"`
	Quantity     float64   `json:"quantity"`
	RestartCount int       `json:"restart_count"`
	CreatedAt    time.Time `json:"created_at"`
	LastReadyAt  time.Time `json:"last_ready_at,omitempty"`
	Eligible     bool      `json:"eligible"`
}

func toView(s domain.Session) sessionView {
	return sessionView{
		AccountID:    s.AccountID,
		DebugPort:    s.DebugPort,
		BackupPort:   s.BackupPort,
		PID:          s.PID,
		ProfileDir:   s.ProfileDir,
		Phase:        string(s.Phase),
		Health:       string(s.Health),
		Symbol:       s.Context.Symbol,
		Quantity:     s.Context.Quantity,
		RestartCount: s.RestartCount,
		CreatedAt:    s.CreatedAt,
		LastReadyAt:  s.LastReadyAt,
		Eligible:     domain.Eligible(s.Phase, s.Health),
	}
}

// HandleFleetSnapshot returns every registered session.
// GET /api/fleet
func (h *FleetHandlers) HandleFleetSnapshot(w http.ResponseWriter, r *http.Request) {
	sessions := h.sessions.All()
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, toView(s))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": views,
		"eligible": h.sessions.Eligible(),
		"count":    len(views),
	})
}

// HandleSessionDetail returns one session.
// GET /api/fleet/{account}
func (h *FleetHandlers) HandleSessionDetail(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	s, ok := h.sessions.Get(account)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown account "+account)
		return
	}
	writeJSON(w, http.StatusOK, toView(s))
}

// HandleSessionAudit returns one session's recent audit trail.
// GET /api/fleet/{account}/audit?limit=N
func (h *FleetHandlers) HandleSessionAudit(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	if _, ok := h.sessions.Get(account); !ok {
		writeError(w, http.StatusNotFound, "unknown account "+account)
		return
	}
	if h.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit log not configured")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.audit.RecentForAccount(r.Context(), account, limit)
	if err != nil {
		h.log.Error().Err(err).Str("account_id", account).Msg("audit query failed")
		writeError(w, http.StatusInternalServerError, "audit query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": account,
		"entries":    entries,
	})
}
