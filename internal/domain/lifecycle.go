// Package domain provides the core data model shared by every fleet
// component: Sessions, their lifecycle and health, trading intents and
// the materialized records that track their execution.
package domain

// LifecyclePhase is a forward-only lattice describing where a Session
// is in its startup, operation, and (possibly repeated) recovery.
type LifecyclePhase string

const (
	PhaseInitial        LifecyclePhase = "INITIAL"
	PhaseLaunching      LifecyclePhase = "LAUNCHING"
	PhaseConnecting     LifecyclePhase = "CONNECTING"
	PhaseLoading        LifecyclePhase = "LOADING"
	PhaseAuthenticating LifecyclePhase = "AUTHENTICATING"
	PhaseReady          LifecyclePhase = "READY"
	PhaseDegraded       LifecyclePhase = "DEGRADED"
	PhaseRecovering     LifecyclePhase = "RECOVERING"
	PhaseCrashed        LifecyclePhase = "CRASHED"
	PhaseRetired        LifecyclePhase = "RETIRED"
)

// legalNext enumerates the phases reachable directly from each phase.
// RETIRED has no outgoing edges: it is terminal for the Session's life.
var legalNext = map[LifecyclePhase][]LifecyclePhase{
	PhaseInitial:        {PhaseLaunching},
	PhaseLaunching:      {PhaseConnecting, PhaseCrashed},
	PhaseConnecting:     {PhaseLoading, PhaseCrashed},
	PhaseLoading:        {PhaseAuthenticating, PhaseCrashed},
	PhaseAuthenticating: {PhaseReady, PhaseCrashed},
	PhaseReady:          {PhaseDegraded, PhaseCrashed},
	PhaseDegraded:       {PhaseRecovering, PhaseAuthenticating, PhaseReady, PhaseCrashed},
	PhaseRecovering:     {PhaseAuthenticating, PhaseReady, PhaseCrashed},
	PhaseCrashed:        {PhaseAuthenticating, PhaseLaunching, PhaseRetired},
	PhaseRetired:        {},
}

// CanTransition reports whether moving from one phase to another is a
// legal edge in the lattice. Callers that need the restart loop-back
// (CRASHED/DEGRADED/RECOVERING -> AUTHENTICATING) go through here too,
// so the lattice is the single source of truth for phase ordering.
func CanTransition(from, to LifecyclePhase) bool {
	for _, candidate := range legalNext[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// HealthState is orthogonal to LifecyclePhase: a READY session can
// still be DEGRADED or FAILED depending on probe results.
type HealthState string

const (
	HealthHealthy    HealthState = "HEALTHY"
	HealthDegraded   HealthState = "DEGRADED"
	HealthFailed     HealthState = "FAILED"
	HealthRecovering HealthState = "RECOVERING"
	HealthUnknown    HealthState = "UNKNOWN"
)

// Eligible reports whether a Session in the given phase/health
// combination may receive new intents. Only READY+HEALTHY sessions
// participate in fan-out.
func Eligible(phase LifecyclePhase, health HealthState) bool {
	return phase == PhaseReady && health == HealthHealthy
}
