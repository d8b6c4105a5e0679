package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_ForwardOnly(t *testing.T) {
	assert.True(t, CanTransition(PhaseInitial, PhaseLaunching))
	assert.True(t, CanTransition(PhaseLaunching, PhaseConnecting))
	assert.True(t, CanTransition(PhaseAuthenticating, PhaseReady))

	// No skipping forward, no moving backward.
	assert.False(t, CanTransition(PhaseInitial, PhaseReady))
	assert.False(t, CanTransition(PhaseReady, PhaseLaunching))
	assert.False(t, CanTransition(PhaseConnecting, PhaseInitial))
}

func TestCanTransition_RecoveryLoopsBack(t *testing.T) {
	assert.True(t, CanTransition(PhaseDegraded, PhaseAuthenticating))
	assert.True(t, CanTransition(PhaseRecovering, PhaseAuthenticating))
	assert.True(t, CanTransition(PhaseCrashed, PhaseAuthenticating))
	assert.True(t, CanTransition(PhaseCrashed, PhaseLaunching))
}

func TestCanTransition_RetiredIsTerminal(t *testing.T) {
	for _, to := range []LifecyclePhase{
		PhaseInitial, PhaseLaunching, PhaseConnecting, PhaseLoading,
		PhaseAuthenticating, PhaseReady, PhaseDegraded, PhaseRecovering,
		PhaseCrashed, PhaseRetired,
	} {
		assert.False(t, CanTransition(PhaseRetired, to), "RETIRED -> %s must be illegal", to)
	}
}

func TestEligible(t *testing.T) {
	assert.True(t, Eligible(PhaseReady, HealthHealthy))

	assert.False(t, Eligible(PhaseReady, HealthDegraded))
	assert.False(t, Eligible(PhaseAuthenticating, HealthHealthy))
	assert.False(t, Eligible(PhaseRetired, HealthHealthy))
}

func TestNewFingerprint_Monotonic(t *testing.T) {
	a := NewFingerprint("alice", "i1")
	b := NewFingerprint("alice", "i1")
	assert.NotEqual(t, a, b)
}
