package fleet

import (
	"testing"
	"time"

	"github.com/copytrade/fleet/internal/credentials"
	"github.com/copytrade/fleet/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortAllocator_SkipsReservedBootstrapPort(t *testing.T) {
	p := NewPortAllocator(ReservedBootstrapPort - 1)

	var allocated []int
	for i := 0; i < 4; i++ {
		primary, backup := p.Allocate()
		allocated = append(allocated, primary, backup)
	}

	seen := map[int]bool{}
	for _, port := range allocated {
		assert.NotEqual(t, ReservedBootstrapPort, port)
		assert.False(t, seen[port], "port %d allocated twice", port)
		seen[port] = true
	}
}

func TestPortAllocator_ReleaseAllowsReuse(t *testing.T) {
	p := NewPortAllocator(9301)
	primary, backup := p.Allocate()
	p.Release(primary, backup)

	again, _ := p.Allocate()
	assert.Equal(t, primary, again)
}

func TestRestartPolicy_Backoff(t *testing.T) {
	policy := DefaultRestartPolicy()
	assert.Equal(t, 2*time.Second, policy.Backoff(1))
	assert.Equal(t, 4*time.Second, policy.Backoff(2))
	assert.Equal(t, 8*time.Second, policy.Backoff(3))

	// Capped, and defensive about bad input.
	assert.Equal(t, 30*time.Second, policy.Backoff(10))
	assert.Equal(t, 2*time.Second, policy.Backoff(0))
}

func TestLaunchChrome_RefusesReservedPort(t *testing.T) {
	_, err := LaunchChrome("/usr/bin/google-chrome", ReservedBootstrapPort, t.TempDir(), "https://example.com")
	require.Error(t, err)
}

func TestRecoveryStore_RoundTrip(t *testing.T) {
	store, err := NewRecoveryStore(t.TempDir())
	require.NoError(t, err)

	ctx := domain.TradingContext{
		AccountID:            "alice",
		Symbol:               "NQ",
		Quantity:             4,
		TakeProfitTicks:      100,
		StopLossTicks:        40,
		TickSize:             0.25,
		AuthIdentity:         "alice@example.com",
		InFlightFingerprints: []string{"fp-1", "fp-2"},
		UpdatedAt:            time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Save(ctx))

	loaded, found, err := store.Load("alice")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ctx, loaded)
}

func TestRecoveryStore_MissingFileIsNotAnError(t *testing.T) {
	store, err := NewRecoveryStore(t.TempDir())
	require.NoError(t, err)

	_, found, err := store.Load("nobody")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRecoveryStore_OverwriteKeepsLatest(t *testing.T) {
	store, err := NewRecoveryStore(t.TempDir())
	require.NoError(t, err)

	first := domain.TradingContext{AccountID: "alice", Symbol: "NQ", UpdatedAt: time.Now().UTC()}
	require.NoError(t, store.Save(first))

	second := first
	second.Symbol = "ES"
	require.NoError(t, store.Save(second))

	loaded, _, err := store.Load("alice")
	require.NoError(t, err)
	assert.Equal(t, "ES", loaded.Symbol)
}

func TestRegistry_EligibleOnlyReadyHealthy(t *testing.T) {
	r := NewRegistry()
	r.Register(&domain.Session{AccountID: "alice", Phase: domain.PhaseReady, Health: domain.HealthHealthy})
	r.Register(&domain.Session{AccountID: "bob", Phase: domain.PhaseReady, Health: domain.HealthDegraded})
	r.Register(&domain.Session{AccountID: "carol", Phase: domain.PhaseAuthenticating, Health: domain.HealthHealthy})

	assert.Equal(t, []string{"alice"}, r.Eligible())

	require.NoError(t, r.Update("bob", func(s *domain.Session) {
		s.Health = domain.HealthHealthy
	}))
	assert.Equal(t, []string{"alice", "bob"}, r.Eligible())
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	r := NewRegistry()
	r.Register(&domain.Session{AccountID: "alice", Phase: domain.PhaseReady})

	snapshot, ok := r.Get("alice")
	require.True(t, ok)
	snapshot.Phase = domain.PhaseCrashed

	live, _ := r.Get("alice")
	assert.Equal(t, domain.PhaseReady, live.Phase)
}

func TestNewSession_RestoresContextFromDisk(t *testing.T) {
	dir := t.TempDir()
	store, err := NewRecoveryStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(domain.TradingContext{AccountID: "alice", Symbol: "GC", Quantity: 2}))

	cred := credentials.Credential{Identity: "alice", Secret: "hunter2", Ordinal: 1}
	session, err := NewSession(cred, dir+"/profiles/alice", 9301, 9302, store)
	require.NoError(t, err)

	assert.Equal(t, "GC", session.Context.Symbol)
	assert.Equal(t, domain.PhaseInitial, session.Phase)
	assert.Equal(t, 9301, session.DebugPort)
}
