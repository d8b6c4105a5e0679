package fleet

import (
	"time"

	"github.com/copytrade/fleet/internal/credentials"
	"github.com/copytrade/fleet/internal/domain"
)

// PortAllocator hands out unique debug/backup port pairs, skipping the
// reserved bootstrap port, and is the single owner deciding which
// ports are in use. A port belongs to at most one Session at a time.
type PortAllocator struct {
	next int
	used map[int]bool
}

// NewPortAllocator starts handing out ports from startPort.
func NewPortAllocator(startPort int) *PortAllocator {
	return &PortAllocator{next: startPort, used: make(map[int]bool)}
}

// Allocate returns a (primary, backup) port pair, never including the
// reserved bootstrap port.
func (p *PortAllocator) Allocate() (primary, backup int) {
	primary = p.take()
	backup = p.take()
	return
}

func (p *PortAllocator) take() int {
	for {
		candidate := p.next
		p.next++
		if candidate == ReservedBootstrapPort || p.used[candidate] {
			continue
		}
		p.used[candidate] = true
		return candidate
	}
}

// Release frees both ports of a retired or crashed Session so they
// can be reused by a future restart.
func (p *PortAllocator) Release(ports ...int) {
	for _, port := range ports {
		delete(p.used, port)
		if port < p.next {
			p.next = port
		}
	}
}

// NewSession builds the INITIAL-phase Session for one credential,
// restoring any prior TradingContext found on disk.
func NewSession(cred credentials.Credential, profileDir string, primaryPort, backupPort int, recovery *RecoveryStore) (*domain.Session, error) {
	label := cred.Label()
	ctx, found, err := recovery.Load(label)
	if err != nil {
		return nil, err
	}
	if !found {
		ctx = domain.TradingContext{AccountID: label, UpdatedAt: time.Now()}
	}

	return &domain.Session{
		AccountID:  label,
		DebugPort:  primaryPort,
		BackupPort: backupPort,
		ProfileDir: profileDir,
		Phase:      domain.PhaseInitial,
		Health:     domain.HealthUnknown,
		Context:    ctx,
		CreatedAt:  time.Now(),
	}, nil
}
