package fleet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/copytrade/fleet/internal/domain"
)

// RecoveryStore persists TradingContext snapshots to
// recovery/<account>.json, one file per account, serialized per
// account with its own mutex so concurrent mutations from a Session's
// own worker never interleave on disk. Writes are atomic: write to a
// temp file in the same directory, then rename over the target, so a
// crash mid-write never leaves a half-written snapshot behind — the
// same pattern the reliability package uses for staged restores.
type RecoveryStore struct {
	dir    string
	locks  map[string]*sync.Mutex
	lockMu sync.Mutex
}

// NewRecoveryStore creates the recovery directory if needed and
// returns a store rooted there.
func NewRecoveryStore(dataDir string) (*RecoveryStore, error) {
	dir := filepath.Join(dataDir, "recovery")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("fleet: create recovery dir: %w", err)
	}
	return &RecoveryStore{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

func (s *RecoveryStore) lockFor(accountID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[accountID] = l
	}
	return l
}

func (s *RecoveryStore) path(accountID string) string {
	return filepath.Join(s.dir, accountID+".json")
}

// Save writes ctx atomically to its account's recovery file. Callers
// invoke this on every TradingContext mutation, keeping the on-disk
// snapshot at most one intent behind live state.
func (s *RecoveryStore) Save(ctx domain.TradingContext) error {
	lock := s.lockFor(ctx.AccountID)
	lock.Lock()
	defer lock.Unlock()

	data, err := json.MarshalIndent(ctx, "", "  ")
	if err != nil {
		return fmt.Errorf("fleet: marshal trading context: %w", err)
	}

	final := s.path(ctx.AccountID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("fleet: write temp recovery file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("fleet: rename recovery file: %w", err)
	}
	return nil
}

// Load reads the account's recovery file, if present. A missing file
// is not an error: a brand-new account simply has no prior context.
func (s *RecoveryStore) Load(accountID string) (domain.TradingContext, bool, error) {
	lock := s.lockFor(accountID)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(s.path(accountID))
	if os.IsNotExist(err) {
		return domain.TradingContext{}, false, nil
	}
	if err != nil {
		return domain.TradingContext{}, false, fmt.Errorf("fleet: read recovery file: %w", err)
	}

	var ctx domain.TradingContext
	if err := json.Unmarshal(data, &ctx); err != nil {
		return domain.TradingContext{}, false, fmt.Errorf("fleet: unmarshal recovery file: %w", err)
	}
	return ctx, true, nil
}
