// Package credentials loads the fleet's account identities from a
// plain key=value file, one credential per line, in the same line
// format godotenv reads `.env` files with. Unlike a `.env` file the
// source intentionally may repeat an identity (a given login used for
// more than one configured Session); the store preserves every
// occurrence in file order instead of collapsing to a map.
package credentials

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Credential is one identity=secret pair as it appeared in the source
// file, plus its position so callers can assign stable, repeatable
// account labels (e.g. "alice", "alice-2") when an identity repeats.
type Credential struct {
	Identity string
	Secret   string
	Ordinal  int
}

// Store is the frozen-at-load set of credentials, in source order.
type Store struct {
	entries []Credential
}

// Load reads a key=value credential file. Blank lines and lines
// starting with '#' are skipped, matching godotenv's conventions. The
// returned Store is immutable: callers needing per-session copies
// should do so by value, not by sharing Credential pointers.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("credentials: open %s: %w", path, err)
	}
	defer f.Close()

	counts := map[string]int{}
	var entries []Credential

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			return nil, fmt.Errorf("credentials: %s:%d: missing '=' in %q", path, lineNo, line)
		}
		identity := strings.TrimSpace(line[:idx])
		secret := strings.TrimSpace(line[idx+1:])
		secret = strings.Trim(secret, `"'`)
		if identity == "" {
			return nil, fmt.Errorf("credentials: %s:%d: empty identity", path, lineNo)
		}
		counts[identity]++
		entries = append(entries, Credential{
			Identity: identity,
			Secret:   secret,
			Ordinal:  counts[identity],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("credentials: read %s: %w", path, err)
	}

	return &Store{entries: entries}, nil
}

// All returns every credential in source order. The slice is a copy;
// mutating it does not affect the Store.
func (s *Store) All() []Credential {
	out := make([]Credential, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len reports how many credentials were loaded, including duplicates.
func (s *Store) Len() int {
	return len(s.entries)
}

// Label derives a stable account label for a Credential: the bare
// identity for its first occurrence, identity plus ordinal for repeats.
func (c Credential) Label() string {
	if c.Ordinal <= 1 {
		return c.Identity
	}
	return fmt.Sprintf("%s-%d", c.Identity, c.Ordinal)
}
