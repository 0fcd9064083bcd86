package tokens

import (
	"encoding/json"
	"fmt"
	"os"
)

// storeFileMode keeps the token file readable by the owning user only.
const storeFileMode = 0o600

// Store persists a Pair as JSON at a fixed path. Absent or unreadable
// state is reported as "no pair", never as an error, so a fresh machine
// and a corrupted cache behave the same: the session logs in again.
type Store struct {
	path string
}

// NewStore returns a Store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the persisted pair. It returns nil when the file is
// missing, unreadable or does not parse.
func (s *Store) Load() *Pair {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	var p Pair
	if err := json.Unmarshal(data, &p); err != nil {
		return nil
	}
	if p.Access == "" || p.Refresh == "" {
		return nil
	}
	return &p
}

// Save writes the pair with owner-only permissions. The chmod after
// write covers a pre-existing file with looser permissions.
func (s *Store) Save(p Pair) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token pair: %w", err)
	}
	if err := os.WriteFile(s.path, data, storeFileMode); err != nil {
		return fmt.Errorf("write token file %q: %w", s.path, err)
	}
	if err := os.Chmod(s.path, storeFileMode); err != nil {
		return fmt.Errorf("chmod token file %q: %w", s.path, err)
	}
	return nil
}
