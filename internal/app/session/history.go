package session

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

const historyFileName = "partybox-queue-history.json"

// HistoryStore persists the suggestion history as a flat JSON array of
// track uris. It is read once at session start and overwritten at session
// end, always from the orchestrator's worker, so no file locking is used.
type HistoryStore struct {
	path string
}

// NewHistoryStore creates a store rooted at the given data directory.
func NewHistoryStore(dataDir string) *HistoryStore {
	return &HistoryStore{path: filepath.Join(dataDir, historyFileName)}
}

// Load reads the persisted history. A missing file yields an empty
// history, not an error.
func (s *HistoryStore) Load() ([]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read queue history")
	}

	var uris []string
	if err := json.Unmarshal(data, &uris); err != nil {
		return nil, errors.Wrap(err, "failed to parse queue history")
	}
	return uris, nil
}

// Save overwrites the persisted history.
func (s *HistoryStore) Save(uris []string) error {
	if uris == nil {
		uris = []string{}
	}
	data, err := json.Marshal(uris)
	if err != nil {
		return errors.Wrap(err, "failed to encode queue history")
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write queue history")
	}
	return nil
}
