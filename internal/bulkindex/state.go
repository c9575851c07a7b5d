package bulkindex

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// State remembers which file contents were already indexed for a user and root.
// Data is stored as JSON files under ~/.bearcode/index-state.
//
//	filename: <userId>_<sha256(root)[:16]>.json
//	contents: {"files":{"relative/path.go":{"hash":"...","documentId":"..."}}}
const defaultStateDir = ".bearcode/index-state"

// FileState is what was last indexed for one path.
type FileState struct {
	Hash       string `json:"hash"`
	DocumentID string `json:"documentId"`
}

type snapshot struct {
	Files map[string]FileState `json:"files"`
}

// State handles loading and saving per-root snapshots.
type State struct {
	dir string
}

// NewState creates a new State. If dir is empty, $HOME/.bearcode/index-state is used.
func NewState(dir string) (*State, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, defaultStateDir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &State{dir: dir}, nil
}

func (s *State) key(userID, root string) string {
	sum := sha256.Sum256([]byte(root))
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.json", userID, hex.EncodeToString(sum[:8])))
}

// Load returns the stored snapshot; a missing file yields an empty map and no error.
func (s *State) Load(userID, root string) (map[string]FileState, error) {
	data, err := os.ReadFile(s.key(userID, root))
	if errors.Is(err, os.ErrNotExist) {
		return map[string]FileState{}, nil
	}
	if err != nil {
		return nil, err
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	if snap.Files == nil {
		snap.Files = map[string]FileState{}
	}
	return snap.Files, nil
}

// Save replaces the snapshot for userID and root.
func (s *State) Save(userID, root string, files map[string]FileState) error {
	data, err := json.MarshalIndent(&snapshot{Files: files}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.key(userID, root), data, 0o644)
}
