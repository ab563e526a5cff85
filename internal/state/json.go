package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// JSONStore persists each chat state in its own JSON file under a base
// directory, named chat_<id>.json.
type JSONStore struct {
	dir string
}

// NewJSONStore creates the base directory if needed.
func NewJSONStore(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create state directory %s: %w", dir, err)
	}
	return &JSONStore{dir: dir}, nil
}

func (s *JSONStore) fileFor(chatID int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("chat_%d.json", chatID))
}

// Load returns (nil, nil) when no snapshot exists. A corrupted file is
// removed so it does not fail on every subsequent load.
func (s *JSONStore) Load(chatID int64) ([]byte, error) {
	path := s.fileFor(chatID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if !json.Valid(data) {
		_ = os.Remove(path)
		return nil, nil
	}
	return data, nil
}

func (s *JSONStore) Save(chatID int64, payload []byte) error {
	if err := os.WriteFile(s.fileFor(chatID), payload, 0o644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

func (s *JSONStore) Delete(chatID int64) error {
	err := os.Remove(s.fileFor(chatID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove state file: %w", err)
	}
	return nil
}

func (s *JSONStore) ListChats() ([]int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read state directory: %w", err)
	}
	var ids []int64
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "chat_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(name, "chat_"), ".json")
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *JSONStore) Close() error { return nil }
