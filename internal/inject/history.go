package inject

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// historyFile is the on-disk strategy history schema.
type historyFile struct {
	Apps map[string]map[string]historyRecord `yaml:"apps"`
}

type historyRecord struct {
	Success     int       `yaml:"success"`
	Failure     int       `yaml:"failure"`
	LastStatus  string    `yaml:"last_status,omitempty"`
	LastAttempt time.Time `yaml:"last_attempt,omitempty"`
}

// HistoryPath resolves the persisted strategy history location.
func HistoryPath() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "scrivo", "strategy.yaml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "scrivo", "strategy.yaml"), nil
}

// SaveHistory writes the manager's records to path. Cooldown state is
// deliberately not persisted; a restart starts every method fresh.
func SaveHistory(path string, manager *Manager) error {
	snapshot := manager.Snapshot()

	out := historyFile{Apps: make(map[string]map[string]historyRecord, len(snapshot))}
	for appID, methods := range snapshot {
		entry := make(map[string]historyRecord, len(methods))
		for method, record := range methods {
			entry[string(method)] = historyRecord{
				Success:     record.Success,
				Failure:     record.Failure,
				LastStatus:  string(record.LastStatus),
				LastAttempt: record.LastAttempt,
			}
		}
		out.Apps[appID] = entry
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode strategy history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("ensure history dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write strategy history: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace strategy history: %w", err)
	}
	return nil
}

// LoadHistory restores persisted records into the manager. A missing file is
// not an error.
func LoadHistory(path string, manager *Manager) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read strategy history: %w", err)
	}

	var parsed historyFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("decode strategy history: %w", err)
	}

	records := make(map[string]map[Method]MethodRecord, len(parsed.Apps))
	for appID, methods := range parsed.Apps {
		entry := make(map[Method]MethodRecord, len(methods))
		for method, record := range methods {
			entry[Method(method)] = MethodRecord{
				Success:     record.Success,
				Failure:     record.Failure,
				LastStatus:  Status(record.LastStatus),
				LastAttempt: record.LastAttempt,
			}
		}
		records[appID] = entry
	}

	manager.Restore(records)
	return nil
}
