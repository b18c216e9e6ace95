package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
)

// Setting keys. Credentials are stored as given; real protection is the
// 0600 database file in a 0700 data directory.
const (
	settingAPIKeys         = "api_keys"
	settingKeyIndex        = "current_key_index"
	settingModelName       = "model_name"
	settingAutoConsolidate = "auto_consolidate"
)

// GetSetting returns the value for key, or def if the key is absent.
func (s *Store) GetSetting(key, def string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return def, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %q: %w", key, err)
	}
	return value, nil
}

// PutSetting stores value under key, replacing any previous value.
func (s *Store) PutSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %q: %w", key, err)
	}
	return nil
}

// APIKeys returns the configured credential pool in order.
func (s *Store) APIKeys() ([]string, error) {
	raw, err := s.GetSetting(settingAPIKeys, "[]")
	if err != nil {
		return nil, err
	}
	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, fmt.Errorf("failed to parse stored API keys: %w", err)
	}
	return keys, nil
}

// SetAPIKeys replaces the credential pool and resets the rotation index.
func (s *Store) SetAPIKeys(keys []string) error {
	raw, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("failed to encode API keys: %w", err)
	}
	if err := s.PutSetting(settingAPIKeys, string(raw)); err != nil {
		return err
	}
	return s.SetRotationIndex(0)
}

// RotationIndex returns the persisted credential cursor (default 0).
func (s *Store) RotationIndex() (int, error) {
	raw, err := s.GetSetting(settingKeyIndex, "0")
	if err != nil {
		return 0, err
	}
	idx, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to parse rotation index: %w", err)
	}
	return idx, nil
}

// SetRotationIndex persists the credential cursor.
func (s *Store) SetRotationIndex(idx int) error {
	return s.PutSetting(settingKeyIndex, strconv.Itoa(idx))
}

// ModelName returns the configured chat model, or def if unset.
func (s *Store) ModelName(def string) (string, error) {
	return s.GetSetting(settingModelName, def)
}

// SetModelName persists the chat model name.
func (s *Store) SetModelName(name string) error {
	return s.PutSetting(settingModelName, name)
}

// AutoConsolidate reports whether automatic memory consolidation is
// enabled. On by default.
func (s *Store) AutoConsolidate() (bool, error) {
	raw, err := s.GetSetting(settingAutoConsolidate, "true")
	if err != nil {
		return false, err
	}
	return raw == "true" || raw == "1", nil
}

// SetAutoConsolidate persists the automatic-consolidation flag.
func (s *Store) SetAutoConsolidate(enabled bool) error {
	return s.PutSetting(settingAutoConsolidate, strconv.FormatBool(enabled))
}
