// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package metadata

import (
	"database/sql"
	"fmt"
	"time"
)

// GetSystemMetadata retrieves a system-level key/value entry (install_date,
// schema_version). The system_metadata table is created as part of the main
// schema in db.go.
func (s *Store) GetSystemMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM system_metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get system metadata %s: %w", key, err)
	}
	return value, nil
}

// SetSystemMetadata sets a system-level key/value entry.
func (s *Store) SetSystemMetadata(key, value string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO system_metadata (key, value) VALUES (?, ?)", key, value)
	return err
}

// EnsureInstallDate records the install_date entry on first run.
func (s *Store) EnsureInstallDate() error {
	existing, err := s.GetSystemMetadata("install_date")
	if err != nil {
		return err
	}
	if existing == "" {
		if err := s.SetSystemMetadata("install_date", time.Now().Format("2006-01-02")); err != nil {
			return fmt.Errorf("set install_date: %w", err)
		}
	}
	return nil
}

