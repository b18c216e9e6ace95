package storage

import (
	"fmt"
	"time"

	"gemchat/model"
)

// AppendMemory records one memory fact. Deduplication is the caller's
// concern (memory.Pipeline owns the dedup policy).
func (s *Store) AppendMemory(text string) error {
	_, err := s.db.Exec(
		`INSERT INTO memories (text, timestamp) VALUES (?, ?)`, text, time.Now())
	if err != nil {
		return fmt.Errorf("failed to append memory: %w", err)
	}
	return nil
}

// Memories returns all stored memories in insertion order.
func (s *Store) Memories() ([]model.Memory, error) {
	rows, err := s.db.Query(`SELECT id, text, timestamp FROM memories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to read memories: %w", err)
	}
	defer rows.Close()

	var memories []model.Memory
	for rows.Next() {
		var m model.Memory
		if err := rows.Scan(&m.ID, &m.Text, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

// ClearMemories deletes the entire memory set.
func (s *Store) ClearMemories() error {
	if _, err := s.db.Exec(`DELETE FROM memories`); err != nil {
		return fmt.Errorf("failed to clear memories: %w", err)
	}
	return nil
}

// ReplaceMemories swaps the whole memory set for texts in a single
// transaction, so a crash cannot leave the set half-replaced.
func (s *Store) ReplaceMemories(texts []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM memories`); err != nil {
		return fmt.Errorf("failed to clear memories: %w", err)
	}

	now := time.Now()
	for _, text := range texts {
		if _, err := tx.Exec(
			`INSERT INTO memories (text, timestamp) VALUES (?, ?)`, text, now); err != nil {
			return fmt.Errorf("failed to insert memory: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit memory replacement: %w", err)
	}
	return nil
}
