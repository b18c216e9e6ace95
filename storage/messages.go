package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"

	"gemchat/model"
)

// AppendMessage records one transcript entry and returns its assigned ID.
// Entries are never mutated after this.
func (s *Store) AppendMessage(m model.Message) (int64, error) {
	var image any
	if m.Image != nil {
		raw, err := json.Marshal(m.Image)
		if err != nil {
			return 0, fmt.Errorf("failed to encode image attachment: %w", err)
		}
		image = string(raw)
	}

	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	res, err := s.db.Exec(
		`INSERT INTO messages (role, text, image, timestamp) VALUES (?, ?, ?, ?)`,
		m.Role, m.Text, image, ts)
	if err != nil {
		return 0, fmt.Errorf("failed to append message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read message id: %w", err)
	}
	return id, nil
}

// Messages returns the full transcript in insertion order.
func (s *Store) Messages() ([]model.Message, error) {
	rows, err := s.db.Query(
		`SELECT id, role, text, image, timestamp FROM messages ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		var image *string
		if err := rows.Scan(&m.ID, &m.Role, &m.Text, &image, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if image != nil && *image != "" {
			var att model.ImageAttachment
			if err := json.Unmarshal([]byte(*image), &att); err != nil {
				return nil, fmt.Errorf("failed to decode image attachment: %w", err)
			}
			m.Image = &att
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// ClearMessages deletes the entire transcript.
func (s *Store) ClearMessages() error {
	if _, err := s.db.Exec(`DELETE FROM messages`); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}
	return nil
}

// MessageMatch is one transcript search hit.
type MessageMatch struct {
	Message model.Message
	Preview string
	Score   int
}

// SearchMessages fuzzy-matches the transcript against query, best
// matches first.
func (s *Store) SearchMessages(query string) ([]MessageMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	messages, err := s.Messages()
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(messages))
	for i, m := range messages {
		texts[i] = m.Text
	}

	var matches []MessageMatch
	for _, hit := range fuzzy.Find(query, texts) {
		m := messages[hit.Index]
		preview := m.Text
		if len(preview) > 100 {
			preview = preview[:100] + "..."
		}
		matches = append(matches, MessageMatch{
			Message: m,
			Preview: strings.ReplaceAll(preview, "\n", " "),
			Score:   hit.Score,
		})
	}
	return matches, nil
}
