package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gemchat/config"
)

// Export is the on-disk memory backup format.
type Export struct {
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Memories  []string  `json:"memories"`
}

const exportVersion = 1

// ExportJSON serializes the current memory set.
func (p *Pipeline) ExportJSON() ([]byte, error) {
	memories, err := p.store.Memories()
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(memories))
	for i, m := range memories {
		texts[i] = m.Text
	}

	data, err := json.MarshalIndent(Export{
		Version:   exportVersion,
		Timestamp: time.Now(),
		Memories:  texts,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode memory export: %w", err)
	}
	return data, nil
}

// ExportToFile writes the memory set to path, or to a timestamped file
// in the user's Downloads directory when path is empty. Returns the
// path written.
func (p *Pipeline) ExportToFile(path string) (string, error) {
	if path == "" {
		path = filepath.Join(config.GetHomeDir(), "Downloads",
			fmt.Sprintf("gemchat-memory-%s.json", time.Now().Format("20060102-150405")))
	}

	data, err := p.ExportJSON()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	// 0600: exported memories are personal data
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write memory export: %w", err)
	}
	return path, nil
}

// ImportJSON validates an export payload and feeds each entry through
// the same dedup-append path as extraction. Returns the number of
// memories actually added.
func (p *Pipeline) ImportJSON(ctx context.Context, data []byte) (int, error) {
	var export Export
	if err := json.Unmarshal(data, &export); err != nil {
		return 0, fmt.Errorf("invalid memory file: %w", err)
	}
	if export.Memories == nil {
		return 0, fmt.Errorf("invalid memory file format: missing memories list")
	}

	return p.AppendFacts(ctx, export.Memories, false)
}

// ImportFromFile reads path and imports its contents.
func (p *Pipeline) ImportFromFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read memory file: %w", err)
	}
	return p.ImportJSON(ctx, data)
}
