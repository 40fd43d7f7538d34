// Package artifact persists each pipeline stage's output as a JSON file so a
// run can be inspected or replayed after the fact.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// Save writes one stage snapshot and returns the file path. Files are named
// <date>_<stage>_<uuid>.json so a directory listing reads chronologically.
func (s *Store) Save(traceID, stage string, payload any) (string, error) {
	envelope := map[string]any{
		"trace_id": traceID,
		"stage":    stage,
		"saved_at": time.Now().UTC().Format(time.RFC3339),
		"payload":  payload,
	}
	blob, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode %s artifact: %w", stage, err)
	}

	name := fmt.Sprintf("%s_%s_%s.json", time.Now().UTC().Format("20060102T150405"), stage, uuid.NewString())
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return "", fmt.Errorf("write %s artifact: %w", stage, err)
	}
	return path, nil
}

// Load reads a saved artifact's payload back.
func (s *Store) Load(path string, payload any) error {
	blob, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var envelope struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(blob, &envelope); err != nil {
		return fmt.Errorf("decode artifact %s: %w", filepath.Base(path), err)
	}
	return json.Unmarshal(envelope.Payload, payload)
}
