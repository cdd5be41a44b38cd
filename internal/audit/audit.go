package audit

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Archiver keeps raw payloads (catalog imports, drift reports) as JSON files
// next to the database so bulk changes can be traced back to their input.
type Archiver struct {
	Dir string
}

func NewArchiver(dir string) *Archiver {
	return &Archiver{
		Dir: dir,
	}
}

// SaveJSON writes data to <dir>/<kind>-<date>-<uuid>.json and returns the
// file name.
func (a *Archiver) SaveJSON(kind string, data any) (string, error) {
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	filename := fmt.Sprintf("%s-%s-%s.json", kind, time.Now().UTC().Format("20060102T150405"), uuid.New().String())
	path := filepath.Join(a.Dir, filename)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal data to JSON: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0o644); err != nil {
		return "", fmt.Errorf("failed to write archive file: %w", err)
	}

	log.Printf("[AUDIT] Archived %s payload to %s", kind, path)
	return filename, nil
}
