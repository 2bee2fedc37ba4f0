package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/okoval/grocery-price-scraper/internal/models"
)

// Writer persists finished scrape sessions as JSON artifacts in one
// directory. Files are written via a temp file and rename so readers
// never observe a partial artifact.
type Writer struct {
	dir string
}

func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Filename derives the artifact name from the session identity, so a
// directory listing sorts chronologically per site and category.
func Filename(session *models.ScrapeSession) string {
	return fmt.Sprintf("%s_%s_%s.json", session.Site, session.Category, session.SessionID)
}

// Write persists one session and returns the artifact path.
func (w *Writer) Write(session *models.ScrapeSession) (string, error) {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}

	path := filepath.Join(w.dir, Filename(session))
	tmpPath := path + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write session artifact: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("finalize session artifact: %w", err)
	}

	return path, nil
}

// Load reads one session artifact back.
func Load(path string) (*models.ScrapeSession, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session artifact: %w", err)
	}

	var session models.ScrapeSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("parse session artifact %s: %w", path, err)
	}

	return &session, nil
}

// List returns the session artifact paths under dir in name order,
// which is chronological per site and category.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list session directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)

	return paths, nil
}
