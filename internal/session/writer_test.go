package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okoval/grocery-price-scraper/internal/models"
)

func sampleSession(t *testing.T) *models.ScrapeSession {
	t.Helper()
	run := models.NewRunContext("fora", "dairy", "UAH", 3,
		time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC))
	session := models.NewSession(run)

	price := 45.90
	session.Items = append(session.Items, run.Listing(models.RawItem{
		URL:         "https://fora.ua/product/moloko-1",
		ProductName: "Молоко 2.5% 1л",
		PriceText:   "45,90 грн",
	}, &price))
	session.Fails = append(session.Fails, models.PageFailure{
		Page:  2,
		URL:   "https://fora.ua/category/moloko-2656?page=2",
		Error: "net::ERR_TIMED_OUT",
	})

	return session
}

func TestWriteAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewWriter(dir)
	require.NoError(t, err)

	session := sampleSession(t)
	path, err := writer.Write(session)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "fora_dairy_20250310T083000Z.json"), path)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, session.SessionID, loaded.SessionID)
	require.Len(t, loaded.Items, 1)
	require.NotNil(t, loaded.Items[0].Price)
	assert.InDelta(t, 45.90, *loaded.Items[0].Price, 0.0001)
	require.Len(t, loaded.Fails, 1)
	assert.Equal(t, 2, loaded.Fails[0].Page)
}

func TestWriteEmptySessionMarshalsEmptyArrays(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewWriter(dir)
	require.NoError(t, err)

	run := models.NewRunContext("novus", "dairy", "UAH", 1, time.Now())
	path, err := writer.Write(models.NewSession(run))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.JSONEq(t, "[]", string(raw["items"]))
	assert.JSONEq(t, "[]", string(raw["fails"]))
}

func TestWriteLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewWriter(dir)
	require.NoError(t, err)

	_, err = writer.Write(sampleSession(t))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotContains(t, entries[0].Name(), ".tmp")
}

func TestListReturnsOnlyArtifacts(t *testing.T) {
	dir := t.TempDir()
	writer, err := NewWriter(dir)
	require.NoError(t, err)

	_, err = writer.Write(sampleSession(t))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	paths, err := List(dir)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Contains(t, paths[0], "fora_dairy_20250310T083000Z.json")
}
