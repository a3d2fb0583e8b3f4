package ingestion

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/policykb/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAudit(t *testing.T, data []byte) [][]string {
	t.Helper()
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return records
}

func TestAuditLog_Write(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewAuditLog(&buf)
	require.NoError(t, err)

	folder := snapshot.Folder{
		Name:      "HandHygiene_20240101000000000000",
		Title:     "HandHygiene",
		Timestamp: "20240101000000000000",
		Path:      "/data/HandHygiene_20240101000000000000",
	}
	markdown := "See [the form](https://example.org/form.pdf) and [policy index](https://example.org/policies) " +
		"or [home](https://example.org/)."
	require.NoError(t, log.Write(Result{
		Folder:  folder,
		Status:  StatusCreated,
		Reason:  "new title",
		Stored:  true,
		Content: &snapshot.Content{Markdown: markdown, Text: "wash hands", SourceURL: "https://example.org/hygiene"},
	}))
	require.NoError(t, log.Write(Result{
		Folder: folder,
		Status: StatusErrored,
		Err:    errors.New("missing snapshot content"),
	}))
	require.NoError(t, log.Close())

	records := readAudit(t, buf.Bytes())
	require.Len(t, records, 3)
	assert.Equal(t, auditHeader, records[0])

	assert.Equal(t, []string{
		"https://example.org/hygiene",
		folder.Path,
		"true",
		"3",
		"https://example.org/form.pdf",
		"https://example.org/policies",
		"20240101000000000000",
		"true",
		"HandHygiene",
		filepath.Join(folder.Path, snapshot.MarkdownFile),
		"new title",
	}, records[1])

	assert.Equal(t, "", records[2][0])
	assert.Equal(t, "false", records[2][2])
	assert.Equal(t, "0", records[2][3])
	assert.Equal(t, "false", records[2][7])
	assert.Equal(t, "missing snapshot content", records[2][10])
}

func TestOpenAuditLog_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.csv")

	for i := 0; i < 2; i++ {
		log, err := OpenAuditLog(path)
		require.NoError(t, err)
		require.NoError(t, log.Write(Result{Folder: snapshot.Folder{Title: "HandHygiene"}, Reason: "new title"}))
		require.NoError(t, log.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	records := readAudit(t, data)
	require.Len(t, records, 3, "header is written once")
	assert.Equal(t, auditHeader, records[0])
}
