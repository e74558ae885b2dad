// Package ingest loads pre-chunked records into the chunk store.
package ingest

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cew-ai/assistant/libs/rag-engine/internal/storage"
)

// Record is one chunk as produced by the document chunker. Text may be
// omitted when Fields (a spreadsheet or table row) or Content (free text)
// is given; it is then formatted in the SOURCE/DATA or SOURCE/CONTENT
// convention.
type Record struct {
	ID        string                `json:"id,omitempty"`
	Text      string                `json:"text,omitempty"`
	Embedding []float32             `json:"embedding,omitempty"`
	Metadata  storage.ChunkMetadata `json:"metadata"`
	Fields    []storage.Field       `json:"fields,omitempty"`
	Content   string                `json:"content,omitempty"`
}

// DecodeRecords reads either a JSON array of records or JSON lines.
func DecodeRecords(r io.Reader) ([]Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []Record{}, nil
	}

	if trimmed[0] == '[' {
		var records []Record
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("decode record array: %w", err)
		}
		return records, nil
	}

	var records []Record
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(text, &rec); err != nil {
			return nil, fmt.Errorf("decode record on line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}
	return records, nil
}

// ChunkText returns the stored text of r.
func (r Record) ChunkText() string {
	if strings.TrimSpace(r.Text) != "" {
		return r.Text
	}
	if len(r.Fields) > 0 {
		return FormatRowText(r.Metadata, r.Fields)
	}
	if strings.TrimSpace(r.Content) != "" {
		return FormatContentText(r.Metadata, r.Content)
	}
	return ""
}

// FormatRowText renders a table row as
// "SOURCE: doc | SHEET: s | ROW: n | DATA: k: v, k: v".
func FormatRowText(meta storage.ChunkMetadata, fields []storage.Field) string {
	var b strings.Builder
	b.WriteString(sourceHeader(meta))
	if meta.TableNum > 0 {
		b.WriteString(" | TABLE: " + strconv.Itoa(meta.TableNum))
	}
	if meta.RowNum > 0 {
		b.WriteString(" | ROW: " + strconv.Itoa(meta.RowNum))
	}
	b.WriteString(" | DATA: ")
	for i, f := range fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strings.TrimSpace(f.Key) + ": " + strings.TrimSpace(f.Value))
	}
	return b.String()
}

// FormatContentText renders free text as "SOURCE: doc | PAGE: n | CONTENT:\n...".
func FormatContentText(meta storage.ChunkMetadata, content string) string {
	return sourceHeader(meta) + " | CONTENT:\n" + strings.TrimSpace(content)
}

func sourceHeader(meta storage.ChunkMetadata) string {
	h := "SOURCE: " + meta.DocName
	if meta.Sheet != "" {
		h += " | SHEET: " + meta.Sheet
	}
	if meta.Page > 0 {
		h += " | PAGE: " + strconv.Itoa(meta.Page)
	}
	return h
}

// ContentHash returns the SHA-256 hex digest of text, used to drop
// duplicate chunks within a batch.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
