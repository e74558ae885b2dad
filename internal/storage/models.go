// Package storage provides the chunk data model and the vector store engines
// backing retrieval.
package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Common errors
var (
	ErrNotFound          = errors.New("record not found")
	ErrInvalidChunk      = errors.New("invalid chunk")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrEmptyFilter       = errors.New("delete requires a non-empty filter")
)

// DocType classifies the source document format.
type DocType string

const (
	DocTypePDF     DocType = "pdf"
	DocTypeWord    DocType = "word"
	DocTypeExcel   DocType = "excel"
	DocTypeUnknown DocType = "unknown"
)

// PDFKind classifies a PDF by text density.
type PDFKind string

const (
	PDFKindText    PDFKind = "TEXT_PDF"
	PDFKindScanned PDFKind = "SCANNED_PDF"
	PDFKindDrawing PDFKind = "DRAWING_PDF"
	PDFKindUnknown PDFKind = "UNKNOWN"
)

// ModuleType is the project module a document belongs to.
type ModuleType string

const (
	ModulePanel   ModuleType = "panel"
	ModuleTrench  ModuleType = "trench"
	ModuleDCCable ModuleType = "dc_cable"
	ModuleQA      ModuleType = "qa"
	ModuleGeneric ModuleType = "generic"
)

// Valid reports whether m is a known module type. The empty value is valid.
func (m ModuleType) Valid() bool {
	switch m {
	case "", ModulePanel, ModuleTrench, ModuleDCCable, ModuleQA, ModuleGeneric:
		return true
	}
	return false
}

// ChunkMetadata is the flat metadata carried by every chunk.
type ChunkMetadata struct {
	DocName     string            `json:"doc_name"`
	DocType     DocType           `json:"doc_type,omitempty"`
	PDFKind     PDFKind           `json:"pdf_kind,omitempty"`
	Page        int               `json:"page,omitempty"`
	Sheet       string            `json:"sheet,omitempty"`
	Section     string            `json:"section,omitempty"`
	SectionType string            `json:"section_type,omitempty"` // title, references, toc, table
	TableNum    int               `json:"table_num,omitempty"`
	RowNum      int               `json:"row_num,omitempty"`
	ChunkIndex  int               `json:"chunk_index,omitempty"`
	DocumentID  string            `json:"document_id,omitempty"`
	ProjectID   string            `json:"project_id,omitempty"`
	ModuleType  ModuleType        `json:"module_type,omitempty"`
	Domain      string            `json:"domain,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Location returns "Page N", "Sheet: X" or "" for the chunk position.
// Sheet wins over page, matching how spreadsheets are cited.
func (m ChunkMetadata) Location() string {
	if m.Sheet != "" {
		return "Sheet: " + m.Sheet
	}
	if m.Page > 0 {
		return fmt.Sprintf("Page %d", m.Page)
	}
	return ""
}

// Source formats the citation for the chunk: "doc (Page N)", "doc (Sheet: X)"
// or the bare document name.
func (m ChunkMetadata) Source() string {
	name := m.DocName
	if name == "" {
		name = "Unknown Document"
	}
	if m.Page > 0 {
		return fmt.Sprintf("%s (Page %d)", name, m.Page)
	}
	if m.Sheet != "" {
		return fmt.Sprintf("%s (Sheet: %s)", name, m.Sheet)
	}
	return name
}

// Chunk is a unit of ingested text. Chunks are immutable once stored.
type Chunk struct {
	ID        string        `json:"id"`
	Text      string        `json:"text"`
	Embedding []float32     `json:"embedding,omitempty"`
	Metadata  ChunkMetadata `json:"metadata"`
	Origin    Origin        `json:"-"`
}

// Normalize fills derivable fields: doc type from the file extension and the
// origin variant from section type and the text markers.
func (c Chunk) Normalize() Chunk {
	if c.Metadata.DocType == "" {
		c.Metadata.DocType = DocTypeFromName(c.Metadata.DocName)
	}
	if c.Origin == nil {
		c.Origin = ParseOrigin(c.Text, c.Metadata.SectionType)
	}
	return c
}

// Validate checks the invariants the store relies on.
func (c Chunk) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidChunk)
	}
	if strings.TrimSpace(c.Text) == "" {
		return fmt.Errorf("%w: empty text for %s", ErrInvalidChunk, c.ID)
	}
	if !c.Metadata.ModuleType.Valid() {
		return fmt.Errorf("%w: unknown module type %q", ErrInvalidChunk, c.Metadata.ModuleType)
	}
	return nil
}

// Result is a retrieved chunk with its score. Larger scores are better and
// are not bounded to [0,1] once boosts are applied. Results are passed by
// value; use WithScore to derive a rescored copy.
type Result struct {
	ID       string
	Text     string
	Metadata ChunkMetadata
	Origin   Origin
	Score    float64
}

// WithScore returns a copy of r with a new score.
func (r Result) WithScore(score float64) Result {
	r.Score = score
	return r
}

// Source returns the formatted citation of the result's chunk.
func (r Result) Source() string {
	return r.Metadata.Source()
}

// Kind returns the origin kind, defaulting to narrative.
func (r Result) Kind() OriginKind {
	if r.Origin == nil {
		return OriginNarrative
	}
	return r.Origin.Kind()
}

// ResultFromChunk builds a result record from a stored chunk.
func ResultFromChunk(c Chunk, score float64) Result {
	c = c.Normalize()
	return Result{
		ID:       c.ID,
		Text:     c.Text,
		Metadata: c.Metadata,
		Origin:   c.Origin,
		Score:    score,
	}
}

// Filter restricts queries, scans and deletes. Zero fields match everything.
type Filter struct {
	ProjectID  string     `json:"project_id,omitempty"`
	ModuleType ModuleType `json:"module_type,omitempty"`
	DocumentID string     `json:"document_id,omitempty"`
	DocName    string     `json:"doc_name,omitempty"`
}

// IsEmpty reports whether no field is set.
func (f Filter) IsEmpty() bool {
	return f == Filter{}
}

// Matches reports whether the metadata satisfies the filter.
func (f Filter) Matches(m ChunkMetadata) bool {
	if f.ProjectID != "" && m.ProjectID != f.ProjectID {
		return false
	}
	if f.ModuleType != "" && m.ModuleType != f.ModuleType {
		return false
	}
	if f.DocumentID != "" && m.DocumentID != f.DocumentID {
		return false
	}
	if f.DocName != "" && m.DocName != f.DocName {
		return false
	}
	return true
}

// Key returns a stable string form used in cache keys.
func (f Filter) Key() string {
	return strings.Join([]string{f.ProjectID, string(f.ModuleType), f.DocumentID, f.DocName}, "|")
}

// DocTypeFromName derives the document type from a file name extension.
func DocTypeFromName(name string) DocType {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return DocTypePDF
	case ".xlsx", ".xls":
		return DocTypeExcel
	case ".docx":
		return DocTypeWord
	default:
		return DocTypeUnknown
	}
}
