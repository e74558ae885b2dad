package storage

import (
	"encoding/json"
	"fmt"
	"strings"
)

// OriginKind tags the structural origin of a chunk.
type OriginKind string

const (
	OriginTabular   OriginKind = "tabular"
	OriginNarrative OriginKind = "narrative"
	OriginTitle     OriginKind = "title"
	OriginReference OriginKind = "reference"
)

// Origin is the typed variant describing where a chunk's text came from.
// Implementations are Tabular, Narrative, Title and Reference.
type Origin interface {
	Kind() OriginKind
	isOrigin()
}

// Field is one key/value cell of a tabular row.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Tabular is a spreadsheet or PDF table row.
type Tabular struct {
	Fields []Field
}

// Narrative is free running text.
type Narrative struct {
	Body string
}

// Title is a title or table-of-contents block.
type Title struct{}

// Reference is a references or bibliography block.
type Reference struct{}

func (Tabular) Kind() OriginKind   { return OriginTabular }
func (Narrative) Kind() OriginKind { return OriginNarrative }
func (Title) Kind() OriginKind     { return OriginTitle }
func (Reference) Kind() OriginKind { return OriginReference }

func (Tabular) isOrigin()   {}
func (Narrative) isOrigin() {}
func (Title) isOrigin()     {}
func (Reference) isOrigin() {}

// Get returns the value of the first field whose key equals name, ignoring case.
func (t Tabular) Get(name string) (string, bool) {
	for _, f := range t.Fields {
		if strings.EqualFold(f.Key, name) {
			return f.Value, true
		}
	}
	return "", false
}

const (
	dataMarker    = "DATA:"
	contentMarker = "CONTENT:"
)

// ParseOrigin derives the origin variant from the ingestion section type and
// the SOURCE/DATA/CONTENT text convention.
func ParseOrigin(text, sectionType string) Origin {
	switch strings.ToLower(sectionType) {
	case "title", "toc":
		return Title{}
	case "references":
		return Reference{}
	}

	if idx := strings.Index(text, dataMarker); idx >= 0 {
		if fields := ParseFields(text[idx+len(dataMarker):]); len(fields) > 0 {
			return Tabular{Fields: fields}
		}
	}

	if idx := strings.Index(text, contentMarker); idx >= 0 {
		return Narrative{Body: strings.TrimSpace(text[idx+len(contentMarker):])}
	}
	return Narrative{Body: strings.TrimSpace(text)}
}

// ParseFields parses "key: value, key: value" into ordered fields. A segment
// without its own "key: " prefix is treated as part of the previous value, so
// values such as "1,500 V" survive.
func ParseFields(data string) []Field {
	data = strings.TrimSpace(data)
	if nl := strings.IndexByte(data, '\n'); nl >= 0 {
		data = strings.TrimSpace(data[:nl])
	}
	if data == "" {
		return nil
	}

	var fields []Field
	for _, seg := range strings.Split(data, ",") {
		key, value, ok := splitField(seg)
		if ok {
			fields = append(fields, Field{Key: key, Value: value})
			continue
		}
		if len(fields) > 0 {
			last := &fields[len(fields)-1]
			last.Value = strings.TrimSpace(last.Value + "," + seg)
		}
	}
	return fields
}

func splitField(seg string) (string, string, bool) {
	idx := strings.Index(seg, ":")
	if idx <= 0 {
		return "", "", false
	}
	key := strings.TrimSpace(seg[:idx])
	if key == "" || strings.ContainsAny(key, "|") {
		return "", "", false
	}
	return key, strings.TrimSpace(seg[idx+1:]), true
}

type originRecord struct {
	Kind   OriginKind `json:"kind"`
	Fields []Field    `json:"fields,omitempty"`
	Body   string     `json:"body,omitempty"`
}

// MarshalOrigin encodes an origin for persistence.
func MarshalOrigin(o Origin) ([]byte, error) {
	rec := originRecord{Kind: OriginNarrative}
	switch v := o.(type) {
	case nil:
	case Tabular:
		rec.Kind = OriginTabular
		rec.Fields = v.Fields
	case Narrative:
		rec.Body = v.Body
	case Title:
		rec.Kind = OriginTitle
	case Reference:
		rec.Kind = OriginReference
	default:
		return nil, fmt.Errorf("unknown origin %T", o)
	}
	return json.Marshal(rec)
}

// UnmarshalOrigin decodes an origin written by MarshalOrigin.
func UnmarshalOrigin(data []byte) (Origin, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var rec originRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode origin: %w", err)
	}
	switch rec.Kind {
	case OriginTabular:
		return Tabular{Fields: rec.Fields}, nil
	case OriginNarrative, "":
		return Narrative{Body: rec.Body}, nil
	case OriginTitle:
		return Title{}, nil
	case OriginReference:
		return Reference{}, nil
	default:
		return nil, fmt.Errorf("decode origin: unknown kind %q", rec.Kind)
	}
}
