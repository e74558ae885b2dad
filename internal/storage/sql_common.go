package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// filterClause renders the WHERE clause for f. placeholder formats the n-th
// (1-based) bind parameter for the target dialect.
func filterClause(f Filter, placeholder func(n int) string) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = %s", column, placeholder(len(args))))
	}
	add("project_id", f.ProjectID)
	add("module_type", string(f.ModuleType))
	add("document_id", f.DocumentID)
	add("doc_name", f.DocName)

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// rowScanner is satisfied by *sql.Rows and *sql.Row.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanChunkColumns decodes id, text, metadata json and origin json.
func scanChunkColumns(row rowScanner, extra ...interface{}) (Chunk, error) {
	var (
		c          Chunk
		metaJSON   []byte
		originJSON []byte
	)
	dest := append([]interface{}{&c.ID, &c.Text, &metaJSON, &originJSON}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Chunk{}, err
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &c.Metadata); err != nil {
			return Chunk{}, fmt.Errorf("decode metadata for %s: %w", c.ID, err)
		}
	}
	origin, err := UnmarshalOrigin(originJSON)
	if err != nil {
		return Chunk{}, fmt.Errorf("chunk %s: %w", c.ID, err)
	}
	c.Origin = origin
	return c, nil
}

// encodeChunkColumns returns the json columns for c.
func encodeChunkColumns(c Chunk) (metaJSON, originJSON []byte, err error) {
	metaJSON, err = json.Marshal(c.Metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("encode metadata for %s: %w", c.ID, err)
	}
	originJSON, err = MarshalOrigin(c.Origin)
	if err != nil {
		return nil, nil, fmt.Errorf("encode origin for %s: %w", c.ID, err)
	}
	return metaJSON, originJSON, nil
}

// encodeVector packs a vector as little-endian float32 bytes.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

// decodeVector unpacks bytes written by encodeVector.
func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}
