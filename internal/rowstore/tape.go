package rowstore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Tape is the durable backing of a store. The persisted layout mirrors
// the in-memory one: the first record is the header (the ordered
// field-name list), every subsequent record is one row's values in header
// order.
//
// Any durable key/row store with scan, append, and rewrite suffices;
// FileTape is the flat-file implementation shipped with the service.
type Tape interface {
	// Load replays all persisted rows. The persisted header must match
	// the given schema.
	Load(schema Schema) ([]Record, error)

	// Append persists one new row.
	Append(schema Schema, row Record) error

	// Rewrite replaces the entire persisted content with the given rows.
	// Used after updates and deletes.
	Rewrite(schema Schema, rows []Record) error
}

// FileTape persists a store as line-delimited JSON arrays. Line one is the
// header array; each further line is a row's values in header order.
type FileTape struct {
	mu   sync.Mutex
	path string
}

// NewFileTape creates a tape at path, creating parent directories as
// needed.
func NewFileTape(path string) (*FileTape, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("tape %s: %w", path, err)
	}
	return &FileTape{path: path}, nil
}

func (t *FileTape) Load(schema Schema) ([]Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Open(t.path)
	if os.IsNotExist(err) {
		// Fresh store: write the header so the file always leads with it.
		return nil, t.writeAllLocked(schema, nil)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	if !sc.Scan() {
		return nil, t.writeAllLocked(schema, nil)
	}
	var header []string
	if err := json.Unmarshal(sc.Bytes(), &header); err != nil {
		return nil, fmt.Errorf("tape %s: malformed header: %w", t.path, err)
	}
	want := schema.FieldNames()
	if len(header) != len(want) {
		return nil, fmt.Errorf("tape %s: header has %d fields, schema has %d",
			t.path, len(header), len(want))
	}
	for i := range want {
		if header[i] != want[i] {
			return nil, fmt.Errorf("tape %s: header field %d is %q, schema declares %q",
				t.path, i, header[i], want[i])
		}
	}

	var rows []Record
	line := 1
	for sc.Scan() {
		line++
		var values []any
		if err := json.Unmarshal(sc.Bytes(), &values); err != nil {
			return nil, fmt.Errorf("tape %s: line %d: %w", t.path, line, err)
		}
		if len(values) != len(header) {
			return nil, fmt.Errorf("tape %s: line %d has %d values, header has %d",
				t.path, line, len(values), len(header))
		}
		row := make(Record, len(header))
		for i, name := range header {
			row[name] = values[i]
		}
		rows = append(rows, row)
	}
	return rows, sc.Err()
}

func (t *FileTape) Append(schema Schema, row Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return writeRow(f, schema, row)
}

func (t *FileTape) Rewrite(schema Schema, rows []Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeAllLocked(schema, rows)
}

// writeAllLocked rewrites through a temp file and rename so a crash mid
// rewrite never leaves a truncated tape.
func (t *FileTape) writeAllLocked(schema Schema, rows []Record) error {
	tmp := t.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)

	header, err := json.Marshal(schema.FieldNames())
	if err != nil {
		f.Close()
		return err
	}
	if _, err := w.Write(append(header, '\n')); err != nil {
		f.Close()
		return err
	}
	for _, row := range rows {
		if err := writeRow(w, schema, row); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, t.path)
}

func writeRow(w interface{ Write([]byte) (int, error) }, schema Schema, row Record) error {
	values := make([]any, 0, len(schema.fields))
	for _, f := range schema.fields {
		values = append(values, row[f.Name])
	}
	line, err := json.Marshal(values)
	if err != nil {
		return err
	}
	_, err = w.Write(append(line, '\n'))
	return err
}
