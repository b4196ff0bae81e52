package rowstore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestFileTape tests the header-first persisted layout
func TestFileTape(t *testing.T) {
	t.Run("fresh tape writes the header immediately", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "items.jsonl")
		tape, err := NewFileTape(path)
		if err != nil {
			t.Fatalf("Failed to create tape: %v", err)
		}

		rows, err := tape.Load(itemSchema())
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if len(rows) != 0 {
			t.Errorf("Expected no rows on a fresh tape, got %d", len(rows))
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("Failed to read tape file: %v", err)
		}
		first := strings.SplitN(string(data), "\n", 2)[0]
		var header []string
		if err := json.Unmarshal([]byte(first), &header); err != nil {
			t.Fatalf("First line is not a header array: %v", err)
		}
		want := itemSchema().FieldNames()
		if len(header) != len(want) {
			t.Fatalf("Header %v does not match schema %v", header, want)
		}
		for i := range want {
			if header[i] != want[i] {
				t.Errorf("Header field %d: expected %q, got %q", i, want[i], header[i])
			}
		}
	})

	t.Run("store state survives reopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "items.jsonl")
		tape, err := NewFileTape(path)
		if err != nil {
			t.Fatalf("Failed to create tape: %v", err)
		}

		s, err := Open(Options{Name: "items", Schema: itemSchema(), IDPrefix: "itm", Tape: tape})
		if err != nil {
			t.Fatalf("Failed to open store: %v", err)
		}
		id1, _ := s.Append(Record{"itemName": "Mug", "price": 12})
		id2, _ := s.Append(Record{"itemName": "Bowl", "price": 8})
		if err := s.Update(id1, Record{"price": 15}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if err := s.Delete(id2); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		reopened, err := Open(Options{Name: "items", Schema: itemSchema(), IDPrefix: "itm", Tape: tape})
		if err != nil {
			t.Fatalf("Failed to reopen store: %v", err)
		}
		if n := reopened.Count(); n != 1 {
			t.Fatalf("Expected 1 record after reopen, got %d", n)
		}
		rec, err := reopened.Get(id1)
		if err != nil {
			t.Fatalf("Get after reopen failed: %v", err)
		}
		if rec["itemName"] != "Mug" {
			t.Errorf("Expected itemName 'Mug', got %v", rec["itemName"])
		}
		// JSON round trip widens numbers to float64.
		if rec["price"] != float64(15) {
			t.Errorf("Expected price 15, got %v", rec["price"])
		}
	})

	t.Run("header mismatch is rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "items.jsonl")
		if err := os.WriteFile(path, []byte(`["otherId","name"]`+"\n"), 0o644); err != nil {
			t.Fatalf("Failed to seed tape file: %v", err)
		}
		tape, err := NewFileTape(path)
		if err != nil {
			t.Fatalf("Failed to create tape: %v", err)
		}
		if _, err := tape.Load(itemSchema()); err == nil {
			t.Error("Expected header mismatch error, got nil")
		}
	})

	t.Run("malformed row is rejected with its line number", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "items.jsonl")
		header, _ := json.Marshal(itemSchema().FieldNames())
		content := string(header) + "\n{not json}\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("Failed to seed tape file: %v", err)
		}
		tape, err := NewFileTape(path)
		if err != nil {
			t.Fatalf("Failed to create tape: %v", err)
		}
		_, err = tape.Load(itemSchema())
		if err == nil || !strings.Contains(err.Error(), "line 2") {
			t.Errorf("Expected line-numbered error, got %v", err)
		}
	})
}

// brokenTape fails every write, simulating a full or read-only disk.
type brokenTape struct{}

func (brokenTape) Load(Schema) ([]Record, error)  { return nil, nil }
func (brokenTape) Append(Schema, Record) error    { return errors.New("disk full") }
func (brokenTape) Rewrite(Schema, []Record) error { return errors.New("disk full") }

// TestAppendRollsBackOnTapeFailure tests that a failed persist leaves no
// trace in memory: memory and tape must not diverge.
func TestAppendRollsBackOnTapeFailure(t *testing.T) {
	s, err := Open(Options{Name: "items", Schema: itemSchema(), IDPrefix: "itm", Tape: brokenTape{}})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}

	if _, err := s.Append(Record{"itemName": "Mug"}); err == nil {
		t.Fatal("Expected append to fail when the tape write fails")
	}

	if n := s.Count(); n != 0 {
		t.Errorf("Failed append left %d records visible", n)
	}
	if got := s.List("", ""); len(got) != 0 {
		t.Errorf("Failed append visible to List: %v", got)
	}
}
