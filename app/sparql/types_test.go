package sparql

import (
	"testing"
	"time"
)

const sampleResult = `{
  "head": { "vars": ["uri", "number", "created", "mandatee"] },
  "results": {
    "bindings": [
      {
        "uri": { "type": "uri", "value": "http://example.org/item/1" },
        "number": { "type": "typed-literal", "datatype": "http://www.w3.org/2001/XMLSchema#integer", "value": "5" },
        "created": { "type": "typed-literal", "datatype": "http://www.w3.org/2001/XMLSchema#dateTime", "value": "2019-05-02T09:00:00Z" }
      },
      {
        "uri": { "type": "uri", "value": "http://example.org/item/2" },
        "number": { "type": "typed-literal", "datatype": "http://www.w3.org/2001/XMLSchema#integer", "value": "7" },
        "created": { "type": "typed-literal", "datatype": "http://www.w3.org/2001/XMLSchema#dateTime", "value": "2019-05-03T09:00:00Z" },
        "mandatee": { "type": "uri", "value": "http://example.org/mandatee/a" }
      }
    ]
  }
}`

func TestDecodeRows(t *testing.T) {
	rows, err := DecodeRows([]byte(sampleResult))
	if err != nil {
		t.Fatalf("DecodeRows failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}

	uri, ok := rows[0].Value("uri")
	if !ok || uri != "http://example.org/item/1" {
		t.Errorf("Unexpected uri binding: %s (ok=%v)", uri, ok)
	}

	number, ok := rows[0].Int("number")
	if !ok || number != 5 {
		t.Errorf("Unexpected number binding: %d (ok=%v)", number, ok)
	}

	created, ok := rows[0].Time("created")
	if !ok || !created.Equal(time.Date(2019, time.May, 2, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected created binding: %v (ok=%v)", created, ok)
	}
}

func TestDecodeRowsUnboundOptional(t *testing.T) {
	rows, err := DecodeRows([]byte(sampleResult))
	if err != nil {
		t.Fatalf("DecodeRows failed: %v", err)
	}

	// The first row has no mandatee binding; the accessor must say so
	// instead of handing back an empty value that looks bound.
	if v, ok := rows[0].Value("mandatee"); ok {
		t.Errorf("Expected unbound mandatee, got %q", v)
	}
	if v, ok := rows[1].Value("mandatee"); !ok || v != "http://example.org/mandatee/a" {
		t.Errorf("Expected bound mandatee, got %q (ok=%v)", v, ok)
	}
}

func TestDecodeRowsMalformed(t *testing.T) {
	if _, err := DecodeRows([]byte(`{not json`)); err == nil {
		t.Error("Expected an error for malformed JSON")
	}
}

func TestDecodeRowsEmpty(t *testing.T) {
	rows, err := DecodeRows([]byte(`{"head":{"vars":[]},"results":{"bindings":[]}}`))
	if err != nil {
		t.Fatalf("DecodeRows failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Expected no rows, got %d", len(rows))
	}
}

func TestRowIntMalformed(t *testing.T) {
	row := Row{"count": Binding{Type: "literal", Value: "many"}}
	if _, ok := row.Int("count"); ok {
		t.Error("Expected ok=false for a non-numeric value")
	}
}
