package sparql

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Binding is a single variable binding in a SPARQL JSON result row.
type Binding struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

// Row maps variable names to bindings. Absent variables (unbound OPTIONALs)
// are simply missing from the map; accessors report that through their
// ok return instead of a zero value masquerading as data.
type Row map[string]Binding

// Value returns the raw value of a binding and whether it was bound.
func (r Row) Value(name string) (string, bool) {
	b, ok := r[name]
	if !ok {
		return "", false
	}
	return b.Value, true
}

// Int parses a bound value as an integer.
func (r Row) Int(name string) (int, bool) {
	b, ok := r[name]
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(b.Value)
	if err != nil {
		return 0, false
	}
	return i, true
}

// Time parses a bound value as an xsd:dateTime.
func (r Row) Time(name string) (time.Time, bool) {
	b, ok := r[name]
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, b.Value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type resultSet struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []Row `json:"bindings"`
	} `json:"results"`
}

// DecodeRows parses the application/sparql-results+json format.
func DecodeRows(data []byte) ([]Row, error) {
	var rs resultSet
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse SPARQL result set: %w", err)
	}
	return rs.Results.Bindings, nil
}
