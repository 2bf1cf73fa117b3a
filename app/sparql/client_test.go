package sparql

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientSelect(t *testing.T) {
	var gotQuery, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("Failed to parse form: %v", err)
		}
		gotQuery = r.PostFormValue("query")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/sparql-results+json")
		w.Write([]byte(`{"head":{"vars":["s"]},"results":{"bindings":[{"s":{"type":"uri","value":"http://ex/1"}}]}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client(), "test-agent/1.0")

	rows, err := client.Select(context.Background(), "SELECT ?s WHERE { ?s ?p ?o . }")
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}
	if v, _ := rows[0].Value("s"); v != "http://ex/1" {
		t.Errorf("Unexpected binding: %s", v)
	}

	if gotQuery != "SELECT ?s WHERE { ?s ?p ?o . }" {
		t.Errorf("Unexpected query sent: %s", gotQuery)
	}
	if gotAccept != "application/sparql-results+json" {
		t.Errorf("Unexpected Accept header: %s", gotAccept)
	}
}

func TestClientUpdate(t *testing.T) {
	var gotUpdate string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotUpdate = r.PostFormValue("update")
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client(), "test-agent/1.0")

	if err := client.Update(context.Background(), "INSERT DATA { <a> <b> <c> . }"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if gotUpdate != "INSERT DATA { <a> <b> <c> . }" {
		t.Errorf("Unexpected update sent: %s", gotUpdate)
	}
}

func TestClientEndpointError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Virtuoso 42000 Error", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client(), "test-agent/1.0")

	_, err := client.Select(context.Background(), "SELECT ?s WHERE { ?s ?p ?o . }")
	if err == nil {
		t.Fatal("Expected an error")
	}
	if !strings.Contains(err.Error(), "500") || !strings.Contains(err.Error(), "Virtuoso 42000 Error") {
		t.Errorf("Error misses endpoint detail: %v", err)
	}
}

func TestClientInsertDataEmpty(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		requests++
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client(), "test-agent/1.0")

	if err := client.InsertData(context.Background(), "http://ex/g", []byte("  \n")); err != nil {
		t.Fatalf("InsertData failed: %v", err)
	}
	if requests != 0 {
		t.Error("Empty data should not hit the endpoint")
	}
}

func TestClientInsertDataWrapsGraph(t *testing.T) {
	var gotUpdate string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotUpdate = r.PostFormValue("update")
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client(), "test-agent/1.0")

	triples := []byte("<http://ex/s> <http://ex/p> <http://ex/o> .\n")
	if err := client.InsertData(context.Background(), "http://ex/g", triples); err != nil {
		t.Fatalf("InsertData failed: %v", err)
	}
	if !strings.Contains(gotUpdate, "GRAPH <http://ex/g>") {
		t.Errorf("Update misses the target graph:\n%s", gotUpdate)
	}
	if !strings.Contains(gotUpdate, "<http://ex/s> <http://ex/p> <http://ex/o> .") {
		t.Errorf("Update misses the triples:\n%s", gotUpdate)
	}
}

func TestClientCountTriples(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"head":{"vars":["count"]},"results":{"bindings":[{"count":{"type":"typed-literal","datatype":"http://www.w3.org/2001/XMLSchema#integer","value":"1234"}}]}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client(), "test-agent/1.0")

	count, err := client.CountTriples(context.Background(), "http://ex/g")
	if err != nil {
		t.Fatalf("CountTriples failed: %v", err)
	}
	if count != 1234 {
		t.Errorf("Expected 1234, got %d", count)
	}
}
