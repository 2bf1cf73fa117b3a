package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kanselarij/public-export-service/app/catalog"
	"github.com/kanselarij/public-export-service/app/jobs"
	"github.com/kanselarij/public-export-service/app/sparql"
)

type mockSource struct {
	rows []sparql.Row
	err  error
}

var _ sparql.ClientInterface = (*mockSource)(nil)

func (m *mockSource) Select(_ context.Context, _ string) ([]sparql.Row, error) {
	return m.rows, m.err
}

func (m *mockSource) Update(_ context.Context, _ string) error {
	return errors.New("not implemented")
}

func (m *mockSource) ConstructTurtle(_ context.Context, _ string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (m *mockSource) ConstructNTriples(_ context.Context, _ string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (m *mockSource) InsertData(_ context.Context, _ string, _ []byte) error {
	return errors.New("not implemented")
}

func (m *mockSource) CountTriples(_ context.Context, _ string) (int, error) {
	return 0, errors.New("not implemented")
}

type mockStore struct {
	mu      sync.Mutex
	created []createdJob
	job     *jobs.Job
	getErr  error
}

var _ jobs.StoreInterface = (*mockStore)(nil)

type createdJob struct {
	sessionURI string
	scope      []string
	dn         *jobs.DocumentNotification
}

func (m *mockStore) Create(_ context.Context, _, sessionURI string, _ time.Time, scope []string, dn *jobs.DocumentNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, createdJob{sessionURI: sessionURI, scope: scope, dn: dn})
	return nil
}

func (m *mockStore) Get(_ context.Context, _ string) (*jobs.Job, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.job, nil
}

func (m *mockStore) UpdateStatus(_ context.Context, _, _ string) error {
	return nil
}

func (m *mockStore) AttachOutput(_ context.Context, _, _, _ string) error {
	return nil
}

func (m *mockStore) NextScheduled(_ context.Context) (*jobs.Job, error) {
	return nil, nil
}

func (m *mockStore) CountByStatus(_ context.Context, _ string) (int, error) {
	return 2, nil
}

type mockRunner struct {
	pokes int
}

var _ RunnerInterface = (*mockRunner)(nil)

func (m *mockRunner) Poke() {
	m.pokes++
}

func sessionRow() []sparql.Row {
	return []sparql.Row{{
		"uri":           sparql.Binding{Type: "uri", Value: "http://ex/session/1"},
		"geplandeStart": sparql.Binding{Type: "literal", Value: "2024-05-03T10:00:00Z"},
	}}
}

func newTestServer(t *testing.T, source *mockSource, store *mockStore, runner *mockRunner) http.Handler {
	t.Helper()
	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("Failed to load catalog: %v", err)
	}
	handler := NewHandler(source, cat, store, runner, "http://mu.semte.ch/graphs/organizations/kanselarij")
	return NewServer(handler)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestScheduleExport(t *testing.T) {
	source := &mockSource{rows: sessionRow()}
	store := &mockStore{}
	runner := &mockRunner{}
	server := newTestServer(t, source, store, runner)

	req := httptest.NewRequest(http.MethodPost, "/export/session-uuid-1", strings.NewReader(`{"scope":["news-items","announcements"]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	if jobID, ok := body["jobId"].(string); !ok || jobID == "" {
		t.Errorf("Expected a job id, got %v", body)
	}

	if len(store.created) != 1 {
		t.Fatalf("Expected 1 created job, got %d", len(store.created))
	}
	if store.created[0].sessionURI != "http://ex/session/1" {
		t.Errorf("Unexpected session: %s", store.created[0].sessionURI)
	}
	if len(store.created[0].scope) != 2 {
		t.Errorf("Unexpected scope: %v", store.created[0].scope)
	}
	if runner.pokes != 1 {
		t.Errorf("Expected the runner to be poked once, got %d", runner.pokes)
	}
}

func TestScheduleExportEmptyBody(t *testing.T) {
	source := &mockSource{rows: sessionRow()}
	store := &mockStore{}
	runner := &mockRunner{}
	server := newTestServer(t, source, store, runner)

	req := httptest.NewRequest(http.MethodPost, "/export/session-uuid-1", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202 for an empty body, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.created) != 1 || store.created[0].scope != nil {
		t.Errorf("Expected a job with full scope, got %+v", store.created)
	}
}

func TestScheduleExportUnknownSession(t *testing.T) {
	source := &mockSource{}
	store := &mockStore{}
	server := newTestServer(t, source, store, &mockRunner{})

	req := httptest.NewRequest(http.MethodPost, "/export/nope", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(store.created) != 0 {
		t.Error("Job created for an unknown session")
	}
}

func TestScheduleExportInvalidScope(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown segment", `{"scope":["nonsense"]}`},
		{"documents without items", `{"scope":["documents"]}`},
		{"documents without announcements", `{"scope":["news-items","documents"]}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			source := &mockSource{rows: sessionRow()}
			store := &mockStore{}
			server := newTestServer(t, source, store, &mockRunner{})

			req := httptest.NewRequest(http.MethodPost, "/export/session-uuid-1", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if len(store.created) != 0 {
				t.Error("Job created despite the invalid scope")
			}
		})
	}
}

func TestScheduleExportIncompleteNotification(t *testing.T) {
	source := &mockSource{rows: sessionRow()}
	store := &mockStore{}
	server := newTestServer(t, source, store, &mockRunner{})

	body := `{"documentNotification":{"sessionDate":"vrijdag 03-05-2024"}}`
	req := httptest.NewRequest(http.MethodPost, "/export/session-uuid-1", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestScheduleExportWithNotification(t *testing.T) {
	source := &mockSource{rows: sessionRow()}
	store := &mockStore{}
	server := newTestServer(t, source, store, &mockRunner{})

	body := `{"documentNotification":{"sessionDate":"vrijdag 03-05-2024","documentPublicationDateTime":"vrijdag 10-05-2024 om 14:00"}}`
	req := httptest.NewRequest(http.MethodPost, "/export/session-uuid-1", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.created[0].dn == nil || store.created[0].dn.SessionDate != "vrijdag 03-05-2024" {
		t.Errorf("Notification not passed to the store: %+v", store.created[0].dn)
	}
}

func TestGetJobUnknown(t *testing.T) {
	store := &mockStore{getErr: jobs.ErrNotFound}
	server := newTestServer(t, &mockSource{}, store, &mockRunner{})

	req := httptest.NewRequest(http.MethodGet, "/export/nope", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotAcceptable {
		t.Fatalf("Expected 406, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "unknown" {
		t.Errorf("Expected status unknown, got %v", body)
	}
}

func TestGetJobNotDone(t *testing.T) {
	for _, status := range []string{jobs.StatusScheduled, jobs.StatusStarted, jobs.StatusFailed} {
		store := &mockStore{job: &jobs.Job{ID: "job-1", Status: status}}
		server := newTestServer(t, &mockSource{}, store, &mockRunner{})

		req := httptest.NewRequest(http.MethodGet, "/export/job-1", nil)
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotAcceptable {
			t.Errorf("Status %s: expected 406, got %d", status, rec.Code)
			continue
		}
		if body := decodeBody(t, rec); body["status"] != status {
			t.Errorf("Expected status %s, got %v", status, body)
		}
	}
}

func TestGetJobDone(t *testing.T) {
	store := &mockStore{job: &jobs.Job{
		ID:     "job-1",
		Status: jobs.StatusDone,
		Outputs: []jobs.Output{
			{Graph: "http://ex/graphs/export/1", File: "share://exports/a.ttl"},
			{Graph: "http://ex/graphs/export/2", File: "share://exports/b.ttl"},
		},
	}}
	server := newTestServer(t, &mockSource{}, store, &mockRunner{})

	req := httptest.NewRequest(http.MethodGet, "/export/job-1", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	if body["status"] != jobs.StatusDone {
		t.Errorf("Unexpected status: %v", body["status"])
	}
	if body["export"] != "share://exports/b.ttl" {
		t.Errorf("Expected the most recent export file, got %v", body["export"])
	}
	if body["graph"] != "http://ex/graphs/export/2" {
		t.Errorf("Unexpected graph: %v", body["graph"])
	}
}

func TestGetHealth(t *testing.T) {
	server := newTestServer(t, &mockSource{}, &mockStore{}, &mockRunner{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	body := decodeBody(t, rec)
	if body["timestamp"] == nil {
		t.Error("Health response misses a timestamp")
	}
	if body["scheduled_jobs"] != float64(2) || body["started_jobs"] != float64(2) {
		t.Errorf("Unexpected job counts: %v", body)
	}
}
