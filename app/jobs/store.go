package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kanselarij/public-export-service/app/sparql"
)

const (
	jobsGraph   = "http://mu.semte.ch/graphs/public-export-jobs"
	jobURIBase  = "http://mu.semte.ch/public-export-jobs/"
	queryPrefix = "PREFIX mu: <http://mu.semte.ch/vocabularies/core/>\nPREFIX ext: <http://mu.semte.ch/vocabularies/ext/>\nPREFIX dct: <http://purl.org/dc/terms/>\n"
)

// ErrNotFound is returned by Get for an unknown job id.
var ErrNotFound = errors.New("job not found")

// Store persists export jobs in the working store. It is the sole writer
// of job status; the runner only reads through NextScheduled.
type Store struct {
	client sparql.ClientInterface
}

func NewStore(client sparql.ClientInterface) *Store {
	return &Store{client: client}
}

// Create persists a new job with status scheduled.
func (s *Store) Create(ctx context.Context, jobID, sessionURI string, sessionDate time.Time, scope []string, dn *DocumentNotification) error {
	jobURI := jobURIBase + jobID
	now := time.Now().UTC()

	scopeTriples := ""
	for _, segment := range scope {
		scopeTriples += fmt.Sprintf(";\n      ext:scope %s ", sparql.EscapeString(segment))
	}

	dnTriples := ""
	if dn != nil {
		dnURI := jobURI + "/document-notification"
		dnTriples = fmt.Sprintf(`;
      ext:documentNotification %[1]s .
    %[1]s ext:sessionDate %[2]s ;
      ext:documentPublicationDateTime %[3]s `,
			sparql.EscapeURI(dnURI),
			sparql.EscapeString(dn.SessionDate),
			sparql.EscapeString(dn.PublicationDateTime))
	}

	query := fmt.Sprintf(`%sINSERT DATA {
  GRAPH %s {
    %s a ext:PublicExportJob ;
      mu:uuid %s ;
      ext:zitting %s ;
      ext:zittingDatum %s ;
      ext:status %s ;
      dct:created %s ;
      dct:modified %s %s%s.
  }
}`,
		queryPrefix,
		sparql.EscapeURI(jobsGraph),
		sparql.EscapeURI(jobURI),
		sparql.EscapeString(jobID),
		sparql.EscapeURI(sessionURI),
		sparql.EscapeDateTime(sessionDate),
		sparql.EscapeString(StatusScheduled),
		sparql.EscapeDateTime(now),
		sparql.EscapeDateTime(now),
		scopeTriples,
		dnTriples)

	if err := s.client.Update(ctx, query); err != nil {
		return fmt.Errorf("failed to create job %s: %w", jobID, err)
	}
	return nil
}

// Get reconstructs a job by uuid. When duplicate revisions exist for the
// same id, the most recently modified one wins. That is a compatibility
// shim for duplicate writes, not a guarantee worth relying on.
func (s *Store) Get(ctx context.Context, jobID string) (*Job, error) {
	query := fmt.Sprintf(`%sSELECT ?uri ?status ?zitting ?zittingDatum ?created ?modified ?dnSessionDate ?dnPublicationDateTime
FROM %s
WHERE {
  ?uri a ext:PublicExportJob ;
    mu:uuid %s ;
    ext:status ?status ;
    ext:zitting ?zitting ;
    ext:zittingDatum ?zittingDatum ;
    dct:created ?created ;
    dct:modified ?modified .
  OPTIONAL {
    ?uri ext:documentNotification ?dn .
    ?dn ext:sessionDate ?dnSessionDate ;
      ext:documentPublicationDateTime ?dnPublicationDateTime .
  }
}
ORDER BY DESC(?modified)
LIMIT 1`,
		queryPrefix,
		sparql.EscapeURI(jobsGraph),
		sparql.EscapeString(jobID))

	rows, err := s.client.Select(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	job, err := jobFromRow(jobID, rows[0])
	if err != nil {
		return nil, err
	}

	if job.Scope, err = s.getScope(ctx, job.URI); err != nil {
		return nil, err
	}
	if job.Outputs, err = s.getOutputs(ctx, job.URI); err != nil {
		return nil, err
	}

	return job, nil
}

func jobFromRow(jobID string, row sparql.Row) (*Job, error) {
	job := &Job{ID: jobID}

	var ok bool
	if job.URI, ok = row.Value("uri"); !ok {
		return nil, fmt.Errorf("job %s: missing uri binding", jobID)
	}
	if job.Status, ok = row.Value("status"); !ok {
		return nil, fmt.Errorf("job %s: missing status binding", jobID)
	}
	if job.SessionURI, ok = row.Value("zitting"); !ok {
		return nil, fmt.Errorf("job %s: missing zitting binding", jobID)
	}
	if job.SessionDate, ok = row.Time("zittingDatum"); !ok {
		return nil, fmt.Errorf("job %s: missing or malformed zittingDatum binding", jobID)
	}
	job.Created, _ = row.Time("created")
	job.Modified, _ = row.Time("modified")

	if sessionDate, ok := row.Value("dnSessionDate"); ok {
		publication, _ := row.Value("dnPublicationDateTime")
		job.DocumentNotification = &DocumentNotification{
			SessionDate:         sessionDate,
			PublicationDateTime: publication,
		}
	}

	return job, nil
}

func (s *Store) getScope(ctx context.Context, jobURI string) ([]string, error) {
	query := fmt.Sprintf(`%sSELECT ?scope
FROM %s
WHERE { %s ext:scope ?scope . }`,
		queryPrefix,
		sparql.EscapeURI(jobsGraph),
		sparql.EscapeURI(jobURI))

	rows, err := s.client.Select(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get job scope: %w", err)
	}

	var scope []string
	for _, row := range rows {
		if v, ok := row.Value("scope"); ok {
			scope = append(scope, v)
		}
	}
	return scope, nil
}

func (s *Store) getOutputs(ctx context.Context, jobURI string) ([]Output, error) {
	query := fmt.Sprintf(`%sSELECT ?graph ?file
FROM %s
WHERE {
  %s ext:file ?file .
  OPTIONAL { %s ext:graph ?graph . }
}`,
		queryPrefix,
		sparql.EscapeURI(jobsGraph),
		sparql.EscapeURI(jobURI),
		sparql.EscapeURI(jobURI))

	rows, err := s.client.Select(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get job outputs: %w", err)
	}

	var outputs []Output
	for _, row := range rows {
		file, ok := row.Value("file")
		if !ok {
			continue
		}
		graph, _ := row.Value("graph")
		outputs = append(outputs, Output{Graph: graph, File: file})
	}
	return outputs, nil
}

// UpdateStatus replaces the status and modified timestamp of a job. A
// missing job makes the WHERE clause match nothing and the update a
// silent no-op, preserving the behavior downstream tooling expects.
func (s *Store) UpdateStatus(ctx context.Context, jobID, status string) error {
	query := fmt.Sprintf(`%sWITH %s
DELETE {
  ?job dct:modified ?modified ;
    ext:status ?status .
}
INSERT {
  ?job dct:modified %s ;
    ext:status %s .
}
WHERE {
  ?job a ext:PublicExportJob ;
    mu:uuid %s ;
    dct:modified ?modified ;
    ext:status ?status .
}`,
		queryPrefix,
		sparql.EscapeURI(jobsGraph),
		sparql.EscapeDateTime(time.Now().UTC()),
		sparql.EscapeString(status),
		sparql.EscapeString(jobID))

	if err := s.client.Update(ctx, query); err != nil {
		return fmt.Errorf("failed to update status of job %s to %s: %w", jobID, status, err)
	}
	return nil
}

// AttachOutput appends a produced (graph, file) pair to the job record.
// A job producing several files accumulates one pair per call.
func (s *Store) AttachOutput(ctx context.Context, jobID, graph, file string) error {
	graphTriple := ""
	if graph != "" {
		graphTriple = fmt.Sprintf("?job ext:graph %s .\n  ", sparql.EscapeURI(graph))
	}

	query := fmt.Sprintf(`%sWITH %s
INSERT {
  %s?job ext:file %s .
}
WHERE {
  ?job a ext:PublicExportJob ;
    mu:uuid %s .
}`,
		queryPrefix,
		sparql.EscapeURI(jobsGraph),
		graphTriple,
		sparql.EscapeString(file),
		sparql.EscapeString(jobID))

	if err := s.client.Update(ctx, query); err != nil {
		return fmt.Errorf("failed to attach output to job %s: %w", jobID, err)
	}
	return nil
}

// NextScheduled returns the oldest scheduled job, provided no job is
// currently started. The started check is what keeps a crashed run from
// ever being overtaken: a job stuck in started blocks the queue until an
// operator intervenes.
func (s *Store) NextScheduled(ctx context.Context) (*Job, error) {
	started, err := s.CountByStatus(ctx, StatusStarted)
	if err != nil {
		return nil, err
	}
	if started > 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`%sSELECT ?id
FROM %s
WHERE {
  ?job a ext:PublicExportJob ;
    dct:created ?created ;
    ext:status %s ;
    mu:uuid ?id .
}
ORDER BY ASC(?created)
LIMIT 1`,
		queryPrefix,
		sparql.EscapeURI(jobsGraph),
		sparql.EscapeString(StatusScheduled))

	rows, err := s.client.Select(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to find next scheduled job: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	id, ok := rows[0].Value("id")
	if !ok {
		return nil, fmt.Errorf("scheduled job row misses its id binding")
	}
	return s.Get(ctx, id)
}

// CountByStatus returns the number of jobs currently in a status.
func (s *Store) CountByStatus(ctx context.Context, status string) (int, error) {
	query := fmt.Sprintf(`%sSELECT (COUNT(?job) AS ?count)
FROM %s
WHERE {
  ?job a ext:PublicExportJob ;
    ext:status %s .
}`,
		queryPrefix,
		sparql.EscapeURI(jobsGraph),
		sparql.EscapeString(status))

	rows, err := s.client.Select(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s jobs: %w", status, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	count, _ := rows[0].Int("count")
	return count, nil
}
