package jobs

import (
	"time"
)

const (
	StatusScheduled = "scheduled"
	StatusStarted   = "started"
	StatusDone      = "done"
	StatusFailed    = "failed"
)

// Scope segment names accepted on job creation.
const (
	ScopeNewsItems     = "news-items"
	ScopeAnnouncements = "announcements"
	ScopeDocuments     = "documents"
)

// Job is one unit of export work, persisted in the working store.
type Job struct {
	ID                   string
	URI                  string
	SessionURI           string
	SessionDate          time.Time
	Status               string
	Scope                []string
	DocumentNotification *DocumentNotification
	Created              time.Time
	Modified             time.Time
	Outputs              []Output
}

// DocumentNotification carries the display dates for the optional
// document-notification pipeline stage. Both values are human-readable
// strings supplied by the client, not timestamps.
type DocumentNotification struct {
	SessionDate         string
	PublicationDateTime string
}

// Output is one (export graph, file) pair a job produced.
type Output struct {
	Graph string
	File  string
}

// HasScope reports whether a scope segment applies to the job. A job
// without an explicit scope covers everything.
func (j *Job) HasScope(segment string) bool {
	if len(j.Scope) == 0 {
		return true
	}
	for _, s := range j.Scope {
		if s == segment {
			return true
		}
	}
	return false
}
