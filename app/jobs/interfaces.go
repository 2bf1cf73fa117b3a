package jobs

import (
	"context"
	"time"
)

// StoreInterface is the job queue contract consumed by the runner and the
// HTTP handlers.
type StoreInterface interface {
	Create(ctx context.Context, jobID, sessionURI string, sessionDate time.Time, scope []string, dn *DocumentNotification) error
	Get(ctx context.Context, jobID string) (*Job, error)
	UpdateStatus(ctx context.Context, jobID, status string) error
	AttachOutput(ctx context.Context, jobID, graph, file string) error
	NextScheduled(ctx context.Context) (*Job, error)
	CountByStatus(ctx context.Context, status string) (int, error)
}

var _ StoreInterface = (*Store)(nil)

// ExportPipeline executes the export for one job and returns the
// (graph, file) pairs it produced.
type ExportPipeline interface {
	Run(ctx context.Context, job *Job) ([]Output, error)
}

// DeltaNotifier creates the downstream delta-ingestion task for the files
// a completed job produced. Failures are logged by the runner but never
// fed back into job status.
type DeltaNotifier interface {
	CreateTask(ctx context.Context, files []string) error
}
