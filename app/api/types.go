package api

import (
	"github.com/kanselarij/public-export-service/app/catalog"
	"github.com/kanselarij/public-export-service/app/jobs"
	"github.com/kanselarij/public-export-service/app/sparql"
)

// RunnerInterface is the part of the job runner the HTTP layer needs:
// waking it up after scheduling a job.
type RunnerInterface interface {
	Poke()
}

var _ RunnerInterface = (*jobs.Runner)(nil)

type Handler struct {
	source      sparql.ClientInterface
	catalog     *catalog.Catalog
	store       jobs.StoreInterface
	runner      RunnerInterface
	sourceGraph string
}

type exportRequest struct {
	Scope                []string                    `json:"scope"`
	DocumentNotification *documentNotificationParams `json:"documentNotification"`
}

type documentNotificationParams struct {
	SessionDate                 string `json:"sessionDate"`
	DocumentPublicationDateTime string `json:"documentPublicationDateTime"`
}
