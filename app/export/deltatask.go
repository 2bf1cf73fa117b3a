package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kanselarij/public-export-service/app/jobs"
	"github.com/kanselarij/public-export-service/app/sparql"
)

// Status concepts of the ttl-to-delta task vocabulary.
const (
	deltaTaskStatusNotStarted = "http://redpencil.data.gift/ttl-to-delta-tasks/8C7E9155-B467-49A4-B047-7764FE5401F7"
	deltaTaskURIBase          = "http://mu.semte.ch/graphs/public/delta-task/"
	deltaFileURIBase          = "http://mu.semte.ch/graphs/public/file/"
)

// DeltaTaskCreator registers a TtlToDeltaTask for the files a completed
// job produced, so the external delta-ingestion process picks them up.
type DeltaTaskCreator struct {
	client      sparql.ClientInterface
	publicGraph string
}

var _ jobs.DeltaNotifier = (*DeltaTaskCreator)(nil)

func NewDeltaTaskCreator(client sparql.ClientInterface, publicGraph string) *DeltaTaskCreator {
	return &DeltaTaskCreator{client: client, publicGraph: publicGraph}
}

func (d *DeltaTaskCreator) CreateTask(ctx context.Context, files []string) error {
	taskURI := deltaTaskURIBase + uuid.New().String()

	var fileTriples strings.Builder
	for _, file := range files {
		fileURI := deltaFileURIBase + uuid.New().String()
		fmt.Fprintf(&fileTriples, "    %s prov:used %s .\n",
			sparql.EscapeURI(taskURI), sparql.EscapeURI(fileURI))
		fmt.Fprintf(&fileTriples, "    %s nie:dataSource %s .\n",
			sparql.EscapeURI(file), sparql.EscapeURI(fileURI))
	}

	query := fmt.Sprintf(`PREFIX adms: <http://www.w3.org/ns/adms#>
PREFIX rdfs: <http://www.w3.org/2000/01/rdf-schema#>
PREFIX task: <http://redpencil.data.gift/vocabularies/tasks/>
PREFIX prov: <http://www.w3.org/ns/prov#>
PREFIX nie: <http://www.semanticdesktop.org/ontologies/2007/01/19/nie#>
PREFIX ext: <http://mu.semte.ch/vocabularies/ext/>
INSERT DATA {
  GRAPH %s {
    %s a ext:TtlToDeltaTask ;
      rdfs:label %s ;
      task:numberOfRetries 0 ;
      adms:status %s .
%s  }
}`,
		sparql.EscapeURI(d.publicGraph),
		sparql.EscapeURI(taskURI),
		sparql.EscapeString("Public export delta task"),
		sparql.EscapeURI(deltaTaskStatusNotStarted),
		fileTriples.String())

	if err := d.client.Update(ctx, query); err != nil {
		return fmt.Errorf("failed to create ttl-to-delta task: %w", err)
	}
	return nil
}
