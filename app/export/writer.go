package export

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kanselarij/public-export-service/app/sparql"
)

// WriteGraphToFile serializes all triples of a graph to a Turtle file,
// paging through the graph in CONSTRUCT batches. The data lands in a .tmp
// file first and is renamed into place only when complete. A companion
// .graph sidecar records the logical target graph the triples belong to,
// for downstream loading. A graph without triples writes nothing and
// returns a zero count.
func WriteGraphToFile(ctx context.Context, client sparql.ClientInterface, graph, file, targetGraph string, batchSize int) (int, error) {
	count, err := client.CountTriples(ctx, graph)
	if err != nil {
		return 0, fmt.Errorf("failed to count triples of graph <%s>: %w", graph, err)
	}
	if count == 0 {
		return 0, nil
	}

	tmpFile := file + ".tmp"
	out, err := os.OpenFile(tmpFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to create export file: %w", err)
	}

	for offset := 0; offset < count; offset += batchSize {
		query := fmt.Sprintf(`CONSTRUCT {
  ?s ?p ?o
}
WHERE {
  GRAPH %s {
    ?s ?p ?o .
  }
}
LIMIT %d OFFSET %d`, sparql.EscapeURI(graph), batchSize, offset)

		data, err := client.ConstructTurtle(ctx, query)
		if err != nil {
			out.Close()
			os.Remove(tmpFile)
			return 0, fmt.Errorf("failed to construct batch at offset %d of graph <%s>: %w", offset, graph, err)
		}

		if _, err := out.Write(data); err != nil {
			out.Close()
			os.Remove(tmpFile)
			return 0, fmt.Errorf("failed to write export file: %w", err)
		}
		if _, err := out.Write([]byte("\n")); err != nil {
			out.Close()
			os.Remove(tmpFile)
			return 0, fmt.Errorf("failed to write export file: %w", err)
		}
	}

	if err := out.Close(); err != nil {
		os.Remove(tmpFile)
		return 0, fmt.Errorf("failed to close export file: %w", err)
	}
	if err := os.Rename(tmpFile, file); err != nil {
		os.Remove(tmpFile)
		return 0, fmt.Errorf("failed to move export file into place: %w", err)
	}

	sidecar := strings.TrimSuffix(file, ".ttl") + ".graph"
	if err := os.WriteFile(sidecar, []byte(targetGraph), 0644); err != nil {
		return 0, fmt.Errorf("failed to write graph sidecar: %w", err)
	}

	return count, nil
}
