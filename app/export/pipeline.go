package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kanselarij/public-export-service/app/catalog"
	"github.com/kanselarij/public-export-service/app/jobs"
	"github.com/kanselarij/public-export-service/app/sparql"
)

const (
	tmpGraphBase        = "http://mu.semte.ch/graphs/tmp/"
	exportGraphBase     = "http://mu.semte.ch/graphs/export/"
	newsItemURIBase     = "http://kanselarij.vo.data.gift/id/nieuwsbrief-infos/"
	notificationURIBase = "http://kanselarij.vo.data.gift/id/document-notificaties/"
)

// Pipeline executes the export stages for one job: session info, news
// items, announcements, documents and the optional document
// notification, in that order. Later stages read entities earlier stages
// staged into the job's scratch graph, so the order is load-bearing.
type Pipeline struct {
	source  sparql.ClientInterface
	working sparql.ClientInterface
	catalog *catalog.Catalog
	store   jobs.StoreInterface
	cfg     Config
}

var _ jobs.ExportPipeline = (*Pipeline)(nil)

func NewPipeline(source, working sparql.ClientInterface, cat *catalog.Catalog, store jobs.StoreInterface, cfg Config) *Pipeline {
	return &Pipeline{
		source:  source,
		working: working,
		catalog: cat,
		store:   store,
		cfg:     cfg,
	}
}

// run-scoped state for one job execution.
type run struct {
	job          *jobs.Job
	tmpGraph     string
	graphBase    string
	fileBase     string
	outputs      []jobs.Output
	writtenFiles []string
}

func (p *Pipeline) Run(ctx context.Context, job *jobs.Job) ([]jobs.Output, error) {
	sessionDate := job.SessionDate

	slog.Info("Generating export", "job", job.ID, "session", job.SessionURI, "sessionDate", sessionDate, "scope", job.Scope)

	if sessionDate.Before(p.cfg.ExportSince) {
		slog.Info("Public export didn't exist yet on session date, nothing will be exported",
			"job", job.ID, "sessionDate", sessionDate)
		return nil, nil
	}

	now := time.Now().UTC()
	timestamp := compactTimestamp(now)

	r := &run{
		job:       job,
		tmpGraph:  tmpGraphBase + timestamp,
		graphBase: exportGraphBase + timestamp,
		fileBase: fmt.Sprintf("%s%s-%s-%s-%s",
			p.cfg.ExportDir, timestamp[:14], timestamp[14:], job.ID, compactTimestamp(sessionDate)),
	}

	outputs, err := p.runStages(ctx, r)
	if err != nil && p.cfg.CleanupFailedExports {
		p.cleanup(r)
	}
	return outputs, err
}

func (p *Pipeline) runStages(ctx context.Context, r *run) ([]jobs.Output, error) {
	job := r.job

	if err := p.exportSessionInfo(ctx, r); err != nil {
		return r.outputs, fmt.Errorf("session-info stage: %w", err)
	}

	agendaURI, err := p.latestAgenda(ctx, job.SessionURI)
	if err != nil {
		return r.outputs, fmt.Errorf("agenda resolution: %w", err)
	}
	if agendaURI == "" {
		slog.Info("No agenda found for session, nothing to export", "job", job.ID, "session", job.SessionURI)
		return r.outputs, nil
	}

	newsGraph := r.graphBase + "-news-items"
	if job.HasScope(jobs.ScopeNewsItems) {
		if err := p.exportNewsItems(ctx, r, agendaURI, newsGraph); err != nil {
			return r.outputs, fmt.Errorf("news-items stage: %w", err)
		}
	}

	announcementsGraph := r.graphBase + "-mededelingen"
	if job.HasScope(jobs.ScopeAnnouncements) {
		if job.SessionDate.After(p.cfg.AnnouncementsSince) {
			if err := p.exportAnnouncements(ctx, r, agendaURI, announcementsGraph); err != nil {
				return r.outputs, fmt.Errorf("announcements stage: %w", err)
			}
		} else {
			slog.Info("Public export of announcements didn't exist yet on session date, skipping",
				"job", job.ID, "sessionDate", job.SessionDate)
		}
	}

	if job.HasScope(jobs.ScopeNewsItems) && job.HasScope(jobs.ScopeAnnouncements) && job.HasScope(jobs.ScopeDocuments) {
		if job.SessionDate.After(p.cfg.DocumentsSince) {
			if err := p.exportDocuments(ctx, r, newsGraph, announcementsGraph); err != nil {
				return r.outputs, fmt.Errorf("documents stage: %w", err)
			}
		} else {
			slog.Info("Public export of documents didn't exist yet on session date, skipping",
				"job", job.ID, "sessionDate", job.SessionDate)
		}
	}

	if job.DocumentNotification != nil {
		if err := p.exportDocumentNotification(ctx, r); err != nil {
			return r.outputs, fmt.Errorf("document-notification stage: %w", err)
		}
	}

	return r.outputs, nil
}

func (p *Pipeline) exportSessionInfo(ctx context.Context, r *run) error {
	graph := r.graphBase + "-session-info"

	if err := p.copyFromSource(ctx, "construct-session-info", map[string]string{
		"sourceGraph": sparql.EscapeURI(p.cfg.SourceGraph),
		"session":     sparql.EscapeURI(r.job.SessionURI),
	}, graph); err != nil {
		return err
	}

	return p.finishStage(ctx, r, graph, "session-info")
}

func (p *Pipeline) latestAgenda(ctx context.Context, sessionURI string) (string, error) {
	query, err := p.catalog.Render("latest-agenda-of-session", map[string]string{
		"sourceGraph": sparql.EscapeURI(p.cfg.SourceGraph),
		"session":     sparql.EscapeURI(sessionURI),
	})
	if err != nil {
		return "", err
	}

	rows, err := p.source.Select(ctx, query)
	if err != nil {
		return "", fmt.Errorf("failed to resolve latest agenda: %w", err)
	}
	if len(rows) == 0 {
		return "", nil
	}

	uri, _ := rows[0].Value("uri")
	return uri, nil
}

func (p *Pipeline) exportNewsItems(ctx context.Context, r *run, agendaURI, graph string) error {
	query, err := p.catalog.Render("procedure-steps-of-agenda", map[string]string{
		"sourceGraph": sparql.EscapeURI(p.cfg.SourceGraph),
		"agenda":      sparql.EscapeURI(agendaURI),
	})
	if err != nil {
		return err
	}

	rows, err := p.source.Select(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to list procedure steps: %w", err)
	}

	slog.Info("Found news items", "job", r.job.ID, "count", len(rows))

	mandatees := make(map[string]bool)
	var mandateeOrder []string

	for _, row := range rows {
		stepURI, ok := row.Value("uri")
		if !ok {
			continue
		}

		if err := p.copyFromSource(ctx, "construct-news-item-for-procedure-step", map[string]string{
			"sourceGraph":   sparql.EscapeURI(p.cfg.SourceGraph),
			"procedurestap": sparql.EscapeURI(stepURI),
			"category":      sparql.EscapeString(CategoryNieuws),
		}, graph); err != nil {
			return err
		}

		if err := p.copyFromSource(ctx, "construct-documents-for-procedure-step", map[string]string{
			"sourceGraph":   sparql.EscapeURI(p.cfg.SourceGraph),
			"procedurestap": sparql.EscapeURI(stepURI),
		}, r.tmpGraph); err != nil {
			return err
		}

		if mandatee, ok := row.Value("mandatee"); ok && !mandatees[mandatee] {
			mandatees[mandatee] = true
			mandateeOrder = append(mandateeOrder, mandatee)
		}
	}

	slog.Info("Found mandatees", "job", r.job.ID, "count", len(mandateeOrder))

	for _, mandatee := range mandateeOrder {
		if err := p.copyFromSource(ctx, "construct-mandatee-person", map[string]string{
			"sourceGraph": sparql.EscapeURI(p.cfg.SourceGraph),
			"mandatee":    sparql.EscapeURI(mandatee),
		}, graph); err != nil {
			return err
		}
	}

	if err := p.linkSessionNewsItems(ctx, graph, r.job.SessionURI); err != nil {
		return err
	}

	if err := p.resolvePriorities(ctx, graph, CategoryNieuws); err != nil {
		return err
	}

	return p.finishStage(ctx, r, graph, "news-items")
}

func (p *Pipeline) exportAnnouncements(ctx context.Context, r *run, agendaURI, graph string) error {
	query, err := p.catalog.Render("announcements-of-agenda", map[string]string{
		"sourceGraph": sparql.EscapeURI(p.cfg.SourceGraph),
		"agenda":      sparql.EscapeURI(agendaURI),
	})
	if err != nil {
		return err
	}

	rows, err := p.source.Select(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to list announcements: %w", err)
	}

	slog.Info("Found mededelingen", "job", r.job.ID, "count", len(rows))

	for _, row := range rows {
		agendapunt, ok := row.Value("agendapunt")
		if !ok {
			continue
		}

		if step, ok := row.Value("procedurestap"); ok {
			// The announcement has a treatment record: copy its real
			// news item.
			if err := p.copyFromSource(ctx, "construct-news-item-for-procedure-step", map[string]string{
				"sourceGraph":   sparql.EscapeURI(p.cfg.SourceGraph),
				"procedurestap": sparql.EscapeURI(step),
				"category":      sparql.EscapeString(CategoryMededeling),
			}, graph); err != nil {
				return err
			}
			if err := p.copyFromSource(ctx, "construct-documents-for-procedure-step", map[string]string{
				"sourceGraph":   sparql.EscapeURI(p.cfg.SourceGraph),
				"procedurestap": sparql.EscapeURI(step),
			}, r.tmpGraph); err != nil {
				return err
			}
		} else {
			// No treatment record: synthesize a news item from the
			// agenda item title.
			newsUUID := uuid.New().String()
			if err := p.copyFromSource(ctx, "construct-news-item-for-agenda-item", map[string]string{
				"sourceGraph": sparql.EscapeURI(p.cfg.SourceGraph),
				"agendapunt":  sparql.EscapeURI(agendapunt),
				"newsUri":     sparql.EscapeURI(newsItemURIBase + newsUUID),
				"newsUuid":    sparql.EscapeString(newsUUID),
			}, graph); err != nil {
				return err
			}
			if err := p.copyFromSource(ctx, "construct-documents-for-agenda-item", map[string]string{
				"sourceGraph": sparql.EscapeURI(p.cfg.SourceGraph),
				"agendapunt":  sparql.EscapeURI(agendapunt),
			}, r.tmpGraph); err != nil {
				return err
			}
		}
	}

	if err := p.linkSessionNewsItems(ctx, graph, r.job.SessionURI); err != nil {
		return err
	}

	if err := p.resolvePriorities(ctx, graph, CategoryMededeling); err != nil {
		return err
	}

	return p.finishStage(ctx, r, graph, "mededelingen")
}

func (p *Pipeline) exportDocuments(ctx context.Context, r *run, newsGraph, announcementsGraph string) error {
	graph := r.graphBase + "-documents"

	query, err := p.catalog.Render("document-containers-in-scratch", map[string]string{
		"graph": sparql.EscapeURI(r.tmpGraph),
	})
	if err != nil {
		return err
	}

	rows, err := p.working.Select(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to list document containers: %w", err)
	}

	slog.Info("Found document containers", "job", r.job.ID, "count", len(rows))

	var versions []string
	for _, row := range rows {
		container, ok := row.Value("uri")
		if !ok {
			continue
		}

		version, err := p.latestVersion(ctx, r.tmpGraph, container)
		if err != nil {
			return err
		}
		if version == "" {
			continue
		}

		query, err := p.catalog.Render("insert-document-and-latest-version", map[string]string{
			"tmpGraph":    sparql.EscapeURI(r.tmpGraph),
			"exportGraph": sparql.EscapeURI(graph),
			"container":   sparql.EscapeURI(container),
			"version":     sparql.EscapeURI(version),
		})
		if err != nil {
			return err
		}
		if err := p.working.Update(ctx, query); err != nil {
			return fmt.Errorf("failed to re-shape document <%s>: %w", container, err)
		}

		versions = append(versions, version)
	}

	for _, itemsGraph := range []string{newsGraph, announcementsGraph} {
		query, err := p.catalog.Render("link-news-items-to-document-version", map[string]string{
			"newsGraph":      sparql.EscapeURI(itemsGraph),
			"tmpGraph":       sparql.EscapeURI(r.tmpGraph),
			"documentsGraph": sparql.EscapeURI(graph),
		})
		if err != nil {
			return err
		}
		if err := p.working.Update(ctx, query); err != nil {
			return fmt.Errorf("failed to link news items to document versions: %w", err)
		}
	}

	for _, version := range versions {
		if err := p.copyFromSource(ctx, "construct-file-triples", map[string]string{
			"sourceGraph": sparql.EscapeURI(p.cfg.SourceGraph),
			"version":     sparql.EscapeURI(version),
		}, graph); err != nil {
			return err
		}
	}

	return p.finishStage(ctx, r, graph, "documents")
}

func (p *Pipeline) latestVersion(ctx context.Context, tmpGraph, container string) (string, error) {
	query, err := p.catalog.Render("latest-version-of-container", map[string]string{
		"graph":             sparql.EscapeURI(tmpGraph),
		"container":         sparql.EscapeURI(container),
		"publicAccessLevel": sparql.EscapeURI(publicAccessLevel),
	})
	if err != nil {
		return "", err
	}

	rows, err := p.working.Select(ctx, query)
	if err != nil {
		return "", fmt.Errorf("failed to resolve latest version of <%s>: %w", container, err)
	}
	if len(rows) == 0 {
		return "", nil
	}

	uri, _ := rows[0].Value("uri")
	return uri, nil
}

func (p *Pipeline) exportDocumentNotification(ctx context.Context, r *run) error {
	graph := r.graphBase + "-document-notification"
	dn := r.job.DocumentNotification

	title := fmt.Sprintf("Documenten ministerraad %s", dn.SessionDate)
	description := fmt.Sprintf("De documenten van deze ministerraad zullen beschikbaar zijn vanaf %s.", dn.PublicationDateTime)

	notificationUUID := uuid.New().String()
	query, err := p.catalog.Render("insert-document-notification", map[string]string{
		"graph":       sparql.EscapeURI(graph),
		"uri":         sparql.EscapeURI(notificationURIBase + notificationUUID),
		"uuid":        sparql.EscapeString(notificationUUID),
		"session":     sparql.EscapeURI(r.job.SessionURI),
		"title":       sparql.EscapeString(title),
		"description": sparql.EscapeString(description),
	})
	if err != nil {
		return err
	}
	if err := p.working.Update(ctx, query); err != nil {
		return fmt.Errorf("failed to insert document notification: %w", err)
	}

	return p.finishStage(ctx, r, graph, "document-notification")
}

// copyFromSource renders a construct specification, runs it against the
// source store and inserts the resulting triples into a working store
// graph.
func (p *Pipeline) copyFromSource(ctx context.Context, specName string, params map[string]string, targetGraph string) error {
	query, err := p.catalog.Render(specName, params)
	if err != nil {
		return err
	}

	ntriples, err := p.source.ConstructNTriples(ctx, query)
	if err != nil {
		return fmt.Errorf("copy %s: %w", specName, err)
	}

	if err := p.working.InsertData(ctx, targetGraph, ntriples); err != nil {
		return fmt.Errorf("copy %s into <%s>: %w", specName, targetGraph, err)
	}
	return nil
}

func (p *Pipeline) linkSessionNewsItems(ctx context.Context, graph, sessionURI string) error {
	query, err := p.catalog.Render("link-session-news-items", map[string]string{
		"graph":   sparql.EscapeURI(graph),
		"session": sparql.EscapeURI(sessionURI),
	})
	if err != nil {
		return err
	}
	if err := p.working.Update(ctx, query); err != nil {
		return fmt.Errorf("failed to link session to news items: %w", err)
	}
	return nil
}

// finishStage serializes a stage's export graph to its file and records
// the (graph, file) pair on the job. A stage without triples produces no
// file and registers nothing.
func (p *Pipeline) finishStage(ctx context.Context, r *run, graph, stage string) error {
	file := fmt.Sprintf("%s-%s.ttl", r.fileBase, stage)

	count, err := WriteGraphToFile(ctx, p.working, graph, file, p.cfg.PublicGraph, p.cfg.BatchSize)
	if err != nil {
		return err
	}
	if count == 0 {
		slog.Debug("Stage produced no triples, skipping file", "stage", stage, "graph", graph)
		return nil
	}

	r.writtenFiles = append(r.writtenFiles, file)

	fileURI := strings.Replace(file, p.cfg.ExportDir, "share://", 1)
	if err := p.store.AttachOutput(ctx, r.job.ID, graph, fileURI); err != nil {
		return err
	}

	r.outputs = append(r.outputs, jobs.Output{Graph: graph, File: fileURI})

	slog.Info("Stage exported", "job", r.job.ID, "stage", stage, "triples", count, "file", file)

	return nil
}

// cleanup removes the files a failed job already wrote, sidecars
// included. Only active when configured; the default leaves orphans in
// place the way the export has historically behaved.
func (p *Pipeline) cleanup(r *run) {
	for _, file := range r.writtenFiles {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove export file of failed job", "file", file, "error", err)
		}
		sidecar := strings.TrimSuffix(file, ".ttl") + ".graph"
		if err := os.Remove(sidecar); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove graph sidecar of failed job", "file", sidecar, "error", err)
		}
	}
}

// compactTimestamp renders a time as the 17 digit form used in graph
// names and file names: yyyymmddhhmmss plus milliseconds.
func compactTimestamp(t time.Time) string {
	t = t.UTC()
	return t.Format("20060102150405") + fmt.Sprintf("%03d", t.Nanosecond()/1e6)
}
