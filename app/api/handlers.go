package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kanselarij/public-export-service/app/catalog"
	"github.com/kanselarij/public-export-service/app/jobs"
	"github.com/kanselarij/public-export-service/app/sparql"
)

func NewHandler(source sparql.ClientInterface, cat *catalog.Catalog, store jobs.StoreInterface,
	runner RunnerInterface, sourceGraph string) *Handler {
	return &Handler{
		source:      source,
		catalog:     cat,
		store:       store,
		runner:      runner,
		sourceGraph: sourceGraph,
	}
}

// ScheduleExport accepts an export request for a session and queues a
// job for it. The response only acknowledges scheduling; progress is
// polled through GetJob.
func (h *Handler) ScheduleExport(c *gin.Context) {
	sessionID := c.Param("uuid")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session uuid is required"})
		return
	}

	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	if err := validateScope(req.Scope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if dn := req.DocumentNotification; dn != nil {
		if dn.SessionDate == "" || dn.DocumentPublicationDateTime == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "documentNotification requires both sessionDate and documentPublicationDateTime"})
			return
		}
	}

	sessionURI, sessionDate, err := h.findSession(c, sessionID)
	if err != nil {
		slog.Error("Failed to look up session", "session", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up session"})
		return
	}
	if sessionURI == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	jobID := uuid.New().String()

	var dn *jobs.DocumentNotification
	if req.DocumentNotification != nil {
		dn = &jobs.DocumentNotification{
			SessionDate:         req.DocumentNotification.SessionDate,
			PublicationDateTime: req.DocumentNotification.DocumentPublicationDateTime,
		}
	}

	if err := h.store.Create(c.Request.Context(), jobID, sessionURI, sessionDate, req.Scope, dn); err != nil {
		slog.Error("Failed to create export job", "session", sessionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to schedule export"})
		return
	}

	slog.Info("Export job scheduled", "job", jobID, "session", sessionURI, "scope", req.Scope)

	h.runner.Poke()

	c.JSON(http.StatusAccepted, gin.H{"jobId": jobID})
}

// GetJob reports job progress. Only a finished job answers 200 with its
// export file; every other state, including an unknown id, answers 406.
func (h *Handler) GetJob(c *gin.Context) {
	jobID := c.Param("uuid")

	job, err := h.store.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			c.JSON(http.StatusNotAcceptable, gin.H{"status": "unknown"})
			return
		}
		slog.Error("Failed to get job", "job", jobID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get job"})
		return
	}

	if job.Status != jobs.StatusDone {
		c.JSON(http.StatusNotAcceptable, gin.H{"status": job.Status})
		return
	}

	response := gin.H{"status": job.Status}
	if len(job.Outputs) > 0 {
		last := job.Outputs[len(job.Outputs)-1]
		response["export"] = last.File
		response["graph"] = last.Graph
	}

	c.JSON(http.StatusOK, response)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := gin.H{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if scheduled, err := h.store.CountByStatus(c.Request.Context(), jobs.StatusScheduled); err == nil {
		health["scheduled_jobs"] = scheduled
	}
	if started, err := h.store.CountByStatus(c.Request.Context(), jobs.StatusStarted); err == nil {
		health["started_jobs"] = started
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) findSession(c *gin.Context, sessionID string) (string, time.Time, error) {
	query, err := h.catalog.Render("session-by-uuid", map[string]string{
		"sourceGraph": sparql.EscapeURI(h.sourceGraph),
		"uuid":        sparql.EscapeString(sessionID),
	})
	if err != nil {
		return "", time.Time{}, err
	}

	rows, err := h.source.Select(c.Request.Context(), query)
	if err != nil {
		return "", time.Time{}, err
	}
	if len(rows) == 0 {
		return "", time.Time{}, nil
	}

	uri, ok := rows[0].Value("uri")
	if !ok {
		return "", time.Time{}, nil
	}
	date, _ := rows[0].Time("geplandeStart")
	return uri, date, nil
}

func validateScope(scope []string) error {
	valid := map[string]bool{
		jobs.ScopeNewsItems:     true,
		jobs.ScopeAnnouncements: true,
		jobs.ScopeDocuments:     true,
	}

	has := make(map[string]bool)
	for _, segment := range scope {
		if !valid[segment] {
			return errors.New("unknown scope segment: " + segment)
		}
		has[segment] = true
	}

	if has[jobs.ScopeDocuments] && (!has[jobs.ScopeNewsItems] || !has[jobs.ScopeAnnouncements]) {
		return errors.New("scope 'documents' requires both 'news-items' and 'announcements'")
	}

	return nil
}
