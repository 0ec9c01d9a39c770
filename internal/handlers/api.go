// Package handlers wires the REST API endpoints.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/alertsync/alertsync/internal/api"
	"github.com/alertsync/alertsync/internal/database"
	"github.com/alertsync/alertsync/internal/middleware"
	"github.com/alertsync/alertsync/internal/reconciler"
	"github.com/alertsync/alertsync/internal/scheduler"
	"github.com/alertsync/alertsync/internal/services"
)

// SyncRunner triggers a reconciliation pass on demand.
type SyncRunner interface {
	Sync(ctx context.Context) (*reconciler.Summary, error)
}

// APIHandler handles the alert, job and sync endpoints.
type APIHandler struct {
	db        *gorm.DB
	alerts    *services.AlertService
	scheduler *scheduler.Scheduler
	syncer    SyncRunner
	version   string
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(db *gorm.DB, alerts *services.AlertService, sched *scheduler.Scheduler, syncer SyncRunner, version string) *APIHandler {
	return &APIHandler{
		db:        db,
		alerts:    alerts,
		scheduler: sched,
		syncer:    syncer,
		version:   version,
	}
}

// SetupRoutes registers all API routes on the mux.
func (h *APIHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /api/info", h.handleInfo)

	mux.HandleFunc("GET /api/alerts", h.handleListAlerts)
	mux.HandleFunc("GET /api/alerts/export", h.handleExportAlerts)
	mux.HandleFunc("GET /api/alerts/{id}", h.handleGetAlert)
	mux.HandleFunc("POST /api/alerts/acknowledge", h.handleAcknowledge)
	mux.HandleFunc("POST /api/alerts/resolve", h.handleResolve)

	mux.HandleFunc("GET /api/jobs", h.handleListJobs)
	mux.HandleFunc("PUT /api/jobs", h.handleUpdateJob)

	mux.HandleFunc("GET /api/settings/notify", h.handleGetNotifySettings)
	mux.HandleFunc("PUT /api/settings/notify", h.handleUpdateNotifySettings)

	mux.HandleFunc("POST /api/sync", h.handleSync)
}

func (h *APIHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	api.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

func (h *APIHandler) handleInfo(w http.ResponseWriter, r *http.Request) {
	stats, err := h.alerts.Stats()
	if err != nil {
		log.Printf("APIHandler: Failed to load stats: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to load stats")
		return
	}
	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"version": h.version,
		"alerts":  stats,
	})
}

func (h *APIHandler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAlertFilter(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	p := api.ParsePagination(r)

	records, total, err := h.alerts.List(filter, p.PerPage, p.Offset())
	if err != nil {
		log.Printf("APIHandler: Failed to list alerts: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to list alerts")
		return
	}
	api.RespondPaginated(w, records, total, p)
}

func (h *APIHandler) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	record, err := h.alerts.Get(r.PathValue("id"))
	if errors.Is(err, services.ErrAlertNotFound) {
		api.RespondError(w, http.StatusNotFound, "Alert not found")
		return
	}
	if err != nil {
		log.Printf("APIHandler: Failed to load alert: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to load alert")
		return
	}
	api.RespondJSON(w, http.StatusOK, record)
}

// AlertActionRequest is the body for acknowledge and resolve actions.
type AlertActionRequest struct {
	AlertIDs []string `json:"alert_ids"`
}

func (h *APIHandler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	h.handleAction(w, r, "acknowledge", h.alerts.Acknowledge)
}

func (h *APIHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	h.handleAction(w, r, "resolve", h.alerts.Resolve)
}

func (h *APIHandler) handleAction(w http.ResponseWriter, r *http.Request, name string,
	action func(context.Context, string, string) (*database.AlertRecord, error)) {

	var req AlertActionRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.AlertIDs) == 0 {
		api.RespondError(w, http.StatusBadRequest, "alert_ids is required")
		return
	}

	actor := middleware.GetUser(r.Context())
	if actor == "" {
		actor = "api"
	}

	updated := 0
	failed := map[string]string{}
	for _, id := range req.AlertIDs {
		if _, err := action(r.Context(), id, actor); err != nil {
			failed[id] = err.Error()
			continue
		}
		updated++
	}

	log.Printf("APIHandler: %s of %d alerts by %s (%d failed)", name, updated, actor, len(failed))
	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"updated": updated,
		"failed":  failed,
	})
}

func (h *APIHandler) handleExportAlerts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAlertFilter(r)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="alerts-%s.csv"`, time.Now().UTC().Format("2006-01-02")))

	if err := h.alerts.ExportCSV(w, filter); err != nil {
		// Headers are out; all we can do is log.
		log.Printf("APIHandler: Failed to export alerts: %v", err)
	}
}

func (h *APIHandler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := database.ListSyncJobs(h.db)
	if err != nil {
		log.Printf("APIHandler: Failed to list jobs: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	api.RespondJSON(w, http.StatusOK, jobs)
}

// JobUpdateRequest is the body for PUT /api/jobs.
type JobUpdateRequest struct {
	Name           string `json:"name"`
	CronExpression string `json:"cron_expression"`
	Enabled        bool   `json:"enabled"`
}

func (h *APIHandler) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	var req JobUpdateRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" || req.CronExpression == "" {
		api.RespondError(w, http.StatusBadRequest, "name and cron_expression are required")
		return
	}
	if err := scheduler.ValidateCron(req.CronExpression); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.scheduler.UpsertJob(req.Name, req.CronExpression, req.Enabled); err != nil {
		log.Printf("APIHandler: Failed to update job %s: %v", req.Name, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to update job")
		return
	}

	job, err := database.FindSyncJobByName(h.db, req.Name)
	if err != nil || job == nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to load updated job")
		return
	}
	api.RespondJSON(w, http.StatusOK, job)
}

// NotifySettingsRequest is the body for PUT /api/settings/notify.
type NotifySettingsRequest struct {
	BotToken string `json:"bot_token"`
	Channel  string `json:"channel"`
	Enabled  bool   `json:"enabled"`
}

func (h *APIHandler) handleGetNotifySettings(w http.ResponseWriter, r *http.Request) {
	settings, err := database.GetNotifySettings(h.db)
	if err != nil {
		log.Printf("APIHandler: Failed to load notify settings: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to load notify settings")
		return
	}
	// Never echo the token back; report only whether one is set.
	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"channel":       settings.Channel,
		"enabled":       settings.Enabled,
		"token_present": settings.BotToken != "",
	})
}

func (h *APIHandler) handleUpdateNotifySettings(w http.ResponseWriter, r *http.Request) {
	var req NotifySettingsRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Enabled && (req.BotToken == "" || req.Channel == "") {
		api.RespondError(w, http.StatusBadRequest, "bot_token and channel are required when enabled")
		return
	}

	settings, err := database.GetNotifySettings(h.db)
	if err != nil {
		log.Printf("APIHandler: Failed to load notify settings: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to load notify settings")
		return
	}
	settings.BotToken = req.BotToken
	settings.Channel = req.Channel
	settings.Enabled = req.Enabled

	if err := database.UpdateNotifySettings(h.db, settings); err != nil {
		log.Printf("APIHandler: Failed to update notify settings: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to update notify settings")
		return
	}
	api.RespondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *APIHandler) handleSync(w http.ResponseWriter, r *http.Request) {
	summary, err := h.syncer.Sync(r.Context())
	if errors.Is(err, reconciler.ErrPassInProgress) {
		api.RespondErrorWithCode(w, http.StatusConflict, "pass_in_progress", "A reconciliation pass is already running")
		return
	}
	if err != nil {
		log.Printf("APIHandler: Manual sync failed: %v", err)
		api.RespondError(w, http.StatusBadGateway, "Reconciliation pass failed")
		return
	}
	api.RespondJSON(w, http.StatusOK, summary)
}

func parseAlertFilter(r *http.Request) (services.AlertFilter, error) {
	q := r.URL.Query()
	filter := services.AlertFilter{
		Status:   q.Get("status"),
		Severity: q.Get("severity"),
		Cluster:  q.Get("cluster"),
		Search:   q.Get("search"),
	}

	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("invalid from timestamp, expected RFC3339")
		}
		filter.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errors.New("invalid to timestamp, expected RFC3339")
		}
		filter.To = &t
	}
	return filter, nil
}
