// Package api exposes notifications and source management over HTTP for
// the tray widgets and dashboards that consume detected activity.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"webnotify/app/database"
	"webnotify/app/source"
	"webnotify/app/tasks"
)

const notificationsPageSize = 50

// DefaultUser is assumed when a request carries no user identity.
const DefaultUser = "default"

func NewHandler(sourceRepo database.SourceRepository, notifRepo database.NotificationRepository,
	scheduler tasks.TaskSchedulerInterface, version string) *Handler {
	return &Handler{
		sourceRepo: sourceRepo,
		notifRepo:  notifRepo,
		scheduler:  scheduler,
		version:    version,
	}
}

// requestUser resolves the acting user from the X-User header or the
// user query parameter.
func requestUser(c *gin.Context) string {
	if user := c.GetHeader("X-User"); user != "" {
		return user
	}
	if user := c.Query("user"); user != "" {
		return user
	}
	return DefaultUser
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if sourceCount, err := h.sourceRepo.GetSourceCount(); err == nil {
		health["sources"] = sourceCount
	}
	if notificationCount, err := h.notifRepo.GetNotificationCount(); err == nil {
		health["notifications"] = notificationCount
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats := map[string]interface{}{
		"version": h.version,
	}

	if sourceCount, err := h.sourceRepo.GetSourceCount(); err == nil {
		stats["sources"] = sourceCount
	}
	if enabled, err := h.sourceRepo.GetEnabledSources(); err == nil {
		stats["enabled_sources"] = len(enabled)
	}
	if notificationCount, err := h.notifRepo.GetNotificationCount(); err == nil {
		stats["notifications"] = notificationCount
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) GetRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":     "webnotify",
		"version":     h.version,
		"description": "Web page change detection and notification service",
		"endpoints": map[string]string{
			"health":        "/health",
			"stats":         "/stats",
			"notifications": "/api/notifications (requires X-API-Key header)",
			"sources":       "/api/sources (requires X-API-Key header)",
		},
	})
}

func (h *Handler) APIListNotifications(c *gin.Context) {
	user := requestUser(c)
	unplayedOnly := c.Query("unplayed") == "1" || c.Query("unplayed") == "true"

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	notifications, err := h.notifRepo.ListRecent(user, unplayedOnly, notificationsPageSize, (page-1)*notificationsPageSize)
	if err != nil {
		slog.Error("Database error", "operation", "list_notifications", "user", user, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list notifications"})
		return
	}

	items := make([]map[string]interface{}, 0, len(notifications))
	for _, n := range notifications {
		items = append(items, notificationJSON(n))
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": items,
		"page":          page,
		"page_size":     notificationsPageSize,
	})
}

// APIGetActiveNotification returns the most recent notification that has
// not been played yet, for widgets that surface one alert at a time.
func (h *Handler) APIGetActiveNotification(c *gin.Context) {
	user := requestUser(c)

	notification, err := h.notifRepo.GetActive(user)
	if err != nil {
		slog.Error("Database error", "operation", "get_active", "user", user, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load active notification"})
		return
	}

	if notification == nil {
		c.JSON(http.StatusOK, gin.H{"has": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"has":          true,
		"notification": notificationJSON(*notification),
	})
}

func (h *Handler) APIMarkRead(c *gin.Context) {
	user := requestUser(c)

	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "message": err.Error()})
		return
	}

	played := true
	if req.Played != nil {
		played = *req.Played
	}

	updated, err := h.notifRepo.MarkRead(user, req.IDs, played)
	if err != nil {
		slog.Error("Database error", "operation", "mark_read", "user", user, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (h *Handler) APIClearAll(c *gin.Context) {
	user := requestUser(c)

	cleared, err := h.notifRepo.ClearAll(user)
	if err != nil {
		slog.Error("Database error", "operation", "clear_all", "user", user, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cleared": cleared})
}

func (h *Handler) APIDeleteAll(c *gin.Context) {
	user := requestUser(c)

	var req deleteAllRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "message": err.Error()})
			return
		}
	}

	var olderThan *time.Time
	if req.OlderThanDays != nil && *req.OlderThanDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -*req.OlderThanDays)
		olderThan = &cutoff
	}

	deleted, err := h.notifRepo.DeleteAll(user, olderThan)
	if err != nil {
		slog.Error("Database error", "operation", "delete_all", "user", user, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *Handler) APIListSources(c *gin.Context) {
	user := requestUser(c)

	sources, err := h.sourceRepo.GetSources(user)
	if err != nil {
		slog.Error("Database error", "operation", "list_sources", "user", user, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sources"})
		return
	}

	items := make([]map[string]interface{}, 0, len(sources))
	for _, s := range sources {
		items = append(items, sourceJSON(s))
	}

	c.JSON(http.StatusOK, gin.H{"sources": items})
}

func (h *Handler) APICreateSource(c *gin.Context) {
	var req createSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "message": err.Error()})
		return
	}

	user := req.User
	if user == "" {
		user = requestUser(c)
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	src := &source.Source{
		ID:      uuid.NewString(),
		UserID:  user,
		Name:    req.Name,
		URL:     req.URL,
		Enabled: enabled,
		Config:  req.Config,
	}

	if err := h.sourceRepo.CreateSource(src); err != nil {
		slog.Error("Database error", "operation", "create_source", "source", req.Name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create source"})
		return
	}

	c.JSON(http.StatusCreated, sourceJSON(*src))
}

func (h *Handler) APICheckSource(c *gin.Context) {
	id := c.Param("id")

	src, err := h.sourceRepo.GetSource(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_source", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load source"})
		return
	}
	if src == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	}

	if err := h.scheduler.EnqueueCheck(src.ID, src.Name); err != nil {
		slog.Error("Failed to enqueue check", "source", src.Name, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Check queue is full"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Check scheduled",
		"source":  src.Name,
	})
}
