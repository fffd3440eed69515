package api

import (
	"time"

	"webnotify/app/database"
	"webnotify/app/source"
	"webnotify/app/tasks"
)

type Handler struct {
	sourceRepo database.SourceRepository
	notifRepo  database.NotificationRepository
	scheduler  tasks.TaskSchedulerInterface
	version    string
}

type markReadRequest struct {
	IDs    []string `json:"ids" binding:"required"`
	Played *bool    `json:"played"`
}

type deleteAllRequest struct {
	OlderThanDays *int `json:"older_than_days"`
}

type createSourceRequest struct {
	Name    string        `json:"name" binding:"required"`
	User    string        `json:"user"`
	URL     string        `json:"url" binding:"required"`
	Enabled *bool         `json:"enabled"`
	Config  source.Config `json:"config"`
}

func notificationJSON(n database.Notification) map[string]interface{} {
	return map[string]interface{}{
		"id":          n.ID,
		"source_id":   n.SourceID,
		"source_name": n.SourceName,
		"title":       n.Title,
		"message":     n.Message,
		"link":        n.Link,
		"detected_at": n.DetectedAt.Format(time.RFC3339),
		"seen":        n.Seen,
		"played":      n.Played,
		"meta":        n.Meta,
	}
}

func sourceJSON(s source.Source) map[string]interface{} {
	info := map[string]interface{}{
		"id":      s.ID,
		"user":    s.UserID,
		"name":    s.Name,
		"url":     s.URL,
		"enabled": s.Enabled,
		"mode":    string(s.Config.EffectiveMode()),
	}
	if s.LastChecked != nil {
		info["last_checked"] = s.LastChecked.Format(time.RFC3339)
	}
	return info
}
