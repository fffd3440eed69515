package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"webnotify/app/database"
	"webnotify/app/fetch"
	"webnotify/app/source"
	"webnotify/app/tasks"
)

const testAPIKey = "test-key"

type stubSourceRepo struct {
	sources []source.Source
	created []source.Source
}

func (r *stubSourceRepo) GetSource(id string) (*source.Source, error) {
	for _, s := range r.sources {
		if s.ID == id {
			clone := s
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *stubSourceRepo) GetEnabledSources() ([]source.Source, error) {
	var out []source.Source
	for _, s := range r.sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *stubSourceRepo) GetSources(userID string) ([]source.Source, error) {
	var out []source.Source
	for _, s := range r.sources {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *stubSourceRepo) GetSourceCount() (int, error) { return len(r.sources), nil }

func (r *stubSourceRepo) CreateSource(src *source.Source) error {
	r.created = append(r.created, *src)
	r.sources = append(r.sources, *src)
	return nil
}

func (r *stubSourceRepo) UpsertSeed(seed source.Seed) (string, error) { return "", nil }
func (r *stubSourceRepo) CommitCheck(id string, baseline source.Baseline, checkedAt time.Time) error {
	return nil
}
func (r *stubSourceRepo) TouchLastChecked(id string, checkedAt time.Time) error { return nil }

type stubNotifRepo struct {
	notifications []database.Notification
	marked        []string
}

func (r *stubNotifRepo) Create(n *database.Notification) error { return nil }

func (r *stubNotifRepo) ListRecent(userID string, unplayedOnly bool, limit, offset int) ([]database.Notification, error) {
	var out []database.Notification
	for _, n := range r.notifications {
		if n.UserID != userID {
			continue
		}
		if unplayedOnly && n.Played {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (r *stubNotifRepo) GetActive(userID string) (*database.Notification, error) {
	for _, n := range r.notifications {
		if n.UserID == userID && !n.Played {
			clone := n
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *stubNotifRepo) MarkRead(userID string, ids []string, played bool) (int64, error) {
	r.marked = append(r.marked, ids...)
	return int64(len(ids)), nil
}

func (r *stubNotifRepo) ClearAll(userID string) (int64, error) { return 0, nil }
func (r *stubNotifRepo) DeleteAll(userID string, olderThan *time.Time) (int64, error) {
	return 0, nil
}
func (r *stubNotifRepo) GetNotificationCount() (int, error) { return len(r.notifications), nil }

type stubScheduler struct {
	enqueued []string
}

func (s *stubScheduler) Start()                                 {}
func (s *stubScheduler) Stop()                                  {}
func (s *stubScheduler) EnqueueTask(task tasks.TaskInterface) error { return nil }
func (s *stubScheduler) EnqueueCheck(sourceID, sourceName string) error {
	s.enqueued = append(s.enqueued, sourceID)
	return nil
}

var _ tasks.FetcherInterface = noFetcher{}

type noFetcher struct{}

func (noFetcher) Fetch(ctx context.Context, src *source.Source) (*fetch.Result, error) {
	return nil, nil
}

func testServer(sourceRepo *stubSourceRepo, notifRepo *stubNotifRepo, scheduler *stubScheduler) *gin.Engine {
	handler := NewHandler(sourceRepo, notifRepo, scheduler, "test")
	return NewServer(handler, testAPIKey)
}

func doRequest(t *testing.T, server *gin.Engine, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("X-API-Key", testAPIKey)
	}
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
	return body
}

func TestAPI_RequiresKey(t *testing.T) {
	server := testServer(&stubSourceRepo{}, &stubNotifRepo{}, &stubScheduler{})

	w := doRequest(t, server, "GET", "/api/notifications", "", false)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without key, got %d", w.Code)
	}

	w = doRequest(t, server, "GET", "/health", "", false)
	if w.Code != http.StatusOK {
		t.Errorf("Health should not require a key, got %d", w.Code)
	}
}

func TestAPI_BearerTokenAccepted(t *testing.T) {
	server := testServer(&stubSourceRepo{}, &stubNotifRepo{}, &stubScheduler{})

	req := httptest.NewRequest("GET", "/api/notifications", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected bearer auth accepted, got %d", w.Code)
	}
}

func TestAPI_ListNotifications(t *testing.T) {
	notifRepo := &stubNotifRepo{notifications: []database.Notification{
		{ID: "n1", UserID: "default", Title: "hello", DetectedAt: time.Now().UTC()},
		{ID: "n2", UserID: "other", Title: "not yours", DetectedAt: time.Now().UTC()},
	}}
	server := testServer(&stubSourceRepo{}, notifRepo, &stubScheduler{})

	w := doRequest(t, server, "GET", "/api/notifications", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	body := decodeJSON(t, w)
	list, ok := body["notifications"].([]interface{})
	if !ok || len(list) != 1 {
		t.Errorf("Expected 1 notification for the default user, got %v", body["notifications"])
	}
}

func TestAPI_ActiveNotification(t *testing.T) {
	notifRepo := &stubNotifRepo{}
	server := testServer(&stubSourceRepo{}, notifRepo, &stubScheduler{})

	w := doRequest(t, server, "GET", "/api/notifications/active", "", true)
	body := decodeJSON(t, w)
	if body["has"] != false {
		t.Errorf("Expected has=false with no notifications, got %v", body)
	}

	notifRepo.notifications = []database.Notification{
		{ID: "n1", UserID: "default", Title: "ping", DetectedAt: time.Now().UTC()},
	}
	w = doRequest(t, server, "GET", "/api/notifications/active", "", true)
	body = decodeJSON(t, w)
	if body["has"] != true {
		t.Fatalf("Expected has=true, got %v", body)
	}
	n, ok := body["notification"].(map[string]interface{})
	if !ok || n["id"] != "n1" {
		t.Errorf("Expected notification payload, got %v", body["notification"])
	}
}

func TestAPI_MarkRead(t *testing.T) {
	notifRepo := &stubNotifRepo{}
	server := testServer(&stubSourceRepo{}, notifRepo, &stubScheduler{})

	w := doRequest(t, server, "POST", "/api/notifications/mark-read", `{"ids":["n1","n2"]}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(notifRepo.marked) != 2 {
		t.Errorf("Expected 2 ids marked, got %v", notifRepo.marked)
	}

	w = doRequest(t, server, "POST", "/api/notifications/mark-read", `{}`, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing ids, got %d", w.Code)
	}
}

func TestAPI_CreateSource(t *testing.T) {
	sourceRepo := &stubSourceRepo{}
	server := testServer(sourceRepo, &stubNotifRepo{}, &stubScheduler{})

	payload := `{"name":"inbox","url":"https://example.com/inbox","config":{"mode":"rendered"}}`
	w := doRequest(t, server, "POST", "/api/sources", payload, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	if len(sourceRepo.created) != 1 {
		t.Fatalf("Expected source created")
	}
	created := sourceRepo.created[0]
	if created.ID == "" {
		t.Errorf("Expected generated source ID")
	}
	if created.UserID != "default" {
		t.Errorf("Expected default user, got %q", created.UserID)
	}
	if created.Config.EffectiveMode() != source.ModeRendered {
		t.Errorf("Expected rendered mode from config, got %q", created.Config.EffectiveMode())
	}

	w = doRequest(t, server, "POST", "/api/sources", `{"name":"broken"}`, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing url, got %d", w.Code)
	}
}

func TestAPI_CheckSource(t *testing.T) {
	scheduler := &stubScheduler{}
	sourceRepo := &stubSourceRepo{sources: []source.Source{
		{ID: "src-1", UserID: "default", Name: "inbox", URL: "https://example.com", Enabled: true},
	}}
	server := testServer(sourceRepo, &stubNotifRepo{}, scheduler)

	w := doRequest(t, server, "POST", "/api/sources/src-1/check", "", true)
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if len(scheduler.enqueued) != 1 || scheduler.enqueued[0] != "src-1" {
		t.Errorf("Expected check enqueued for src-1, got %v", scheduler.enqueued)
	}

	w = doRequest(t, server, "POST", "/api/sources/missing/check", "", true)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown source, got %d", w.Code)
	}
}

func TestAPI_Health(t *testing.T) {
	sourceRepo := &stubSourceRepo{sources: []source.Source{{ID: "s1"}}}
	notifRepo := &stubNotifRepo{notifications: []database.Notification{{ID: "n1"}}}
	server := testServer(sourceRepo, notifRepo, &stubScheduler{})

	w := doRequest(t, server, "GET", "/health", "", false)
	body := decodeJSON(t, w)
	if body["sources"] != float64(1) {
		t.Errorf("Expected 1 source in health payload, got %v", body["sources"])
	}
	if body["notifications"] != float64(1) {
		t.Errorf("Expected 1 notification in health payload, got %v", body["notifications"])
	}
}
