package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldwork/tasksync/internal/auth"
	"github.com/fieldwork/tasksync/internal/cache"
	"github.com/fieldwork/tasksync/internal/connectivity"
	"github.com/fieldwork/tasksync/internal/gateway"
	"github.com/fieldwork/tasksync/internal/orchestrator"
	"github.com/fieldwork/tasksync/internal/schema"
)

var day = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func quiet() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// offlineEngine starts an engine with no remote store, offline, holding tasks.
func offlineEngine(t *testing.T, tasks ...schema.Task) *orchestrator.Engine {
	t.Helper()
	ctx := context.Background()

	kv := cache.NewMemory()
	sessions := auth.NewSessions(kv)
	_, err := sessions.Login(ctx, "ana@example.com")
	require.NoError(t, err)

	engine, err := orchestrator.New(
		gateway.New(nil, &gateway.Config{Logger: quiet()}),
		cache.NewBridge(kv, quiet()),
		connectivity.NewManual(connectivity.Known(false)),
		sessions,
		&orchestrator.Config{Logger: quiet()},
	)
	require.NoError(t, err)
	require.NoError(t, engine.Start(ctx))
	t.Cleanup(func() { _ = engine.Stop() })
	require.NoError(t, engine.Idle(ctx))

	if tasks != nil {
		out := engine.HydrateFromCache(ctx, tasks)
		require.True(t, out.OK, out.Reason)
	}
	return engine
}

func task(id, title string, status schema.Status, assigned time.Time) schema.Task {
	return schema.Task{
		ID:           id,
		Title:        title,
		AssignedTo:   "ana@example.com",
		AssignedDate: assigned,
		Status:       status,
		Completed:    status == schema.StatusCompleted,
		CreatedAt:    assigned,
		UpdatedAt:    assigned,
		CreatedBy:    "u1",
	}
}

func newSnapshotFixture(t *testing.T) func() *orchestrator.Snapshot {
	engine := offlineEngine(t, task("a", "Alpha", schema.StatusNotStarted, day))
	return engine.Snapshot
}

func router(engine Engine) *echo.Echo {
	e := echo.New()
	NewAPI(engine).Register(e.Group("/api"))
	return e
}

func serve(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestAPI_ListTasks(t *testing.T) {
	e := router(offlineEngine(t,
		task("a", "Pump inspection", schema.StatusNotStarted, day.Add(2*time.Hour)),
		task("b", "Fence repair", schema.StatusCompleted, day),
		task("c", "Pump replacement", schema.StatusInProgress, day.Add(time.Hour)),
	))

	tests := []struct {
		name   string
		target string
		want   []string
	}{
		{"defaults", "/api/tasks", []string{"b", "c", "a"}},
		{"status", "/api/tasks?status=completed", []string{"b"}},
		{"search", "/api/tasks?search=pump", []string{"c", "a"}},
		{"descending", "/api/tasks?search=pump&sortDirection=desc", []string{"a", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(e, http.MethodGet, tt.target, "")
			require.Equal(t, http.StatusOK, rec.Code)

			list := decode[TaskList](t, rec)
			ids := make([]string, 0, len(list.Tasks))
			for _, task := range list.Tasks {
				ids = append(ids, task.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	// Query overrides do not stick.
	rec := serve(e, http.MethodGet, "/api/filters", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, schema.DefaultFilters(), decode[schema.Filters](t, rec))
}

func TestAPI_ListTasks_BadQuery(t *testing.T) {
	e := router(offlineEngine(t))

	for _, target := range []string{"/api/tasks?sortBy=priority", "/api/tasks?status=blocked", "/api/tasks?sortDirection=up"} {
		rec := serve(e, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		resp := decode[ErrorResponse](t, rec)
		assert.False(t, resp.OK)
		assert.NotEmpty(t, resp.Reason)
	}
}

func TestAPI_GetTask(t *testing.T) {
	e := router(offlineEngine(t, task("a", "Alpha", schema.StatusNotStarted, day)))

	rec := serve(e, http.MethodGet, "/api/tasks/a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Alpha", decode[schema.Task](t, rec).Title)

	rec = serve(e, http.MethodGet, "/api/tasks/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, schema.ErrTaskNotFound.Error(), decode[ErrorResponse](t, rec).Reason)
}

func TestAPI_OfflineWritesAreQueued(t *testing.T) {
	engine := offlineEngine(t, task("a", "Alpha", schema.StatusNotStarted, day))
	e := router(engine)

	rec := serve(e, http.MethodPost, "/api/tasks", `{"title":"Check meters","assignedTo":"ana@example.com"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	created := decode[orchestrator.Outcome](t, rec)
	assert.True(t, created.OK)
	assert.True(t, created.Queued)
	require.NotNil(t, created.Task)
	assert.Equal(t, "Check meters", created.Task.Title)

	rec = serve(e, http.MethodPatch, "/api/tasks/a", `{"status":"completed"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	updated := decode[orchestrator.Outcome](t, rec)
	require.NotNil(t, updated.Task)
	assert.True(t, updated.Task.Completed)

	rec = serve(e, http.MethodDelete, "/api/tasks/"+created.Task.ID, "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = serve(e, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[StatusResponse](t, rec)
	assert.Equal(t, 3, status.QueueLength)
	assert.Len(t, status.Pending, 3)
	assert.Equal(t, 1, status.Tasks)
	require.NotNil(t, status.Online)
	assert.False(t, *status.Online)
}

func TestAPI_WriteFailures(t *testing.T) {
	e := router(offlineEngine(t))

	tests := []struct {
		name   string
		method string
		target string
		body   string
		code   int
	}{
		{"empty title", http.MethodPost, "/api/tasks", `{"title":"  "}`, http.StatusUnprocessableEntity},
		{"malformed body", http.MethodPost, "/api/tasks", `{"title":`, http.StatusBadRequest},
		{"update unknown task", http.MethodPatch, "/api/tasks/missing", `{"title":"x"}`, http.StatusNotFound},
		{"empty update", http.MethodPatch, "/api/tasks/missing", `{}`, http.StatusUnprocessableEntity},
		{"sync while offline", http.MethodPost, "/api/sync", "", http.StatusConflict},
		{"bad filter", http.MethodPatch, "/api/filters", `{"sortBy":"priority"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(e, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			resp := decode[ErrorResponse](t, rec)
			assert.False(t, resp.OK)
			assert.NotEmpty(t, resp.Reason)
		})
	}
}

func TestAPI_Filters(t *testing.T) {
	e := router(offlineEngine(t))

	rec := serve(e, http.MethodPatch, "/api/filters", `{"search":"pump","status":"in_progress"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	f := decode[schema.Filters](t, rec)
	assert.Equal(t, "pump", f.Search)
	assert.Equal(t, schema.StatusFilter(schema.StatusInProgress), f.Status)
	assert.Equal(t, schema.SortAssignedDate, f.SortBy)

	rec = serve(e, http.MethodDelete, "/api/filters", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, schema.DefaultFilters(), decode[schema.Filters](t, rec))
}

func TestAPI_Hydrate(t *testing.T) {
	engine := offlineEngine(t)
	e := router(engine)

	body, err := json.Marshal(HydrateRequest{Tasks: []schema.Task{task("h", "Hydrated", schema.StatusNotStarted, day)}})
	require.NoError(t, err)

	rec := serve(e, http.MethodPost, "/api/hydrate", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, found := engine.Snapshot().Task("h")
	assert.True(t, found)

	rec = serve(e, http.MethodPost, "/api/hydrate", `{"tasks":[{"id":"bad","title":"","status":"not_started"}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAPI_SignOut(t *testing.T) {
	engine := offlineEngine(t, task("a", "Alpha", schema.StatusNotStarted, day))
	e := router(engine)

	rec := serve(e, http.MethodPost, "/api/signout", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 0, engine.Snapshot().Len())

	rec = serve(e, http.MethodPost, "/api/tasks", `{"title":"After sign-out"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, schema.ErrNotAuthenticated.Error(), decode[ErrorResponse](t, rec).Reason)
}

func TestAPI_EngineStopped(t *testing.T) {
	engine := offlineEngine(t)
	require.NoError(t, engine.Stop())
	e := router(engine)

	rec := serve(e, http.MethodPost, "/api/tasks", `{"title":"Late"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
