package dashboard

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fieldwork/tasksync/internal/orchestrator"
	"github.com/fieldwork/tasksync/internal/schema"
)

// Engine is the part of the sync engine the API drives.
// *orchestrator.Engine implements it.
type Engine interface {
	Snapshot() *orchestrator.Snapshot
	SetFilters(ctx context.Context, patch schema.FilterPatch) orchestrator.Outcome
	ResetFilters(ctx context.Context) orchestrator.Outcome
	CreateTask(ctx context.Context, in schema.Input) orchestrator.Outcome
	UpdateTask(ctx context.Context, id string, changes schema.Changes) orchestrator.Outcome
	DeleteTask(ctx context.Context, id string) orchestrator.Outcome
	ForceSyncNow(ctx context.Context) orchestrator.Outcome
	HydrateFromCache(ctx context.Context, tasks []schema.Task) orchestrator.Outcome
	SignOut(ctx context.Context) orchestrator.Outcome
}

// API serves engine reads and commands as JSON.
type API struct {
	engine Engine
}

// NewAPI creates an API on engine.
func NewAPI(engine Engine) *API {
	return &API{engine: engine}
}

// Register mounts the API routes under g.
func (a *API) Register(g *echo.Group) {
	g.GET("/tasks", a.ListTasks)
	g.POST("/tasks", a.CreateTask)
	g.GET("/tasks/:id", a.GetTask)
	g.PATCH("/tasks/:id", a.UpdateTask)
	g.DELETE("/tasks/:id", a.DeleteTask)

	g.GET("/filters", a.GetFilters)
	g.PATCH("/filters", a.SetFilters)
	g.DELETE("/filters", a.ResetFilters)

	g.GET("/status", a.Status)
	g.POST("/sync", a.Sync)
	g.POST("/hydrate", a.Hydrate)
	g.POST("/signout", a.SignOut)
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status          orchestrator.Status `json:"status"`
	Error           string              `json:"error,omitempty"`
	LastSyncedAt    *time.Time          `json:"lastSyncedAt"`
	Online          *bool               `json:"online"`
	ServedFromCache bool                `json:"servedFromCache"`
	Tasks           int                 `json:"tasks"`
	QueueLength     int                 `json:"queueLength"`
	Pending         []schema.Mutation   `json:"pending"`
}

// TaskList is the body of GET /tasks.
type TaskList struct {
	Filters schema.Filters `json:"filters"`
	Tasks   []schema.Task  `json:"tasks"`
}

// HydrateRequest is the body of POST /hydrate. Omitted tasks reload the
// cached snapshot.
type HydrateRequest struct {
	Tasks []schema.Task `json:"tasks"`
}

func fail(c echo.Context, code int, reason string) error {
	return c.JSON(code, ErrorResponse{OK: false, Reason: reason})
}

// respond writes an engine outcome with a status code matching its error.
func respond(c echo.Context, success int, out orchestrator.Outcome) error {
	if out.OK {
		return c.JSON(success, out)
	}
	code := http.StatusUnprocessableEntity
	switch {
	case errors.Is(out.Err, schema.ErrTaskNotFound):
		code = http.StatusNotFound
	case errors.Is(out.Err, schema.ErrNotAuthenticated):
		code = http.StatusUnauthorized
	case errors.Is(out.Err, orchestrator.ErrNotRunning):
		code = http.StatusServiceUnavailable
	case errors.Is(out.Err, orchestrator.ErrOffline):
		code = http.StatusConflict
	}
	return fail(c, code, out.Reason)
}

// ListTasks returns the visible tasks. Query parameters search, status,
// sortBy and sortDirection override the active filters for this request.
func (a *API) ListTasks(c echo.Context) error {
	snap := a.engine.Snapshot()
	f := snap.Filters()

	if v, ok := queryParam(c, "search"); ok {
		f.Search = v
	}
	if v, ok := queryParam(c, "status"); ok {
		s, err := schema.ParseStatusFilter(v)
		if err != nil {
			return fail(c, http.StatusBadRequest, err.Error())
		}
		f.Status = s
	}
	if v, ok := queryParam(c, "sortBy"); ok {
		s, err := schema.ParseSortField(v)
		if err != nil {
			return fail(c, http.StatusBadRequest, err.Error())
		}
		f.SortBy = s
	}
	if v, ok := queryParam(c, "sortDirection"); ok {
		d, err := schema.ParseSortDirection(v)
		if err != nil {
			return fail(c, http.StatusBadRequest, err.Error())
		}
		f.SortDirection = d
	}

	tasks := slices.Collect(snap.VisibleWith(f))
	if tasks == nil {
		tasks = []schema.Task{}
	}
	return c.JSON(http.StatusOK, TaskList{Filters: f, Tasks: tasks})
}

func queryParam(c echo.Context, name string) (string, bool) {
	values, ok := c.QueryParams()[name]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// GetTask returns one task.
func (a *API) GetTask(c echo.Context) error {
	task, ok := a.engine.Snapshot().Task(c.Param("id"))
	if !ok {
		return fail(c, http.StatusNotFound, schema.ErrTaskNotFound.Error())
	}
	return c.JSON(http.StatusOK, task)
}

// CreateTask creates a task from a schema.Input body.
func (a *API) CreateTask(c echo.Context) error {
	var in schema.Input
	if err := c.Bind(&in); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	status := http.StatusCreated
	out := a.engine.CreateTask(c.Request().Context(), in)
	if out.Queued {
		status = http.StatusAccepted
	}
	return respond(c, status, out)
}

// UpdateTask applies a schema.Changes body.
func (a *API) UpdateTask(c echo.Context) error {
	var changes schema.Changes
	if err := c.Bind(&changes); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	out := a.engine.UpdateTask(c.Request().Context(), c.Param("id"), changes)
	status := http.StatusOK
	if out.Queued {
		status = http.StatusAccepted
	}
	return respond(c, status, out)
}

// DeleteTask removes a task.
func (a *API) DeleteTask(c echo.Context) error {
	out := a.engine.DeleteTask(c.Request().Context(), c.Param("id"))
	status := http.StatusOK
	if out.Queued {
		status = http.StatusAccepted
	}
	return respond(c, status, out)
}

// GetFilters returns the active filters.
func (a *API) GetFilters(c echo.Context) error {
	return c.JSON(http.StatusOK, a.engine.Snapshot().Filters())
}

// SetFilters merges a schema.FilterPatch body into the active filters.
func (a *API) SetFilters(c echo.Context) error {
	var patch schema.FilterPatch
	if err := c.Bind(&patch); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	out := a.engine.SetFilters(c.Request().Context(), patch)
	if !out.OK {
		return fail(c, http.StatusBadRequest, out.Reason)
	}
	return c.JSON(http.StatusOK, a.engine.Snapshot().Filters())
}

// ResetFilters restores the default filters.
func (a *API) ResetFilters(c echo.Context) error {
	out := a.engine.ResetFilters(c.Request().Context())
	if !out.OK {
		return respond(c, http.StatusOK, out)
	}
	return c.JSON(http.StatusOK, a.engine.Snapshot().Filters())
}

// Status reports sync state.
func (a *API) Status(c echo.Context) error {
	snap := a.engine.Snapshot()
	resp := StatusResponse{
		Status:          snap.Status,
		Error:           snap.Error,
		Online:          snap.Connectivity.IsConnected,
		ServedFromCache: snap.ServedFromCache,
		Tasks:           snap.Len(),
		QueueLength:     snap.QueueLength(),
		Pending:         snap.Pending,
	}
	if resp.Pending == nil {
		resp.Pending = []schema.Mutation{}
	}
	if !snap.LastSyncedAt.IsZero() {
		at := snap.LastSyncedAt
		resp.LastSyncedAt = &at
	}
	return c.JSON(http.StatusOK, resp)
}

// Sync forces a sync now.
func (a *API) Sync(c echo.Context) error {
	return respond(c, http.StatusOK, a.engine.ForceSyncNow(c.Request().Context()))
}

// Hydrate loads tasks from a HydrateRequest body, or from the cache when the
// body is empty.
func (a *API) Hydrate(c echo.Context) error {
	var req HydrateRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	return respond(c, http.StatusOK, a.engine.HydrateFromCache(c.Request().Context(), req.Tasks))
}

// SignOut clears local state and the session.
func (a *API) SignOut(c echo.Context) error {
	return respond(c, http.StatusOK, a.engine.SignOut(c.Request().Context()))
}
