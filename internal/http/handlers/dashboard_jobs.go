package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/NicolasFerec/ferelix-server/internal/jobs"
	"github.com/NicolasFerec/ferelix-server/internal/scheduler"
)

// wsWriteTimeout bounds each event write so one stuck client cannot pin the
// pump goroutine.
const wsWriteTimeout = 10 * time.Second

// DashboardJobHandler serves the admin job control endpoints and the live job
// event stream.
type DashboardJobHandler struct {
	authn    *Authenticator
	registry *jobs.Registry
	sched    *scheduler.Scheduler
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewDashboardJobHandler creates a dashboard job handler.
func NewDashboardJobHandler(authn *Authenticator, registry *jobs.Registry, sched *scheduler.Scheduler, logger *slog.Logger) *DashboardJobHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardJobHandler{
		authn:    authn,
		registry: registry,
		sched:    sched,
		// Tokens already gate the upgrade; the dashboard may be served from
		// another origin.
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logger:   logger,
	}
}

// ListJobsInput is the request for GET /dashboard/jobs.
type ListJobsInput struct {
	Authorization string `header:"Authorization"`
}

// ListJobsOutput is the response for GET /dashboard/jobs.
type ListJobsOutput struct {
	Body []jobs.JobState
}

// JobHistoryInput is the request for GET /dashboard/jobs/history.
type JobHistoryInput struct {
	Authorization string `header:"Authorization"`
	Limit         int    `query:"limit" minimum:"0" maximum:"100" default:"50"`
}

// JobHistoryOutput is the response for GET /dashboard/jobs/history.
type JobHistoryOutput struct {
	Body []jobs.ExecutionRecord
}

// JobActionInput addresses one job by id.
type JobActionInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" doc:"Job ID"`
}

// JobActionOutput is the response for job trigger and cancel actions.
type JobActionOutput struct {
	Body struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
}

// Register registers the job control endpoints with the API.
func (h *DashboardJobHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard-list-jobs",
		Method:      http.MethodGet,
		Path:        "/api/v1/dashboard/jobs",
		Summary:     "List recurring jobs with their live state",
		Description: "One-shot scan jobs are excluded from the listing.",
		Tags:        []string{"Dashboard"},
	}, h.list)

	huma.Register(api, huma.Operation{
		OperationID: "dashboard-job-history",
		Method:      http.MethodGet,
		Path:        "/api/v1/dashboard/jobs/history",
		Summary:     "List recent job executions, newest first",
		Tags:        []string{"Dashboard"},
	}, h.history)

	huma.Register(api, huma.Operation{
		OperationID: "dashboard-run-job",
		Method:      http.MethodPost,
		Path:        "/api/v1/dashboard/jobs/{id}/run",
		Summary:     "Trigger a scheduled job to run now",
		Tags:        []string{"Dashboard"},
	}, h.run)

	huma.Register(api, huma.Operation{
		OperationID: "dashboard-cancel-job",
		Method:      http.MethodPost,
		Path:        "/api/v1/dashboard/jobs/{id}/cancel",
		Summary:     "Request cooperative cancellation of a running job",
		Tags:        []string{"Dashboard"},
	}, h.cancel)
}

// RegisterRoutes mounts the WebSocket event stream on the raw router.
func (h *DashboardJobHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/v1/dashboard/jobs/ws", h.eventStream)
}

func (h *DashboardJobHandler) list(ctx context.Context, input *ListJobsInput) (*ListJobsOutput, error) {
	if _, err := h.authn.AdminFromHeader(ctx, input.Authorization); err != nil {
		return nil, err
	}
	return &ListJobsOutput{Body: h.registry.ListScheduled(h.sched)}, nil
}

func (h *DashboardJobHandler) history(ctx context.Context, input *JobHistoryInput) (*JobHistoryOutput, error) {
	if _, err := h.authn.AdminFromHeader(ctx, input.Authorization); err != nil {
		return nil, err
	}
	return &JobHistoryOutput{Body: h.registry.History(input.Limit)}, nil
}

func (h *DashboardJobHandler) run(ctx context.Context, input *JobActionInput) (*JobActionOutput, error) {
	if _, err := h.authn.AdminFromHeader(ctx, input.Authorization); err != nil {
		return nil, err
	}
	if err := h.sched.ModifyJobNextRun(input.ID, time.Now()); err != nil {
		return nil, apiError(err)
	}
	out := &JobActionOutput{}
	out.Body.JobID = input.ID
	out.Body.Status = "triggered"
	return out, nil
}

func (h *DashboardJobHandler) cancel(ctx context.Context, input *JobActionInput) (*JobActionOutput, error) {
	if _, err := h.authn.AdminFromHeader(ctx, input.Authorization); err != nil {
		return nil, err
	}
	state := h.registry.Get(input.ID)
	if state == nil {
		return nil, huma.Error404NotFound("job not found")
	}
	// A repeated cancel of an already-cancelled job is idempotent success.
	if state.Status == jobs.StatusCancelled {
		out := &JobActionOutput{}
		out.Body.JobID = input.ID
		out.Body.Status = string(jobs.StatusCancelled)
		return out, nil
	}
	if !h.registry.RequestCancel(input.ID) {
		return nil, huma.Error409Conflict("job is not running")
	}
	out := &JobActionOutput{}
	out.Body.JobID = input.ID
	out.Body.Status = "cancel_requested"
	return out, nil
}

// eventStream upgrades the connection and forwards bus events as JSON frames
// until the client goes away.
func (h *DashboardJobHandler) eventStream(w http.ResponseWriter, r *http.Request) {
	if _, err := h.authn.AdminFromRequest(r); err != nil {
		writeDetail(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.Debug("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	events, unsubscribe := h.registry.Bus().Subscribe()
	defer unsubscribe()

	// Reader goroutine: we never expect client frames, but reading is what
	// surfaces the close handshake.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}
	}
}
