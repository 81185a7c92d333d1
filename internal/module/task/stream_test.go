package task

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nutricoach/server/internal/module/client"
	"github.com/nutricoach/server/internal/module/summary"
	"github.com/nutricoach/server/internal/utils/middleware"
)

func newStreamRouter(h *executorHarness, coachID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	gateway := NewGateway(h.manager, h.executor, NewHub(), h.clients, time.Minute, zap.NewNop(), nil)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.CoachIDKey, coachID)
	})
	r.GET("/tasks/:id/stream", gateway.Stream)
	return r
}

func (h *executorHarness) addOwnedClient(coachID uuid.UUID) uuid.UUID {
	clientID := uuid.New()
	h.clients.clients[clientID] = &client.Client{ID: clientID, CoachID: coachID, Name: "Jamie"}
	return clientID
}

func streamGet(t *testing.T, r *gin.Engine, taskID uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tasks/"+taskID.String()+"/stream", nil)
	r.ServeHTTP(w, req)
	return w
}

func TestGateway_RunsPendingTaskToCompletion(t *testing.T) {
	h := newExecutorHarness()
	coachID := uuid.New()
	clientID := h.addOwnedClient(coachID)
	weekStart := mustParseTime(t, "2026-08-24T00:00:00Z")
	h.addGroup(clientID, weekStart)

	created, _, err := h.manager.Create(context.Background(), clientID, TypeWeeklySummary, Parameters{WeekStart: &weekStart})
	require.NoError(t, err)

	r := newStreamRouter(h, coachID)
	w := streamGet(t, r, created.ID)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))

	body := w.Body.String()
	assert.Contains(t, body, "event: stepComplete")
	assert.Contains(t, body, "event: done")

	// The stream drove the task through its whole life.
	assert.Equal(t, StatusCompleted, h.repo.tasks[created.ID].Status)
}

func TestGateway_ReplaysSettledTask(t *testing.T) {
	coachID := uuid.New()

	tests := []struct {
		name   string
		status Status
		event  string
	}{
		{"completed", StatusCompleted, "event: done"},
		{"cancelled", StatusCancelled, "event: cancelled"},
		{"failed", StatusFailed, "event: error"},
		{"paused", StatusPaused, "event: paused"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newExecutorHarness()
			clientID := h.addOwnedClient(coachID)

			task := &Task{
				ID: uuid.New(), ClientID: clientID,
				Type: TypeWeeklySummary, Status: tt.status,
				CurrentStep: StepAnalyze, Progress: 40,
			}
			h.repo.tasks[task.ID] = task

			r := newStreamRouter(h, coachID)
			w := streamGet(t, r, task.ID)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), tt.event)
			// Replay does not restart execution.
			assert.Empty(t, h.ai.calls)
		})
	}
}

func TestGateway_UpToDateShortCircuit(t *testing.T) {
	h := newExecutorHarness()
	coachID := uuid.New()
	clientID := h.addOwnedClient(coachID)
	weekStart := mustParseTime(t, "2026-08-24T00:00:00Z")

	g := h.addGroup(clientID, weekStart)
	h.summaries.analyses[g.ID] = &summary.MealGroupAnalysis{
		ID: uuid.New(), MealGroupID: g.ID, ClientID: clientID,
	}

	created, _, err := h.manager.Create(context.Background(), clientID, TypeIncrementalSummaryUpdate, Parameters{
		WeekStart:    &weekStart,
		MealGroupIDs: []uuid.UUID{g.ID},
	})
	require.NoError(t, err)
	g.UpdatedAt = created.UpdatedAt.Add(-time.Hour)

	r := newStreamRouter(h, coachID)
	w := streamGet(t, r, created.ID)

	body := w.Body.String()
	assert.Contains(t, body, "event: done")
	assert.Contains(t, body, "already up to date")
	assert.Empty(t, h.ai.calls)

	// The scope is freed for the next task.
	assert.Equal(t, StatusCancelled, h.repo.tasks[created.ID].Status)
}

func TestGateway_OwnershipRequired(t *testing.T) {
	h := newExecutorHarness()
	coachID := uuid.New()

	// Client belongs to a different coach.
	otherClient := h.addOwnedClient(uuid.New())
	task := &Task{ID: uuid.New(), ClientID: otherClient, Type: TypeWeeklySummary, Status: StatusPending}
	h.repo.tasks[task.ID] = task

	r := newStreamRouter(h, coachID)
	w := streamGet(t, r, task.ID)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGateway_UnknownTask(t *testing.T) {
	h := newExecutorHarness()
	r := newStreamRouter(h, uuid.New())

	w := streamGet(t, r, uuid.New())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// A viewer attached to a running task must learn about a pause or
// cancel issued through the control endpoints, even when the executor
// driving the task never publishes another event.
func TestGateway_HeartbeatDetectsOutOfBandControl(t *testing.T) {
	setup := func(t *testing.T) (*executorHarness, *gin.Engine, *Task) {
		h := newExecutorHarness()
		coachID := uuid.New()
		clientID := h.addOwnedClient(coachID)

		task := &Task{
			ID: uuid.New(), ClientID: clientID,
			Type: TypeWeeklySummary, Status: StatusRunning,
			CurrentStep: StepAnalyze, Progress: 40,
		}
		h.repo.tasks[task.ID] = task

		// Another stream already owns the executor slot, so this
		// connection attaches as a passive viewer.
		hub := NewHub()
		require.True(t, hub.TryAcquire(task.ID))

		gateway := NewGateway(h.manager, h.executor, hub, h.clients, 10*time.Millisecond, zap.NewNop(), nil)
		gin.SetMode(gin.TestMode)
		r := gin.New()
		r.Use(func(c *gin.Context) {
			c.Set(middleware.CoachIDKey, coachID)
		})
		r.GET("/tasks/:id/stream", gateway.Stream)
		return h, r, task
	}

	t.Run("pause closes with a paused event", func(t *testing.T) {
		h, r, task := setup(t)
		go func() {
			time.Sleep(25 * time.Millisecond)
			_, _ = h.manager.Pause(context.Background(), task.ID)
		}()

		w := streamGet(t, r, task.ID)
		assert.Contains(t, w.Body.String(), "event: paused")
	})

	t.Run("cancel closes silently", func(t *testing.T) {
		h, r, task := setup(t)
		go func() {
			time.Sleep(25 * time.Millisecond)
			_, _ = h.manager.Cancel(context.Background(), task.ID)
		}()

		w := streamGet(t, r, task.ID)
		assert.NotContains(t, w.Body.String(), "event: cancelled")
	})
}
