package task

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nutricoach/server/internal/module/client"
	"github.com/nutricoach/server/internal/utils/metrics"
	"github.com/nutricoach/server/internal/utils/middleware"
	"go.uber.org/zap"
)

// Gateway serves the SSE progress stream for a task. Opening the
// stream is also what starts execution of a pending task; the executor
// itself runs detached, so a dropped connection never stops the work.
type Gateway struct {
	manager   *Manager
	executor  *Executor
	hub       *Hub
	clients   client.Repository
	heartbeat time.Duration
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewGateway creates a new stream gateway.
func NewGateway(
	manager *Manager,
	executor *Executor,
	hub *Hub,
	clients client.Repository,
	heartbeat time.Duration,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Gateway {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &Gateway{
		manager:   manager,
		executor:  executor,
		hub:       hub,
		clients:   clients,
		heartbeat: heartbeat,
		logger:    logger,
		metrics:   m,
	}
}

// Stream handles GET /tasks/:id/stream.
func (g *Gateway) Stream(c *gin.Context) {
	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}

	coachID, err := middleware.GetCoachID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	t, err := g.manager.Get(c.Request.Context(), taskID)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	owned, err := g.clients.OwnedBy(c.Request.Context(), t.ClientID, coachID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not verify ownership"})
		return
	}
	if !owned {
		// Same response as a missing task so task IDs cannot be probed.
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// A stream on a settled task replays its terminal event and closes.
	if done := g.writeSettled(c, t); done {
		return
	}

	// Incremental updates whose whole scope is unchanged never run:
	// report up to date and release the (client, type) slot.
	if t.Type == TypeIncrementalSummaryUpdate && t.Status == StatusPending {
		plan, perr := g.executor.PlanIncremental(c.Request.Context(), t)
		if perr != nil {
			g.writeEvent(c, Event{Type: EventError, TaskID: t.ID.String(), Message: perr.Error()})
			return
		}
		if plan.UpToDate() {
			if _, cerr := g.manager.Cancel(c.Request.Context(), t.ID); cerr != nil {
				g.logger.Error("could not release up-to-date task",
					zap.String("task_id", t.ID.String()), zap.Error(cerr))
			}
			g.writeEvent(c, Event{
				Type:     EventDone,
				TaskID:   t.ID.String(),
				Progress: 100,
				Message:  "already up to date",
			})
			return
		}
	}

	// Subscribe before starting the executor so no event slips past.
	events, unsubscribe := g.hub.Subscribe(t.ID)
	defer unsubscribe()

	if t.Status == StatusPending {
		if t, err = g.manager.UpdateStatus(c.Request.Context(), t.ID, StatusRunning); err != nil {
			g.writeEvent(c, Event{Type: EventError, TaskID: taskID.String(), Message: err.Error()})
			return
		}
	}

	if t.Status == StatusRunning && g.hub.TryAcquire(t.ID) {
		// Detached context: the work must survive this connection.
		go func(id uuid.UUID) {
			defer g.hub.Release(id)
			g.executor.Execute(context.Background(), id, NewHubSink(g.hub, id))
		}(t.ID)
	} else {
		// Another stream already drives this task; attach as a viewer
		// and let it know where execution currently stands.
		g.writeEvent(c, Event{
			Type:           EventProgress,
			TaskID:         t.ID.String(),
			Step:           t.CurrentStep,
			Progress:       t.Progress,
			CompletedSteps: t.CompletedSteps,
		})
	}

	g.relay(c, t.ID, events)
}

// relay forwards hub events to the client until a terminal event or
// disconnect. Each heartbeat tick also re-reads the persisted status so
// an out-of-band pause or cancel closes the stream even while the
// executor sits inside a long inference call.
func (g *Gateway) relay(c *gin.Context, taskID uuid.UUID, events <-chan Event) {
	if g.metrics != nil {
		g.metrics.StreamsOpen.Inc()
		defer g.metrics.StreamsOpen.Dec()
	}

	ticker := time.NewTicker(g.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			g.writeEvent(c, ev)
			if ev.Terminal() {
				return
			}
		case <-ticker.C:
			if err := g.manager.Heartbeat(c.Request.Context(), taskID); err != nil {
				g.logger.Warn("heartbeat failed",
					zap.String("task_id", taskID.String()), zap.Error(err))
			}

			t, err := g.manager.Get(c.Request.Context(), taskID)
			if err == nil {
				switch t.Status {
				case StatusPaused:
					g.writeEvent(c, Event{
						Type:      EventPaused,
						TaskID:    taskID.String(),
						Step:      t.CurrentStep,
						Progress:  t.Progress,
						CanResume: true,
					})
					return
				case StatusCancelled:
					return
				}
			}

			fmt.Fprint(c.Writer, ": ping\n\n")
			c.Writer.Flush()
		}
	}
}

// writeSettled replays the terminal event for a task that is already
// past execution. Returns false when the task still has work to stream.
func (g *Gateway) writeSettled(c *gin.Context, t *Task) bool {
	switch t.Status {
	case StatusCompleted:
		g.writeEvent(c, Event{Type: EventDone, TaskID: t.ID.String(), Progress: 100})
	case StatusCancelled:
		g.writeEvent(c, Event{Type: EventCancelled, TaskID: t.ID.String()})
	case StatusFailed:
		r := t.Recoverable
		g.writeEvent(c, Event{
			Type:        EventError,
			TaskID:      t.ID.String(),
			Message:     t.Error,
			Recoverable: &r,
		})
	case StatusPaused:
		g.writeEvent(c, Event{
			Type:           EventPaused,
			TaskID:         t.ID.String(),
			Step:           t.CurrentStep,
			Progress:       t.Progress,
			CompletedSteps: t.CompletedSteps,
			CanResume:      true,
		})
	default:
		return false
	}
	return true
}

func (g *Gateway) writeEvent(c *gin.Context, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		g.logger.Error("could not encode stream event", zap.Error(err))
		return
	}
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Type, data)
	c.Writer.Flush()
	if g.metrics != nil {
		g.metrics.StreamEventsTotal.WithLabelValues(string(ev.Type)).Inc()
	}
}
