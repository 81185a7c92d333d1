package task

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nutricoach/server/internal/module/ai"
	"github.com/nutricoach/server/internal/module/client"
	"github.com/nutricoach/server/internal/module/mealgroup"
	"github.com/nutricoach/server/internal/module/report"
	"github.com/nutricoach/server/internal/module/summary"
)

// mockAI implements ai.Client with an optional per-call hook.
type mockAI struct {
	calls   []ai.Request
	err     error
	onInfer func(req *ai.Request)
}

func (m *mockAI) Infer(_ context.Context, req *ai.Request) (*ai.Response, error) {
	m.calls = append(m.calls, *req)
	if m.onInfer != nil {
		m.onInfer(req)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &ai.Response{Output: json.RawMessage(`{"ok":true}`)}, nil
}

func (m *mockAI) callsOfKind(kind ai.Kind) int {
	n := 0
	for _, c := range m.calls {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

// mockGroupRepo implements mealgroup.Repository.
type mockGroupRepo struct {
	groups map[uuid.UUID]*mealgroup.MealGroup
	logs   []*mealgroup.ExerciseLog
}

func newMockGroupRepo() *mockGroupRepo {
	return &mockGroupRepo{groups: make(map[uuid.UUID]*mealgroup.MealGroup)}
}

func (m *mockGroupRepo) Create(_ context.Context, g *mealgroup.MealGroup) error {
	m.groups[g.ID] = g
	return nil
}

func (m *mockGroupRepo) Get(_ context.Context, id uuid.UUID) (*mealgroup.MealGroup, error) {
	g, ok := m.groups[id]
	if !ok {
		return nil, mealgroup.ErrMealGroupNotFound
	}
	return g, nil
}

func (m *mockGroupRepo) ListByIDs(_ context.Context, ids []uuid.UUID) ([]*mealgroup.MealGroup, error) {
	var result []*mealgroup.MealGroup
	for _, id := range ids {
		if g, ok := m.groups[id]; ok {
			result = append(result, g)
		}
	}
	return result, nil
}

func (m *mockGroupRepo) ListByClientAndRange(_ context.Context, clientID uuid.UUID, from, to time.Time) ([]*mealgroup.MealGroup, error) {
	var result []*mealgroup.MealGroup
	for _, g := range m.groups {
		if g.ClientID == clientID && !g.Date.Before(from) && g.Date.Before(to) {
			result = append(result, g)
		}
	}
	return result, nil
}

func (m *mockGroupRepo) Update(_ context.Context, g *mealgroup.MealGroup) error {
	m.groups[g.ID] = g
	return nil
}

func (m *mockGroupRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.groups, id)
	return nil
}

func (m *mockGroupRepo) CreateExerciseLog(_ context.Context, log *mealgroup.ExerciseLog) error {
	m.logs = append(m.logs, log)
	return nil
}

func (m *mockGroupRepo) ListExerciseLogs(_ context.Context, clientID uuid.UUID, from, to time.Time) ([]*mealgroup.ExerciseLog, error) {
	var result []*mealgroup.ExerciseLog
	for _, l := range m.logs {
		if l.ClientID == clientID && !l.Date.Before(from) && l.Date.Before(to) {
			result = append(result, l)
		}
	}
	return result, nil
}

// mockSummaryRepo implements summary.Repository.
type mockSummaryRepo struct {
	summaries map[string]*summary.WeeklySummary
	analyses  map[uuid.UUID]*summary.MealGroupAnalysis
	recs      []*summary.Recommendation
}

func newMockSummaryRepo() *mockSummaryRepo {
	return &mockSummaryRepo{
		summaries: make(map[string]*summary.WeeklySummary),
		analyses:  make(map[uuid.UUID]*summary.MealGroupAnalysis),
	}
}

func summaryKey(clientID uuid.UUID, weekStart time.Time) string {
	return clientID.String() + "/" + weekStart.Format("2006-01-02")
}

func (m *mockSummaryRepo) UpsertSummary(_ context.Context, s *summary.WeeklySummary) error {
	m.summaries[summaryKey(s.ClientID, s.WeekStart)] = s
	return nil
}

func (m *mockSummaryRepo) GetSummary(_ context.Context, clientID uuid.UUID, weekStart time.Time) (*summary.WeeklySummary, error) {
	s, ok := m.summaries[summaryKey(clientID, weekStart)]
	if !ok {
		return nil, summary.ErrSummaryNotFound
	}
	return s, nil
}

func (m *mockSummaryRepo) ListSummaries(_ context.Context, clientID uuid.UUID) ([]*summary.WeeklySummary, error) {
	var result []*summary.WeeklySummary
	for _, s := range m.summaries {
		if s.ClientID == clientID {
			result = append(result, s)
		}
	}
	return result, nil
}

func (m *mockSummaryRepo) UpsertAnalysis(_ context.Context, a *summary.MealGroupAnalysis) error {
	m.analyses[a.MealGroupID] = a
	return nil
}

func (m *mockSummaryRepo) GetAnalysesByGroupIDs(_ context.Context, groupIDs []uuid.UUID) (map[uuid.UUID]*summary.MealGroupAnalysis, error) {
	result := make(map[uuid.UUID]*summary.MealGroupAnalysis)
	for _, id := range groupIDs {
		if a, ok := m.analyses[id]; ok {
			result[id] = a
		}
	}
	return result, nil
}

func (m *mockSummaryRepo) CreateRecommendation(_ context.Context, rec *summary.Recommendation) error {
	m.recs = append(m.recs, rec)
	return nil
}

func (m *mockSummaryRepo) ListRecommendations(_ context.Context, clientID uuid.UUID) ([]*summary.Recommendation, error) {
	var result []*summary.Recommendation
	for _, r := range m.recs {
		if r.ClientID == clientID {
			result = append(result, r)
		}
	}
	return result, nil
}

// mockReportRepo implements report.Repository.
type mockReportRepo struct {
	reports map[uuid.UUID]*report.HealthReport
}

func newMockReportRepo() *mockReportRepo {
	return &mockReportRepo{reports: make(map[uuid.UUID]*report.HealthReport)}
}

func (m *mockReportRepo) Create(_ context.Context, r *report.HealthReport) error {
	m.reports[r.ID] = r
	return nil
}

func (m *mockReportRepo) Get(_ context.Context, id uuid.UUID) (*report.HealthReport, error) {
	r, ok := m.reports[id]
	if !ok {
		return nil, report.ErrReportNotFound
	}
	return r, nil
}

func (m *mockReportRepo) ListByClient(_ context.Context, clientID uuid.UUID) ([]*report.HealthReport, error) {
	var result []*report.HealthReport
	for _, r := range m.reports {
		if r.ClientID == clientID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *mockReportRepo) SaveAnalysis(_ context.Context, id uuid.UUID, analysis json.RawMessage) error {
	r, ok := m.reports[id]
	if !ok {
		return report.ErrReportNotFound
	}
	now := time.Now()
	r.Analysis = analysis
	r.AnalyzedAt = &now
	return nil
}

func (m *mockReportRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.reports, id)
	return nil
}

// mockClientRepo implements client.Repository.
type mockClientRepo struct {
	clients map[uuid.UUID]*client.Client
}

func newMockClientRepo() *mockClientRepo {
	return &mockClientRepo{clients: make(map[uuid.UUID]*client.Client)}
}

func (m *mockClientRepo) Create(_ context.Context, c *client.Client) error {
	m.clients[c.ID] = c
	return nil
}

func (m *mockClientRepo) Get(_ context.Context, id uuid.UUID) (*client.Client, error) {
	c, ok := m.clients[id]
	if !ok {
		return nil, client.ErrClientNotFound
	}
	return c, nil
}

func (m *mockClientRepo) ListByCoach(_ context.Context, coachID uuid.UUID, _, _ int) ([]*client.Client, error) {
	var result []*client.Client
	for _, c := range m.clients {
		if c.CoachID == coachID {
			result = append(result, c)
		}
	}
	return result, nil
}

func (m *mockClientRepo) Update(_ context.Context, c *client.Client) error {
	m.clients[c.ID] = c
	return nil
}

func (m *mockClientRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.clients, id)
	return nil
}

func (m *mockClientRepo) OwnedBy(_ context.Context, id, coachID uuid.UUID) (bool, error) {
	c, ok := m.clients[id]
	return ok && c.CoachID == coachID, nil
}

// collectSink records every published event in order.
type collectSink struct {
	events []Event
}

func (s *collectSink) Publish(ev Event) {
	s.events = append(s.events, ev)
}

func (s *collectSink) last() Event {
	return s.events[len(s.events)-1]
}

func (s *collectSink) types() []EventType {
	result := make([]EventType, len(s.events))
	for i, ev := range s.events {
		result[i] = ev.Type
	}
	return result
}

type executorHarness struct {
	repo      *MockRepository
	manager   *Manager
	ai        *mockAI
	clients   *mockClientRepo
	groups    *mockGroupRepo
	reports   *mockReportRepo
	summaries *mockSummaryRepo
	executor  *Executor
}

func newExecutorHarness() *executorHarness {
	h := &executorHarness{
		repo:      NewMockRepository(),
		ai:        &mockAI{},
		clients:   newMockClientRepo(),
		groups:    newMockGroupRepo(),
		reports:   newMockReportRepo(),
		summaries: newMockSummaryRepo(),
	}
	h.manager = NewManager(h.repo, zap.NewNop())
	h.executor = NewExecutor(
		h.repo, h.manager, h.ai,
		h.clients, h.groups, h.reports, h.summaries,
		zap.NewNop(), nil,
	)
	return h
}

// runningTask creates a task and puts it straight into running, the
// state the gateway hands to the executor.
func (h *executorHarness) runningTask(t *testing.T, clientID uuid.UUID, taskType Type, params Parameters) *Task {
	t.Helper()
	created, existing, err := h.manager.Create(context.Background(), clientID, taskType, params)
	require.NoError(t, err)
	require.False(t, existing)
	running, err := h.manager.UpdateStatus(context.Background(), created.ID, StatusRunning)
	require.NoError(t, err)
	return running
}

func (h *executorHarness) addGroup(clientID uuid.UUID, date time.Time) *mealgroup.MealGroup {
	g := &mealgroup.MealGroup{
		ID:        uuid.New(),
		ClientID:  clientID,
		Date:      date,
		MealType:  "lunch",
		PhotoKeys: []string{"photos/" + uuid.NewString()},
		UpdatedAt: date,
	}
	h.groups.groups[g.ID] = g
	return g
}

func TestExecutor_WeeklySummary(t *testing.T) {
	h := newExecutorHarness()
	clientID := uuid.New()
	weekStart := mustParseTime(t, "2026-08-24T00:00:00Z")

	for day := 0; day < 3; day++ {
		h.addGroup(clientID, weekStart.AddDate(0, 0, day))
	}
	h.groups.logs = append(h.groups.logs, &mealgroup.ExerciseLog{
		ID: uuid.New(), ClientID: clientID, Date: weekStart.AddDate(0, 0, 1), Activity: "running",
	})

	task := h.runningTask(t, clientID, TypeWeeklySummary, Parameters{WeekStart: &weekStart})
	sink := &collectSink{}
	h.executor.Execute(context.Background(), task.ID, sink)

	stored := h.repo.tasks[task.ID]
	assert.Equal(t, StatusCompleted, stored.Status)
	assert.Equal(t, 100, stored.Progress)
	assert.NotNil(t, stored.CompletedAt)
	assert.ElementsMatch(t,
		[]string{StepFetch, StepValidate, StepAnalyze, StepAggregate, StepGenerate, StepSave},
		stored.CompletedSteps,
	)

	// Every group analyzed once, each result persisted.
	assert.Equal(t, 3, h.ai.callsOfKind(ai.KindMealAnalysis))
	assert.Equal(t, 1, h.ai.callsOfKind(ai.KindWeeklySummary))
	assert.Len(t, h.summaries.analyses, 3)

	saved, err := h.summaries.GetSummary(context.Background(), clientID, weekStart)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(saved.Content))
	require.NotNil(t, saved.TaskID)
	assert.Equal(t, task.ID, *saved.TaskID)

	assert.Equal(t, EventDone, sink.last().Type)

	// Progress never moves backwards.
	prev := 0
	for _, ev := range sink.events {
		if ev.Type == EventProgress || ev.Type == EventStepComplete {
			assert.GreaterOrEqual(t, ev.Progress, prev)
			prev = ev.Progress
		}
	}
}

func TestExecutor_IncrementalUpdate(t *testing.T) {
	h := newExecutorHarness()
	clientID := uuid.New()
	weekStart := mustParseTime(t, "2026-08-24T00:00:00Z")

	unchanged := h.addGroup(clientID, weekStart)
	changed := h.addGroup(clientID, weekStart.AddDate(0, 0, 1))
	fresh := h.addGroup(clientID, weekStart.AddDate(0, 0, 2))

	// unchanged and changed were analyzed before; fresh was not.
	for _, g := range []*mealgroup.MealGroup{unchanged, changed} {
		h.summaries.analyses[g.ID] = &summary.MealGroupAnalysis{
			ID: uuid.New(), MealGroupID: g.ID, ClientID: clientID,
			Result: json.RawMessage(`{"cached":true}`), AnalyzedAt: time.Now(),
		}
	}

	task := h.runningTask(t, clientID, TypeIncrementalSummaryUpdate, Parameters{
		WeekStart:    &weekStart,
		MealGroupIDs: []uuid.UUID{unchanged.ID, changed.ID, fresh.ID},
	})

	// The baseline is the task's own updated_at; push one group past it.
	baseline := h.repo.tasks[task.ID].UpdatedAt
	unchanged.UpdatedAt = baseline.Add(-time.Hour)
	changed.UpdatedAt = baseline.Add(time.Hour)
	fresh.UpdatedAt = baseline.Add(-time.Hour)

	sink := &collectSink{}
	h.executor.Execute(context.Background(), task.ID, sink)

	stored := h.repo.tasks[task.ID]
	require.Equal(t, StatusCompleted, stored.Status)

	// Only the changed and the never-analyzed group hit the inference
	// service; the unchanged one reuses its cached analysis.
	assert.Equal(t, 2, h.ai.callsOfKind(ai.KindMealAnalysis))
	assert.Equal(t, 1, h.ai.callsOfKind(ai.KindWeeklySummary))

	require.NotNil(t, stored.Intermediate.Plan)
	assert.Equal(t, []uuid.UUID{changed.ID, fresh.ID}, stored.Intermediate.Plan.Analyze)
	assert.Equal(t, []uuid.UUID{unchanged.ID}, stored.Intermediate.Plan.Skip)
}

func TestExecutor_ForceRegenerate(t *testing.T) {
	h := newExecutorHarness()
	clientID := uuid.New()
	weekStart := mustParseTime(t, "2026-08-24T00:00:00Z")

	groups := make([]uuid.UUID, 0, 2)
	for day := 0; day < 2; day++ {
		g := h.addGroup(clientID, weekStart.AddDate(0, 0, day))
		h.summaries.analyses[g.ID] = &summary.MealGroupAnalysis{
			ID: uuid.New(), MealGroupID: g.ID, ClientID: clientID,
			Result: json.RawMessage(`{"cached":true}`),
		}
		groups = append(groups, g.ID)
	}

	task := h.runningTask(t, clientID, TypeIncrementalSummaryUpdate, Parameters{
		WeekStart:       &weekStart,
		MealGroupIDs:    groups,
		ForceRegenerate: true,
	})

	sink := &collectSink{}
	h.executor.Execute(context.Background(), task.ID, sink)

	assert.Equal(t, StatusCompleted, h.repo.tasks[task.ID].Status)
	// Cached analyses are ignored under force_regenerate.
	assert.Equal(t, 2, h.ai.callsOfKind(ai.KindMealAnalysis))
}

func TestExecutor_PauseAtItemBoundary(t *testing.T) {
	h := newExecutorHarness()
	clientID := uuid.New()
	weekStart := mustParseTime(t, "2026-08-24T00:00:00Z")

	for day := 0; day < 3; day++ {
		h.addGroup(clientID, weekStart.AddDate(0, 0, day))
	}

	task := h.runningTask(t, clientID, TypeWeeklySummary, Parameters{WeekStart: &weekStart})

	// Pause arrives while the first analysis is in flight.
	h.ai.onInfer = func(_ *ai.Request) {
		h.repo.tasks[task.ID].Status = StatusPaused
	}

	sink := &collectSink{}
	h.executor.Execute(context.Background(), task.ID, sink)

	stored := h.repo.tasks[task.ID]
	assert.Equal(t, StatusPaused, stored.Status)

	// The in-flight item finished and was checkpointed before stopping.
	assert.Equal(t, 1, h.ai.callsOfKind(ai.KindMealAnalysis))
	assert.Len(t, stored.Intermediate.AnalyzedIDs, 1)

	last := sink.last()
	assert.Equal(t, EventPaused, last.Type)
	assert.True(t, last.CanResume)
}

func TestExecutor_ResumeSkipsCheckpointedItems(t *testing.T) {
	h := newExecutorHarness()
	clientID := uuid.New()
	weekStart := mustParseTime(t, "2026-08-24T00:00:00Z")

	for day := 0; day < 3; day++ {
		h.addGroup(clientID, weekStart.AddDate(0, 0, day))
	}

	task := h.runningTask(t, clientID, TypeWeeklySummary, Parameters{WeekStart: &weekStart})

	h.ai.onInfer = func(_ *ai.Request) {
		h.repo.tasks[task.ID].Status = StatusPaused
	}
	h.executor.Execute(context.Background(), task.ID, &collectSink{})
	require.Equal(t, StatusPaused, h.repo.tasks[task.ID].Status)
	require.Len(t, h.repo.tasks[task.ID].Intermediate.AnalyzedIDs, 1)

	// Resume and run to completion.
	h.ai.onInfer = nil
	_, err := h.manager.Resume(context.Background(), task.ID)
	require.NoError(t, err)

	sink := &collectSink{}
	h.executor.Execute(context.Background(), task.ID, sink)

	stored := h.repo.tasks[task.ID]
	assert.Equal(t, StatusCompleted, stored.Status)

	// 1 before the pause + 2 after; the checkpointed item is not redone.
	assert.Equal(t, 3, h.ai.callsOfKind(ai.KindMealAnalysis))
	assert.Equal(t, EventResumed, sink.events[0].Type)
	assert.Equal(t, EventDone, sink.last().Type)
}

func TestExecutor_CancelAtItemBoundary(t *testing.T) {
	h := newExecutorHarness()
	clientID := uuid.New()
	weekStart := mustParseTime(t, "2026-08-24T00:00:00Z")

	for day := 0; day < 2; day++ {
		h.addGroup(clientID, weekStart.AddDate(0, 0, day))
	}

	task := h.runningTask(t, clientID, TypeWeeklySummary, Parameters{WeekStart: &weekStart})
	h.ai.onInfer = func(_ *ai.Request) {
		h.repo.tasks[task.ID].Status = StatusCancelled
	}

	sink := &collectSink{}
	h.executor.Execute(context.Background(), task.ID, sink)

	assert.Equal(t, StatusCancelled, h.repo.tasks[task.ID].Status)
	assert.Equal(t, 1, h.ai.callsOfKind(ai.KindMealAnalysis))
	assert.Equal(t, EventCancelled, sink.last().Type)
}

func TestExecutor_RecoverableFailure(t *testing.T) {
	h := newExecutorHarness()
	clientID := uuid.New()
	weekStart := mustParseTime(t, "2026-08-24T00:00:00Z")
	h.addGroup(clientID, weekStart)

	task := h.runningTask(t, clientID, TypeWeeklySummary, Parameters{WeekStart: &weekStart})
	h.ai.err = ai.ErrUnavailable

	sink := &collectSink{}
	h.executor.Execute(context.Background(), task.ID, sink)

	stored := h.repo.tasks[task.ID]
	assert.Equal(t, StatusFailed, stored.Status)
	assert.True(t, stored.Recoverable)
	assert.NotEmpty(t, stored.Error)

	last := sink.last()
	assert.Equal(t, EventError, last.Type)
	require.NotNil(t, last.Recoverable)
	assert.True(t, *last.Recoverable)
}

func TestExecutor_StructuralFailure(t *testing.T) {
	h := newExecutorHarness()
	clientID := uuid.New()
	weekStart := mustParseTime(t, "2026-08-24T00:00:00Z")

	// No meal groups exist for the week.
	task := h.runningTask(t, clientID, TypeWeeklySummary, Parameters{WeekStart: &weekStart})

	sink := &collectSink{}
	h.executor.Execute(context.Background(), task.ID, sink)

	stored := h.repo.tasks[task.ID]
	assert.Equal(t, StatusFailed, stored.Status)
	assert.False(t, stored.Recoverable)
	assert.Empty(t, h.ai.calls)
}

func TestExecutor_HealthAnalysis(t *testing.T) {
	h := newExecutorHarness()
	clientID := uuid.New()

	rep := &report.HealthReport{
		ID: uuid.New(), ClientID: clientID,
		Title: "Annual checkup", FileKey: "reports/" + clientID.String() + "/annual.pdf",
	}
	h.reports.reports[rep.ID] = rep

	task := h.runningTask(t, clientID, TypeHealthAnalysis, Parameters{ReportID: &rep.ID})
	sink := &collectSink{}
	h.executor.Execute(context.Background(), task.ID, sink)

	assert.Equal(t, StatusCompleted, h.repo.tasks[task.ID].Status)
	assert.Equal(t, 1, h.ai.callsOfKind(ai.KindHealthAnalysis))
	assert.JSONEq(t, `{"ok":true}`, string(rep.Analysis))
	assert.NotNil(t, rep.AnalyzedAt)
}

func TestExecutor_HealthAnalysisWrongClient(t *testing.T) {
	h := newExecutorHarness()

	rep := &report.HealthReport{
		ID: uuid.New(), ClientID: uuid.New(), Title: "Checkup", FileKey: "reports/x.pdf",
	}
	h.reports.reports[rep.ID] = rep

	// Task is scoped to a different client than the report's owner.
	task := h.runningTask(t, uuid.New(), TypeHealthAnalysis, Parameters{ReportID: &rep.ID})
	h.executor.Execute(context.Background(), task.ID, &collectSink{})

	stored := h.repo.tasks[task.ID]
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Empty(t, h.ai.calls)
}

func TestExecutor_Recommendation(t *testing.T) {
	h := newExecutorHarness()
	clientID := uuid.New()
	h.clients.clients[clientID] = &client.Client{
		ID: clientID, CoachID: uuid.New(), Name: "Jamie",
		Goal: "lose weight", HeightCM: 170, WeightKG: 80,
	}

	task := h.runningTask(t, clientID, TypeRecommendation, Parameters{RecommendationKind: "diet"})
	sink := &collectSink{}
	h.executor.Execute(context.Background(), task.ID, sink)

	assert.Equal(t, StatusCompleted, h.repo.tasks[task.ID].Status)
	assert.Equal(t, 1, h.ai.callsOfKind(ai.KindRecommendation))

	require.Len(t, h.summaries.recs, 1)
	rec := h.summaries.recs[0]
	assert.Equal(t, clientID, rec.ClientID)
	assert.Equal(t, "diet", rec.Kind)
	assert.JSONEq(t, `{"ok":true}`, string(rec.Content))
}

func TestExecutor_MealAnalysis(t *testing.T) {
	h := newExecutorHarness()
	clientID := uuid.New()
	weekStart := mustParseTime(t, "2026-08-24T00:00:00Z")

	g1 := h.addGroup(clientID, weekStart)
	g2 := h.addGroup(clientID, weekStart.AddDate(0, 0, 1))

	task := h.runningTask(t, clientID, TypeMealAnalysis, Parameters{
		MealGroupIDs: []uuid.UUID{g1.ID, g2.ID},
	})
	sink := &collectSink{}
	h.executor.Execute(context.Background(), task.ID, sink)

	assert.Equal(t, StatusCompleted, h.repo.tasks[task.ID].Status)
	assert.Equal(t, 2, h.ai.callsOfKind(ai.KindMealAnalysis))
	assert.Len(t, h.summaries.analyses, 2)
	assert.Equal(t, EventDone, sink.last().Type)
}

func TestExecutor_PlanIncremental(t *testing.T) {
	h := newExecutorHarness()
	clientID := uuid.New()
	weekStart := mustParseTime(t, "2026-08-24T00:00:00Z")

	g := h.addGroup(clientID, weekStart)
	h.summaries.analyses[g.ID] = &summary.MealGroupAnalysis{
		ID: uuid.New(), MealGroupID: g.ID, ClientID: clientID,
		Result: json.RawMessage(`{"cached":true}`),
	}

	created, _, err := h.manager.Create(context.Background(), clientID, TypeIncrementalSummaryUpdate, Parameters{
		WeekStart:    &weekStart,
		MealGroupIDs: []uuid.UUID{g.ID},
	})
	require.NoError(t, err)
	g.UpdatedAt = created.UpdatedAt.Add(-time.Hour)

	t.Run("unchanged scope is up to date", func(t *testing.T) {
		plan, err := h.executor.PlanIncremental(context.Background(), created)
		require.NoError(t, err)
		assert.True(t, plan.UpToDate())
	})

	t.Run("frozen plan wins over recomputation", func(t *testing.T) {
		frozen := &Plan{Analyze: []uuid.UUID{g.ID}}
		created.Intermediate = &Intermediate{Plan: frozen}
		plan, err := h.executor.PlanIncremental(context.Background(), created)
		require.NoError(t, err)
		assert.Equal(t, frozen, plan)
	})

	t.Run("rejects other task types", func(t *testing.T) {
		weekly := &Task{Type: TypeWeeklySummary}
		_, err := h.executor.PlanIncremental(context.Background(), weekly)
		assert.Error(t, err)
	})
}
