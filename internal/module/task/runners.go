package task

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nutricoach/server/internal/module/ai"
	"github.com/nutricoach/server/internal/module/mealgroup"
	"github.com/nutricoach/server/internal/module/summary"
)

// Progress marks for summary tasks. The analyze loop spreads its share
// across items so per-item checkpoints move the bar visibly.
const (
	summaryProgressFetch     = 10
	summaryProgressValidate  = 15
	summaryProgressAnalyze   = 70
	summaryProgressAggregate = 80
	summaryProgressGenerate  = 90
	summaryProgressSave      = 95
)

// runSummary handles weekly summaries and incremental summary updates.
// The two types share the pipeline; they differ only in how the meal
// group scope is fetched and in whether the diff engine may skip items.
func (e *Executor) runSummary(ctx context.Context, t *Task, sink Sink) error {
	weekStart := *t.Parameters.WeekStart
	weekEnd := weekStart.AddDate(0, 0, 7)

	// fetch
	e.reportProgress(t, sink, StepFetch, 0, "loading meal groups")
	var (
		groups []*mealgroup.MealGroup
		err    error
	)
	if t.Type == TypeIncrementalSummaryUpdate {
		groups, err = e.groups.ListByIDs(ctx, t.Parameters.MealGroupIDs)
	} else {
		groups, err = e.groups.ListByClientAndRange(ctx, t.ClientID, weekStart, weekEnd)
	}
	if err != nil {
		return fmt.Errorf("fetch meal groups: %w", err)
	}
	if err := e.completeStep(ctx, t, StepFetch, summaryProgressFetch, sink); err != nil {
		return err
	}

	// validate
	if len(groups) == 0 {
		return fmt.Errorf("no meal groups logged for week starting %s", weekStart.Format("2006-01-02"))
	}
	if t.Type == TypeIncrementalSummaryUpdate && len(groups) != len(t.Parameters.MealGroupIDs) {
		return fmt.Errorf("only %d of %d requested meal groups exist", len(groups), len(t.Parameters.MealGroupIDs))
	}
	if err := e.completeStep(ctx, t, StepValidate, summaryProgressValidate, sink); err != nil {
		return err
	}

	// The plan is computed once and frozen into the checkpoint so a
	// resumed run keeps the original skip/analyze partition even after
	// checkpoints have moved the task's own updated_at forward.
	if t.Intermediate.Plan == nil {
		candidates, err := e.buildCandidates(ctx, groups)
		if err != nil {
			return err
		}
		if t.Type == TypeWeeklySummary || t.Parameters.ForceRegenerate {
			t.Intermediate.Plan = PlanAll(candidates)
		} else {
			t.Intermediate.Plan = PlanUpdate(t.UpdatedAt, candidates)
		}
		if err := e.repo.Checkpoint(ctx, t); err != nil {
			return fmt.Errorf("checkpoint plan: %w", err)
		}
	}
	plan := t.Intermediate.Plan

	// analyze
	if err := e.analyzeGroups(ctx, t, sink, groups, plan, summaryProgressValidate, summaryProgressAnalyze); err != nil {
		return err
	}
	if err := e.completeStep(ctx, t, StepAnalyze, summaryProgressAnalyze, sink); err != nil {
		return err
	}

	// aggregate
	if err := e.checkControl(ctx, t.ID); err != nil {
		return err
	}
	if t.Intermediate.Aggregate == nil {
		agg, err := e.aggregate(ctx, t, groups, plan, weekStart, weekEnd)
		if err != nil {
			return err
		}
		t.Intermediate.Aggregate = agg
	}
	if err := e.completeStep(ctx, t, StepAggregate, summaryProgressAggregate, sink); err != nil {
		return err
	}

	// generate
	if err := e.checkControl(ctx, t.ID); err != nil {
		return err
	}
	if t.Intermediate.Result == nil {
		e.reportProgress(t, sink, StepGenerate, summaryProgressAggregate, "generating weekly summary")
		resp, err := e.infer(&ai.Request{
			Kind: ai.KindWeeklySummary,
			Input: map[string]any{
				"client_id":  t.ClientID.String(),
				"week_start": weekStart.Format("2006-01-02"),
				"aggregate":  t.Intermediate.Aggregate,
			},
		})
		if err != nil {
			return fmt.Errorf("generate summary: %w", err)
		}
		t.Intermediate.Result = resp.Output
	}
	if err := e.completeStep(ctx, t, StepGenerate, summaryProgressGenerate, sink); err != nil {
		return err
	}

	// save
	now := time.Now()
	taskID := t.ID
	err = e.summaries.UpsertSummary(ctx, &summary.WeeklySummary{
		ClientID:    t.ClientID,
		WeekStart:   weekStart,
		Content:     t.Intermediate.Result,
		TaskID:      &taskID,
		GeneratedAt: now,
	})
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return e.completeStep(ctx, t, StepSave, summaryProgressSave, sink)
}

// analyzeGroups runs the per-item analysis loop, checkpointing after
// each item so a pause or crash loses at most one inference call.
func (e *Executor) analyzeGroups(ctx context.Context, t *Task, sink Sink, groups []*mealgroup.MealGroup, plan *Plan, from, to int) error {
	byID := make(map[uuid.UUID]*mealgroup.MealGroup, len(groups))
	for _, g := range groups {
		byID[g.ID] = g
	}

	total := len(plan.Analyze)
	for idx, id := range plan.Analyze {
		if err := e.checkControl(ctx, t.ID); err != nil {
			return err
		}
		if t.Intermediate.HasAnalyzed(id) {
			continue
		}
		g, ok := byID[id]
		if !ok {
			return fmt.Errorf("meal group %s disappeared during analysis", id)
		}

		e.reportProgress(t, sink, StepAnalyze, t.Progress,
			fmt.Sprintf("analyzing meal group %d of %d", idx+1, total))

		started := time.Now()
		resp, err := e.infer(&ai.Request{
			Kind: ai.KindMealAnalysis,
			Input: map[string]any{
				"meal_group_id": g.ID.String(),
				"client_id":     g.ClientID.String(),
				"date":          g.Date.Format("2006-01-02"),
				"meal_type":     g.MealType,
				"photo_keys":    g.PhotoKeys,
				"notes":         g.Notes,
			},
		})
		if err != nil {
			return fmt.Errorf("analyze meal group %s: %w", g.ID, err)
		}
		if e.metrics != nil {
			e.metrics.TaskStepDuration.WithLabelValues(string(t.Type), StepAnalyze).
				Observe(time.Since(started).Seconds())
		}

		err = e.summaries.UpsertAnalysis(ctx, &summary.MealGroupAnalysis{
			MealGroupID: g.ID,
			ClientID:    g.ClientID,
			Result:      resp.Output,
			AnalyzedAt:  time.Now(),
		})
		if err != nil {
			return fmt.Errorf("save analysis for meal group %s: %w", g.ID, err)
		}

		t.Intermediate.RecordAnalysis(g.ID, resp.Output)
		progress := from
		if total > 0 {
			progress = from + (idx+1)*(to-from)/total
		}
		if progress > t.Progress {
			t.Progress = progress
		}
		t.CurrentStep = StepAnalyze
		if err := e.repo.Checkpoint(ctx, t); err != nil {
			return fmt.Errorf("checkpoint meal group %s: %w", g.ID, err)
		}
		sink.Publish(Event{
			Type:     EventProgress,
			TaskID:   t.ID.String(),
			Step:     StepAnalyze,
			Progress: t.Progress,
			Message:  fmt.Sprintf("analyzed meal group %d of %d", idx+1, total),
		})
	}
	return nil
}

// aggregate merges fresh and cached analyses with the week's exercise
// logs into the input blob for summary generation.
func (e *Executor) aggregate(ctx context.Context, t *Task, groups []*mealgroup.MealGroup, plan *Plan, weekStart, weekEnd time.Time) (json.RawMessage, error) {
	cached, err := e.summaries.GetAnalysesByGroupIDs(ctx, plan.Skip)
	if err != nil {
		return nil, fmt.Errorf("load cached analyses: %w", err)
	}

	type groupAnalysis struct {
		MealGroupID uuid.UUID       `json:"meal_group_id"`
		Date        string          `json:"date"`
		MealType    string          `json:"meal_type"`
		Result      json.RawMessage `json:"result"`
	}
	analyses := make([]groupAnalysis, 0, len(groups))
	for _, g := range groups {
		var result json.RawMessage
		if r, ok := t.Intermediate.Analyses[g.ID.String()]; ok {
			result = r
		} else if a, ok := cached[g.ID]; ok {
			result = a.Result
		} else {
			return nil, fmt.Errorf("no analysis available for meal group %s", g.ID)
		}
		analyses = append(analyses, groupAnalysis{
			MealGroupID: g.ID,
			Date:        g.Date.Format("2006-01-02"),
			MealType:    g.MealType,
			Result:      result,
		})
	}

	logs, err := e.groups.ListExerciseLogs(ctx, t.ClientID, weekStart, weekEnd)
	if err != nil {
		return nil, fmt.Errorf("load exercise logs: %w", err)
	}

	agg, err := json.Marshal(map[string]any{
		"week_start":    weekStart.Format("2006-01-02"),
		"meal_analyses": analyses,
		"exercise_logs": logs,
	})
	if err != nil {
		return nil, fmt.Errorf("encode aggregate: %w", err)
	}
	return agg, nil
}

// runMealAnalysis analyzes an explicit set of meal groups with no
// summary generation afterwards.
func (e *Executor) runMealAnalysis(ctx context.Context, t *Task, sink Sink) error {
	e.reportProgress(t, sink, StepFetch, 0, "loading meal groups")
	groups, err := e.groups.ListByIDs(ctx, t.Parameters.MealGroupIDs)
	if err != nil {
		return fmt.Errorf("fetch meal groups: %w", err)
	}
	if err := e.completeStep(ctx, t, StepFetch, 10, sink); err != nil {
		return err
	}

	if len(groups) != len(t.Parameters.MealGroupIDs) {
		return fmt.Errorf("only %d of %d requested meal groups exist", len(groups), len(t.Parameters.MealGroupIDs))
	}
	if err := e.completeStep(ctx, t, StepValidate, 15, sink); err != nil {
		return err
	}

	if t.Intermediate.Plan == nil {
		candidates, err := e.buildCandidates(ctx, groups)
		if err != nil {
			return err
		}
		// Explicit analysis always covers every requested group.
		t.Intermediate.Plan = PlanAll(candidates)
		if err := e.repo.Checkpoint(ctx, t); err != nil {
			return fmt.Errorf("checkpoint plan: %w", err)
		}
	}

	if err := e.analyzeGroups(ctx, t, sink, groups, t.Intermediate.Plan, 15, 90); err != nil {
		return err
	}
	if err := e.completeStep(ctx, t, StepAnalyze, 90, sink); err != nil {
		return err
	}

	// Per-item results are already persisted by the analyze loop.
	return e.completeStep(ctx, t, StepSave, 95, sink)
}

// runHealthAnalysis analyzes one uploaded health report.
func (e *Executor) runHealthAnalysis(ctx context.Context, t *Task, sink Sink) error {
	e.reportProgress(t, sink, StepFetch, 0, "loading health report")
	rep, err := e.reports.Get(ctx, *t.Parameters.ReportID)
	if err != nil {
		return fmt.Errorf("fetch health report: %w", err)
	}
	if err := e.completeStep(ctx, t, StepFetch, 15, sink); err != nil {
		return err
	}

	if rep.ClientID != t.ClientID {
		return fmt.Errorf("health report %s does not belong to client %s", rep.ID, t.ClientID)
	}
	if rep.FileKey == "" {
		return fmt.Errorf("health report %s has no uploaded file", rep.ID)
	}
	if err := e.completeStep(ctx, t, StepValidate, 25, sink); err != nil {
		return err
	}

	if err := e.checkControl(ctx, t.ID); err != nil {
		return err
	}
	if t.Intermediate.Result == nil {
		e.reportProgress(t, sink, StepGenerate, 25, "analyzing health report")
		resp, err := e.infer(&ai.Request{
			Kind: ai.KindHealthAnalysis,
			Input: map[string]any{
				"report_id":    rep.ID.String(),
				"client_id":    rep.ClientID.String(),
				"title":        rep.Title,
				"file_key":     rep.FileKey,
				"content_type": rep.ContentType,
			},
		})
		if err != nil {
			return fmt.Errorf("analyze health report: %w", err)
		}
		t.Intermediate.Result = resp.Output
		if err := e.repo.Checkpoint(ctx, t); err != nil {
			return fmt.Errorf("checkpoint analysis: %w", err)
		}
	}
	if err := e.completeStep(ctx, t, StepGenerate, 85, sink); err != nil {
		return err
	}

	if err := e.reports.SaveAnalysis(ctx, rep.ID, t.Intermediate.Result); err != nil {
		return fmt.Errorf("save report analysis: %w", err)
	}
	return e.completeStep(ctx, t, StepSave, 95, sink)
}

// runRecommendation generates a diet or exercise recommendation from
// the client's profile and their recent weekly summaries.
func (e *Executor) runRecommendation(ctx context.Context, t *Task, sink Sink) error {
	e.reportProgress(t, sink, StepFetch, 0, "loading client profile")
	cl, err := e.clients.Get(ctx, t.ClientID)
	if err != nil {
		return fmt.Errorf("fetch client: %w", err)
	}
	summaries, err := e.summaries.ListSummaries(ctx, t.ClientID)
	if err != nil {
		return fmt.Errorf("fetch summaries: %w", err)
	}
	if err := e.completeStep(ctx, t, StepFetch, 15, sink); err != nil {
		return err
	}

	if cl.Goal == "" && len(summaries) == 0 {
		return fmt.Errorf("client %s has no goal and no summaries to base a recommendation on", cl.ID)
	}
	if err := e.completeStep(ctx, t, StepValidate, 25, sink); err != nil {
		return err
	}

	if err := e.checkControl(ctx, t.ID); err != nil {
		return err
	}
	if t.Intermediate.Result == nil {
		e.reportProgress(t, sink, StepGenerate, 25, "generating recommendation")
		input := map[string]any{
			"client_id": cl.ID.String(),
			"kind":      t.Parameters.RecommendationKind,
			"goal":      cl.Goal,
			"height_cm": cl.HeightCM,
			"weight_kg": cl.WeightKG,
		}
		// Most recent summary carries the strongest signal.
		if len(summaries) > 0 {
			input["latest_summary"] = summaries[0].Content
		}
		resp, err := e.infer(&ai.Request{Kind: ai.KindRecommendation, Input: input})
		if err != nil {
			return fmt.Errorf("generate recommendation: %w", err)
		}
		t.Intermediate.Result = resp.Output
		if err := e.repo.Checkpoint(ctx, t); err != nil {
			return fmt.Errorf("checkpoint recommendation: %w", err)
		}
	}
	if err := e.completeStep(ctx, t, StepGenerate, 85, sink); err != nil {
		return err
	}

	taskID := t.ID
	err = e.summaries.CreateRecommendation(ctx, &summary.Recommendation{
		ClientID:    t.ClientID,
		Kind:        t.Parameters.RecommendationKind,
		Content:     t.Intermediate.Result,
		TaskID:      &taskID,
		GeneratedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("save recommendation: %w", err)
	}
	return e.completeStep(ctx, t, StepSave, 95, sink)
}

// infer calls the inference client with a timeout independent of the
// stream's lifetime, so a disconnected viewer cannot abort the call.
func (e *Executor) infer(req *ai.Request) (*ai.Response, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	return e.ai.Infer(ctx, req)
}
