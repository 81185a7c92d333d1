package task

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Parameters is the immutable input of a task, fixed at creation.
// One structure covers the closed set of task types; Validate enforces
// the fields each type requires.
type Parameters struct {
	// Weekly summary scope.
	WeekStart *time.Time `json:"week_start,omitempty"`

	// Explicit meal group scope for meal-analysis and incremental
	// summary updates.
	MealGroupIDs []uuid.UUID `json:"meal_group_ids,omitempty"`

	// Health analysis target.
	ReportID *uuid.UUID `json:"report_id,omitempty"`

	// Recommendation kind: diet or exercise.
	RecommendationKind string `json:"recommendation_kind,omitempty"`

	// ForceRegenerate analyzes every meal group regardless of the
	// diff engine's classification.
	ForceRegenerate bool `json:"force_regenerate,omitempty"`
}

// Validate checks the parameters against the requirements of the task type.
func (p *Parameters) Validate(t Type) error {
	switch t {
	case TypeWeeklySummary:
		if p.WeekStart == nil {
			return errors.New("week_start is required for weekly summary tasks")
		}
	case TypeIncrementalSummaryUpdate:
		if p.WeekStart == nil {
			return errors.New("week_start is required for incremental summary update tasks")
		}
		if len(p.MealGroupIDs) == 0 {
			return errors.New("meal_group_ids are required for incremental summary update tasks")
		}
	case TypeMealAnalysis:
		if len(p.MealGroupIDs) == 0 {
			return errors.New("meal_group_ids are required for meal analysis tasks")
		}
	case TypeHealthAnalysis:
		if p.ReportID == nil {
			return errors.New("report_id is required for health analysis tasks")
		}
	case TypeRecommendation:
		if p.RecommendationKind != "diet" && p.RecommendationKind != "exercise" {
			return errors.New("recommendation_kind must be diet or exercise")
		}
	default:
		return errors.New("unknown task type")
	}
	return nil
}

// Intermediate is the mutable checkpoint blob. It is the sole source of
// truth for resumption: a resumed run reads it to skip work already
// done. Losing it forces a restart from step 0.
type Intermediate struct {
	// Plan is the diff engine's frozen skip/analyze decision, computed
	// once before the first execution and never re-checked mid-run.
	Plan *Plan `json:"plan,omitempty"`

	// AnalyzedIDs are meal groups whose per-item analysis is already
	// checkpointed; a resumed run does not re-analyze them.
	AnalyzedIDs []uuid.UUID `json:"analyzed_ids,omitempty"`

	// Analyses caches per-group AI results keyed by meal group ID.
	Analyses map[string]json.RawMessage `json:"analyses,omitempty"`

	// Aggregate is the merged analysis data awaiting generation.
	Aggregate json.RawMessage `json:"aggregate,omitempty"`

	// Result is the final AI output pending the save step.
	Result json.RawMessage `json:"result,omitempty"`
}

// HasAnalyzed reports whether the meal group was already checkpointed.
func (i *Intermediate) HasAnalyzed(id uuid.UUID) bool {
	if i == nil {
		return false
	}
	for _, a := range i.AnalyzedIDs {
		if a == id {
			return true
		}
	}
	return false
}

// RecordAnalysis checkpoints one analyzed meal group.
func (i *Intermediate) RecordAnalysis(id uuid.UUID, result json.RawMessage) {
	if i.Analyses == nil {
		i.Analyses = make(map[string]json.RawMessage)
	}
	i.Analyses[id.String()] = result
	if !i.HasAnalyzed(id) {
		i.AnalyzedIDs = append(i.AnalyzedIDs, id)
	}
}
