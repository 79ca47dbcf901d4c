package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mira/internal/model"
)

func window(h int) (*time.Time, *time.Time) {
	start := time.Date(2026, 3, 2, h, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	return &start, &end
}

func TestValidateEditCheckOrder(t *testing.T) {
	engine := New()
	start, end := window(19)

	base := model.EditOperation{
		Intent:               model.IntentMoveBlock,
		ExpectedPlanRevision: 5,
		FuzzyTitle:           "Homework",
		StartLocal:           start,
		EndLocal:             end,
	}

	t.Run("stale revision rejected first", func(t *testing.T) {
		stale := base
		stale.ExpectedPlanRevision = 4
		// Even with an ambiguous target, staleness wins.
		v := engine.ValidateEdit(stale, EditContext{CurrentPlanRevision: 5, MatchedTargetCount: 3})
		assert.Equal(t, Rejected, v.Decision)
		assert.Equal(t, ReasonStaleRevision, v.Reason)
	})

	t.Run("non-agent event needs confirmation", func(t *testing.T) {
		v := engine.ValidateEdit(base, EditContext{CurrentPlanRevision: 5, TouchesNonAgentManaged: true})
		assert.Equal(t, RequiresConfirmation, v.Decision)
		assert.Equal(t, ReasonNonAgentEvent, v.Reason)
	})

	t.Run("ambiguous target needs confirmation", func(t *testing.T) {
		v := engine.ValidateEdit(base, EditContext{CurrentPlanRevision: 5, MatchedTargetCount: 2})
		assert.Equal(t, RequiresConfirmation, v.Decision)
		assert.Equal(t, ReasonAmbiguousTarget, v.Reason)
	})

	t.Run("explicit confirmation flag", func(t *testing.T) {
		flagged := base
		flagged.RequiresConfirmation = true
		flagged.AmbiguityReason = "fuzzy title matched weakly"
		v := engine.ValidateEdit(flagged, EditContext{CurrentPlanRevision: 5, MatchedTargetCount: 1})
		assert.Equal(t, RequiresConfirmation, v.Decision)
		assert.Equal(t, "fuzzy title matched weakly", v.Reason)
	})

	t.Run("clean edit approved", func(t *testing.T) {
		v := engine.ValidateEdit(base, EditContext{CurrentPlanRevision: 5, MatchedTargetCount: 1})
		assert.True(t, v.Approved())
	})
}

func TestValidateEditIntentChecks(t *testing.T) {
	engine := New()
	ctx := EditContext{CurrentPlanRevision: 1, MatchedTargetCount: 1}
	start, end := window(9)

	cases := []struct {
		name string
		edit model.EditOperation
		want Decision
		why  string
	}{
		{
			name: "create without window",
			edit: model.EditOperation{Intent: model.IntentCreateBlock, ExpectedPlanRevision: 1},
			want: Rejected, why: ReasonInvalidTimeWindow,
		},
		{
			name: "move with inverted window",
			edit: model.EditOperation{Intent: model.IntentMoveBlock, ExpectedPlanRevision: 1, StartLocal: end, EndLocal: start},
			want: Rejected, why: ReasonInvalidTimeWindow,
		},
		{
			name: "resize with window",
			edit: model.EditOperation{Intent: model.IntentResizeBlock, ExpectedPlanRevision: 1, StartLocal: start, EndLocal: end},
			want: Approved,
		},
		{
			name: "delete without target",
			edit: model.EditOperation{Intent: model.IntentDeleteBlock, ExpectedPlanRevision: 1},
			want: Rejected, why: ReasonMissingTarget,
		},
		{
			name: "mark done by event id",
			edit: model.EditOperation{Intent: model.IntentMarkDone, ExpectedPlanRevision: 1, CalendarEventID: "evt-1"},
			want: Approved,
		},
		{
			name: "lock sleep without window",
			edit: model.EditOperation{Intent: model.IntentLockSleep, ExpectedPlanRevision: 1},
			want: Rejected, why: ReasonMissingSleep,
		},
		{
			name: "lock sleep with window",
			edit: model.EditOperation{Intent: model.IntentLockSleep, ExpectedPlanRevision: 1, SleepWindow: "00:30-08:00"},
			want: Approved,
		},
		{
			name: "regenerate unconditional",
			edit: model.EditOperation{Intent: model.IntentRegeneratePlan, ExpectedPlanRevision: 1},
			want: Approved,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := engine.ValidateEdit(tc.edit, ctx)
			assert.Equal(t, tc.want, v.Decision)
			if tc.why != "" {
				assert.Equal(t, tc.why, v.Reason)
			}
		})
	}
}

func TestValidateUpdate(t *testing.T) {
	engine := New()
	ctx := UpdateContext{ConfidenceThreshold: 0.80}

	cases := []struct {
		name   string
		update model.UpdateCard
		want   Decision
	}{
		{"confidence out of range", model.UpdateCard{Subject: "x", ParseConfidence: 1.2}, Rejected},
		{"negative confidence", model.UpdateCard{Subject: "x", ParseConfidence: -0.1}, Rejected},
		{"blank subject", model.UpdateCard{Subject: "   ", ParseConfidence: 0.9}, Rejected},
		{"below threshold", model.UpdateCard{Subject: "x", ParseConfidence: 0.79}, RequiresConfirmation},
		{"flagged card", model.UpdateCard{Subject: "x", ParseConfidence: 0.95, RequiresConfirmation: true}, RequiresConfirmation},
		{"clean card", model.UpdateCard{Subject: "x", ParseConfidence: 0.95}, Approved},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, engine.ValidateUpdate(tc.update, ctx).Decision)
		})
	}
}
