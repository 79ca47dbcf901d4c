package rules

import (
	"strings"

	"mira/internal/model"
)

// Decision is the firewall's verdict on one edit or update.
type Decision string

const (
	Approved             Decision = "approved"
	RequiresConfirmation Decision = "requires_confirmation"
	Rejected             Decision = "rejected"
)

// Rejection reasons surfaced in command responses.
const (
	ReasonStaleRevision     = "stale_plan_revision"
	ReasonNonAgentEvent     = "non_agent_event"
	ReasonAmbiguousTarget   = "ambiguous_target"
	ReasonInvalidTimeWindow = "invalid_or_missing_time_window"
	ReasonMissingTarget     = "missing_target_identifier"
	ReasonMissingSleep      = "missing_sleep_window"
	ReasonExplicitFlag      = "explicit_confirmation_flag"
	ReasonLowConfidence     = "low_parse_confidence"
	ReasonInvalidConfidence = "confidence_out_of_range"
	ReasonBlankSubject      = "blank_subject"
)

// Verdict pairs a decision with its reason. Approved verdicts carry no
// reason.
type Verdict struct {
	Decision Decision
	Reason   string
}

func approved() Verdict              { return Verdict{Decision: Approved} }
func confirm(reason string) Verdict  { return Verdict{Decision: RequiresConfirmation, Reason: reason} }
func rejected(reason string) Verdict { return Verdict{Decision: Rejected, Reason: reason} }

// Approved reports whether the verdict allows the action unconditionally.
func (v Verdict) Approved() bool { return v.Decision == Approved }

// EditContext carries everything the engine needs to judge an edit beyond
// the edit itself.
type EditContext struct {
	CurrentPlanRevision    int64
	TouchesNonAgentManaged bool
	MatchedTargetCount     int
}

// UpdateContext carries the confidence threshold for update validation.
type UpdateContext struct {
	ConfidenceThreshold float64
}

// Engine is the policy firewall. Both validators are total functions: every
// input yields a verdict, never an error.
type Engine struct{}

// New returns a rules engine.
func New() *Engine { return &Engine{} }

// ValidateEdit judges one edit operation. Checks run in a fixed order; the
// first failing check decides.
func (e *Engine) ValidateEdit(edit model.EditOperation, ctx EditContext) Verdict {
	if edit.ExpectedPlanRevision != ctx.CurrentPlanRevision {
		return rejected(ReasonStaleRevision)
	}
	if ctx.TouchesNonAgentManaged {
		return confirm(ReasonNonAgentEvent)
	}
	if ctx.MatchedTargetCount > 1 {
		return confirm(ReasonAmbiguousTarget)
	}
	if edit.RequiresConfirmation {
		reason := edit.AmbiguityReason
		if reason == "" {
			reason = ReasonExplicitFlag
		}
		return confirm(reason)
	}

	switch edit.Intent {
	case model.IntentCreateBlock, model.IntentMoveBlock, model.IntentResizeBlock:
		if !edit.HasTimeWindow() {
			return rejected(ReasonInvalidTimeWindow)
		}
	case model.IntentDeleteBlock, model.IntentMarkDone:
		if !edit.HasTarget() {
			return rejected(ReasonMissingTarget)
		}
	case model.IntentLockSleep:
		if strings.TrimSpace(edit.SleepWindow) == "" {
			return rejected(ReasonMissingSleep)
		}
	case model.IntentRegeneratePlan:
		// Always allowed.
	}
	return approved()
}

// ValidateUpdate judges one extracted update card against the confidence
// gate.
func (e *Engine) ValidateUpdate(update model.UpdateCard, ctx UpdateContext) Verdict {
	if update.ParseConfidence < 0 || update.ParseConfidence > 1 {
		return rejected(ReasonInvalidConfidence)
	}
	if strings.TrimSpace(update.Subject) == "" {
		return rejected(ReasonBlankSubject)
	}
	if update.ParseConfidence < ctx.ConfidenceThreshold {
		return confirm(ReasonLowConfidence)
	}
	if update.RequiresConfirmation {
		return confirm(ReasonExplicitFlag)
	}
	return approved()
}
