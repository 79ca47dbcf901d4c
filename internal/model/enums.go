package model

// Source identifies where an inbound message came from.
type Source string

const (
	SourceGmail         Source = "gmail"
	SourceOutlook       Source = "outlook"
	SourceUBLearnsEmail Source = "ublearns_email"
	SourcePiazzaEmail   Source = "piazza_email"
)

var validSources = map[Source]bool{
	SourceGmail:         true,
	SourceOutlook:       true,
	SourceUBLearnsEmail: true,
	SourcePiazzaEmail:   true,
}

// IsValid returns true if the source is one of the recognized values.
func (s Source) IsValid() bool { return validSources[s] }

// ParserMethod records which extraction path produced an update card.
type ParserMethod string

const (
	ParserRuleBased   ParserMethod = "rule_based"
	ParserLLMFallback ParserMethod = "llm_fallback"
)

// Category classifies a task by the kind of work it demands.
type Category string

const (
	CategoryAssignment  Category = "assignment"
	CategoryQuiz        Category = "quiz"
	CategoryEmailReply  Category = "email_reply"
	CategoryApplication Category = "application"
	CategoryLeetcode    Category = "leetcode"
	CategoryProject     Category = "project"
	CategoryAdmin       Category = "admin"
)

var validCategories = map[Category]bool{
	CategoryAssignment:  true,
	CategoryQuiz:        true,
	CategoryEmailReply:  true,
	CategoryApplication: true,
	CategoryLeetcode:    true,
	CategoryProject:     true,
	CategoryAdmin:       true,
}

// IsValid returns true if the category is one of the recognized values.
func (c Category) IsValid() bool { return validCategories[c] }

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
	TaskIgnored    TaskStatus = "ignored"
)

var validTaskStatuses = map[TaskStatus]bool{
	TaskTodo:       true,
	TaskInProgress: true,
	TaskDone:       true,
	TaskIgnored:    true,
}

// IsValid returns true if the status is one of the recognized values.
func (s TaskStatus) IsValid() bool { return validTaskStatuses[s] }

// Active reports whether a task in this status still competes for schedule time.
func (s TaskStatus) Active() bool { return s == TaskTodo || s == TaskInProgress }

// FeasibilityState is the planner's verdict on a task or a whole day.
type FeasibilityState string

const (
	FeasibilityOnTrack    FeasibilityState = "on_track"
	FeasibilityAtRisk     FeasibilityState = "at_risk"
	FeasibilityInfeasible FeasibilityState = "infeasible"
)

// LockLevel controls whether the planner may reshuffle a block.
type LockLevel string

const (
	LockFlexible LockLevel = "flexible"
	LockLocked   LockLevel = "locked"
)

// OperationStatus is the lifecycle state of an attempted edit.
type OperationStatus string

const (
	OperationApplied              OperationStatus = "applied"
	OperationRejected             OperationStatus = "rejected"
	OperationRequiresConfirmation OperationStatus = "requires_confirmation"
	OperationUndone               OperationStatus = "undone"
)

// EditIntent enumerates the structured edits the command surface can request.
type EditIntent string

const (
	IntentCreateBlock    EditIntent = "create_block"
	IntentMoveBlock      EditIntent = "move_block"
	IntentResizeBlock    EditIntent = "resize_block"
	IntentDeleteBlock    EditIntent = "delete_block"
	IntentMarkDone       EditIntent = "mark_done"
	IntentLockSleep      EditIntent = "lock_sleep"
	IntentRegeneratePlan EditIntent = "regenerate_plan"
)

// Provider identifies a mail backend.
type Provider string

const (
	ProviderGmail   Provider = "gmail"
	ProviderOutlook Provider = "outlook"
)

// DefaultSource maps a provider onto the source recorded for its messages.
func (p Provider) DefaultSource() Source {
	if p == ProviderOutlook {
		return SourceOutlook
	}
	return SourceGmail
}
