package analytics

import "time"

// Category is the coarse classification used to scope dashboard tabs. It is
// derived from the event name at write time and never supplied by producers.
type Category string

const (
	CategoryWorkflow Category = "workflow"
	CategoryBusiness Category = "business"
	CategoryUsage    Category = "usage"
	CategorySystem   Category = "system"
)

// Well-known event names. Producers may emit arbitrary names; unknown ones
// are accepted under CategorySystem. These are the ones the aggregation
// queries give specific meaning to.
const (
	EventSessionStart      = "session_start"
	EventSessionEnd        = "session_end"
	EventCodeInput         = "code_input"
	EventDocGeneration     = "doc_generation"
	EventDocExport         = "doc_export"
	EventSignupCompleted   = "signup_completed"
	EventCheckoutCompleted = "checkout_completed"
	EventTierChange        = "tier_change"
	EventFeatureUsed       = "feature_used"
	EventError             = "client_error"
)

// Well-known payload keys consumed by the aggregation engine. Everything
// else in the payload is opaque.
const (
	PayloadKeyAction      = "action"
	PayloadKeyAmountCents = "amount_cents"
	PayloadKeyDocType     = "doc_type"
	PayloadKeyLanguage    = "language"
	PayloadKeyScore       = "score"
	PayloadKeyBatch       = "batch"
	PayloadKeySuccess     = "success"
)

// Tier-change actions carried under PayloadKeyAction.
const (
	ActionUpgrade   = "upgrade"
	ActionDowngrade = "downgrade"
	ActionCancel    = "cancel"
)

// ActorContext identifies who produced an event. Both fields are optional:
// server-originated events have no session, anonymous events no user. It is
// passed explicitly into every call so concurrent requests for different
// actors never cross-contaminate gating decisions.
type ActorContext struct {
	SessionID string
	UserID    *int64
}

// Record is the canonical persisted shape of an event. Immutable once
// written, with one exception: IsInternal (and a null UserID) may be
// corrected retroactively when a user authenticates later in the same
// session.
type Record struct {
	ID         int64                  `json:"id"`
	Name       string                 `json:"name"`
	Category   Category               `json:"category"`
	Payload    map[string]interface{} `json:"payload"`
	SessionID  string                 `json:"session_id,omitempty"`
	UserID     *int64                 `json:"user_id,omitempty"`
	IsInternal bool                   `json:"is_internal"`
	CreatedAt  time.Time              `json:"created_at"`
}
