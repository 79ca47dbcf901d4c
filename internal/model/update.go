package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// InboundMessage is one provider message after normalization. Provider
// clients produce these; the parser consumes them.
type InboundMessage struct {
	MessageID     string
	ThreadID      string // thread or conversation id, may be empty
	ReceivedAtUTC time.Time
	From          string
	Subject       string
	BodyText      string
	Links         []string
}

// UpdateCard is one normalized inbound message after parsing. Cards are
// created by ingestion, never mutated, never deleted.
type UpdateCard struct {
	UpdateID             string       `db:"update_id"`
	AccountID            string       `db:"account_id"`
	Source               Source       `db:"source"`
	ProviderMessageID    string       `db:"provider_message_id"`
	ProviderThreadID     string       `db:"provider_thread_id"`
	ReceivedAtUTC        time.Time    `db:"received_at_utc"`
	Sender               string       `db:"sender"`
	Subject              string       `db:"subject"`
	BodyText             string       `db:"body_text"`
	Links                []string     `db:"-"`
	Tags                 []string     `db:"-"`
	ParserMethod         ParserMethod `db:"parser_method"`
	ParseConfidence      float64      `db:"parse_confidence"`
	Evidence             []string     `db:"-"`
	RequiresConfirmation bool         `db:"requires_confirmation"`
	ContentHash          string       `db:"content_hash"`
}

// HasTag reports whether the card carries the exact tag.
func (u *UpdateCard) HasTag(tag string) bool {
	for _, t := range u.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ContentHash returns the SHA-256 hex digest of the body text. Stable across
// processes and runs for identical bytes.
func ContentHash(bodyText string) string {
	sum := sha256.Sum256([]byte(bodyText))
	return hex.EncodeToString(sum[:])
}
