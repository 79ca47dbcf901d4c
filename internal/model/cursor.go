package model

import "time"

// Cursor is the per-account, per-provider resume point for incremental fetch.
// Primary is provider-specific (Gmail: internalDate seconds as decimal string,
// Outlook: ISO-8601 receivedDateTime); Secondary is the provider message id.
// Ordering is tuple order over (Primary, Secondary).
//
// Gmail primaries are fixed-width zero-padded decimals so lexicographic
// comparison matches numeric comparison; Outlook ISO-8601 UTC strings order
// lexicographically by construction.
type Cursor struct {
	Provider  Provider  `db:"provider"`
	AccountID string    `db:"account_id"`
	Primary   string    `db:"primary_cursor"`
	Secondary string    `db:"secondary_cursor"`
	UpdatedAt time.Time `db:"updated_at_utc"`
}

// IsZero reports whether the cursor has never advanced.
func (c Cursor) IsZero() bool {
	return c.Primary == "" && c.Secondary == ""
}

// Compare returns -1, 0, or 1 for tuple order against other.
func (c Cursor) Compare(other Cursor) int {
	if c.Primary != other.Primary {
		if c.Primary < other.Primary {
			return -1
		}
		return 1
	}
	if c.Secondary != other.Secondary {
		if c.Secondary < other.Secondary {
			return -1
		}
		return 1
	}
	return 0
}

// Before reports whether c orders strictly before other.
func (c Cursor) Before(other Cursor) bool { return c.Compare(other) < 0 }

// Account is one configured mail account.
type Account struct {
	AccountID string   `db:"account_id"`
	Provider  Provider `db:"provider"`
	Email     string   `db:"email"`
	Enabled   bool     `db:"enabled"`
}
