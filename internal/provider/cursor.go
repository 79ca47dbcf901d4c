package provider

import (
	"fmt"
	"sort"
	"time"

	"mira/internal/model"
)

// gmailPrimaryWidth keeps Gmail epoch-second primaries fixed width so the
// cursor's lexicographic tuple order matches numeric order.
const gmailPrimaryWidth = 12

// gmailPrimary encodes a receipt time as the Gmail cursor primary.
func gmailPrimary(received time.Time) string {
	return fmt.Sprintf("%0*d", gmailPrimaryWidth, received.UTC().Unix())
}

// outlookPrimary encodes a receipt time as the Outlook cursor primary.
// ISO-8601 UTC strings order lexicographically by construction.
func outlookPrimary(received time.Time) string {
	return received.UTC().Format(time.RFC3339)
}

// messageCursor builds the cursor position of one fetched message.
func messageCursor(p model.Provider, cursor model.Cursor, msg model.InboundMessage) model.Cursor {
	pos := model.Cursor{
		Provider:  p,
		AccountID: cursor.AccountID,
		Secondary: msg.MessageID,
	}
	if p == model.ProviderOutlook {
		pos.Primary = outlookPrimary(msg.ReceivedAtUTC)
	} else {
		pos.Primary = gmailPrimary(msg.ReceivedAtUTC)
	}
	return pos
}

// filterAfter drops every message at or before the cursor and dedupes repeats
// within the page. Providers are queried with an inclusive lower bound, so
// the boundary message comes back on every fetch and must be dropped here.
func filterAfter(p model.Provider, cursor model.Cursor, msgs []model.InboundMessage) []model.InboundMessage {
	seen := make(map[string]bool, len(msgs))
	out := make([]model.InboundMessage, 0, len(msgs))
	for _, msg := range msgs {
		if seen[msg.MessageID] {
			continue
		}
		seen[msg.MessageID] = true
		if !cursor.IsZero() && !cursor.Before(messageCursor(p, cursor, msg)) {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// sortByCursor orders messages ascending by their cursor position so callers
// see oldest first.
func sortByCursor(p model.Provider, cursor model.Cursor, msgs []model.InboundMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return messageCursor(p, cursor, msgs[i]).Before(messageCursor(p, cursor, msgs[j]))
	})
}

// advance returns the cursor after consuming msgs: the maximum message
// position, or the input cursor when nothing was kept.
func advance(p model.Provider, cursor model.Cursor, msgs []model.InboundMessage) model.Cursor {
	next := cursor
	next.Provider = p
	for _, msg := range msgs {
		if pos := messageCursor(p, cursor, msg); next.Before(pos) {
			next = pos
		}
	}
	return next
}
