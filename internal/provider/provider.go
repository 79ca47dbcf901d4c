package provider

import (
	"context"
	"fmt"
	"net/http"

	"mira/internal/errors"
	"mira/internal/model"
)

// Client is the read-only mail capability: fetch messages strictly newer than
// the cursor, in ascending cursor order, and report how far the fetch got.
// Implementations never mutate mailbox state.
type Client interface {
	Provider() model.Provider
	FetchMessages(ctx context.Context, cursor model.Cursor) ([]model.InboundMessage, model.Cursor, error)
}

// TokenSource supplies the current bearer token for one account. Tokens are
// read per request so rotation takes effect without a restart.
type TokenSource func(ctx context.Context) (string, error)

// classifyStatus maps an HTTP response code onto the error taxonomy: auth
// failures are permanent, throttling and server trouble are retryable.
func classifyStatus(provider model.Provider, status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.PermissionDenied(string(provider), fmt.Errorf("http %d", status))
	case status == http.StatusTooManyRequests || status >= 500:
		return errors.Transient(fmt.Errorf("%s: http %d", provider, status))
	default:
		return fmt.Errorf("%s: unexpected http %d", provider, status)
	}
}
