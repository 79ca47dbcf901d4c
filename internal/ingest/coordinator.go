package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"mira/internal/errors"
	"mira/internal/logging"
	"mira/internal/model"
)

// Coordinator fans one sync tick out across every enabled account. Accounts
// fail independently: one expired token does not block the other mailbox.
type Coordinator struct {
	services []*Service
	logger   logging.Logger

	// onUpdates fires after a tick that stored at least one new update.
	onUpdates func(ctx context.Context)
}

// NewCoordinator builds a coordinator over the given per-account services.
func NewCoordinator(services []*Service, onUpdates func(ctx context.Context), logger logging.Logger) *Coordinator {
	return &Coordinator{
		services:  services,
		onUpdates: onUpdates,
		logger:    logging.OrNop(logger),
	}
}

// AccountFailure records one account's failed sync with enough identity to
// act on it: which provider, which account, whose mailbox, and why.
type AccountFailure struct {
	Provider  model.Provider
	AccountID string
	Email     string
	Reason    string
}

func (f AccountFailure) String() string {
	return fmt.Sprintf("%s/%s (%s): %s", f.Provider, f.AccountID, f.Email, f.Reason)
}

// TickResult aggregates one coordinated pass.
type TickResult struct {
	Stored   int
	Fetched  int
	Failures []AccountFailure
}

// SyncAll runs every account concurrently. The pass fails only when every
// account fails; that error is transient so the scheduler backs off.
func (c *Coordinator) SyncAll(ctx context.Context) (TickResult, error) {
	var result TickResult
	if len(c.services) == 0 {
		return result, nil
	}

	var mu sync.Mutex
	group, gctx := errgroup.WithContext(ctx)
	for _, svc := range c.services {
		svc := svc
		group.Go(func() error {
			res, err := svc.Sync(gctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				account := svc.Account()
				c.logger.Warn("sync failed for %s: %v", account.AccountID, err)
				result.Failures = append(result.Failures, AccountFailure{
					Provider:  account.Provider,
					AccountID: account.AccountID,
					Email:     account.Email,
					Reason:    err.Error(),
				})
				return nil // capture, never cancel the sibling accounts
			}
			result.Stored += res.Stored
			result.Fetched += res.Fetched
			return nil
		})
	}
	_ = group.Wait()

	if len(result.Failures) == len(c.services) {
		reasons := make([]string, 0, len(result.Failures))
		for _, f := range result.Failures {
			reasons = append(reasons, f.String())
		}
		return result, errors.Transient(fmt.Errorf("all_account_syncs_failed: %s", strings.Join(reasons, "; ")))
	}
	if result.Stored > 0 && c.onUpdates != nil {
		c.onUpdates(ctx)
	}
	return result, nil
}
