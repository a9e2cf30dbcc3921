// Package signin keeps pending provider sign-in attempts between the
// provider callback and the moment the visitor signs up or signs in.
package signin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-connections/core"
)

// DefaultTTL is how long an unfinished attempt is kept.
const DefaultTTL = 10 * time.Minute

var ErrAttemptNotFound = errors.New("signin: attempt not found")

// AttemptStore persists attempts keyed by session id.
type AttemptStore interface {
	Save(ctx context.Context, sessionID string, attempt *core.ProviderSignInAttempt) error
	Load(ctx context.Context, sessionID string) (*core.ProviderSignInAttempt, error)
	Delete(ctx context.Context, sessionID string) error
}

// Complete loads the attempt for sessionID, attaches its connection to
// userID and removes the attempt. The attempt stays stored when attaching
// fails so the caller can retry.
func Complete(
	ctx context.Context,
	store AttemptStore,
	sessionID string,
	directory core.UsersConnectionRepository,
	userID string,
) error {
	if store == nil {
		return fmt.Errorf("signin: attempt store is required")
	}
	attempt, err := store.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := attempt.AddConnection(ctx, directory, userID); err != nil {
		return err
	}
	return store.Delete(ctx, sessionID)
}

func normalizeSessionID(sessionID string) (string, error) {
	trimmed := strings.TrimSpace(sessionID)
	if trimmed == "" {
		return "", fmt.Errorf("signin: session id is required")
	}
	return trimmed, nil
}

func copyAttempt(attempt *core.ProviderSignInAttempt) *core.ProviderSignInAttempt {
	return &core.ProviderSignInAttempt{Data: attempt.Data.Clone()}
}
