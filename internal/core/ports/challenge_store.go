package ports

import (
	"context"
	"time"

	"github.com/stackpoint/account-service/internal/core/domain"
)

// ChallengeStore holds pending two-factor challenges for their short TTL.
type ChallengeStore interface {
	Put(ctx context.Context, token string, challenge *domain.TwoFactorChallenge, ttl time.Duration) error

	// Take returns and deletes the challenge in one atomic step so a
	// challenge token can be completed at most once.
	Take(ctx context.Context, token string) (*domain.TwoFactorChallenge, error)
}

// LockoutStore tracks consecutive failed logins per identifier.
type LockoutStore interface {
	// RecordFailure increments the failure counter and returns the new
	// count. The counter expires after the tracking window.
	RecordFailure(ctx context.Context, identifier string, window time.Duration) (int64, error)
	Reset(ctx context.Context, identifier string) error
}
