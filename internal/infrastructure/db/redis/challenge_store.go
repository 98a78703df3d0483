package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stackpoint/account-service/internal/core/domain"
)

// ErrChallengeNotFound is returned when no live challenge matches the key.
var ErrChallengeNotFound = errors.New("challenge not found")

// ChallengeStore holds pending two-factor challenges under their hashed
// token for a short TTL. Key format: 2fa:<token_hash>
type ChallengeStore struct {
	client *redis.Client
}

func NewChallengeStore(client *redis.Client) *ChallengeStore {
	return &ChallengeStore{client: client}
}

func (s *ChallengeStore) Put(ctx context.Context, tokenHash string, challenge *domain.TwoFactorChallenge, ttl time.Duration) error {
	payload, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("encode challenge: %w", err)
	}
	if err := s.client.Set(ctx, s.key(tokenHash), payload, ttl).Err(); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}
	return nil
}

// Take returns and deletes the challenge in one round trip. GETDEL is
// atomic server-side, so a challenge token completes at most once even
// under concurrent attempts.
func (s *ChallengeStore) Take(ctx context.Context, tokenHash string) (*domain.TwoFactorChallenge, error) {
	payload, err := s.client.GetDel(ctx, s.key(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("take challenge: %w", err)
	}

	var challenge domain.TwoFactorChallenge
	if err := json.Unmarshal(payload, &challenge); err != nil {
		return nil, fmt.Errorf("decode challenge: %w", err)
	}
	return &challenge, nil
}

func (s *ChallengeStore) key(tokenHash string) string {
	return "2fa:" + tokenHash
}
