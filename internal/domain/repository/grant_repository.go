package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"challenge_gateway/internal/common"
	"challenge_gateway/internal/common/security"
	"challenge_gateway/internal/domain/model"

	"github.com/redis/go-redis/v9"
)

// GrantRepository stores verification grants per device, challenge and phone.
type GrantRepository interface {
	Save(ctx context.Context, deviceID string, grant model.VerificationGrant, ttl time.Duration) error
	Find(ctx context.Context, deviceID string, challengeID int64, phone string) (*model.VerificationGrant, error)
	Delete(ctx context.Context, deviceID string, challengeID int64, phone string) error
	ListByChallenge(ctx context.Context, deviceID string, challengeID int64) ([]model.VerificationGrant, error)
}

type redisGrantRepository struct {
	rdb *redis.Client
}

func NewRedisGrantRepository(rdb *redis.Client) GrantRepository {
	return &redisGrantRepository{rdb: rdb}
}

func grantKey(deviceID string, challengeID int64, phone string) string {
	return fmt.Sprintf("grant:%s:%d:%s", deviceID, challengeID, security.PhoneDigest(phone))
}

func (r *redisGrantRepository) Save(ctx context.Context, deviceID string, g model.VerificationGrant, ttl time.Duration) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("redisGrantRepository.Save marshal: %w", err)
	}
	if err := r.rdb.Set(ctx, grantKey(deviceID, g.ChallengeID, g.Phone), data, ttl).Err(); err != nil {
		return fmt.Errorf("redisGrantRepository.Save: %w", err)
	}
	return nil
}

func (r *redisGrantRepository) Find(ctx context.Context, deviceID string, challengeID int64, phone string) (*model.VerificationGrant, error) {
	data, err := r.rdb.Get(ctx, grantKey(deviceID, challengeID, phone)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("redisGrantRepository.Find: %w", err)
	}
	var g model.VerificationGrant
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("redisGrantRepository.Find unmarshal: %w", err)
	}
	return &g, nil
}

func (r *redisGrantRepository) Delete(ctx context.Context, deviceID string, challengeID int64, phone string) error {
	if err := r.rdb.Del(ctx, grantKey(deviceID, challengeID, phone)).Err(); err != nil {
		return fmt.Errorf("redisGrantRepository.Delete: %w", err)
	}
	return nil
}

func (r *redisGrantRepository) ListByChallenge(ctx context.Context, deviceID string, challengeID int64) ([]model.VerificationGrant, error) {
	pattern := fmt.Sprintf("grant:%s:%d:*", deviceID, challengeID)
	var grants []model.VerificationGrant

	iter := r.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		data, err := r.rdb.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // expired between SCAN and GET
			}
			return nil, fmt.Errorf("redisGrantRepository.ListByChallenge get: %w", err)
		}
		var g model.VerificationGrant
		if err := json.Unmarshal(data, &g); err != nil {
			return nil, fmt.Errorf("redisGrantRepository.ListByChallenge unmarshal: %w", err)
		}
		grants = append(grants, g)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redisGrantRepository.ListByChallenge scan: %w", err)
	}
	return grants, nil
}
