package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"challenge_gateway/internal/common"
	"challenge_gateway/internal/domain/model"

	"github.com/redis/go-redis/v9"
)

const draftCacheTTL = 7 * 24 * time.Hour

// DraftCacheRepository is the local copy of editor buffers, consulted before
// the backend draft endpoint.
type DraftCacheRepository interface {
	Get(ctx context.Context, key model.DraftKey) (*model.ProblemDraft, error)
	Put(ctx context.Context, key model.DraftKey, draft model.ProblemDraft) error
	Delete(ctx context.Context, key model.DraftKey) error
}

type redisDraftCacheRepository struct {
	rdb *redis.Client
}

func NewRedisDraftCacheRepository(rdb *redis.Client) DraftCacheRepository {
	return &redisDraftCacheRepository{rdb: rdb}
}

func draftKey(key model.DraftKey) string {
	return "draft:" + key.String()
}

func (r *redisDraftCacheRepository) Get(ctx context.Context, key model.DraftKey) (*model.ProblemDraft, error) {
	data, err := r.rdb.Get(ctx, draftKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("redisDraftCacheRepository.Get: %w", err)
	}
	var d model.ProblemDraft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("redisDraftCacheRepository.Get unmarshal: %w", err)
	}
	return &d, nil
}

func (r *redisDraftCacheRepository) Put(ctx context.Context, key model.DraftKey, d model.ProblemDraft) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("redisDraftCacheRepository.Put marshal: %w", err)
	}
	if err := r.rdb.Set(ctx, draftKey(key), data, draftCacheTTL).Err(); err != nil {
		return fmt.Errorf("redisDraftCacheRepository.Put: %w", err)
	}
	return nil
}

func (r *redisDraftCacheRepository) Delete(ctx context.Context, key model.DraftKey) error {
	if err := r.rdb.Del(ctx, draftKey(key)).Err(); err != nil {
		return fmt.Errorf("redisDraftCacheRepository.Delete: %w", err)
	}
	return nil
}
